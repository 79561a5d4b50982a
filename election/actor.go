// Package election implements the Coordinator FSM (spec §4.3): a small
// HTTP-probe-based protocol letting a cluster of coordinator processes
// converge on exactly one active ("Gamemaster") coordinator, ranked by
// integer priority.
package election

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/arcanebutton/gamemaster/bollywood"
	"github.com/arcanebutton/gamemaster/config"
	"github.com/arcanebutton/gamemaster/engine"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"github.com/arcanebutton/gamemaster/wire"
)

// candidate is one entry in the waiting list the FSM accumulates while it
// remains in Intent (spec §4.3's End state: "sort the waiting list by
// priority ascending"). Grounded directly on gamemaster.py's
// `GamemasterFSM.waiting_intent`, which records the FSM's own (url,
// priority) every time a re-probe in Intent still finds an active peer;
// preserved verbatim rather than "corrected" because spec.md's only
// explicitly flagged Open Question for this module is the /alive
// disambiguation below, not this bookkeeping shape (see DESIGN.md).
type candidate struct {
	url      string
	priority int
}

// Actor is the per-coordinator election state machine, structurally
// parallel to engine.Actor: its own state field, its own control-task slot,
// driven by a periodic step instead of unit events.
type Actor struct {
	cfg config.Config
	log zerolog.Logger

	self   *bollywood.PID
	engine *bollywood.Engine

	httpClient *http.Client
	status     *Status

	state       State
	activeURL   string
	waitingList []candidate

	gameProducer bollywood.Producer
	gamePID      *bollywood.PID

	task       *controlTask
	generation uint64
}

// New constructs an election Actor directly, letting callers keep the
// concrete pointer (for Status()/GamePID()) alongside the PID bollywood
// hands back from Spawn — the engine's Produce-from-closure flow has no
// other way to return the instance it actually spawned.
func New(cfg config.Config, log zerolog.Logger) *Actor {
	return &Actor{
		cfg:          cfg,
		log:          log.With().Str("component", "election").Logger(),
		httpClient:   &http.Client{},
		status:       newStatus(cfg.URL, cfg.Priority),
		state:        Initial,
		gameProducer: engine.NewProducer(cfg, log),
	}
}

// Producer returns a bollywood.Producer that always yields this same
// instance; an Actor must only ever be spawned once.
func (a *Actor) Producer() bollywood.Producer {
	return func() bollywood.Actor { return a }
}

// Status exposes the actor's concurrently-readable snapshot, wired into
// transport's HTTP handlers for /gamemaster, /request_gamemaster, /alive.
func (a *Actor) Status() *Status { return a.status }

// GamePID returns the currently active Game Engine's PID, or nil when this
// coordinator is not the active gamemaster — transport consults this to
// know where to route unit-session lifecycle/button messages.
func (a *Actor) GamePID() *bollywood.PID { return a.gamePID }

type stepFired struct{ generation uint64 }

// PeerGMFail is sent by the transport layer when it receives an inbound
// `{"type":"GM_FAIL"}` frame from the outgoing active coordinator (spec
// §4.3 End state).
type PeerGMFail struct{}

func (a *Actor) Receive(ctx bollywood.Context) {
	if a.self == nil {
		a.self = ctx.Self()
	}
	a.engine = ctx.Engine()

	switch msg := ctx.Message().(type) {
	case bollywood.Started:
		a.log.Info().Int("priority", a.cfg.Priority).Msg("election actor started")
		a.enterInitial()

	case bollywood.Stopping:
		a.cancelControlTask()
		if a.state == Gamemaster && len(a.waitingList) > 0 {
			sortCandidatesByPriority(a.waitingList)
			a.notifyGMFail(a.waitingList[0].url)
		}
		a.stopGame()

	case bollywood.Stopped:

	case stepFired:
		if msg.generation == a.generation {
			a.step()
		}

	case PeerGMFail:
		a.handlePeerGMFail()

	default:
		a.log.Warn().Type("message_type", msg).Msg("election actor received unexpected message")
	}
}

func (a *Actor) fireSelf(gen uint64) {
	a.engine.Send(a.self, stepFired{generation: gen}, nil)
}

func sleepOrCancel(stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}

// enterInitial installs Initial's "run a step immediately" task.
func (a *Actor) enterInitial() {
	a.state = Initial
	a.status.set(Initial, a.activeURL)
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		a.fireSelf(gen)
	})
}

// step runs one FSM transition per spec §4.3's "Step rules". It always
// executes on the actor's own goroutine (dispatched via stepFired), so
// state mutation here needs no locking; only Status is shared with the
// HTTP handlers and is updated through its own mutex.
func (a *Actor) step() {
	switch a.state {
	case Initial:
		a.stepInitial()
	case Intent:
		a.stepIntent()
	case Gamemaster:
		a.stepGamemaster()
	case End:
		a.stepEnd()
	}
}

func (a *Actor) stepInitial() {
	ctx := context.Background()
	higher, sawHigher := a.findHigherPriorityPeer(ctx)
	if sawHigher {
		a.log.Info().Str("peer", higher).Msg("higher-priority peer visible, deferring")
		a.activeURL = higher
		a.waitingList = append(a.waitingList, candidate{url: a.cfg.URL, priority: a.cfg.Priority})
		a.state = Intent
		a.status.set(Intent, a.activeURL)
		a.armIntentRepoll()
		return
	}

	if a.attemptRequestRound(ctx) {
		a.becomeGamemaster()
		return
	}

	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.InitialRetry) {
			return
		}
		a.fireSelf(gen)
	})
}

func (a *Actor) stepIntent() {
	ctx := context.Background()
	higher, sawHigher := a.findHigherPriorityPeer(ctx)
	if sawHigher {
		a.activeURL = higher
		a.status.set(Intent, a.activeURL)
		a.waitingList = append(a.waitingList, candidate{url: a.cfg.URL, priority: a.cfg.Priority})
		a.log.Info().Str("peer", higher).Msg("still deferring in Intent")
		a.armIntentRepoll()
		return
	}

	if a.attemptRequestRound(ctx) {
		a.becomeGamemaster()
		return
	}

	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.InitialRetry) {
			return
		}
		a.fireSelf(gen)
	})
}

func (a *Actor) armIntentRepoll() {
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.IntentRepoll) {
			return
		}
		a.fireSelf(gen)
	})
}

// findHigherPriorityPeer implements spec.md's corrected election semantics
// (SPEC_FULL §4.3): a peer's /gamemaster priority alone never blocks our
// own promotion — we defer to it only once /alive confirms it is actually
// the active gamemaster.
func (a *Actor) findHigherPriorityPeer(ctx context.Context) (string, bool) {
	for _, peer := range a.peers() {
		gm := a.probeGamemaster(ctx, peer)
		if !gm.reachable || gm.priority >= a.cfg.Priority {
			continue
		}
		alive := a.probeAlive(ctx, peer)
		if alive.reachable && alive.isActive {
			return peer, true
		}
	}
	return "", false
}

// attemptRequestRound sends /request_gamemaster to every peer and reports
// whether every reachable one yielded (spec §4.3 "If every reachable peer
// returns 200, become active").
func (a *Actor) attemptRequestRound(ctx context.Context) bool {
	unanimous := true
	for _, peer := range a.peers() {
		res := a.requestGamemaster(ctx, peer)
		if res.reachable && !res.yield {
			unanimous = false
		}
	}
	return unanimous
}

func (a *Actor) becomeGamemaster() {
	a.log.Info().Msg("became active gamemaster")
	a.state = Gamemaster
	a.activeURL = a.cfg.URL
	a.status.set(Gamemaster, a.activeURL)
	a.startGame()
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.GamemasterIdle) {
			return
		}
		a.fireSelf(gen)
	})
}

func (a *Actor) stepGamemaster() {
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.GamemasterIdle) {
			return
		}
		a.fireSelf(gen)
	})
}

// handlePeerGMFail is how this coordinator learns it can no longer hold
// the active role: an inbound GM_FAIL received while Gamemaster steps down
// through End (notifying the best waiting candidate) back to Initial. In
// any other state the notification is ignored.
func (a *Actor) handlePeerGMFail() {
	if a.state == Gamemaster {
		a.log.Warn().Msg("received GM_FAIL while active; stepping down")
		a.stepDown()
	}
}

// stepDown is the active coordinator's own End-state transition: it
// notifies the best waiting candidate, then falls back to Initial.
func (a *Actor) stepDown() {
	a.state = End
	a.stopGame()
	a.stepEnd()
}

func (a *Actor) stepEnd() {
	if len(a.waitingList) > 0 {
		sortCandidatesByPriority(a.waitingList)
		best := a.waitingList[0]
		a.waitingList = a.waitingList[1:]
		a.notifyGMFail(best.url)
	}
	a.enterInitial()
}

func sortCandidatesByPriority(cs []candidate) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].priority < cs[j-1].priority; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// notifyGMFail opens a message-framed connection to the given peer's
// election port and sends {"type":"GM_FAIL"} (spec §4.3 End state),
// grounded on gamemaster.py's `connect(f"ws://{url}:8002")`.
func (a *Actor) notifyGMFail(peerURL string) {
	origin := "http://" + a.cfg.URL
	target := "ws://" + peerURL + ":" + strconv.Itoa(a.cfg.PeerPort) + "/"
	conn, err := websocket.Dial(target, "", origin)
	if err != nil {
		a.log.Warn().Err(err).Str("peer", peerURL).Msg("failed to notify candidate of GM_FAIL")
		return
	}
	defer conn.Close()
	if err := websocket.JSON.Send(conn, wire.NewGMFail()); err != nil {
		a.log.Warn().Err(err).Str("peer", peerURL).Msg("failed to send GM_FAIL")
	}
}

func (a *Actor) startGame() {
	if a.gamePID != nil {
		return
	}
	props := bollywood.NewProps(a.gameProducer)
	a.gamePID = a.engine.Spawn(props)
}

func (a *Actor) stopGame() {
	if a.gamePID == nil {
		return
	}
	a.engine.Stop(a.gamePID)
	a.gamePID = nil
}
