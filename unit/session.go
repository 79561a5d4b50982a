// Package unit implements the Unit Session (spec §4.1): one bollywood actor
// per connected physical button unit, owning its outbound FIFO command
// queue and the reader/sender goroutines that drive its websocket.
package unit

import (
	"encoding/json"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arcanebutton/gamemaster/bollywood"
	"github.com/arcanebutton/gamemaster/config"
	"github.com/arcanebutton/gamemaster/engine"
	"github.com/arcanebutton/gamemaster/wire"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
)

// rawFrame is what the reader goroutine forwards into the actor's own
// mailbox for each inbound wire frame — decoding happens on the actor
// goroutine so the session's own state is never touched concurrently.
type rawFrame struct {
	data []byte
}

type readLoopDone struct{ err error }

// SessionActor is one per connected unit (spec §4.1), grounded on the
// teacher's BallActor/ConnectionHandlerActor pattern: actor owns state,
// companion goroutines block on the one thing the actor loop can't
// (reading/writing the wire).
type SessionActor struct {
	conn       *websocket.Conn
	engine     *bollywood.Engine
	gamemaster *bollywood.PID
	self       *bollywood.PID
	cfg        config.Config
	log        zerolog.Logger

	queue *outboundQueue

	unitID uint64
	bound  bool

	stopReader chan struct{}
	readerDone chan struct{}
	stopSender chan struct{}
	senderDone chan struct{}
	stopPing   chan struct{}
	pingDone   chan struct{}

	pingNonce int64

	// pingMu guards pingSentAt, written by pingLoop's own goroutine and
	// read/deleted from observePong on the actor goroutine when a PONG
	// decodes, the same cross-goroutine pattern outboundQueue guards with
	// its own mutex (unit/queue.go).
	pingMu      sync.Mutex
	pingSentAt  map[int64]time.Time
	latencyBits atomic.Uint64 // math.Float64bits(latencySeconds)

	unregisteredOnce bool
}

// NewProducer returns a bollywood.Producer for one unit connection.
func NewProducer(conn *websocket.Conn, engine *bollywood.Engine, gamemaster *bollywood.PID, cfg config.Config, log zerolog.Logger) bollywood.Producer {
	return func() bollywood.Actor {
		return &SessionActor{
			conn:       conn,
			engine:     engine,
			gamemaster: gamemaster,
			cfg:        cfg,
			log:        log.With().Str("component", "unit_session").Logger(),
			queue:      newOutboundQueue(),
			pingSentAt: make(map[int64]time.Time),
			stopReader: make(chan struct{}),
			readerDone: make(chan struct{}),
			stopSender: make(chan struct{}),
			senderDone: make(chan struct{}),
			stopPing:   make(chan struct{}),
			pingDone:   make(chan struct{}),
		}
	}
}

// Enqueue appends an outbound actuator command; never blocks, never drops.
func (a *SessionActor) Enqueue(cmd any) { a.queue.push(cmd) }

// LatencySeconds returns the last-measured one-way latency estimate, or 0
// if no PONG has ever been observed (spec §4.1).
func (a *SessionActor) LatencySeconds() float64 {
	return math.Float64frombits(a.latencyBits.Load())
}

// PID returns this session's own process id.
func (a *SessionActor) PID() *bollywood.PID { return a.self }

func (a *SessionActor) Receive(ctx bollywood.Context) {
	if a.self == nil {
		a.self = ctx.Self()
	}
	a.engine = ctx.Engine()

	switch msg := ctx.Message().(type) {
	case bollywood.Started:
		go a.senderLoop()
		go a.readerLoop()
		go a.pingLoop()

	case rawFrame:
		a.handleFrame(msg.data)

	case readLoopDone:
		a.cleanup()
		ctx.Engine().Stop(a.self)

	case bollywood.Stopping:
		a.signalLoopsStop()
		a.cleanup()

	case bollywood.Stopped:

	default:
		a.log.Warn().Type("message_type", msg).Msg("unit session received unexpected message")
	}
}

// handleFrame decodes one inbound frame and dispatches it (spec §4.1, §7).
func (a *SessionActor) handleFrame(data []byte) {
	var env wire.InboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		a.protocolError(err)
		return
	}

	switch env.Type {
	case wire.TypeRegister:
		var reg wire.Register
		if err := json.Unmarshal(data, &reg); err != nil {
			a.protocolError(err)
			return
		}
		id, err := wire.ParseUnitID(reg.ID)
		if err != nil {
			a.protocolError(err)
			return
		}
		if a.bound && a.unitID != id {
			a.sendUnregister()
		}
		a.unitID = id
		a.bound = true
		a.unregisteredOnce = false
		a.engine.Send(a.gamemaster, engine.RegisterUnit{UnitID: id, Session: a}, a.self)

	case wire.TypeButtonPressed:
		if a.bound {
			a.engine.Send(a.gamemaster, engine.ButtonPressed{UnitID: a.unitID}, a.self)
		}

	case wire.TypeButtonReleased:
		if a.bound {
			a.engine.Send(a.gamemaster, engine.ButtonReleased{UnitID: a.unitID}, a.self)
		}

	case wire.TypeUnregister:
		a.sendUnregister()
		a.engine.Stop(a.self)

	case wire.TypePong:
		var pong wire.Pong
		if err := json.Unmarshal(data, &pong); err != nil {
			a.protocolError(err)
			return
		}
		a.observePong(pong.Nonce)

	default:
		a.protocolError(nil)
	}
}

// protocolError is spec §7's "Protocol error": close the connection (best
// effort — golang.org/x/net/websocket does not expose RFC 6455 close codes,
// see DESIGN.md) and, if a unit_id was bound, issue its unregister exactly
// once.
func (a *SessionActor) protocolError(err error) {
	a.log.Warn().Err(err).Msg("invalid JSON format, closing session")
	a.sendUnregister()
	_ = a.conn.Close()
	a.engine.Stop(a.self)
}

func (a *SessionActor) sendUnregister() {
	if a.bound && !a.unregisteredOnce {
		a.unregisteredOnce = true
		a.engine.Send(a.gamemaster, engine.UnregisterUnit{UnitID: a.unitID}, a.self)
	}
}

func (a *SessionActor) observePong(nonce int64) {
	a.pingMu.Lock()
	sentAt, ok := a.pingSentAt[nonce]
	if ok {
		delete(a.pingSentAt, nonce)
	}
	a.pingMu.Unlock()
	if !ok {
		return
	}
	rtt := time.Since(sentAt)
	oneWay := rtt.Seconds() / 2
	a.latencyBits.Store(math.Float64bits(oneWay))
}

func (a *SessionActor) signalLoopsStop() {
	closeOnce(a.stopReader)
	closeOnce(a.stopSender)
	closeOnce(a.stopPing)
	a.queue.close()
	if a.conn != nil {
		_ = a.conn.Close()
	}
}

func (a *SessionActor) cleanup() {
	a.sendUnregister()
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// senderLoop drains the outbound FIFO queue onto the wire in order (spec
// §4.1 "drained FIFO by a session-local sender"); backpressure on the wire
// blocks only this goroutine, never the Engine.
func (a *SessionActor) senderLoop() {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("sender loop panicked")
		}
		close(a.senderDone)
	}()
	for {
		item, ok := a.queue.pop(a.stopSender)
		if !ok {
			return
		}
		if err := websocket.JSON.Send(a.conn, item); err != nil {
			a.log.Debug().Err(err).Msg("send failed, unit likely disconnected")
			return
		}
	}
}

// readerLoop blocks on inbound frames and forwards each one back into the
// actor's own mailbox, exactly as ConnectionHandlerActor.readLoop does for
// paddle input in the teacher repo.
func (a *SessionActor) readerLoop() {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("reader loop panicked")
		}
		close(a.readerDone)
		if a.engine != nil && a.self != nil {
			a.engine.Send(a.self, readLoopDone{}, nil)
		}
	}()
	for {
		select {
		case <-a.stopReader:
			return
		default:
		}
		var raw json.RawMessage
		_ = a.conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		if err := websocket.JSON.Receive(a.conn, &raw); err != nil {
			return
		}
		if a.engine != nil && a.self != nil {
			a.engine.Send(a.self, rawFrame{data: raw}, nil)
		}
	}
}

// pingLoop sends an application-level PING every PingInterval and records
// its send time, so observePong can compute a one-way latency estimate
// (spec §4.1's DOMAIN note: golang.org/x/net/websocket exposes no native
// ping/pong control frames).
func (a *SessionActor) pingLoop() {
	defer close(a.pingDone)
	ticker := time.NewTicker(a.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopPing:
			return
		case <-ticker.C:
			nonce := atomic.AddInt64(&a.pingNonce, 1)
			now := time.Now()
			a.pingMu.Lock()
			a.pingSentAt[nonce] = now
			a.pingMu.Unlock()
			a.queue.push(wire.Ping{Type: wire.TypePing, Nonce: nonce, SentAt: wire.FormatAt(now)})
		}
	}
}
