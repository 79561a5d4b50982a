// Package transport wires the coordinator's two listening surfaces (spec
// §4.4): a combined HTTP/message-framed port for peer probes and
// notifications, and a dedicated unit websocket port active only while
// this coordinator holds the gamemaster role. Grounded on the teacher's
// server.Server/HandleSubscribe: spawn a per-connection actor, block the
// HTTP handler goroutine on a done channel the actor closes from its own
// Stopped handling.
package transport

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/arcanebutton/gamemaster/bollywood"
	"github.com/arcanebutton/gamemaster/config"
	"github.com/arcanebutton/gamemaster/election"
	"github.com/arcanebutton/gamemaster/unit"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
)

// GameLocator resolves the currently active Game Engine's PID, or nil when
// this coordinator is not the active gamemaster. election.Actor satisfies
// this by its GamePID method.
type GameLocator interface {
	GamePID() *bollywood.PID
}

// Server owns both listening sockets.
type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	engine   *bollywood.Engine
	election *bollywood.PID
	game     GameLocator
	handlers *election.Handlers

	peerSrv *http.Server
	unitLis net.Listener
}

// NewServer builds a Server ready to Start. electionPID is where inbound
// GM_FAIL peer notifications are forwarded; game resolves the active
// engine's PID for each fresh unit session.
func NewServer(cfg config.Config, log zerolog.Logger, eng *bollywood.Engine, electionPID *bollywood.PID, game GameLocator, status *election.Status) *Server {
	return &Server{
		cfg:      cfg,
		log:      log.With().Str("component", "transport").Logger(),
		engine:   eng,
		election: electionPID,
		game:     game,
		handlers: election.NewHandlers(status),
	}
}

// Start binds both ports and begins serving; it returns once both listeners
// are bound, continuing to serve in background goroutines.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/gamemaster", s.handlers.Gamemaster)
	mux.HandleFunc("/request_gamemaster", s.handlers.RequestGamemaster)
	mux.HandleFunc("/alive", s.handlers.Alive)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/", websocket.Handler(s.handleGMFailSocket))

	s.peerSrv = &http.Server{
		Addr:    portAddr(s.cfg.PeerPort),
		Handler: mux,
	}
	peerLis, err := net.Listen("tcp", s.peerSrv.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.peerSrv.Serve(peerLis); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("peer http server exited")
		}
	}()

	unitLis, err := net.Listen("tcp", portAddr(s.cfg.UnitPort))
	if err != nil {
		_ = s.peerSrv.Close()
		return err
	}
	s.unitLis = unitLis
	unitSrv := &http.Server{Handler: websocket.Handler(s.handleUnitSubscribe)}
	go func() {
		if err := unitSrv.Serve(unitLis); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("unit websocket server exited")
		}
	}()

	s.log.Info().Int("peer_port", s.cfg.PeerPort).Int("unit_port", s.cfg.UnitPort).Msg("transport listening")
	return nil
}

// Stop closes both listeners.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if s.peerSrv != nil {
		_ = s.peerSrv.Shutdown(ctx)
	}
	if s.unitLis != nil {
		_ = s.unitLis.Close()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// handleGMFailSocket reads exactly one frame off a peer-notification
// connection, per spec §4.3's End-state "open a message-framed connection
// ... and send {type: GM_FAIL}" (a one-shot notification, not a persistent
// session).
func (s *Server) handleGMFailSocket(ws *websocket.Conn) {
	defer ws.Close()
	var frame struct {
		Type string `json:"type"`
	}
	if err := websocket.JSON.Receive(ws, &frame); err != nil {
		return
	}
	if frame.Type == "GM_FAIL" && s.election != nil {
		s.engine.Send(s.election, election.PeerGMFail{}, nil)
	}
}

// handleUnitSubscribe spawns a fresh unit.SessionActor for every incoming
// unit websocket connection, routing its events to whichever Game Engine
// is currently active. A session that connects while no engine is active
// is closed immediately (spec §4.4: the unit port is meaningful only for
// the active coordinator; keeping the listener always open, rather than
// bound/unbound on every election transition, avoids a race between the
// two and simply refuses work when there's nowhere for it to go).
func (s *Server) handleUnitSubscribe(ws *websocket.Conn) {
	gamePID := s.game.GamePID()
	if gamePID == nil {
		ws.Close()
		return
	}

	done := make(chan struct{})
	producer := unit.NewProducer(ws, s.engine, gamePID, s.cfg, s.log)
	pid := s.engine.Spawn(bollywood.NewProps(wrapWithDone(producer, done)))
	_ = pid
	<-done
}

// wrapWithDone decorates a session producer so its Stopped handling closes
// done, letting the HTTP handler goroutine block for the connection's
// whole lifetime exactly as the teacher's HandleSubscribe does.
func wrapWithDone(inner bollywood.Producer, done chan struct{}) bollywood.Producer {
	return func() bollywood.Actor {
		return &doneNotifyingActor{Actor: inner(), done: done}
	}
}

type doneNotifyingActor struct {
	bollywood.Actor
	done   chan struct{}
	closed bool
}

func (d *doneNotifyingActor) Receive(ctx bollywood.Context) {
	d.Actor.Receive(ctx)
	if _, ok := ctx.Message().(bollywood.Stopped); ok && !d.closed {
		d.closed = true
		close(d.done)
	}
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
