// Package engine implements the single-writer Game Engine state machine
// (spec §3, §4.2): the reaction-game's finite-state machine driving button
// units through attract mode, single-player rounds, a double-press-
// triggered two-player mode, and the win/lose/timeout dwell sequences.
package engine

import (
	"math/rand"
	"time"

	"github.com/arcanebutton/gamemaster/bollywood"
	"github.com/arcanebutton/gamemaster/config"
	"github.com/rs/zerolog"
)

// Actor is the Game Engine. The election actor spawns a fresh one each time
// the coordinator takes the active ("Gamemaster") role and stops it when the
// coordinator steps down; the
// single-writer property falls directly out of the bollywood runtime, which
// only ever invokes one process's Receive from one goroutine at a time —
// no field below is touched from outside Receive.
type Actor struct {
	cfg config.Config
	log zerolog.Logger
	rng *rand.Rand

	self   *bollywood.PID
	engine *bollywood.Engine

	state State

	active           map[uint64]SessionHandle
	unitList         []uint64
	previousCorrect  map[uint64]struct{}
	correct          *uint64
	wrong            *uint64
	pressedUnits     map[uint64]struct{}
	lastPressTime    time.Time

	playerScores  [2]int
	playerColors  [2][3]uint8
	playerQueues  [2][]uint64
	correctUnits  [2]*uint64

	task       *controlTask
	generation uint64

	// roundPhase distinguishes Lose/Win's two sequential dwell phases within
	// their shared control-task handler (armRoundDwell/handleControlTaskFired).
	roundPhase int

	// clockFn overrides time.Now for tests; nil means real wall clock.
	clockFn func() time.Time
}

// NewProducer returns a bollywood.Producer that constructs a fresh Actor,
// grounded on the teacher's NewRoomManagerProducer/NewConnectionHandlerProducer
// closures-over-args pattern.
func NewProducer(cfg config.Config, log zerolog.Logger) bollywood.Producer {
	return func() bollywood.Actor {
		return &Actor{
			cfg:             cfg,
			log:             log.With().Str("component", "engine").Logger(),
			rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
			state:           NoUnits,
			active:          make(map[uint64]SessionHandle),
			previousCorrect: make(map[uint64]struct{}),
			pressedUnits:    make(map[uint64]struct{}),
			playerColors:    [2][3]uint8{{255, 255, 0}, {0, 0, 255}},
		}
	}
}

// Receive dispatches every engine-addressed message. Handlers never
// suspend (§5): they only mutate state, enqueue commands, and swap the
// control-task slot.
func (a *Actor) Receive(ctx bollywood.Context) {
	if a.self == nil {
		a.self = ctx.Self()
	}
	a.engine = ctx.Engine()

	switch msg := ctx.Message().(type) {
	case bollywood.Started:
		a.log.Info().Msg("engine started")

	case bollywood.Stopping:
		a.cancelControlTask()
		a.log.Info().Msg("engine stopping")

	case bollywood.Stopped:

	case RegisterUnit:
		a.handleRegister(msg)

	case UnregisterUnit:
		a.handleUnregister(msg.UnitID)

	case ButtonPressed:
		a.handlePress(msg.UnitID)

	case ButtonReleased:
		a.handleRelease(msg.UnitID)

	case controlTaskFired:
		if msg.generation == a.currentGeneration() {
			a.handleControlTaskFired()
		}

	default:
		a.log.Warn().Type("message_type", msg).Msg("engine received unexpected message")
	}
}

// fireSelf is called by control-task goroutines when their timer elapses;
// it asks the engine actor to re-evaluate the current state's control task.
func (a *Actor) fireSelf(gen uint64) {
	a.engine.Send(a.self, controlTaskFired{generation: gen}, nil)
}

// sleepOrCancel blocks for d or returns early (result false) if stop fires.
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
