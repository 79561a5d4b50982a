// File: engine/scenarios_test.go
//
// Direct-call tests exercising the scenarios and properties spec §8 names
// (S2-S5, P2, P4, R1-R3) plus the tie-transient case spec §9 calls out.
// Unlike actor_test.go's spawn-through-the-engine tests, these construct an
// Actor directly and call its handler methods synchronously on the test
// goroutine, the same style already used for TestPickRandomActiveExcludesGivenID
// and election's direct-construction tests — deterministic, no sleeps, no
// races against a background control-task goroutine mutating state the test
// is also reading.
package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/arcanebutton/gamemaster/bollywood"
	"github.com/arcanebutton/gamemaster/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestActor builds an Actor the same way NewProducer does, plus a scratch
// engine/PID so any control-task goroutine's background fireSelf call has
// somewhere harmless to Send into (the engine just drops the message, since
// nothing is registered under that PID) and a cleanup that cancels whatever
// control task is still installed when the test ends.
func newTestActor(t *testing.T) *Actor {
	t.Helper()
	a := &Actor{
		cfg:             testConfig(),
		log:             zerolog.Nop(),
		rng:             rand.New(rand.NewSource(1)),
		state:           NoUnits,
		active:          make(map[uint64]SessionHandle),
		previousCorrect: make(map[uint64]struct{}),
		pressedUnits:    make(map[uint64]struct{}),
		playerColors:    [2][3]uint8{{255, 255, 0}, {0, 0, 255}},
		engine:          bollywood.NewEngine(),
		self:            &bollywood.PID{ID: "unregistered-engine-test-pid"},
	}
	t.Cleanup(a.cancelControlTask)
	return a
}

func commandAt(t *testing.T, cmd any) string {
	t.Helper()
	switch c := cmd.(type) {
	case wire.ButtonLED:
		return c.At
	case wire.Sound:
		return c.At
	default:
		t.Fatalf("unexpected command type %T", cmd)
		return ""
	}
}

// S2 — two-player happy path: the press that clears unit_list transitions
// straight to Win rather than picking a further target. The presses are
// spaced further apart than PressThreshold so the second one is not taken
// as a double-press.
func TestEngineTwoPlayerHappyPathEntersWin(t *testing.T) {
	a := newTestActor(t)
	clock := time.Now()
	a.clockFn = func() time.Time { return clock }
	sess1, sess2 := &mockSession{id: 1}, &mockSession{id: 2}
	a.handleRegister(RegisterUnit{UnitID: 1, Session: sess1})
	a.handleRegister(RegisterUnit{UnitID: 2, Session: sess2})
	require.Equal(t, PreGameMultiple, a.state)
	require.NotNil(t, a.correct)

	first := *a.correct
	a.handlePress(first)
	assert.Equal(t, Playing, a.state)
	assert.Contains(t, a.previousCorrect, first)
	require.NotNil(t, a.correct)
	second := *a.correct
	assert.NotEqual(t, first, second)
	assert.Empty(t, a.unitList)

	clock = clock.Add(2 * a.cfg.PressThreshold)
	a.handlePress(second)
	assert.Equal(t, Win, a.state)
}

// S3 — wrong press: every active unit receives the same synchronized lose
// broadcast, not just the one that pressed the decoy.
func TestEngineWrongPressInPlayingBroadcastsLoseToEveryActiveUnit(t *testing.T) {
	a := newTestActor(t)
	sessions := map[uint64]*mockSession{1: {id: 1}, 2: {id: 2}, 3: {id: 3}}
	for id, s := range sessions {
		a.handleRegister(RegisterUnit{UnitID: id, Session: s})
	}
	require.Equal(t, PreGameMultiple, a.state)
	require.NotNil(t, a.correct)

	firstCorrect := *a.correct
	a.handlePress(firstCorrect)
	require.Equal(t, Playing, a.state)
	require.NotNil(t, a.wrong)
	wrongID := *a.wrong

	for _, s := range sessions {
		s.cmds = nil
	}

	a.handlePress(wrongID)
	assert.Equal(t, Lose, a.state)

	var sharedAt string
	for id, s := range sessions {
		require.NotEmpty(t, s.cmds, "unit %d should have received the lose broadcast", id)
		led, ok := s.cmds[0].(wire.ButtonLED)
		require.True(t, ok, "unit %d's first enqueued lose command should be a button LED cue", id)
		if sharedAt == "" {
			sharedAt = led.At
		}
		assert.Equal(t, sharedAt, led.At, "every unit's lose command should fire at the same synchronized timestamp")
	}
}

// S4 — the 15s-inactivity-then-4s-stop Timeout cycle, from all buttons
// released through to the return to attract mode.
func TestEngineTimeoutCycleReturnsToPreGameMultiple(t *testing.T) {
	a := newTestActor(t)
	sessions := map[uint64]*mockSession{1: {id: 1}, 2: {id: 2}, 3: {id: 3}}
	for id, s := range sessions {
		a.handleRegister(RegisterUnit{UnitID: id, Session: s})
	}
	require.NotNil(t, a.correct)
	firstCorrect := *a.correct
	a.handlePress(firstCorrect)
	require.Equal(t, Playing, a.state)

	a.handleRelease(firstCorrect)
	require.Equal(t, PlayingAllReleased, a.state)
	require.Empty(t, a.pressedUnits)

	for _, s := range sessions {
		s.cmds = nil
	}

	a.handleControlTaskFired() // PlayingAllReleasedTTL elapses with no press
	assert.Equal(t, Timeout, a.state)
	for id, s := range sessions {
		require.NotEmpty(t, s.cmds, "unit %d should receive the timeout lose cue", id)
	}

	for _, s := range sessions {
		s.cmds = nil
	}

	a.handleControlTaskFired() // TimeoutStopDelay elapses
	assert.Equal(t, PreGameMultiple, a.state)
	for id, s := range sessions {
		foundOff := false
		for _, cmd := range s.cmds {
			if led, ok := cmd.(wire.ButtonLED); ok && led.Value == wire.ValueOff {
				foundOff = true
			}
		}
		assert.True(t, foundOff, "unit %d should receive a stop-all command before returning to attract mode", id)
	}
}

// S5 — double-press transfers into multiplayer, and the first player to
// reach ceil(active/2) correct presses ends the round.
func TestEngineDoublePressTransfersToMultiplayerThenEndsOnThreshold(t *testing.T) {
	a := newTestActor(t)
	sessions := map[uint64]*mockSession{1: {id: 1}, 2: {id: 2}, 3: {id: 3}, 4: {id: 4}}
	for id, s := range sessions {
		a.handleRegister(RegisterUnit{UnitID: id, Session: s})
	}
	require.Equal(t, PreGameMultiple, a.state)
	require.NotNil(t, a.correct)

	firstCorrect := *a.correct
	a.handlePress(firstCorrect)
	require.Equal(t, Playing, a.state)
	require.NotNil(t, a.correct)
	secondCorrect := *a.correct

	a.handlePress(secondCorrect) // arrives within PressThreshold of the first: a double-press
	assert.Equal(t, PreGameMultiplayer, a.state)

	a.handleControlTaskFired() // 1s partition delay elapses
	require.Equal(t, PlayingMultiplayer, a.state)
	require.NotNil(t, a.correctUnits[0])

	threshold := ceilHalf(len(a.active))
	for i := 0; i < threshold; i++ {
		require.NotNil(t, a.correctUnits[0], "round %d: player 0 should still have a target before reaching the win threshold", i)
		a.handlePress(*a.correctUnits[0])
	}

	assert.Equal(t, EndMultiplayer, a.state)
	assert.Equal(t, threshold, a.playerScores[0])
}

// Tie transient (spec §9): nextWrong must not stop the unit that nextCorrect
// just lit yellow, even though that unit was the previous decoy.
func TestNextWrongSkipsStopWhenTiedWithNewCorrect(t *testing.T) {
	a := newTestActor(t)
	tied, nextWrongTarget := &mockSession{id: 5}, &mockSession{id: 6}
	a.active[5] = tied
	a.active[6] = nextWrongTarget
	a.unitList = []uint64{5, 6}
	wrongID := uint64(5)
	a.wrong = &wrongID

	a.nextCorrect() // pops 5 off unit_list into correct
	require.NotNil(t, a.correct)
	assert.Equal(t, uint64(5), *a.correct)

	a.nextWrong() // old wrong (5) now ties the just-lit correct (5)

	for _, cmd := range tied.cmds {
		if led, ok := cmd.(wire.ButtonLED); ok {
			assert.NotEqual(t, wire.ValueOff, led.Value, "the unit nextCorrect just lit yellow must not also receive a stop command from nextWrong")
		}
	}
	require.NotNil(t, a.wrong)
	assert.Equal(t, uint64(6), *a.wrong)
}

// Contrast case: when the old decoy does NOT tie the new correct target,
// nextWrong does stop it as usual.
func TestNextWrongStopsPreviousDecoyWhenNotTied(t *testing.T) {
	a := newTestActor(t)
	oldWrong, newCorrect, newWrong := &mockSession{id: 9}, &mockSession{id: 2}, &mockSession{id: 3}
	a.active[9] = oldWrong
	a.active[2] = newCorrect
	a.active[3] = newWrong
	a.unitList = []uint64{2, 3}
	wrongID := uint64(9)
	a.wrong = &wrongID

	a.nextCorrect()
	require.NotNil(t, a.correct)
	assert.Equal(t, uint64(2), *a.correct)

	a.nextWrong()

	foundOff := false
	for _, cmd := range oldWrong.cmds {
		if led, ok := cmd.(wire.ButtonLED); ok && led.Value == wire.ValueOff {
			foundOff = true
		}
	}
	assert.True(t, foundOff, "the untied previous decoy should be stopped")
	require.NotNil(t, a.wrong)
	assert.Equal(t, uint64(3), *a.wrong)
}

// P2 — every command delivered to a unit carries a timestamp at or after
// arrival_time + the configured actuator safety margin.
func TestScheduleAtRespectsActuatorSafetyMargin(t *testing.T) {
	a := newTestActor(t)
	arrival := time.Now()
	a.clockFn = func() time.Time { return arrival }

	at := a.scheduleAt(0)
	assert.False(t, at.Before(arrival.Add(a.cfg.ActuatorSafetyMargin)))
}

func TestPressedCommandTimestampsRespectSafetyMargin(t *testing.T) {
	a := newTestActor(t)
	sess := &mockSession{id: 1}
	a.handleRegister(RegisterUnit{UnitID: 1, Session: sess})
	require.Equal(t, PreGameSingle, a.state)

	arrival := time.Now()
	a.clockFn = func() time.Time { return arrival }
	sess.cmds = nil

	a.handlePress(1)
	require.NotEmpty(t, sess.cmds)

	lowerBound := wire.FormatAt(arrival.Add(a.cfg.ActuatorSafetyMargin))
	for _, cmd := range sess.cmds {
		// TimeLayout is fixed-width and zero-padded, so lexicographic string
		// comparison reflects chronological order without parsing back into
		// a time.Time (which would need the formatting location to line up).
		assert.GreaterOrEqual(t, commandAt(t, cmd), lowerBound, "P2: command timestamp must be >= arrival + safety margin")
	}
}

// P4 — the set-size invariant, checked after every round through a full
// four-unit single-player game.
func assertSetSizeInvariant(t *testing.T, a *Actor) {
	t.Helper()
	correctCount, wrongCount := 0, 0
	if a.correct != nil {
		correctCount = 1
	}
	if a.wrong != nil {
		wrongCount = 1
	}
	if a.correct != nil && a.wrong != nil {
		assert.NotEqual(t, *a.correct, *a.wrong, "P4: correct and wrong must be distinct whenever both are set")
	}
	lhs := len(a.unitList) + len(a.previousCorrect) + correctCount + wrongCount
	assert.LessOrEqual(t, lhs, len(a.active)+1, "P4: set-size invariant violated")
}

func TestSetSizeInvariantHoldsThroughMultiRoundPlay(t *testing.T) {
	a := newTestActor(t)
	// Presses are spaced further apart than PressThreshold so none of them is
	// taken as a double-press into multiplayer.
	clock := time.Now()
	a.clockFn = func() time.Time { return clock }
	sessions := map[uint64]*mockSession{1: {id: 1}, 2: {id: 2}, 3: {id: 3}, 4: {id: 4}}
	for id, s := range sessions {
		a.handleRegister(RegisterUnit{UnitID: id, Session: s})
		assertSetSizeInvariant(t, a)
	}
	require.Equal(t, PreGameMultiple, a.state)

	for i := 0; i < 10 && a.state != Win; i++ {
		require.NotNil(t, a.correct, "round %d: engine must have a correct target while playable", i)
		clock = clock.Add(2 * a.cfg.PressThreshold)
		a.handlePress(*a.correct)
		assertSetSizeInvariant(t, a)
	}
	assert.Equal(t, Win, a.state, "four units pressed correctly every round should converge to Win")
}

// R1 — register(u); unregister(u) restores the pre-register state.
type engineStateSnapshot struct {
	state           State
	activeCount     int
	correct         *uint64
	wrong           *uint64
	unitListLen     int
	previousCorrect int
	pressedUnits    int
}

func snapshotEngineState(a *Actor) engineStateSnapshot {
	var correct, wrong *uint64
	if a.correct != nil {
		v := *a.correct
		correct = &v
	}
	if a.wrong != nil {
		v := *a.wrong
		wrong = &v
	}
	return engineStateSnapshot{
		state:           a.state,
		activeCount:     len(a.active),
		correct:         correct,
		wrong:           wrong,
		unitListLen:     len(a.unitList),
		previousCorrect: len(a.previousCorrect),
		pressedUnits:    len(a.pressedUnits),
	}
}

func TestRegisterThenUnregisterRestoresPriorState(t *testing.T) {
	a := newTestActor(t)
	before := snapshotEngineState(a)

	sess := &mockSession{id: 42}
	a.handleRegister(RegisterUnit{UnitID: 42, Session: sess})
	require.NotEqual(t, before, snapshotEngineState(a))

	a.handleUnregister(42)
	assert.Equal(t, before, snapshotEngineState(a))
}

// R2/R3 — repeated presses on a unit already held (no intervening release)
// have no further effect beyond the first logical press.
func TestRepeatedPressesOnHeldUnitHaveNoFurtherEffect(t *testing.T) {
	a := newTestActor(t)
	sess := &mockSession{id: 7}
	a.handleRegister(RegisterUnit{UnitID: 7, Session: sess})
	require.Equal(t, PreGameSingle, a.state)

	a.handlePress(7)
	require.Equal(t, Win, a.state)
	cmdCountAfterFirstPress := len(sess.cmds)

	a.handlePress(7) // R2: a second press while still held
	assert.Equal(t, Win, a.state)
	assert.Equal(t, cmdCountAfterFirstPress, len(sess.cmds), "R2: a second press without an intervening release must not re-trigger the win effect")

	for i := 0; i < 8; i++ {
		a.handlePress(7)
	}
	assert.Equal(t, Win, a.state, "R3: ten presses on an already-held unit must not cause any further transition")
	assert.Equal(t, cmdCountAfterFirstPress, len(sess.cmds))
}
