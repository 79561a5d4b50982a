package engine

import (
	"time"

	"github.com/arcanebutton/gamemaster/sound"
	"github.com/arcanebutton/gamemaster/wire"
)

// now returns the engine's clock. Factored out so tests can stub it; not
// overridden in production.
func (a *Actor) now() time.Time {
	if a.clockFn != nil {
		return a.clockFn()
	}
	return time.Now()
}

// maxLatency returns the largest latency among the given unit ids, used to
// schedule a single "at" so a cluster-wide command fires in sync (spec
// §4.2 timestamping rule).
func (a *Actor) maxLatency(ids []uint64) float64 {
	var max float64
	for _, id := range ids {
		sess, ok := a.active[id]
		if !ok {
			continue
		}
		if l := sess.LatencySeconds(); l > max {
			max = l
		}
	}
	return max
}

// scheduleAt computes now + 100ms safety margin + latencySeconds (spec
// §4.2's timestamping rule, applied verbatim).
func (a *Actor) scheduleAt(latencySeconds float64) time.Time {
	return a.now().Add(a.cfg.ActuatorSafetyMargin).Add(time.Duration(latencySeconds * float64(time.Second)))
}

// activeIDs returns every currently registered unit_id, in map iteration
// order (callers that need determinism sort or shuffle explicitly).
func (a *Actor) activeIDs() []uint64 {
	ids := make([]uint64, 0, len(a.active))
	for id := range a.active {
		ids = append(ids, id)
	}
	return ids
}

// stopUnit enqueues BUTTON_LED/MATRIX_LED/SOUND "off"/"stop" commands to a
// single unit at the given moment.
func (a *Actor) stopUnit(id uint64, at time.Time) {
	sess, ok := a.active[id]
	if !ok {
		return
	}
	sess.Enqueue(wire.NewButtonLEDOff(at))
	sess.Enqueue(wire.NewMatrixLEDOff(at))
	sess.Enqueue(wire.NewSoundStop(at))
}

// stopAll stops every unit in ids at a single, jointly-computed "at".
func (a *Actor) stopAll(ids []uint64) {
	at := a.scheduleAt(a.maxLatency(ids))
	for _, id := range ids {
		a.stopUnit(id, at)
	}
}

// lightYellow flashes the given unit's button LED as the single-player
// "correct" target.
func (a *Actor) lightYellow(id uint64) {
	sess, ok := a.active[id]
	if !ok {
		return
	}
	at := a.scheduleAt(sess.LatencySeconds())
	sess.Enqueue(wire.NewButtonLEDStart(wire.NamedPattern("colorscroll"), at))
}

// lightRed flashes the given unit's button LED as the "wrong" decoy.
func (a *Actor) lightRed(id uint64) {
	sess, ok := a.active[id]
	if !ok {
		return
	}
	at := a.scheduleAt(sess.LatencySeconds())
	sess.Enqueue(wire.NewButtonLEDStart(wire.NamedPattern("flash_red"), at))
}

// lightAmber flashes a unit amber, used by WaitRelease presses.
func (a *Actor) lightAmber(id uint64) {
	sess, ok := a.active[id]
	if !ok {
		return
	}
	at := a.scheduleAt(sess.LatencySeconds())
	sess.Enqueue(wire.NewButtonLEDStart(wire.RGBPattern(255, 165, 0), at))
}

// lightBlueFlash is WaitRelease's recurring "please release me" reminder.
func (a *Actor) lightBlueFlash(id uint64, at time.Time) {
	sess, ok := a.active[id]
	if !ok {
		return
	}
	sess.Enqueue(wire.NewButtonLEDStart(wire.RGBPattern(0, 0, 255), at))
}

// greenPressCue re-issues the "correct press" confirmation (green flash +
// a random cue sound) on a single unit.
func (a *Actor) greenPressCue(id uint64) {
	sess, ok := a.active[id]
	if !ok {
		return
	}
	at := a.scheduleAt(sess.LatencySeconds())
	sess.Enqueue(wire.NewButtonLEDStart(wire.RGBPattern(0, 255, 0), at))
	sess.Enqueue(wire.NewSoundStart(sound.GreenPress(a.rng), at))
}

// playerCue is the multiplayer analogue of greenPressCue, using the
// player's distinctive color instead of green.
func (a *Actor) playerCue(id uint64, player int) {
	sess, ok := a.active[id]
	if !ok {
		return
	}
	at := a.scheduleAt(sess.LatencySeconds())
	c := a.playerColors[player]
	sess.Enqueue(wire.NewButtonLEDStart(wire.RGBPattern(c[0], c[1], c[2]), at))
	sess.Enqueue(wire.NewSoundStart(sound.GreenPress(a.rng), at))
}

// loseBroadcast plays the cluster-wide lose cue on every id in targets,
// synchronized on a single "at" computed from latencyBasis — spec §4.2's
// wrong-press rule schedules off "max(latency over pressed_units)" while
// the cue itself still reaches every active unit.
func (a *Actor) loseBroadcast(targets []uint64, latencyBasis []uint64) {
	at := a.scheduleAt(a.maxLatency(latencyBasis))
	for _, id := range targets {
		sess, ok := a.active[id]
		if !ok {
			continue
		}
		sess.Enqueue(wire.NewButtonLEDStart(wire.NamedPattern("flash_red"), at))
		sess.Enqueue(wire.NewSoundStart(sound.Lose(a.rng), at))
	}
}

// winBroadcast plays the cluster-wide win cue on every id in ids.
func (a *Actor) winBroadcast(ids []uint64) {
	at := a.scheduleAt(a.maxLatency(ids))
	for _, id := range ids {
		sess, ok := a.active[id]
		if !ok {
			continue
		}
		sess.Enqueue(wire.NewButtonLEDStart(wire.NamedPattern("colorscroll"), at))
		sess.Enqueue(wire.NewSoundStart(sound.Win(a.rng), at))
	}
}

// playerWinBroadcast is EndMultiplayer's color-themed cluster-wide cue for
// the winning player.
func (a *Actor) playerWinBroadcast(ids []uint64, player int) {
	at := a.scheduleAt(a.maxLatency(ids))
	pattern := "flash_yellow_player1_win"
	if player == 1 {
		pattern = "flash_blue_player2_win"
	}
	for _, id := range ids {
		sess, ok := a.active[id]
		if !ok {
			continue
		}
		sess.Enqueue(wire.NewButtonLEDStart(wire.NamedPattern(pattern), at))
		sess.Enqueue(wire.NewSoundStart(sound.Win(a.rng), at))
	}
}
