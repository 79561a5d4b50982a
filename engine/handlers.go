package engine

// handleRegister binds a fresh unit_id to a session (spec §4.2
// "Registration"), replacing any prior binding for the same id (P3), and
// drives the NoUnits/PreGameSingle/PreGameMultiple entry rules.
func (a *Actor) handleRegister(msg RegisterUnit) {
	a.active[msg.UnitID] = msg.Session

	switch a.state {
	case NoUnits:
		a.state = PreGameSingle
		a.startPreGameSingleTask()
	case PreGameSingle:
		if len(a.active) > 1 {
			a.state = PreGameMultiple
			a.startPreGameMultipleTask()
		} else {
			// still exactly one unit (duplicate REGISTER replacing the same
			// binding) — re-enter PreGameSingle's pick.
			a.startPreGameSingleTask()
		}
	}

	// Newly registered units are immediately told to stop all actuators
	// (spec §4.2 "Registration"), regardless of the state transition above.
	a.stopUnit(msg.UnitID, a.scheduleAt(msg.Session.LatencySeconds()))
}

// handleUnregister removes a unit_id from every engine-owned collection and
// recomputes whichever aggregate state its departure implies (spec §4.2
// "Unregistration"), grounded verbatim on gamemaster.py's `unregister`.
func (a *Actor) handleUnregister(id uint64) {
	if _, ok := a.active[id]; !ok {
		return
	}
	delete(a.active, id)
	delete(a.previousCorrect, id)
	delete(a.pressedUnits, id)

	if a.containsUnitList(id) {
		a.removeFromUnitList(id)
	} else if a.correct != nil && *a.correct == id {
		a.nextCorrect()
		a.nextWrong()
	}
	if a.wrong != nil && *a.wrong == id {
		a.nextWrong()
	}

	switch {
	case len(a.active) == 0:
		a.cancelControlTask()
		a.state = NoUnits
	case a.state == PreGameMultiple && len(a.active) == 1:
		a.state = PreGameSingle
		a.startPreGameSingleTask()
	case a.state == Playing && len(a.active) == 1:
		a.enterWin()
	}
}

func (a *Actor) containsUnitList(id uint64) bool {
	for _, v := range a.unitList {
		if v == id {
			return true
		}
	}
	return false
}

// handlePress dispatches a BUTTON_PRESSED event per spec §4.2's per-state
// press semantics. Timeout drops every press (P5); every other state first
// re-records membership in pressed_units, then the fast-press-to-multiplayer
// guard runs ahead of the ordinary per-state dispatch, replicating
// gamemaster.py's `button_pressed` placement (SPEC_FULL.md's "Double-press
// check placement" resolution) rather than nesting it under the "pressed
// unit = correct" branch as spec.md's prose groups it.
func (a *Actor) handlePress(id uint64) {
	if a.state == Timeout {
		return
	}
	if _, ok := a.active[id]; !ok {
		return
	}

	if a.correct != nil && *a.correct == id && (a.state == Playing || a.state == PlayingAllReleased) {
		if a.isFastPress() {
			a.pressedUnits[id] = struct{}{}
			a.startMultiplayerTransfer()
			return
		}
	}

	a.pressedUnits[id] = struct{}{}

	switch a.state {
	case PreGameSingle:
		a.enterWin()
	case PreGameMultiple:
		a.pressPreGameMultiple(id)
	case Playing:
		a.pressPlaying(id)
	case PlayingAllReleased:
		a.pressPlayingAllReleased(id)
	case WaitRelease:
		a.lightAmber(id)
	case PlayingMultiplayer:
		a.pressPlayingMultiplayer(id)
	// Lose, Win, EndMultiplayer, PreGameMultiplayer, NoUnits: ignored.
	default:
	}
}

// isFastPress reports whether the current press arrived within
// press_threshold_seconds of the previous one, updating last_press_time as
// a side effect exactly as gamemaster.py's `_is_fast_press` does (the first
// ever press never counts as fast).
func (a *Actor) isFastPress() bool {
	now := a.now()
	if a.lastPressTime.IsZero() {
		a.lastPressTime = now
		return false
	}
	fast := now.Sub(a.lastPressTime) < a.cfg.PressThreshold
	a.lastPressTime = now
	return fast
}

// pressPreGameMultiple implements spec §4.2 "Press semantics —
// PreGameMultiple".
func (a *Actor) pressPreGameMultiple(id uint64) {
	if a.correct == nil || *a.correct != id {
		return
	}
	a.greenPressCue(id)
	a.previousCorrect[id] = struct{}{}
	a.lastPressTime = a.now()
	a.setupRound()
	a.removeFromUnitList(id)
	a.nextCorrect()
	a.nextWrong()
	a.state = Playing
}

// pressPlaying implements spec §4.2 "Press semantics — Playing /
// PlayingAllReleased", tie-break order previous_correct -> wrong -> correct.
func (a *Actor) pressPlaying(id uint64) {
	switch {
	case a.inPreviousCorrect(id):
		a.greenPressCue(id)
	case a.wrong != nil && *a.wrong == id:
		a.loseOnPress()
	case a.correct != nil && *a.correct == id:
		if len(a.unitList) == 0 {
			a.enterWin()
			return
		}
		a.greenPressCue(id)
		a.previousCorrect[id] = struct{}{}
		a.nextCorrect()
		a.nextWrong()
	}
}

// pressPlayingAllReleased mirrors pressPlaying but returns to Playing on a
// previous-correct re-press or a fresh correct press, cancelling
// PlayingAllReleased's inactivity timer in both cases, per spec §4.2.
func (a *Actor) pressPlayingAllReleased(id uint64) {
	switch {
	case a.inPreviousCorrect(id):
		a.greenPressCue(id)
		a.state = Playing
		a.cancelControlTask()
	case a.wrong != nil && *a.wrong == id:
		a.loseOnPress()
	case a.correct != nil && *a.correct == id:
		a.previousCorrect[id] = struct{}{}
		if len(a.unitList) == 0 {
			a.enterWin()
			return
		}
		a.greenPressCue(id)
		a.nextCorrect()
		a.nextWrong()
		a.state = Playing
		a.cancelControlTask()
	}
}

func (a *Actor) inPreviousCorrect(id uint64) bool {
	_, ok := a.previousCorrect[id]
	return ok
}

// loseOnPress is the shared "pressed the decoy" path for Playing and
// PlayingAllReleased (spec §4.2 item 2).
func (a *Actor) loseOnPress() {
	a.loseBroadcast(a.activeIDs(), a.pressedIDs())
	a.state = Lose
	a.startLoseTask()
}

func (a *Actor) pressedIDs() []uint64 {
	ids := make([]uint64, 0, len(a.pressedUnits))
	for id := range a.pressedUnits {
		ids = append(ids, id)
	}
	return ids
}

// enterWin transitions to Win, installing its cluster-wide cue + dwell
// control task.
func (a *Actor) enterWin() {
	a.state = Win
	a.startWinTask()
}

// handleRelease dispatches a BUTTON_RELEASED event (spec §4.2 "Release
// semantics"). Timeout ignores releases too (P5).
func (a *Actor) handleRelease(id uint64) {
	if a.state == Timeout {
		return
	}
	if _, ok := a.active[id]; !ok {
		return
	}
	delete(a.pressedUnits, id)

	switch a.state {
	case Playing:
		if len(a.pressedUnits) == 0 {
			a.state = PlayingAllReleased
			a.startPlayingAllReleasedTask()
		}
	case WaitRelease:
		a.stopUnit(id, a.scheduleAt(a.sessionLatency(id)))
		delete(a.previousCorrect, id)
		if len(a.pressedUnits) == 0 {
			a.cancelControlTask()
			if len(a.active) > 1 {
				a.state = PreGameMultiple
				a.startPreGameMultipleTask()
			} else if len(a.active) == 1 {
				a.state = PreGameSingle
				a.startPreGameSingleTask()
			}
		}
	// PreGameSingle, PreGameMultiple, Lose, Win: no-op releases.
	default:
	}
}

func (a *Actor) sessionLatency(id uint64) float64 {
	if sess, ok := a.active[id]; ok {
		return sess.LatencySeconds()
	}
	return 0
}
