package engine

// This file installs the per-state control_task goroutines (spec §3, §9).
// Every installer follows the same shape: perform whatever state-entry
// mutation/broadcast is due *synchronously*, on the Receive goroutine, then
// call replaceControlTask with a goroutine whose only job is to sleep and
// report back via controlTaskFired — state is never touched off the
// Receive goroutine (spec §5 "Engine event handlers ... do NOT suspend").

// startPreGameSingleTask picks one unit at random and lights it yellow
// (spec §4.2 "PreGameSingle control task"). The installed task does
// nothing further; it only exists to hold the control-task slot so a later
// registration or press can cancel it.
func (a *Actor) startPreGameSingleTask() {
	if a.correct != nil {
		a.stopUnit(*a.correct, a.scheduleAt(a.sessionLatency(*a.correct)))
	}
	id, ok := a.pickRandomActive(nil)
	if ok {
		a.correct = &id
		a.lightYellow(id)
	} else {
		a.correct = nil
	}

	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		<-stop
	})
}

// startPreGameMultipleTask performs the attractor's first pick immediately,
// then installs a task that re-fires every PreGameMultipleRotate (spec
// §4.2 "PreGameMultiple control task").
func (a *Actor) startPreGameMultipleTask() {
	a.rotatePreGameMultipleTarget()

	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		for {
			if !sleepOrCancel(stop, a.cfg.PreGameMultipleRotate) {
				return
			}
			a.fireSelf(gen)
		}
	})
}

// rotatePreGameMultipleTarget stops the current correct target (if any) and
// lights a newly, uniformly chosen one, excluding the current target when
// more than one unit is active.
func (a *Actor) rotatePreGameMultipleTarget() {
	if a.correct != nil {
		a.stopUnit(*a.correct, a.scheduleAt(a.sessionLatency(*a.correct)))
	}
	id, ok := a.pickRandomActive(a.correct)
	if !ok {
		a.correct = nil
		return
	}
	a.correct = &id
	a.lightYellow(id)
}

// startPlayingAllReleasedTask installs the 15s inactivity timer that, left
// unopposed, falls through to Timeout (spec §4.2 "Timer-driven states").
func (a *Actor) startPlayingAllReleasedTask() {
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.PlayingAllReleasedTTL) {
			return
		}
		a.fireSelf(gen)
	})
}

// startWaitReleaseTask repeatedly reminds every still-held unit to release
// by flashing it blue, every WaitReleaseFlashAfter, until every button is
// let go (spec §4.2 "WaitRelease (entered only via end-of-game paths)").
func (a *Actor) startWaitReleaseTask() {
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		for {
			if !sleepOrCancel(stop, a.cfg.WaitReleaseFlashAfter) {
				return
			}
			a.fireSelf(gen)
		}
	})
}

// startLoseTask installs Lose's two-phase dwell (spec §4.2 "Lose", SPEC_FULL
// §4.2's resolved sleep-ordering open question: play -> wait -> stop ->
// wait -> return). The lose cue itself was already scheduled by the press
// handler that transitioned into Lose (spec §4.2 item 2), so this installer
// only owns the dwell/stop/dwell/return half.
func (a *Actor) startLoseTask() {
	a.roundPhase = 0
	a.armRoundDwell()
}

// startWinTask emits the cluster-wide win cue and installs the same
// two-phase dwell shape as Lose.
func (a *Actor) startWinTask() {
	a.winBroadcast(a.activeIDs())
	a.roundPhase = 0
	a.armRoundDwell()
}

// armRoundDwell installs one EndRoundDwell-long sleep; handleControlTaskFired
// advances a.roundPhase and re-arms a second dwell before finally returning
// to attract mode, shared by Lose and Win.
func (a *Actor) armRoundDwell() {
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.EndRoundDwell) {
			return
		}
		a.fireSelf(gen)
	})
}

// startTimeoutTask emits the cluster-wide lose cue and installs Timeout's
// single TimeoutStopDelay dwell before stopping all actuators and falling
// through to attract mode (spec §4.2 "Timeout").
func (a *Actor) startTimeoutTask() {
	a.loseBroadcast(a.activeIDs(), a.activeIDs())
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.TimeoutStopDelay) {
			return
		}
		a.fireSelf(gen)
	})
}

// enterTimeout transitions into Timeout and starts its control task, used
// both by PlayingAllReleased's 15s inactivity timer and by
// PlayingMultiplayer's (spec doesn't separate the two; both inactivity
// timers fall through the same cluster-wide-lose/4s-stop/attract path).
func (a *Actor) enterTimeout() {
	a.state = Timeout
	a.startTimeoutTask()
}

// startPreGameMultiplayerTask installs the 1s partition delay ahead of
// PlayingMultiplayer (SPEC_FULL.md's "PreGameMultiplayer's control-task
// looseness" resolution: the delay is itself the control task, rather than
// the original's fire-and-forget goroutine).
func (a *Actor) startPreGameMultiplayerTask() {
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.MultiplayerPartitionDelay) {
			return
		}
		a.fireSelf(gen)
	})
}

// startPlayingMultiplayerTask installs PlayingMultiplayer's 15s inactivity
// timer, restarted after every correct press (spec §4.2 "PlayingMultiplayer
// press semantics").
func (a *Actor) startPlayingMultiplayerTask() {
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.PlayingAllReleasedTTL) {
			return
		}
		a.fireSelf(gen)
	})
}

// startEndMultiplayerTask emits the winning player's cluster-wide cue and
// installs a single EndRoundDwell dwell before stopping all actuators and
// leaving through returnToAttractOrWait, with no second dwell —
// SPEC_FULL.md's resolved asymmetry versus Lose/Win's double dwell.
func (a *Actor) startEndMultiplayerTask(player int) {
	a.playerWinBroadcast(a.activeIDs(), player)
	a.replaceControlTask(func(stop <-chan struct{}, gen uint64) {
		if !sleepOrCancel(stop, a.cfg.EndRoundDwell) {
			return
		}
		a.fireSelf(gen)
	})
}

// handleControlTaskFired is invoked on the Receive goroutine whenever a
// still-current control task reports its timer elapsed. Dispatch is keyed
// on the current state; roundPhase distinguishes Lose/Win's two dwell
// phases (P6: the prior task is always cancelled, inside replaceControlTask,
// before any of these branches installs its replacement).
func (a *Actor) handleControlTaskFired() {
	switch a.state {
	case PreGameMultiple:
		a.rotatePreGameMultipleTarget()

	case PlayingAllReleased:
		a.enterTimeout()

	case WaitRelease:
		for id := range a.pressedUnits {
			a.lightBlueFlash(id, a.scheduleAt(a.sessionLatency(id)))
		}

	case Timeout:
		a.stopAll(a.activeIDs())
		a.returnToAttractOrWait()

	case Lose, Win:
		if a.roundPhase == 0 {
			a.stopAll(a.activeIDs())
			a.roundPhase = 1
			a.armRoundDwell()
			return
		}
		a.returnToAttractOrWait()

	case PreGameMultiplayer:
		a.beginPlayingMultiplayer()

	case PlayingMultiplayer:
		a.enterTimeout()

	case EndMultiplayer:
		a.stopAll(a.activeIDs())
		a.playerScores = [2]int{}
		a.returnToAttractOrWait()
	}
}

// returnToAttractOrWait is the shared "where do we go after a round ends"
// decision (spec §4.2's Lose/Win/Timeout/EndMultiplayer endings, and
// SPEC_FULL.md's generalized WaitRelease-gating resolution): if any unit is
// still held down, wait for it; otherwise route by population.
func (a *Actor) returnToAttractOrWait() {
	// previous_correct always resets when the engine leaves an end-of-round
	// state, generalizing gamemaster.py's Lose/Win-only reset (Timeout and
	// EndMultiplayer left it stale in the original) so every return path is
	// consistent, per SPEC_FULL.md's design notes.
	a.previousCorrect = make(map[uint64]struct{})

	if len(a.pressedUnits) > 0 {
		a.state = WaitRelease
		a.startWaitReleaseTask()
		return
	}
	switch {
	case len(a.active) == 0:
		a.cancelControlTask()
		a.state = NoUnits
	case len(a.active) == 1:
		a.state = PreGameSingle
		a.startPreGameSingleTask()
	default:
		a.state = PreGameMultiple
		a.startPreGameMultipleTask()
	}
}
