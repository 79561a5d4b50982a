package engine

import "github.com/arcanebutton/gamemaster/wire"

// startMultiplayerTransfer is the double-press-detected entry point (spec
// §4.2 "Double-press -> Multiplayer"): stop everything immediately, then
// hand the 1s partition delay to PreGameMultiplayer's control task.
func (a *Actor) startMultiplayerTransfer() {
	a.stopAll(a.activeIDs())
	a.state = PreGameMultiplayer
	a.startPreGameMultiplayerTask()
}

// beginPlayingMultiplayer partitions the active population into two equal
// (±1) halves, resets round bookkeeping, lights each player's first
// target, and enters PlayingMultiplayer (spec §4.2 steps 3-6).
func (a *Actor) beginPlayingMultiplayer() {
	ids := a.activeIDs()
	a.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	mid := len(ids) / 2

	a.playerScores = [2]int{}
	a.previousCorrect = make(map[uint64]struct{})
	a.playerQueues[0] = append([]uint64(nil), ids[:mid]...)
	a.playerQueues[1] = append([]uint64(nil), ids[mid:]...)
	a.correctUnits[0] = nil
	a.correctUnits[1] = nil

	a.nextCorrectMulti(0)
	a.nextCorrectMulti(1)

	a.state = PlayingMultiplayer
	a.startPlayingMultiplayerTask()
}

// nextCorrectMulti pops player p's next target off its queue and lights it
// with that player's distinctive button + matrix pattern (spec §4.2 step 5
// and "PlayingMultiplayer press semantics"), or clears correct_units[p] if
// the queue is exhausted.
func (a *Actor) nextCorrectMulti(p int) {
	if len(a.playerQueues[p]) == 0 {
		a.correctUnits[p] = nil
		return
	}
	id := a.playerQueues[p][0]
	a.playerQueues[p] = a.playerQueues[p][1:]
	a.correctUnits[p] = &id
	a.lightPlayerTarget(id, p)
}

// lightPlayerTarget lights a unit with player p's distinctive
// "flash_yellow_player1_win"/"swipe_yellow" (player 0) or
// "flash_blue_player2_win"/"swipe_blue" (player 1) pattern pair.
func (a *Actor) lightPlayerTarget(id uint64, p int) {
	sess, ok := a.active[id]
	if !ok {
		return
	}
	buttonPattern, matrixPattern := "flash_yellow_player1_win", "swipe_yellow"
	if p == 1 {
		buttonPattern, matrixPattern = "flash_blue_player2_win", "swipe_blue"
	}
	at := a.scheduleAt(sess.LatencySeconds())
	sess.Enqueue(wire.NewButtonLEDStart(wire.NamedPattern(buttonPattern), at))
	sess.Enqueue(wire.NewMatrixLEDStart(wire.NamedPattern(matrixPattern), at))
}

// pressPlayingMultiplayer implements spec §4.2 "PlayingMultiplayer press
// semantics".
func (a *Actor) pressPlayingMultiplayer(id uint64) {
	player := -1
	if a.correctUnits[0] != nil && *a.correctUnits[0] == id {
		player = 0
	} else if a.correctUnits[1] != nil && *a.correctUnits[1] == id {
		player = 1
	}
	if player < 0 {
		return
	}

	a.playerScores[player]++
	a.playerCue(id, player)
	a.previousCorrect[id] = struct{}{}
	a.nextCorrectMulti(player)

	if a.playerScores[player] >= ceilHalf(len(a.active)) {
		a.state = EndMultiplayer
		a.startEndMultiplayerTask(player)
		return
	}
	a.startPlayingMultiplayerTask()
}
