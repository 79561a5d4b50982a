package engine

// pickRandomActive returns a uniformly random unit_id from active, excluding
// the optional exclude id if more than one candidate remains. Grounded on
// gamemaster.py's `_control_PreGameSingle`/`_control_PreGameMultiple`
// `random.choice(list(self.ACTIVE.keys()))` loop.
func (a *Actor) pickRandomActive(exclude *uint64) (uint64, bool) {
	candidates := make([]uint64, 0, len(a.active))
	for id := range a.active {
		if exclude != nil && id == *exclude {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		if exclude != nil {
			if _, ok := a.active[*exclude]; ok {
				return *exclude, true
			}
		}
		return 0, false
	}
	return candidates[a.rng.Intn(len(candidates))], true
}

// setupRound shuffles every active unit_id into unit_list, the ordered
// remaining-target queue for the round about to start (gamemaster.py's
// `_setup_game`).
func (a *Actor) setupRound() {
	ids := a.activeIDs()
	a.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	a.unitList = ids
}

// removeFromUnitList deletes id from unit_list, preserving order.
func (a *Actor) removeFromUnitList(id uint64) {
	for i, v := range a.unitList {
		if v == id {
			a.unitList = append(a.unitList[:i], a.unitList[i+1:]...)
			return
		}
	}
}

// nextCorrect pops the front of unit_list into correct and lights it yellow,
// or clears correct if the list is empty (gamemaster.py's `_next_correct`).
func (a *Actor) nextCorrect() {
	if len(a.unitList) == 0 {
		a.correct = nil
		return
	}
	id := a.unitList[0]
	a.unitList = a.unitList[1:]
	a.correct = &id
	a.lightYellow(id)
}

// nextWrong picks a new decoy from unit_list's remaining entries
// (gamemaster.py's `_next_wrong`: `random.choice(self.unit_list)`), stopping
// the previous decoy first unless it transiently coincides with the new
// correct target (spec §9's tie transient — no spurious stop_all against the
// unit that is now lit yellow).
func (a *Actor) nextWrong() {
	if len(a.unitList) == 0 {
		a.wrong = nil
		return
	}
	if a.wrong != nil && (a.correct == nil || *a.wrong != *a.correct) {
		a.stopUnit(*a.wrong, a.scheduleAt(a.sessionLatency(*a.wrong)))
	}
	id := a.unitList[a.rng.Intn(len(a.unitList))]
	a.wrong = &id
	a.lightRed(id)
}

// ceilHalf computes ceil(n/2), the multiplayer win threshold per spec §4.2's
// explicit "player_scores[p] >= |active|/2" rounded up rather than the
// original's floor division (documented as a deviation in SPEC_FULL.md).
func ceilHalf(n int) int {
	return (n + 1) / 2
}
