package engine

// controlTask is the single in-flight timer-driven activity a state may own
// (spec §3, §9 "Control-task slot"). Replacing the slot synchronously
// cancels the previous task and waits for it to exit before installing the
// next one, generalizing the teacher's ticker+stopCh idiom
// (GameActor.startTickers/stopTickers) from a fixed ticker to an arbitrary
// per-state goroutine.
type controlTask struct {
	stop chan struct{}
	done chan struct{}
}

// replaceControlTask cancels any running task (P6: "every state entry
// cancels its predecessor's control_task before installing a replacement"),
// then starts fn in a fresh goroutine as the new task, identified by the
// returned generation. fn must select on stop and return promptly when it
// closes; when it fires for real it should send controlTaskFired{gen} back
// to the actor so Receive can discard a fire that raced a cancellation.
func (a *Actor) replaceControlTask(fn func(stop <-chan struct{}, gen uint64)) uint64 {
	a.cancelControlTask()

	a.generation++
	gen := a.generation

	t := &controlTask{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	a.task = t

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		fn(stop, gen)
	}(t.stop, t.done)

	return gen
}

// currentGeneration reports the generation of the live control task, for
// Receive to validate an incoming controlTaskFired against.
func (a *Actor) currentGeneration() uint64 {
	return a.generation
}

// cancelControlTask cancels the current task, if any, and waits for its
// goroutine to exit before returning — the "cancel + await" half of the
// slot-replacement invariant.
func (a *Actor) cancelControlTask() {
	if a.task == nil {
		return
	}
	t := a.task
	a.task = nil
	select {
	case <-t.stop:
		// already closed, e.g. cancelControlTask called twice
	default:
		close(t.stop)
	}
	<-t.done
}

// hasControlTask reports whether a control task is currently installed,
// supporting P1 ("at most one control_task exists at any observation
// point") in tests.
func (a *Actor) hasControlTask() bool {
	return a.task != nil
}
