package engine

import "github.com/arcanebutton/gamemaster/bollywood"

// SessionHandle is the Engine's view of a Unit Session: enough to schedule
// outbound commands and read its latency estimate, without the engine
// package needing to import the unit package (*unit.SessionActor satisfies
// this interface and passes itself in RegisterUnit).
type SessionHandle interface {
	// Enqueue appends an outbound command to the session's FIFO queue.
	// Never blocks, never drops the command.
	Enqueue(cmd any)
	// LatencySeconds returns the last-measured one-way latency estimate,
	// or 0 if none has been observed yet.
	LatencySeconds() float64
	// PID identifies the session actor for logging/bookkeeping.
	PID() *bollywood.PID
}

// RegisterUnit is sent by a Unit Session when a fresh REGISTER frame
// establishes a unit_id on a session.
type RegisterUnit struct {
	UnitID  uint64
	Session SessionHandle
}

// UnregisterUnit is sent on UNREGISTER, on transport loss, or on a duplicate
// REGISTER replacing a prior binding.
type UnregisterUnit struct {
	UnitID uint64
}

// ButtonPressed/ButtonReleased are raised by a Unit Session forwarding a
// BUTTON_PRESSED/BUTTON_RELEASED frame.
type ButtonPressed struct {
	UnitID uint64
}

type ButtonReleased struct {
	UnitID uint64
}

// controlTaskFired is the internal self-addressed message a running control
// task sends when its timer elapses. generation guards against a task that
// fired concurrently with being replaced.
type controlTaskFired struct {
	generation uint64
}
