package election

import (
	"fmt"
	"net/http"
)

// Handlers exposes the three peer-probe endpoints spec §4.3 requires every
// coordinator to serve, reading only from the shared Status snapshot so a
// probing peer's HTTP goroutine never touches the FSM's own mailbox.
type Handlers struct {
	status *Status
}

// NewHandlers wraps an Actor's Status for mounting onto transport's mux.
func NewHandlers(status *Status) *Handlers { return &Handlers{status: status} }

// Gamemaster answers GET /gamemaster: this coordinator's priority, 302 if
// it is the active gamemaster, 200 otherwise.
func (h *Handlers) Gamemaster(w http.ResponseWriter, r *http.Request) {
	state, priority, _, _ := h.status.Snapshot()
	if state == Gamemaster {
		w.WriteHeader(http.StatusFound)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	fmt.Fprintf(w, "%d\n", priority)
}

// RequestGamemaster answers GET /request_gamemaster: 200 if willing to
// yield (Initial/End), 409 if contesting (Intent), 302 if already active.
func (h *Handlers) RequestGamemaster(w http.ResponseWriter, r *http.Request) {
	state, priority, _, _ := h.status.Snapshot()
	switch state {
	case Gamemaster:
		w.WriteHeader(http.StatusFound)
	case Intent:
		w.WriteHeader(http.StatusConflict)
	default: // Initial, End
		w.WriteHeader(http.StatusOK)
	}
	fmt.Fprintf(w, "%d\n", priority)
}

// Alive answers GET /alive: 302 + own URL if active, 200 + the known
// active peer's URL otherwise (spec.md's corrected election semantics —
// this is the endpoint a prober consults to tell "peer exists" from
// "peer is the active gamemaster" apart).
func (h *Handlers) Alive(w http.ResponseWriter, r *http.Request) {
	state, _, selfURL, activeURL := h.status.Snapshot()
	if state == Gamemaster {
		w.WriteHeader(http.StatusFound)
		fmt.Fprintf(w, "%s\n", selfURL)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s\n", activeURL)
}
