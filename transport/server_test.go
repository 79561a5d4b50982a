package transport

import (
	"testing"
	"time"

	"github.com/arcanebutton/gamemaster/bollywood"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingActor is a minimal bollywood.Actor that just counts how many
// messages arrive, of any type, enough to verify doneNotifyingActor
// delegates before closing done.
type recordingActor struct {
	receives int
}

func (r *recordingActor) Receive(ctx bollywood.Context) {
	r.receives++
}

func TestDoneNotifyingActorClosesDoneOnlyOnStopped(t *testing.T) {
	eng := bollywood.NewEngine()
	defer eng.Shutdown(time.Second)

	inner := &recordingActor{}
	done := make(chan struct{})
	producer := wrapWithDone(func() bollywood.Actor { return inner }, done)
	pid := eng.Spawn(bollywood.NewProps(producer))
	require.NotNil(t, pid)

	select {
	case <-done:
		t.Fatal("done closed before Stop was requested")
	case <-time.After(30 * time.Millisecond):
	}

	eng.Stop(pid)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done was never closed after Stop")
	}

	assert.GreaterOrEqual(t, inner.receives, 3, "Started, Stopping, and Stopped should all have reached the inner actor")
}

func TestPortAddrFormatsColonPrefix(t *testing.T) {
	assert.Equal(t, ":8002", portAddr(8002))
	assert.Equal(t, ":8001", portAddr(8001))
}
