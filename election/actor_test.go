package election

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/arcanebutton/gamemaster/bollywood"
	"github.com/arcanebutton/gamemaster/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedPortListener lets a test pin a coordinator's election server to a
// specific, already-known port so the self URL embedded in GamemasterURLs
// matches what the test's own HTTP client dials.
func fixedPortListener(t *testing.T) (net.Listener, int) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	return lis, port
}

// serveHandlers mounts an Actor's three probe endpoints on a listener already
// bound to the peer URL the test expects to dial, standing in for
// transport.Server's mux without pulling in the rest of that package.
func serveHandlers(t *testing.T, lis net.Listener, status *Status) {
	t.Helper()
	mux := http.NewServeMux()
	h := NewHandlers(status)
	mux.HandleFunc("/gamemaster", h.Gamemaster)
	mux.HandleFunc("/request_gamemaster", h.RequestGamemaster)
	mux.HandleFunc("/alive", h.Alive)
	srv := &http.Server{Handler: mux}
	go srv.Serve(lis)
	t.Cleanup(func() { srv.Close() })
}

func testCfg(url string, priority int, peers []string) config.Config {
	cfg := config.Default()
	cfg.URL = url
	cfg.Priority = priority
	cfg.GamemasterURLs = peers
	cfg.ProbeTimeout = 200 * time.Millisecond
	cfg.InitialRetry = 30 * time.Millisecond
	cfg.IntentRepoll = 30 * time.Millisecond
	cfg.GamemasterIdle = 30 * time.Millisecond
	return cfg
}

func TestSoleCoordinatorBecomesGamemaster(t *testing.T) {
	eng := bollywood.NewEngine()
	defer eng.Shutdown(time.Second)

	cfg := testCfg("127.0.0.1", 1, []string{"127.0.0.1"})
	a := New(cfg, zerolog.Nop())
	pid := eng.Spawn(bollywood.NewProps(a.Producer()))
	require.NotNil(t, pid)

	require.Eventually(t, func() bool {
		state, _, _, _ := a.Status().Snapshot()
		return state == Gamemaster
	}, time.Second, 10*time.Millisecond)

	assert.NotNil(t, a.GamePID())
}

func TestLowerPriorityCoordinatorDefersToActivePeer(t *testing.T) {
	eng := bollywood.NewEngine()
	defer eng.Shutdown(time.Second)

	peerLis, peerPort := fixedPortListener(t)
	// peerURL is a bare host, matching how peerBase/notifyGMFail append the
	// election port themselves rather than expecting it embedded already.
	peerURL := "127.0.0.1"

	peerStatus := newStatus(peerURL, 1)
	peerStatus.set(Gamemaster, peerURL)
	serveHandlers(t, peerLis, peerStatus)

	cfg := testCfg("self", 5, []string{"self", peerURL})
	cfg.PeerPort = peerPort
	a := New(cfg, zerolog.Nop())
	pid := eng.Spawn(bollywood.NewProps(a.Producer()))
	require.NotNil(t, pid)

	require.Eventually(t, func() bool {
		state, _, _, active := a.Status().Snapshot()
		return state == Intent && active == peerURL
	}, time.Second, 10*time.Millisecond)

	assert.Nil(t, a.GamePID())
}

func TestHandlePeerGMFailStepsDownOnlyWhileGamemaster(t *testing.T) {
	// Constructed directly, never spawned: the point of this test is the
	// synchronous stepDown/stepEnd/enterInitial chain, not the background
	// re-election a live actor would immediately run afterwards. self/engine
	// are set to an unregistered PID on a scratch engine so the control
	// task's fireSelf call (a background goroutine) has somewhere safe to
	// Send into — the engine simply drops the message since nothing is
	// registered under that PID.
	cfg := config.Default()
	cfg.URL = "self"
	a := New(cfg, zerolog.Nop())
	a.engine = bollywood.NewEngine()
	a.self = &bollywood.PID{ID: "unregistered-test-pid"}

	a.state = Intent
	a.handlePeerGMFail()
	assert.Equal(t, Intent, a.state, "a non-Gamemaster coordinator ignores GM_FAIL")

	a.state = Gamemaster
	a.activeURL = "self"
	a.status.set(Gamemaster, "self")
	a.handlePeerGMFail()
	assert.Equal(t, Initial, a.state, "stepDown falls through End back to Initial")
	assert.Nil(t, a.gamePID)
}

func TestHandlersReflectStatusSnapshot(t *testing.T) {
	status := newStatus("self-url", 7)
	h := NewHandlers(status)

	rec := httptest.NewRecorder()
	h.Gamemaster(rec, httptest.NewRequest(http.MethodGet, "/gamemaster", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7\n", rec.Body.String())

	status.set(Gamemaster, "self-url")
	rec = httptest.NewRecorder()
	h.Gamemaster(rec, httptest.NewRequest(http.MethodGet, "/gamemaster", nil))
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Alive(rec, httptest.NewRequest(http.MethodGet, "/alive", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "self-url\n", rec.Body.String())
}

func TestRequestGamemasterHandlerContestsDuringIntent(t *testing.T) {
	status := newStatus("self-url", 2)
	status.set(Intent, "peer-url")
	h := NewHandlers(status)

	rec := httptest.NewRecorder()
	h.RequestGamemaster(rec, httptest.NewRequest(http.MethodGet, "/request_gamemaster", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSortCandidatesByPriorityAscending(t *testing.T) {
	cs := []candidate{{url: "c", priority: 3}, {url: "a", priority: 1}, {url: "b", priority: 2}}
	sortCandidatesByPriority(cs)
	assert.Equal(t, []candidate{{url: "a", priority: 1}, {url: "b", priority: 2}, {url: "c", priority: 3}}, cs)
}

func TestPeerBaseFormatsURL(t *testing.T) {
	assert.Equal(t, "http://host:"+strconv.Itoa(8002), peerBase("host", 8002))
}
