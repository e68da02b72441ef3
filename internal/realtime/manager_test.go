package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdeck/internal/protocol"
)

func TestBackoffPolicy_DelaySchedule(t *testing.T) {
	p := BackoffPolicy{BaseDelay: 1 * time.Second, MaxDelay: 30 * time.Second}

	want := []time.Duration{
		1 * time.Second,  // attempt 0
		2 * time.Second,  // attempt 1
		4 * time.Second,  // attempt 2
		8 * time.Second,  // attempt 3
		16 * time.Second, // attempt 4
		30 * time.Second, // attempt 5 (capped)
		30 * time.Second, // attempt 6 (stays capped)
	}
	for i, w := range want {
		assert.Equal(t, w, p.DelayFor(i), "attempt %d", i)
	}

	// Monotonically non-decreasing over a long run.
	prev := time.Duration(0)
	for i := 0; i < 40; i++ {
		d := p.DelayFor(i)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
}

// testGateway is an in-process websocket endpoint for exercising the manager.
type testGateway struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received chan []byte
	dials    int32

	// rejectHTTP makes the handler refuse the upgrade with a 500.
	rejectHTTP atomic.Bool
	// closeCode, when non-zero, closes each accepted connection immediately
	// with that code instead of reading from it.
	closeCode atomic.Int32
}

func newTestGateway(t *testing.T) *testGateway {
	g := &testGateway{received: make(chan []byte, 64)}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.dials, 1)
		if g.rejectHTTP.Load() {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conns = append(g.conns, conn)
		g.mu.Unlock()

		if code := g.closeCode.Load(); code != 0 {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(int(code), ""), deadline)
			_ = conn.Close()
			return
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			g.received <- raw
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *testGateway) wsURL() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *testGateway) dialCount() int32 {
	return atomic.LoadInt32(&g.dials)
}

// dropConnections force-closes every accepted connection without a close
// frame, simulating an abnormal transport failure.
func (g *testGateway) dropConnections() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		_ = c.Close()
	}
	g.conns = nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func newTestManager(g *testGateway) *Manager {
	return NewManager(Options{
		URL:       g.wsURL(),
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  50 * time.Millisecond,
	}, NewRouter(nil))
}

func recvQuery(t *testing.T, g *testGateway) protocol.Query {
	t.Helper()
	select {
	case raw := <-g.received:
		var f struct {
			Type string         `json:"type"`
			Data protocol.Query `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &f))
		require.Equal(t, "query", f.Type)
		return f.Data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query")
		return protocol.Query{}
	}
}

func TestConnect_TransitionsToConnected(t *testing.T) {
	g := newTestGateway(t)
	m := newTestManager(g)

	assert.Equal(t, StatusDisconnected, m.Status())
	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return m.Status() == StatusConnected }, "connected")

	// Connect is a no-op while connected.
	m.Connect()
	assert.Equal(t, StatusConnected, m.Status())
	assert.EqualValues(t, 1, g.dialCount())

	m.Disconnect()
	assert.Equal(t, StatusDisconnected, m.Status())
}

func TestSend_QueuesWhileDisconnectedAndFlushesFIFO(t *testing.T) {
	g := newTestGateway(t)
	m := newTestManager(g)

	// Sending while disconnected queues and implicitly connects.
	for _, text := range []string{"first", "second", "third"} {
		res := m.Send(protocol.Query{AgentID: "a1", Message: text})
		assert.Equal(t, Queued, res)
	}

	for _, want := range []string{"first", "second", "third"} {
		q := recvQuery(t, g)
		assert.Equal(t, want, q.Message)
	}

	// Nothing duplicated.
	select {
	case raw := <-g.received:
		t.Fatalf("unexpected extra message: %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSend_WhileConnectedIsImmediate(t *testing.T) {
	g := newTestGateway(t)
	m := newTestManager(g)

	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return m.Status() == StatusConnected }, "connected")

	res := m.Send(protocol.Query{AgentID: "a1", Message: "hi"})
	assert.Equal(t, Sent, res)
	q := recvQuery(t, g)
	assert.Equal(t, "hi", q.Message)
}

func TestAbnormalClose_ReconnectsAndRedeliversQueue(t *testing.T) {
	g := newTestGateway(t)
	m := newTestManager(g)

	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return m.Status() == StatusConnected }, "connected")

	g.dropConnections()
	waitFor(t, 2*time.Second, func() bool {
		s := m.Status()
		return s == StatusReconnecting || s == StatusConnected
	}, "reconnecting")

	// Intent issued during the outage is queued and delivered after the
	// retry succeeds, in order, exactly once.
	m.Send(protocol.Query{AgentID: "a1", Message: "queued-1"})
	m.Send(protocol.Query{AgentID: "a1", Message: "queued-2"})

	assert.Equal(t, "queued-1", recvQuery(t, g).Message)
	assert.Equal(t, "queued-2", recvQuery(t, g).Message)
	waitFor(t, 2*time.Second, func() bool { return m.Status() == StatusConnected }, "reconnected")
	assert.Equal(t, 0, m.GetStats().Attempts, "attempt counter resets on success")
}

func TestNormalClosure_NoRetry(t *testing.T) {
	g := newTestGateway(t)
	g.closeCode.Store(websocket.CloseNormalClosure)
	m := newTestManager(g)

	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return m.Status() == StatusDisconnected }, "disconnected")

	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 1, g.dialCount(), "clean closure must not trigger retries")
}

func TestInvalidCredentialClose_StopsAndClearsQueue(t *testing.T) {
	g := newTestGateway(t)
	g.closeCode.Store(protocol.CloseInvalidCredential)
	m := newTestManager(g)

	var rejected atomic.Bool
	m.SetAuthRejectedHandler(func() { rejected.Store(true) })

	m.Send(protocol.Query{AgentID: "a1", Message: "doomed"})
	waitFor(t, 2*time.Second, func() bool { return rejected.Load() }, "auth rejected callback")

	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Equal(t, 0, m.GetStats().QueueDepth, "queue cleared on credential rejection")

	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 1, g.dialCount(), "no retry with a rejected credential")
}

func TestDisconnect_DiscardsQueuedIntent(t *testing.T) {
	g := newTestGateway(t)
	g.rejectHTTP.Store(true)
	m := NewManager(Options{
		URL:       g.wsURL(),
		BaseDelay: time.Hour, // park the retry timer
		MaxDelay:  time.Hour,
	}, NewRouter(nil))

	m.Send(protocol.Query{AgentID: "a1", Message: "never delivered"})
	waitFor(t, 2*time.Second, func() bool { return m.Status() == StatusReconnecting }, "reconnecting")

	m.Disconnect()
	stats := m.GetStats()
	assert.Equal(t, StatusDisconnected, stats.Status)
	assert.Equal(t, 0, stats.QueueDepth)
	assert.Equal(t, 0, stats.Attempts)
}

func TestReconnect_BypassesBackoffAndResetsAttempts(t *testing.T) {
	g := newTestGateway(t)
	g.rejectHTTP.Store(true)
	m := NewManager(Options{
		URL:       g.wsURL(),
		BaseDelay: time.Hour, // a scheduled retry would never fire in-test
		MaxDelay:  time.Hour,
	}, NewRouter(nil))

	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return m.Status() == StatusReconnecting }, "reconnecting")
	require.EqualValues(t, 1, g.dialCount())
	require.Equal(t, 1, m.GetStats().Attempts)

	// Manual reconnect dials immediately instead of waiting the hour out,
	// and lets the attempt succeed now the gateway is healthy again.
	g.rejectHTTP.Store(false)
	m.Reconnect()
	waitFor(t, 2*time.Second, func() bool { return m.Status() == StatusConnected }, "connected after manual reconnect")
	assert.EqualValues(t, 2, g.dialCount())
	assert.Equal(t, 0, m.GetStats().Attempts)
}

func TestStatusChanges_Observable(t *testing.T) {
	g := newTestGateway(t)
	m := newTestManager(g)

	ch := m.StatusChanges()
	m.Connect()

	var seen []Status
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case s := <-ch:
			seen = append(seen, s)
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.Equal(t, []Status{StatusConnecting, StatusConnected}, seen[:2])
}
