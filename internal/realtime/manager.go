// Package realtime owns the persistent duplex connection to the agent
// gateway: dialing, credential handshake, close-code triage, exponential
// reconnect backoff, and the outbound queue that preserves user intent across
// transport failures.
package realtime

import (
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agentdeck/internal/metrics"
	"agentdeck/internal/protocol"
)

// Status is the externally observable connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// SendResult reports what happened to an outbound message.
type SendResult string

const (
	// Sent means the message was written to an open transport.
	Sent SendResult = "sent"
	// Queued means the message was appended to the outbound queue and will
	// be flushed, in order, when the connection is (re)established.
	Queued SendResult = "queued"
)

const (
	defaultBaseDelay        = 1 * time.Second
	defaultMaxDelay         = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
	pongWait                = 60 * time.Second
	pingPeriod              = (pongWait * 9) / 10
)

// BackoffPolicy computes reconnect delays: min(maxDelay, base*2^attempt).
type BackoffPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DelayFor returns the delay before retry number attempt (zero-based).
// Monotonically non-decreasing and bounded above by MaxDelay.
func (p BackoffPolicy) DelayFor(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Options configures a Manager.
type Options struct {
	// URL is the gateway websocket endpoint, e.g. ws://localhost:8135/ws.
	URL string

	// Credential returns the current bearer credential, or "" when the user
	// is not authenticated. It is re-read on every dial so a refreshed token
	// is picked up by the next attempt.
	Credential func() string

	Logger *zap.Logger

	BaseDelay        time.Duration
	MaxDelay         time.Duration
	HandshakeTimeout time.Duration
}

// Stats is a point-in-time snapshot of connection internals, exposed for the
// status bar and for tests.
type Stats struct {
	Status     Status
	Attempts   int
	QueueDepth int
	Reconnects int64
}

// Manager owns the transport socket exclusively. Other components observe its
// status and call its public operations; none of them touch the socket.
// Failures never escape the public boundary as errors; callers see them only
// through status changes.
type Manager struct {
	url    string
	cred   func() string
	log    *zap.Logger
	policy BackoffPolicy
	dialer *websocket.Dialer
	router *Router

	mu               sync.Mutex
	conn             *websocket.Conn
	status           Status
	attempt          int
	reconnects       int64
	epoch            uint64
	queue            [][]byte
	intentionalClose bool
	retryTimer       *time.Timer
	statusCh         chan Status
	onAuthRejected   func()
}

// NewManager creates a disconnected Manager routing inbound frames through
// the given router.
func NewManager(opts Options, router *Router) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}

	return &Manager{
		url:      opts.URL,
		cred:     opts.Credential,
		log:      opts.Logger.With(zap.String("component", "connection")),
		policy:   BackoffPolicy{BaseDelay: opts.BaseDelay, MaxDelay: opts.MaxDelay},
		dialer:   &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		router:   router,
		status:   StatusDisconnected,
		statusCh: make(chan Status, 16),
	}
}

// SetAuthRejectedHandler registers the host callback invoked when the gateway
// rejects the credential. The manager stops retrying at that point; the host
// decides how to re-authenticate.
func (m *Manager) SetAuthRejectedHandler(fn func()) {
	m.mu.Lock()
	m.onAuthRejected = fn
	m.mu.Unlock()
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// StatusChanges returns the channel carrying status transitions. Sends are
// non-blocking; a slow consumer misses intermediate states, never the fact of
// the latest one being readable via Status.
func (m *Manager) StatusChanges() <-chan Status {
	return m.statusCh
}

// GetStats returns a snapshot of connection statistics.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Status:     m.status,
		Attempts:   m.attempt,
		QueueDepth: len(m.queue),
		Reconnects: m.reconnects,
	}
}

// Connect opens the transport. No-op when already connected or connecting.
// The credential travels as a handshake query parameter, never in a frame
// body that could be logged downstream.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.status == StatusConnected || m.status == StatusConnecting {
		m.mu.Unlock()
		return
	}
	m.intentionalClose = false
	m.stopRetryLocked()
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()

	go m.dial()
}

// Send transmits a query immediately when the transport is open, otherwise
// queues it. Queueing while disconnected triggers an implicit Connect, checked
// explicitly here rather than hidden elsewhere as a side effect.
func (m *Manager) Send(q protocol.Query) SendResult {
	raw := protocol.EncodeQuery(q)

	m.mu.Lock()
	if m.status == StatusConnected && m.conn != nil {
		m.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := m.conn.WriteMessage(websocket.TextMessage, raw); err == nil {
			m.mu.Unlock()
			metrics.FramesTotal.WithLabelValues("outbound").Inc()
			return Sent
		}
		// Write failure: keep the intent, let the read loop notice the dead
		// transport and drive the reconnect.
		m.log.Warn("write failed, queueing message", zap.String("agent_id", q.AgentID))
	}

	m.queue = append(m.queue, raw)
	metrics.OutboundQueueDepth.Set(float64(len(m.queue)))
	needConnect := m.status == StatusDisconnected
	m.mu.Unlock()

	if needConnect {
		m.Connect()
	}
	return Queued
}

// Disconnect closes the transport on purpose: the queue is discarded (an
// explicit user-driven disconnect abandons undelivered intent), the close is
// a normal closure, and no retry is scheduled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentionalClose = true
	m.queue = nil
	metrics.OutboundQueueDepth.Set(0)
	m.attempt = 0
	m.stopRetryLocked()
	conn := m.conn
	m.conn = nil
	m.epoch++
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
}

// Reconnect is the manual retry: it clears the intentional-close flag, resets
// the attempt counter, bypasses any scheduled backoff timer, force-closes the
// current transport and dials immediately. Bumping the epoch here means
// events still in flight on the old transport are dropped before routing.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	m.intentionalClose = false
	m.attempt = 0
	m.stopRetryLocked()
	conn := m.conn
	m.conn = nil
	m.epoch++
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	go m.dial()
}

// dial performs one connection attempt and, on success, installs the new
// transport, resets backoff, and flushes the outbound queue in FIFO order.
func (m *Manager) dial() {
	target := m.url
	if m.cred != nil {
		if tok := m.cred(); tok != "" {
			if u, err := url.Parse(m.url); err == nil {
				q := u.Query()
				q.Set("token", tok)
				u.RawQuery = q.Encode()
				target = u.String()
			}
		}
	}

	conn, resp, err := m.dialer.Dial(target, nil)
	if err != nil {
		m.mu.Lock()
		if m.intentionalClose {
			m.setStatusLocked(StatusDisconnected)
			m.mu.Unlock()
			return
		}
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			m.handleAuthRejectedLocked()
			return
		}
		m.log.Warn("dial failed", zap.Error(err))
		m.scheduleRetryLocked()
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.intentionalClose {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	if m.conn != nil {
		// A concurrent dial already won; keep the established transport.
		m.mu.Unlock()
		_ = conn.Close()
		return
	}

	m.conn = conn
	m.epoch++
	epoch := m.epoch
	m.attempt = 0
	m.setStatusLocked(StatusConnected)
	metrics.ConnectionUp.Set(1)

	// Flush the queue before releasing the lock: a Send racing with the
	// flush blocks on the mutex and lands strictly after the queued intent.
	queued := m.queue
	m.queue = nil
	metrics.OutboundQueueDepth.Set(0)
	for i, raw := range queued {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			// Put the unsent tail back; the close handler takes over.
			m.log.Warn("flush interrupted", zap.Error(err))
			m.queue = append(m.queue, queued[i:]...)
			metrics.OutboundQueueDepth.Set(float64(len(m.queue)))
			break
		}
		metrics.FramesTotal.WithLabelValues("outbound").Inc()
	}
	m.mu.Unlock()

	m.log.Info("connected to gateway")
	go m.readLoop(conn, epoch)
	go m.pingLoop(conn, epoch)
}

// readLoop consumes inbound frames until the transport dies, dropping frames
// from superseded transports.
func (m *Manager) readLoop(conn *websocket.Conn, epoch uint64) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, epoch, err)
			return
		}

		m.mu.Lock()
		stale := epoch != m.epoch
		m.mu.Unlock()
		if stale {
			metrics.DroppedFramesTotal.WithLabelValues("stale_epoch").Inc()
			continue
		}

		metrics.FramesTotal.WithLabelValues("inbound").Inc()
		m.router.Route(raw)
	}
}

// pingLoop keeps the transport's liveness check running; a missed pong trips
// the read deadline and the close handler drives reconnection.
func (m *Manager) pingLoop(conn *websocket.Conn, epoch uint64) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		live := epoch == m.epoch && m.conn == conn
		m.mu.Unlock()
		if !live {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			_ = conn.Close()
			return
		}
	}
}

// handleClose triages a transport closure: intentional and clean closes stop,
// credential rejection stops and clears the queue, anything else schedules a
// backoff retry.
func (m *Manager) handleClose(conn *websocket.Conn, epoch uint64, err error) {
	_ = conn.Close()

	m.mu.Lock()
	if epoch != m.epoch {
		// A newer transport superseded this one; nothing to do.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	metrics.ConnectionUp.Set(0)

	switch {
	case m.intentionalClose:
		m.setStatusLocked(StatusDisconnected)
		m.mu.Unlock()

	case websocket.IsCloseError(err, protocol.CloseInvalidCredential):
		m.log.Warn("credential rejected by gateway")
		m.handleAuthRejectedLocked()

	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		m.setStatusLocked(StatusDisconnected)
		m.mu.Unlock()

	default:
		m.log.Warn("connection lost", zap.Error(err))
		m.scheduleRetryLocked()
		m.mu.Unlock()
	}
}

// handleAuthRejectedLocked stops all retry activity and discards queued
// messages: retrying with a rejected credential would only fail again.
// Releases the lock.
func (m *Manager) handleAuthRejectedLocked() {
	m.queue = nil
	metrics.OutboundQueueDepth.Set(0)
	m.stopRetryLocked()
	m.setStatusLocked(StatusDisconnected)
	cb := m.onAuthRejected
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// scheduleRetryLocked arms the backoff timer for the next attempt. Caller
// holds the lock.
func (m *Manager) scheduleRetryLocked() {
	m.setStatusLocked(StatusReconnecting)
	delay := m.policy.DelayFor(m.attempt)
	m.attempt++
	m.reconnects++
	metrics.ReconnectsTotal.Inc()
	m.log.Info("scheduling reconnect",
		zap.Int("attempt", m.attempt),
		zap.Duration("delay", delay),
	)

	m.retryTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.intentionalClose || m.status != StatusReconnecting {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.dial()
	})
}

// stopRetryLocked cancels any pending backoff timer. Caller holds the lock.
func (m *Manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// setStatusLocked changes the status and notifies the subscriber channel
// without blocking. Caller holds the lock.
func (m *Manager) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	select {
	case m.statusCh <- s:
	default:
	}
}
