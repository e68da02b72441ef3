package realtime

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"agentdeck/internal/metrics"
	"agentdeck/internal/protocol"
)

// Handlers is the closed set of handler slots the router dispatches to.
// One slot per inbound event kind; there is no open subscription bus.
type Handlers struct {
	OnConnected func(*protocol.Event)
	OnStream    func(*protocol.Event)
	OnComplete  func(*protocol.Event)
	OnError     func(*protocol.Event)
}

// Router parses inbound frames and dispatches each to exactly one handler.
// Handlers are replaced as a group via Bind, so a remounting view rebinds
// without leaking references to a stale instance.
type Router struct {
	mu  sync.RWMutex
	h   Handlers
	log *zap.Logger
}

// NewRouter creates a router with no handlers bound. Frames routed before the
// first Bind are dropped.
func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{log: log.With(zap.String("component", "router"))}
}

// Bind replaces all four handler slots atomically.
func (r *Router) Bind(h Handlers) {
	r.mu.Lock()
	r.h = h
	r.mu.Unlock()
}

// Route parses a raw frame and invokes the matching handler. Parse failures
// and unknown discriminants are logged and dropped; nothing escapes this
// boundary.
func (r *Router) Route(raw []byte) {
	ev, err := protocol.ParseFrame(raw)
	if err != nil {
		var unknown *protocol.ErrUnknownEventType
		if errors.As(err, &unknown) {
			metrics.DroppedFramesTotal.WithLabelValues("unknown_type").Inc()
			r.log.Warn("dropping frame with unknown event type", zap.String("type", unknown.Type))
		} else {
			metrics.DroppedFramesTotal.WithLabelValues("malformed").Inc()
			r.log.Warn("dropping malformed frame", zap.Error(err))
		}
		return
	}

	r.mu.RLock()
	h := r.h
	r.mu.RUnlock()

	var fn func(*protocol.Event)
	switch ev.Type {
	case protocol.EventConnected:
		fn = h.OnConnected
	case protocol.EventStream:
		fn = h.OnStream
	case protocol.EventComplete:
		fn = h.OnComplete
	case protocol.EventError:
		fn = h.OnError
	}

	if fn == nil {
		metrics.DroppedFramesTotal.WithLabelValues("unbound").Inc()
		r.log.Debug("no handler bound for event", zap.String("type", string(ev.Type)))
		return
	}
	fn(ev)
}
