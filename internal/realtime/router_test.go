package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agentdeck/internal/protocol"
)

type routeCounts struct {
	connected, stream, complete, errored int
	lastStream                           *protocol.Event
}

func bindCounting(r *Router) *routeCounts {
	c := &routeCounts{}
	r.Bind(Handlers{
		OnConnected: func(ev *protocol.Event) { c.connected++ },
		OnStream:    func(ev *protocol.Event) { c.stream++; c.lastStream = ev },
		OnComplete:  func(ev *protocol.Event) { c.complete++ },
		OnError:     func(ev *protocol.Event) { c.errored++ },
	})
	return c
}

func TestRouter_DispatchesEachKindExactlyOnce(t *testing.T) {
	r := NewRouter(nil)
	c := bindCounting(r)

	r.Route([]byte(`{"type":"connected"}`))
	r.Route([]byte(`{"type":"stream","data":{"content":"x"}}`))
	r.Route([]byte(`{"type":"complete","data":{}}`))
	r.Route([]byte(`{"type":"error","data":{"code":"boom","message":"kaput"}}`))

	assert.Equal(t, 1, c.connected)
	assert.Equal(t, 1, c.stream)
	assert.Equal(t, 1, c.complete)
	assert.Equal(t, 1, c.errored)
	assert.Equal(t, "x", c.lastStream.Stream.Content)
}

func TestRouter_DropsMalformedAndUnknown(t *testing.T) {
	r := NewRouter(nil)
	c := bindCounting(r)

	r.Route([]byte(`{{{`))
	r.Route([]byte(`{"type":"telemetry"}`))
	r.Route([]byte(``))

	assert.Zero(t, c.connected+c.stream+c.complete+c.errored)
}

func TestRouter_UnboundIsSafe(t *testing.T) {
	r := NewRouter(nil)
	// No Bind yet: frames are dropped, not panics.
	r.Route([]byte(`{"type":"stream","data":{"content":"x"}}`))

	// Partial handler sets leave the other slots as drops.
	r.Bind(Handlers{OnStream: func(ev *protocol.Event) {}})
	r.Route([]byte(`{"type":"complete"}`))
}

func TestRouter_RebindReplacesAllSlots(t *testing.T) {
	r := NewRouter(nil)
	stale := bindCounting(r)
	fresh := bindCounting(r) // second bind replaces the first as a group

	r.Route([]byte(`{"type":"connected"}`))
	r.Route([]byte(`{"type":"error","data":{"code":"x","message":"y"}}`))

	assert.Zero(t, stale.connected+stale.errored, "stale handlers must not fire after rebind")
	assert.Equal(t, 1, fresh.connected)
	assert.Equal(t, 1, fresh.errored)
}
