// Package session restores conversation continuity when an agent is opened.
// The coordinator decides whether a prior transcript exists, where to load it
// from, and which continuity handle the next turn should carry.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"agentdeck/internal/api"
	"agentdeck/internal/chat"
	"agentdeck/internal/metrics"
	"agentdeck/internal/store"
)

// TranscriptFetcher is the gateway surface the coordinator needs. Implemented
// by api.Client.
type TranscriptFetcher interface {
	FetchPriorTurns(ctx context.Context, agentID string) api.TranscriptResult
	ClearSessionHandle(ctx context.Context, agentID string) (*api.Agent, error)
}

// Resume is the outcome of opening an agent: the conversation to show and
// where it came from.
type Resume struct {
	Messages []chat.Message
	// Source is "gateway", "cache", or "empty".
	Source string
}

// Coordinator tracks the continuity handle per agent and loads prior
// transcripts when an agent is selected. It satisfies the orchestrator's
// session tracker.
type Coordinator struct {
	log     *zap.Logger
	gateway TranscriptFetcher
	cache   store.Cache

	mu      sync.Mutex
	handles map[string]string
}

// NewCoordinator builds a coordinator. cache may be nil when local caching is
// disabled.
func NewCoordinator(gateway TranscriptFetcher, cache store.Cache, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		log:     log.With(zap.String("component", "session")),
		gateway: gateway,
		cache:   cache,
		handles: make(map[string]string),
	}
}

// Handle returns the continuity handle the next turn for agentID should carry,
// or "" for a fresh session.
func (c *Coordinator) Handle(agentID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[agentID]
}

// UpdateHandle records the handle a completed turn reported. An empty
// sessionID leaves the recorded handle alone.
func (c *Coordinator) UpdateHandle(agentID, sessionID string) {
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	c.handles[agentID] = sessionID
	c.mu.Unlock()
}

// OnAgentSelected loads the agent's prior conversation. An agent without a
// continuity handle is a fresh conversation and triggers no fetch at all. With
// a handle, the gateway transcript is authoritative; if the fetch fails the
// local cache stands in, and failing that the conversation starts empty while
// the handle is kept so the backend session still resumes.
func (c *Coordinator) OnAgentSelected(ctx context.Context, agent api.Agent) Resume {
	c.mu.Lock()
	handle, tracked := c.handles[agent.ID]
	if !tracked && agent.HasSession() {
		handle = agent.SessionID
		c.handles[agent.ID] = handle
	}
	c.mu.Unlock()

	if handle == "" {
		// Check the cache for a handle from a previous run.
		handle = c.cachedHandle(ctx, agent.ID)
		if handle != "" {
			c.mu.Lock()
			c.handles[agent.ID] = handle
			c.mu.Unlock()
		}
	}

	if handle == "" {
		metrics.SessionResumesTotal.WithLabelValues("empty").Inc()
		return Resume{Source: "empty"}
	}

	res := c.gateway.FetchPriorTurns(ctx, agent.ID)
	if res.Success {
		if res.SessionID != "" {
			c.UpdateHandle(agent.ID, res.SessionID)
		}
		msgs := transcriptToMessages(res.Turns)
		c.refreshCache(agent.ID, c.Handle(agent.ID), msgs)
		metrics.SessionResumesTotal.WithLabelValues("gateway").Inc()
		return Resume{Messages: msgs, Source: "gateway"}
	}

	c.log.Warn("transcript fetch failed, trying local cache",
		zap.String("agent_id", agent.ID))

	if msgs := c.cachedMessages(ctx, agent.ID); len(msgs) > 0 {
		metrics.SessionResumesTotal.WithLabelValues("cache").Inc()
		return Resume{Messages: msgs, Source: "cache"}
	}

	metrics.SessionResumesTotal.WithLabelValues("empty").Inc()
	return Resume{Source: "empty"}
}

// StartNewSession discards the agent's continuity handle on the gateway and
// locally. The next turn starts a fresh backend session.
func (c *Coordinator) StartNewSession(ctx context.Context, agentID string) error {
	if _, err := c.gateway.ClearSessionHandle(ctx, agentID); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.handles, agentID)
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.ClearAgent(ctx, agentID); err != nil {
			c.log.Warn("cache clear failed", zap.String("agent_id", agentID), zap.Error(err))
		}
	}
	return nil
}

func (c *Coordinator) cachedHandle(ctx context.Context, agentID string) string {
	if c.cache == nil {
		return ""
	}
	h, err := c.cache.SessionHandle(ctx, agentID)
	if err != nil {
		c.log.Warn("cache handle lookup failed", zap.String("agent_id", agentID), zap.Error(err))
		return ""
	}
	return h
}

func (c *Coordinator) cachedMessages(ctx context.Context, agentID string) []chat.Message {
	if c.cache == nil {
		return nil
	}
	recs, err := c.cache.RecentMessages(ctx, agentID, 200)
	if err != nil {
		c.log.Warn("cache read failed", zap.String("agent_id", agentID), zap.Error(err))
		return nil
	}
	msgs := make([]chat.Message, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, rec.ToChatMessage())
	}
	return msgs
}

// refreshCache mirrors a gateway transcript into the local cache so the next
// offline open still has something to show.
func (c *Coordinator) refreshCache(agentID, sessionID string, msgs []chat.Message) {
	if c.cache == nil {
		return
	}
	recs := make([]*store.MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		recs = append(recs, &store.MessageRecord{
			Role:      string(m.Role),
			Content:   m.Content,
			Status:    string(m.Status),
			CreatedAt: m.CreatedAt,
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.cache.ReplaceTranscript(ctx, agentID, sessionID, recs); err != nil {
		c.log.Warn("cache refresh failed", zap.String("agent_id", agentID), zap.Error(err))
	}
}

func transcriptToMessages(turns []api.TranscriptMessage) []chat.Message {
	msgs := make([]chat.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, chat.Message{
			Role:    chat.Role(t.Role),
			Content: t.Content,
			Status:  chat.StatusComplete,
		})
	}
	return msgs
}
