package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"agentdeck/internal/chat"
)

// Sink adapts the cache to the orchestrator's transcript callback. Writes are
// best effort: a cache failure is logged, never surfaced to the turn flow.
type Sink struct {
	cache   Cache
	log     *zap.Logger
	timeout time.Duration
}

// NewSink wraps the cache for use as a chat transcript sink.
func NewSink(cache Cache, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{cache: cache, log: log.With(zap.String("component", "transcript_sink")), timeout: 5 * time.Second}
}

// AppendTurn persists a finalized user/assistant pair.
func (s *Sink) AppendTurn(agentID, sessionID string, user, assistant chat.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.cache.AppendTurn(ctx, agentID, sessionID, toRecord(user), toRecord(assistant))
	if err != nil {
		s.log.Warn("transcript cache write failed",
			zap.String("agent_id", agentID),
			zap.Error(err))
	}
}

func toRecord(m chat.Message) *MessageRecord {
	rec := &MessageRecord{
		Role:      string(m.Role),
		Content:   m.Content,
		Status:    string(m.Status),
		ErrorNote: m.ErrorNote,
		CreatedAt: m.CreatedAt,
	}
	if m.Usage != nil {
		rec.InputTokens = m.Usage.InputTokens
		rec.OutputTokens = m.Usage.OutputTokens
	}
	return rec
}

// ToChatMessage converts a cached record back into a conversation entry.
func (r *MessageRecord) ToChatMessage() chat.Message {
	m := chat.Message{
		Role:      chat.Role(r.Role),
		Content:   r.Content,
		Status:    chat.MessageStatus(r.Status),
		ErrorNote: r.ErrorNote,
		CreatedAt: r.CreatedAt,
	}
	if m.Status == "" {
		m.Status = chat.StatusComplete
	}
	return m
}
