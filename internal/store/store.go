// Package store is the local transcript cache. It keeps the last known
// conversation per agent plus the session continuity handle, so a
// conversation survives process restarts and can be shown even when the
// gateway's transcript endpoint is unreachable.
package store

import (
	"context"
	"time"
)

// MessageRecord is one cached conversation entry for an agent.
type MessageRecord struct {
	ID           int64     `json:"id"`
	AgentID      string    `json:"agent_id"`
	SessionID    string    `json:"session_id"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Status       string    `json:"status"`
	ErrorNote    string    `json:"error_note"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// Cache is the persistence interface for the transcript cache.
type Cache interface {
	// AppendTurn writes a finalized user/assistant pair and records the
	// session handle the turn completed under.
	AppendTurn(ctx context.Context, agentID, sessionID string, user, assistant *MessageRecord) error

	// RecentMessages returns up to limit cached messages for the agent,
	// oldest first. limit <= 0 means no limit.
	RecentMessages(ctx context.Context, agentID string, limit int) ([]*MessageRecord, error)

	// ReplaceTranscript drops the agent's cached messages and writes the
	// given ones in order, e.g. after a successful resume fetch.
	ReplaceTranscript(ctx context.Context, agentID, sessionID string, msgs []*MessageRecord) error

	// SessionHandle returns the last recorded session handle for the agent,
	// or "" when none is cached.
	SessionHandle(ctx context.Context, agentID string) (string, error)

	// ClearAgent removes the agent's cached messages and session handle.
	ClearAgent(ctx context.Context, agentID string) error

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}
