// Package chat turns the gateway's partial events into a consistent
// conversation: the stream assembler accumulates reply chunks, the
// orchestrator runs the turn state machine, and the classifier maps gateway
// error codes to UI treatments.
package chat

import (
	"time"

	"agentdeck/internal/protocol"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus tracks an assistant message through its lifecycle. User
// messages are always Complete.
type MessageStatus string

const (
	// StatusPending is the placeholder state before the first reply chunk.
	StatusPending MessageStatus = "pending"
	// StatusStreaming means chunks are arriving.
	StatusStreaming MessageStatus = "streaming"
	// StatusComplete is terminal; the message is immutable from here on.
	StatusComplete MessageStatus = "complete"
	// StatusFailed is terminal; the partial content stays visible with the
	// error annotation attached.
	StatusFailed MessageStatus = "failed"
)

// Message is one entry in a conversation. The assistant message of an
// in-flight turn is mutated only by the orchestrator (status, usage) and the
// assembler (content); once terminal it is never touched again.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Status    MessageStatus
	Usage     *protocol.TokenUsage
	ErrorNote string
	CreatedAt time.Time
}

// Terminal reports whether the message has been finalized.
func (m *Message) Terminal() bool {
	return m.Status == StatusComplete || m.Status == StatusFailed
}
