// Package protocol defines the wire protocol spoken between agentdeck and the
// agent gateway: one JSON object per text frame, discriminated by a "type"
// field. The inbound side is a closed union of four event kinds; the outbound
// side is a single "query" message shape.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// EventType discriminates inbound frames.
type EventType string

const (
	EventConnected EventType = "connected"
	EventStream    EventType = "stream"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
)

// Gateway error codes carried in error events. Classification of these into
// UI treatments lives in the chat package; the codes themselves are protocol.
const (
	CodeAgentAuthRequired       = "agent_auth_required"
	CodeTermsAcceptanceRequired = "terms_acceptance_required"
	CodeInvalidCredential       = "invalid_credential"
	CodeContextBudgetWarning    = "context_budget_warning"
)

// CloseInvalidCredential is the application-defined close code the gateway
// uses to reject a connection whose handshake credential is invalid. The
// client must not retry and must drop any queued messages.
const CloseInvalidCredential = 4401

// frame is the raw shape of every message on the wire.
type frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// StreamData is the payload of a stream event. Content may be absent; an
// empty chunk is a valid no-op.
type StreamData struct {
	Content string `json:"content,omitempty"`
}

// TokenUsage reports token accounting for a completed turn.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// CompleteData is the payload of a complete event.
type CompleteData struct {
	TokenUsage *TokenUsage `json:"tokenUsage,omitempty"`
	SessionID  string      `json:"sessionId,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is a parsed inbound frame. Exactly one of the payload pointers is
// populated, matching Type. Events are immutable once parsed.
type Event struct {
	Type      EventType
	SessionID string

	Stream   *StreamData
	Complete *CompleteData
	Error    *ErrorData
}

// ErrUnknownEventType is returned by ParseFrame for a well-formed frame whose
// discriminant is outside the closed set. Callers log and drop these.
type ErrUnknownEventType struct {
	Type string
}

func (e *ErrUnknownEventType) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// ParseFrame decodes a raw text frame into an Event. Malformed JSON and
// unrecognized discriminants are errors; they never panic.
func ParseFrame(raw []byte) (*Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}

	ev := &Event{SessionID: f.SessionID}

	switch EventType(f.Type) {
	case EventConnected:
		ev.Type = EventConnected

	case EventStream:
		ev.Type = EventStream
		ev.Stream = &StreamData{}
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, ev.Stream); err != nil {
				return nil, fmt.Errorf("parsing stream data: %w", err)
			}
		}

	case EventComplete:
		ev.Type = EventComplete
		ev.Complete = &CompleteData{}
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, ev.Complete); err != nil {
				return nil, fmt.Errorf("parsing complete data: %w", err)
			}
		}
		// The continuity token may ride on the envelope or the payload;
		// the payload wins when both are present.
		if ev.Complete.SessionID == "" {
			ev.Complete.SessionID = f.SessionID
		}

	case EventError:
		ev.Type = EventError
		ev.Error = &ErrorData{}
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, ev.Error); err != nil {
				return nil, fmt.Errorf("parsing error data: %w", err)
			}
		}

	default:
		return nil, &ErrUnknownEventType{Type: f.Type}
	}

	return ev, nil
}

// Query is the single outbound message the client sends: one user turn
// addressed to an agent, optionally carrying the prior session identifier.
type Query struct {
	AgentID   string `json:"agentId"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type queryFrame struct {
	Type string `json:"type"`
	Data Query  `json:"data"`
}

// EncodeQuery wraps a Query in its wire envelope.
func EncodeQuery(q Query) []byte {
	raw, _ := json.Marshal(queryFrame{Type: "query", Data: q})
	return raw
}

// DecodeQuery parses an inbound query frame. Used by the gateway side.
func DecodeQuery(raw []byte) (*Query, error) {
	var f queryFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing query frame: %w", err)
	}
	if f.Type != "query" {
		return nil, &ErrUnknownEventType{Type: f.Type}
	}
	return &f.Data, nil
}

func encodeFrame(typ EventType, data any) []byte {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	out, _ := json.Marshal(frame{Type: string(typ), Data: raw})
	return out
}

// EncodeConnected builds a connected event frame.
func EncodeConnected() []byte { return encodeFrame(EventConnected, nil) }

// EncodeStream builds a stream event frame carrying one reply chunk.
func EncodeStream(content string) []byte {
	return encodeFrame(EventStream, StreamData{Content: content})
}

// EncodeComplete builds a complete event frame.
func EncodeComplete(data CompleteData) []byte {
	return encodeFrame(EventComplete, data)
}

// EncodeError builds an error event frame.
func EncodeError(code, message string) []byte {
	return encodeFrame(EventError, ErrorData{Code: code, Message: message})
}

// IsTerminalClose reports whether a websocket close error ends the connection
// for good: clean closure, client-initiated going-away, or credential
// rejection. Anything else is grounds for reconnection.
func IsTerminalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		CloseInvalidCredential,
	)
}
