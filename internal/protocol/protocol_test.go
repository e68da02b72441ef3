package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame_Connected(t *testing.T) {
	ev, err := ParseFrame([]byte(`{"type":"connected","sessionId":"sess-1"}`))
	require.NoError(t, err)
	assert.Equal(t, EventConnected, ev.Type)
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.Nil(t, ev.Stream)
	assert.Nil(t, ev.Complete)
	assert.Nil(t, ev.Error)
}

func TestParseFrame_Stream(t *testing.T) {
	ev, err := ParseFrame([]byte(`{"type":"stream","data":{"content":"hello "}}`))
	require.NoError(t, err)
	assert.Equal(t, EventStream, ev.Type)
	require.NotNil(t, ev.Stream)
	assert.Equal(t, "hello ", ev.Stream.Content)
}

func TestParseFrame_StreamWithoutContent(t *testing.T) {
	// A stream event with no content field is valid and must parse to an
	// empty chunk, not an error.
	ev, err := ParseFrame([]byte(`{"type":"stream","data":{}}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Stream)
	assert.Empty(t, ev.Stream.Content)

	ev, err = ParseFrame([]byte(`{"type":"stream"}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Stream)
	assert.Empty(t, ev.Stream.Content)
}

func TestParseFrame_Complete(t *testing.T) {
	raw := `{"type":"complete","data":{"tokenUsage":{"inputTokens":10,"outputTokens":25,"totalTokens":35},"sessionId":"sess-2"}}`
	ev, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, EventComplete, ev.Type)
	require.NotNil(t, ev.Complete)
	require.NotNil(t, ev.Complete.TokenUsage)
	assert.Equal(t, 35, ev.Complete.TokenUsage.TotalTokens)
	assert.Equal(t, "sess-2", ev.Complete.SessionID)
}

func TestParseFrame_CompleteSessionFromEnvelope(t *testing.T) {
	ev, err := ParseFrame([]byte(`{"type":"complete","sessionId":"sess-env"}`))
	require.NoError(t, err)
	assert.Equal(t, "sess-env", ev.Complete.SessionID)

	// Payload session id wins over the envelope one.
	raw := `{"type":"complete","data":{"sessionId":"sess-data"},"sessionId":"sess-env"}`
	ev, err = ParseFrame([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "sess-data", ev.Complete.SessionID)
}

func TestParseFrame_Error(t *testing.T) {
	raw := `{"type":"error","data":{"code":"invalid_credential","message":"token expired"}}`
	ev, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, EventError, ev.Type)
	require.NotNil(t, ev.Error)
	assert.Equal(t, CodeInvalidCredential, ev.Error.Code)
	assert.Equal(t, "token expired", ev.Error.Message)
}

func TestParseFrame_Malformed(t *testing.T) {
	_, err := ParseFrame([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParseFrame_UnknownType(t *testing.T) {
	_, err := ParseFrame([]byte(`{"type":"heartbeat"}`))
	require.Error(t, err)
	var unknown *ErrUnknownEventType
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "heartbeat", unknown.Type)
}

func TestEncodeQuery(t *testing.T) {
	raw := EncodeQuery(Query{AgentID: "agent-1", Message: "fix the bug", SessionID: "sess-3"})

	var f struct {
		Type string `json:"type"`
		Data Query  `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, "query", f.Type)
	assert.Equal(t, "agent-1", f.Data.AgentID)
	assert.Equal(t, "fix the bug", f.Data.Message)
	assert.Equal(t, "sess-3", f.Data.SessionID)
}

func TestEncodeQuery_OmitsEmptySession(t *testing.T) {
	raw := EncodeQuery(Query{AgentID: "agent-1", Message: "hi"})
	assert.NotContains(t, string(raw), "sessionId")
}
