package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdeck/internal/api"
	"agentdeck/internal/chat"
	"agentdeck/internal/protocol"
	"agentdeck/internal/realtime"
	"agentdeck/internal/session"
)

// newTestModel wires real components against a gateway that does not exist;
// nothing here dials because Init is never called.
func newTestModel(t *testing.T) *Model {
	t.Helper()
	router := realtime.NewRouter(nil)
	conn := realtime.NewManager(realtime.Options{URL: "ws://127.0.0.1:1/ws"}, router)
	client := api.NewClient("http://127.0.0.1:1", nil)
	coord := session.NewCoordinator(client, nil, nil)
	orch := chat.NewOrchestrator(conn, coord, nil, nil)

	m := NewModel(Deps{
		Client:   client,
		Conn:     conn,
		Orch:     orch,
		Sessions: coord,
	})
	m.resize(100, 30)
	return m
}

func TestPickerItemLabels(t *testing.T) {
	item := pickerItem{agentEntry{
		agent:   api.Agent{Name: "builder", SessionID: "sess-1"},
		project: api.Project{Name: "scratch"},
	}}
	assert.Equal(t, "builder", item.Title())
	assert.Contains(t, item.Description(), "scratch")
	assert.Contains(t, item.Description(), "resumable")

	fresh := pickerItem{agentEntry{
		agent:   api.Agent{Name: "reviewer"},
		project: api.Project{Name: "scratch"},
	}}
	assert.NotContains(t, fresh.Description(), "resumable")
}

func TestAgentsLoadedPopulatesPicker(t *testing.T) {
	m := newTestModel(t)

	_, _ = m.Update(agentsLoadedMsg{entries: []agentEntry{
		{agent: api.Agent{ID: "a1", Name: "builder"}, project: api.Project{ID: "p1", Name: "scratch"}},
	}})

	require.Len(t, m.picker.Items(), 1)
	assert.Nil(t, m.loadErr)
}

func TestAgentsLoadErrorShownInPicker(t *testing.T) {
	m := newTestModel(t)

	_, _ = m.Update(agentsLoadedMsg{err: assert.AnError})

	require.Error(t, m.loadErr)
	assert.Contains(t, m.View(), "could not load agents")
}

func TestRenderMessageStatuses(t *testing.T) {
	m := newTestModel(t)

	pending := m.renderMessage(chat.Message{Role: chat.RoleAssistant, Status: chat.StatusPending})
	assert.Contains(t, pending, "…")

	streaming := m.renderMessage(chat.Message{
		Role: chat.RoleAssistant, Status: chat.StatusStreaming, Content: "partial an",
	})
	assert.Contains(t, streaming, "partial an")

	complete := m.renderMessage(chat.Message{
		Role: chat.RoleAssistant, Status: chat.StatusComplete, Content: "done",
		Usage: &protocol.TokenUsage{InputTokens: 3, OutputTokens: 7},
	})
	assert.Contains(t, complete, "done")
	assert.Contains(t, complete, "3 in / 7 out")

	failed := m.renderMessage(chat.Message{
		Role: chat.RoleAssistant, Status: chat.StatusFailed,
		Content: "partial", ErrorNote: "backend exploded",
	})
	assert.Contains(t, failed, "partial", "partial content stays visible")
	assert.Contains(t, failed, "backend exploded")

	user := m.renderMessage(chat.Message{Role: chat.RoleUser, Status: chat.StatusComplete, Content: "hi"})
	assert.Contains(t, user, "you")
	assert.Contains(t, user, "hi")
}

func TestStatusLabels(t *testing.T) {
	assert.Contains(t, connStatusLabel(realtime.StatusConnected), "connected")
	assert.Contains(t, connStatusLabel(realtime.StatusReconnecting), "reconnecting")
	assert.Contains(t, connStatusLabel(realtime.StatusDisconnected), "disconnected")

	assert.Equal(t, "idle", phaseLabel(chat.PhaseIdle))
	assert.Equal(t, "waiting for reply", phaseLabel(chat.PhaseLoading))
	assert.Equal(t, "streaming", phaseLabel(chat.PhaseStreaming))
}

func TestBlockingNoticeOwnsChatView(t *testing.T) {
	m := newTestModel(t)
	m.view = viewChat
	m.deps.Orch.SelectAgent("a1", nil)
	m.deps.Orch.RaiseBlocking(protocol.CodeInvalidCredential, "credential rejected")

	out := m.View()
	assert.Contains(t, out, "Action required")
	assert.Contains(t, out, "credential rejected")

	// Enter acknowledges the notice instead of sending a turn.
	m.input.SetValue("should not send")
	_, _ = m.handleKey(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, m.deps.Orch.BlockingNotice())
	assert.Equal(t, "should not send", strings.TrimSpace(m.input.Value()),
		"input is preserved while a notice is up")
}

func TestEscReturnsToPicker(t *testing.T) {
	m := newTestModel(t)
	m.view = viewChat
	entry := agentEntry{agent: api.Agent{ID: "a1", Name: "builder"}}
	m.current = &entry

	_, _ = m.handleKey(tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, viewPicker, m.view)
	assert.Nil(t, m.current)
}
