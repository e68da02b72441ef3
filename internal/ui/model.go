// Package ui is the terminal front end: an agent picker and a streaming chat
// view built on Bubble Tea. All conversation state lives in the chat
// orchestrator; the model here only reads snapshots and forwards input.
package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"agentdeck/internal/api"
	"agentdeck/internal/chat"
	"agentdeck/internal/realtime"
	"agentdeck/internal/session"
)

type view int

const (
	viewPicker view = iota
	viewChat
)

// Options tunes the terminal client.
type Options struct {
	// Markdown renders finalized assistant replies through glamour.
	Markdown bool
}

// Deps are the wired application components the UI drives.
type Deps struct {
	Client   *api.Client
	Conn     *realtime.Manager
	Orch     *chat.Orchestrator
	Sessions *session.Coordinator
	Logger   *zap.Logger
	Options  Options
}

// pickerItem adapts an agentEntry to the list component.
type pickerItem struct{ agentEntry }

func (i pickerItem) Title() string { return i.agent.Name }
func (i pickerItem) Description() string {
	desc := i.project.Name
	if i.agent.HasSession() {
		desc += " · resumable session"
	}
	return desc
}
func (i pickerItem) FilterValue() string { return i.agent.Name + " " + i.project.Name }

// Model is the root Bubble Tea model.
type Model struct {
	log  *zap.Logger
	deps Deps

	view    view
	picker  list.Model
	input   textarea.Model
	vp      viewport.Model
	spin    spinner.Model
	mdr     *glamour.TermRenderer
	current *agentEntry

	width, height int
	ready         bool
	connStatus    realtime.Status
	loadErr       error

	changeCh chan struct{}
}

// NewModel builds the root model and hooks the orchestrator's change signal
// into the program's message loop.
func NewModel(deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	input := textarea.New()
	input.Placeholder = "Ask the agent anything. Enter sends, Esc goes back."
	input.ShowLineNumbers = false
	input.SetHeight(3)
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	delegate := list.NewDefaultDelegate()
	picker := list.New(nil, delegate, 0, 0)
	picker.Title = "agentdeck"
	picker.SetShowStatusBar(false)

	m := &Model{
		log:        deps.Logger.With(zap.String("component", "ui")),
		deps:       deps,
		view:       viewPicker,
		picker:     picker,
		input:      input,
		spin:       sp,
		connStatus: realtime.StatusDisconnected,
		changeCh:   make(chan struct{}, 1),
	}

	deps.Orch.SetOnChange(func() {
		select {
		case m.changeCh <- struct{}{}:
		default:
		}
	})

	return m
}

func (m *Model) Init() tea.Cmd {
	m.deps.Conn.Connect()
	return tea.Batch(
		m.fetchAgentsCmd(),
		listenStatus(m.deps.Conn.StatusChanges()),
		listenChanges(m.changeCh),
		m.spin.Tick,
		textarea.Blink,
	)
}

// fetchAgentsCmd loads every project's agents for the picker.
func (m *Model) fetchAgentsCmd() tea.Cmd {
	client := m.deps.Client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		projects, err := client.ListProjects(ctx)
		if err != nil {
			return agentsLoadedMsg{err: err}
		}

		var entries []agentEntry
		for _, p := range projects {
			agents, err := client.ListAgents(ctx, p.ID)
			if err != nil {
				return agentsLoadedMsg{err: err}
			}
			for _, a := range agents {
				entries = append(entries, agentEntry{agent: a, project: p})
			}
		}
		return agentsLoadedMsg{entries: entries}
	}
}

// openAgentCmd restores the selected agent's conversation.
func (m *Model) openAgentCmd(entry agentEntry) tea.Cmd {
	coord := m.deps.Sessions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return resumeLoadedMsg{
			agentID: entry.agent.ID,
			resume:  coord.OnAgentSelected(ctx, entry.agent),
		}
	}
}

// newSessionCmd clears the current agent's continuity handle.
func (m *Model) newSessionCmd(agentID string) tea.Cmd {
	coord := m.deps.Sessions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return sessionClearedMsg{agentID: agentID, err: coord.StartNewSession(ctx, agentID)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case agentsLoadedMsg:
		if msg.err != nil {
			m.loadErr = msg.err
			return m, nil
		}
		m.loadErr = nil
		items := make([]list.Item, 0, len(msg.entries))
		for _, e := range msg.entries {
			items = append(items, pickerItem{e})
		}
		return m, m.picker.SetItems(items)

	case resumeLoadedMsg:
		if m.current == nil || m.current.agent.ID != msg.agentID {
			return m, nil
		}
		m.deps.Orch.SelectAgent(msg.agentID, msg.resume.Messages)
		m.view = viewChat
		m.input.Reset()
		m.input.Focus()
		m.refreshTranscript()
		return m, nil

	case sessionClearedMsg:
		if msg.err != nil {
			m.log.Warn("new session failed", zap.Error(msg.err))
			return m, nil
		}
		if m.current != nil && m.current.agent.ID == msg.agentID {
			m.deps.Orch.SelectAgent(msg.agentID, nil)
			m.refreshTranscript()
		}
		return m, nil

	case connStatusMsg:
		m.connStatus = realtime.Status(msg)
		return m, listenStatus(m.deps.Conn.StatusChanges())

	case chatChangedMsg:
		m.refreshTranscript()
		return m, listenChanges(m.changeCh)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateChildren(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.deps.Conn.Disconnect()
		return m, tea.Quit
	}

	if m.view == viewPicker {
		switch msg.String() {
		case "enter":
			item, ok := m.picker.SelectedItem().(pickerItem)
			if !ok {
				return m, nil
			}
			entry := item.agentEntry
			m.current = &entry
			return m, m.openAgentCmd(entry)
		}
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}

	// Chat view keys.
	if blocking := m.deps.Orch.BlockingNotice(); blocking != nil {
		// A blocking notice owns the screen until acknowledged.
		if msg.String() == "esc" || msg.String() == "enter" {
			m.deps.Orch.DismissBlocking()
			m.refreshTranscript()
		}
		return m, nil
	}

	switch msg.String() {
	case "esc":
		m.view = viewPicker
		m.current = nil
		return m, m.fetchAgentsCmd()
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if m.deps.Orch.SendTurn(text) {
			m.input.Reset()
			m.refreshTranscript()
		}
		return m, nil
	case "ctrl+n":
		if m.current != nil {
			return m, m.newSessionCmd(m.current.agent.ID)
		}
		return m, nil
	case "ctrl+r":
		m.deps.Conn.Reconnect()
		return m, nil
	case "ctrl+d":
		m.deps.Orch.DismissBanner()
		m.refreshTranscript()
		return m, nil
	}

	return m.updateChildren(msg)
}

func (m *Model) updateChildren(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	if m.view == viewPicker {
		m.picker, cmd = m.picker.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		m.vp, cmd = m.vp.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) resize(w, h int) {
	m.width = w
	m.height = h
	m.ready = true

	m.picker.SetSize(w, h-1)

	inputHeight := m.input.Height() + 1
	vpHeight := h - inputHeight - 3 // status bar, banner slot, spacing
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.vp.Width = w
	m.vp.Height = vpHeight
	m.input.SetWidth(w - 2)

	if m.deps.Options.Markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(min(w-4, 100)),
		)
		if err == nil {
			m.mdr = r
		}
	}
	m.refreshTranscript()
}

// refreshTranscript re-renders the conversation into the viewport and pins
// the view to the bottom.
func (m *Model) refreshTranscript() {
	if !m.ready || m.view != viewChat {
		return
	}
	m.vp.SetContent(m.renderTranscript())
	m.vp.GotoBottom()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func connStatusLabel(s realtime.Status) string {
	switch s {
	case realtime.StatusConnected:
		return statusOKStyle.Render("● connected")
	case realtime.StatusConnecting:
		return statusWarnStyle.Render("◌ connecting")
	case realtime.StatusReconnecting:
		return statusWarnStyle.Render("◌ reconnecting")
	default:
		return statusBadStyle.Render("○ disconnected")
	}
}

func phaseLabel(p chat.Phase) string {
	switch p {
	case chat.PhaseLoading:
		return "waiting for reply"
	case chat.PhaseStreaming:
		return "streaming"
	default:
		return "idle"
	}
}
