package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"agentdeck/internal/api"
	"agentdeck/internal/realtime"
	"agentdeck/internal/session"
)

// agentEntry pairs an agent with its project for the picker.
type agentEntry struct {
	agent   api.Agent
	project api.Project
}

type (
	// agentsLoadedMsg carries the picker contents after the initial fetch.
	agentsLoadedMsg struct {
		entries []agentEntry
		err     error
	}

	// resumeLoadedMsg carries a restored conversation for the opened agent.
	resumeLoadedMsg struct {
		agentID string
		resume  session.Resume
	}

	// connStatusMsg is one transition from the connection manager.
	connStatusMsg realtime.Status

	// chatChangedMsg signals that the orchestrator mutated observable state.
	chatChangedMsg struct{}

	// sessionClearedMsg reports the outcome of a new-session request.
	sessionClearedMsg struct {
		agentID string
		err     error
	}
)

// listenStatus forwards the next connection status transition into the
// program. The command re-arms itself from Update.
func listenStatus(ch <-chan realtime.Status) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return connStatusMsg(s)
	}
}

// listenChanges forwards the next orchestrator change signal.
func listenChanges(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		_, ok := <-ch
		if !ok {
			return nil
		}
		return chatChangedMsg{}
	}
}
