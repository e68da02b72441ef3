package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"agentdeck/internal/protocol"
)

// Run starts the terminal client and blocks until the user quits.
func Run(deps Deps) error {
	// A handshake-level credential rejection never reaches the event stream,
	// so it is surfaced as a blocking notice directly.
	deps.Conn.SetAuthRejectedHandler(func() {
		deps.Orch.RaiseBlocking(protocol.CodeInvalidCredential,
			"The gateway rejected your credential. Log in again and restart.")
	})

	m := NewModel(deps)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
