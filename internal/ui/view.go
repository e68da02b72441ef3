package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"agentdeck/internal/chat"
)

func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}

	if m.view == viewPicker {
		return m.viewPicker()
	}
	return m.viewChat()
}

func (m *Model) viewPicker() string {
	var b strings.Builder
	b.WriteString(m.picker.View())
	b.WriteString("\n")
	if m.loadErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("could not load agents: %v", m.loadErr)))
	} else {
		b.WriteString(helpStyle.Render("enter: open agent · ctrl+c: quit"))
	}
	return b.String()
}

func (m *Model) viewChat() string {
	if blocking := m.deps.Orch.BlockingNotice(); blocking != nil {
		return m.viewBlocking(blocking)
	}

	var b strings.Builder

	if banner := m.deps.Orch.BannerNotice(); banner != nil {
		b.WriteString(bannerStyle.Width(m.width).Render(banner.Message + "  (ctrl+d to dismiss)"))
		b.WriteString("\n")
	}

	b.WriteString(m.vp.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.statusBar())
	return b.String()
}

// viewBlocking replaces the chat with a modal the user must acknowledge.
func (m *Model) viewBlocking(n *chat.Notice) string {
	body := fmt.Sprintf("%s\n\n%s\n\n%s",
		errorStyle.Bold(true).Render("Action required"),
		n.Message,
		helpStyle.Render("enter or esc to dismiss"))
	box := modalStyle.Render(body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) statusBar() string {
	agentName := "no agent"
	if m.current != nil {
		agentName = m.current.project.Name + "/" + m.current.agent.Name
	}

	phase := phaseLabel(m.deps.Orch.Phase())
	if m.deps.Orch.Phase() != chat.PhaseIdle {
		phase = m.spin.View() + phase
	}

	left := fmt.Sprintf("%s  %s  %s", connStatusLabel(m.connStatus), agentName, phase)

	var right string
	if stats := m.deps.Conn.GetStats(); stats.QueueDepth > 0 {
		right = statusWarnStyle.Render(fmt.Sprintf("%d queued", stats.QueueDepth))
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// renderTranscript flattens the conversation into viewport content.
func (m *Model) renderTranscript() string {
	msgs := m.deps.Orch.Messages()
	if len(msgs) == 0 {
		return pendingStyle.Render("No messages yet. Say something.")
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderMessage(msg chat.Message) string {
	var b strings.Builder

	switch msg.Role {
	case chat.RoleUser:
		b.WriteString(userLabelStyle.Render("you"))
		b.WriteString("\n")
		b.WriteString(msg.Content)

	case chat.RoleAssistant:
		b.WriteString(assistantLabelStyle.Render("agent"))
		b.WriteString("\n")

		switch msg.Status {
		case chat.StatusPending:
			b.WriteString(pendingStyle.Render("…"))
		case chat.StatusStreaming:
			b.WriteString(msg.Content)
		case chat.StatusComplete:
			b.WriteString(m.renderBody(msg.Content))
			if msg.Usage != nil {
				b.WriteString("\n")
				b.WriteString(usageStyle.Render(fmt.Sprintf("tokens: %d in / %d out",
					msg.Usage.InputTokens, msg.Usage.OutputTokens)))
			}
		case chat.StatusFailed:
			if msg.Content != "" {
				b.WriteString(msg.Content)
				b.WriteString("\n")
			}
			note := msg.ErrorNote
			if note == "" {
				note = "the turn failed"
			}
			b.WriteString(errorStyle.Render("✗ " + note))
		}
	}

	return b.String()
}

// renderBody runs finalized assistant content through the markdown renderer
// when one is available.
func (m *Model) renderBody(content string) string {
	if m.mdr == nil {
		return content
	}
	out, err := m.mdr.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
