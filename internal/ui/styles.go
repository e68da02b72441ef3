package ui

import "github.com/charmbracelet/lipgloss"

var (
	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	pendingStyle        = lipgloss.NewStyle().Faint(true)
	errorStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	bannerStyle         = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("11")).
				Padding(0, 1)
	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("8")).
			Padding(0, 1)
	statusOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusWarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusBadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle       = lipgloss.NewStyle().Faint(true)
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(1, 2)
	usageStyle = lipgloss.NewStyle().Faint(true)
)
