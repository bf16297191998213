package styles

import "github.com/charmbracelet/lipgloss"

var (
	TITLE = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7d56f4"))

	INFO = lipgloss.NewStyle().
		Italic(true).
		Foreground(lipgloss.Color("#888888"))

	SUCCESS = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#28a745"))

	WARNING = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ffb000"))

	ERROR = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ee4b2b"))

	// SENDER highlights a node identity in offer lines.
	SENDER = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))

	FILE = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	PAGE = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	TABLE = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7d56f4")).
		Padding(0, 1)
)
