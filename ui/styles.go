package ui

import "github.com/charmbracelet/lipgloss"

var (
	HeaderStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	InputStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("205")).PaddingLeft(1)
	TranscriptBox  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, true, false, true).PaddingLeft(1).PaddingRight(1)
	SentStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ReceivedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	FileStyle      = lipgloss.NewStyle().Underline(true)
	SystemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	ErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	PromptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	TimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Faint(true)
	HelpStyle      = lipgloss.NewStyle().Padding(1, 2).Border(lipgloss.RoundedBorder())
)
