package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Priority colors
	colorHighest = lipgloss.Color("196") // red
	colorHigh    = lipgloss.Color("214") // orange
	colorLow     = lipgloss.Color("252") // light gray
	colorLowest  = lipgloss.Color("240") // gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingLeft(1).
			PaddingRight(1)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Background(lipgloss.Color("237"))

	directStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")) // green

	teamStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")) // purple

	draftStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

func priorityColor(p string) lipgloss.Color {
	switch p {
	case "highest":
		return colorHighest
	case "high":
		return colorHigh
	case "lowest":
		return colorLowest
	default:
		return colorLow
	}
}
