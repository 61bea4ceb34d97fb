package render

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPrimary   = lipgloss.Color("12")  // bright blue
	colorSecondary = lipgloss.Color("10")  // bright green
	colorDimmed    = lipgloss.Color("240") // gray
	colorHighlight = lipgloss.Color("11")  // bright yellow
	colorError     = lipgloss.Color("9")   // bright red
	colorMagenta   = lipgloss.Color("13")

	styleUser = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleAI = lipgloss.NewStyle().
		Foreground(colorSecondary).
		Bold(true)

	styleSystem = lipgloss.NewStyle().
			Foreground(colorHighlight)

	styleCompact = lipgloss.NewStyle().
			Foreground(colorDimmed).
			Italic(true)

	styleThinking = lipgloss.NewStyle().
			Foreground(colorMagenta).
			Faint(true)

	styleTool = lipgloss.NewStyle().
			Foreground(colorHighlight)

	styleSubagent = lipgloss.NewStyle().
			Foreground(colorPrimary)

	styleError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	styleDim = lipgloss.NewStyle().
			Foreground(colorDimmed)

	styleTitle = lipgloss.NewStyle().
			Foreground(colorDimmed).
			Bold(true)
)
