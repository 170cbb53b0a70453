package tui

import "github.com/charmbracelet/lipgloss"

// Color palette for the voxd TUI
var (
	ColorPrimary   = lipgloss.Color("#2DD4BF") // Teal - main accent
	ColorSecondary = lipgloss.Color("#818CF8") // Indigo - secondary accent

	ColorSuccess = lipgloss.Color("#22C55E") // Green
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorWarning = lipgloss.Color("#F59E0B") // Amber

	ColorText   = lipgloss.Color("#F8FAFC") // Bright white
	ColorMuted  = lipgloss.Color("#94A3B8") // Slate gray
	ColorSubtle = lipgloss.Color("#64748B") // Darker gray
)
