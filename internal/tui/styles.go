package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleSubtle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Italic(true)
)

const logoASCII = `
__     __    ___    __  __   ____
\ \   / /   / _ \   \ \/ /  |  _ \
 \ \ / /   | | | |   \  /   | | | |
  \ V /    | |_| |   /  \   | |_| |
   \_/      \___/   /_/\_\  |____/`

// Logo returns the voxd ASCII art
func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}
