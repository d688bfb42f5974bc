// Package ui provides terminal styling for tagsync CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Ayu theme color palette
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconInfo = "ℹ"
)

const SeparatorLight = "──────────────────────────────────────────"

var (
	renderer = lipgloss.NewRenderer(os.Stdout)

	passStyle   lipgloss.Style
	warnStyle   lipgloss.Style
	failStyle   lipgloss.Style
	mutedStyle  lipgloss.Style
	accentStyle lipgloss.Style
	headerStyle lipgloss.Style
)

func init() {
	buildStyles()
}

func buildStyles() {
	passStyle = renderer.NewStyle().Foreground(ColorPass)
	warnStyle = renderer.NewStyle().Foreground(ColorWarn)
	failStyle = renderer.NewStyle().Foreground(ColorFail)
	mutedStyle = renderer.NewStyle().Foreground(ColorMuted)
	accentStyle = renderer.NewStyle().Foreground(ColorAccent)
	headerStyle = renderer.NewStyle().Bold(true).Foreground(ColorAccent)
}

// Setup picks the color profile. Output is plain when noColor is set, when
// NO_COLOR is in the environment, or when stdout is not a terminal.
func Setup(noColor bool) {
	_, envNoColor := os.LookupEnv("NO_COLOR")
	if noColor || envNoColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		SetColorProfile(termenv.Ascii)
		return
	}
	SetColorProfile(termenv.EnvColorProfile())
}

// SetColorProfile forces a color profile. Tests use termenv.Ascii.
func SetColorProfile(p termenv.Profile) {
	renderer.SetColorProfile(p)
	buildStyles()
}

// RenderPass renders text with pass (green) styling
func RenderPass(s string) string {
	return passStyle.Render(s)
}

// RenderWarn renders text with warning (yellow) styling
func RenderWarn(s string) string {
	return warnStyle.Render(s)
}

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string {
	return failStyle.Render(s)
}

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string {
	return mutedStyle.Render(s)
}

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string {
	return accentStyle.Render(s)
}

// RenderHeader renders a bold section header
func RenderHeader(s string) string {
	return headerStyle.Render(s)
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return mutedStyle.Render(SeparatorLight)
}
