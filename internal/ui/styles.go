package ui

import "github.com/charmbracelet/lipgloss"

// Brand colors
var (
	edgeTeal  = lipgloss.Color("#14B8A6")
	edgeCyan  = lipgloss.Color("#73D9F6")
	edgeLight = lipgloss.Color("#ECEDEE")
	edgeGray  = lipgloss.Color("#4A4A5A")

	// Status colors
	successColor = lipgloss.Color("#4ADE80")
	errorColor   = lipgloss.Color("#F87171")
	warnColor    = lipgloss.Color("#FBBF24")
	mutedColor   = lipgloss.Color("#64748B")
)

// LogoCompact returns a compact inline logo for the header
func LogoCompact() string {
	mark := lipgloss.NewStyle().Foreground(edgeTeal).Bold(true).Render("◆")
	name := lipgloss.NewStyle().Foreground(edgeLight).Bold(true).Render("lazyedge")
	return mark + " " + name
}

// Styles
var (
	versionStyle = lipgloss.NewStyle().
			Foreground(edgeCyan)

	titleStyle = lipgloss.NewStyle().
			Foreground(edgeTeal).
			Bold(true)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(edgeTeal).
			Padding(1, 2)

	actionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(edgeGray).
			Padding(0, 1)

	activeActionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(edgeTeal).
				Padding(0, 1)

	selectedNameStyle = lipgloss.NewStyle().
				Foreground(edgeCyan).
				Bold(true)

	nameStyle = lipgloss.NewStyle().
			Foreground(edgeLight)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(14)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(edgeCyan).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// StatusDot returns a colored dot
func StatusDot(online bool) string {
	if online {
		return onlineStyle.Render("●")
	}
	return offlineStyle.Render("○")
}

// StatusIcon is a check for usable devices and an alert for everything else.
func StatusIcon(online, paired bool) string {
	if online && paired {
		return successStyle.Render("✓")
	}
	return warnStyle.Render("⚠")
}
