package main

import (
	"strings"

	"boardedit/internal/diff"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent = lipgloss.Color("#8BC34A")
	colorMuted  = lipgloss.Color("#8a94a6")
	colorAdd    = lipgloss.Color("#3fb950")
	colorDel    = lipgloss.Color("#f85149")
	colorWarn   = lipgloss.Color("#d29922")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(16)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle    = lipgloss.NewStyle().Foreground(colorAdd)
	failStyle  = lipgloss.NewStyle().Foreground(colorDel).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	addStyle   = lipgloss.NewStyle().Foreground(colorAdd)
	delStyle   = lipgloss.NewStyle().Foreground(colorDel)
	hunkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#58a6ff"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

// row renders one "label value" line.
func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// renderDiff colors a unified diff line by line.
func renderDiff(d *diff.FileDiff) string {
	if d.Empty() {
		return mutedStyle.Render("no changes")
	}
	lines := strings.Split(strings.TrimSuffix(d.Unified(), "\n"), "\n")
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"):
			lines[i] = titleStyle.Render(l)
		case strings.HasPrefix(l, "@@"):
			lines[i] = hunkStyle.Render(l)
		case strings.HasPrefix(l, "+"):
			lines[i] = addStyle.Render(l)
		case strings.HasPrefix(l, "-"):
			lines[i] = delStyle.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

// renderError formats a command failure once.
func renderError(err error) string {
	return failStyle.Render("error:") + " " + err.Error()
}
