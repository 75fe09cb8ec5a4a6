package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	ok     lipgloss.Style
	bad    lipgloss.Style
	wait   lipgloss.Style
	dim    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4")),
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F9FAFB")),
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")),
		bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		wait:   lipgloss.NewStyle().Foreground(lipgloss.Color("#EAB308")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	}
}
