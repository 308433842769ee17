package main

import "github.com/charmbracelet/lipgloss"

type styles struct {
	Title        lipgloss.Style
	TitleFocused lipgloss.Style
	Gutter       lipgloss.Style
	Text         lipgloss.Style
	Cursor       lipgloss.Style
	Frame        lipgloss.Style
	Status       lipgloss.Style
	Help         lipgloss.Style
	LogWarn      lipgloss.Style
}

func defaultStyles() styles {
	gutter := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	return styles{
		Title:        lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		TitleFocused: lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		Gutter:       gutter,
		Text:         lipgloss.NewStyle(),
		Cursor:       lipgloss.NewStyle().Reverse(true),
		Frame:        lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")),
		Status:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Help:         gutter,
		LogWarn:      lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}
