package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent   = lipgloss.AdaptiveColor{Light: "#0f766e", Dark: "#5eead4"}
	colorClinical = lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#93c5fd"}
	colorMuted    = lipgloss.AdaptiveColor{Light: "#64748b", Dark: "#94a3b8"}
	colorUser     = lipgloss.AdaptiveColor{Light: "#334155", Dark: "#e2e8f0"}
	colorError    = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#fca5a5"}
)

type styles struct {
	Title        lipgloss.Style
	Subtitle     lipgloss.Style
	User         lipgloss.Style
	UserLabel    lipgloss.Style
	Receptionist lipgloss.Style
	Clinical     lipgloss.Style
	Badge        lipgloss.Style
	Body         lipgloss.Style
	SourcesTitle lipgloss.Style
	Source       lipgloss.Style
	Typing       lipgloss.Style
	Help         lipgloss.Style
	Disclaimer   lipgloss.Style
	Failure      lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title:        lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Subtitle:     lipgloss.NewStyle().Foreground(colorMuted),
		User:         lipgloss.NewStyle().Foreground(colorUser).PaddingLeft(2),
		UserLabel:    lipgloss.NewStyle().Bold(true).Foreground(colorUser),
		Receptionist: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Clinical:     lipgloss.NewStyle().Bold(true).Foreground(colorClinical),
		Badge:        lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		Body:         lipgloss.NewStyle().PaddingLeft(2),
		SourcesTitle: lipgloss.NewStyle().Foreground(colorMuted).PaddingLeft(2),
		Source:       lipgloss.NewStyle().Foreground(colorMuted).PaddingLeft(4),
		Typing:       lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		Help:         lipgloss.NewStyle().Foreground(colorMuted),
		Disclaimer:   lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		Failure:      lipgloss.NewStyle().Foreground(colorError).PaddingLeft(2),
	}
}
