// Package themes holds the color themes of the question form.
package themes

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual style for the TUI.
type Theme struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Normal      lipgloss.Style
	Selected    lipgloss.Style
	Code        lipgloss.Style
	RoundedBox  lipgloss.Style
	StatusError lipgloss.Style
	StatusInfo  lipgloss.Style
	Help        lipgloss.Style
	Primary     lipgloss.Color
	Muted       lipgloss.Color
}

// Palette is the set of colors a theme is built from.
type Palette struct {
	Primary    lipgloss.Color
	Foreground lipgloss.Color
	Subtle     lipgloss.Color
	Surface    lipgloss.Color
	Border     lipgloss.Color
	Muted      lipgloss.Color
	Error      lipgloss.Color
	Info       lipgloss.Color
	OnPrimary  lipgloss.Color
}

// New builds a theme from a palette.
func New(p Palette) Theme {
	return Theme{
		Primary: p.Primary,
		Muted:   p.Muted,
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Foreground).
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(p.Subtle),
		Normal: lipgloss.NewStyle().
			Foreground(p.Foreground),
		Selected: lipgloss.NewStyle().
			Background(p.Primary).
			Foreground(p.OnPrimary).
			Bold(true),
		Code: lipgloss.NewStyle().
			Background(p.Surface).
			Foreground(p.Foreground).
			Padding(0, 1),
		RoundedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Border).
			Padding(1, 2),
		StatusError: lipgloss.NewStyle().
			Foreground(p.Error).
			Bold(true),
		StatusInfo: lipgloss.NewStyle().
			Foreground(p.Info).
			Bold(true),
		Help: lipgloss.NewStyle().
			Foreground(p.Muted).
			Italic(true),
	}
}

// Default is the default theme.
var Default = New(Palette{
	Primary:    lipgloss.Color("#7c3aed"),
	Foreground: lipgloss.Color("#fafafa"),
	Subtle:     lipgloss.Color("#a3a3a3"),
	Surface:    lipgloss.Color("#262626"),
	Border:     lipgloss.Color("#404040"),
	Muted:      lipgloss.Color("#737373"),
	Error:      lipgloss.Color("#ef4444"),
	Info:       lipgloss.Color("#3b82f6"),
	OnPrimary:  lipgloss.Color("#fafafa"),
})

// CatppuccinMocha is the Catppuccin Mocha theme.
var CatppuccinMocha = New(Palette{
	Primary:    lipgloss.Color("#cba6f7"),
	Foreground: lipgloss.Color("#cdd6f4"),
	Subtle:     lipgloss.Color("#a6adc8"),
	Surface:    lipgloss.Color("#313244"),
	Border:     lipgloss.Color("#45475a"),
	Muted:      lipgloss.Color("#6c7086"),
	Error:      lipgloss.Color("#f38ba8"),
	Info:       lipgloss.Color("#89dceb"),
	OnPrimary:  lipgloss.Color("#1e1e2e"),
})

// ByName returns a theme by name, falling back to Default.
func ByName(name string) Theme {
	if name == "catppuccin" || name == "catppuccin-mocha" {
		return CatppuccinMocha
	}
	return Default
}
