package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/tui/themes"
)

// ErrAborted is returned when the user leaves the form without saving.
var ErrAborted = errors.New("questions aborted")

// Prompter answers import queries with the full screen form.
type Prompter struct {
	input  io.Reader
	output io.Writer
	theme  themes.Theme
}

// Option configures a Prompter.
type Option func(*Prompter)

// WithTheme sets the color theme.
func WithTheme(theme themes.Theme) Option {
	return func(p *Prompter) { p.theme = theme }
}

// WithIO replaces the terminal streams.
func WithIO(input io.Reader, output io.Writer) Option {
	return func(p *Prompter) {
		p.input = input
		p.output = output
	}
}

// NewPrompter creates a form prompter.
func NewPrompter(opts ...Option) *Prompter {
	p := &Prompter{theme: themes.Default}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ask shows the queries of directions and returns the resulting actions.
func (p *Prompter) Ask(ctx context.Context, directions importer.Directions) ([]importer.Action, error) {
	if directions.Type != importer.DirectionUI || len(directions.Queries) == 0 {
		return nil, nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.input != nil || p.output != nil {
		opts = append(opts, tea.WithInput(p.input), tea.WithOutput(p.output))
	} else {
		opts = append(opts, tea.WithAltScreen())
	}

	final, err := tea.NewProgram(NewModel(directions, p.theme), opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("failed to run TUI: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return nil, fmt.Errorf("unexpected model %T", final)
	}
	if m.Aborted() {
		return nil, ErrAborted
	}
	return m.Actions(), nil
}
