// Package tui is a full screen form for answering the questions of an import
// waiting for the user.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/tui/themes"
)

// inputKind tells how typed input is parsed.
type inputKind int

const (
	inputNone inputKind = iota
	inputText
	inputNumber
	inputAccount
	inputTransfers
)

// option is one selectable line of a query.
type option struct {
	value    any
	label    string
	variable string
	input    inputKind
	later    bool
}

// Model holds the question form state.
type Model struct {
	theme   themes.Theme
	help    help.Model
	answers *importer.Answers
	keymap  KeyMap
	err     string
	element string
	queries []importer.Query
	options []option
	input   textinput.Model
	index   int
	cursor  int
	width   int
	typing  inputKind
	aborted bool
	done    bool
}

// NewModel creates a form for the queries of UI directions.
func NewModel(directions importer.Directions, theme themes.Theme) Model {
	input := textinput.New()
	input.CharLimit = 4096
	input.Width = 60

	m := Model{
		theme:   theme,
		help:    help.New(),
		answers: &importer.Answers{},
		keymap:  DefaultKeyMap(),
		element: directions.Element,
		queries: directions.Queries,
		input:   input,
		width:   80,
	}
	if len(m.queries) == 0 {
		m.done = true
		return m
	}
	m.load()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	if m.typing != inputNone {
		return textinput.Blink
	}
	return nil
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.Abort) {
			m.aborted = true
			return m, tea.Quit
		}
		if m.typing != inputNone {
			return m.updateInput(msg)
		}
		return m.updateOptions(msg)
	}

	if m.typing != inputNone {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateOptions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keymap.Down):
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keymap.Select):
		return m, m.choose(m.options[m.cursor])
	case key.Matches(msg, m.keymap.Later):
		return m, m.next()
	case key.Matches(msg, m.keymap.Finish):
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Select):
		return m, m.submit()
	case key.Matches(msg, m.keymap.Later):
		return m, m.next()
	case key.Matches(msg, m.keymap.Back):
		if len(m.options) == 0 {
			return m, m.next()
		}
		m.typing = inputNone
		m.err = ""
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) choose(opt option) tea.Cmd {
	switch {
	case opt.later:
		return m.next()
	case opt.input != inputNone:
		return m.startInput(opt.input)
	}
	m.answers.Set(m.query(), opt.variable, opt.value)
	return m.next()
}

func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m.next()
	}

	q := m.query()
	variable := q.Variable
	var value any
	var err error
	switch m.typing {
	case inputNumber:
		value, err = cli.ParseNumber(text)
	case inputAccount:
		value, err = cli.ParseAccount(text)
	case inputTransfers:
		variable = "transfers"
		value, err = cli.ParseTransfers(text)
	default:
		value = text
	}
	if err != nil {
		m.err = err.Error()
		return nil
	}
	m.answers.Set(q, variable, value)
	return m.next()
}

func (m *Model) next() tea.Cmd {
	m.index++
	if m.index >= len(m.queries) {
		m.done = true
		return tea.Quit
	}
	m.load()
	if m.typing != inputNone {
		return textinput.Blink
	}
	return nil
}

func (m *Model) startInput(kind inputKind) tea.Cmd {
	m.typing = kind
	m.err = ""
	m.input.Reset()
	switch kind {
	case inputTransfers:
		m.input.Placeholder = `[{"reason":"expense","type":"currency","asset":"EUR","amount":10}]`
	case inputAccount:
		m.input.Placeholder = "account number"
	case inputNumber:
		m.input.Placeholder = "number"
	default:
		m.input.Placeholder = ""
	}
	return m.input.Focus()
}

// load prepares the options of the current query.
func (m *Model) load() {
	q := m.query()
	m.cursor = 0
	m.err = ""
	m.typing = inputNone
	m.input.Blur()
	m.options = optionsFor(q)
	if len(m.options) == 0 {
		kind := inputText
		if q.Type == "number" {
			kind = inputNumber
		}
		m.startInput(kind)
	}
}

func optionsFor(q importer.Query) []option {
	later := option{label: "Answer later", later: true}
	switch q.Kind {
	case importer.QueryUnclassified:
		return []option{
			{label: "Skip the line", variable: "skip", value: true},
			{label: "Enter transfers", input: inputTransfers},
			later,
		}
	case importer.QueryFlag:
		return []option{
			{label: "Yes", variable: q.Variable, value: true},
			{label: "No", variable: q.Variable, value: false},
			later,
		}
	case importer.QueryAccount:
		opts := make([]option, 0, len(q.Candidates)+2)
		for _, c := range q.Candidates {
			opts = append(opts, option{label: c, variable: q.Variable, value: c})
		}
		return append(opts, option{label: "Other account", input: inputAccount}, later)
	}

	if q.Type != "choice" {
		return nil
	}
	labels := make([]string, 0, len(q.Choices))
	for label := range q.Choices {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	opts := make([]option, 0, len(labels)+1)
	for _, label := range labels {
		opts = append(opts, option{label: label, variable: q.Variable, value: q.Choices[label]})
	}
	return append(opts, later)
}

func (m Model) query() importer.Query {
	return m.queries[m.index]
}

// Actions returns the actions built from the answers given so far.
func (m Model) Actions() []importer.Action {
	return m.answers.Actions()
}

// Aborted reports whether the user quit without saving.
func (m Model) Aborted() bool {
	return m.aborted
}

// progress describes the position in the form.
func (m Model) progress() string {
	return fmt.Sprintf("Question %d of %d", m.index+1, len(m.queries))
}
