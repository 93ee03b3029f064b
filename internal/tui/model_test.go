package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/tui/themes"
)

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func form(queries ...importer.Query) Model {
	return NewModel(importer.Directions{
		Type:    importer.DirectionUI,
		Element: importer.ElementClassification,
		Queries: queries,
	}, themes.Default)
}

var mystery = importer.Query{
	Kind:    importer.QueryUnclassified,
	Segment: "SEG1",
	Prompt:  "2024-01-05,Mystery,-10.00",
	Line:    3,
}

func TestModel_Unclassified(t *testing.T) {
	tests := []struct {
		want []importer.Action
		name string
		keys []tea.Msg
	}{
		{
			name: "skip",
			keys: []tea.Msg{enter},
			want: []importer.Action{importer.AnswerAction("SEG1", "skip", true)},
		},
		{
			name: "transfers",
			keys: []tea.Msg{down, enter, typed(`{"reason":"fee"}`), enter},
			want: []importer.Action{importer.AnswerAction("SEG1", "transfers", []any{map[string]any{"reason": "fee"}})},
		},
		{
			name: "later",
			keys: []tea.Msg{down, down, enter},
		},
		{
			name: "tab leaves for later",
			keys: []tea.Msg{tab},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := send(t, form(mystery), tt.keys...)
			assert.True(t, m.done)
			assert.Equal(t, tt.want, m.Actions())
		})
	}
}

func TestModel_InvalidTransfersStay(t *testing.T) {
	m := send(t, form(mystery), down, enter, typed("{oops"), enter)

	assert.False(t, m.done)
	assert.Contains(t, m.err, "invalid JSON")
	assert.Contains(t, m.View(), "invalid JSON")

	m = send(t, m, esc)
	assert.Equal(t, inputNone, m.typing)
	assert.Empty(t, m.err)
}

func TestModel_QuestionsAccountsFlags(t *testing.T) {
	choice := importer.Query{
		Kind:     importer.QueryQuestion,
		Segment:  "SEG1",
		Variable: "category",
		Prompt:   "Which category?",
		Type:     "choice",
		Choices:  map[string]any{"Food": "FOOD", "Books": "BOOK"},
	}
	number := importer.Query{
		Kind:     importer.QueryQuestion,
		Segment:  "SEG2",
		Variable: "share",
		Prompt:   "How many shares?",
		Type:     "number",
	}
	account := importer.Query{
		Kind:       importer.QueryAccount,
		Variable:   "account.expense.statement.BOOK",
		Prompt:     "Select account for expense.statement.BOOK",
		Candidates: []string{"4000"},
	}
	other := importer.Query{
		Kind:     importer.QueryAccount,
		Variable: "account.income.statement.SALARY",
		Prompt:   "Select account for income.statement.SALARY",
	}
	flag := importer.Query{Kind: importer.QueryFlag, Variable: "recordDeposits", Prompt: "Record deposits?"}

	m := form(choice, number, account, other, flag)
	assert.Contains(t, m.View(), "Question 1 of 5")
	assert.Contains(t, m.View(), "> Books")

	m = send(t, m, down, enter)
	assert.Equal(t, inputNumber, m.typing)
	m = send(t, m, typed("x"), enter)
	assert.Contains(t, m.err, "not a number")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyBackspace}, typed("2.5"), enter)
	m = send(t, m, enter)
	m = send(t, m, enter, typed("3000"), enter)
	m = send(t, m, down, enter)

	require.True(t, m.done)
	assert.Equal(t, []importer.Action{
		importer.ConfigureAction(map[string]any{
			"account.expense.statement.BOOK":  "4000",
			"account.income.statement.SALARY": "3000",
			"recordDeposits":                  false,
		}),
		{Answer: map[string]map[string]any{
			"SEG1": {"category": "FOOD"},
			"SEG2": {"share": 2.5},
		}},
	}, m.Actions())
}

func TestModel_FinishAndAbort(t *testing.T) {
	second := importer.Query{Kind: importer.QueryUnclassified, Segment: "SEG2", Prompt: "other"}

	m := send(t, form(mystery, second), enter, typed("q"))
	assert.True(t, m.done)
	assert.False(t, m.Aborted())
	assert.Equal(t, []importer.Action{importer.AnswerAction("SEG1", "skip", true)}, m.Actions())

	m = send(t, form(mystery, second), enter, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, m.Aborted())
	assert.Empty(t, m.View())
}

func TestModel_NoQueries(t *testing.T) {
	m := form()
	assert.True(t, m.done)
	assert.Nil(t, m.Actions())
	assert.NotNil(t, m.Init())
}

func TestThemes(t *testing.T) {
	assert.Equal(t, themes.CatppuccinMocha.Primary, themes.ByName("catppuccin").Primary)
	assert.Equal(t, themes.Default.Primary, themes.ByName("unknown").Primary)
}
