package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/spice-ledger/internal/importer"
)

// View renders the current question.
func (m Model) View() string {
	if m.done || m.aborted {
		return ""
	}

	q := m.query()
	sections := []string{
		m.theme.Title.Render(m.progress()),
		m.theme.Subtitle.Render(m.element),
		m.renderQuery(q),
	}

	if len(m.options) > 0 {
		sections = append(sections, m.renderOptions())
	}
	if m.typing != inputNone {
		sections = append(sections, m.input.View())
	}
	if m.err != "" {
		sections = append(sections, m.theme.StatusError.Render(m.err))
	}
	sections = append(sections, "", m.theme.Help.Render(m.help.ShortHelpView(m.keymap.ShortHelp())))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderQuery(q importer.Query) string {
	width := m.width - 6
	if width < 20 {
		width = 20
	}

	var body string
	switch q.Kind {
	case importer.QueryUnclassified:
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.theme.StatusInfo.Render("No rule matches line "+strconv.Itoa(q.Line)),
			"",
			m.theme.Code.Render(q.Prompt),
		)
	default:
		body = m.theme.Normal.Render(q.Prompt)
		if q.Rule != "" {
			body = lipgloss.JoinVertical(lipgloss.Left, body, m.theme.Subtitle.Render("Rule: "+q.Rule))
		}
	}
	return m.theme.RoundedBox.Width(width).Render(body)
}

func (m Model) renderOptions() string {
	lines := make([]string, len(m.options))
	for i, opt := range m.options {
		if i == m.cursor && m.typing == inputNone {
			lines[i] = m.theme.Selected.Render("> " + opt.label)
			continue
		}
		lines[i] = m.theme.Normal.Render("  " + opt.label)
	}
	return strings.Join(lines, "\n")
}
