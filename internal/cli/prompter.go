package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/importer"
)

// errLater marks a query the user chose to leave unanswered for now.
var errLater = errors.New("answer later")

// Prompter asks the queries of UI directions on a terminal and turns the
// answers into import actions.
type Prompter struct {
	writer io.Writer
	reader *LineReader
}

// NewPrompter creates a prompter reading answers from reader.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{reader: NewLineReader(reader), writer: writer}
}

// Ask goes through the queries of directions. Account and flag answers are
// merged into one configure action and segment answers into one answer
// action. An empty input leaves a query for later. When the input ends the
// answers given so far are returned.
func (p *Prompter) Ask(ctx context.Context, directions importer.Directions) ([]importer.Action, error) {
	if directions.Type != importer.DirectionUI || len(directions.Queries) == 0 {
		return nil, nil
	}

	p.println(FormatTitle(fmt.Sprintf("%d questions about the import", len(directions.Queries))))

	var answers importer.Answers

queries:
	for i, query := range directions.Queries {
		p.println("")
		p.println(SubtleStyle.Render(fmt.Sprintf("[%d/%d]", i+1, len(directions.Queries))))

		variable, value, err := p.ask(ctx, query)
		switch {
		case errors.Is(err, errLater):
			continue
		case errors.Is(err, io.EOF):
			break queries
		case err != nil:
			return nil, err
		}
		answers.Set(query, variable, value)
	}
	return answers.Actions(), nil
}

func (p *Prompter) ask(ctx context.Context, query importer.Query) (string, any, error) {
	switch query.Kind {
	case importer.QueryUnclassified:
		return p.askUnclassified(ctx, query)
	case importer.QueryAccount:
		value, err := p.askAccount(ctx, query)
		return query.Variable, value, err
	case importer.QueryFlag:
		value, err := p.askFlag(ctx, query.Prompt)
		return query.Variable, value, err
	}

	p.println(InfoStyle.Render(query.Prompt))
	if query.Type == "choice" {
		value, err := p.askChoice(ctx, query.Choices)
		return query.Variable, value, err
	}
	value, err := p.askText(ctx, query.Type)
	return query.Variable, value, err
}

func (p *Prompter) askUnclassified(ctx context.Context, query importer.Query) (string, any, error) {
	p.println(WarningStyle.Render("No rule matches line " + strconv.Itoa(query.Line)))
	p.println(BoxStyle.Render(query.Prompt))
	p.println("[S]kip  [T]ransfers  [L]ater")

	choice, err := p.promptChoice(ctx, "Choice", []string{"s", "t", "l", ""})
	if err != nil {
		return "", nil, err
	}
	switch choice {
	case "s":
		return "skip", true, nil
	case "t":
		transfers, err := p.askTransfers(ctx)
		return "transfers", transfers, err
	default:
		return "", nil, errLater
	}
}

// askTransfers reads a JSON list of transfers or a single transfer object.
func (p *Prompter) askTransfers(ctx context.Context) ([]any, error) {
	for {
		input, err := p.prompt(ctx, "Transfers as JSON")
		if err != nil {
			return nil, err
		}
		if input == "" {
			return nil, errLater
		}

		transfers, err := ParseTransfers(input)
		if err != nil {
			p.println(FormatError(err.Error()))
			continue
		}
		return transfers, nil
	}
}

func (p *Prompter) askChoice(ctx context.Context, choices map[string]any) (any, error) {
	labels := make([]string, 0, len(choices))
	for label := range choices {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	valid := make([]string, 0, len(labels)+1)
	for i, label := range labels {
		p.println(fmt.Sprintf("  %d. %s", i+1, label))
		valid = append(valid, strconv.Itoa(i+1))
	}
	valid = append(valid, "")

	choice, err := p.promptChoice(ctx, "Number", valid)
	if err != nil {
		return nil, err
	}
	if choice == "" {
		return nil, errLater
	}
	n, _ := strconv.Atoi(choice)
	return choices[labels[n-1]], nil
}

func (p *Prompter) askText(ctx context.Context, kind string) (any, error) {
	for {
		input, err := p.prompt(ctx, "Answer")
		if err != nil {
			return nil, err
		}
		if input == "" {
			return nil, errLater
		}
		if kind != "number" {
			return input, nil
		}
		number, err := ParseNumber(input)
		if err != nil {
			p.println(FormatError(err.Error()))
			continue
		}
		return number, nil
	}
}

func (p *Prompter) askAccount(ctx context.Context, query importer.Query) (string, error) {
	p.println(InfoStyle.Render(query.Prompt))
	for i, candidate := range query.Candidates {
		p.println(fmt.Sprintf("  %d. %s", i+1, candidate))
	}

	for {
		input, err := p.prompt(ctx, "Account number or choice")
		if err != nil {
			return "", err
		}
		if input == "" {
			return "", errLater
		}
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(query.Candidates) && len(input) < 3 {
			return query.Candidates[n-1], nil
		}
		account, err := ParseAccount(input)
		if err != nil {
			p.println(FormatError(err.Error()))
			continue
		}
		return account, nil
	}
}

func (p *Prompter) askFlag(ctx context.Context, prompt string) (bool, error) {
	p.println(InfoStyle.Render(prompt))
	choice, err := p.promptChoice(ctx, "[y/n]", []string{"y", "yes", "n", "no", ""})
	if err != nil {
		return false, err
	}
	if choice == "" {
		return false, errLater
	}
	return choice == "y" || choice == "yes", nil
}

// promptChoice repeats the prompt until one of validChoices is entered.
func (p *Prompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		input, err := p.prompt(ctx, prompt)
		if err != nil {
			return "", err
		}
		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}
		p.println(FormatError("Invalid choice. Please try again."))
	}
}

func (p *Prompter) prompt(ctx context.Context, prompt string) (string, error) {
	if _, err := fmt.Fprintf(p.writer, "%s ", FormatPrompt(prompt)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	return p.reader.ReadLine(ctx)
}

func (p *Prompter) println(text string) {
	if _, err := fmt.Fprintln(p.writer, text); err != nil {
		slog.Warn("Failed to write output", "error", err)
	}
}
