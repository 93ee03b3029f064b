package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// importStages is the number of operations from a fresh import to an
// executed one.
const importStages = 4

// Progress shows how far an import process has moved through its stages.
type Progress struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
}

// NewProgress creates a progress bar for the named process.
func NewProgress(writer io.Writer, name string) *Progress {
	p := &Progress{writer: writer}
	p.bar = progressbar.NewOptions(importStages,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan][bold]Importing %s...[reset]", name)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return p
}

// Report moves the bar to the current step of the process. Its signature
// matches the progress callback of the process runner.
func (p *Progress) Report(process *model.Process, directions importer.Directions) {
	step := process.CurrentStep
	if step > importStages {
		step = importStages
	}
	if err := p.bar.Set(step); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
	if directions.Type == importer.DirectionUI {
		p.bar.Describe(fmt.Sprintf("[yellow]Waiting: %s[reset]", directions))
	}
}

// Finish completes the bar for finished processes and clears it otherwise.
func (p *Progress) Finish(process *model.Process) {
	var err error
	if process != nil && process.Status == model.StatusSucceeded {
		err = p.bar.Finish()
	} else {
		err = p.bar.Clear()
		if _, werr := fmt.Fprintln(p.writer); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}
