package source

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Veraticus/spice-ledger/internal/model"
)

var errNoPages = errors.New("PDF has no pages")

func readPDF(name string, data []byte, o *options) (file model.ImportFile, err error) {
	// The PDF reader panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			err = invalid(name, fmt.Errorf("PDF reader crashed: %v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return model.ImportFile{}, invalid(name, err)
	}
	if r.NumPage() == 0 {
		return model.ImportFile{}, invalid(name, errNoPages)
	}

	var text []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			o.logger.Warn("Skipping unreadable PDF page", "name", name, "page", i, "error", err)
			continue
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			if line := strings.TrimSpace(strings.Join(words, " ")); line != "" {
				text = append(text, line)
			}
		}
	}

	lines := make([]model.TextFileLine, len(text))
	for i, t := range text {
		lines[i] = model.TextFileLine{Line: i, Text: t}
	}
	return model.ImportFile{Name: name, Type: "application/pdf", Lines: lines}, nil
}
