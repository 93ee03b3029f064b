package testutil

import (
	"strings"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// BasicAccounts returns a small chart of accounts: a bank account, a sales
// and a purchases account.
func BasicAccounts() []model.Account {
	return []model.Account{
		{Number: "1910", Name: "Bank", Type: "ASSET", Data: map[string]any{"code": "CASH", "currency": "EUR"}},
		{Number: "3000", Name: "Sales", Type: "REVENUE", Data: map[string]any{"code": "SALES"}},
		{Number: "4000", Name: "Purchases", Type: "EXPENSE", Data: map[string]any{"code": "PURCHASES"}},
	}
}

// TextFile builds an import file with one line per line of text.
func TextFile(name, text string) model.ImportFile {
	file := model.ImportFile{Name: name, Type: "text/csv"}
	for i, line := range strings.Split(text, "\n") {
		file.Lines = append(file.Lines, model.TextFileLine{Line: i, Text: line})
	}
	return file
}
