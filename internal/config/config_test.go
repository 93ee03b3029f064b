package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/source"
)

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("LEDGER_DIR", "/data")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: "/home/tester"},
		{in: "~/ledger.db", want: "/home/tester/ledger.db"},
		{in: "$LEDGER_DIR/ledger.db", want: "/data/ledger.db"},
		{in: "/abs/~/x", want: "/abs/~/x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
	assert.Equal(t, "/home/tester/.local/share/spice-ledger/ledger.db", DatabasePath(""))
	assert.Equal(t, "/data/x.db", DatabasePath("$LEDGER_DIR/x.db"))
}

func TestSettingsPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/.config/spice-ledger/importers/nordea.yaml", SettingsPath(DefaultConfigDir, "nordea"))
	assert.Equal(t, "bank.json", SettingsPath(DefaultConfigDir, "bank.json"))
	assert.Equal(t, "/etc/bank", SettingsPath(DefaultConfigDir, "/etc/bank"))
}

const bankSettings = `
format:
  csv:
    column_separator: ";"
    cut_from_beginning: 1
    use_first_line_headings: true
  time_column: Date
  time_format: "02.01.2006"
  numeric_fields: [Amount]
  text_field: Payee
retry:
  max_attempts: 5
  initial_delay: 50ms
source:
  kind: csv
import:
  currency: EUR
  account.income.currency.EUR: 1910
  tags.expense.statement.BOOK: [Books]
  allowShortSelling: true
  rules:
    - name: Salary
      filter: Payee == "ACME"
      result:
        - {reason: "'income'", type: "'currency'", asset: "'EUR'", amount: "num(Amount)"}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadImportConfig_YAML(t *testing.T) {
	settings, err := LoadImportConfig(writeFile(t, "bank.yaml", bankSettings), "")
	require.NoError(t, err)

	assert.Equal(t, source.KindCSV, settings.Kind)
	assert.Equal(t, importer.ParserCSV, settings.Format.Parser)
	assert.Equal(t, ";", settings.Format.CSV.ColumnSeparator)
	assert.Equal(t, 1, settings.Format.CSV.CutFromBeginning)
	assert.Equal(t, "Date", settings.Format.TimeColumn)
	assert.Equal(t, "02.01.2006", settings.Format.TimeFormat)
	assert.Equal(t, []string{"Amount"}, settings.Format.NumericFields)
	assert.Equal(t, 5, settings.Format.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, settings.Format.Retry.InitialDelay)

	account, ok := settings.Config.Account("income.currency.EUR")
	require.True(t, ok)
	assert.Equal(t, "1910", account)
	assert.Equal(t, []string{"Books"}, settings.Config.Tags(model.AccountAddress("expense.statement.BOOK")))
	flag, found := settings.Config.Bool("allowShortSelling")
	assert.True(t, found)
	assert.True(t, flag)
	rules, ok := settings.Config[model.ConfigRules].([]any)
	require.True(t, ok)
	assert.Len(t, rules, 1)
}

func TestLoadImportConfig_JSONSource(t *testing.T) {
	content := `{
  "source": {"kind": "json", "records": "$.trades[*]", "columns": {"date": "$.time", "Amount": "$.qty"}},
  "import": {"currency": "USD"}
}`
	settings, err := LoadImportConfig(writeFile(t, "broker.json", content), "")
	require.NoError(t, err)

	assert.Equal(t, source.KindJSON, settings.Kind)
	assert.Equal(t, importer.ParserCustom, settings.Format.Parser)
	assert.Equal(t, "$.trades[*]", settings.JSONRecords)
	assert.Equal(t, map[string]string{"date": "$.time", "Amount": "$.qty"}, settings.JSONColumns)
	assert.Len(t, settings.SourceOptions(), 2)
	assert.Equal(t, "USD", settings.Config.Currency())
}

func TestLoadImportConfig_TOML(t *testing.T) {
	content := `
[format]
time_column = "when"

[import]
currency = "SEK"
"account.expense.currency.SEK" = "1930"
`
	settings, err := LoadImportConfig(writeFile(t, "bank.toml", content), source.KindText)
	require.NoError(t, err)
	assert.Equal(t, "when", settings.Format.TimeColumn)
	assert.Equal(t, "SEK", settings.Config.Currency())
	assert.Equal(t, "1930", settings.Config.String("account.expense.currency.SEK"))
	assert.Empty(t, settings.SourceOptions())
}

func TestLoadImportConfig_Errors(t *testing.T) {
	_, err := LoadImportConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = LoadImportConfig(writeFile(t, "bad.yaml", "format:\n  parser: xml\n"), "")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = LoadImportConfig(writeFile(t, "bad.yaml", "format:\n  time_column: \"\"\n"), "")
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
