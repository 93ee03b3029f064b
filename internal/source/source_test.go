package source

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/importer"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{path: "bank.csv", want: KindCSV},
		{path: "BANK.TSV", want: KindCSV},
		{path: "export.ofx", want: KindOFX},
		{path: "export.QFX", want: KindOFX},
		{path: "statement.pdf", want: KindPDF},
		{path: "broker.json", want: KindJSON},
		{path: "notes.txt", want: KindText},
		{path: "noext", want: KindText},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.path))
		})
	}
}

func TestRead_Text(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		encoding string
		want     []string
	}{
		{name: "unix", data: []byte("a,b\n1,2\n"), encoding: "utf-8", want: []string{"a,b", "1,2"}},
		{name: "windows", data: []byte("a,b\r\n1,2\r\n"), encoding: "utf-8", want: []string{"a,b", "1,2"}},
		{name: "bom", data: []byte("\xef\xbb\xbfa,b\n1,2"), encoding: "utf-8", want: []string{"a,b", "1,2"}},
		{name: "empty lines kept", data: []byte("a\n\nb\n"), encoding: "utf-8", want: []string{"a", "", "b"}},
		{name: "latin1", data: []byte("caf\xe9,1\n"), encoding: "iso-8859-1", want: []string{"café,1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := ReadBytes("bank.csv", tt.data, KindCSV, quiet())
			require.NoError(t, err)
			assert.Equal(t, "text/csv", file.Type)
			assert.Equal(t, tt.encoding, file.Encoding)
			require.Len(t, file.Lines, len(tt.want))
			for i, text := range tt.want {
				assert.Equal(t, i, file.Lines[i].Line)
				assert.Equal(t, text, file.Lines[i].Text)
				assert.False(t, file.Lines[i].HasColumns())
			}
		})
	}
}

func TestRead_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,amount\n2023-01-01,5\n"), 0o600))

	file, err := Read(path, "", quiet())
	require.NoError(t, err)
	assert.Equal(t, "bank.csv", file.Name)
	assert.Len(t, file.Lines, 2)

	_, err = Read(filepath.Join(t.TempDir(), "missing.csv"), KindCSV, quiet())
	assert.Error(t, err)

	_, err = ReadBytes("x", nil, Kind("xlsx"), quiet())
	assert.ErrorIs(t, err, ErrUnknownKind)
}

const bankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>POS PURCHASE STARBUCKS #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240128120000[0:GMT]
<TRNAMT>1000
<FITID>2024012801
<NAME>CREDIT
<MEMO>ACME PAYROLL
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestRead_OFX(t *testing.T) {
	file, err := ReadBytes("bank.ofx", []byte("\n\n"+bankOFX), KindOFX, quiet())
	require.NoError(t, err)
	require.Len(t, file.Lines, 3)

	first := file.Lines[0]
	assert.Equal(t, "2024-01-15,STARBUCKS #1234,-25.50", first.Text)
	assert.Equal(t, map[string]string{
		ColumnID:          "2024011501",
		ColumnDate:        "2024-01-15",
		ColumnDescription: "STARBUCKS #1234",
		ColumnAmount:      "-25.50",
		ColumnAccount:     "1234567890",
		ColumnCurrency:    "USD",
		ColumnType:        "DEBIT",
	}, first.Columns)

	assert.Equal(t, "1234", file.Lines[1].Columns[ColumnCheck])
	assert.Equal(t, "CHECK", file.Lines[1].Columns[ColumnType])
	assert.Equal(t, "ACME PAYROLL", file.Lines[2].Columns[ColumnDescription])
	assert.Equal(t, "1000.00", file.Lines[2].Columns[ColumnAmount])

	_, err = ReadBytes("bad.ofx", []byte("not ofx"), KindOFX, quiet())
	assert.ErrorIs(t, err, common.ErrInvalidFile)
}

func TestPreprocessOFX(t *testing.T) {
	in := "\n  <OFX>\n<SEVERITY>Warn</SEVERITY>\n<CODE\n"
	assert.Equal(t, "<OFX>\n<SEVERITY>WARN</SEVERITY>\n<CODE>\n", preprocessOFX(in))
}

const brokerJSON = `{
  "account": "X-1",
  "trades": [
    {"time": "2023-02-01", "side": "buy", "symbol": "ACME", "qty": 10, "price": {"value": 12.5}},
    {"time": "2023-02-03", "side": "sell", "symbol": "ACME", "qty": 4, "price": {"value": 13}},
    {"time": "2023-02-04", "side": "dividend", "symbol": "ACME"}
  ]
}`

func TestRead_JSON(t *testing.T) {
	file, err := ReadBytes("broker.json", []byte(brokerJSON), KindJSON, quiet(),
		WithJSONRecords("$.trades[*]"),
		WithJSONColumns(map[string]string{
			"date":   "$.time",
			"type":   "$.side",
			"asset":  "$.symbol",
			"amount": "$.qty",
			"price":  "$.price.value",
		}))
	require.NoError(t, err)
	require.Len(t, file.Lines, 3)

	assert.Equal(t, map[string]string{
		"date": "2023-02-01", "type": "buy", "asset": "ACME", "amount": "10", "price": "12.5",
	}, file.Lines[0].Columns)
	assert.Equal(t, "13", file.Lines[1].Columns["price"])
	assert.Equal(t, "", file.Lines[2].Columns["amount"], "missing members give empty columns")
	assert.JSONEq(t, `{"time": "2023-02-04", "side": "dividend", "symbol": "ACME"}`, file.Lines[2].Text)
	assert.Equal(t, 2, file.Lines[2].Line)
}

func TestRead_JSONWithoutColumns(t *testing.T) {
	data := `[{"date": "2023-01-01", "amount": -5.25, "flag": true, "nested": {"a": 1}}]`
	file, err := ReadBytes("tx.json", []byte(data), KindJSON, quiet())
	require.NoError(t, err)
	require.Len(t, file.Lines, 1)
	assert.Equal(t, map[string]string{"date": "2023-01-01", "amount": "-5.25", "flag": "true"}, file.Lines[0].Columns)

	_, err = ReadBytes("tx.json", []byte(`[1, 2]`), KindJSON, quiet())
	assert.ErrorIs(t, err, common.ErrInvalidFile)
	_, err = ReadBytes("tx.json", []byte(`{`), KindJSON, quiet())
	assert.ErrorIs(t, err, common.ErrInvalidFile)
}

func TestRead_PDFRejectsGarbage(t *testing.T) {
	_, err := ReadBytes("statement.pdf", []byte("%PDF-1.4 truncated"), KindPDF, quiet())
	assert.ErrorIs(t, err, common.ErrInvalidFile)
}

func TestImportConfig(t *testing.T) {
	for _, kind := range []Kind{KindCSV, KindText, KindOFX, KindPDF, KindJSON} {
		cfg := ImportConfig(kind)
		require.NoError(t, cfg.Validate(), kind)
	}
	ofx := ImportConfig(KindOFX)
	assert.Equal(t, importer.ParserCustom, ofx.Parser)
	assert.Equal(t, []string{ColumnID}, ofx.SegmentColumns)
	assert.Equal(t, importer.ParserCSV, ImportConfig(KindCSV).Parser)
}
