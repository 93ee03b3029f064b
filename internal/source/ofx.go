package source

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// Extra columns of OFX lines.
const (
	ColumnAccount  = "account"
	ColumnCurrency = "currency"
	ColumnType     = "type"
	ColumnCheck    = "check"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRegex  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes formatting problems ofxgo does not accept.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	// SGML files sometimes lose the closing bracket of a tag on its own line.
	return openTagRegex.ReplaceAllString(content, "$1>")
}

func readOFX(name string, data []byte, o *options) (model.ImportFile, error) {
	text, encoding := decode(data)
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(text)))
	if err != nil {
		return model.ImportFile{}, invalid(name, fmt.Errorf("failed to parse OFX: %w", err))
	}

	var rows []map[string]string
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		for _, tx := range stmt.BankTranList.Transactions {
			rows = append(rows, ofxRow(tx, string(stmt.BankAcctFrom.AcctID), stmt.CurDef.String()))
		}
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		for _, tx := range stmt.BankTranList.Transactions {
			rows = append(rows, ofxRow(tx, string(stmt.CCAcctFrom.AcctID), stmt.CurDef.String()))
		}
	}
	o.logger.Debug("Parsed OFX statements", "name", name, "bank", len(resp.Bank), "credit_card", len(resp.CreditCard))

	return model.ImportFile{
		Name:     name,
		Type:     "application/x-ofx",
		Encoding: encoding,
		Lines:    columnLines(rows, []string{ColumnDate, ColumnDescription, ColumnAmount}),
	}, nil
}

func ofxRow(tx ofxgo.Transaction, account, currency string) map[string]string {
	row := map[string]string{
		ColumnID:          string(tx.FiTID),
		ColumnDate:        tx.DtPosted.Time.UTC().Format(time.DateOnly),
		ColumnDescription: payeeName(tx),
		ColumnAmount:      tx.TrnAmt.FloatString(2),
		ColumnAccount:     account,
		ColumnCurrency:    currency,
		ColumnType:        tx.TrnType.String(),
	}
	if tx.CheckNum != "" {
		row[ColumnCheck] = string(tx.CheckNum)
	}
	return row
}

var cardPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// payeeName picks the cleanest description the bank gave.
func payeeName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && isGenericDescription(name) {
		name = strings.TrimSpace(string(tx.Memo))
	}
	for _, prefix := range cardPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}
	// Leading "MM/DD " card dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
