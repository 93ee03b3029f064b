package model

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
)

var cryptoCurrencies = map[string]bool{
	"ADA": true, "ALGO": true, "ATOM": true, "AVAX": true, "BCH": true, "BNB": true,
	"BTC": true, "BUSD": true, "DAI": true, "DOGE": true, "DOT": true, "ETC": true,
	"ETH": true, "LINK": true, "LTC": true, "MATIC": true, "NANO": true, "SHIB": true,
	"SOL": true, "TRX": true, "UNI": true, "USDC": true, "USDT": true, "XLM": true,
	"XMR": true, "XRP": true, "XTZ": true,
}

// IsCurrency reports whether code is an ISO 4217 currency code.
func IsCurrency(code string) bool {
	if code == "" || strings.ToUpper(code) != code {
		return false
	}
	return money.GetCurrency(code) != nil
}

// IsCryptoCurrency reports whether code is a known crypto currency ticker.
func IsCryptoCurrency(code string) bool {
	return cryptoCurrencies[code]
}

// FormatCents renders an amount of cents in the given currency.
func FormatCents(cents int64, currency string) string {
	if !IsCurrency(currency) {
		return fmt.Sprintf("%.2f %s", float64(cents)/100, currency)
	}
	return money.New(cents, currency).Display()
}
