package model

// Account is one row of the chart of accounts. Data carries the lookup
// attributes matched by address conditions: code, currency and plugin.
type Account struct {
	Data   map[string]any `json:"data,omitempty"`
	Number string         `json:"number"`
	Name   string         `json:"name"`
	Type   string         `json:"type"`
}

// Code returns the account code from Data.
func (a Account) Code() string {
	s, _ := a.Data["code"].(string)
	return s
}

// Currency returns the currency from Data.
func (a Account) Currency() string {
	s, _ := a.Data["currency"].(string)
	return s
}
