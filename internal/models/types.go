package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CurrencyType is the payout currency of a payment request or wallet.
type CurrencyType string

const (
	// CurrencyXRP is the ledger's native coin.
	CurrencyXRP CurrencyType = "XRP"
	// CurrencyRLUSD is a USD-pegged issued token.
	CurrencyRLUSD CurrencyType = "RLUSD"
)

func (c CurrencyType) Valid() bool {
	return c == CurrencyXRP || c == CurrencyRLUSD
}

// IsNative reports whether c is the ledger's native coin.
func (c CurrencyType) IsNative() bool {
	return c == CurrencyXRP
}

// StringList is a list of ids persisted as a JSON array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode StringList: %w", err)
	}
	*l = out
	return nil
}
