package ledger

import (
	"encoding/hex"
	"strings"
)

// currencyHexLength is the length of a non-standard currency code on the ledger.
const currencyHexLength = 40

// NormalizeCurrencyCode turns either representation of a currency code into
// uppercase ASCII. A 40 character hex code is decoded byte by byte and cut at
// the first zero byte; anything else is trimmed and uppercased.
func NormalizeCurrencyCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == currencyHexLength {
		if raw, err := hex.DecodeString(code); err == nil {
			var sb strings.Builder
			for _, b := range raw {
				if b == 0 {
					break
				}
				sb.WriteByte(b)
			}
			return strings.ToUpper(sb.String())
		}
	}
	return strings.ToUpper(code)
}

// EncodeCurrencyCode returns the code as it has to appear in a transaction:
// three character codes stay as they are, longer codes become 40 uppercase
// hex characters padded with zero bytes.
func EncodeCurrencyCode(code string) string {
	if len(code) == currencyHexLength {
		if _, err := hex.DecodeString(code); err == nil {
			return strings.ToUpper(code)
		}
	}
	if len(code) <= 3 {
		return code
	}
	raw := make([]byte, currencyHexLength/2)
	copy(raw, code)
	return strings.ToUpper(hex.EncodeToString(raw))
}

// SameCurrency reports whether two codes name the same currency.
func SameCurrency(a, b string) bool {
	return NormalizeCurrencyCode(a) == NormalizeCurrencyCode(b)
}
