package validation

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// rippleAlphabet is the base58 alphabet used by classic ledger addresses.
const rippleAlphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

// ValidateAddress validates a classic ledger address (r-prefixed base58).
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if addr[0] != 'r' {
		return fmt.Errorf("invalid address prefix: expected 'r', got %q", addr[0])
	}
	if len(addr) < 25 || len(addr) > 35 {
		return fmt.Errorf("invalid address length: expected 25-35 characters, got %d", len(addr))
	}
	for _, c := range addr {
		if !strings.ContainsRune(rippleAlphabet, c) {
			return fmt.Errorf("invalid address character %q", c)
		}
	}
	return nil
}

// ValidateTxHash validates a 64 character hex transaction hash.
func ValidateTxHash(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("invalid transaction hash length: expected 64 characters, got %d", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return fmt.Errorf("invalid hex transaction hash: %w", err)
	}
	return nil
}

// NormalizeTxHash converts a transaction hash to the uppercase form the ledger reports.
func NormalizeTxHash(hash string) string {
	return strings.ToUpper(strings.TrimSpace(hash))
}
