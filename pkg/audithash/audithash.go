// Package audithash produces the canonical payment fingerprint that is
// embedded in the on-chain memo and stored for later verification.
package audithash

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentFacts is the fixed set of facts covered by a payment hash.
type PaymentFacts struct {
	RequestID          string
	WorkerID           string
	AmountUSD          decimal.Decimal
	CryptoAmount       decimal.Decimal
	ExchangeRate       decimal.Decimal
	CurrencyType       string
	ApplicationIDs     []string
	DestinationAddress string
	Timestamp          time.Time
}

// TimestampLayout is an ISO-8601 UTC timestamp with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func (f PaymentFacts) object() map[string]interface{} {
	ids := make([]interface{}, len(f.ApplicationIDs))
	for i, id := range f.ApplicationIDs {
		ids[i] = id
	}
	return map[string]interface{}{
		"requestId":          f.RequestID,
		"workerId":           f.WorkerID,
		"amountUsd":          f.AmountUSD.String(),
		"cryptoAmount":       f.CryptoAmount.String(),
		"exchangeRate":       f.ExchangeRate.String(),
		"currencyType":       f.CurrencyType,
		"applicationIds":     ids,
		"destinationAddress": f.DestinationAddress,
		"timestamp":          f.Timestamp.UTC().Format(TimestampLayout),
	}
}

// BuildPaymentHash returns the canonical JSON of facts and its digest.
func BuildPaymentHash(facts PaymentFacts) (canonical string, digest string, err error) {
	canonical, err = Canonicalize(facts.object())
	if err != nil {
		return "", "", err
	}
	return canonical, Hash(canonical), nil
}

// Canonicalize serializes v as JSON with object keys sorted at every level
// and arrays of scalar values sorted.
func Canonicalize(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical data: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("failed to decode canonical data: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json writes map keys in sorted order.
	if err := enc.Encode(normalize(generic)); err != nil {
		return "", fmt.Errorf("failed to encode canonical data: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = normalize(item)
		}
		if scalars(t) {
			sort.SliceStable(t, func(i, j int) bool {
				return scalarKey(t[i]) < scalarKey(t[j])
			})
		}
		return t
	default:
		return v
	}
}

func scalars(items []interface{}) bool {
	for _, item := range items {
		switch item.(type) {
		case map[string]interface{}, []interface{}:
			return false
		}
	}
	return true
}

func scalarKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Hash returns the lowercase hex SHA-256 of the UTF-8 bytes of canonical.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of canonical and compares it with digest in
// constant time.
func Verify(canonical, digest string) bool {
	computed := Hash(canonical)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(digest))) == 1
}
