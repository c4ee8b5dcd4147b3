package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
)

// EnsureTrustline checks that destination trusts issuer for currency and, when
// required is set, that the line can still receive that amount.
func EnsureTrustline(ctx context.Context, client models.LedgerClient, destination, issuer, currency string, required *decimal.Decimal) error {
	lines, err := client.AccountLines(ctx, destination, issuer)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			return apperr.Payment(apperr.CodeInvalidDestination, "destination account does not exist", err)
		}
		return apperr.Payment(apperr.CodeLedgerUnavailable, "failed to read trust lines", err)
	}

	line := findLine(lines, issuer, currency)
	if line == nil {
		return apperr.Payment(apperr.CodeNoTrustline,
			fmt.Sprintf("destination has no trust line for %s", NormalizeCurrencyCode(currency)), nil)
	}

	limit, err := decimal.NewFromString(line.Limit)
	if err != nil {
		return apperr.Payment(apperr.CodeLedgerUnavailable, "malformed trust line limit", err)
	}
	if limit.IsZero() {
		return apperr.Payment(apperr.CodeTrustlineLimitExhausted, "destination trust line limit is zero", nil)
	}
	if required == nil {
		return nil
	}

	balance, err := decimal.NewFromString(line.Balance)
	if err != nil {
		return apperr.Payment(apperr.CodeLedgerUnavailable, "malformed trust line balance", err)
	}
	available := limit.Sub(balance)
	if available.LessThan(*required) {
		return apperr.Payment(apperr.CodeTrustlineLimitInsufficient,
			fmt.Sprintf("destination trust line can receive %s, %s required", available.String(), required.String()), nil)
	}
	return nil
}

func findLine(lines []models.TrustLine, issuer, currency string) *models.TrustLine {
	for i := range lines {
		if lines[i].Account == issuer && SameCurrency(lines[i].Currency, currency) {
			return &lines[i]
		}
	}
	return nil
}
