package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
	"github.com/core-coin/salarium/pkg/logger"
)

const (
	resultSuccess   = "tesSUCCESS"
	resultQueued    = "terQUEUED"
	resultMaxLedger = "tefMAX_LEDGER"

	dropsPerXRP        = 6
	issuedValuePlaces  = 6
	defaultPollEvery   = time.Second
	defaultLedgerDelta = 20
)

type GatewayConfig struct {
	// Timeout bounds submit-and-wait; when it expires the outcome is pending.
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxLedgerOffset uint32
}

// Gateway builds, signs, submits and tracks transfers on the ledger.
type Gateway struct {
	logger *logger.Logger
	client models.LedgerClient
	signer models.TxSigner
	config GatewayConfig
}

// NewGateway creates a new Gateway instance.
func NewGateway(client models.LedgerClient, signer models.TxSigner, config GatewayConfig, logger *logger.Logger) *Gateway {
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollEvery
	}
	if config.MaxLedgerOffset == 0 {
		config.MaxLedgerOffset = defaultLedgerDelta
	}
	return &Gateway{logger: logger, client: client, signer: signer, config: config}
}

// Transfer sends amount from the source wallet to destination and waits for a
// validated result. Non-success results are returned as ledger failures; a
// transfer that is not final before the timeout comes back pending.
func (g *Gateway) Transfer(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("amount", "transfer amount must be positive")
	}

	funded, err := g.DestinationFunded(ctx, req.Destination)
	if err != nil {
		return nil, err
	}
	if !funded {
		return nil, apperr.Payment(apperr.CodeInvalidDestination, "destination account is not funded", nil)
	}

	amount, err := g.buildAmount(ctx, req)
	if err != nil {
		return nil, err
	}

	sourceInfo, err := g.client.AccountInfo(ctx, req.SourceAddress)
	if errors.Is(err, models.ErrAccountNotFound) {
		return nil, apperr.Payment(apperr.CodeLedgerUnavailable, "source account is not funded", err)
	}
	if err != nil {
		return nil, apperr.Payment(apperr.CodeLedgerUnavailable, "failed to read source account", err)
	}
	fee, err := g.client.Fee(ctx)
	if err != nil {
		return nil, apperr.Payment(apperr.CodeLedgerUnavailable, "failed to read network fee", err)
	}
	current, err := g.client.LedgerCurrent(ctx)
	if err != nil {
		return nil, apperr.Payment(apperr.CodeLedgerUnavailable, "failed to read current ledger", err)
	}
	lastLedger := current + g.config.MaxLedgerOffset

	tx := map[string]interface{}{
		"TransactionType":    "Payment",
		"Account":            req.SourceAddress,
		"Destination":        req.Destination,
		"Amount":             amount,
		"Fee":                fee,
		"Sequence":           sourceInfo.Sequence,
		"LastLedgerSequence": lastLedger,
	}
	if req.DestinationTag != nil {
		tx["DestinationTag"] = *req.DestinationTag
	}
	if len(req.Memos) > 0 {
		tx["Memos"] = encodeMemos(req.Memos)
	}

	signed, err := g.signer.Sign(req.SourceSecret, tx)
	if err != nil {
		return nil, apperr.Payment(apperr.CodeLedgerUnavailable, "failed to sign transfer", err)
	}
	log := g.logger.With("tx_hash", signed.Hash, "destination", req.Destination, "currency", req.Currency)

	pending := &models.TransferResult{Outcome: models.OutcomePending, TxHash: signed.Hash, LastLedgerSequence: lastLedger}

	submitted, err := g.client.Submit(ctx, signed.TxBlob)
	if err != nil {
		// the blob may have reached the network
		log.Warn("Submit failed, outcome unknown", "error", err)
		return pending, nil
	}
	log.Info("Transfer submitted", "engine_result", submitted.EngineResult, "last_ledger", lastLedger)

	if finalPreliminary(submitted.EngineResult) {
		return nil, apperr.LedgerFailure(submitted.EngineResult,
			fmt.Sprintf("transfer rejected by the network: %s", submitted.EngineResultMessage))
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()
	ticker := time.NewTicker(g.config.PollInterval)
	defer ticker.Stop()

	for {
		result, err := g.status(waitCtx, signed.Hash, lastLedger)
		if err != nil {
			return nil, err
		}
		if result.Outcome == models.OutcomeSuccess {
			log.Info("Transfer validated", "ledger_index", result.LedgerIndex)
			return result, nil
		}

		select {
		case <-waitCtx.Done():
			log.Warn("Transfer not final before timeout", "timeout", g.config.Timeout)
			return pending, nil
		case <-ticker.C:
		}
	}
}

// TransactionStatus resolves a previously submitted transaction. lastLedger is
// the transaction's LastLedgerSequence when known, zero otherwise.
func (g *Gateway) TransactionStatus(ctx context.Context, hash string, lastLedger uint32) (*models.TransferResult, error) {
	return g.status(ctx, hash, lastLedger)
}

func (g *Gateway) status(ctx context.Context, hash string, lastLedger uint32) (*models.TransferResult, error) {
	pending := &models.TransferResult{Outcome: models.OutcomePending, TxHash: hash, LastLedgerSequence: lastLedger}

	tx, err := g.client.Tx(ctx, hash)
	switch {
	case errors.Is(err, models.ErrTxNotFound):
	case err != nil:
		if ctx.Err() != nil {
			return pending, nil
		}
		g.logger.Warn("Failed to look up transaction", "tx_hash", hash, "error", err)
		return pending, nil
	case tx.Validated:
		if tx.ResultCode != resultSuccess {
			return nil, apperr.LedgerFailure(tx.ResultCode, "transfer failed on the ledger")
		}
		return &models.TransferResult{
			Outcome:            models.OutcomeSuccess,
			TxHash:             tx.Hash,
			LedgerIndex:        tx.LedgerIndex,
			Fee:                tx.Fee,
			DeliveredAmount:    tx.DeliveredAmount,
			Delivered:          tx.Delivered,
			ResultCode:         tx.ResultCode,
			Account:            tx.Account,
			Destination:        tx.Destination,
			LastLedgerSequence: tx.LastLedgerSequence,
		}, nil
	default:
		if tx.LastLedgerSequence != 0 {
			lastLedger = tx.LastLedgerSequence
			pending.LastLedgerSequence = lastLedger
		}
	}

	if lastLedger == 0 {
		return pending, nil
	}
	validated, err := g.client.LedgerValidated(ctx)
	if err != nil {
		return pending, nil
	}
	if validated > lastLedger {
		return nil, apperr.LedgerFailure(resultMaxLedger, "transfer expired without being validated")
	}
	return pending, nil
}

// Balance returns the balance of address in currency. Unfunded accounts and
// missing trust lines read as zero.
func (g *Gateway) Balance(ctx context.Context, address string, currency models.CurrencyType, issuer *models.TokenIssuerConfig) (decimal.Decimal, error) {
	if currency.IsNative() {
		info, err := g.client.AccountInfo(ctx, address)
		if errors.Is(err, models.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		if err != nil {
			return decimal.Zero, apperr.Payment(apperr.CodeLedgerUnavailable, "failed to read account", err)
		}
		drops, err := decimal.NewFromString(info.Balance)
		if err != nil {
			return decimal.Zero, apperr.Payment(apperr.CodeLedgerUnavailable, "malformed account balance", err)
		}
		return drops.Shift(-dropsPerXRP), nil
	}

	if issuer == nil {
		return decimal.Zero, apperr.Validation("currency_type", "no issuer configured for currency")
	}
	lines, err := g.client.AccountLines(ctx, address, issuer.IssuerAddress)
	if errors.Is(err, models.ErrAccountNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, apperr.Payment(apperr.CodeLedgerUnavailable, "failed to read trust lines", err)
	}
	line := findLine(lines, issuer.IssuerAddress, issuer.CurrencyCode)
	if line == nil {
		return decimal.Zero, nil
	}
	balance, err := decimal.NewFromString(line.Balance)
	if err != nil {
		return decimal.Zero, apperr.Payment(apperr.CodeLedgerUnavailable, "malformed trust line balance", err)
	}
	return balance, nil
}

// DestinationFunded reports whether address exists on the ledger.
func (g *Gateway) DestinationFunded(ctx context.Context, address string) (bool, error) {
	_, err := g.client.AccountInfo(ctx, address)
	if errors.Is(err, models.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Payment(apperr.CodeLedgerUnavailable, "failed to read destination account", err)
	}
	return true, nil
}

func (g *Gateway) buildAmount(ctx context.Context, req models.TransferRequest) (interface{}, error) {
	switch req.Currency {
	case models.CurrencyXRP:
		drops := req.Amount.Shift(dropsPerXRP).Round(0)
		if !drops.IsPositive() {
			return nil, apperr.Validation("amount", "transfer amount is below one drop")
		}
		return drops.String(), nil
	case models.CurrencyRLUSD:
		if req.Issuer == nil {
			return nil, apperr.Validation("currency_type", "no issuer configured for currency")
		}
		value := req.Amount.Round(issuedValuePlaces)
		if err := EnsureTrustline(ctx, g.client, req.Destination, req.Issuer.IssuerAddress, req.Issuer.CurrencyCode, &value); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"currency": EncodeCurrencyCode(req.Issuer.CurrencyCode),
			"issuer":   req.Issuer.IssuerAddress,
			"value":    value.String(),
		}, nil
	default:
		return nil, apperr.Validation("currency_type", fmt.Sprintf("unsupported currency %q", req.Currency))
	}
}

// finalPreliminary reports whether a preliminary engine result means the
// transaction will never be applied.
func finalPreliminary(result string) bool {
	if result == resultSuccess || result == resultQueued {
		return false
	}
	return strings.HasPrefix(result, "tem") || strings.HasPrefix(result, "tef") || strings.HasPrefix(result, "tel")
}

// encodeMemos returns the memo array in the generic shape the binary codec
// expects.
func encodeMemos(memos []models.Memo) []interface{} {
	out := make([]interface{}, 0, len(memos))
	for _, m := range memos {
		memo := map[string]interface{}{}
		if m.Type != "" {
			memo["MemoType"] = hexUpper(m.Type)
		}
		if m.Format != "" {
			memo["MemoFormat"] = hexUpper(m.Format)
		}
		if m.Data != "" {
			memo["MemoData"] = hexUpper(m.Data)
		}
		out = append(out, map[string]interface{}{"Memo": memo})
	}
	return out
}

func hexUpper(s string) string {
	return strings.ToUpper(hex.EncodeToString([]byte(s)))
}
