package salarium

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
	"github.com/core-coin/salarium/pkg/audithash"
	"github.com/core-coin/salarium/pkg/validation"
)

type creationDetails struct {
	AmountUSD         string `json:"amount_usd"`
	ApprovedAmountUSD string `json:"approved_amount_usd"`
	ExchangeRate      string `json:"exchange_rate"`
	CryptoAmount      string `json:"crypto_amount"`
	Discrepancy       bool   `json:"discrepancy,omitempty"`
}

// CreatePaymentRequest bundles approved applications of the calling worker
// into one request. Either every application is requested or none is.
//
// The amount paid is the sum of the submission amounts; the sum frozen at
// approval is stored next to it and a difference is logged.
func (s *Salarium) CreatePaymentRequest(ctx context.Context, caller models.Caller, in models.PaymentRequestInput) (*models.PaymentRequest, error) {
	if err := requireWorker(caller); err != nil {
		return nil, err
	}
	if !in.CurrencyType.Valid() {
		return nil, apperr.Validation("currency_type", "currency must be XRP or RLUSD")
	}
	ids := uniqueIDs(in.ApplicationIDs)
	if len(ids) == 0 || len(ids) != len(in.ApplicationIDs) {
		return nil, apperr.Validation("application_ids", "application ids must be non-empty and distinct")
	}

	if in.IdempotencyKey != "" {
		existing, err := s.repo.GetPaymentRequestByIdempotencyKey(ctx, in.IdempotencyKey)
		switch {
		case err == nil:
			if existing.WorkerID != caller.WorkerID {
				return nil, apperr.Conflict("idempotency_key_reused", "idempotency key belongs to another request")
			}
			return existing, nil
		case !apperr.Is(err, apperr.KindNotFound):
			return nil, err
		}
	}

	worker, err := s.loadWorker(ctx, caller)
	if err != nil {
		return nil, err
	}

	apps, err := s.work.GetApplications(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(apps) != len(ids) {
		return nil, apperr.NotFound("application")
	}
	amountUSD := decimal.Zero
	approvedUSD := decimal.Zero
	for _, app := range apps {
		if app.WorkerID != worker.ID {
			return nil, apperr.Authorization("application belongs to another worker")
		}
		if app.Status != models.ApplicationApproved || app.PaymentRequestID != "" {
			return nil, apperr.Conflict("application_status", "every application must be approved and not yet requested")
		}
		amountUSD = amountUSD.Add(app.TotalAmountUSD)
		if app.ApprovedAmountUSD.Valid {
			approvedUSD = approvedUSD.Add(app.ApprovedAmountUSD.Decimal)
		} else {
			approvedUSD = approvedUSD.Add(app.TotalAmountUSD)
		}
	}

	destination, err := s.repo.GetDefaultCryptoAddress(ctx, worker.ID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateAddress(destination.Address); err != nil {
		return nil, apperr.Validation("destination_address", err.Error())
	}

	// The rate is resolved before anything is written so an unavailable
	// feed leaves no trace.
	cryptoAmount, rate, err := s.rates.ConvertFiatToCrypto(ctx, amountUSD, in.CurrencyType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	req := &models.PaymentRequest{
		ID:                 uuid.NewString(),
		OrganizationID:     worker.OrganizationID,
		WorkerID:           worker.ID,
		ApplicationIDs:     models.StringList(ids),
		AmountUSD:          amountUSD,
		ApprovedAmountUSD:  approvedUSD,
		CurrencyType:       in.CurrencyType,
		ExchangeRate:       rate,
		CryptoAmount:       cryptoAmount,
		Status:             models.PaymentPending,
		DestinationAddress: destination.Address,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		req.IdempotencyKey = &key
	}

	canonical, digest, err := audithash.BuildPaymentHash(audithash.PaymentFacts{
		RequestID:          req.ID,
		WorkerID:           req.WorkerID,
		AmountUSD:          req.AmountUSD,
		CryptoAmount:       req.CryptoAmount,
		ExchangeRate:       req.ExchangeRate,
		CurrencyType:       string(req.CurrencyType),
		ApplicationIDs:     ids,
		DestinationAddress: req.DestinationAddress,
		Timestamp:          now,
	})
	if err != nil {
		return nil, apperr.Internal("failed to build payment hash", err)
	}
	req.CanonicalData = canonical
	req.DataHash = digest

	discrepancy := !approvedUSD.Equal(amountUSD)
	if discrepancy {
		s.logger.Warn("Approved amount differs from submitted amount", "request_id", req.ID,
			"amount_usd", amountUSD.String(), "approved_amount_usd", approvedUSD.String())
	}
	details, _ := json.Marshal(creationDetails{
		AmountUSD:         amountUSD.String(),
		ApprovedAmountUSD: approvedUSD.String(),
		ExchangeRate:      rate.String(),
		CryptoAmount:      cryptoAmount.String(),
		Discrepancy:       discrepancy,
	})
	log := &models.PaymentRequestLog{
		PaymentRequestID: req.ID,
		Action:           models.PaymentActionCreated,
		NewStatus:        models.PaymentPending,
		ActorID:          caller.WorkerID,
		Details:          string(details),
		CreatedAt:        now,
	}
	hashLog := &models.PaymentHashLog{
		PaymentRequestID: req.ID,
		DataHash:         digest,
		CanonicalData:    canonical,
		CreatedAt:        now,
	}

	err = runSaga(ctx, s.logger.With("request_id", req.ID),
		step{
			name: "request applications",
			do: func(ctx context.Context) error {
				return s.work.MarkApplicationsRequested(ctx, worker.ID, req.ID, caller.WorkerID, ids)
			},
			undo: func(ctx context.Context) error {
				_, err := s.work.RevertApplicationsRequested(ctx, req.ID, caller.WorkerID)
				return err
			},
		},
		step{
			name: "persist payment request",
			do: func(ctx context.Context) error {
				return s.repo.CreatePaymentRequest(ctx, req, log, hashLog)
			},
		},
	)
	if err != nil {
		// a concurrent retry with the same key won the race
		if in.IdempotencyKey != "" && apperr.Is(err, apperr.KindConflict) {
			if existing, gerr := s.repo.GetPaymentRequestByIdempotencyKey(ctx, in.IdempotencyKey); gerr == nil && existing.WorkerID == caller.WorkerID {
				return existing, nil
			}
		}
		return nil, err
	}

	s.logger.Info("Payment request created", "request_id", req.ID, "worker_id", req.WorkerID,
		"amount_usd", req.AmountUSD.String(), "crypto_amount", req.CryptoAmount.String(),
		"currency", req.CurrencyType, "data_hash", req.DataHash)
	s.publish(ctx, models.SubjectPaymentRequested, req)
	return req, nil
}

// GetPaymentRequest returns a request to its worker or to an administrator
// of its organization.
func (s *Salarium) GetPaymentRequest(ctx context.Context, caller models.Caller, id string) (*models.PaymentRequest, error) {
	req, err := s.repo.GetPaymentRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canRead(caller, req.WorkerID, req.OrganizationID); err != nil {
		return nil, err
	}
	return req, nil
}

// VerifyPaymentHash recomputes the digest of the stored canonical data and
// records the outcome. A mismatch is returned as an error alongside the
// verification record.
func (s *Salarium) VerifyPaymentHash(ctx context.Context, requestID string) (*models.HashVerification, error) {
	hashLog, err := s.repo.GetPaymentHashLog(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req, err := s.repo.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	valid := audithash.Verify(hashLog.CanonicalData, hashLog.DataHash) &&
		req.DataHash == hashLog.DataHash &&
		req.CanonicalData == hashLog.CanonicalData

	now := s.now()
	if err := s.repo.RecordHashVerification(ctx, requestID, valid, now); err != nil {
		return nil, err
	}
	result := &models.HashVerification{
		RequestID:  requestID,
		DataHash:   hashLog.DataHash,
		Valid:      valid,
		VerifiedAt: now,
	}
	if !valid {
		s.logger.Error("Payment hash mismatch", "request_id", requestID, "data_hash", hashLog.DataHash)
		return result, apperr.Conflict(apperr.CodeHashMismatch, "payment data does not match its recorded hash")
	}
	return result, nil
}

// GetBalance reads the ledger balance of address.
func (s *Salarium) GetBalance(ctx context.Context, address string, currency models.CurrencyType) (decimal.Decimal, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return decimal.Zero, apperr.Validation("address", err.Error())
	}
	if !currency.Valid() {
		return decimal.Zero, apperr.Validation("currency_type", "currency must be XRP or RLUSD")
	}
	var issuer *models.TokenIssuerConfig
	if !currency.IsNative() {
		cfg, err := s.repo.GetTokenIssuerConfig(ctx, currency)
		if err != nil {
			return decimal.Zero, err
		}
		issuer = cfg
	}
	return s.gateway.Balance(ctx, address, currency, issuer)
}
