package salarium

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/core-coin/salarium/internal/ledger"
	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
	"github.com/core-coin/salarium/pkg/audithash"
	"github.com/core-coin/salarium/pkg/validation"
)

const codeDuplicateTransaction = "duplicate_transaction"

func requirePending(req *models.PaymentRequest) error {
	switch req.Status {
	case models.PaymentPending:
		return nil
	case models.PaymentProcessing:
		return apperr.Conflict("payment_in_progress", "payment request is being processed")
	default:
		return apperr.Conflict("payment_request_status", "payment request is already settled")
	}
}

// definiteFailure reports whether err proves the transfer was not applied
// and never will be.
func definiteFailure(err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeLedgerFailure,
		apperr.CodeInvalidDestination,
		apperr.CodeNoTrustline,
		apperr.CodeTrustlineLimitExhausted,
		apperr.CodeTrustlineLimitInsufficient,
		apperr.CodeDestinationChanged:
		return true
	}
	return false
}

// loadPayable returns a PENDING request of the admin's tenant whose
// canonical data still matches its hash.
func (s *Salarium) loadPayable(ctx context.Context, caller models.Caller, requestID string) (*models.PaymentRequest, error) {
	req, err := s.repo.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := sameOrganization(caller, req.OrganizationID); err != nil {
		return nil, err
	}
	if err := requirePending(req); err != nil {
		return nil, err
	}
	if !audithash.Verify(req.CanonicalData, req.DataHash) {
		s.logger.Error("Payment hash mismatch, refusing to pay", "request_id", req.ID, "data_hash", req.DataHash)
		return nil, apperr.Conflict(apperr.CodeHashMismatch, "payment data does not match its recorded hash")
	}
	return req, nil
}

// pendingMode is how the in-flight transaction of req was signed.
func pendingMode(req *models.PaymentRequest) string {
	if req.PendingSigningMode == "" {
		return models.SigningCustodial
	}
	return req.PendingSigningMode
}

// checkManualTransfer verifies that a validated, externally signed
// transaction pays the request in full from the organization wallet.
func (s *Salarium) checkManualTransfer(ctx context.Context, req *models.PaymentRequest, wallet *models.OrganizationWallet,
	result *models.TransferResult) error {
	if result.Destination != req.DestinationAddress {
		return apperr.Validation("tx_hash", "transaction pays a different destination")
	}
	if result.Account != wallet.Address {
		return apperr.Validation("tx_hash", "transaction was not sent from the organization wallet")
	}

	delivered := result.Delivered
	if delivered == nil {
		return apperr.Validation("tx_hash", "transaction delivered no amount")
	}
	if req.CurrencyType.IsNative() {
		if delivered.Currency != string(models.CurrencyXRP) || delivered.Issuer != "" {
			return apperr.Validation("tx_hash", "transaction delivered a different currency")
		}
	} else {
		issuer, err := s.repo.GetTokenIssuerConfig(ctx, req.CurrencyType)
		if err != nil {
			return err
		}
		if !ledger.SameCurrency(delivered.Currency, issuer.CurrencyCode) || delivered.Issuer != issuer.IssuerAddress {
			return apperr.Validation("tx_hash", "transaction delivered a different currency")
		}
	}
	if delivered.Value.LessThan(req.CryptoAmount) {
		return apperr.Validation("tx_hash", fmt.Sprintf("transaction delivered %s %s, the request is for %s",
			delivered.Value, req.CurrencyType, req.CryptoAmount))
	}
	return nil
}

func (s *Salarium) verifyManualTransfer(ctx context.Context, req *models.PaymentRequest, result *models.TransferResult) error {
	wallet, err := s.repo.GetDefaultOrganizationWallet(ctx, req.OrganizationID, req.CurrencyType)
	if err != nil {
		return err
	}
	return s.checkManualTransfer(ctx, req, wallet, result)
}

func (s *Salarium) claim(ctx context.Context, req *models.PaymentRequest, actorID string) error {
	claimed, err := s.repo.ClaimPaymentRequest(ctx, req.ID, actorID)
	if err != nil {
		return err
	}
	if !claimed {
		return apperr.Conflict("payment_in_progress", "payment request is being processed or already settled")
	}
	req.Status = models.PaymentProcessing
	return nil
}

// ExecutePayment pays a request from the organization's custodial wallet.
// A request carrying an in-flight transaction is resolved instead of being
// submitted again.
func (s *Salarium) ExecutePayment(ctx context.Context, caller models.Caller, requestID string) (*models.PaymentRequest, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	req, err := s.loadPayable(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.repo.GetDefaultOrganizationWallet(ctx, req.OrganizationID, req.CurrencyType)
	if err != nil {
		return nil, err
	}
	if wallet.ManualSigning {
		return nil, apperr.Conflict("manual_signing_required", "wallet requires an external signer; complete the payment manually")
	}
	var issuer *models.TokenIssuerConfig
	if !req.CurrencyType.IsNative() {
		if issuer, err = s.repo.GetTokenIssuerConfig(ctx, req.CurrencyType); err != nil {
			return nil, err
		}
	}
	destination, err := s.repo.GetDefaultCryptoAddress(ctx, req.WorkerID)
	if err != nil {
		return nil, err
	}

	if err := s.claim(ctx, req, caller.AdminID); err != nil {
		return nil, err
	}

	if destination.Address != req.DestinationAddress {
		cause := apperr.Payment(apperr.CodeDestinationChanged, "worker's payout address changed after the request was created", nil)
		return s.fail(ctx, req, caller.AdminID, cause, "")
	}

	if req.PendingTxHash != "" {
		result, err := s.gateway.TransactionStatus(ctx, req.PendingTxHash, req.PendingLastLedger)
		return s.settle(ctx, req, caller.AdminID, pendingMode(req), result, err)
	}

	secret, err := s.cipher.Decrypt(wallet.EncryptedSecret)
	if err != nil {
		cause := apperr.Internal("failed to decrypt wallet secret", err)
		if rerr := s.release(ctx, req, caller.AdminID, "wallet secret unavailable", "", 0, ""); rerr != nil {
			return nil, errors.Join(cause, rerr)
		}
		return nil, cause
	}

	result, err := s.gateway.Transfer(ctx, models.TransferRequest{
		Currency:       req.CurrencyType,
		SourceAddress:  wallet.Address,
		SourceSecret:   secret,
		Destination:    req.DestinationAddress,
		DestinationTag: destination.DestinationTag,
		Amount:         req.CryptoAmount,
		Issuer:         issuer,
		Memos: []models.Memo{{
			Type:   paymentHashMemoType,
			Format: paymentHashMemoFormat,
			Data:   req.DataHash,
		}},
	})
	return s.settle(ctx, req, caller.AdminID, models.SigningCustodial, result, err)
}

// CompleteManualPayment settles a request with a transaction signed outside
// the system. The transaction is checked on the ledger; if the ledger cannot
// confirm it yet the hash is kept for reconciliation.
func (s *Salarium) CompleteManualPayment(ctx context.Context, caller models.Caller, requestID, txHash string) (*models.PaymentRequest, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	hash := validation.NormalizeTxHash(txHash)
	if err := validation.ValidateTxHash(hash); err != nil {
		return nil, apperr.Validation("tx_hash", err.Error())
	}
	req, err := s.loadPayable(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.repo.GetDefaultOrganizationWallet(ctx, req.OrganizationID, req.CurrencyType)
	if err != nil {
		return nil, err
	}
	if !wallet.ManualSigning {
		return nil, apperr.Conflict("custodial_wallet", "wallet signs automatically; execute the payment instead")
	}

	result, err := s.gateway.TransactionStatus(ctx, hash, 0)
	if err != nil {
		return nil, err
	}
	if result.Outcome == models.OutcomeSuccess {
		if err := s.checkManualTransfer(ctx, req, wallet, result); err != nil {
			return nil, err
		}
	}

	if err := s.claim(ctx, req, caller.AdminID); err != nil {
		return nil, err
	}
	return s.settle(ctx, req, caller.AdminID, models.SigningManual, result, nil)
}

// settle applies the outcome of a transfer to a claimed request.
func (s *Salarium) settle(ctx context.Context, req *models.PaymentRequest, actorID, mode string, result *models.TransferResult, err error) (*models.PaymentRequest, error) {
	ctx = context.WithoutCancel(ctx)
	switch {
	case err != nil && definiteFailure(err):
		return s.fail(ctx, req, actorID, err, req.PendingTxHash)
	case err != nil:
		if rerr := s.release(ctx, req, actorID, err.Error(), req.PendingTxHash, req.PendingLastLedger, mode); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	case result.Outcome == models.OutcomePending:
		if err := s.release(ctx, req, actorID, "transfer outcome pending", result.TxHash, result.LastLedgerSequence, mode); err != nil {
			return nil, err
		}
		s.logger.Warn("Payment pending on the ledger", "request_id", req.ID, "tx_hash", result.TxHash,
			"last_ledger", result.LastLedgerSequence)
		s.publish(ctx, models.SubjectPaymentPending, req)
		return req, nil
	case mode == models.SigningManual:
		if err := s.verifyManualTransfer(ctx, req, result); err != nil {
			return s.rejectManual(ctx, req, actorID, result, err)
		}
		return s.complete(ctx, req, actorID, mode, result)
	default:
		return s.complete(ctx, req, actorID, mode, result)
	}
}

// rejectManual returns a request to PENDING when its externally signed
// transaction does not pay it. The hash is dropped so a correct one can be
// supplied; it is kept when the check itself could not run.
func (s *Salarium) rejectManual(ctx context.Context, req *models.PaymentRequest, actorID string, result *models.TransferResult,
	cause error) (*models.PaymentRequest, error) {
	hash, lastLedger, mode := result.TxHash, result.LastLedgerSequence, models.SigningManual
	if apperr.Is(cause, apperr.KindValidation) {
		s.logger.Warn("Externally signed transaction does not pay the request", "request_id", req.ID,
			"tx_hash", result.TxHash, "reason", cause)
		hash, lastLedger, mode = "", 0, ""
	}
	if err := s.release(ctx, req, actorID, cause.Error(), hash, lastLedger, mode); err != nil {
		return nil, errors.Join(cause, err)
	}
	return nil, cause
}

// release returns a claimed request to PENDING, keeping txHash as the
// in-flight transaction when one was submitted.
func (s *Salarium) release(ctx context.Context, req *models.PaymentRequest, actorID, reason, txHash string, lastLedger uint32,
	mode string) error {
	if txHash == "" {
		mode = ""
	}
	err := s.repo.ReleasePaymentRequest(context.WithoutCancel(ctx), &models.Release{
		RequestID:     req.ID,
		ActorID:       actorID,
		Reason:        reason,
		PendingTxHash: txHash,
		LastLedger:    lastLedger,
		SigningMode:   mode,
	})
	if err != nil {
		s.logger.Error("Failed to release payment request", "request_id", req.ID, "tx_hash", txHash, "error", err)
		return err
	}
	req.Status = models.PaymentPending
	req.PendingTxHash = txHash
	req.PendingLastLedger = lastLedger
	req.PendingSigningMode = mode
	return nil
}

// complete marks the applications paid and the request completed. When the
// request cannot be completed after funds moved it goes back to PENDING with
// the transaction recorded, so the next attempt resolves it.
func (s *Salarium) complete(ctx context.Context, req *models.PaymentRequest, actorID, mode string, result *models.TransferResult) (*models.PaymentRequest, error) {
	now := s.now()
	log := s.logger.With("request_id", req.ID, "tx_hash", result.TxHash)

	toAddress := result.Destination
	if toAddress == "" {
		toAddress = req.DestinationAddress
	}
	settlement := &models.Settlement{
		RequestID:       req.ID,
		ActorID:         actorID,
		TransactionHash: result.TxHash,
		ProcessedAt:     now,
		Transaction: &models.PaymentTransaction{
			ID:               uuid.NewString(),
			PaymentRequestID: req.ID,
			OrganizationID:   req.OrganizationID,
			WorkerID:         req.WorkerID,
			TransactionHash:  result.TxHash,
			LedgerIndex:      result.LedgerIndex,
			Fee:              result.Fee,
			DeliveredAmount:  result.DeliveredAmount,
			ResultCode:       result.ResultCode,
			CurrencyType:     req.CurrencyType,
			Amount:           req.CryptoAmount,
			FromAddress:      result.Account,
			ToAddress:        toAddress,
			Succeeded:        true,
			SigningMode:      mode,
			CreatedAt:        now,
		},
	}

	err := runSaga(ctx, log,
		step{
			name: "mark applications paid",
			do: func(ctx context.Context) error {
				_, err := s.work.MarkApplicationsPaid(ctx, req.ID, actorID)
				return err
			},
			undo: func(ctx context.Context) error {
				_, err := s.work.RevertApplicationsPaid(ctx, req.ID, actorID)
				return err
			},
		},
		step{
			name: "complete payment request",
			do: func(ctx context.Context) error {
				return s.repo.CompletePaymentRequest(ctx, settlement)
			},
		},
	)
	if err != nil {
		pendingHash := result.TxHash
		if apperr.CodeOf(err) == codeDuplicateTransaction {
			pendingHash = ""
		}
		if rerr := s.release(ctx, req, actorID, "completion failed: "+err.Error(), pendingHash, result.LastLedgerSequence, mode); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}

	hash := result.TxHash
	req.Status = models.PaymentCompleted
	req.TransactionHash = &hash
	req.ProcessedAt = &now
	req.ApprovedBy = actorID
	req.PendingTxHash = ""
	req.PendingLastLedger = 0
	req.PendingSigningMode = ""

	log.Info("Payment completed", "ledger_index", result.LedgerIndex, "amount", req.CryptoAmount.String(),
		"currency", req.CurrencyType, "signing_mode", mode)
	s.notify(ctx, req)
	s.publish(ctx, models.SubjectPaymentCompleted, req)
	return req, nil
}

// fail marks a claimed request FAILED and frees its applications for a new
// request. cause is returned to the caller.
func (s *Salarium) fail(ctx context.Context, req *models.PaymentRequest, actorID string, cause error, txHash string) (*models.PaymentRequest, error) {
	ctx = context.WithoutCancel(ctx)
	now := s.now()

	code := apperr.CodeOf(cause)
	if code == "" {
		code = apperr.CodeLedgerFailure
	}
	failure := &models.SettlementFailure{
		RequestID: req.ID,
		ActorID:   actorID,
		Code:      code,
		Reason:    cause.Error(),
		FailedAt:  now,
	}
	if txHash != "" {
		var resultCode string
		var appErr *apperr.Error
		if errors.As(cause, &appErr) {
			resultCode = appErr.Detail
		}
		failure.Transaction = &models.PaymentTransaction{
			ID:               uuid.NewString(),
			PaymentRequestID: req.ID,
			OrganizationID:   req.OrganizationID,
			WorkerID:         req.WorkerID,
			TransactionHash:  txHash,
			ResultCode:       resultCode,
			CurrencyType:     req.CurrencyType,
			Amount:           req.CryptoAmount,
			ToAddress:        req.DestinationAddress,
			Succeeded:        false,
			CreatedAt:        now,
		}
	}
	if err := s.repo.FailPaymentRequest(ctx, failure); err != nil {
		s.logger.Error("Failed to mark payment request failed", "request_id", req.ID, "cause", cause, "error", err)
		return nil, err
	}
	req.Status = models.PaymentFailed
	req.FailureCode = failure.Code
	req.FailureReason = failure.Reason
	req.PendingTxHash = ""
	req.PendingLastLedger = 0
	req.PendingSigningMode = ""

	if _, err := s.work.RevertApplicationsRequested(ctx, req.ID, actorID); err != nil {
		s.logger.Error("Failed to release applications of failed request, reconciliation will retry",
			"request_id", req.ID, "error", err)
	}

	s.logger.Warn("Payment failed", "request_id", req.ID, "code", failure.Code, "reason", failure.Reason)
	s.notify(ctx, req)
	s.publish(ctx, models.SubjectPaymentFailed, req)
	return nil, cause
}
