package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
)

func (db *PostgresDB) CreatePaymentRequest(ctx context.Context, req *models.PaymentRequest, log *models.PaymentRequestLog, hashLog *models.PaymentHashLog) error {
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		log.PaymentRequestID = req.ID
		if err := tx.Create(log).Error; err != nil {
			return err
		}
		if hashLog != nil {
			hashLog.PaymentRequestID = req.ID
			if err := tx.Create(hashLog).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("duplicate_payment_request", "payment request already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetPaymentRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, notFound(err, "payment_request")
	}
	return &req, nil
}

func (db *PostgresDB) GetPaymentRequestByIdempotencyKey(ctx context.Context, key string) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	if err := db.Conn.WithContext(ctx).Where("idempotency_key = ?", key).First(&req).Error; err != nil {
		return nil, notFound(err, "payment_request")
	}
	return &req, nil
}

func (db *PostgresDB) ListPaymentRequests(ctx context.Context, filter models.PaymentRequestFilter) ([]*models.PaymentRequest, error) {
	q := db.Conn.WithContext(ctx).Model(&models.PaymentRequest{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.OrganizationID != "" {
		q = q.Where("organization_id = ?", filter.OrganizationID)
	}
	if filter.WithPendingTx {
		q = q.Where("pending_tx_hash <> ''")
	}
	if !filter.UpdatedSince.IsZero() {
		q = q.Where("updated_at >= ?", filter.UpdatedSince)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var reqs []*models.PaymentRequest
	if err := q.Order("created_at").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	return reqs, nil
}

// transition moves a request from one status to another inside tx. It fails
// with a conflict when the request is not in the expected status.
func transition(tx *gorm.DB, id string, from, to models.PaymentStatus, fields map[string]interface{}) error {
	fields["status"] = to
	fields["updated_at"] = time.Now().UTC()
	res := tx.Model(&models.PaymentRequest{}).Where("id = ? AND status = ?", id, from).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update payment request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("payment_request_status", fmt.Sprintf("payment request is not %s", from))
	}
	return nil
}

func appendLog(tx *gorm.DB, id, action, actorID, details string, from, to models.PaymentStatus) error {
	entry := &models.PaymentRequestLog{
		PaymentRequestID: id,
		Action:           action,
		PreviousStatus:   from,
		NewStatus:        to,
		ActorID:          actorID,
		Details:          details,
		CreatedAt:        time.Now().UTC(),
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append payment request log: %w", err)
	}
	return nil
}

// ClaimPaymentRequest moves PENDING to PROCESSING. Only one concurrent caller
// gets true.
func (db *PostgresDB) ClaimPaymentRequest(ctx context.Context, id, actorID string) (bool, error) {
	claimed := false
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := transition(tx, id, models.PaymentPending, models.PaymentProcessing, map[string]interface{}{})
		if apperr.Is(err, apperr.KindConflict) {
			return nil
		}
		if err != nil {
			return err
		}
		claimed = true
		return appendLog(tx, id, models.PaymentActionClaimed, actorID, "", models.PaymentPending, models.PaymentProcessing)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (db *PostgresDB) ReleasePaymentRequest(ctx context.Context, r *models.Release) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{
			"pending_tx_hash":      r.PendingTxHash,
			"pending_last_ledger":  r.LastLedger,
			"pending_signing_mode": pendingMode(r),
		}
		if err := transition(tx, r.RequestID, models.PaymentProcessing, models.PaymentPending, fields); err != nil {
			return err
		}
		return appendLog(tx, r.RequestID, models.PaymentActionReleased, r.ActorID, r.Reason, models.PaymentProcessing, models.PaymentPending)
	})
}

// pendingMode keeps a signing mode only alongside an in-flight hash.
func pendingMode(r *models.Release) string {
	if r.PendingTxHash == "" {
		return ""
	}
	return r.SigningMode
}

func (db *PostgresDB) CompletePaymentRequest(ctx context.Context, s *models.Settlement) error {
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{
			"transaction_hash":     s.TransactionHash,
			"processed_at":         s.ProcessedAt,
			"approved_by":          s.ActorID,
			"pending_tx_hash":      "",
			"pending_last_ledger":  0,
			"pending_signing_mode": "",
		}
		if err := transition(tx, s.RequestID, models.PaymentProcessing, models.PaymentCompleted, fields); err != nil {
			return err
		}
		if s.Transaction != nil {
			if err := tx.Create(s.Transaction).Error; err != nil {
				return fmt.Errorf("failed to record payment transaction: %w", err)
			}
		}
		if err := appendLog(tx, s.RequestID, models.PaymentActionCompleted, s.ActorID, s.TransactionHash, models.PaymentProcessing, models.PaymentCompleted); err != nil {
			return err
		}
		res := tx.Model(&models.PaymentHashLog{}).Where("payment_request_id = ?", s.RequestID).Update("transaction_hash", s.TransactionHash)
		if res.Error != nil {
			return fmt.Errorf("failed to link hash log: %w", res.Error)
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("duplicate_transaction", "transaction already settles another payment request")
	}
	return err
}

func (db *PostgresDB) FailPaymentRequest(ctx context.Context, f *models.SettlementFailure) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{
			"failure_code":         f.Code,
			"failure_reason":       f.Reason,
			"processed_at":         f.FailedAt,
			"pending_tx_hash":      "",
			"pending_last_ledger":  0,
			"pending_signing_mode": "",
		}
		if err := transition(tx, f.RequestID, models.PaymentProcessing, models.PaymentFailed, fields); err != nil {
			return err
		}
		if f.Transaction != nil {
			if err := tx.Create(f.Transaction).Error; err != nil {
				return fmt.Errorf("failed to record payment transaction: %w", err)
			}
		}
		details := f.Code
		if f.Reason != "" {
			details = f.Code + ": " + f.Reason
		}
		return appendLog(tx, f.RequestID, models.PaymentActionFailed, f.ActorID, details, models.PaymentProcessing, models.PaymentFailed)
	})
}

func (db *PostgresDB) GetPaymentHashLog(ctx context.Context, requestID string) (*models.PaymentHashLog, error) {
	var entry models.PaymentHashLog
	if err := db.Conn.WithContext(ctx).Where("payment_request_id = ?", requestID).First(&entry).Error; err != nil {
		return nil, notFound(err, "payment_hash_log")
	}
	return &entry, nil
}

func (db *PostgresDB) RecordHashVerification(ctx context.Context, requestID string, ok bool, at time.Time) error {
	res := db.Conn.WithContext(ctx).Model(&models.PaymentHashLog{}).
		Where("payment_request_id = ?", requestID).
		Updates(map[string]interface{}{"verified_at": at, "verification_result": ok})
	if res.Error != nil {
		return fmt.Errorf("failed to record hash verification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("payment_hash_log")
	}
	return nil
}

func (db *PostgresDB) AddExchangeRateLog(ctx context.Context, entry *models.ExchangeRateLog) error {
	if err := db.Conn.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add exchange rate log: %w", err)
	}
	return nil
}
