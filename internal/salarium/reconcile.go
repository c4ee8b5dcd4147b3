package salarium

import (
	"context"
	"fmt"
	"time"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
)

const (
	reconcilerLockName = "payment_reconciler"

	// staleProcessingFactor times the ledger timeout is how long a request
	// may stay PROCESSING before it is reported as stuck
	staleProcessingFactor = 5

	// orphanGrace is how long applications may point at a payment request
	// that was never stored before they are released
	orphanGrace = 15 * time.Minute
)

// ReconcilePayments resolves in-flight transactions of PENDING requests and
// repairs applications left behind by interrupted settlements or by an
// interrupted request creation. An empty organizationID covers every tenant.
func (s *Salarium) ReconcilePayments(ctx context.Context, organizationID string) (*models.ReconcileReport, error) {
	report := &models.ReconcileReport{}

	inflight, err := s.repo.ListPaymentRequests(ctx, models.PaymentRequestFilter{
		Status:         models.PaymentPending,
		OrganizationID: organizationID,
		WithPendingTx:  true,
		Limit:          reconcileBatch,
	})
	if err != nil {
		return nil, err
	}
	for _, req := range inflight {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		s.resolveInflight(ctx, req, report)
	}

	since := s.now().Add(-repairWindow)
	s.repairRequests(ctx, organizationID, models.PaymentCompleted, since, report, s.work.MarkApplicationsPaid)
	s.repairRequests(ctx, organizationID, models.PaymentFailed, since, report, s.work.RevertApplicationsRequested)
	s.releaseOrphans(ctx, organizationID, report)

	processing, err := s.repo.ListPaymentRequests(ctx, models.PaymentRequestFilter{
		Status:         models.PaymentProcessing,
		OrganizationID: organizationID,
		Limit:          reconcileBatch,
	})
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	}
	staleBefore := s.now().Add(-staleProcessingFactor * s.config.LedgerTimeout)
	for _, req := range processing {
		if req.UpdatedAt.After(staleBefore) {
			continue
		}
		report.Stuck++
		report.Errors = append(report.Errors, fmt.Sprintf("request %s stuck in PROCESSING since %s",
			req.ID, req.UpdatedAt.Format(time.RFC3339)))
		s.logger.Error("Payment request stuck in processing, manual review required", "request_id", req.ID,
			"updated_at", req.UpdatedAt)
	}

	return report, nil
}

func (s *Salarium) resolveInflight(ctx context.Context, req *models.PaymentRequest, report *models.ReconcileReport) {
	claimed, err := s.repo.ClaimPaymentRequest(ctx, req.ID, reconcilerActor)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("request %s: %v", req.ID, err))
		return
	}
	if !claimed {
		return
	}
	req.Status = models.PaymentProcessing

	result, err := s.gateway.TransactionStatus(ctx, req.PendingTxHash, req.PendingLastLedger)
	settled, err := s.settle(ctx, req, reconcilerActor, pendingMode(req), result, err)
	switch {
	case err != nil && definiteFailure(err):
		report.Failed++
	case err != nil:
		report.Errors = append(report.Errors, fmt.Sprintf("request %s: %v", req.ID, err))
	case settled.Status == models.PaymentCompleted:
		report.Completed++
	default:
		report.StillPending++
	}
}

// repairRequests applies fix to the applications of recently settled
// requests. fix moves nothing when the saga finished.
func (s *Salarium) repairRequests(ctx context.Context, organizationID string, status models.PaymentStatus, since time.Time,
	report *models.ReconcileReport, fix func(ctx context.Context, requestID, actorID string) (int, error)) {
	reqs, err := s.repo.ListPaymentRequests(ctx, models.PaymentRequestFilter{
		Status:         status,
		OrganizationID: organizationID,
		UpdatedSince:   since,
		Limit:          reconcileBatch,
	})
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	for _, req := range reqs {
		n, err := fix(ctx, req.ID, reconcilerActor)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("request %s: %v", req.ID, err))
			continue
		}
		if n > 0 {
			s.logger.Warn("Repaired applications of settled request", "request_id", req.ID, "status", status, "applications", n)
			report.Repaired += n
		}
	}
}

// releaseOrphans returns REQUESTED applications to APPROVED when the payment
// request they point at was never stored.
func (s *Salarium) releaseOrphans(ctx context.Context, organizationID string, report *models.ReconcileReport) {
	apps, err := s.work.ListRequestedApplications(ctx, organizationID, s.now().Add(-orphanGrace), reconcileBatch)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	checked := map[string]bool{}
	for _, app := range apps {
		requestID := app.PaymentRequestID
		if requestID == "" || checked[requestID] {
			continue
		}
		checked[requestID] = true

		_, err := s.repo.GetPaymentRequest(ctx, requestID)
		if err == nil {
			continue
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			report.Errors = append(report.Errors, fmt.Sprintf("request %s: %v", requestID, err))
			continue
		}
		n, err := s.work.RevertApplicationsRequested(ctx, requestID, reconcilerActor)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("request %s: %v", requestID, err))
			continue
		}
		s.logger.Warn("Released applications of a payment request that was never stored", "request_id", requestID,
			"applications", n)
		report.Repaired += n
	}
}

// StartReconciler runs ReconcilePayments every interval. With several
// instances only the lease holder reconciles.
func (s *Salarium) StartReconciler(interval time.Duration) {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.reconcileOnce(interval)
			case <-s.ctx.Done():
				s.logger.Info("Reconciler stopped")
				return
			}
		}
	}()
}

func (s *Salarium) reconcileOnce(interval time.Duration) {
	ok, err := s.repo.AcquireLock(s.ctx, reconcilerLockName, s.config.InstanceID, 2*interval)
	if err != nil {
		s.logger.Error("Failed to acquire reconciler lock", "error", err)
		return
	}
	if !ok {
		s.logger.Debug("Reconciler lock held by another instance")
		return
	}

	report, err := s.ReconcilePayments(s.ctx, "")
	if err != nil {
		s.logger.Error("Reconciliation failed", "error", err)
		return
	}
	if report.Completed+report.Failed+report.StillPending+report.Repaired+report.Stuck > 0 {
		s.logger.Info("Reconciliation finished", "completed", report.Completed, "failed", report.Failed,
			"still_pending", report.StillPending, "repaired", report.Repaired, "stuck", report.Stuck)
	}
}

// Stop stops the reconciler and waits for it to exit.
func (s *Salarium) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	if err := s.repo.ReleaseLock(context.Background(), reconcilerLockName, s.config.InstanceID); err != nil {
		s.logger.Warn("Failed to release reconciler lock", "error", err)
	}
}
