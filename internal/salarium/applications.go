package salarium

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/internal/worktime"
	"github.com/core-coin/salarium/pkg/apperr"
)

// uniqueIDs drops blanks and duplicates while keeping the order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateApplication claims the given timestamps of the calling worker. With
// OriginalApplicationID set it resubmits a rejected application.
func (s *Salarium) CreateApplication(ctx context.Context, caller models.Caller, in models.ApplicationInput) (*models.TimeApplication, error) {
	if err := requireWorker(caller); err != nil {
		return nil, err
	}
	ids := uniqueIDs(in.TimestampIDs)
	if len(ids) == 0 {
		return nil, apperr.Validation("timestamp_ids", "at least one timestamp is required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, apperr.Validation("start_date", "start and end dates are required")
	}
	start, end := startOfDay(in.StartDate), startOfDay(in.EndDate)
	if end.Before(start) {
		return nil, apperr.Validation("end_date", "end date is before start date")
	}
	if err := validMemo(in.Memo); err != nil {
		return nil, err
	}

	worker, err := s.loadWorker(ctx, caller)
	if err != nil {
		return nil, err
	}

	resubmitCount := 0
	action := models.ApplicationActionCreated
	if in.OriginalApplicationID != "" {
		original, err := s.work.GetApplication(ctx, in.OriginalApplicationID)
		if err != nil {
			return nil, err
		}
		if original.WorkerID != worker.ID {
			return nil, apperr.Authorization("application belongs to another worker")
		}
		if original.Status != models.ApplicationRejected {
			return nil, apperr.Conflict("application_status", "only rejected applications can be resubmitted")
		}
		resubmitCount = original.ResubmitCount + 1
		action = models.ApplicationActionResubmitted
	}

	stamps, err := s.work.GetTimestamps(ctx, worker.ID, ids)
	if err != nil {
		return nil, err
	}
	if len(stamps) != len(ids) {
		return nil, apperr.NotFound("timestamp")
	}
	dayAfterEnd := end.AddDate(0, 0, 1)
	for _, ts := range stamps {
		if ts.ApplicationStatus != models.LinkNone {
			return nil, apperr.Conflict("timestamp_linked", "some timestamps are already linked to an application")
		}
		if ts.Timestamp.Before(start) || !ts.Timestamp.Before(dayAfterEnd) {
			return nil, apperr.Validation("timestamp_ids", "timestamp outside the application's date range")
		}
	}

	minutes := worktime.CalculateWorkMinutes(stamps)
	if minutes <= 0 {
		return nil, apperr.Validation("timestamp_ids", "no completed work period in the selected timestamps")
	}

	now := s.now()
	app := &models.TimeApplication{
		ID:                    uuid.NewString(),
		WorkerID:              worker.ID,
		OrganizationID:        worker.OrganizationID,
		Type:                  worktime.ApplicationTypeFor(start, end),
		StartDate:             start,
		EndDate:               end,
		TimestampIDs:          ids,
		TotalMinutes:          minutes,
		HourlyRateUSD:         worker.HourlyRateUSD,
		TotalAmountUSD:        worktime.AmountFor(minutes, worker.HourlyRateUSD),
		Status:                models.ApplicationPending,
		Memo:                  in.Memo,
		ResubmitCount:         resubmitCount,
		OriginalApplicationID: in.OriginalApplicationID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	log := s.applicationLog(app, action, "", caller.ActorID(), now)
	if err := s.work.CreateApplication(ctx, app, log); err != nil {
		return nil, err
	}

	s.logger.Info("Application created", "application_id", app.ID, "worker_id", app.WorkerID,
		"minutes", app.TotalMinutes, "amount_usd", app.TotalAmountUSD.String(), "resubmit_count", app.ResubmitCount)
	return app, nil
}

func (s *Salarium) applicationLog(app *models.TimeApplication, action string, from models.ApplicationStatus, actorID string, at time.Time) *models.ApplicationLog {
	return &models.ApplicationLog{
		ID:             uuid.NewString(),
		ApplicationID:  app.ID,
		WorkerID:       app.WorkerID,
		OrganizationID: app.OrganizationID,
		Action:         action,
		PreviousStatus: from,
		NewStatus:      app.Status,
		ActorID:        actorID,
		Snapshot:       app.Snapshot(),
		CreatedAt:      at,
	}
}

// loadPendingForAdmin returns a PENDING application of the admin's tenant.
func (s *Salarium) loadPendingForAdmin(ctx context.Context, caller models.Caller, id string) (*models.TimeApplication, error) {
	app, err := s.work.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sameOrganization(caller, app.OrganizationID); err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationPending {
		return nil, apperr.Conflict("application_status", "application is not pending")
	}
	return app, nil
}

// ApproveApplication approves a pending application and freezes the worker's
// current hourly rate on it.
func (s *Salarium) ApproveApplication(ctx context.Context, caller models.Caller, id string) (*models.TimeApplication, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	app, err := s.loadPendingForAdmin(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	worker, err := s.repo.GetWorker(ctx, app.WorkerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	approvedAmount := worktime.AmountFor(app.TotalMinutes, worker.HourlyRateUSD)
	if !approvedAmount.Equal(app.TotalAmountUSD) {
		s.logger.Warn("Hourly rate changed since submission", "application_id", app.ID,
			"submitted_rate", app.HourlyRateUSD.String(), "approval_rate", worker.HourlyRateUSD.String())
	}

	app.Status = models.ApplicationApproved
	app.ApprovedBy = caller.AdminID
	app.ApprovedAt = &now
	app.HourlyRateAtApproval = decimal.NewNullDecimal(worker.HourlyRateUSD)
	app.ApprovedAmountUSD = decimal.NewNullDecimal(approvedAmount)
	app.UpdatedAt = now

	log := s.applicationLog(app, models.ApplicationActionApproved, models.ApplicationPending, caller.AdminID, now)
	approval := &models.ApprovalLog{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		Action:        models.ApplicationActionApproved,
		ActorID:       caller.AdminID,
		HourlyRateUSD: app.HourlyRateAtApproval,
		AmountUSD:     app.ApprovedAmountUSD,
		Snapshot:      log.Snapshot,
		CreatedAt:     now,
	}
	if err := s.work.ApproveApplication(ctx, app, log, approval); err != nil {
		return nil, err
	}
	return app, nil
}

// RejectApplication rejects a pending application and releases its
// timestamps for a resubmission.
func (s *Salarium) RejectApplication(ctx context.Context, caller models.Caller, id string, in models.RejectionInput) (*models.TimeApplication, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if !worktime.ValidRejectionReason(in.Reason) {
		return nil, apperr.Validation("reason", "rejection reason must be at least 10 characters")
	}
	if !worktime.ValidRejectionCategory(in.Category) {
		return nil, apperr.Validation("category", "unknown rejection category")
	}
	app, err := s.loadPendingForAdmin(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	app.Status = models.ApplicationRejected
	app.RejectionReason = in.Reason
	app.RejectionCategory = in.Category
	app.RejectedBy = caller.AdminID
	app.RejectedAt = &now
	app.UpdatedAt = now

	log := s.applicationLog(app, models.ApplicationActionRejected, models.ApplicationPending, caller.AdminID, now)
	approval := &models.ApprovalLog{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		Action:        models.ApplicationActionRejected,
		ActorID:       caller.AdminID,
		Reason:        in.Reason,
		Category:      in.Category,
		Snapshot:      log.Snapshot,
		CreatedAt:     now,
	}
	if err := s.work.RejectApplication(ctx, app, log, approval); err != nil {
		return nil, err
	}
	return app, nil
}

// CancelApplication withdraws the caller's pending application. The row is
// deleted; its log remains.
func (s *Salarium) CancelApplication(ctx context.Context, caller models.Caller, id string) error {
	if err := requireWorker(caller); err != nil {
		return err
	}
	app, err := s.work.GetApplication(ctx, id)
	if err != nil {
		return err
	}
	if app.WorkerID != caller.WorkerID {
		return apperr.Authorization("application belongs to another worker")
	}
	if app.Status != models.ApplicationPending {
		return apperr.Conflict("application_status", "application is not pending")
	}

	now := s.now()
	app.Status = models.ApplicationCancelled
	app.UpdatedAt = now
	log := s.applicationLog(app, models.ApplicationActionCancelled, models.ApplicationPending, caller.WorkerID, now)
	return s.work.CancelApplication(ctx, app, log)
}

// GetApplicationHistory returns the immutable log of an application. It
// outlives the application itself.
func (s *Salarium) GetApplicationHistory(ctx context.Context, caller models.Caller, id string) ([]*models.ApplicationLog, error) {
	logs, err := s.work.ListApplicationLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, apperr.NotFound("application")
	}
	if err := canRead(caller, logs[0].WorkerID, logs[0].OrganizationID); err != nil {
		return nil, err
	}
	return logs, nil
}
