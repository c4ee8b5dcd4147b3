package salarium

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
)

const (
	maxMemoLength = 500
	// maxTimestampRange bounds one timestamp listing
	maxTimestampRange = 93 * 24 * time.Hour
)

func validMemo(memo string) error {
	if utf8.RuneCountInString(memo) > maxMemoLength {
		return apperr.Validation("memo", "memo is too long")
	}
	return nil
}

// RecordTimestamp stores a clock event of the calling worker. A zero time
// means now.
func (s *Salarium) RecordTimestamp(ctx context.Context, caller models.Caller, in models.TimestampInput) (*models.WorkTimestamp, error) {
	if err := requireWorker(caller); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, apperr.Validation("status", "status must be WORK, REST or END")
	}
	if err := validMemo(in.Memo); err != nil {
		return nil, err
	}
	if _, err := s.loadWorker(ctx, caller); err != nil {
		return nil, err
	}

	now := s.now()
	at := in.Timestamp.UTC()
	if in.Timestamp.IsZero() {
		at = now
	}
	if at.After(now) {
		return nil, apperr.Validation("timestamp", "timestamp cannot be in the future")
	}

	ts := &models.WorkTimestamp{
		ID:                uuid.NewString(),
		WorkerID:          caller.WorkerID,
		Timestamp:         at,
		Status:            in.Status,
		ApplicationStatus: models.LinkNone,
		Memo:              in.Memo,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	log := &models.TimestampLog{
		ID:          uuid.NewString(),
		TimestampID: ts.ID,
		WorkerID:    ts.WorkerID,
		Action:      models.TimestampActionCreated,
		NewStatus:   ts.Status,
		NewTime:     &at,
		Memo:        ts.Memo,
		CreatedAt:   now,
	}
	if err := s.work.CreateTimestamp(ctx, ts, log); err != nil {
		return nil, err
	}
	return ts, nil
}

// loadTimestamp returns one of the caller's timestamps.
func (s *Salarium) loadTimestamp(ctx context.Context, workerID, id string) (*models.WorkTimestamp, error) {
	stamps, err := s.work.GetTimestamps(ctx, workerID, []string{id})
	if err != nil {
		return nil, err
	}
	if len(stamps) == 0 {
		return nil, apperr.NotFound("timestamp")
	}
	return stamps[0], nil
}

// UpdateTimestamp edits a timestamp that no application references yet.
func (s *Salarium) UpdateTimestamp(ctx context.Context, caller models.Caller, id string, upd models.TimestampUpdate) (*models.WorkTimestamp, error) {
	if err := requireWorker(caller); err != nil {
		return nil, err
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, apperr.Validation("status", "status must be WORK, REST or END")
	}
	if upd.Memo != nil {
		if err := validMemo(*upd.Memo); err != nil {
			return nil, err
		}
	}
	now := s.now()
	if upd.Timestamp != nil && upd.Timestamp.After(now) {
		return nil, apperr.Validation("timestamp", "timestamp cannot be in the future")
	}

	ts, err := s.loadTimestamp(ctx, caller.WorkerID, id)
	if err != nil {
		return nil, err
	}
	if ts.ApplicationStatus != models.LinkNone {
		return nil, apperr.Conflict("timestamp_linked", "timestamp is linked to an application")
	}

	prevStatus, prevTime := ts.Status, ts.Timestamp
	if upd.Status != nil {
		ts.Status = *upd.Status
	}
	if upd.Timestamp != nil {
		ts.Timestamp = upd.Timestamp.UTC()
	}
	if upd.Memo != nil {
		ts.Memo = *upd.Memo
	}
	ts.UpdatedAt = now

	newTime := ts.Timestamp
	log := &models.TimestampLog{
		ID:             uuid.NewString(),
		TimestampID:    ts.ID,
		WorkerID:       ts.WorkerID,
		Action:         models.TimestampActionUpdated,
		PreviousStatus: prevStatus,
		NewStatus:      ts.Status,
		PreviousTime:   &prevTime,
		NewTime:        &newTime,
		Memo:           ts.Memo,
		CreatedAt:      now,
	}
	if err := s.work.UpdateTimestamp(ctx, ts, log); err != nil {
		return nil, err
	}
	return ts, nil
}

// DeleteTimestamp removes a timestamp that no application references.
func (s *Salarium) DeleteTimestamp(ctx context.Context, caller models.Caller, id string) error {
	if err := requireWorker(caller); err != nil {
		return err
	}
	ts, err := s.loadTimestamp(ctx, caller.WorkerID, id)
	if err != nil {
		return err
	}
	if ts.ApplicationStatus != models.LinkNone {
		return apperr.Conflict("timestamp_linked", "timestamp is linked to an application")
	}

	prevTime := ts.Timestamp
	log := &models.TimestampLog{
		ID:             uuid.NewString(),
		TimestampID:    ts.ID,
		WorkerID:       ts.WorkerID,
		Action:         models.TimestampActionDeleted,
		PreviousStatus: ts.Status,
		PreviousTime:   &prevTime,
		Memo:           ts.Memo,
		CreatedAt:      s.now(),
	}
	return s.work.DeleteTimestamp(ctx, caller.WorkerID, id, log)
}

// ListTimestamps returns timestamps in [From, To). Workers list their own,
// admins list workers of their organization.
func (s *Salarium) ListTimestamps(ctx context.Context, caller models.Caller, in models.TimestampQuery) ([]*models.WorkTimestamp, error) {
	if !in.To.After(in.From) {
		return nil, apperr.Validation("to", "to must be after from")
	}
	if in.To.Sub(in.From) > maxTimestampRange {
		return nil, apperr.Validation("to", "time range is too long")
	}

	workerID := caller.WorkerID
	switch {
	case caller.IsAdmin():
		if in.WorkerID == "" {
			return nil, apperr.Validation("worker_id", "worker_id is required")
		}
		worker, err := s.repo.GetWorker(ctx, in.WorkerID)
		if err != nil {
			return nil, err
		}
		if err := sameOrganization(caller, worker.OrganizationID); err != nil {
			return nil, err
		}
		workerID = worker.ID
	default:
		if err := requireWorker(caller); err != nil {
			return nil, err
		}
		if in.WorkerID != "" && in.WorkerID != caller.WorkerID {
			return nil, apperr.Authorization("workers can only list their own timestamps")
		}
	}
	return s.work.ListTimestamps(ctx, workerID, in.From.UTC(), in.To.UTC())
}
