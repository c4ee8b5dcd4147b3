package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
)

const applicationColumns = `id, worker_id, organization_id, type, start_date, end_date, timestamp_ids,
	total_minutes, hourly_rate_usd::text, total_amount_usd::text, status, memo,
	rejection_reason, rejection_category, approved_by, approved_at, rejected_by, rejected_at,
	hourly_rate_at_approval::text, approved_amount_usd::text, resubmit_count,
	original_application_id, payment_request_id, created_at, updated_at`

func scanApplication(row pgx.Row) (*models.TimeApplication, error) {
	var a models.TimeApplication
	err := row.Scan(&a.ID, &a.WorkerID, &a.OrganizationID, &a.Type, &a.StartDate, &a.EndDate, &a.TimestampIDs,
		&a.TotalMinutes, &a.HourlyRateUSD, &a.TotalAmountUSD, &a.Status, &a.Memo,
		&a.RejectionReason, &a.RejectionCategory, &a.ApprovedBy, &a.ApprovedAt, &a.RejectedBy, &a.RejectedAt,
		&a.HourlyRateAtApproval, &a.ApprovedAmountUSD, &a.ResubmitCount,
		&a.OriginalApplicationID, &a.PaymentRequestID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// nullNumeric renders an optional decimal as a text parameter.
func nullNumeric(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	v := d.Decimal.String()
	return &v
}

func scanApplications(rows pgx.Rows) ([]*models.TimeApplication, error) {
	defer rows.Close()
	var out []*models.TimeApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertApplicationLog(ctx context.Context, tx pgx.Tx, log *models.ApplicationLog) error {
	_, err := tx.Exec(ctx, `INSERT INTO application_logs
		(id, application_id, worker_id, organization_id, action, previous_status, new_status, actor_id, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		log.ID, log.ApplicationID, log.WorkerID, log.OrganizationID, log.Action,
		log.PreviousStatus, log.NewStatus, log.ActorID, []byte(log.Snapshot), log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append application log: %w", err)
	}
	return nil
}

func insertApprovalLog(ctx context.Context, tx pgx.Tx, log *models.ApprovalLog) error {
	_, err := tx.Exec(ctx, `INSERT INTO approval_logs
		(id, application_id, action, actor_id, hourly_rate_usd, amount_usd, reason, category, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7, $8, $9, $10)`,
		log.ID, log.ApplicationID, log.Action, log.ActorID, nullNumeric(log.HourlyRateUSD), nullNumeric(log.AmountUSD),
		log.Reason, log.Category, []byte(log.Snapshot), log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append approval log: %w", err)
	}
	return nil
}

// CreateApplication links the timestamps and stores the application. Every
// timestamp must be unlinked; a resubmission's original must be REJECTED.
func (s *Store) CreateApplication(ctx context.Context, app *models.TimeApplication, log *models.ApplicationLog) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if app.OriginalApplicationID != "" {
			var status models.ApplicationStatus
			err := tx.QueryRow(ctx, `SELECT status FROM time_applications WHERE id = $1 FOR UPDATE`, app.OriginalApplicationID).Scan(&status)
			if err != nil {
				return noRows(err, "application")
			}
			if status != models.ApplicationRejected {
				return apperr.Conflict("application_status", "only rejected applications can be resubmitted")
			}
		}

		tag, err := tx.Exec(ctx, `UPDATE work_timestamps SET application_status = $1, updated_at = now()
			WHERE worker_id = $2 AND id = ANY($3) AND application_status = $4`,
			models.LinkPending, app.WorkerID, app.TimestampIDs, models.LinkNone)
		if err != nil {
			return fmt.Errorf("failed to link timestamps: %w", err)
		}
		if err := expectRows(tag.RowsAffected(), len(app.TimestampIDs), "timestamp_linked",
			"some timestamps are already linked to an application"); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `INSERT INTO time_applications (`+applicationColumnsInsert+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::text::numeric, $10::text::numeric, $11, $12, $13, $14, $15, $16, $17)`,
			app.ID, app.WorkerID, app.OrganizationID, app.Type, app.StartDate, app.EndDate, app.TimestampIDs,
			app.TotalMinutes, app.HourlyRateUSD.String(), app.TotalAmountUSD.String(), app.Status, app.Memo,
			app.ResubmitCount, app.OriginalApplicationID, app.PaymentRequestID, app.CreatedAt, app.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		return insertApplicationLog(ctx, tx, log)
	})
}

const applicationColumnsInsert = `id, worker_id, organization_id, type, start_date, end_date, timestamp_ids,
	total_minutes, hourly_rate_usd, total_amount_usd, status, memo,
	resubmit_count, original_application_id, payment_request_id, created_at, updated_at`

func (s *Store) GetApplication(ctx context.Context, id string) (*models.TimeApplication, error) {
	app, err := scanApplication(s.Pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM time_applications WHERE id = $1`, id))
	if err != nil {
		return nil, noRows(err, "application")
	}
	return app, nil
}

func (s *Store) GetApplications(ctx context.Context, ids []string) ([]*models.TimeApplication, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+applicationColumns+` FROM time_applications WHERE id = ANY($1) ORDER BY start_date`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	return scanApplications(rows)
}

func (s *Store) ApproveApplication(ctx context.Context, app *models.TimeApplication, log *models.ApplicationLog, approval *models.ApprovalLog) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE time_applications SET status = $1, approved_by = $2, approved_at = $3,
			hourly_rate_at_approval = $4::text::numeric, approved_amount_usd = $5::text::numeric, updated_at = $6
			WHERE id = $7 AND status = $8`,
			models.ApplicationApproved, app.ApprovedBy, app.ApprovedAt, nullNumeric(app.HourlyRateAtApproval), nullNumeric(app.ApprovedAmountUSD),
			app.UpdatedAt, app.ID, models.ApplicationPending)
		if err != nil {
			return fmt.Errorf("failed to approve application: %w", err)
		}
		if err := expectRows(tag.RowsAffected(), 1, "application_status", "application is not pending"); err != nil {
			return err
		}
		if err := setLinkStatus(ctx, tx, app.TimestampIDs, models.LinkPending, models.LinkApproved, false); err != nil {
			return err
		}
		if err := insertApplicationLog(ctx, tx, log); err != nil {
			return err
		}
		return insertApprovalLog(ctx, tx, approval)
	})
}

func (s *Store) RejectApplication(ctx context.Context, app *models.TimeApplication, log *models.ApplicationLog, approval *models.ApprovalLog) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE time_applications SET status = $1, rejection_reason = $2, rejection_category = $3,
			rejected_by = $4, rejected_at = $5, updated_at = $6
			WHERE id = $7 AND status = $8`,
			models.ApplicationRejected, app.RejectionReason, app.RejectionCategory, app.RejectedBy, app.RejectedAt,
			app.UpdatedAt, app.ID, models.ApplicationPending)
		if err != nil {
			return fmt.Errorf("failed to reject application: %w", err)
		}
		if err := expectRows(tag.RowsAffected(), 1, "application_status", "application is not pending"); err != nil {
			return err
		}
		if err := setLinkStatus(ctx, tx, app.TimestampIDs, models.LinkPending, models.LinkNone, false); err != nil {
			return err
		}
		if err := insertApplicationLog(ctx, tx, log); err != nil {
			return err
		}
		return insertApprovalLog(ctx, tx, approval)
	})
}

// CancelApplication deletes a pending application of its owner.
func (s *Store) CancelApplication(ctx context.Context, app *models.TimeApplication, log *models.ApplicationLog) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM time_applications WHERE id = $1 AND worker_id = $2 AND status = $3`,
			app.ID, app.WorkerID, models.ApplicationPending)
		if err != nil {
			return fmt.Errorf("failed to cancel application: %w", err)
		}
		if err := expectRows(tag.RowsAffected(), 1, "application_status", "application is not pending"); err != nil {
			return err
		}
		if err := setLinkStatus(ctx, tx, app.TimestampIDs, models.LinkPending, models.LinkNone, false); err != nil {
			return err
		}
		return insertApplicationLog(ctx, tx, log)
	})
}

func (s *Store) ListApplicationLogs(ctx context.Context, applicationID string) ([]*models.ApplicationLog, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, application_id, worker_id, organization_id, action, previous_status,
		new_status, actor_id, snapshot, created_at
		FROM application_logs WHERE application_id = $1 ORDER BY created_at, id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query application logs: %w", err)
	}
	defer rows.Close()
	var out []*models.ApplicationLog
	for rows.Next() {
		var l models.ApplicationLog
		var snapshot []byte
		if err := rows.Scan(&l.ID, &l.ApplicationID, &l.WorkerID, &l.OrganizationID, &l.Action, &l.PreviousStatus,
			&l.NewStatus, &l.ActorID, &snapshot, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan application log: %w", err)
		}
		l.Snapshot = snapshot
		out = append(out, &l)
	}
	return out, rows.Err()
}

// transitionByRequest moves every application of requestID from one status to
// another, updates their timestamps' linkage and logs each one. It returns
// the number of applications moved.
func (s *Store) transitionByRequest(ctx context.Context, requestID, actorID, action string,
	from, to models.ApplicationStatus, linkFrom, linkTo models.LinkStatus, clearLink bool) (int, error) {
	moved := 0
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		newRequestID := requestID
		if clearLink {
			newRequestID = ""
		}
		rows, err := tx.Query(ctx, `UPDATE time_applications SET status = $1, payment_request_id = $2, updated_at = now()
			WHERE payment_request_id = $3 AND status = $4
			RETURNING `+applicationColumns, to, newRequestID, requestID, from)
		if err != nil {
			return fmt.Errorf("failed to update applications: %w", err)
		}
		apps, err := scanApplications(rows)
		if err != nil {
			return err
		}
		moved = len(apps)
		return s.afterTransition(ctx, tx, apps, actorID, action, from, linkFrom, linkTo)
	})
	return moved, err
}

func (s *Store) afterTransition(ctx context.Context, tx pgx.Tx, apps []*models.TimeApplication, actorID, action string,
	from models.ApplicationStatus, linkFrom, linkTo models.LinkStatus) error {
	var stampIDs []string
	now := time.Now().UTC()
	for _, app := range apps {
		stampIDs = append(stampIDs, app.TimestampIDs...)
		err := insertApplicationLog(ctx, tx, &models.ApplicationLog{
			ID:             uuid.NewString(),
			ApplicationID:  app.ID,
			WorkerID:       app.WorkerID,
			OrganizationID: app.OrganizationID,
			Action:         action,
			PreviousStatus: from,
			NewStatus:      app.Status,
			ActorID:        actorID,
			Snapshot:       app.Snapshot(),
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
	}
	if linkFrom == linkTo {
		return nil
	}
	return setLinkStatus(ctx, tx, stampIDs, linkFrom, linkTo, false)
}

// MarkApplicationsRequested links the given APPROVED, unlinked applications of
// the worker to requestID. Either all of them move or none does.
func (s *Store) MarkApplicationsRequested(ctx context.Context, workerID, requestID, actorID string, ids []string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `UPDATE time_applications SET status = $1, payment_request_id = $2, updated_at = now()
			WHERE id = ANY($3) AND worker_id = $4 AND status = $5 AND payment_request_id = ''
			RETURNING `+applicationColumns,
			models.ApplicationRequested, requestID, ids, workerID, models.ApplicationApproved)
		if err != nil {
			return fmt.Errorf("failed to request applications: %w", err)
		}
		apps, err := scanApplications(rows)
		if err != nil {
			return err
		}
		if err := expectRows(int64(len(apps)), len(ids), "application_status",
			"every application must be approved and not yet requested"); err != nil {
			return err
		}
		return s.afterTransition(ctx, tx, apps, actorID, models.ApplicationActionRequested,
			models.ApplicationApproved, models.LinkApproved, models.LinkApproved)
	})
}

func (s *Store) RevertApplicationsRequested(ctx context.Context, requestID, actorID string) (int, error) {
	return s.transitionByRequest(ctx, requestID, actorID, models.ApplicationActionRequestReverted,
		models.ApplicationRequested, models.ApplicationApproved, models.LinkApproved, models.LinkApproved, true)
}

func (s *Store) MarkApplicationsPaid(ctx context.Context, requestID, actorID string) (int, error) {
	return s.transitionByRequest(ctx, requestID, actorID, models.ApplicationActionPaid,
		models.ApplicationRequested, models.ApplicationPaid, models.LinkApproved, models.LinkPaid, false)
}

func (s *Store) RevertApplicationsPaid(ctx context.Context, requestID, actorID string) (int, error) {
	return s.transitionByRequest(ctx, requestID, actorID, models.ApplicationActionPaidReverted,
		models.ApplicationPaid, models.ApplicationRequested, models.LinkPaid, models.LinkApproved, false)
}

func (s *Store) ListRequestedApplications(ctx context.Context, organizationID string, updatedBefore time.Time, limit int) ([]*models.TimeApplication, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+applicationColumns+` FROM time_applications
		WHERE status = $1 AND updated_at < $2 AND ($3 = '' OR organization_id = $3)
		ORDER BY updated_at LIMIT $4`,
		models.ApplicationRequested, updatedBefore, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query requested applications: %w", err)
	}
	return scanApplications(rows)
}
