package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/core-coin/salarium/internal/models"
)

const timestampColumns = `id, worker_id, ts, status, application_status, memo, created_at, updated_at`

func scanTimestamps(rows pgx.Rows) ([]*models.WorkTimestamp, error) {
	defer rows.Close()
	var out []*models.WorkTimestamp
	for rows.Next() {
		var ts models.WorkTimestamp
		if err := rows.Scan(&ts.ID, &ts.WorkerID, &ts.Timestamp, &ts.Status, &ts.ApplicationStatus, &ts.Memo, &ts.CreatedAt, &ts.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timestamp: %w", err)
		}
		out = append(out, &ts)
	}
	return out, rows.Err()
}

func insertTimestampLog(ctx context.Context, tx pgx.Tx, log *models.TimestampLog) error {
	_, err := tx.Exec(ctx, `INSERT INTO timestamp_logs
		(id, timestamp_id, worker_id, action, previous_status, new_status, previous_time, new_time, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		log.ID, log.TimestampID, log.WorkerID, log.Action, log.PreviousStatus, log.NewStatus,
		log.PreviousTime, log.NewTime, log.Memo, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append timestamp log: %w", err)
	}
	return nil
}

func (s *Store) CreateTimestamp(ctx context.Context, ts *models.WorkTimestamp, log *models.TimestampLog) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO work_timestamps (`+timestampColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ts.ID, ts.WorkerID, ts.Timestamp, ts.Status, ts.ApplicationStatus, ts.Memo, ts.CreatedAt, ts.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create timestamp: %w", err)
		}
		return insertTimestampLog(ctx, tx, log)
	})
}

// GetTimestamps returns the worker's timestamps among ids in time order.
// Ids that belong to another worker are silently left out.
func (s *Store) GetTimestamps(ctx context.Context, workerID string, ids []string) ([]*models.WorkTimestamp, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+timestampColumns+` FROM work_timestamps
		WHERE worker_id = $1 AND id = ANY($2) ORDER BY ts`, workerID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamps: %w", err)
	}
	return scanTimestamps(rows)
}

func (s *Store) ListTimestamps(ctx context.Context, workerID string, from, to time.Time) ([]*models.WorkTimestamp, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+timestampColumns+` FROM work_timestamps
		WHERE worker_id = $1 AND ts >= $2 AND ts < $3 ORDER BY ts`, workerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamps: %w", err)
	}
	return scanTimestamps(rows)
}

// UpdateTimestamp rewrites an unlinked timestamp.
func (s *Store) UpdateTimestamp(ctx context.Context, ts *models.WorkTimestamp, log *models.TimestampLog) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE work_timestamps SET ts = $1, status = $2, memo = $3, updated_at = $4
			WHERE id = $5 AND worker_id = $6 AND application_status = $7`,
			ts.Timestamp, ts.Status, ts.Memo, ts.UpdatedAt, ts.ID, ts.WorkerID, models.LinkNone)
		if err != nil {
			return fmt.Errorf("failed to update timestamp: %w", err)
		}
		if err := expectRows(tag.RowsAffected(), 1, "timestamp_linked", "timestamp is linked to an application"); err != nil {
			return err
		}
		return insertTimestampLog(ctx, tx, log)
	})
}

// DeleteTimestamp removes an unlinked timestamp.
func (s *Store) DeleteTimestamp(ctx context.Context, workerID, id string, log *models.TimestampLog) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM work_timestamps WHERE id = $1 AND worker_id = $2 AND application_status = $3`,
			id, workerID, models.LinkNone)
		if err != nil {
			return fmt.Errorf("failed to delete timestamp: %w", err)
		}
		if err := expectRows(tag.RowsAffected(), 1, "timestamp_linked", "timestamp is linked to an application"); err != nil {
			return err
		}
		return insertTimestampLog(ctx, tx, log)
	})
}

// setLinkStatus moves the linkage of ids from one status to another. With
// strict set every id must move.
func setLinkStatus(ctx context.Context, tx pgx.Tx, ids []string, from, to models.LinkStatus, strict bool) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `UPDATE work_timestamps SET application_status = $1, updated_at = now()
		WHERE id = ANY($2) AND application_status = $3`, to, ids, from)
	if err != nil {
		return fmt.Errorf("failed to update timestamp linkage: %w", err)
	}
	if strict {
		return expectRows(tag.RowsAffected(), len(ids), "timestamp_linked",
			fmt.Sprintf("some timestamps are not %s", from))
	}
	return nil
}
