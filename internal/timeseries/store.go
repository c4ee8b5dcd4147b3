// Package timeseries is the time-series store of work timestamps, time
// applications and their logs, accessed with parameterized SQL over pgx.
package timeseries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/core-coin/salarium/pkg/apperr"
	"github.com/core-coin/salarium/pkg/logger"
)

type Store struct {
	logger *logger.Logger
	Pool   *pgxpool.Pool
}

// NewPool opens a pgx pool for databaseURL.
func NewPool(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	config.MinConns = 1
	config.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, config)
}

func New(pool *pgxpool.Pool, logger *logger.Logger) *Store {
	return &Store{Pool: pool, logger: logger}
}

func (s *Store) Close() {
	s.Pool.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS work_timestamps (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		application_status TEXT NOT NULL DEFAULT 'NONE',
		memo TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS work_timestamps_worker_ts_idx ON work_timestamps (worker_id, ts)`,
	`CREATE TABLE IF NOT EXISTS timestamp_logs (
		id TEXT PRIMARY KEY,
		timestamp_id TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		action TEXT NOT NULL,
		previous_status TEXT NOT NULL DEFAULT '',
		new_status TEXT NOT NULL DEFAULT '',
		previous_time TIMESTAMPTZ NULL,
		new_time TIMESTAMPTZ NULL,
		memo TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS timestamp_logs_timestamp_idx ON timestamp_logs (timestamp_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS time_applications (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		type TEXT NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		timestamp_ids TEXT[] NOT NULL,
		total_minutes BIGINT NOT NULL,
		hourly_rate_usd NUMERIC(12,2) NOT NULL,
		total_amount_usd NUMERIC(20,2) NOT NULL,
		status TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT NOT NULL DEFAULT '',
		rejection_category TEXT NOT NULL DEFAULT '',
		approved_by TEXT NOT NULL DEFAULT '',
		approved_at TIMESTAMPTZ NULL,
		rejected_by TEXT NOT NULL DEFAULT '',
		rejected_at TIMESTAMPTZ NULL,
		hourly_rate_at_approval NUMERIC(12,2) NULL,
		approved_amount_usd NUMERIC(20,2) NULL,
		resubmit_count INT NOT NULL DEFAULT 0,
		original_application_id TEXT NOT NULL DEFAULT '',
		payment_request_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS time_applications_worker_idx ON time_applications (worker_id, status)`,
	`CREATE INDEX IF NOT EXISTS time_applications_request_idx ON time_applications (payment_request_id)`,
	`CREATE TABLE IF NOT EXISTS application_logs (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		action TEXT NOT NULL,
		previous_status TEXT NOT NULL DEFAULT '',
		new_status TEXT NOT NULL DEFAULT '',
		actor_id TEXT NOT NULL DEFAULT '',
		snapshot JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS application_logs_application_idx ON application_logs (application_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS approval_logs (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		hourly_rate_usd NUMERIC(12,2) NULL,
		amount_usd NUMERIC(20,2) NULL,
		reason TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		snapshot JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply time-series schema: %w", err)
		}
	}
	return nil
}

// inTx runs fn in one transaction, rolling back on any error.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// expectRows fails with a conflict when a guarded statement touched a
// different number of rows than expected.
func expectRows(got int64, want int, code, message string) error {
	if got != int64(want) {
		return apperr.Conflict(code, message)
	}
	return nil
}

func noRows(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}
