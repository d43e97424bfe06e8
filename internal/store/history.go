// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

const (
	runsTable = "import_runs"

	mysqlDuplicateEntry = 1062
)

var ErrDuplicateRun = errors.New("run already recorded")

// Run is one import execution.
type Run struct {
	ID          uuid.UUID
	ListID      string
	Title       string
	Rows        int
	Batches     int
	Errors      int
	AbortReason string // empty when every chunk was attempted
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Aborted reports whether the run stopped before its last chunk.
func (r Run) Aborted() bool {
	return r.AbortReason != ""
}

// EnsureSchema creates the runs table if needed.
func (sc *SQLClient) EnsureSchema(ctx context.Context) error {
	ctx, cancel := sc.context(ctx)
	defer cancel()

	_, err := sc.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+runsTable+` (
  id CHAR(36) NOT NULL PRIMARY KEY,
  list_id VARCHAR(64) NOT NULL,
  list_title VARCHAR(255) NOT NULL DEFAULT '',
  rows_total INT NOT NULL,
  batches INT NOT NULL,
  error_count INT NOT NULL,
  abort_reason TEXT NULL,
  started_at DATETIME(3) NOT NULL,
  finished_at DATETIME(3) NOT NULL,
  KEY idx_list_started (list_id, started_at)
)`)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", runsTable, err)
	}
	return nil
}

// RecordRun inserts a finished run.
func (sc *SQLClient) RecordRun(ctx context.Context, run Run) error {
	ctx, cancel := sc.context(ctx)
	defer cancel()

	var reason *string
	if run.AbortReason != "" {
		reason = &run.AbortReason
	}

	_, err := sc.db.ExecContext(ctx, `INSERT INTO `+runsTable+`
(id, list_id, list_title, rows_total, batches, error_count, abort_reason, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.ListID, run.Title, run.Rows, run.Batches, run.Errors, reason,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
		}
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs for a list, newest first.
func (sc *SQLClient) RecentRuns(ctx context.Context, listID string, limit int) ([]Run, error) {
	ctx, cancel := sc.context(ctx)
	defer cancel()

	rows, err := sc.db.QueryContext(ctx, `SELECT id, list_id, list_title, rows_total, batches, error_count,
COALESCE(abort_reason, ''), started_at, finished_at
FROM `+runsTable+` WHERE list_id = ? ORDER BY started_at DESC LIMIT ?`, listID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r  Run
			id string
		)
		if err := rows.Scan(&id, &r.ListID, &r.Title, &r.Rows, &r.Batches, &r.Errors,
			&r.AbortReason, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad run id %q: %w", id, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
