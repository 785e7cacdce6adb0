package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postcodejp/internal/models"

	"github.com/jackc/pgx/v5"
)

const runColumns = `id, sync_type, data_type, COALESCE(file_url, ''), file_date,
	records_added, records_deleted, records_updated, status, error_message,
	started_at, completed_at`

func scanRun(row pgx.Row) (*models.SyncRun, error) {
	var (
		run                   models.SyncRun
		kind, dataset, status string
	)
	err := row.Scan(
		&run.ID,
		&kind,
		&dataset,
		&run.FileURL,
		&run.FileDate,
		&run.RecordsAdded,
		&run.RecordsDeleted,
		&run.RecordsUpdated,
		&status,
		&run.ErrorMessage,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Kind = models.SyncKind(kind)
	run.Dataset = models.Dataset(dataset)
	run.Status = models.SyncStatusValue(status)
	return &run, nil
}

// CreateRun persists a new running run. A second running run for the same
// dataset is rejected with ErrRunInProgress.
func (r *Repository) CreateRun(ctx context.Context, kind models.SyncKind, dataset models.Dataset, fileURL string) (*models.SyncRun, error) {
	sql := `
		INSERT INTO sync_runs (sync_type, data_type, file_url, status)
		VALUES ($1, $2, NULLIF($3, ''), 'running')
		RETURNING ` + runColumns

	run, err := scanRun(r.db.QueryRow(ctx, sql, string(kind), string(dataset), fileURL))
	if err != nil {
		if isUniqueViolation(err, runningRunIndex) {
			return nil, fmt.Errorf("%w: %s", ErrRunInProgress, dataset)
		}
		return nil, fmt.Errorf("repository: failed to create sync run: %w", err)
	}
	return run, nil
}

// UpdateRunCounts overwrites the counters of a running run.
func (r *Repository) UpdateRunCounts(ctx context.Context, id int64, added, deleted, updated int) error {
	sql := `
		UPDATE sync_runs
		SET records_added = $2, records_deleted = $3, records_updated = $4
		WHERE id = $1 AND status = 'running'
	`
	tag, err := r.db.Exec(ctx, sql, id, added, deleted, updated)
	if err != nil {
		return fmt.Errorf("repository: failed to update sync run counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrRunNotRunning, id)
	}
	return nil
}

// SetRunSource records the source URL and publication timestamp on a running run.
func (r *Repository) SetRunSource(ctx context.Context, id int64, fileURL string, fileDate *time.Time) error {
	sql := `
		UPDATE sync_runs
		SET file_url = COALESCE(NULLIF($2, ''), file_url), file_date = COALESCE($3, file_date)
		WHERE id = $1 AND status = 'running'
	`
	tag, err := r.db.Exec(ctx, sql, id, fileURL, fileDate)
	if err != nil {
		return fmt.Errorf("repository: failed to set sync run source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrRunNotRunning, id)
	}
	return nil
}

// CompleteRun moves a running run to a terminal status. The error message is
// stored only for failed runs.
func (r *Repository) CompleteRun(ctx context.Context, id int64, status models.SyncStatusValue, errorMessage string) (*models.SyncRun, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("repository: %q is not a terminal status", status)
	}
	var msg *string
	if status == models.SyncStatusFailed && errorMessage != "" {
		msg = &errorMessage
	}
	sql := `
		UPDATE sync_runs
		SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1 AND status = 'running'
		RETURNING ` + runColumns

	run, err := scanRun(r.db.QueryRow(ctx, sql, id, string(status), msg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrRunNotRunning, id)
		}
		return nil, fmt.Errorf("repository: failed to complete sync run: %w", err)
	}
	return run, nil
}

// LatestCompletedRun returns the most recently completed run of kind for
// dataset, or nil when there is none. An empty kind or dataset matches all.
func (r *Repository) LatestCompletedRun(ctx context.Context, kind models.SyncKind, dataset models.Dataset) (*models.SyncRun, error) {
	sql := `
		SELECT ` + runColumns + `
		FROM sync_runs
		WHERE ($1::text = '' OR sync_type = $1::text)
		  AND ($2::text = '' OR data_type = $2::text)
		  AND status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1
	`
	run, err := scanRun(r.db.QueryRow(ctx, sql, string(kind), string(dataset)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: failed to load latest completed run: %w", err)
	}
	return run, nil
}

func (r *Repository) HasRunningRun(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sync_runs WHERE status = 'running')`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check running runs: %w", err)
	}
	return exists, nil
}

// ListRuns returns one page of the ledger, most recently started first.
func (r *Repository) ListRuns(ctx context.Context, limit, offset int) ([]models.SyncRun, error) {
	sql := `
		SELECT ` + runColumns + `
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list sync runs: %w", err)
	}
	defer rows.Close()

	runs := []models.SyncRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan sync run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating rows: %w", err)
	}
	return runs, nil
}

// FailStaleRuns fails runs left in running by a process that died mid-sync,
// so the one-running-per-dataset guard cannot wedge.
func (r *Repository) FailStaleRuns(ctx context.Context, startedBefore time.Time) (int64, error) {
	sql := `
		UPDATE sync_runs
		SET status = 'failed', error_message = 'interrupted', completed_at = now()
		WHERE status = 'running' AND started_at < $1
	`
	tag, err := r.db.Exec(ctx, sql, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to fail stale runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
