package importer

import (
	"context"
	"fmt"
	"time"

	"postcodejp/internal/metrics"
	"postcodejp/internal/models"

	"github.com/rs/zerolog/log"
)

// BeginRun records a new running run. It fails with ErrSyncInProgress while
// another run for the same dataset is still running.
func (e *Engine) BeginRun(ctx context.Context, kind models.SyncKind, dataset models.Dataset, sourceURL string) (*models.SyncRun, error) {
	run, err := e.store.CreateRun(ctx, kind, dataset, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("importer: begin %s %s run: %w", kind, dataset, err)
	}
	log.Info().Int64("run_id", run.ID).Str("dataset", string(dataset)).Str("kind", string(kind)).Msg("sync run started")
	return run, nil
}

// RecordSource stores where the run's data came from and when it was published.
func (e *Engine) RecordSource(ctx context.Context, run *models.SyncRun, url string, fileDate *time.Time) error {
	if err := e.store.SetRunSource(ctx, run.ID, url, fileDate); err != nil {
		return fmt.Errorf("importer: record source of run %d: %w", run.ID, err)
	}
	if url != "" {
		run.FileURL = url
	}
	if fileDate != nil {
		run.FileDate = fileDate
	}
	return nil
}

// CompleteRun moves run to status. errorMessage is kept only for failed runs.
// The write ignores cancellation of ctx so an aborted sync still leaves a
// terminal ledger entry.
func (e *Engine) CompleteRun(ctx context.Context, run *models.SyncRun, status models.SyncStatusValue, errorMessage string) error {
	ctx = context.WithoutCancel(ctx)
	done, err := e.store.CompleteRun(ctx, run.ID, status, errorMessage)
	if err != nil {
		return fmt.Errorf("importer: complete run %d: %w", run.ID, err)
	}
	*run = *done

	metrics.SyncRunsTotal.WithLabelValues(string(run.Dataset), string(run.Kind), string(run.Status)).Inc()
	if run.CompletedAt != nil {
		metrics.SyncDurationSeconds.WithLabelValues(string(run.Dataset), string(run.Kind)).
			Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())
	}

	evt := log.Info()
	if status == models.SyncStatusFailed {
		evt = log.Error().Str("error", errorMessage)
	}
	evt.Int64("run_id", run.ID).
		Str("dataset", string(run.Dataset)).
		Str("kind", string(run.Kind)).
		Str("status", string(run.Status)).
		Int("added", run.RecordsAdded).
		Int("deleted", run.RecordsDeleted).
		Msg("sync run finished")
	return nil
}
