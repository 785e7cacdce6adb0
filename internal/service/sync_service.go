package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"postcodejp/internal/fetcher"
	"postcodejp/internal/importer"
	"postcodejp/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ArchiveFetcher downloads publisher archives.
type ArchiveFetcher interface {
	CheckFreshness(ctx context.Context, url string) fetcher.Freshness
	FetchAndExtract(ctx context.Context, url string) (*fetcher.Archive, error)
	DiffURLs(yymm string) (string, string, error)
	FetchDiff(ctx context.Context, yymm string) (*fetcher.DiffArchives, error)
}

// SyncEngine loads extracted archives and keeps the ledger entry for each load.
type SyncEngine interface {
	InitPrefectures(ctx context.Context) (int, error)
	ClearAddresses(ctx context.Context) (int, error)
	ClearOffices(ctx context.Context) (int, error)
	ImportAddresses(ctx context.Context, dir string, run *models.SyncRun) (int, error)
	ImportOffices(ctx context.Context, dir string, run *models.SyncRun) (int, error)
	ApplyDiffAdd(ctx context.Context, dir string, run *models.SyncRun) (int, error)
	ApplyDiffDelete(ctx context.Context, dir string, run *models.SyncRun) (int, error)
	BeginRun(ctx context.Context, kind models.SyncKind, dataset models.Dataset, sourceURL string) (*models.SyncRun, error)
	RecordSource(ctx context.Context, run *models.SyncRun, url string, fileDate *time.Time) error
	CompleteRun(ctx context.Context, run *models.SyncRun, status models.SyncStatusValue, errorMessage string) error
}

// SyncLedger is the read side of the sync history and the row counts.
type SyncLedger interface {
	LatestCompletedRun(ctx context.Context, kind models.SyncKind, dataset models.Dataset) (*models.SyncRun, error)
	HasRunningRun(ctx context.Context) (bool, error)
	ListRuns(ctx context.Context, limit, offset int) ([]models.SyncRun, error)
	CountAddresses(ctx context.Context) (int64, error)
	CountOffices(ctx context.Context) (int64, error)
}

// Invalidator drops cached lookups after the store changed.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// SyncSources are the full-snapshot archive URLs.
type SyncSources struct {
	AddressURL string
	OfficeURL  string
}

// SyncReport describes one orchestration call. A nil run means the dataset
// was not attempted, either because of the freshness check or because
// another sync for it was already running.
type SyncReport struct {
	Skipped   bool            `json:"skipped"`
	Addresses *models.SyncRun `json:"addresses,omitempty"`
	Offices   *models.SyncRun `json:"offices,omitempty"`
}

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// SyncService orchestrates fetch, import and ledger bookkeeping for both datasets.
type SyncService struct {
	fetcher ArchiveFetcher
	engine  SyncEngine
	ledger  SyncLedger
	sources SyncSources
	cache   Invalidator

	group singleflight.Group
	wg    sync.WaitGroup
	now   func() time.Time
}

// NewSyncService creates a new sync service. cache may be nil.
func NewSyncService(f ArchiveFetcher, engine SyncEngine, ledger SyncLedger, sources SyncSources, cache Invalidator) *SyncService {
	return &SyncService{
		fetcher: f,
		engine:  engine,
		ledger:  ledger,
		sources: sources,
		cache:   cache,
		now:     time.Now,
	}
}

// SyncAll re-syncs both datasets from their full archives, addresses first.
// Failures end up in the ledger, never in the return value. Concurrent calls
// in one process share a single execution.
func (s *SyncService) SyncAll(ctx context.Context) *SyncReport {
	v, _, shared := s.group.Do("full", func() (any, error) {
		return s.syncAll(ctx, fetcher.Freshness{}), nil
	})
	if shared {
		log.Info().Msg("joined sync already in flight")
	}
	return v.(*SyncReport)
}

// CheckAndSync runs SyncAll only when the address archive looks newer than
// the last completed address sync. An unknown remote timestamp counts as newer.
func (s *SyncService) CheckAndSync(ctx context.Context) *SyncReport {
	v, _, _ := s.group.Do("check", func() (any, error) {
		fresh := s.fetcher.CheckFreshness(ctx, s.sources.AddressURL)
		if s.upToDate(ctx, fresh) {
			return &SyncReport{Skipped: true}, nil
		}
		rep, _, _ := s.group.Do("full", func() (any, error) {
			return s.syncAll(ctx, fresh), nil
		})
		return rep, nil
	})
	return v.(*SyncReport)
}

func (s *SyncService) upToDate(ctx context.Context, fresh fetcher.Freshness) bool {
	if fresh.LastModified == nil {
		log.Info().Msg("remote timestamp unknown, syncing")
		return false
	}
	last, err := s.ledger.LatestCompletedRun(ctx, models.SyncKindFull, models.DatasetAddresses)
	if err != nil {
		log.Error().Err(err).Msg("failed to read last completed sync, syncing")
		return false
	}
	if last == nil || last.FileDate == nil {
		return false
	}
	if fresh.LastModified.After(*last.FileDate) {
		log.Info().Time("remote", *fresh.LastModified).Time("local", *last.FileDate).Msg("newer archive published")
		return false
	}
	log.Info().Time("remote", *fresh.LastModified).Int64("run_id", last.ID).Msg("data is up to date, skipping sync")
	return true
}

func (s *SyncService) syncAll(ctx context.Context, fresh fetcher.Freshness) *SyncReport {
	start := s.now()
	report := &SyncReport{}
	report.Addresses, _ = s.runPipeline(ctx, models.SyncKindFull, models.DatasetAddresses, s.sources.AddressURL,
		func(run *models.SyncRun) error {
			return s.syncAddresses(ctx, run, fresh)
		})
	report.Offices, _ = s.runPipeline(ctx, models.SyncKindFull, models.DatasetOffices, s.sources.OfficeURL,
		func(run *models.SyncRun) error {
			return s.syncOffices(ctx, run)
		})
	log.Info().Dur("elapsed", s.now().Sub(start)).Msg("full sync finished")
	return report
}

func (s *SyncService) syncAddresses(ctx context.Context, run *models.SyncRun, fresh fetcher.Freshness) error {
	if _, err := s.engine.ClearAddresses(ctx); err != nil {
		return err
	}
	archive, err := s.fetcher.FetchAndExtract(ctx, s.sources.AddressURL)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer archive.Remove()

	fileDate := archive.LastModified
	if fileDate == nil {
		fileDate = fresh.LastModified
	}
	if err := s.engine.RecordSource(ctx, run, archive.URL, fileDate); err != nil {
		return err
	}
	if _, err := s.engine.InitPrefectures(ctx); err != nil {
		return err
	}
	_, err = s.engine.ImportAddresses(ctx, archive.Dir, run)
	return err
}

func (s *SyncService) syncOffices(ctx context.Context, run *models.SyncRun) error {
	if _, err := s.engine.ClearOffices(ctx); err != nil {
		return err
	}
	archive, err := s.fetcher.FetchAndExtract(ctx, s.sources.OfficeURL)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer archive.Remove()

	if err := s.engine.RecordSource(ctx, run, archive.URL, archive.LastModified); err != nil {
		return err
	}
	_, err = s.engine.ImportOffices(ctx, archive.Dir, run)
	return err
}

// SyncDiff applies the monthly add and delete archives for yymm to the
// address table as one diff run. Deletes are applied before adds.
func (s *SyncService) SyncDiff(ctx context.Context, yymm string) (*models.SyncRun, error) {
	addURL, _, err := s.fetcher.DiffURLs(yymm)
	if err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do("diff:"+yymm, func() (any, error) {
		return s.runPipeline(ctx, models.SyncKindDiff, models.DatasetAddresses, addURL,
			func(run *models.SyncRun) error {
				return s.applyDiff(ctx, run, yymm)
			})
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SyncRun), nil
}

func (s *SyncService) applyDiff(ctx context.Context, run *models.SyncRun, yymm string) error {
	diff, err := s.fetcher.FetchDiff(ctx, yymm)
	if err != nil {
		return err
	}
	defer diff.Remove()

	if diff.Add == nil && diff.Del == nil {
		return fmt.Errorf("no diff archives published for %s: add: %v, delete: %v", yymm, diff.AddErr, diff.DelErr)
	}

	if diff.Add == nil {
		// the run was opened with the add URL; point it at what was applied
		if err := s.engine.RecordSource(ctx, run, diff.Del.URL, diff.Del.LastModified); err != nil {
			return err
		}
	}
	if diff.Del != nil {
		if _, err := s.engine.ApplyDiffDelete(ctx, diff.Del.Dir, run); err != nil {
			return err
		}
	} else {
		log.Warn().Err(diff.DelErr).Str("url", diff.DelURL).Msg("delete diff unavailable, applying adds only")
	}

	if diff.Add == nil {
		log.Warn().Err(diff.AddErr).Str("url", diff.AddURL).Msg("add diff unavailable, applied deletes only")
		return nil
	}
	if err := s.engine.RecordSource(ctx, run, diff.Add.URL, diff.Add.LastModified); err != nil {
		return err
	}
	if _, err := s.engine.InitPrefectures(ctx); err != nil {
		return err
	}
	_, err = s.engine.ApplyDiffAdd(ctx, diff.Add.Dir, run)
	return err
}

// runPipeline begins a run, executes body and completes the run from body's
// outcome. Errors and panics inside body become a failed run; only a refused
// BeginRun is returned to the caller.
func (s *SyncService) runPipeline(ctx context.Context, kind models.SyncKind, dataset models.Dataset, url string, body func(*models.SyncRun) error) (run *models.SyncRun, err error) {
	run, err = s.engine.BeginRun(ctx, kind, dataset, url)
	if err != nil {
		if errors.Is(err, importer.ErrSyncInProgress) {
			log.Warn().Str("dataset", string(dataset)).Str("kind", string(kind)).Msg("sync already in progress, not starting another")
		} else {
			log.Error().Err(err).Str("dataset", string(dataset)).Msg("failed to begin sync run")
		}
		return nil, err
	}

	var bodyErr error
	defer func() {
		if r := recover(); r != nil {
			bodyErr = fmt.Errorf("panic: %v", r)
			log.Error().Str("stack", string(debug.Stack())).Int64("run_id", run.ID).Msg("sync pipeline panicked")
		}
		status, msg := models.SyncStatusCompleted, ""
		if bodyErr != nil {
			status, msg = models.SyncStatusFailed, bodyErr.Error()
		}
		if cerr := s.engine.CompleteRun(ctx, run, status, msg); cerr != nil {
			log.Error().Err(cerr).Int64("run_id", run.ID).Msg("failed to record sync outcome")
		}
		s.invalidate(ctx)
	}()

	bodyErr = body(run)
	return run, nil
}

func (s *SyncService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate lookup cache")
	}
}

// TriggerSync starts SyncAll in the background and returns an id for the logs.
// The sync is not tied to any request and is not cancelled on shutdown.
func (s *SyncService) TriggerSync() string {
	id := uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("trigger_id", id).Msg("manual full sync triggered")
		rep := s.SyncAll(context.Background())
		log.Info().Str("trigger_id", id).Bool("skipped", rep.Skipped).Msg("manual full sync done")
	}()
	return id
}

// TriggerDiff validates yymm and starts SyncDiff in the background.
func (s *SyncService) TriggerDiff(yymm string) (string, error) {
	if _, _, err := s.fetcher.DiffURLs(yymm); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("trigger_id", id).Str("yymm", yymm).Msg("manual diff sync triggered")
		if _, err := s.SyncDiff(context.Background(), yymm); err != nil {
			log.Warn().Err(err).Str("trigger_id", id).Msg("diff sync not started")
		}
	}()
	return id, nil
}

// Wait blocks until background triggers started so far have returned.
func (s *SyncService) Wait() {
	s.wg.Wait()
}

// Status reports whether a sync is running, the last completed run and the row counts.
func (s *SyncService) Status(ctx context.Context) (*models.SyncStatus, error) {
	running, err := s.ledger.HasRunningRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to check running syncs: %w", err)
	}
	last, err := s.ledger.LatestCompletedRun(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("service: failed to load last sync: %w", err)
	}
	addresses, err := s.ledger.CountAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to count postal codes: %w", err)
	}
	offices, err := s.ledger.CountOffices(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to count office postal codes: %w", err)
	}
	return &models.SyncStatus{
		IsSyncing:        running,
		LastSync:         last,
		PostalCodesCount: addresses,
		OfficeCodesCount: offices,
		CheckedAt:        s.now().UTC(),
	}, nil
}

// History returns one page of runs, most recently started first.
func (s *SyncService) History(ctx context.Context, limit, offset int) ([]models.SyncRun, error) {
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxHistoryLimit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalidArgument)
	}
	runs, err := s.ledger.ListRuns(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list sync runs: %w", err)
	}
	return runs, nil
}
