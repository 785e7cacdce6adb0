// Package importer loads parsed postal-code records into the store in
// bounded batches and maintains the sync ledger entries that describe each load.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postcodejp/internal/metrics"
	"postcodejp/internal/models"
	"postcodejp/internal/parser"
	"postcodejp/internal/repository"

	"github.com/rs/zerolog/log"
)

// DefaultBatchSize bounds the rows held in memory and written per commit.
const DefaultBatchSize = 5000

// ErrSyncInProgress is returned by BeginRun while the dataset already has a running sync.
var ErrSyncInProgress = repository.ErrRunInProgress

// Store is the persistence surface the engine writes through. Every call is
// expected to commit on its own.
type Store interface {
	InsertAddresses(ctx context.Context, recs []models.AddressRecord) (int64, error)
	InsertOffices(ctx context.Context, recs []models.OfficeRecord) (int64, error)
	DeleteAddressesByKey(ctx context.Context, keys []models.AddressKey) (int64, error)
	ClearAddresses(ctx context.Context) (int64, error)
	ClearOffices(ctx context.Context) (int64, error)
	InsertMissingPrefectures(ctx context.Context, prefs []models.Prefecture) (int64, error)
	InsertMissingCities(ctx context.Context, cities []models.City) (int64, error)

	CreateRun(ctx context.Context, kind models.SyncKind, dataset models.Dataset, fileURL string) (*models.SyncRun, error)
	UpdateRunCounts(ctx context.Context, id int64, added, deleted, updated int) error
	SetRunSource(ctx context.Context, id int64, fileURL string, fileDate *time.Time) error
	CompleteRun(ctx context.Context, id int64, status models.SyncStatusValue, errorMessage string) (*models.SyncRun, error)
}

type Engine struct {
	store      Store
	batchSize  int
	cityPolicy CityPolicy
	addresses  *parser.AddressParser
	offices    *parser.OfficeParser
}

type Option func(*Engine)

// WithBatchSize overrides DefaultBatchSize. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithCityPolicy overrides the FirstSeenWins default.
func WithCityPolicy(p CityPolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.cityPolicy = p
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		batchSize:  DefaultBatchSize,
		cityPolicy: FirstSeenWins,
		addresses:  parser.NewAddressParser(),
		offices:    parser.NewOfficeParser(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InitPrefectures inserts whichever of the 47 prefectures are missing.
func (e *Engine) InitPrefectures(ctx context.Context) (int, error) {
	n, err := e.store.InsertMissingPrefectures(ctx, models.Prefectures)
	if err != nil {
		return 0, fmt.Errorf("importer: init prefectures: %w", err)
	}
	log.Info().Int64("count", n).Msg("prefectures initialised")
	return int(n), nil
}

// ClearAddresses deletes every address row. Only the first step of a full resync uses it.
func (e *Engine) ClearAddresses(ctx context.Context) (int, error) {
	n, err := e.store.ClearAddresses(ctx)
	if err != nil {
		return 0, fmt.Errorf("importer: clear addresses: %w", err)
	}
	metrics.RecordsWrittenTotal.WithLabelValues(string(models.DatasetAddresses), "delete").Add(float64(n))
	log.Info().Str("dataset", string(models.DatasetAddresses)).Int64("count", n).Msg("table cleared")
	return int(n), nil
}

func (e *Engine) ClearOffices(ctx context.Context) (int, error) {
	n, err := e.store.ClearOffices(ctx)
	if err != nil {
		return 0, fmt.Errorf("importer: clear offices: %w", err)
	}
	metrics.RecordsWrittenTotal.WithLabelValues(string(models.DatasetOffices), "delete").Add(float64(n))
	log.Info().Str("dataset", string(models.DatasetOffices)).Int64("count", n).Msg("table cleared")
	return int(n), nil
}

// ImportAddresses streams the address files in dir into the store and then
// inserts any city not yet present. When run is non-nil its added count is
// set to the number of rows written.
func (e *Engine) ImportAddresses(ctx context.Context, dir string, run *models.SyncRun) (int, error) {
	total, err := e.loadAddresses(ctx, dir)
	if err != nil {
		return total, err
	}
	if run != nil {
		if err := e.setCounts(ctx, run, total, run.RecordsDeleted); err != nil {
			return total, err
		}
	}
	return total, nil
}

// ApplyDiffAdd loads a monthly add file on top of the existing rows.
func (e *Engine) ApplyDiffAdd(ctx context.Context, dir string, run *models.SyncRun) (int, error) {
	return e.ImportAddresses(ctx, dir, run)
}

// ApplyDiffDelete removes every stored address whose natural key matches a
// record in dir. Keys that match nothing are not an error, so a diff can be
// applied more than once.
func (e *Engine) ApplyDiffDelete(ctx context.Context, dir string, run *models.SyncRun) (int, error) {
	var (
		total int
		keys  = make([]models.AddressKey, 0, e.batchSize)
	)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		n, err := e.store.DeleteAddressesByKey(ctx, keys)
		if err != nil {
			return fmt.Errorf("importer: delete address batch: %w", err)
		}
		total += int(n)
		metrics.RecordsWrittenTotal.WithLabelValues(string(models.DatasetAddresses), "delete").Add(float64(n))
		keys = keys[:0]
		return nil
	}

	for rec, err := range e.addresses.ParseDirectory(dir) {
		if err != nil {
			return total, fmt.Errorf("importer: read delete diff: %w", err)
		}
		keys = append(keys, rec.Key())
		if len(keys) >= e.batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	log.Info().Str("dir", dir).Int("count", total).Msg("delete diff applied")

	if run != nil {
		if err := e.setCounts(ctx, run, run.RecordsAdded, total); err != nil {
			return total, err
		}
	}
	return total, nil
}

// ImportOffices streams the office files in dir into the store. Files that no
// candidate encoding can decode are skipped.
func (e *Engine) ImportOffices(ctx context.Context, dir string, run *models.SyncRun) (int, error) {
	var (
		total   int
		skipped int
		batch   = make([]models.OfficeRecord, 0, e.batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := e.store.InsertOffices(ctx, batch)
		if err != nil {
			return fmt.Errorf("importer: insert office batch: %w", err)
		}
		total += int(n)
		metrics.RecordsWrittenTotal.WithLabelValues(string(models.DatasetOffices), "insert").Add(float64(n))
		batch = batch[:0]
		return nil
	}

	for rec, err := range e.offices.ParseDirectory(dir) {
		if err != nil {
			var decErr *parser.DecodeError
			if errors.As(err, &decErr) {
				skipped++
				continue
			}
			return total, fmt.Errorf("importer: read offices: %w", err)
		}
		batch = append(batch, rec)
		if len(batch) >= e.batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	log.Info().Str("dir", dir).Int("count", total).Int("skipped_files", skipped).Msg("offices imported")

	if run != nil {
		if err := e.setCounts(ctx, run, total, run.RecordsDeleted); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (e *Engine) loadAddresses(ctx context.Context, dir string) (int, error) {
	var (
		total  int
		cities = newCityCollector(e.cityPolicy)
		batch  = make([]models.AddressRecord, 0, e.batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := e.store.InsertAddresses(ctx, batch)
		if err != nil {
			return fmt.Errorf("importer: insert address batch: %w", err)
		}
		total += int(n)
		metrics.RecordsWrittenTotal.WithLabelValues(string(models.DatasetAddresses), "insert").Add(float64(n))
		log.Debug().Int("total", total).Msg("address batch committed")
		batch = batch[:0]
		return nil
	}

	for rec, err := range e.addresses.ParseDirectory(dir) {
		if err != nil {
			return total, fmt.Errorf("importer: read addresses: %w", err)
		}
		cities.observe(rec)
		batch = append(batch, rec)
		if len(batch) >= e.batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	derived := cities.cities()
	inserted, err := e.store.InsertMissingCities(ctx, derived)
	if err != nil {
		return total, fmt.Errorf("importer: insert cities: %w", err)
	}
	log.Info().Str("dir", dir).Int("count", total).Int("cities", len(derived)).Int64("cities_inserted", inserted).Msg("addresses imported")
	return total, nil
}

func (e *Engine) setCounts(ctx context.Context, run *models.SyncRun, added, deleted int) error {
	if err := e.store.UpdateRunCounts(ctx, run.ID, added, deleted, run.RecordsUpdated); err != nil {
		return fmt.Errorf("importer: update run %d counts: %w", run.ID, err)
	}
	run.RecordsAdded = added
	run.RecordsDeleted = deleted
	return nil
}
