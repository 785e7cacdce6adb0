package service

import (
	"context"
	"time"

	"postcodejp/internal/fetcher"
	"postcodejp/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockArchiveFetcher struct {
	mock.Mock
}

func (m *MockArchiveFetcher) CheckFreshness(ctx context.Context, url string) fetcher.Freshness {
	args := m.Called(ctx, url)
	return args.Get(0).(fetcher.Freshness)
}

func (m *MockArchiveFetcher) FetchAndExtract(ctx context.Context, url string) (*fetcher.Archive, error) {
	args := m.Called(ctx, url)
	archive, _ := args.Get(0).(*fetcher.Archive)
	return archive, args.Error(1)
}

func (m *MockArchiveFetcher) DiffURLs(yymm string) (string, string, error) {
	args := m.Called(yymm)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockArchiveFetcher) FetchDiff(ctx context.Context, yymm string) (*fetcher.DiffArchives, error) {
	args := m.Called(ctx, yymm)
	diff, _ := args.Get(0).(*fetcher.DiffArchives)
	return diff, args.Error(1)
}

type MockSyncEngine struct {
	mock.Mock
}

func (m *MockSyncEngine) InitPrefectures(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncEngine) ClearAddresses(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncEngine) ClearOffices(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncEngine) ImportAddresses(ctx context.Context, dir string, run *models.SyncRun) (int, error) {
	args := m.Called(ctx, dir, run)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncEngine) ImportOffices(ctx context.Context, dir string, run *models.SyncRun) (int, error) {
	args := m.Called(ctx, dir, run)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncEngine) ApplyDiffAdd(ctx context.Context, dir string, run *models.SyncRun) (int, error) {
	args := m.Called(ctx, dir, run)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncEngine) ApplyDiffDelete(ctx context.Context, dir string, run *models.SyncRun) (int, error) {
	args := m.Called(ctx, dir, run)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncEngine) BeginRun(ctx context.Context, kind models.SyncKind, dataset models.Dataset, sourceURL string) (*models.SyncRun, error) {
	args := m.Called(ctx, kind, dataset, sourceURL)
	run, _ := args.Get(0).(*models.SyncRun)
	return run, args.Error(1)
}

func (m *MockSyncEngine) RecordSource(ctx context.Context, run *models.SyncRun, url string, fileDate *time.Time) error {
	args := m.Called(ctx, run, url, fileDate)
	return args.Error(0)
}

func (m *MockSyncEngine) CompleteRun(ctx context.Context, run *models.SyncRun, status models.SyncStatusValue, errorMessage string) error {
	args := m.Called(ctx, run, status, errorMessage)
	return args.Error(0)
}

type MockSyncLedger struct {
	mock.Mock
}

func (m *MockSyncLedger) LatestCompletedRun(ctx context.Context, kind models.SyncKind, dataset models.Dataset) (*models.SyncRun, error) {
	args := m.Called(ctx, kind, dataset)
	run, _ := args.Get(0).(*models.SyncRun)
	return run, args.Error(1)
}

func (m *MockSyncLedger) HasRunningRun(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockSyncLedger) ListRuns(ctx context.Context, limit, offset int) ([]models.SyncRun, error) {
	args := m.Called(ctx, limit, offset)
	runs, _ := args.Get(0).([]models.SyncRun)
	return runs, args.Error(1)
}

func (m *MockSyncLedger) CountAddresses(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSyncLedger) CountOffices(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) Invalidate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockLookupRepository struct {
	mock.Mock
}

func (m *MockLookupRepository) FindAddressesByPostalCode(ctx context.Context, code string) ([]models.AddressRecord, error) {
	args := m.Called(ctx, code)
	recs, _ := args.Get(0).([]models.AddressRecord)
	return recs, args.Error(1)
}

func (m *MockLookupRepository) SearchAddresses(ctx context.Context, keyword string, limit, offset int) (*models.PostalCodePage, error) {
	args := m.Called(ctx, keyword, limit, offset)
	page, _ := args.Get(0).(*models.PostalCodePage)
	return page, args.Error(1)
}

func (m *MockLookupRepository) FindOfficesByPostalCode(ctx context.Context, code string) ([]models.OfficeRecord, error) {
	args := m.Called(ctx, code)
	recs, _ := args.Get(0).([]models.OfficeRecord)
	return recs, args.Error(1)
}

func (m *MockLookupRepository) ListPrefectures(ctx context.Context) ([]models.Prefecture, error) {
	args := m.Called(ctx)
	prefs, _ := args.Get(0).([]models.Prefecture)
	return prefs, args.Error(1)
}

func (m *MockLookupRepository) ListCities(ctx context.Context, prefectureCode string) ([]models.City, error) {
	args := m.Called(ctx, prefectureCode)
	cities, _ := args.Get(0).([]models.City)
	return cities, args.Error(1)
}
