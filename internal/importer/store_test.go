package importer

import (
	"context"
	"errors"
	"sync"
	"time"

	"postcodejp/internal/models"
	"postcodejp/internal/repository"
)

// memStore is an in-memory Store that keeps the commit boundaries visible.
type memStore struct {
	mu             sync.Mutex
	addresses      []models.AddressRecord
	offices        []models.OfficeRecord
	prefectures    map[string]models.Prefecture
	cities         map[string]models.City
	runs           map[int64]*models.SyncRun
	nextID         int64
	addressBatches []int
	deleteBatches  []int
	officeBatches  []int
	failInsertCall int
	insertCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		prefectures: make(map[string]models.Prefecture),
		cities:      make(map[string]models.City),
		runs:        make(map[int64]*models.SyncRun),
	}
}

var errInjected = errors.New("injected failure")

func (s *memStore) InsertAddresses(_ context.Context, recs []models.AddressRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if s.failInsertCall > 0 && s.insertCalls == s.failInsertCall {
		return 0, errInjected
	}
	s.addressBatches = append(s.addressBatches, len(recs))
	s.addresses = append(s.addresses, recs...)
	return int64(len(recs)), nil
}

func (s *memStore) InsertOffices(_ context.Context, recs []models.OfficeRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.officeBatches = append(s.officeBatches, len(recs))
	s.offices = append(s.offices, recs...)
	return int64(len(recs)), nil
}

func (s *memStore) DeleteAddressesByKey(_ context.Context, keys []models.AddressKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteBatches = append(s.deleteBatches, len(keys))
	match := make(map[models.AddressKey]bool, len(keys))
	for _, k := range keys {
		match[k] = true
	}
	kept := s.addresses[:0]
	var removed int64
	for _, a := range s.addresses {
		if match[a.Key()] {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.addresses = kept
	return removed, nil
}

func (s *memStore) ClearAddresses(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.addresses))
	s.addresses = nil
	return n, nil
}

func (s *memStore) ClearOffices(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.offices))
	s.offices = nil
	return n, nil
}

func (s *memStore) InsertMissingPrefectures(_ context.Context, prefs []models.Prefecture) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range prefs {
		if _, ok := s.prefectures[p.Code]; ok {
			continue
		}
		s.prefectures[p.Code] = p
		n++
	}
	return n, nil
}

func (s *memStore) InsertMissingCities(_ context.Context, cities []models.City) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range cities {
		if _, ok := s.cities[c.Code]; ok {
			continue
		}
		s.cities[c.Code] = c
		n++
	}
	return n, nil
}

func (s *memStore) CreateRun(_ context.Context, kind models.SyncKind, dataset models.Dataset, fileURL string) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.Dataset == dataset && r.Status == models.SyncStatusRunning {
			return nil, repository.ErrRunInProgress
		}
	}
	s.nextID++
	run := &models.SyncRun{
		ID:        s.nextID,
		Kind:      kind,
		Dataset:   dataset,
		FileURL:   fileURL,
		Status:    models.SyncStatusRunning,
		StartedAt: time.Now(),
	}
	s.runs[run.ID] = run
	out := *run
	return &out, nil
}

func (s *memStore) running(id int64) (*models.SyncRun, error) {
	r, ok := s.runs[id]
	if !ok || r.Status != models.SyncStatusRunning {
		return nil, repository.ErrRunNotRunning
	}
	return r, nil
}

func (s *memStore) UpdateRunCounts(_ context.Context, id int64, added, deleted, updated int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.running(id)
	if err != nil {
		return err
	}
	r.RecordsAdded, r.RecordsDeleted, r.RecordsUpdated = added, deleted, updated
	return nil
}

func (s *memStore) SetRunSource(_ context.Context, id int64, fileURL string, fileDate *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.running(id)
	if err != nil {
		return err
	}
	if fileURL != "" {
		r.FileURL = fileURL
	}
	if fileDate != nil {
		r.FileDate = fileDate
	}
	return nil
}

func (s *memStore) CompleteRun(_ context.Context, id int64, status models.SyncStatusValue, errorMessage string) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.running(id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	r.Status = status
	r.CompletedAt = &now
	if status == models.SyncStatusFailed && errorMessage != "" {
		msg := errorMessage
		r.ErrorMessage = &msg
	}
	out := *r
	return &out, nil
}

func (s *memStore) run(id int64) models.SyncRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.runs[id]
}
