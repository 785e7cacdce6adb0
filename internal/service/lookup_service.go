package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"postcodejp/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/width"
)

var (
	ErrNotFound        = errors.New("service: not found")
	ErrInvalidArgument = errors.New("service: invalid argument")
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// LookupRepository is the read-only query surface over the synced tables.
type LookupRepository interface {
	FindAddressesByPostalCode(ctx context.Context, code string) ([]models.AddressRecord, error)
	SearchAddresses(ctx context.Context, keyword string, limit, offset int) (*models.PostalCodePage, error)
	FindOfficesByPostalCode(ctx context.Context, code string) ([]models.OfficeRecord, error)
	ListPrefectures(ctx context.Context) ([]models.Prefecture, error)
	ListCities(ctx context.Context, prefectureCode string) ([]models.City, error)
}

// LookupCache stores JSON-serialisable lookup results. Get reports a miss
// with found=false.
type LookupCache interface {
	Get(ctx context.Context, key string, dst any) (found bool, err error)
	Set(ctx context.Context, key string, value any) error
}

// LookupService answers postal-code queries, optionally through a cache.
type LookupService struct {
	repo  LookupRepository
	cache LookupCache
}

// NewLookupService creates a new lookup service. cache may be nil.
func NewLookupService(repo LookupRepository, cache LookupCache) *LookupService {
	return &LookupService{repo: repo, cache: cache}
}

// NormalizePostalCode folds full-width digits and strips hyphens, then
// requires exactly seven digits.
func NormalizePostalCode(raw string) (string, error) {
	s := width.Narrow.String(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "", "ｰ", "", "ー", "", "−", "", "‐", "").Replace(s)
	if len(s) != 7 {
		return "", fmt.Errorf("%w: postal code must be 7 digits", ErrInvalidArgument)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("%w: postal code must be 7 digits", ErrInvalidArgument)
		}
	}
	return s, nil
}

// LookupPostalCode returns every address row for code.
func (s *LookupService) LookupPostalCode(ctx context.Context, code string) ([]models.AddressRecord, error) {
	normalized, err := NormalizePostalCode(code)
	if err != nil {
		return nil, err
	}
	recs, err := cached(ctx, s.cache, "postal:"+normalized, func() ([]models.AddressRecord, error) {
		return s.repo.FindAddressesByPostalCode(ctx, normalized)
	})
	if err != nil {
		return nil, fmt.Errorf("service: failed to find postal code: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs, nil
}

// Search matches keyword against postal codes and address text.
func (s *LookupService) Search(ctx context.Context, keyword string, limit, offset int) (*models.PostalCodePage, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: keyword cannot be empty", ErrInvalidArgument)
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxSearchLimit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalidArgument)
	}

	key := fmt.Sprintf("search:%s:%d:%d", keyword, limit, offset)
	page, err := cached(ctx, s.cache, key, func() (*models.PostalCodePage, error) {
		return s.repo.SearchAddresses(ctx, keyword, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("service: failed to search postal codes: %w", err)
	}
	return page, nil
}

func (s *LookupService) LookupOffices(ctx context.Context, code string) ([]models.OfficeRecord, error) {
	normalized, err := NormalizePostalCode(code)
	if err != nil {
		return nil, err
	}
	offices, err := cached(ctx, s.cache, "office:"+normalized, func() ([]models.OfficeRecord, error) {
		return s.repo.FindOfficesByPostalCode(ctx, normalized)
	})
	if err != nil {
		return nil, fmt.Errorf("service: failed to find offices: %w", err)
	}
	if len(offices) == 0 {
		return nil, ErrNotFound
	}
	return offices, nil
}

func (s *LookupService) Prefectures(ctx context.Context) ([]models.Prefecture, error) {
	prefs, err := cached(ctx, s.cache, "prefectures", func() ([]models.Prefecture, error) {
		return s.repo.ListPrefectures(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("service: failed to list prefectures: %w", err)
	}
	return prefs, nil
}

// Cities lists the cities of one prefecture ("01".."47").
func (s *LookupService) Cities(ctx context.Context, prefectureCode string) ([]models.City, error) {
	if !models.IsPrefectureCode(prefectureCode) {
		return nil, fmt.Errorf("%w: unknown prefecture code %q", ErrInvalidArgument, prefectureCode)
	}
	cities, err := cached(ctx, s.cache, "cities:"+prefectureCode, func() ([]models.City, error) {
		return s.repo.ListCities(ctx, prefectureCode)
	})
	if err != nil {
		return nil, fmt.Errorf("service: failed to list cities: %w", err)
	}
	return cities, nil
}

// cached reads key from c, falling back to load and storing its result.
// Cache failures are logged and never fail the lookup.
func cached[T any](ctx context.Context, c LookupCache, key string, load func() (T, error)) (T, error) {
	if c == nil {
		return load()
	}
	var v T
	found, err := c.Get(ctx, key, &v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if found {
		return v, nil
	}

	v, err = load()
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return v, nil
}
