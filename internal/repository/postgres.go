package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"postcodejp/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrRunInProgress is returned by CreateRun when the dataset already has a running sync.
	ErrRunInProgress = errors.New("repository: sync already in progress for dataset")
	// ErrRunNotRunning is returned when a terminal run is asked to change.
	ErrRunNotRunning = errors.New("repository: sync run is not running")
	// ErrFlagOutOfRange is returned when a flag does not fit its SMALLINT column.
	ErrFlagOutOfRange = errors.New("repository: flag value out of range")
)

const uniqueViolation = "23505"

// Repository implements the store for the postal-code tables and the sync ledger.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Ping checks connectivity for the health endpoint.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

var addressColumns = []string{
	"local_gov_code", "old_postal_code", "postal_code",
	"prefecture_kana", "city_kana", "town_kana",
	"prefecture", "city", "town",
	"multi_postal_flag", "koaza_banchi_flag", "chome_flag", "multi_town_flag",
	"update_flag", "change_reason",
}

var officeColumns = []string{
	"local_gov_code", "office_kana", "office_name",
	"prefecture", "city", "town", "address_detail",
	"postal_code", "old_postal_code", "post_office",
	"office_type", "multi_number", "change_reason",
}

// InsertAddresses bulk-loads one batch with COPY. Each call is its own commit.
func (r *Repository) InsertAddresses(ctx context.Context, recs []models.AddressRecord) (int64, error) {
	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"postal_codes"}, addressColumns,
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			a := recs[i]
			flags, err := smallints(a.MultiPostalFlag, a.KoazaBanchiFlag, a.ChomeFlag, a.MultiTownFlag,
				a.UpdateFlag, a.ChangeReason)
			if err != nil {
				return nil, fmt.Errorf("postal code %s: %w", a.PostalCode, err)
			}
			return append([]any{
				a.LocalGovCode, a.OldPostalCode, a.PostalCode,
				a.PrefectureKana, a.CityKana, a.TownKana,
				a.Prefecture, a.City, a.Town,
			}, flags...), nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("repository: failed to copy postal codes: %w", err)
	}
	return n, nil
}

// InsertOffices bulk-loads one batch of office rows with COPY.
func (r *Repository) InsertOffices(ctx context.Context, recs []models.OfficeRecord) (int64, error) {
	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"office_postal_codes"}, officeColumns,
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			o := recs[i]
			flags, err := smallints(o.OfficeType, o.MultiNumber, o.ChangeReason)
			if err != nil {
				return nil, fmt.Errorf("office postal code %s: %w", o.PostalCode, err)
			}
			return append([]any{
				o.LocalGovCode, o.OfficeKana, o.OfficeName,
				o.Prefecture, o.City, o.Town, o.AddressDetail,
				o.PostalCode, o.OldPostalCode, o.PostOffice,
			}, flags...), nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("repository: failed to copy office postal codes: %w", err)
	}
	return n, nil
}

// DeleteAddressesByKey removes every row whose natural key matches one of keys
// and returns the number of rows actually removed.
func (r *Repository) DeleteAddressesByKey(ctx context.Context, keys []models.AddressKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	postal := make([]string, len(keys))
	local := make([]string, len(keys))
	town := make([]string, len(keys))
	for i, k := range keys {
		postal[i], local[i], town[i] = k.PostalCode, k.LocalGovCode, k.Town
	}
	sql := `
		DELETE FROM postal_codes p
		USING unnest($1::text[], $2::text[], $3::text[]) AS k(postal_code, local_gov_code, town)
		WHERE p.postal_code = k.postal_code
		  AND p.local_gov_code = k.local_gov_code
		  AND p.town = k.town
	`
	tag, err := r.db.Exec(ctx, sql, postal, local, town)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete postal codes by key: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ClearAddresses(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM postal_codes`)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to clear postal codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ClearOffices(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM office_postal_codes`)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to clear office postal codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertMissingPrefectures inserts the rows whose code is absent and never
// touches existing ones.
func (r *Repository) InsertMissingPrefectures(ctx context.Context, prefs []models.Prefecture) (int64, error) {
	batch := &pgx.Batch{}
	for _, p := range prefs {
		batch.Queue(`INSERT INTO prefectures (code, name, name_kana) VALUES ($1, $2, $3) ON CONFLICT (code) DO NOTHING`,
			p.Code, p.Name, p.NameKana)
	}
	return r.sendInsertBatch(ctx, batch, "prefectures")
}

// InsertMissingCities inserts derived city rows, leaving existing ones untouched.
func (r *Repository) InsertMissingCities(ctx context.Context, cities []models.City) (int64, error) {
	batch := &pgx.Batch{}
	for _, c := range cities {
		batch.Queue(`INSERT INTO cities (code, prefecture_code, name, name_kana) VALUES ($1, $2, $3, $4) ON CONFLICT (code) DO NOTHING`,
			c.Code, c.PrefectureCode, c.Name, c.NameKana)
	}
	return r.sendInsertBatch(ctx, batch, "cities")
}

func (r *Repository) sendInsertBatch(ctx context.Context, batch *pgx.Batch, table string) (int64, error) {
	if batch.Len() == 0 {
		return 0, nil
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("repository: failed to insert %s: %w", table, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return inserted, fmt.Errorf("repository: failed to close %s batch: %w", table, err)
	}
	return inserted, nil
}

func (r *Repository) CountAddresses(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM postal_codes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: failed to count postal codes: %w", err)
	}
	return n, nil
}

func (r *Repository) CountOffices(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM office_postal_codes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: failed to count office postal codes: %w", err)
	}
	return n, nil
}

// smallints converts flag values for SMALLINT columns, rejecting values that
// would wrap.
func smallints(vals ...int) ([]any, error) {
	out := make([]any, len(vals))
	for i, v := range vals {
		if v < 0 || v > math.MaxInt16 {
			return nil, fmt.Errorf("%w: %d", ErrFlagOutOfRange, v)
		}
		out[i] = int16(v)
	}
	return out, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}
