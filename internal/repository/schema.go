package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Only one run per dataset may be running; the partial unique index is what
// CreateRun relies on to refuse a concurrent sync.
const runningRunIndex = "sync_runs_one_running_per_dataset"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS prefectures (
		code VARCHAR(2) PRIMARY KEY,
		name VARCHAR(10) NOT NULL,
		name_kana VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cities (
		code VARCHAR(5) PRIMARY KEY,
		prefecture_code VARCHAR(2) NOT NULL REFERENCES prefectures(code),
		name VARCHAR(50) NOT NULL,
		name_kana VARCHAR(100) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS cities_prefecture_code_idx ON cities (prefecture_code)`,
	`CREATE TABLE IF NOT EXISTS postal_codes (
		id BIGSERIAL PRIMARY KEY,
		local_gov_code VARCHAR(5) NOT NULL,
		old_postal_code VARCHAR(5),
		postal_code VARCHAR(7) NOT NULL,
		prefecture_kana VARCHAR(50) NOT NULL,
		city_kana VARCHAR(100) NOT NULL,
		town_kana TEXT NOT NULL,
		prefecture VARCHAR(10) NOT NULL,
		city VARCHAR(50) NOT NULL,
		town TEXT NOT NULL,
		multi_postal_flag SMALLINT NOT NULL DEFAULT 0,
		koaza_banchi_flag SMALLINT NOT NULL DEFAULT 0,
		chome_flag SMALLINT NOT NULL DEFAULT 0,
		multi_town_flag SMALLINT NOT NULL DEFAULT 0,
		update_flag SMALLINT NOT NULL DEFAULT 0,
		change_reason SMALLINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS postal_codes_natural_key_idx ON postal_codes (postal_code, local_gov_code)`,
	`CREATE INDEX IF NOT EXISTS postal_codes_local_gov_code_idx ON postal_codes (local_gov_code)`,
	`CREATE INDEX IF NOT EXISTS postal_codes_prefecture_city_idx ON postal_codes (prefecture, city)`,
	`CREATE TABLE IF NOT EXISTS office_postal_codes (
		id BIGSERIAL PRIMARY KEY,
		local_gov_code VARCHAR(5) NOT NULL,
		office_kana TEXT NOT NULL,
		office_name TEXT NOT NULL,
		prefecture VARCHAR(10) NOT NULL,
		city VARCHAR(50) NOT NULL,
		town TEXT,
		address_detail TEXT,
		postal_code VARCHAR(7) NOT NULL,
		old_postal_code VARCHAR(5),
		post_office TEXT,
		office_type SMALLINT NOT NULL DEFAULT 0,
		multi_number SMALLINT NOT NULL DEFAULT 0,
		change_reason SMALLINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS office_postal_codes_postal_code_idx ON office_postal_codes (postal_code)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id BIGSERIAL PRIMARY KEY,
		sync_type VARCHAR(20) NOT NULL,
		data_type VARCHAR(20) NOT NULL,
		file_url TEXT,
		file_date TIMESTAMPTZ,
		records_added INTEGER NOT NULL DEFAULT 0,
		records_deleted INTEGER NOT NULL DEFAULT 0,
		records_updated INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		error_message TEXT,
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + runningRunIndex + ` ON sync_runs (data_type) WHERE status = 'running'`,
	`CREATE INDEX IF NOT EXISTS sync_runs_data_type_status_idx ON sync_runs (data_type, status, completed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS sync_runs_started_at_idx ON sync_runs (started_at DESC)`,
}

// EnsureSchema creates the tables and indexes the pipeline needs. Every
// statement is IF NOT EXISTS so it is safe on every start.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("repository: failed to apply schema statement %d: %w", i, err)
		}
	}
	log.Debug().Int("statements", len(schemaStatements)).Msg("schema ensured")
	return nil
}
