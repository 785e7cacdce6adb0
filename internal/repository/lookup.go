package repository

import (
	"context"
	"fmt"
	"strings"

	"postcodejp/internal/models"

	"github.com/jackc/pgx/v5"
)

const addressSelect = `
	SELECT id, local_gov_code, COALESCE(old_postal_code, ''), postal_code,
		prefecture_kana, city_kana, town_kana, prefecture, city, town,
		multi_postal_flag, koaza_banchi_flag, chome_flag, multi_town_flag,
		update_flag, change_reason
	FROM postal_codes`

func scanAddress(rows pgx.Rows) (models.AddressRecord, error) {
	var (
		a                                           models.AddressRecord
		multi, koaza, chome, multiTown, upd, reason int16
	)
	err := rows.Scan(
		&a.ID,
		&a.LocalGovCode,
		&a.OldPostalCode,
		&a.PostalCode,
		&a.PrefectureKana,
		&a.CityKana,
		&a.TownKana,
		&a.Prefecture,
		&a.City,
		&a.Town,
		&multi,
		&koaza,
		&chome,
		&multiTown,
		&upd,
		&reason,
	)
	a.MultiPostalFlag = int(multi)
	a.KoazaBanchiFlag = int(koaza)
	a.ChomeFlag = int(chome)
	a.MultiTownFlag = int(multiTown)
	a.UpdateFlag = int(upd)
	a.ChangeReason = int(reason)
	return a, err
}

func collectAddresses(rows pgx.Rows) ([]models.AddressRecord, error) {
	defer rows.Close()
	out := []models.AddressRecord{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan postal code: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating rows: %w", err)
	}
	return out, nil
}

// FindAddressesByPostalCode returns every town row sharing the 7-digit code.
func (r *Repository) FindAddressesByPostalCode(ctx context.Context, code string) ([]models.AddressRecord, error) {
	rows, err := r.db.Query(ctx, addressSelect+` WHERE postal_code = $1 ORDER BY id`, code)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query postal code: %w", err)
	}
	return collectAddresses(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchAddresses matches the keyword against the postal code prefix and the
// kanji or kana address text.
func (r *Repository) SearchAddresses(ctx context.Context, keyword string, limit, offset int) (*models.PostalCodePage, error) {
	pattern := "%" + likeEscaper.Replace(keyword) + "%"
	prefix := likeEscaper.Replace(keyword) + "%"
	where := `
		WHERE postal_code LIKE $2
		   OR prefecture || city || town LIKE $1
		   OR prefecture_kana || city_kana || town_kana LIKE $1`

	page := &models.PostalCodePage{Limit: limit, Offset: offset}
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM postal_codes`+where, pattern, prefix).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("repository: failed to count search results: %w", err)
	}

	rows, err := r.db.Query(ctx, addressSelect+where+` ORDER BY postal_code, id LIMIT $3 OFFSET $4`, pattern, prefix, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to execute search query: %w", err)
	}
	page.Results, err = collectAddresses(rows)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// FindOfficesByPostalCode returns the business offices assigned the code.
func (r *Repository) FindOfficesByPostalCode(ctx context.Context, code string) ([]models.OfficeRecord, error) {
	sql := `
		SELECT id, local_gov_code, office_kana, office_name, prefecture, city,
			COALESCE(town, ''), COALESCE(address_detail, ''), postal_code,
			COALESCE(old_postal_code, ''), COALESCE(post_office, ''),
			office_type, multi_number, change_reason
		FROM office_postal_codes
		WHERE postal_code = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, sql, code)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query office postal code: %w", err)
	}
	defer rows.Close()

	offices := []models.OfficeRecord{}
	for rows.Next() {
		var (
			o                         models.OfficeRecord
			officeType, multi, reason int16
		)
		err := rows.Scan(
			&o.ID,
			&o.LocalGovCode,
			&o.OfficeKana,
			&o.OfficeName,
			&o.Prefecture,
			&o.City,
			&o.Town,
			&o.AddressDetail,
			&o.PostalCode,
			&o.OldPostalCode,
			&o.PostOffice,
			&officeType,
			&multi,
			&reason,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan office postal code: %w", err)
		}
		o.OfficeType, o.MultiNumber, o.ChangeReason = int(officeType), int(multi), int(reason)
		offices = append(offices, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating rows: %w", err)
	}
	return offices, nil
}

func (r *Repository) ListPrefectures(ctx context.Context) ([]models.Prefecture, error) {
	rows, err := r.db.Query(ctx, `SELECT code, name, name_kana FROM prefectures ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query prefectures: %w", err)
	}
	prefs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.Prefecture])
	if err != nil {
		return nil, fmt.Errorf("repository: failed to scan prefectures: %w", err)
	}
	return prefs, nil
}

// ListCities returns the derived cities of one prefecture ordered by code.
func (r *Repository) ListCities(ctx context.Context, prefectureCode string) ([]models.City, error) {
	rows, err := r.db.Query(ctx,
		`SELECT code, prefecture_code, name, name_kana FROM cities WHERE prefecture_code = $1 ORDER BY code`,
		prefectureCode)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cities: %w", err)
	}
	cities, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.City])
	if err != nil {
		return nil, fmt.Errorf("repository: failed to scan cities: %w", err)
	}
	return cities, nil
}
