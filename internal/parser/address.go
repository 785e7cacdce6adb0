package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"postcodejp/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// AddressFieldCount is the number of positional columns in a KEN_ALL row.
const AddressFieldCount = 15

// AddressParser reads UTF-8 address files (utf_ken_all, utf_add_YYMM, utf_del_YYMM).
type AddressParser struct{}

func NewAddressParser() *AddressParser {
	return &AddressParser{}
}

// ParseDirectory streams every address record found in the CSV files of dir.
func (p *AddressParser) ParseDirectory(dir string) iter.Seq2[models.AddressRecord, error] {
	return singlePass(func(yield func(models.AddressRecord, error) bool) {
		files, err := listCSV(dir)
		if err != nil {
			yield(models.AddressRecord{}, fmt.Errorf("parser: list %s: %w", dir, err))
			return
		}
		for _, f := range files {
			if !p.parseFile(f, yield) {
				return
			}
		}
	})
}

// ParseFile streams the address records of a single file.
func (p *AddressParser) ParseFile(path string) iter.Seq2[models.AddressRecord, error] {
	return singlePass(func(yield func(models.AddressRecord, error) bool) {
		p.parseFile(path, yield)
	})
}

// parseFile returns false when the consumer stopped the iteration.
func (p *AddressParser) parseFile(path string, yield func(models.AddressRecord, error) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		return yield(models.AddressRecord{}, fmt.Errorf("parser: open %s: %w", path, err))
	}
	defer f.Close()

	log.Info().Str("file", path).Msg("parsing address file")

	dec := transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := newCSVReader(dec)
	count := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				log.Warn().Err(err).Str("file", path).Int("line", pe.Line).Msg("skipping malformed address row")
				continue
			}
			return yield(models.AddressRecord{}, fmt.Errorf("parser: read %s: %w", path, err))
		}
		if len(row) < AddressFieldCount {
			line, _ := cr.FieldPos(0)
			log.Warn().Str("file", path).Int("line", line).Int("fields", len(row)).Msg("skipping address row with insufficient fields")
			continue
		}
		count++
		if !yield(addressFromRow(row), nil) {
			return false
		}
	}
	log.Info().Str("file", path).Int("count", count).Msg("parsed address file")
	return true
}

func addressFromRow(row []string) models.AddressRecord {
	return models.AddressRecord{
		LocalGovCode:    cell(row, 0),
		OldPostalCode:   cell(row, 1),
		PostalCode:      cell(row, 2),
		PrefectureKana:  cell(row, 3),
		CityKana:        cell(row, 4),
		TownKana:        cell(row, 5),
		Prefecture:      cell(row, 6),
		City:            cell(row, 7),
		Town:            cell(row, 8),
		MultiPostalFlag: flag(row[9]),
		KoazaBanchiFlag: flag(row[10]),
		ChomeFlag:       flag(row[11]),
		MultiTownFlag:   flag(row[12]),
		UpdateFlag:      flag(row[13]),
		ChangeReason:    flag(row[14]),
	}
}
