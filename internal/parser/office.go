package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"postcodejp/internal/models"

	"github.com/rs/zerolog/log"
)

// OfficeFieldCount is the number of positional columns in a JIGYOSYO row.
const OfficeFieldCount = 13

// OfficeParser reads legacy-encoded business office files.
type OfficeParser struct {
	codecs []Codec
}

func NewOfficeParser() *OfficeParser {
	return &OfficeParser{codecs: OfficeCodecs}
}

// ParseDirectory streams office records from every CSV file in dir. A file
// that no codec can decode is skipped as a whole and reported once as a
// *DecodeError; the remaining files are still read.
func (p *OfficeParser) ParseDirectory(dir string) iter.Seq2[models.OfficeRecord, error] {
	return singlePass(func(yield func(models.OfficeRecord, error) bool) {
		files, err := listCSV(dir)
		if err != nil {
			yield(models.OfficeRecord{}, fmt.Errorf("parser: list %s: %w", dir, err))
			return
		}
		for _, f := range files {
			if !p.parseFile(f, yield) {
				return
			}
		}
	})
}

func (p *OfficeParser) parseFile(path string, yield func(models.OfficeRecord, error) bool) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return yield(models.OfficeRecord{}, fmt.Errorf("parser: read %s: %w", path, err))
	}

	text, enc, err := decodeWith(path, raw, p.codecs)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("skipping undecodable office file")
		return yield(models.OfficeRecord{}, err)
	}

	cr := newCSVReader(strings.NewReader(text))
	count := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				log.Warn().Err(err).Str("file", path).Int("line", pe.Line).Msg("skipping malformed office row")
				continue
			}
			return yield(models.OfficeRecord{}, fmt.Errorf("parser: read %s: %w", path, err))
		}
		if len(row) < OfficeFieldCount {
			line, _ := cr.FieldPos(0)
			log.Warn().Str("file", path).Int("line", line).Int("fields", len(row)).Msg("skipping office row with insufficient fields")
			continue
		}
		count++
		if !yield(officeFromRow(row), nil) {
			return false
		}
	}
	log.Info().Str("file", path).Str("encoding", enc).Int("count", count).Msg("parsed office file")
	return true
}

func officeFromRow(row []string) models.OfficeRecord {
	return models.OfficeRecord{
		LocalGovCode:  cell(row, 0),
		OfficeKana:    cell(row, 1),
		OfficeName:    cell(row, 2),
		Prefecture:    cell(row, 3),
		City:          cell(row, 4),
		Town:          cell(row, 5),
		AddressDetail: cell(row, 6),
		PostalCode:    cell(row, 7),
		OldPostalCode: cell(row, 8),
		PostOffice:    cell(row, 9),
		OfficeType:    flag(row[10]),
		MultiNumber:   flag(row[11]),
		ChangeReason:  flag(row[12]),
	}
}
