// Package parser streams Japan Post postal-code CSV files into typed records.
//
// Sequences returned by this package are lazy and single-pass: files are
// opened only while the caller ranges over them, and ranging a second time
// yields ErrStreamConsumed instead of re-reading the files. Address files are
// streamed row by row. Office files are buffered and decoded one whole file
// at a time, so an undecodable file yields no rows at all. Files inside a
// directory are visited in directory listing order, which callers must not
// rely on.
package parser

import (
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
)

// ErrStreamConsumed is yielded when a record sequence is ranged more than once.
var ErrStreamConsumed = errors.New("parser: record stream already consumed")

const csvExt = ".csv"

// listCSV returns the files in dir whose extension is .csv in any letter case.
func listCSV(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), csvExt) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// singlePass guards seq so that only the first range over it reads data.
func singlePass[T any](seq iter.Seq2[T, error]) iter.Seq2[T, error] {
	var used atomic.Bool
	return func(yield func(T, error) bool) {
		if used.Swap(true) {
			var zero T
			yield(zero, ErrStreamConsumed)
			return
		}
		seq(yield)
	}
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}

// MaxFlag is the largest value a flag or change-reason column can carry.
const MaxFlag = 9

// flag coerces a numeric flag cell, treating empty, malformed or out of
// range input as 0.
func flag(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > MaxFlag {
		return 0
	}
	return n
}

func cell(row []string, i int) string {
	return strings.TrimSpace(row[i])
}
