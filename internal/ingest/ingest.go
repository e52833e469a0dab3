// Package ingest reads tabular files into ordered cell sets, one per
// non-blank row. It knows nothing about enrichment or review.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoRows            = errors.New("file contains no rows")
)

// ReadFile opens path and reads it according to its extension.
func ReadFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	return Read(filepath.Base(path), f)
}

// Read dispatches on the extension of name.
func Read(name string, r io.Reader) ([][]string, error) {
	var (
		out [][]string
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		out, err = ReadCSV(r)
	case ".xlsx":
		out, err = ReadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

// ReadCSV parses comma-separated records. Rows may have differing field counts.
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return dropBlank(records), nil
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return dropBlank(records), nil
}

func dropBlank(records [][]string) [][]string {
	out := make([][]string, 0, len(records))
	for _, rec := range records {
		if isBlank(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func isBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
