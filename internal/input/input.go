// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package input reads harvest tasks from a CSV file with a header row.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// Columns names the header cells holding the institution and start URL.
// Matching is case-insensitive and ignores surrounding whitespace.
type Columns struct {
	Institution string `json:"institution" yaml:"institution" mapstructure:"institution"`
	URL         string `json:"url" yaml:"url" mapstructure:"url"`
}

// DefaultColumns returns the Institution/URL header names.
func DefaultColumns() Columns {
	return Columns{Institution: "Institution", URL: "URL"}
}

// Load opens path and reads tasks from it. See Read.
func Load(path string, cols Columns) (tasks []types.HarvestTask, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()
	return Read(f, cols)
}

// Read parses CSV from r. Rows whose URL cell is blank or missing are
// skipped and counted. Row order is preserved.
func Read(r io.Reader, cols Columns) (tasks []types.HarvestTask, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("input is empty: %w", ErrMissingColumn)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("reading header: %w", err)
	}

	instIdx := columnIndex(header, cols.Institution)
	if instIdx < 0 {
		return nil, 0, fmt.Errorf("%w: %q", ErrMissingColumn, cols.Institution)
	}
	urlIdx := columnIndex(header, cols.URL)
	if urlIdx < 0 {
		return nil, 0, fmt.Errorf("%w: %q", ErrMissingColumn, cols.URL)
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading row: %w", err)
		}
		url := cell(rec, urlIdx)
		if url == "" {
			skipped++
			continue
		}
		tasks = append(tasks, types.HarvestTask{
			Institution: cell(rec, instIdx),
			StartURL:    url,
		})
	}
	return tasks, skipped, nil
}

func columnIndex(header []string, name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff") // Excel writes a BOM
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i
		}
	}
	return -1
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
