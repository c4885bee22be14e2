// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report writes the end-of-run artifacts: a CSV table, a JSON
// array, a plain-text list of results that need follow-up, and a console
// summary table.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// Artifact file names inside the report directory.
const (
	CSVName    = "harvest_report.csv"
	JSONName   = "harvest_report.json"
	FailedName = "failed_downloads.txt"
)

// CSVHeader is the column order of the CSV report.
var CSVHeader = []string{"Institution", "Status", "File Path", "Start URL", "Final URL", "Notes", "Actions", "Screenshot"}

// Paths lists the files written by WriteAll. Failed is empty when every
// task downloaded.
type Paths struct {
	CSV    string
	JSON   string
	Failed string
}

// WriteAll writes every report into dir, creating it if needed.
func WriteAll(dir string, results []*types.HarvestResult) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("creating report dir: %w", err)
	}

	p := Paths{
		CSV:  filepath.Join(dir, CSVName),
		JSON: filepath.Join(dir, JSONName),
	}
	if err := writeFile(p.JSON, func(w io.Writer) error { return WriteJSON(w, results) }); err != nil {
		return Paths{}, err
	}
	if err := writeFile(p.CSV, func(w io.Writer) error { return WriteCSV(w, results) }); err != nil {
		return Paths{}, err
	}

	if len(Failed(results)) > 0 {
		p.Failed = filepath.Join(dir, FailedName)
		if err := writeFile(p.Failed, func(w io.Writer) error { return WriteFailed(w, results) }); err != nil {
			return Paths{}, err
		}
	}
	return p, nil
}

// WriteCSV writes a header row and one row per result. Actions are joined
// with "; ".
func WriteCSV(w io.Writer, results []*types.HarvestResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.Institution,
			string(r.Status),
			r.FilePath,
			r.StartURL,
			r.FinalURL,
			r.Notes,
			strings.Join(r.Actions, "; "),
			r.Screenshot,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes results as an indented JSON array. A nil slice is
// written as [].
func WriteJSON(w io.Writer, results []*types.HarvestResult) error {
	if results == nil {
		results = []*types.HarvestResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encoding JSON report: %w", err)
	}
	return nil
}

// Failed returns the results that did not end in a download, in order.
func Failed(results []*types.HarvestResult) []*types.HarvestResult {
	var out []*types.HarvestResult
	for _, r := range results {
		if r.Status != types.StatusDownloaded {
			out = append(out, r)
		}
	}
	return out
}

// WriteFailed writes the follow-up list for non-downloaded results.
func WriteFailed(w io.Writer, results []*types.HarvestResult) error {
	var b strings.Builder
	b.WriteString("FAILED DOWNLOADS\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	for _, r := range Failed(results) {
		fmt.Fprintf(&b, "Institution: %s\n", r.Institution)
		fmt.Fprintf(&b, "Status: %s\n", r.Status)
		fmt.Fprintf(&b, "URL: %s\n", r.StartURL)
		fmt.Fprintf(&b, "Notes: %s\n", r.Notes)
		if r.Screenshot != "" {
			fmt.Fprintf(&b, "Screenshot: %s\n", r.Screenshot)
		}
		b.WriteString(strings.Repeat("-", 30) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// writeFile renders into a temp file next to path and renames it into place.
func writeFile(path string, render func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	renderErr := render(tmp)
	closeErr := tmp.Close()
	if renderErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), renderErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
