// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pdiddy/pdf-harvester/pkg/types"
)

const (
	detailWidth   = 70
	previewLength = 120
)

// Counts tallies results by status.
type Counts struct {
	Downloaded     int
	ManualRequired int
	NotFound       int
	Errors         int
}

// Total returns the number of results counted.
func (c Counts) Total() int {
	return c.Downloaded + c.ManualRequired + c.NotFound + c.Errors
}

// Count tallies results by status. Unknown statuses count as errors.
func Count(results []*types.HarvestResult) Counts {
	var c Counts
	for _, r := range results {
		switch r.Status {
		case types.StatusDownloaded:
			c.Downloaded++
		case types.StatusManualRequired:
			c.ManualRequired++
		case types.StatusNotFound:
			c.NotFound++
		default:
			c.Errors++
		}
	}
	return c
}

// RenderSummary prints a table of results with a per-status footer.
func RenderSummary(w io.Writer, title string, results []*types.HarvestResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	if title != "" {
		t.SetTitle(title)
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, WidthMax: detailWidth},
	})
	t.AppendHeader(table.Row{"#", "Institution", "Status", "File / Notes"})

	for i, r := range results {
		t.AppendRow(table.Row{i + 1, r.Institution, statusLabel(r.Status), detail(r)})
	}

	c := Count(results)
	t.AppendFooter(table.Row{
		"", "Total",
		len(results),
		fmt.Sprintf("%d downloaded, %d manual, %d not found, %d errors",
			c.Downloaded, c.ManualRequired, c.NotFound, c.Errors),
	})
	t.Render()
}

func statusLabel(s types.Status) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func detail(r *types.HarvestResult) string {
	if r.Status == types.StatusDownloaded {
		return r.FilePath
	}
	notes := strings.Join(strings.Fields(r.Notes), " ")
	return text.Snip(notes, previewLength, "...")
}
