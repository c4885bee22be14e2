// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/pdf-harvester/internal/browser"
	"github.com/pdiddy/pdf-harvester/internal/logger"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// ActionDownloadedVia prefixes the tag recorded for a click-triggered download.
const ActionDownloadedVia = "downloaded_via_click:"

const slugWords = 2

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s and joins its first two alphanumeric words with
// underscores. It returns "institution" when nothing usable remains.
func Slugify(s string) string {
	words := strings.Fields(nonSlug.ReplaceAllString(strings.ToLower(s), " "))
	if len(words) == 0 {
		return "institution"
	}
	if len(words) > slugWords {
		words = words[:slugWords]
	}
	return strings.Join(words, "_")
}

// FileName derives the download file name for institution, for example
// acme_capital_outlook_20261019.pdf.
func FileName(institution, suffix string, now time.Time) string {
	name := Slugify(institution)
	if suffix != "" {
		name += "_" + suffix
	}
	return fmt.Sprintf("%s_%s.pdf", name, now.Format("20060102"))
}

// TryDownload walks the download hints in priority order. For each hint it
// arms a download listener and clicks the hint; the first download that
// arrives is saved under DownloadDir and its path returned. Missing
// elements and download timeouts move on to the next hint.
func (h *Harvester) TryDownload(ctx context.Context, page browser.Page, institution string, r *types.HarvestResult) (string, bool) {
	for _, hint := range h.cfg.Policy.DownloadHints {
		if ctx.Err() != nil {
			return "", false
		}
		dl, err := page.ExpectDownload(ctx, h.cfg.Timeouts.Download, func(ctx context.Context) bool {
			return FindAndClick(ctx, page, []browser.Target{browser.Phrase(hint)}, h.cfg.Timeouts.Click)
		})
		if err != nil {
			if !errors.Is(err, browser.ErrNoDownload) {
				h.log.Debug("download wait failed", logger.String("hint", hint), logger.Error(err))
			}
			continue
		}

		dest := filepath.Join(h.cfg.DownloadDir, FileName(institution, h.cfg.FileSuffix, h.now()))
		if err := saveDownload(dl, dest); err != nil {
			h.log.Warn("saving download failed", logger.String("hint", hint), logger.Error(err))
			continue
		}
		r.AddAction(ActionDownloadedVia + hint)
		return dest, true
	}
	return "", false
}

// saveDownload stores dl at destPath through a temporary file in the same
// directory so a partial file never appears under the final name.
func saveDownload(dl browser.Download, destPath string) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating download dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".harvest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	if err := dl.SaveAs(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("saving download: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
