// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf-harvester/internal/browser"
	"github.com/pdiddy/pdf-harvester/internal/logger"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

const metadataDir = "metadata"

// downloadRecord is the YAML sidecar written next to each downloaded PDF.
type downloadRecord struct {
	Institution  string    `yaml:"institution"`
	StartURL     string    `yaml:"start_url"`
	SourceURL    string    `yaml:"source_url"`
	FilePath     string    `yaml:"file_path"`
	Actions      []string  `yaml:"actions"`
	DownloadedAt time.Time `yaml:"downloaded_at"`
}

// MetadataPath returns the sidecar path for a PDF saved under downloadDir.
func MetadataPath(downloadDir, pdfPath string) string {
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	return filepath.Join(downloadDir, metadataDir, base+".yaml")
}

func (h *Harvester) writeSidecar(r *types.HarvestResult) error {
	rec := downloadRecord{
		Institution:  r.Institution,
		StartURL:     r.StartURL,
		SourceURL:    r.FinalURL,
		FilePath:     r.FilePath,
		Actions:      append([]string(nil), r.Actions...),
		DownloadedAt: h.now().UTC(),
	}
	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	path := MetadataPath(h.cfg.DownloadDir, r.FilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metadata dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// ScreenshotName returns <slug>_<outcome>_<YYYYMMDD_HHMMSS>.png.
func ScreenshotName(institution, outcome string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s.png", Slugify(institution), outcome, now.Format("20060102_150405"))
}

// screenshot captures page as diagnostic evidence and records the path on r.
// Failures are logged and otherwise ignored.
func (h *Harvester) screenshot(ctx context.Context, page browser.Page, institution, outcome string, r *types.HarvestResult) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Warn("screenshot panicked", logger.String("panic", fmt.Sprint(rec)))
		}
	}()
	if h.cfg.ScreenshotDir == "" {
		return
	}
	shotCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	png, err := page.Screenshot(shotCtx)
	if err != nil {
		h.log.Warn("screenshot failed", logger.String("outcome", outcome), logger.Error(err))
		return
	}
	if err := os.MkdirAll(h.cfg.ScreenshotDir, 0o755); err != nil {
		h.log.Warn("creating screenshot dir failed", logger.Error(err))
		return
	}
	path := filepath.Join(h.cfg.ScreenshotDir, ScreenshotName(institution, outcome, h.now()))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		h.log.Warn("writing screenshot failed", logger.Error(err))
		return
	}
	r.Screenshot = path
}
