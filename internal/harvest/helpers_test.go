// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdiddy/pdf-harvester/internal/browser"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

const pdfBody = "%PDF-1.7\n1 0 obj\n<<>>\nendobj\n%%EOF\n"

// testConfig returns defaults with no pauses, short timeouts and
// per-test output directories.
func testConfig(t *testing.T) types.HarvestConfig {
	t.Helper()
	cfg := types.DefaultHarvestConfig()
	cfg.Timeout = 2 * time.Second
	cfg.Timeouts = types.Timeouts{Click: 200 * time.Millisecond, Download: 200 * time.Millisecond}
	cfg.Pauses = types.Pauses{}
	dir := t.TempDir()
	cfg.DownloadDir = filepath.Join(dir, "downloads")
	cfg.ScreenshotDir = filepath.Join(dir, "screenshots")
	cfg.ReportDir = cfg.DownloadDir
	return cfg
}

func newTestHarvester(b browser.Browser, cfg types.HarvestConfig, opts ...Option) *Harvester {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(b, cfg, opts...)
}

func newResult() *types.HarvestResult {
	return types.NewHarvestResult(types.HarvestTask{Institution: "Acme Capital", StartURL: "https://example.org/outlook"})
}

// pdfServer serves pdfBody as application/pdf on every path.
func pdfServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(pdfBody))
	}))
	t.Cleanup(ts.Close)
	return ts
}
