// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf-harvester/internal/browser"
	"github.com/pdiddy/pdf-harvester/internal/browser/browsertest"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

func assertPagesClosed(t *testing.T, b *browsertest.Browser) {
	t.Helper()
	assert.NotEmpty(t, b.Pages())
	assert.Empty(t, b.OpenPages(), "every page opened by a task must be closed")
}

func assertFileInvariant(t *testing.T, r *types.HarvestResult) {
	t.Helper()
	assert.True(t, r.Status.Valid())
	assert.Equal(t, r.Status == types.StatusDownloaded, r.FilePath != "", "file path set iff downloaded")
}

func gateTags(actions []string) []string {
	var out []string
	for _, a := range actions {
		if strings.HasPrefix(a, "gate_") {
			out = append(out, a)
		}
	}
	return out
}

func TestHarvest_DownloadsLinkedPDF(t *testing.T) {
	ts := pdfServer(t)
	start := ts.URL + "/outlook"

	b := browsertest.New()
	b.AddSite(start, &browsertest.Site{
		Text: "Acme Capital 2026 Outlook. Read our views on the year ahead.",
		HTML: `<html><body><h1>Outlook</h1><a href="/files/acme-outlook-2026.pdf">2026 Outlook</a></body></html>`,
	})
	cfg := testConfig(t)
	h := newTestHarvester(b, cfg, WithHTTPClient(ts.Client()))

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Acme Capital", StartURL: start})

	assert.Equal(t, types.StatusDownloaded, r.Status)
	assert.True(t, strings.HasPrefix(filepath.Base(r.FilePath), "acme"), r.FilePath)
	assert.Equal(t, "acme_capital_outlook_20261019.pdf", filepath.Base(r.FilePath))
	assert.Empty(t, gateTags(r.Actions))
	assert.Contains(t, r.Actions, ActionFetchedDirect)
	assert.Equal(t, ts.URL+"/files/acme-outlook-2026.pdf", r.FinalURL)
	assert.Equal(t, NoteDownloaded, r.Notes)
	assert.Empty(t, r.Screenshot)
	assert.Equal(t, fixedNow, r.FinishedAt)
	assertFileInvariant(t, r)
	assertPagesClosed(t, b)

	data, err := os.ReadFile(r.FilePath)
	require.NoError(t, err)
	assert.Equal(t, pdfBody, string(data))

	raw, err := os.ReadFile(MetadataPath(cfg.DownloadDir, r.FilePath))
	require.NoError(t, err)
	var rec downloadRecord
	require.NoError(t, yaml.Unmarshal(raw, &rec))
	assert.Equal(t, "Acme Capital", rec.Institution)
	assert.Equal(t, start, rec.StartURL)
	assert.Equal(t, r.FilePath, rec.FilePath)
}

func TestHarvest_GateWithoutLabelNeedsManualStep(t *testing.T) {
	ts := pdfServer(t)
	start := ts.URL + "/outlook"

	b := browsertest.New()
	b.AddSite(start, &browsertest.Site{
		Text: "Please certify you are a Professional Investor",
		HTML: `<html><body><a href="/files/acme-outlook-2026.pdf">2026 Outlook</a></body></html>`,
		Elements: []*browsertest.Element{
			{Role: "button", Name: "Professional"},
		},
	})
	cfg := testConfig(t)
	cfg.Profile = types.ProfileRetail
	h := newTestHarvester(b, cfg, WithHTTPClient(ts.Client()))

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Acme Capital", StartURL: start})

	assert.Equal(t, types.StatusManualRequired, r.Status)
	assert.Empty(t, r.FilePath)
	assert.Contains(t, r.Notes, "profile=retail")
	assert.Contains(t, r.Actions, ActionGateDetected)
	require.NotEmpty(t, r.Screenshot)
	assert.FileExists(t, r.Screenshot)
	assert.Equal(t, "acme_capital_manual_required_20261019_093000.png", filepath.Base(r.Screenshot))
	assert.NoDirExists(t, cfg.DownloadDir)
	assertFileInvariant(t, r)
	assertPagesClosed(t, b)
}

func TestHarvest_ResolvedGateThenClickDownload(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://example.org/insights", &browsertest.Site{
		Text: "This area is for institutional investors only.",
		Elements: []*browsertest.Element{
			{Role: "button", Name: "Institutional", Remove: true},
			{Role: "link", Name: "Download PDF", Download: &browsertest.Download{Content: []byte(pdfBody)}},
		},
	})
	cfg := testConfig(t)
	cfg.Profile = types.ProfileInstitutional
	h := newTestHarvester(b, cfg)

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Northwind Partners", StartURL: "https://example.org/insights"})

	assert.Equal(t, types.StatusDownloaded, r.Status)
	assert.Equal(t, []string{
		ActionGateDetected,
		"gate_selected_institutional",
		ActionGateContinued,
		ActionDownloadedVia + "download pdf",
	}, r.Actions)
	assert.Equal(t, "https://example.org/insights", r.FinalURL)
	assertFileInvariant(t, r)
}

func TestHarvest_LoadFailure(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://down.example.org", &browsertest.Site{NavError: errors.New("net::ERR_CONNECTION_REFUSED")})
	cfg := testConfig(t)
	h := newTestHarvester(b, cfg)

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Down Inc", StartURL: "https://down.example.org"})

	assert.Equal(t, types.StatusError, r.Status)
	assert.Equal(t, "failed to load page: net::ERR_CONNECTION_REFUSED", r.Notes)
	assert.Contains(t, r.Screenshot, "down_inc_load_error_")
	assertFileInvariant(t, r)
	assertPagesClosed(t, b)
}

func TestHarvest_PanicBecomesError(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://example.org", &browsertest.Site{Panic: true})
	h := newTestHarvester(b, testConfig(t))

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Acme Capital", StartURL: "https://example.org"})

	assert.Equal(t, types.StatusError, r.Status)
	assert.Equal(t, "fake page exploded", r.Notes)
	assert.Contains(t, r.Screenshot, "acme_capital_error_")
	assertFileInvariant(t, r)
	assertPagesClosed(t, b)
}

func TestHarvest_NewPageFailure(t *testing.T) {
	b := browsertest.New()
	b.NewPageErr = errors.New("browser gone")
	h := newTestHarvester(b, testConfig(t))

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Acme Capital", StartURL: "https://example.org"})
	assert.Equal(t, types.StatusError, r.Status)
	assert.Equal(t, "failed to open page: browser gone", r.Notes)
}

func TestHarvest_FollowsSniffedPDF(t *testing.T) {
	ts := pdfServer(t)
	b := browsertest.New()
	b.AddSite("https://example.org/viewer", &browsertest.Site{
		Text: "Loading document",
		Responses: []browser.Response{
			{URL: ts.URL + "/stream?id=7", Headers: map[string]string{"Content-Type": "application/pdf"}},
		},
	})
	h := newTestHarvester(b, testConfig(t), WithHTTPClient(ts.Client()))

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Acme Capital", StartURL: "https://example.org/viewer"})

	assert.Equal(t, types.StatusDownloaded, r.Status)
	assert.Equal(t, ts.URL+"/stream?id=7", r.FinalURL)
	assert.Equal(t, []string{ActionFetchedDirect}, r.Actions)
	assertPagesClosed(t, b)
	assert.Len(t, b.Pages(), 2)
}

func TestHarvest_GatedCandidateIsSkipped(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://example.org/", &browsertest.Site{
		Text: "Insights",
		HTML: `<a href="/investor-report">Reports</a><a href="/library">Download centre</a><a href="/careers">Careers</a>`,
	})
	b.AddSite("https://example.org/investor-report", &browsertest.Site{
		Text:     "Are you an accredited investor?",
		Elements: []*browsertest.Element{{Role: "button", Name: "Yes"}},
	})
	b.AddSite("https://example.org/library", &browsertest.Site{
		Text: "Library",
		Elements: []*browsertest.Element{
			{Role: "link", Name: "Download full PDF", Download: &browsertest.Download{Content: []byte(pdfBody)}},
		},
	})
	h := newTestHarvester(b, testConfig(t))

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Acme Capital", StartURL: "https://example.org/"})

	assert.Equal(t, types.StatusDownloaded, r.Status)
	assert.Equal(t, []string{ActionGateDetected, ActionDownloadedVia + "download full pdf"}, r.Actions)
	assert.Equal(t, "https://example.org/library", r.FinalURL)
	assertPagesClosed(t, b)
	assert.Len(t, b.Pages(), 3)
}

func TestHarvest_DirectFetchDisabledFallsToNotFound(t *testing.T) {
	ts := pdfServer(t)
	start := ts.URL + "/outlook"
	b := browsertest.New()
	b.AddSite(start, &browsertest.Site{
		HTML: `<a href="/files/acme-outlook-2026.pdf">2026 Outlook</a>`,
	})
	cfg := testConfig(t)
	cfg.DirectFetch = false
	h := newTestHarvester(b, cfg, WithHTTPClient(ts.Client()))

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Acme Capital", StartURL: start})

	assert.Equal(t, types.StatusNotFound, r.Status)
	assert.Equal(t, NoteNotFound, r.Notes)
	assert.Equal(t, start, r.FinalURL)
	assert.Contains(t, r.Screenshot, "acme_capital_not_found_")
	assertFileInvariant(t, r)
	assertPagesClosed(t, b)
}

func TestHarvest_CancelledAfterLoad(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://example.org", &browsertest.Site{Text: "hello"})
	h := newTestHarvester(b, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := h.Harvest(ctx, types.HarvestTask{Institution: "Acme Capital", StartURL: "https://example.org"})

	assert.Equal(t, types.StatusError, r.Status)
	assertPagesClosed(t, b)
}

func TestRun_Batch(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://a.example.org", &browsertest.Site{
		Elements: []*browsertest.Element{
			{Role: "button", Name: "Download", Download: &browsertest.Download{Content: []byte(pdfBody)}},
		},
	})
	b.AddSite("https://c.example.org", &browsertest.Site{Text: "Nothing to see"})

	var hooked []string
	h := newTestHarvester(b, testConfig(t),
		WithSkip(func(task types.HarvestTask) (string, bool) {
			return "already downloaded", task.Institution == "Bravo"
		}),
		WithResultHook(func(r *types.HarvestResult) { hooked = append(hooked, r.Institution) }),
	)

	tasks := []types.HarvestTask{
		{Institution: "Alpha", StartURL: "https://a.example.org"},
		{Institution: "Bravo", StartURL: "https://b.example.org"},
		{Institution: "Charlie", StartURL: "https://c.example.org"},
	}
	var out bytes.Buffer
	res := h.Run(context.Background(), tasks, &out)

	require.Len(t, res.Results, 2)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 1, res.NotFound)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Total())
	assert.True(t, res.HasFailures())
	assert.False(t, res.Interrupted)
	assert.Equal(t, []string{"Alpha", "Charlie"}, hooked)
	for _, r := range res.Results {
		assertFileInvariant(t, r)
	}

	s := out.String()
	assert.Contains(t, s, "processing: Alpha (1/3) https://a.example.org")
	assert.Contains(t, s, "downloaded: Alpha -> ")
	assert.Contains(t, s, "skipped: Bravo (already downloaded)")
	assert.Contains(t, s, "failed:  Charlie [not_found]")
	assert.Contains(t, s, "Harvest summary: 1 downloaded, 0 manual required, 1 not found, 0 errors, 1 skipped (total: 2)")
	assertPagesClosed(t, b)
}

func TestRun_Interrupted(t *testing.T) {
	b := browsertest.New()
	h := newTestHarvester(b, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	res := h.Run(ctx, []types.HarvestTask{{Institution: "Alpha", StartURL: "https://a.example.org"}}, &out)

	assert.True(t, res.Interrupted)
	assert.Empty(t, res.Results)
	assert.Empty(t, b.Pages())
}

func TestHarvest_HungTabIsBounded(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://stuck.example.org", &browsertest.Site{Hang: true})
	cfg := testConfig(t)
	cfg.Timeout = 200 * time.Millisecond
	h := newTestHarvester(b, cfg)

	done := make(chan *types.HarvestResult, 1)
	go func() {
		done <- h.Harvest(context.Background(), types.HarvestTask{Institution: "Stuck Ltd", StartURL: "https://stuck.example.org"})
	}()

	var r *types.HarvestResult
	select {
	case r = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Harvest did not return after its navigation timeout")
	}

	assert.Equal(t, types.StatusError, r.Status)
	assert.Equal(t, "failed to load page: context deadline exceeded", r.Notes)
	assert.Empty(t, r.FinalURL)
	assert.Empty(t, r.Screenshot)
	assertFileInvariant(t, r)
	assertPagesClosed(t, b)
}

func TestRun_NavigationPanicDoesNotStopBatch(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://a.example.org", &browsertest.Site{NavPanic: true})
	b.AddSite("https://b.example.org", &browsertest.Site{Text: "hello"})
	h := newTestHarvester(b, testConfig(t))

	tasks := []types.HarvestTask{
		{Institution: "Alpha", StartURL: "https://a.example.org"},
		{Institution: "Bravo", StartURL: "https://b.example.org"},
	}
	var out bytes.Buffer
	res := h.Run(context.Background(), tasks, &out)

	require.Len(t, res.Results, 2)
	assert.Equal(t, types.StatusError, res.Results[0].Status)
	assert.Equal(t, "engine crashed during navigation", res.Results[0].Notes)
	assert.Contains(t, res.Results[0].Screenshot, "alpha_error_")
	assert.Equal(t, types.StatusNotFound, res.Results[1].Status)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.NotFound)
	assert.Contains(t, out.String(), "failed:  Alpha [error] engine crashed during navigation")
	for _, r := range res.Results {
		assertFileInvariant(t, r)
	}
	assertPagesClosed(t, b)
}

func TestHarvest_FollowsPDFSniffedOnCandidate(t *testing.T) {
	ts := pdfServer(t)
	sniffed := ts.URL + "/doc?id=9"

	b := browsertest.New()
	b.AddSite("https://example.org/start", &browsertest.Site{
		Text: "Insights",
		HTML: `<a href="/reader">Read the annual report</a><a href="/careers">Careers</a>`,
	})
	b.AddSite("https://example.org/reader", &browsertest.Site{
		Text: "Opening viewer",
		Responses: []browser.Response{
			{URL: sniffed, Headers: map[string]string{"Content-Disposition": `inline; filename="annual.pdf"`}},
		},
	})
	h := newTestHarvester(b, testConfig(t), WithHTTPClient(ts.Client()))

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Acme Capital", StartURL: "https://example.org/start"})

	assert.Equal(t, types.StatusDownloaded, r.Status)
	assert.Equal(t, sniffed, r.FinalURL)
	assert.Equal(t, []string{ActionFetchedDirect}, r.Actions)
	assertFileInvariant(t, r)
	assertPagesClosed(t, b)

	pages := b.Pages()
	require.Len(t, pages, 3)
	assert.Equal(t, []string{"https://example.org/reader"}, pages[1].Navigations())
	assert.Equal(t, []string{sniffed}, pages[2].Navigations())
}

func TestHarvest_ClearsLinkedInInterstitial(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://lnkd.example/abc", &browsertest.Site{
		FinalURL: "https://www.linkedin.com/safety/go?url=https%3A%2F%2Facme.example%2Foutlook",
		Text:     "You are leaving LinkedIn. This link will take you to a page outside LinkedIn.",
		Elements: []*browsertest.Element{
			{Role: "button", Name: "Continue", NavigateTo: "https://acme.example/outlook"},
		},
	})
	b.AddSite("https://acme.example/outlook", &browsertest.Site{
		Text: "Acme Capital 2026 Outlook",
		Elements: []*browsertest.Element{
			{Role: "link", Name: "Download PDF", Download: &browsertest.Download{Name: "outlook.pdf", Content: []byte(pdfBody)}},
		},
	})
	h := newTestHarvester(b, testConfig(t))

	r := h.Harvest(context.Background(), types.HarvestTask{Institution: "Acme Capital", StartURL: "https://lnkd.example/abc"})

	assert.Equal(t, types.StatusDownloaded, r.Status)
	assert.Equal(t, []string{"handled_linkedin_redirect", ActionDownloadedVia + "download pdf"}, r.Actions)
	assert.Equal(t, "https://acme.example/outlook", r.FinalURL)
	assert.FileExists(t, r.FilePath)
	assertPagesClosed(t, b)
	assert.Len(t, b.Pages(), 1)
}
