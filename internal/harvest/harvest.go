// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package harvest drives a browser through institution web pages to find
// and download a published PDF. Each task runs a fixed pipeline: load,
// clear obstacles, resolve any investor gate, try to capture a PDF on the
// page, follow sniffed PDF responses, then explore ranked fallback links.
// Every task ends in exactly one of the four result statuses.
package harvest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/pdf-harvester/internal/browser"
	"github.com/pdiddy/pdf-harvester/internal/logger"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// Result notes.
const (
	NoteDownloaded = "Successfully downloaded PDF."
	NoteNotFound   = "No downloadable PDF detected via heuristics. Manual check needed."
)

// Screenshot outcome tags.
const (
	shotLoadError = "load_error"
	shotManual    = "manual_required"
	shotNotFound  = "not_found"
	shotError     = "error"
)

// Harvester runs harvest tasks against a shared browser session.
type Harvester struct {
	browser  browser.Browser
	cfg      types.HarvestConfig
	log      logger.Logger
	client   *http.Client
	fetcher  *DirectFetcher
	now      func() time.Time
	skip     func(types.HarvestTask) (string, bool)
	onResult func(*types.HarvestResult)
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(h *Harvester) { h.log = l }
}

// WithHTTPClient sets the client used for direct PDF fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Harvester) { h.client = c }
}

// WithClock replaces time.Now for file names, screenshots and timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

// WithSkip installs a predicate consulted by Run before each task. When it
// returns true the task is reported as skipped with the given reason and
// produces no result.
func WithSkip(fn func(types.HarvestTask) (reason string, skip bool)) Option {
	return func(h *Harvester) { h.skip = fn }
}

// WithResultHook registers fn to receive every finalized result from Run.
func WithResultHook(fn func(*types.HarvestResult)) Option {
	return func(h *Harvester) { h.onResult = fn }
}

// New returns a Harvester bound to b. The browser is owned by the caller.
func New(b browser.Browser, cfg types.HarvestConfig, opts ...Option) *Harvester {
	h := &Harvester{
		browser: b,
		cfg:     cfg,
		log:     logger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.fetcher = NewDirectFetcher(h.client, cfg.Browser.UserAgent)
	return h
}

// BatchResult holds the outcome of a batch harvest run.
type BatchResult struct {
	Results        []*types.HarvestResult
	Downloaded     int
	ManualRequired int
	NotFound       int
	Errors         int
	Skipped        int

	// Interrupted is set when the context ended before every task ran.
	Interrupted bool
}

// Total returns the number of tasks that produced a result.
func (b BatchResult) Total() int {
	return b.Downloaded + b.ManualRequired + b.NotFound + b.Errors
}

// HasFailures reports whether any task ended without a download.
func (b BatchResult) HasFailures() bool {
	return b.ManualRequired+b.NotFound+b.Errors > 0
}

func (b *BatchResult) add(r *types.HarvestResult) {
	b.Results = append(b.Results, r)
	switch r.Status {
	case types.StatusDownloaded:
		b.Downloaded++
	case types.StatusManualRequired:
		b.ManualRequired++
	case types.StatusNotFound:
		b.NotFound++
	default:
		b.Errors++
	}
}

// Run harvests tasks in order, one at a time, printing per-task status to w.
// It continues after individual failures and spaces tasks by TaskDelay.
// Cancelling ctx stops the run before the next task starts.
func (h *Harvester) Run(ctx context.Context, tasks []types.HarvestTask, w io.Writer) BatchResult {
	var result BatchResult
	var limiter *rate.Limiter
	if h.cfg.TaskDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(h.cfg.TaskDelay), 1)
	}

	for i, task := range tasks {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		if h.skip != nil {
			if reason, skip := h.skip(task); skip {
				fmt.Fprintf(w, "skipped: %s (%s)\n", task.Institution, reason)
				result.Skipped++
				continue
			}
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				result.Interrupted = true
				break
			}
		}

		fmt.Fprintf(w, "processing: %s (%d/%d) %s\n", task.Institution, i+1, len(tasks), task.StartURL)
		r := h.Harvest(ctx, task)
		result.add(r)
		if h.onResult != nil {
			h.onResult(r)
		}

		if r.Status == types.StatusDownloaded {
			fmt.Fprintf(w, "downloaded: %s -> %s\n", task.Institution, r.FilePath)
		} else {
			fmt.Fprintf(w, "failed:  %s [%s] %s\n", task.Institution, r.Status, r.Notes)
		}
	}

	fmt.Fprintf(w, "\nHarvest summary: %d downloaded, %d manual required, %d not found, %d errors, %d skipped (total: %d)\n",
		result.Downloaded, result.ManualRequired, result.NotFound, result.Errors, result.Skipped, result.Total())
	return result
}

// Harvest runs the full pipeline for one task and returns its finalized
// result. It never panics and never returns a nil result. Every page it
// opens is closed before it returns.
func (h *Harvester) Harvest(ctx context.Context, task types.HarvestTask) (r *types.HarvestResult) {
	r = types.NewHarvestResult(task)
	r.StartedAt = h.now()
	log := h.log.With(logger.String("institution", task.Institution), logger.String("url", task.StartURL))
	defer func() {
		r.Finalize(h.now())
		log.Info("harvest finished",
			logger.String("status", string(r.Status)),
			logger.Strings("actions", r.Actions),
			logger.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)))
	}()

	// The recover runs before the page closes so the error screenshot
	// captures the failing page.
	var page browser.Page
	defer func() {
		if page != nil {
			page.Close()
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("harvest pipeline panicked", logger.String("panic", fmt.Sprint(rec)))
			h.fail(ctx, page, task, r, fmt.Sprint(rec))
		}
	}()

	page, err := h.browser.NewPage(ctx)
	if err != nil {
		r.Notes = fmt.Sprintf("failed to open page: %v", err)
		return r
	}
	sniff := AttachSniffer(page)

	if err := h.navigate(ctx, page, task.StartURL); err != nil {
		r.Status = types.StatusError
		r.Notes = fmt.Sprintf("failed to load page: %v", err)
		r.FinalURL = h.currentURL(ctx, page)
		h.screenshot(ctx, page, task.Institution, shotLoadError, r)
		return r
	}

	if err := h.pipeline(ctx, page, sniff, task, r); err != nil {
		h.fail(ctx, page, task, r, err.Error())
	}
	return r
}

func (h *Harvester) fail(ctx context.Context, page browser.Page, task types.HarvestTask, r *types.HarvestResult, note string) {
	r.Status = types.StatusError
	r.FilePath = ""
	r.Notes = note
	if page == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Warn("failure capture panicked", logger.String("panic", fmt.Sprint(rec)))
		}
	}()
	if r.FinalURL == "" {
		r.FinalURL = h.currentURL(ctx, page)
	}
	h.screenshot(ctx, page, task.Institution, shotError, r)
}

// pipeline runs steps 2 through 7 on a loaded page. It returns an error
// only when the run is cancelled.
func (h *Harvester) pipeline(ctx context.Context, page browser.Page, sniff *SniffState, task types.HarvestTask, r *types.HarvestResult) error {
	pause(ctx, h.cfg.Pauses.AfterLoad)
	h.clearObstacles(ctx, page, r)
	if err := ctx.Err(); err != nil {
		return err
	}

	decision := h.ResolveGate(ctx, page, r)
	r.FinalURL = h.currentURL(ctx, page)
	if !decision.Handled() {
		r.Status = types.StatusManualRequired
		r.Notes = decision.Note
		h.screenshot(ctx, page, task.Institution, shotManual, r)
		return nil
	}

	// The download trigger runs on every page; a PDF address adds a direct
	// capture after it.
	if h.capture(ctx, page, task.Institution, r) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if sniffed := sniff.LastPDFURL(); sniffed != "" {
		if h.followSniffed(ctx, sniffed, task.Institution, r) {
			return nil
		}
	}

	current := h.currentURL(ctx, page)
	for _, link := range h.candidates(ctx, page, current) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if link.Href == current {
			continue
		}
		if h.exploreCandidate(ctx, link, task.Institution, r) {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.Status = types.StatusNotFound
	r.Notes = NoteNotFound
	r.FinalURL = current
	h.screenshot(ctx, page, task.Institution, shotNotFound, r)
	return nil
}

// capture tries the download trigger on page, then a direct fetch when the
// page address is itself a PDF.
func (h *Harvester) capture(ctx context.Context, page browser.Page, institution string, r *types.HarvestResult) bool {
	if path, ok := h.TryDownload(ctx, page, institution, r); ok {
		h.markDownloaded(r, path, h.currentURL(ctx, page))
		return true
	}
	if u := h.currentURL(ctx, page); IsPDFURL(u) {
		if path, ok := h.fetchDirect(ctx, u, institution, r); ok {
			h.markDownloaded(r, path, u)
			return true
		}
	}
	return false
}

// followSniffed opens pdfURL in a fresh page and captures there. If that
// fails the URL is fetched directly.
func (h *Harvester) followSniffed(ctx context.Context, pdfURL, institution string, r *types.HarvestResult) bool {
	h.log.Debug("following sniffed PDF", logger.String("pdf_url", pdfURL))
	ok := h.withPage(ctx, func(p browser.Page, _ *SniffState) bool {
		if err := h.navigate(ctx, p, pdfURL); err != nil {
			return false
		}
		pause(ctx, h.cfg.Pauses.Subpage)
		return h.capture(ctx, p, institution, r)
	})
	if ok {
		return true
	}
	if path, ok := h.fetchDirect(ctx, pdfURL, institution, r); ok {
		h.markDownloaded(r, path, pdfURL)
		return true
	}
	return false
}

// exploreCandidate opens link in a fresh page, clears obstacles and the
// gate there, and tries to capture. A gate that needs a human skips the
// candidate. A PDF sniffed on the candidate page is followed one level deeper.
func (h *Harvester) exploreCandidate(ctx context.Context, link types.CandidateLink, institution string, r *types.HarvestResult) bool {
	log := h.log.With(logger.String("candidate", link.Href), logger.Int("score", link.Score))
	var sniffed string
	ok := h.withPage(ctx, func(p browser.Page, s *SniffState) bool {
		if err := h.navigate(ctx, p, link.Href); err != nil {
			log.Debug("candidate navigation failed", logger.Error(err))
			if !IsPDFURL(link.Href) {
				return false
			}
			path, ok := h.fetchDirect(ctx, link.Href, institution, r)
			if ok {
				h.markDownloaded(r, path, link.Href)
			}
			return ok
		}
		pause(ctx, h.cfg.Pauses.Subpage)
		h.HandleCookies(ctx, p, r)
		h.CloseModals(ctx, p, r)
		if d := h.ResolveGate(ctx, p, r); !d.Handled() {
			log.Debug("candidate gated, skipping", logger.String("note", d.Note))
			return false
		}
		if h.capture(ctx, p, institution, r) {
			return true
		}
		sniffed = s.LastPDFURL()
		return false
	})
	if ok {
		return true
	}
	return sniffed != "" && h.followSniffed(ctx, sniffed, institution, r)
}

func (h *Harvester) candidates(ctx context.Context, page browser.Page, pageURL string) []types.CandidateLink {
	htmlCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	html, err := page.HTML(htmlCtx)
	if err != nil {
		h.log.Debug("reading page HTML failed", logger.Error(err))
		return nil
	}
	links, err := CollectLinks(html, pageURL, linkOptions(h.cfg))
	if err != nil {
		h.log.Debug("collecting links failed", logger.Error(err))
		return nil
	}
	return links
}

// withPage opens a page with a sniffer attached, runs fn and closes the
// page whatever fn does.
func (h *Harvester) withPage(ctx context.Context, fn func(browser.Page, *SniffState) bool) bool {
	p, err := h.browser.NewPage(ctx)
	if err != nil {
		h.log.Warn("opening page failed", logger.Error(err))
		return false
	}
	defer p.Close()
	return fn(p, AttachSniffer(p))
}

func (h *Harvester) markDownloaded(r *types.HarvestResult, path, finalURL string) {
	r.Status = types.StatusDownloaded
	r.FilePath = path
	r.Notes = NoteDownloaded
	if finalURL != "" {
		r.FinalURL = finalURL
	}
	if err := h.writeSidecar(r); err != nil {
		h.log.Warn("writing download metadata failed", logger.String("file", path), logger.Error(err))
	}
}

func (h *Harvester) navigate(ctx context.Context, page browser.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	return page.Navigate(navCtx, url)
}

func (h *Harvester) currentURL(ctx context.Context, page browser.Page) string {
	urlCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	u, err := page.URL(urlCtx)
	if err != nil {
		return ""
	}
	return u
}

func (h *Harvester) visibleText(ctx context.Context, page browser.Page) string {
	textCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	text, err := page.VisibleText(textCtx)
	if err != nil {
		return ""
	}
	return text
}

// pause sleeps for d or until ctx ends.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
