// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/pdiddy/pdf-harvester/internal/logger"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

const clickAttr = "data-harvest-click"

// findScript tags the first visible element matching a phrase or selector
// with clickAttr and reports whether one was found. Phrase matching follows
// button and link semantics and compares accessible names case-insensitively.
const findScript = `(function(phrase, selector, attr) {
  function visible(el) {
    const r = el.getBoundingClientRect();
    const s = window.getComputedStyle(el);
    return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
  }
  function name(el) {
    return (el.getAttribute('aria-label') || el.innerText || el.value || el.getAttribute('title') || '').trim();
  }
  document.querySelectorAll('[' + attr + ']').forEach(function(e) { e.removeAttribute(attr); });
  let els = [];
  if (selector) {
    try { els = Array.from(document.querySelectorAll(selector)); } catch (e) { return false; }
  } else {
    const p = phrase.toLowerCase();
    els = Array.from(document.querySelectorAll(
      'button, a[href], [role=button], [role=link], input[type=button], input[type=submit]'
    )).filter(function(el) { return name(el).toLowerCase().includes(p); });
  }
  const el = els.find(visible);
  if (!el) { return false; }
  el.setAttribute(attr, '1');
  return true;
})(%s, %s, %s)`

// ChromeBrowser is a Browser backed by a single Chrome process driven
// through chromedp. Every page is a tab in that process.
type ChromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	downloadDir string
	saveTimeout time.Duration
	log         logger.Logger
}

// NewChrome launches Chrome with cfg. The session lives until Close or
// until ctx is cancelled. saveTimeout bounds how long a started download
// may take to finish.
func NewChrome(ctx context.Context, cfg types.BrowserConfig, saveTimeout time.Duration, log logger.Logger) (*ChromeBrowser, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if saveTimeout <= 0 {
		saveTimeout = 60 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	downloadDir, err := os.MkdirTemp("", "pdf-harvester-dl-*")
	if err != nil {
		return nil, fmt.Errorf("creating download staging directory: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// Run with no actions starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		os.RemoveAll(downloadDir)
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	log.Info("chrome started",
		logger.Bool("headless", cfg.Headless),
		logger.String("download_staging", downloadDir),
	)

	return &ChromeBrowser{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		downloadDir: downloadDir,
		saveTimeout: saveTimeout,
		log:         log,
	}, nil
}

// NewPage opens a new tab with response observation and download capture
// enabled.
func (b *ChromeBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(b.ctx)
	p := &chromePage{
		ctx:         tabCtx,
		cancel:      cancel,
		downloadDir: b.downloadDir,
		saveTimeout: b.saveTimeout,
		begun:       make(chan downloadEvent, 8),
		done:        make(chan downloadEvent, 8),
		meta:        make(map[string]downloadEvent),
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	if err := p.start(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("opening tab: %w", err)
	}
	return p, nil
}

// startTab is chromedp.Run, replaceable in tests.
var startTab = chromedp.Run

// start attaches the tab and enables response and download events. The
// first Run on a tab context starts the tab's event loop, which lives only
// as long as the context that Run receives, so start must pass the tab
// context itself rather than a derived one. Cancelling ctx meanwhile
// closes the tab.
func (p *chromePage) start(ctx context.Context) error {
	stop := context.AfterFunc(ctx, p.cancel)
	defer stop()
	return startTab(p.ctx,
		network.Enable(),
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(p.downloadDir).
			WithEventsEnabled(true),
	)
}

// Close shuts down Chrome and removes staged downloads.
func (b *ChromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if rmErr := os.RemoveAll(b.downloadDir); rmErr != nil && err == nil {
		err = rmErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing chrome: %w", err)
	}
	return nil
}

type downloadEvent struct {
	guid     string
	url      string
	name     string
	canceled bool
}

type chromePage struct {
	ctx         context.Context
	cancel      context.CancelFunc
	downloadDir string
	saveTimeout time.Duration

	mu        sync.Mutex
	observers []func(Response)
	meta      map[string]downloadEvent

	begun chan downloadEvent
	done  chan downloadEvent

	closeOnce sync.Once
}

// run executes actions on an already started tab, bounded by the caller's
// deadline and cancellation.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		resp := Response{URL: e.Response.URL, Headers: headerMap(e.Response.Headers)}
		p.mu.Lock()
		observers := append([]func(Response){}, p.observers...)
		p.mu.Unlock()
		for _, fn := range observers {
			fn(resp)
		}
	case *cdpbrowser.EventDownloadWillBegin:
		de := downloadEvent{guid: e.GUID, url: e.URL, name: e.SuggestedFilename}
		p.mu.Lock()
		p.meta[e.GUID] = de
		p.mu.Unlock()
		send(p.begun, de)
	case *cdpbrowser.EventDownloadProgress:
		switch e.State {
		case cdpbrowser.DownloadProgressStateCompleted:
			send(p.done, downloadEvent{guid: e.GUID})
		case cdpbrowser.DownloadProgressStateCanceled:
			send(p.done, downloadEvent{guid: e.GUID, canceled: true})
		}
	}
}

// send never blocks the chromedp event loop.
func send(ch chan downloadEvent, ev downloadEvent) {
	select {
	case ch <- ev:
	default:
	}
}

func headerMap(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = fmt.Sprint(v)
	}
	return NormalizeHeaders(out)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *chromePage) VisibleText(ctx context.Context) (string, error) {
	var s string
	err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &s))
	return s, err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var s string
	err := p.run(ctx, chromedp.OuterHTML("html", &s, chromedp.ByQuery))
	return s, err
}

func (p *chromePage) Click(ctx context.Context, target Target) error {
	phrase, _ := json.Marshal(target.Phrase)
	selector, _ := json.Marshal(target.Selector)
	attr, _ := json.Marshal(clickAttr)

	var found bool
	script := fmt.Sprintf(findScript, phrase, selector, attr)
	if err := p.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return fmt.Errorf("locating %s: %w", target, err)
	}
	if !found {
		return ErrNoMatch
	}
	if err := p.run(ctx, chromedp.Click("["+clickAttr+"]", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clicking %s: %w", target, err)
	}
	return nil
}

func (p *chromePage) ScrollTo(ctx context.Context, fraction float64) error {
	var ok bool
	script := fmt.Sprintf(`(window.scrollTo(0, document.body.scrollHeight * %f), true)`, fraction)
	return p.run(ctx, chromedp.Evaluate(script, &ok))
}

func (p *chromePage) ExpectDownload(ctx context.Context, timeout time.Duration, trigger func(context.Context) bool) (Download, error) {
	p.drain()
	if !trigger(ctx) {
		return nil, ErrNoDownload
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var started downloadEvent
	select {
	case started = <-p.begun:
	case <-timer.C:
		return nil, ErrNoDownload
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	finish := time.NewTimer(p.saveTimeout)
	defer finish.Stop()
	for {
		select {
		case ev := <-p.done:
			if ev.guid != started.guid {
				continue
			}
			if ev.canceled {
				return nil, fmt.Errorf("download of %s canceled: %w", started.url, ErrNoDownload)
			}
			return &chromeDownload{
				path: filepath.Join(p.downloadDir, started.guid),
				url:  started.url,
				name: started.name,
			}, nil
		case <-finish.C:
			return nil, fmt.Errorf("download of %s did not finish within %v", started.url, p.saveTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// drain discards download events left over from earlier attempts.
func (p *chromePage) drain() {
	for {
		select {
		case <-p.begun:
		case <-p.done:
		default:
			return
		}
	}
}

func (p *chromePage) OnResponse(fn func(Response)) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 produces PNG.
	err := p.run(ctx, chromedp.FullScreenshot(&buf, 100))
	return buf, err
}

func (p *chromePage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = chromedp.Cancel(p.ctx)
		p.cancel()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing tab: %w", err)
	}
	return nil
}

type chromeDownload struct {
	path string
	url  string
	name string
}

func (d *chromeDownload) SuggestedFilename() string { return d.name }
func (d *chromeDownload) URL() string               { return d.url }

// SaveAs moves the staged file into place, copying when a rename crosses
// filesystems.
func (d *chromeDownload) SaveAs(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.Rename(d.path, path); err == nil {
		return nil
	}

	src, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("opening staged download: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("copying download: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	os.Remove(d.path)
	return nil
}
