// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package browsertest provides an in-memory Browser for exercising the
// harvest pipeline without Chrome. Sites are registered by URL; each
// navigation copies the site's elements into the page so clicks can mutate
// page state without touching the registered site.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/pdf-harvester/internal/browser"
)

// Element is a clickable element on a fake site.
type Element struct {
	// Role is "button" or "link". Phrase targets only match these roles.
	Role string

	// Name is the accessible name matched by phrase targets.
	Name string

	// Selectors lists the literal CSS selectors this element answers to.
	Selectors []string

	Hidden bool

	// FailClick makes the click itself return an error.
	FailClick bool

	// Download, if set, is emitted when the element is clicked.
	Download *Download

	// NavigateTo, if set, navigates the page when the element is clicked.
	NavigateTo string

	// Responses are delivered to observers when the element is clicked.
	Responses []browser.Response

	// Remove hides the element after it is clicked.
	Remove bool

	// Reveal lists elements that become visible after the click.
	Reveal []*Element
}

func (e *Element) matches(t browser.Target) bool {
	if e.Hidden {
		return false
	}
	if t.Selector != "" {
		for _, s := range e.Selectors {
			if s == t.Selector {
				return true
			}
		}
		return false
	}
	if e.Role != "button" && e.Role != "link" {
		return false
	}
	return t.Phrase != "" && strings.Contains(strings.ToLower(e.Name), strings.ToLower(t.Phrase))
}

// Site is a page the fake browser can navigate to.
type Site struct {
	// FinalURL is reported after navigation; defaults to the requested URL.
	FinalURL string

	Text string
	HTML string

	Elements []*Element

	// Responses are delivered to observers on navigation.
	Responses []browser.Response

	// NavError makes navigation fail.
	NavError error

	// Panic makes VisibleText panic, for exercising recovery.
	Panic bool

	// NavPanic makes Navigate panic before the site loads.
	NavPanic bool

	// Hang makes Navigate, URL and Screenshot block until their context
	// ends, like a tab held by a JavaScript dialog.
	Hang bool
}

// Download is a fake captured file.
type Download struct {
	Name    string
	From    string
	Content []byte
}

func (d *Download) SuggestedFilename() string { return d.Name }
func (d *Download) URL() string               { return d.From }

// SaveAs writes Content to path.
func (d *Download) SaveAs(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, d.Content, 0o644)
}

// Browser is a fake browser.Browser.
type Browser struct {
	mu     sync.Mutex
	sites  map[string]*Site
	pages  []*Page
	closed bool

	// NewPageErr makes NewPage fail.
	NewPageErr error
}

// New returns an empty fake browser.
func New() *Browser {
	return &Browser{sites: make(map[string]*Site)}
}

// AddSite registers site at url.
func (b *Browser) AddSite(url string, site *Site) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sites[url] = site
}

func (b *Browser) site(url string) (*Site, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sites[url]
	return s, ok
}

// NewPage opens a fake tab.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &Page{browser: b}
	b.pages = append(b.pages, p)
	return p, nil
}

// Close marks the browser closed.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Pages returns every page opened so far.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

// OpenPages returns the pages that were never closed.
func (b *Browser) OpenPages() []*Page {
	var open []*Page
	for _, p := range b.Pages() {
		if !p.Closed() {
			open = append(open, p)
		}
	}
	return open
}

// Page is a fake browser.Page.
type Page struct {
	browser *Browser

	mu          sync.Mutex
	url         string
	site        *Site
	elements    []*Element
	observers   []func(browser.Response)
	pending     *Download
	clicks      []string
	navigations []string
	screenshots int
	closed      bool
}

// NewPage returns a standalone page already showing site at url, for
// tests that exercise a single handler.
func NewPage(url string, site *Site) *Page {
	b := New()
	b.AddSite(url, site)
	p := &Page{browser: b}
	b.pages = append(b.pages, p)
	p.load(url, site)
	return p
}

func (p *Page) load(url string, site *Site) {
	p.url = url
	if site.FinalURL != "" {
		p.url = site.FinalURL
	}
	p.site = site
	p.elements = make([]*Element, 0, len(site.Elements))
	for _, e := range site.Elements {
		cp := *e
		p.elements = append(p.elements, &cp)
	}
}

func (p *Page) emit(responses []browser.Response) {
	p.mu.Lock()
	observers := append([]func(browser.Response){}, p.observers...)
	p.mu.Unlock()
	for _, r := range responses {
		r.Headers = browser.NormalizeHeaders(r.Headers)
		for _, fn := range observers {
			fn(r)
		}
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	p.mu.Unlock()

	site, ok := p.browser.site(url)
	if !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	if site.NavError != nil {
		return site.NavError
	}
	if site.NavPanic {
		panic("engine crashed during navigation")
	}
	p.mu.Lock()
	p.load(url, site)
	p.mu.Unlock()
	if site.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	p.emit(site.Responses)
	return nil
}

func (p *Page) hung() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.site != nil && p.site.Hang
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if p.hung() {
		<-ctx.Done()
		return "", ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) VisibleText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.site == nil {
		return "", nil
	}
	if p.site.Panic {
		panic("fake page exploded")
	}
	return p.site.Text, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.site == nil {
		return "<html></html>", nil
	}
	return p.site.HTML, nil
}

func (p *Page) Click(ctx context.Context, target browser.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	var hit *Element
	for _, e := range p.elements {
		if e.matches(target) {
			hit = e
			break
		}
	}
	if hit == nil {
		p.mu.Unlock()
		return browser.ErrNoMatch
	}
	if hit.FailClick {
		p.mu.Unlock()
		return errors.New("element is not clickable at point")
	}
	p.clicks = append(p.clicks, hit.Name+selectorSuffix(target))
	if hit.Download != nil {
		p.pending = hit.Download
	}
	if hit.Remove {
		hit.Hidden = true
	}
	for _, r := range hit.Reveal {
		cp := *r
		p.elements = append(p.elements, &cp)
	}
	navigate := hit.NavigateTo
	responses := hit.Responses
	p.mu.Unlock()

	p.emit(responses)
	if navigate != "" {
		return p.Navigate(ctx, navigate)
	}
	return nil
}

func selectorSuffix(t browser.Target) string {
	if t.Selector != "" {
		return "@" + t.Selector
	}
	return ""
}

func (p *Page) ScrollTo(ctx context.Context, fraction float64) error {
	return ctx.Err()
}

func (p *Page) ExpectDownload(ctx context.Context, timeout time.Duration, trigger func(context.Context) bool) (browser.Download, error) {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()

	if !trigger(ctx) {
		return nil, browser.ErrNoDownload
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return nil, browser.ErrNoDownload
	}
	dl := p.pending
	p.pending = nil
	return dl, nil
}

func (p *Page) OnResponse(fn func(browser.Response)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if p.hung() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshots++
	return []byte("\x89PNG fake"), nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Clicks returns the names of clicked elements in order. Selector clicks
// carry an "@selector" suffix.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Screenshots returns how many screenshots were taken.
func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshots
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
