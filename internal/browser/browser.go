// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package browser defines the browser capabilities the harvest pipeline
// relies on: navigation, visible-element queries, clicks, download capture,
// response header observation and screenshots. The chromedp engine in this
// package is the production implementation; browsertest provides an
// in-memory fake.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNoDownload is returned by ExpectDownload when no download event
	// fires, including when the trigger reports that nothing was clicked.
	ErrNoDownload = errors.New("no download event")

	// ErrNoMatch is returned by Click when no visible element matches.
	ErrNoMatch = errors.New("no visible matching element")
)

// Target identifies an element to click: either a phrase matched against
// the accessible name of buttons and links, or a literal CSS selector.
type Target struct {
	Phrase   string
	Selector string
}

// Phrase returns a phrase target.
func Phrase(s string) Target { return Target{Phrase: s} }

// Selector returns a CSS selector target.
func Selector(s string) Target { return Target{Selector: s} }

// Phrases converts phrases to targets, preserving order.
func Phrases(ss ...string) []Target {
	out := make([]Target, 0, len(ss))
	for _, s := range ss {
		out = append(out, Phrase(s))
	}
	return out
}

// Selectors converts CSS selectors to targets, preserving order.
func Selectors(ss ...string) []Target {
	out := make([]Target, 0, len(ss))
	for _, s := range ss {
		out = append(out, Selector(s))
	}
	return out
}

func (t Target) String() string {
	if t.Selector != "" {
		return "selector:" + t.Selector
	}
	return "phrase:" + t.Phrase
}

// Response is the metadata of a network response observed by a page.
type Response struct {
	URL string

	// Headers holds response headers keyed by lower-cased name.
	Headers map[string]string
}

// Header returns the value of the named header, case-insensitively.
func (r Response) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// NormalizeHeaders lower-cases header names.
func NormalizeHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Download is a file captured from a download event.
type Download interface {
	// SuggestedFilename is the name proposed by the server or the link.
	SuggestedFilename() string

	// URL is where the download came from.
	URL() string

	// SaveAs moves the downloaded content to path.
	SaveAs(path string) error
}

// Page is a single browser tab. Pages are not safe for concurrent use,
// except that response observers may be invoked from another goroutine.
type Page interface {
	// Navigate loads url and waits for DOM content, bounded by ctx.
	Navigate(ctx context.Context, url string) error

	// URL returns the current address.
	URL(ctx context.Context) (string, error)

	// VisibleText returns the rendered text of the document body.
	VisibleText(ctx context.Context) (string, error)

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	// Click clicks the first visible element matching target. It returns
	// ErrNoMatch when nothing visible matches.
	Click(ctx context.Context, target Target) error

	// ScrollTo scrolls to the given fraction of the document height.
	ScrollTo(ctx context.Context, fraction float64) error

	// ExpectDownload arms a download listener, runs trigger, and waits up
	// to timeout for a download to complete. If trigger returns false it
	// returns ErrNoDownload without waiting.
	ExpectDownload(ctx context.Context, timeout time.Duration, trigger func(context.Context) bool) (Download, error)

	// OnResponse registers fn to observe every response for the page's lifetime.
	OnResponse(fn func(Response))

	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the tab.
	Close() error
}

// Browser is a shared browser session that hands out pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}
