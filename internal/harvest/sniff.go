// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"strings"
	"sync"

	"github.com/pdiddy/pdf-harvester/internal/browser"
)

// SniffState remembers the most recent response on a page whose headers
// identify a PDF. It lives as long as the page it is attached to.
type SniffState struct {
	mu         sync.Mutex
	lastPDFURL string
}

// AttachSniffer registers a response observer on page and returns its state.
func AttachSniffer(page browser.Page) *SniffState {
	s := &SniffState{}
	page.OnResponse(s.Observe)
	return s
}

// Observe records resp if it looks like a PDF. Most recent wins.
func (s *SniffState) Observe(resp browser.Response) {
	if !IsPDFResponse(resp) {
		return
	}
	s.mu.Lock()
	s.lastPDFURL = resp.URL
	s.mu.Unlock()
}

// LastPDFURL returns the most recent PDF response URL, or "".
func (s *SniffState) LastPDFURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPDFURL
}

// IsPDFResponse inspects content-type and content-disposition only.
func IsPDFResponse(resp browser.Response) bool {
	ct := strings.ToLower(headerValue(resp, "content-type"))
	cd := strings.ToLower(headerValue(resp, "content-disposition"))
	return strings.Contains(ct, "application/pdf") || strings.Contains(cd, ".pdf")
}

func headerValue(resp browser.Response, name string) string {
	if v := resp.Header(name); v != "" {
		return v
	}
	for k, v := range resp.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// IsPDFURL reports whether u, with query and fragment removed, ends in .pdf.
func IsPDFURL(u string) bool {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(strings.ToLower(u), ".pdf")
}
