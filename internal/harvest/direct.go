// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/pdf-harvester/internal/httputil"
	"github.com/pdiddy/pdf-harvester/internal/logger"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// ErrNotPDF is returned by Fetch when the response is neither labelled nor
// shaped as a PDF.
var ErrNotPDF = errors.New("response is not a PDF")

// ActionFetchedDirect is recorded when a PDF was captured over plain HTTP.
const ActionFetchedDirect = "fetched_direct_pdf"

const (
	pdfMagic           = "%PDF"
	directFetchRetries = 2
)

// DirectFetcher downloads PDF URLs without the browser. It covers pages
// that serve the PDF inline and links whose navigation the browser aborts
// because the response is a download.
type DirectFetcher struct {
	client    *http.Client
	userAgent string
}

// NewDirectFetcher returns a fetcher using client. A nil client uses
// http.DefaultClient.
func NewDirectFetcher(client *http.Client, userAgent string) *DirectFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = types.DefaultUserAgent
	}
	return &DirectFetcher{client: client, userAgent: userAgent}
}

// Fetch downloads pdfURL to dest through a temporary file. The body is
// accepted when the content-type says PDF or the first bytes are %PDF.
func (f *DirectFetcher) Fetch(ctx context.Context, pdfURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.DoWithRetry(ctx, f.client, req, directFetchRetries)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, pdfURL)
	}

	body := bufio.NewReader(resp.Body)
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "application/pdf") {
		head, _ := body.Peek(len(pdfMagic))
		if !bytes.Equal(head, []byte(pdfMagic)) {
			return fmt.Errorf("%s: %w", pdfURL, ErrNotPDF)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating download dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".harvest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// fetchDirect captures pdfURL for institution when direct fetching is
// enabled. With DirectFetch off it always reports failure.
func (h *Harvester) fetchDirect(ctx context.Context, pdfURL, institution string, r *types.HarvestResult) (string, bool) {
	if !h.cfg.DirectFetch || pdfURL == "" {
		return "", false
	}
	fetchCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	dest := filepath.Join(h.cfg.DownloadDir, FileName(institution, h.cfg.FileSuffix, h.now()))
	if err := h.fetcher.Fetch(fetchCtx, pdfURL, dest); err != nil {
		h.log.Debug("direct fetch failed", logger.String("pdf_url", pdfURL), logger.Error(err))
		return "", false
	}
	r.AddAction(ActionFetchedDirect)
	return dest, true
}
