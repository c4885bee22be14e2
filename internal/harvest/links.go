// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// Link scoring weights.
const (
	scorePDFSuffix = 10
	scorePDFInURL  = 5
	scoreKeyword   = 3
)

// LinkOptions controls candidate selection.
type LinkOptions struct {
	Strategy types.LinkStrategy
	Keywords []string
	Max      int
	MinScore int
}

func linkOptions(cfg types.HarvestConfig) LinkOptions {
	return LinkOptions{
		Strategy: cfg.LinkStrategy,
		Keywords: cfg.Policy.FallbackKeywords,
		Max:      cfg.MaxCandidates,
		MinScore: cfg.MinLinkScore,
	}
}

// ScoreLink returns the additive score for an anchor: +10 when the path ends
// in .pdf, +5 when the URL contains "pdf", +3 when the text or URL contains
// a keyword.
func ScoreLink(href, text string, keywords []string) int {
	score := 0
	lowerHref := strings.ToLower(href)
	if IsPDFURL(href) {
		score += scorePDFSuffix
	}
	if strings.Contains(lowerHref, "pdf") {
		score += scorePDFInURL
	}
	if containsAny(text, keywords) || containsAny(href, keywords) {
		score += scoreKeyword
	}
	return score
}

// RankLinks parses html, resolves every anchor against baseURL and returns
// all of them scored, highest first. Ties keep document order.
func RankLinks(html, baseURL string, keywords []string) ([]types.CandidateLink, error) {
	anchors, err := parseAnchors(html, baseURL)
	if err != nil {
		return nil, err
	}
	for i := range anchors {
		anchors[i].Score = ScoreLink(anchors[i].Href, anchors[i].Text, keywords)
	}
	sort.SliceStable(anchors, func(i, j int) bool {
		return anchors[i].Score > anchors[j].Score
	})
	return anchors, nil
}

// CollectLinks returns up to opts.Max fallback candidates from html.
func CollectLinks(html, baseURL string, opts LinkOptions) ([]types.CandidateLink, error) {
	var (
		links []types.CandidateLink
		err   error
	)
	switch opts.Strategy {
	case types.LinkPDFFirst:
		links, err = pdfFirstLinks(html, baseURL, opts.Keywords)
	default:
		links, err = RankLinks(html, baseURL, opts.Keywords)
		if err == nil {
			kept := links[:0]
			for _, l := range links {
				if l.Score >= opts.MinScore {
					kept = append(kept, l)
				}
			}
			links = kept
		}
	}
	if err != nil {
		return nil, err
	}
	if opts.Max > 0 && len(links) > opts.Max {
		links = links[:opts.Max]
	}
	return links, nil
}

// pdfFirstLinks keeps .pdf hrefs when there are any, otherwise hrefs whose
// URL contains a keyword. Link text is not consulted.
func pdfFirstLinks(html, baseURL string, keywords []string) ([]types.CandidateLink, error) {
	anchors, err := parseAnchors(html, baseURL)
	if err != nil {
		return nil, err
	}
	var pdfs, keyworded []types.CandidateLink
	for _, a := range anchors {
		a.Score = ScoreLink(a.Href, "", keywords)
		switch {
		case IsPDFURL(a.Href):
			pdfs = append(pdfs, a)
		case containsAny(a.Href, keywords):
			keyworded = append(keyworded, a)
		}
	}
	if len(pdfs) > 0 {
		return pdfs, nil
	}
	return keyworded, nil
}

// parseAnchors extracts deduplicated absolute http(s) anchors in document order.
func parseAnchors(html, baseURL string) ([]types.CandidateLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing page HTML: %w", err)
	}
	base, _ := url.Parse(baseURL)

	seen := make(map[string]bool)
	var out []types.CandidateLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := resolveHref(base, href)
		if !ok || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, types.CandidateLink{
			Href:     abs,
			Text:     strings.Join(strings.Fields(s.Text()), " "),
			Position: len(out),
		})
	})
	return out, nil
}

func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	ref.Fragment = ""
	return ref.String(), true
}
