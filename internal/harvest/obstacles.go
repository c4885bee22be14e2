// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"strings"

	"github.com/pdiddy/pdf-harvester/internal/browser"
	"github.com/pdiddy/pdf-harvester/internal/logger"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// Action tags recorded by the obstacle handlers.
const (
	ActionAcceptedCookies = "accepted_cookies"
	ActionClosedModal     = "closed_modal"
	ActionClosedModalX    = "closed_modal_x"
)

// HandleCookies clicks a cookie-consent button if one is visible.
func (h *Harvester) HandleCookies(ctx context.Context, page browser.Page, r *types.HarvestResult) bool {
	if !FindAndClick(ctx, page, browser.Phrases(h.cfg.Policy.CookieTexts...), h.cfg.Timeouts.Click) {
		return false
	}
	r.AddAction(ActionAcceptedCookies)
	return true
}

// CloseModals tries the dismissal phrases and then the close-icon selectors.
// The two sets are independent: a page can stack several dismissible layers.
func (h *Harvester) CloseModals(ctx context.Context, page browser.Page, r *types.HarvestResult) bool {
	closed := false
	if FindAndClick(ctx, page, browser.Phrases(h.cfg.Policy.CloseTexts...), h.cfg.Timeouts.Click) {
		r.AddAction(ActionClosedModal)
		closed = true
	}
	if FindAndClick(ctx, page, browser.Selectors(h.cfg.Policy.CloseSelectors...), h.cfg.Timeouts.Click) {
		r.AddAction(ActionClosedModalX)
		closed = true
	}
	return closed
}

// HandleInterstitial clicks through a known "you are leaving" page. A rule
// fires when the current URL contains its domain and the visible text
// contains its keyword.
func (h *Harvester) HandleInterstitial(ctx context.Context, page browser.Page, r *types.HarvestResult) bool {
	if len(h.cfg.Policy.InterstitialRules) == 0 {
		return false
	}
	current := strings.ToLower(h.currentURL(ctx, page))
	var text string
	for _, rule := range h.cfg.Policy.InterstitialRules {
		if rule.Domain == "" || !strings.Contains(current, strings.ToLower(rule.Domain)) {
			continue
		}
		if text == "" {
			text = strings.ToLower(h.visibleText(ctx, page))
		}
		if !strings.Contains(text, strings.ToLower(rule.Keyword)) {
			continue
		}
		if !FindAndClick(ctx, page, browser.Phrases(rule.Continue...), h.cfg.Timeouts.Click) {
			h.log.Debug("interstitial detected but no continue button", logger.String("domain", rule.Domain))
			continue
		}
		tag := rule.Tag
		if tag == "" {
			tag = "handled_interstitial"
		}
		r.AddAction(tag)
		pause(ctx, h.cfg.Pauses.Interstitial)
		return true
	}
	return false
}

// clearObstacles runs the best-effort steps between load and the gate
// check: interstitial bypass, lazy-load scrolling, cookies, modals.
func (h *Harvester) clearObstacles(ctx context.Context, page browser.Page, r *types.HarvestResult) {
	h.HandleInterstitial(ctx, page, r)
	h.scroll(ctx, page)
	h.HandleCookies(ctx, page, r)
	h.CloseModals(ctx, page, r)
}

// scroll nudges lazy-loaded content into the DOM: half way, then the bottom.
func (h *Harvester) scroll(ctx context.Context, page browser.Page) {
	h.scrollTo(ctx, page, 0.5)
	pause(ctx, h.cfg.Pauses.ScrollStep)
	h.scrollTo(ctx, page, 1.0)
	pause(ctx, h.cfg.Pauses.ScrollSettle)
}

func (h *Harvester) scrollTo(ctx context.Context, page browser.Page, fraction float64) {
	scrollCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	if err := page.ScrollTo(scrollCtx, fraction); err != nil {
		h.log.Debug("scroll failed", logger.Error(err))
	}
}
