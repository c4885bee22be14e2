// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pdf-harvester/internal/browser/browsertest"
)

func TestHandleCookies(t *testing.T) {
	h := newTestHarvester(browsertest.New(), testConfig(t))
	page := browsertest.NewPage("https://example.org", &browsertest.Site{
		Elements: []*browsertest.Element{{Role: "button", Name: "Accept all", Remove: true}},
	})
	r := newResult()

	assert.True(t, h.HandleCookies(context.Background(), page, r))
	assert.Equal(t, []string{ActionAcceptedCookies}, r.Actions)

	// The banner is gone; a second pass is a no-op.
	assert.False(t, h.HandleCookies(context.Background(), page, r))
	assert.Equal(t, []string{ActionAcceptedCookies}, r.Actions)
}

func TestCloseModals_TriesBothSets(t *testing.T) {
	h := newTestHarvester(browsertest.New(), testConfig(t))
	page := browsertest.NewPage("https://example.org", &browsertest.Site{
		Elements: []*browsertest.Element{
			{Role: "button", Name: "No thanks", Remove: true},
			{Role: "button", Name: "", Selectors: []string{"button[aria-label='Close']"}, Remove: true},
		},
	})
	r := newResult()

	assert.True(t, h.CloseModals(context.Background(), page, r))
	assert.Equal(t, []string{ActionClosedModal, ActionClosedModalX}, r.Actions)
	assert.Equal(t, []string{"No thanks", "@button[aria-label='Close']"}, page.Clicks())
}

func TestObstacleHandlers_IdempotentOnEmptyPage(t *testing.T) {
	h := newTestHarvester(browsertest.New(), testConfig(t))
	page := browsertest.NewPage("https://example.org", &browsertest.Site{Text: "Quarterly commentary"})
	r := newResult()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.False(t, h.HandleCookies(ctx, page, r))
		assert.False(t, h.CloseModals(ctx, page, r))
		assert.False(t, h.HandleInterstitial(ctx, page, r))
	}
	assert.Empty(t, r.Actions)
	assert.Empty(t, page.Clicks())
}

func TestHandleInterstitial(t *testing.T) {
	b := browsertest.New()
	b.AddSite("https://example.org/real", &browsertest.Site{Text: "Outlook 2026"})
	cfg := testConfig(t)
	h := newTestHarvester(b, cfg)

	page, err := b.NewPage(context.Background())
	require.NoError(t, err)
	b.AddSite("https://www.linkedin.com/safety/go?url=x", &browsertest.Site{
		Text: "You are leaving LinkedIn",
		Elements: []*browsertest.Element{
			{Role: "button", Name: "Continue", NavigateTo: "https://example.org/real"},
		},
	})
	require.NoError(t, page.Navigate(context.Background(), "https://www.linkedin.com/safety/go?url=x"))
	r := newResult()

	assert.True(t, h.HandleInterstitial(context.Background(), page, r))
	assert.Equal(t, []string{"handled_linkedin_redirect"}, r.Actions)

	u, err := page.URL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/real", u)
}

func TestHandleInterstitial_RequiresKeyword(t *testing.T) {
	h := newTestHarvester(browsertest.New(), testConfig(t))
	page := browsertest.NewPage("https://www.linkedin.com/company/acme", &browsertest.Site{
		Text:     "Acme Capital on LinkedIn",
		Elements: []*browsertest.Element{{Role: "button", Name: "Continue"}},
	})
	r := newResult()

	assert.False(t, h.HandleInterstitial(context.Background(), page, r))
	assert.Empty(t, page.Clicks())
}
