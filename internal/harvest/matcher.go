// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"time"

	"github.com/pdiddy/pdf-harvester/internal/browser"
)

// FindAndClick tries candidates in order and clicks the first visible match.
// It stops at the first successful click. A candidate that matches nothing,
// or whose click fails or exceeds timeout, is passed over. FindAndClick
// never returns an error; false means nothing was clicked.
func FindAndClick(ctx context.Context, page browser.Page, candidates []browser.Target, timeout time.Duration) bool {
	for _, c := range candidates {
		if ctx.Err() != nil {
			return false
		}
		if clickOne(ctx, page, c, timeout) {
			return true
		}
	}
	return false
}

func clickOne(ctx context.Context, page browser.Page, target browser.Target, timeout time.Duration) (clicked bool) {
	defer func() {
		// A misbehaving engine must not take the pipeline down with it.
		if recover() != nil {
			clicked = false
		}
	}()
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return page.Click(clickCtx, target) == nil
}
