package adapters

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"
)

// scrollThroughPage scrolls down in steps with short pauses, enough to fire
// lazy-image loaders without looking like a single synthetic jump.
func scrollThroughPage(ctx context.Context, page playwright.Page) error {
	for i := 0; i < 4; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := page.Evaluate(`window.scrollBy(0, window.innerHeight * 0.8)`); err != nil {
			return err
		}
		time.Sleep(300 * time.Millisecond)
	}
	_, err := page.Evaluate(`window.scrollTo(0, 0)`)
	return err
}

// waitForSelector waits for the selector with a bounded timeout; not finding
// it is not fatal, the cascade may still succeed on structured data.
func waitForSelector(page playwright.Page, selector string, timeoutMs float64) {
	page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(timeoutMs),
	})
}

// settle gives AJAX-rendered content a fixed grace period.
func settle(ctx context.Context, page playwright.Page, ms int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	}
}
