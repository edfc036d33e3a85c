// Package engine composes the rate limiter, stealth sessions, extraction
// cascade and normalizer into the single FetchAndExtract operation workers
// run per job.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/outfitly/stylescout/internal/adapters"
	"github.com/outfitly/stylescout/internal/browser"
	"github.com/outfitly/stylescout/internal/extract"
	"github.com/outfitly/stylescout/internal/models"
	"github.com/outfitly/stylescout/internal/normalize"
	"github.com/outfitly/stylescout/internal/queue"
	"github.com/outfitly/stylescout/internal/ratelimit"
	"github.com/playwright-community/playwright-go"
)

// ErrExtractionFailed means no cascade strategy produced a candidate.
// Recoverable: render timing varies between attempts.
var ErrExtractionFailed = errors.New("extraction produced no candidate")

type Options struct {
	NavTimeout time.Duration
	NavRetries int
}

func DefaultOptions() Options {
	return Options{
		NavTimeout: 30 * time.Second,
		NavRetries: 3,
	}
}

// Progress receives stage transitions for reporting back to the queue.
type Progress func(stage string)

type Engine struct {
	limiter  *ratelimit.Limiter
	sessions *browser.SessionManager
	opts     Options
	logger   *slog.Logger
}

func New(limiter *ratelimit.Limiter, sessions *browser.SessionManager, opts Options, logger *slog.Logger) *Engine {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = DefaultOptions().NavTimeout
	}
	if opts.NavRetries <= 0 {
		opts.NavRetries = DefaultOptions().NavRetries
	}
	return &Engine{
		limiter:  limiter,
		sessions: sessions,
		opts:     opts,
		logger:   logger.With("component", "engine"),
	}
}

// FetchAndExtract loads the page through the domain's stealth session and
// runs the adapter's cascade over the captured content. Validation
// rejections come back as *normalize.RejectError; everything else is
// recoverable at the job level.
func (e *Engine) FetchAndExtract(ctx context.Context, pageURL string, adapter adapters.Adapter, progress Progress) (*models.ScrapedProduct, error) {
	if progress == nil {
		progress = func(string) {}
	}

	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", pageURL)
	}
	domain := u.Host

	if err := e.limiter.Acquire(ctx, domain); err != nil {
		return nil, fmt.Errorf("rate limit wait aborted: %w", err)
	}

	session, err := e.sessions.GetOrCreate(domain)
	if err != nil {
		return nil, fmt.Errorf("failed to get session for %s: %w", domain, err)
	}

	page, err := session.NewPage(e.opts.NavTimeout)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	progress(queue.StageNavigating)
	if err := e.navigateWithRetry(ctx, page, pageURL); err != nil {
		return nil, err
	}
	e.humanize(ctx, page)

	if err := adapter.PreparePage(ctx, page); err != nil {
		e.logger.Warn("page preparation failed", "url", pageURL, "error", err)
	}

	progress(queue.StageExtracting)
	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to capture page content: %w", err)
	}
	snapshot, err := extract.NewPage(pageURL, content)
	if err != nil {
		return nil, err
	}
	candidate := extract.Run(snapshot, adapter.Strategies())
	if candidate == nil {
		return nil, fmt.Errorf("%w: %s", ErrExtractionFailed, pageURL)
	}
	e.logger.Debug("extraction candidate produced", "url", pageURL, "strategy", candidate.Source)

	progress(queue.StageValidating)
	product, err := normalize.Validate(candidate, pageURL, adapter)
	if err != nil {
		return nil, err
	}
	e.logger.Info("product extracted",
		"url", pageURL,
		"brand", product.Brand,
		"external_id", product.ExternalID,
		"strategy", candidate.Source)
	return product, nil
}

func (e *Engine) navigateWithRetry(ctx context.Context, page playwright.Page, pageURL string) error {
	var lastErr error
	for i := 0; i < e.opts.NavRetries; i++ {
		if i > 0 {
			e.logger.Info("retrying navigation", "attempt", i+1, "url", pageURL)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * time.Second):
			}
		}

		_, err := page.Goto(pageURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(e.opts.NavTimeout.Milliseconds())),
		})
		if err != nil {
			lastErr = err
			e.logger.Error("navigation failed", "url", pageURL, "attempt", i+1, "error", err)
			continue
		}

		blocked, err := e.challengeDetected(page)
		if err != nil {
			lastErr = err
			continue
		}
		if blocked {
			lastErr = fmt.Errorf("bot challenge page served for %s", pageURL)
			e.logger.Warn("bot challenge detected", "url", pageURL, "attempt", i+1)
			continue
		}
		return nil
	}
	return fmt.Errorf("navigation failed after %d attempts: %w", e.opts.NavRetries, lastErr)
}

var challengeMarkers = []string{
	"verify you are human",
	"are you a robot",
	"access denied",
	"pardon our interruption",
	"unusual traffic",
	"cf-challenge",
}

// challengeDetected checks the served page for anti-bot interstitials. A
// challenge is a transient navigation failure: the next attempt goes out
// under the same fingerprint after a pause.
func (e *Engine) challengeDetected(page playwright.Page) (bool, error) {
	title, err := page.Title()
	if err != nil {
		return false, fmt.Errorf("failed to read page title: %w", err)
	}
	content, err := page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to read page content: %w", err)
	}
	return challengeInContent(title, content), nil
}

func challengeInContent(title, content string) bool {
	haystack := strings.ToLower(title + " " + content)
	for _, marker := range challengeMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

// humanize adds a little mouse and scroll noise before extraction. Failures
// are ignored; this is cosmetic traffic shaping, abandoned as soon as the
// job context ends.
func (e *Engine) humanize(ctx context.Context, page playwright.Page) {
	for i := 0; i < 3; i++ {
		x := float64(100 + rand.Intn(800))
		y := float64(100 + rand.Intn(500))
		page.Mouse().Move(x, y)
		if !pause(ctx, time.Duration(150+rand.Intn(250))*time.Millisecond) {
			return
		}
	}
	page.Evaluate(`window.scrollBy(0, Math.random() * 300)`)
}

// pause waits for d, reporting false when ctx ends first.
func pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Shutdown tears down the browser sessions.
func (e *Engine) Shutdown() error {
	return e.sessions.CloseAll()
}
