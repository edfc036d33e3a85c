package browser

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/playwright-community/playwright-go"
)

// Session is a live browser context pinned to one domain. Reused across every
// job for that domain until shutdown or idle eviction, so the domain sees one
// consistent fingerprint instead of a new visitor per page.
type Session struct {
	Domain      string
	Context     playwright.BrowserContext
	Fingerprint Fingerprint
	CreatedAt   time.Time
}

// NewPage opens a page in the session's context with the default timeout
// applied.
func (s *Session) NewPage(timeout time.Duration) (playwright.Page, error) {
	page, err := s.Context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))
	return page, nil
}

type Options struct {
	Headless    bool
	Timeout     time.Duration
	MaxSessions int
	Pools       Pools
	Seed        int64
}

func DefaultOptions() Options {
	return Options{
		Headless:    true,
		Timeout:     30 * time.Second,
		MaxSessions: 8,
		Pools:       DefaultPools(),
		Seed:        time.Now().UnixNano(),
	}
}

// SessionManager owns one shared browser process and a bounded pool of
// per-domain contexts. Eviction from the pool closes the context, which is
// the domain idle-eviction path.
type SessionManager struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	opts     Options
	sessions *lru.Cache[string, *Session]
	rng      *rand.Rand
	mu       sync.Mutex
	logger   *slog.Logger
}

func NewSessionManager(opts Options, logger *slog.Logger) (*SessionManager, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultOptions().MaxSessions
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if len(opts.Pools.UserAgents) == 0 {
		opts.Pools = DefaultPools()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	m := &SessionManager{
		pw:      pw,
		browser: b,
		opts:    opts,
		rng:     rand.New(rand.NewSource(opts.Seed)),
		logger:  logger.With("component", "session_manager"),
	}
	cache, err := lru.NewWithEvict(opts.MaxSessions, m.onEvict)
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	m.sessions = cache
	return m, nil
}

func (m *SessionManager) onEvict(domain string, s *Session) {
	m.logger.Info("evicting browser session", "domain", domain, "age", time.Since(s.CreatedAt))
	if err := s.Context.Close(); err != nil {
		m.logger.Error("failed to close evicted context", "domain", domain, "error", err)
	}
}

// GetOrCreate returns the live session for the domain or creates one with a
// freshly drawn fingerprint.
func (m *SessionManager) GetOrCreate(domain string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions.Get(domain); ok {
		return s, nil
	}

	fp := m.opts.Pools.Pick(m.rng)
	ctx, err := m.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(fp.UserAgent),
		Locale:            playwright.String(fp.Locale),
		TimezoneId:        playwright.String(fp.TimezoneID),
		DeviceScaleFactor: playwright.Float(fp.DeviceScale),
		JavaScriptEnabled: playwright.Bool(true),
		AcceptDownloads:   playwright.Bool(false),
		Viewport: &playwright.Size{
			Width:  fp.ViewportWidth,
			Height: fp.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": fp.AcceptLanguage,
			"DNT":             "1",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context for %s: %w", domain, err)
	}

	if err := ctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		ctx.Close()
		return nil, fmt.Errorf("failed to install stealth script: %w", err)
	}

	s := &Session{
		Domain:      domain,
		Context:     ctx,
		Fingerprint: fp,
		CreatedAt:   time.Now(),
	}
	m.sessions.Add(domain, s)
	m.logger.Info("created browser session",
		"domain", domain,
		"viewport", fmt.Sprintf("%dx%d", fp.ViewportWidth, fp.ViewportHeight),
		"locale", fp.Locale,
		"timezone", fp.TimezoneID)
	return s, nil
}

// Close tears down the session for one domain.
func (m *SessionManager) Close(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Remove(domain)
}

// CloseAll tears down every session and the shared browser process.
func (m *SessionManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Purge()

	var errs []error
	if err := m.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := m.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
