// Package browser bootstraps analytics sessions by loading the target page in
// a headless Chromium driven by Playwright.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/torosent/ga4sim/internal/failure"
	"github.com/torosent/ga4sim/internal/job"
)

const opBootstrap = "bootstrap"

// ErrNoClientID is returned when the page never set the analytics client cookie.
var ErrNoClientID = errors.New("analytics client cookie not set")

// ErrClosed is returned by Bootstrap after Close.
var ErrClosed = errors.New("bootstrapper closed")

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Config holds bootstrapper settings.
type Config struct {
	Target        string
	MeasurementID string
	// NavigationTimeout bounds the page load; defaults to 30s.
	NavigationTimeout time.Duration
	// CookieWait bounds how long to poll for the analytics cookies after the
	// DOM is parsed; defaults to 5s.
	CookieWait time.Duration
	Headful    bool
	Seed       int64
}

// Bootstrapper produces sessions from real page visits. A single browser
// process is launched lazily and shared; each bootstrap gets its own isolated
// browser context.
type Bootstrapper struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	closed  bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a bootstrapper. The browser is not started until the first
// Bootstrap call.
func New(cfg Config, log zerolog.Logger) (*Bootstrapper, error) {
	if strings.TrimSpace(cfg.Target) == "" {
		return nil, failure.FatalConfig(opBootstrap, errors.New("target url is required"))
	}
	if strings.TrimSpace(cfg.MeasurementID) == "" {
		return nil, failure.FatalConfig(opBootstrap, errors.New("measurement id is required"))
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.CookieWait <= 0 {
		cfg.CookieWait = 5 * time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Bootstrapper{cfg: cfg, log: log, rng: rand.New(rand.NewSource(seed))}, nil
}

// Bootstrap loads the target page, waits for the DOM to be parsed and reads
// the analytics session from its cookies. With engage set the page is kept
// open for params.Duration while scrolling and moving the mouse.
func (b *Bootstrapper) Bootstrap(ctx context.Context, params job.SessionParams, engage bool) (job.Session, error) {
	if err := ctx.Err(); err != nil {
		return job.Session{}, err
	}
	browser, err := b.ensureBrowser()
	if err != nil {
		return job.Session{}, err
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:  &playwright.Size{Width: 1920, Height: 1080},
		UserAgent: playwright.String(b.userAgent()),
	})
	if err != nil {
		return job.Session{}, failure.ResourceExhausted(opBootstrap, fmt.Errorf("new context: %w", err))
	}
	defer func() {
		if cerr := bctx.Close(); cerr != nil {
			b.log.Debug().Err(cerr).Msg("close browser context")
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return job.Session{}, failure.ResourceExhausted(opBootstrap, fmt.Errorf("new page: %w", err))
	}

	if _, err := page.Goto(b.cfg.Target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(b.navigationTimeout(ctx).Milliseconds())),
	}); err != nil {
		return job.Session{}, classifyNavigation(err)
	}

	if engage {
		if err := b.engage(ctx, page, params.Duration); err != nil {
			return job.Session{}, err
		}
	}

	session, err := b.waitForSession(ctx, bctx)
	if err != nil {
		return job.Session{}, err
	}
	b.describePage(&session, page)
	return session, nil
}

// pageInfo is the part of a page the session records.
type pageInfo interface {
	Title() (string, error)
	URL() string
}

func (b *Bootstrapper) describePage(session *job.Session, page pageInfo) {
	title, err := page.Title()
	if err != nil {
		b.log.Debug().Err(err).Str("client_id", session.ID).Msg("read page title")
	}
	session.PageTitle = title
	session.PageLocation = page.URL()
}

// Close shuts the shared browser down. It is safe to call more than once.
func (b *Bootstrapper) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true

	var errs []error
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		b.browser = nil
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
		b.pw = nil
	}
	return errors.Join(errs...)
}

func (b *Bootstrapper) ensureBrowser() (playwright.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, failure.FatalConfig(opBootstrap, ErrClosed)
	}
	if b.browser != nil && b.browser.IsConnected() {
		return b.browser, nil
	}

	if b.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			return nil, failure.ResourceExhausted(opBootstrap, fmt.Errorf("playwright run: %w", err))
		}
		b.pw = pw
	}
	browser, err := b.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!b.cfg.Headful),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-extensions",
			"--no-first-run",
		},
	})
	if err != nil {
		return nil, failure.ResourceExhausted(opBootstrap, fmt.Errorf("launch: %w", err))
	}
	b.log.Info().Bool("headless", !b.cfg.Headful).Msg("browser launched")
	b.browser = browser
	return browser, nil
}

func (b *Bootstrapper) navigationTimeout(ctx context.Context) time.Duration {
	timeout := b.cfg.NavigationTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	return timeout
}

func (b *Bootstrapper) waitForSession(ctx context.Context, bctx playwright.BrowserContext) (job.Session, error) {
	deadline := time.Now().Add(b.cfg.CookieWait)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		raw, err := bctx.Cookies()
		if err != nil {
			return job.Session{}, failure.TransientNetwork(opBootstrap, fmt.Errorf("read cookies: %w", err))
		}
		cookies := make([]Cookie, 0, len(raw))
		for _, c := range raw {
			cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
		}
		if session, ok := SessionFromCookies(cookies, b.cfg.MeasurementID, time.Now()); ok {
			return session, nil
		}
		if time.Now().After(deadline) {
			return job.Session{}, failure.TransientNetwork(opBootstrap, ErrNoClientID)
		}
		select {
		case <-ctx.Done():
			return job.Session{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bootstrapper) engage(ctx context.Context, page playwright.Page, d time.Duration) error {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
		scroll, pause, x, y := b.gesture()
		if _, err := page.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", scroll)); err != nil {
			return classifyNavigation(err)
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if err := page.Mouse().Move(float64(x), float64(y)); err != nil {
			return classifyNavigation(err)
		}
	}
	return nil
}

func (b *Bootstrapper) gesture() (scroll int, pause time.Duration, x, y int) {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	scroll = 100 + b.rng.Intn(300)
	pause = 500*time.Millisecond + time.Duration(b.rng.Intn(1000))*time.Millisecond
	x = 100 + b.rng.Intn(800)
	y = 100 + b.rng.Intn(400)
	return
}

func (b *Bootstrapper) userAgent() string {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return userAgents[b.rng.Intn(len(userAgents))]
}

// classifyNavigation maps driver errors to the failure taxonomy: timeouts
// and network-level page errors are transient, the rest fatal.
func classifyNavigation(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return failure.TransientNetwork(opBootstrap, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "net::"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection"):
		return failure.TransientNetwork(opBootstrap, err)
	case strings.Contains(msg, "target closed"),
		strings.Contains(msg, "browser has been closed"):
		return failure.ResourceExhausted(opBootstrap, err)
	default:
		return failure.FatalConfig(opBootstrap, err)
	}
}
