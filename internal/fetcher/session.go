package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// SessionOptions controls how a browser session is acquired.
type SessionOptions struct {
	Headless          bool
	Evasion           bool
	NavigationTimeout time.Duration
	UserAgent         string
	WindowWidth       int
	WindowHeight      int
	BrowserBin        string
	NoSandbox         bool
	UserDataDir       string
	Proxy             string
	Headers           map[string]string
}

// OptionsFromConfig builds session options from the browser config. The
// proxy manager may be nil.
func OptionsFromConfig(cfg *config.Config, proxies *ProxyManager) SessionOptions {
	opts := SessionOptions{
		Headless:          cfg.Browser.Headless,
		Evasion:           cfg.Browser.Evasion,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		UserAgent:         cfg.Browser.UserAgent,
		WindowWidth:       cfg.Browser.WindowWidth,
		WindowHeight:      cfg.Browser.WindowHeight,
		BrowserBin:        cfg.Browser.BrowserBin,
		NoSandbox:         cfg.Browser.NoSandbox,
		UserDataDir:       cfg.Browser.UserDataDir,
		Headers: map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
		},
	}
	if proxies != nil {
		if u := proxies.Next(); u != nil {
			opts.Proxy = u.String()
		}
	}
	return opts
}

// Session owns one browser and its single active page for the lifetime of
// a run. Release is idempotent; the underlying release runs exactly once.
type Session struct {
	page    Page
	opts    SessionOptions
	release func() error

	once       sync.Once
	mu         sync.Mutex
	released   bool
	releaseErr error
}

// NewSession wraps a page and the function that tears it down.
func NewSession(page Page, opts SessionOptions, release func() error) *Session {
	return &Session{page: page, opts: opts, release: release}
}

// Page returns the session's page.
func (s *Session) Page() Page { return s.page }

// Options returns the options the session was acquired with.
func (s *Session) Options() SessionOptions { return s.opts }

// Err returns ErrSessionReleased once the session has been released.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return types.ErrSessionReleased
	}
	return nil
}

// Release tears the session down. Subsequent calls return the first result.
func (s *Session) Release() error {
	s.once.Do(func() {
		var err error
		if s.release != nil {
			err = s.release()
		}
		s.mu.Lock()
		s.released = true
		if err != nil {
			s.releaseErr = &types.SessionError{Stage: "release", Err: err}
		}
		s.mu.Unlock()
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseErr
}

// AcquireFunc acquires a fresh session. Implementations must not share
// browsers across calls.
type AcquireFunc func(ctx context.Context, opts SessionOptions) (*Session, error)

// WithSession acquires a session, runs fn with it, and releases it whatever
// fn returns. Acquisition failure is returned wrapped in a SessionError;
// release failure is logged only.
func WithSession(ctx context.Context, acquire AcquireFunc, opts SessionOptions, logger *slog.Logger, fn func(*Session) error) error {
	s, err := acquire(ctx, opts)
	if err != nil {
		var se *types.SessionError
		if errors.As(err, &se) {
			return err
		}
		return &types.SessionError{Stage: "acquire", Err: err}
	}

	defer func() {
		if err := s.Release(); err != nil {
			logger.Warn("session release failed", "error", err)
		} else {
			logger.Debug("session released")
		}
	}()

	return fn(s)
}

// NewRodAcquirer returns an AcquireFunc that launches a local Chromium via
// Rod. With evasion on, the page is created through go-rod/stealth and a
// per-session fingerprint is injected before any page script runs.
func NewRodAcquirer(logger *slog.Logger) AcquireFunc {
	logger = logger.With("component", "session")

	return func(ctx context.Context, opts SessionOptions) (*Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, &types.SessionError{Stage: "acquire", Err: err}
		}

		fp := NewFingerprint(opts.UserAgent, opts.WindowWidth, opts.WindowHeight)

		l := launcher.New().
			Headless(opts.Headless).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("window-size", fp.WindowSize())
		if opts.NoSandbox {
			l = l.NoSandbox(true)
		}
		if opts.BrowserBin != "" {
			l = l.Bin(opts.BrowserBin)
		}
		if opts.UserDataDir != "" {
			l = l.UserDataDir(opts.UserDataDir)
		}
		if opts.Proxy != "" {
			l = l.Proxy(opts.Proxy)
		}
		if opts.Evasion {
			l = l.Set("disable-blink-features", "AutomationControlled")
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, &types.SessionError{Stage: "launch", Err: err}
		}

		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			l.Kill()
			l.Cleanup()
			return nil, &types.SessionError{Stage: "connect", Err: err}
		}

		release := func() error {
			err := browser.Close()
			l.Cleanup()
			return err
		}

		page, err := openPage(browser, opts, fp)
		if err != nil {
			if rerr := release(); rerr != nil {
				logger.Debug("release after failed page setup", "error", rerr)
			}
			return nil, &types.SessionError{Stage: "page", Err: err}
		}

		logger.Info("browser session acquired",
			"headless", opts.Headless,
			"evasion", opts.Evasion,
			"proxy", opts.Proxy != "",
		)

		return NewSession(NewRodPage(page, fp.UserAgent, logger), opts, release), nil
	}
}

func openPage(browser *rod.Browser, opts SessionOptions, fp *Fingerprint) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if opts.Evasion {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if fp.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      fp.UserAgent,
			AcceptLanguage: fp.Language,
		}); err != nil {
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.ViewportWidth,
		Height:            fp.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	if opts.Evasion {
		if _, err := page.EvalOnNewDocument(fp.JS()); err != nil {
			return nil, fmt.Errorf("inject fingerprint: %w", err)
		}
	}

	if len(opts.Headers) > 0 {
		if err := setExtraHeaders(page, opts.Headers); err != nil {
			return nil, fmt.Errorf("set headers: %w", err)
		}
	}
	return page, nil
}
