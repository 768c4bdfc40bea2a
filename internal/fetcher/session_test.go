package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

func TestSessionReleaseRunsOnce(t *testing.T) {
	calls := 0
	s := NewSession(nil, SessionOptions{}, func() error {
		calls++
		return errors.New("browser already gone")
	})

	if err := s.Err(); err != nil {
		t.Fatalf("fresh session reported %v", err)
	}

	first := s.Release()
	second := s.Release()
	if calls != 1 {
		t.Fatalf("release called %d times, want 1", calls)
	}
	var se *types.SessionError
	if !errors.As(first, &se) || se.Stage != "release" {
		t.Errorf("expected release SessionError, got %v", first)
	}
	if first != second {
		t.Error("repeated Release should return the first result")
	}
	if !errors.Is(s.Err(), types.ErrSessionReleased) {
		t.Errorf("expected ErrSessionReleased, got %v", s.Err())
	}
}

func TestWithSessionReleasesOnFailure(t *testing.T) {
	released := 0
	acquire := func(ctx context.Context, opts SessionOptions) (*Session, error) {
		return NewSession(nil, opts, func() error { released++; return nil }), nil
	}

	boom := errors.New("extraction exploded")
	err := WithSession(context.Background(), acquire, SessionOptions{}, testLogger, func(*Session) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected stage error to propagate, got %v", err)
	}
	if released != 1 {
		t.Errorf("released %d times, want 1", released)
	}
}

func TestWithSessionReleasesOnPanic(t *testing.T) {
	released := 0
	acquire := func(ctx context.Context, opts SessionOptions) (*Session, error) {
		return NewSession(nil, opts, func() error { released++; return nil }), nil
	}

	func() {
		defer func() { _ = recover() }()
		_ = WithSession(context.Background(), acquire, SessionOptions{}, testLogger, func(*Session) error {
			panic("unexpected")
		})
	}()
	if released != 1 {
		t.Errorf("released %d times, want 1", released)
	}
}

func TestWithSessionAcquireFailure(t *testing.T) {
	ran := false
	acquire := func(context.Context, SessionOptions) (*Session, error) {
		return nil, errors.New("no chromium")
	}
	err := WithSession(context.Background(), acquire, SessionOptions{}, testLogger, func(*Session) error {
		ran = true
		return nil
	})
	var se *types.SessionError
	if !errors.As(err, &se) || se.Stage != "acquire" {
		t.Fatalf("expected acquire SessionError, got %v", err)
	}
	if ran {
		t.Error("stage function must not run without a session")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Browser.Headless = true
	pm := NewProxyManager([]string{"http://proxy.local:8080"}, "round_robin", testLogger)

	opts := OptionsFromConfig(cfg, pm)
	if !opts.Headless || !opts.Evasion {
		t.Errorf("flags not carried over: %+v", opts)
	}
	if opts.NavigationTimeout != cfg.Browser.NavigationTimeout {
		t.Errorf("navigation timeout = %s", opts.NavigationTimeout)
	}
	if opts.Proxy != "http://proxy.local:8080" {
		t.Errorf("proxy = %q", opts.Proxy)
	}
	if opts.Headers["Accept-Language"] == "" {
		t.Error("expected Accept-Language header")
	}
}

func TestProxyRoundRobin(t *testing.T) {
	pm := NewProxyManager([]string{"http://a:1", "http://b:2", "::bad"}, "round_robin", testLogger)
	if pm.Count() != 2 {
		t.Fatalf("expected invalid URL skipped, got %d proxies", pm.Count())
	}
	first, second, third := pm.Next(), pm.Next(), pm.Next()
	if first.Host != "a:1" || second.Host != "b:2" || third.Host != "a:1" {
		t.Errorf("unexpected rotation: %s %s %s", first.Host, second.Host, third.Host)
	}

	pm.MarkFailed(first, errors.New("refused"))
	if pm.HealthyCount() != 1 {
		t.Errorf("healthy = %d, want 1", pm.HealthyCount())
	}
	if got := pm.Next(); got.Host != "b:2" {
		t.Errorf("expected only b:2 in rotation, got %s", got.Host)
	}
}

func TestFingerprintDefaults(t *testing.T) {
	fp := NewFingerprint("UA/1.0", 0, 0)
	if fp.WindowSize() != "1366,768" {
		t.Errorf("window size = %q", fp.WindowSize())
	}
	if fp.HardwareConcurrency < 4 || fp.HardwareConcurrency > 16 {
		t.Errorf("hardware concurrency out of range: %d", fp.HardwareConcurrency)
	}
}
