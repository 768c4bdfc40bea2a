package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrMissingURL       = errors.New("missing target URL")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrUnknownSite      = errors.New("unknown site profile")
	ErrSessionReleased  = errors.New("session already released")
	ErrNoDetailLink     = errors.New("record has no detail link")
	ErrDetailMissing    = errors.New("expected detail content not found")
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrNoNavigation     = errors.New("form submit did not navigate")
)

// ConfigError is a fatal configuration problem. The run aborts before any
// session is acquired.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error (%s): %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SessionError wraps a failure to acquire a browser session.
type SessionError struct {
	Stage string
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session error at %s: %v", e.Stage, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// NavigationError wraps navigation and wait failures on a page.
type NavigationError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *NavigationError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("navigation to %s failed (timeout %s): %v", e.URL, e.Timeout, e.Err)
	}
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractError wraps errors that occur while reading records off a page.
type ExtractError struct {
	Site string
	Err  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract error (%s): %v", e.Site, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// DetailError describes a recoverable per-item enhancement failure.
type DetailError struct {
	Index int
	URL   string
	Err   error
}

func (e *DetailError) Error() string {
	return fmt.Sprintf("detail %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *DetailError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the normalization pipeline.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
