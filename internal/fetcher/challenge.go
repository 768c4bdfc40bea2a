package fetcher

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ChallengeKind identifies the bot-challenge widget present on a page.
type ChallengeKind string

const (
	ChallengeNone      ChallengeKind = ""
	ChallengeReCaptcha ChallengeKind = "recaptcha"
	ChallengeHCaptcha  ChallengeKind = "hcaptcha"
	ChallengeTurnstile ChallengeKind = "turnstile"
)

// ChallengeMarker is a selector whose presence indicates an active challenge.
type ChallengeMarker struct {
	Kind     ChallengeKind
	Selector string
}

// DefaultChallengeMarkers covers the challenge frames seen on target sites.
var DefaultChallengeMarkers = []ChallengeMarker{
	{Kind: ChallengeReCaptcha, Selector: `iframe[src*="recaptcha"]`},
	{Kind: ChallengeReCaptcha, Selector: `.g-recaptcha`},
	{Kind: ChallengeHCaptcha, Selector: `iframe[src*="hcaptcha"]`},
	{Kind: ChallengeHCaptcha, Selector: `.h-captcha`},
	{Kind: ChallengeTurnstile, Selector: `iframe[src*="challenges.cloudflare.com"]`},
	{Kind: ChallengeTurnstile, Selector: `.cf-turnstile`},
}

// GateOutcome is the result of waiting on a challenge.
type GateOutcome int

const (
	// Cleared means a challenge marker was observed and then went away.
	Cleared GateOutcome = iota
	// TimedOut means the window elapsed. It is not an error: either no
	// marker ever appeared, or one is still present and the run proceeds
	// regardless.
	TimedOut
)

func (o GateOutcome) String() string {
	switch o {
	case Cleared:
		return "cleared"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// GateResult reports what the gate observed.
type GateResult struct {
	Outcome    GateOutcome
	MarkerSeen bool
	Kind       ChallengeKind
	Waited     time.Duration
	Polls      int
}

// StillBlocked reports a marker that was present when the window closed.
// Such runs proceed but may extract from the challenge page itself.
func (r GateResult) StillBlocked() bool {
	return r.Outcome == TimedOut && r.MarkerSeen
}

// ChallengeProbe is the read-only view of the page the gate needs.
type ChallengeProbe interface {
	HasElement(ctx context.Context, selector string) (bool, error)
}

// GateOptions bounds the challenge wait.
type GateOptions struct {
	Timeout time.Duration
	Poll    time.Duration
	Markers []ChallengeMarker
}

// AwaitChallengeClearance polls the page for a challenge marker until it is
// seen and then disappears, or until opts.Timeout elapses. Probe errors are
// treated as "marker absent". The only error returned is ctx's.
func AwaitChallengeClearance(ctx context.Context, probe ChallengeProbe, opts GateOptions, logger *slog.Logger) (GateResult, error) {
	markers := opts.Markers
	if len(markers) == 0 {
		markers = DefaultChallengeMarkers
	}
	poll := opts.Poll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	start := time.Now()
	result := GateResult{Outcome: TimedOut}
	if opts.Timeout <= 0 {
		return result, nil
	}

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		result.Polls++
		kind := probeMarkers(ctx, probe, markers)
		switch {
		case kind != ChallengeNone && !result.MarkerSeen:
			result.MarkerSeen = true
			result.Kind = kind
			logger.Info("challenge detected, waiting for clearance", "kind", kind, "timeout", opts.Timeout)
		case kind == ChallengeNone && result.MarkerSeen:
			result.Outcome = Cleared
			result.Waited = time.Since(start)
			logger.Info("challenge cleared", "kind", result.Kind, "waited", result.Waited)
			return result, nil
		}

		select {
		case <-ctx.Done():
			result.Waited = time.Since(start)
			return result, ctx.Err()
		case <-deadline.C:
			result.Waited = time.Since(start)
			if result.MarkerSeen {
				logger.Warn("challenge still present after timeout, proceeding", "kind", result.Kind, "waited", result.Waited)
			} else {
				logger.Debug("no challenge marker within window", "waited", result.Waited)
			}
			return result, nil
		case <-ticker.C:
		}
	}
}

func probeMarkers(ctx context.Context, probe ChallengeProbe, markers []ChallengeMarker) ChallengeKind {
	for _, m := range markers {
		ok, err := probe.HasElement(ctx, m.Selector)
		if err == nil && ok {
			return m.Kind
		}
	}
	return ChallengeNone
}

// DetectChallenge inspects static markup for a challenge widget and returns
// its kind and site key, if any.
func DetectChallenge(html string) (ChallengeKind, string) {
	htmlLower := strings.ToLower(html)

	switch {
	case strings.Contains(htmlLower, "g-recaptcha") || strings.Contains(htmlLower, "recaptcha/api"):
		return ChallengeReCaptcha, extractBetween(html, `data-sitekey="`, `"`)
	case strings.Contains(htmlLower, "h-captcha") || strings.Contains(htmlLower, "hcaptcha.com"):
		return ChallengeHCaptcha, extractBetween(html, `data-sitekey="`, `"`)
	case strings.Contains(htmlLower, "cf-turnstile") || strings.Contains(htmlLower, "challenges.cloudflare.com"):
		return ChallengeTurnstile, extractBetween(html, `data-sitekey="`, `"`)
	}
	return ChallengeNone, ""
}

// extractBetween extracts a substring between two delimiters.
func extractBetween(s, start, end string) string {
	idx := strings.Index(s, start)
	if idx < 0 {
		return ""
	}
	s = s[idx+len(start):]
	idx = strings.Index(s, end)
	if idx < 0 {
		return ""
	}
	return s[:idx]
}
