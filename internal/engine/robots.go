package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mubureterrance/webscraper-scaffolding/internal/parser"
)

// RobotsManager handles robots.txt fetching, parsing, and enforcement for
// the target and detail navigations of a run.
type RobotsManager struct {
	enabled bool
	agent   string
	fetch   parser.TextFetcher
	cache   map[string]*robotsData
	mu      sync.RWMutex
	logger  *slog.Logger
}

// robotsData holds parsed robots.txt rules for a domain.
type robotsData struct {
	disallowed []string
	allowed    []string
	crawlDelay time.Duration
}

// NewRobotsManager creates a RobotsManager. agent is matched
// case-insensitively against User-agent lines in addition to "*".
func NewRobotsManager(enabled bool, agent string, fetch parser.TextFetcher, logger *slog.Logger) *RobotsManager {
	return &RobotsManager{
		enabled: enabled,
		agent:   strings.ToLower(agent),
		fetch:   fetch,
		cache:   make(map[string]*robotsData),
		logger:  logger.With("component", "robots"),
	}
}

// IsAllowed checks if a URL is allowed by the domain's robots.txt. A
// robots.txt that cannot be fetched allows everything.
func (rm *RobotsManager) IsAllowed(ctx context.Context, rawURL string) bool {
	if rm == nil || !rm.enabled {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	data := rm.getRobotsData(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	// Allow rules override disallow rules.
	for _, pattern := range data.allowed {
		if matchRobotsPattern(pattern, path) {
			return true
		}
	}
	for _, pattern := range data.disallowed {
		if matchRobotsPattern(pattern, path) {
			return false
		}
	}
	return true
}

// CrawlDelay returns the crawl-delay declared for rawURL's domain, if it has
// already been fetched.
func (rm *RobotsManager) CrawlDelay(rawURL string) time.Duration {
	if rm == nil || !rm.enabled {
		return 0
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}

	rm.mu.RLock()
	data, ok := rm.cache[u.Scheme+"://"+u.Host]
	rm.mu.RUnlock()

	if !ok || data == nil {
		return 0
	}
	return data.crawlDelay
}

// getRobotsData fetches and caches robots.txt for a domain.
func (rm *RobotsManager) getRobotsData(ctx context.Context, domain string) *robotsData {
	rm.mu.RLock()
	data, ok := rm.cache[domain]
	rm.mu.RUnlock()

	if ok {
		return data
	}

	body, err := rm.fetch.GetText(ctx, domain+"/robots.txt", nil)
	if err != nil {
		rm.logger.Debug("robots.txt unavailable, allowing all", "domain", domain, "error", err)
		if ctx.Err() != nil {
			return nil // not cached; a later call may succeed
		}
	} else {
		data = parseRobotsTxt(body, rm.agent)
	}

	rm.mu.Lock()
	rm.cache[domain] = data
	rm.mu.Unlock()

	return data
}

// parseRobotsTxt parses robots.txt content, keeping the groups for "*" and
// for agent.
func parseRobotsTxt(content, agent string) *robotsData {
	data := &robotsData{}
	inOurSection := false

	for _, line := range strings.Split(content, "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			ua := strings.ToLower(value)
			inOurSection = ua == "*" || (agent != "" && strings.Contains(ua, agent))
		case "disallow":
			if inOurSection && value != "" {
				data.disallowed = append(data.disallowed, value)
			}
		case "allow":
			if inOurSection && value != "" {
				data.allowed = append(data.allowed, value)
			}
		case "crawl-delay":
			if inOurSection {
				var delay float64
				if _, err := fmt.Sscanf(value, "%f", &delay); err == nil && delay > 0 {
					data.crawlDelay = time.Duration(delay * float64(time.Second))
				}
			}
		}
	}

	return data
}

// matchRobotsPattern checks if a URL path matches a robots.txt pattern.
// Supports * (any sequence) and $ (end of URL) wildcards.
func matchRobotsPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	endsWithDollar := strings.HasSuffix(pattern, "$")
	if endsWithDollar {
		pattern = pattern[:len(pattern)-1]
	}

	if strings.Contains(pattern, "*") {
		return matchWildcard(pattern, path, endsWithDollar)
	}

	if endsWithDollar {
		return path == pattern
	}
	return strings.HasPrefix(path, pattern)
}

// matchWildcard handles * wildcard matching in robots.txt patterns.
func matchWildcard(pattern, path string, mustEnd bool) bool {
	parts := strings.Split(pattern, "*")
	pos := 0

	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			// First part must match from the start
			return false
		}
		pos += idx + len(part)
	}

	if mustEnd {
		return pos == len(path)
	}
	return true
}
