package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Browser.NavigationTimeout <= 0 {
		return invalid("browser.navigation_timeout", "must be > 0")
	}

	h := cfg.Harvest
	if h.Site == "" {
		return invalid("harvest.site", "must be set")
	}
	if h.ChallengeTimeout < 0 {
		return invalid("harvest.challenge_timeout", "must be >= 0")
	}
	if h.ChallengeTimeout > 0 && h.ChallengePoll <= 0 {
		return invalid("harvest.challenge_poll", "must be > 0 when a challenge timeout is set")
	}
	if h.ScrollInterval < 0 {
		return invalid("harvest.scroll_interval", "must be >= 0")
	}
	if h.EnhancementCap < 0 {
		return invalid("harvest.enhancement_cap", fmt.Sprintf("must be >= 0 (0 = unbounded), got %d", h.EnhancementCap))
	}
	if h.DetailTimeout <= 0 {
		return invalid("harvest.detail_timeout", "must be > 0")
	}
	if h.DetailDelay < 0 {
		return invalid("harvest.detail_delay", "must be >= 0")
	}
	if h.RunTimeout < 0 {
		return invalid("harvest.run_timeout", "must be >= 0 (0 = no deadline)")
	}
	if h.Search.CheckboxLimit < 0 {
		return invalid("harvest.search.checkbox_limit", "must be >= 0")
	}
	for i, rule := range h.Custom.Rules {
		if rule.Name == "" || rule.Selector == "" {
			return invalid(fmt.Sprintf("harvest.custom.rules[%d]", i), "name and selector are required")
		}
		if rule.Type != "" && rule.Type != "css" && rule.Type != "xpath" {
			return invalid(fmt.Sprintf("harvest.custom.rules[%d].type", i), fmt.Sprintf("must be 'css' or 'xpath', got %q", rule.Type))
		}
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return invalid("proxy.rotation", fmt.Sprintf("must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation))
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return &types.ConfigError{Field: "proxy.urls", Err: fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)}
			}
		}
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "summary": true, "mongo": true,
	}
	if len(cfg.Storage.Types) == 0 {
		return invalid("storage.types", "at least one sink is required")
	}
	for _, t := range cfg.Storage.Types {
		if !validStorageTypes[t] {
			return invalid("storage.types", fmt.Sprintf("%q is not supported (valid: json, jsonl, csv, summary, mongo)", t))
		}
		if t == "mongo" && cfg.Storage.MongoURI == "" {
			return invalid("storage.mongo_uri", "required when the mongo sink is enabled")
		}
	}
	if cfg.Storage.OutputDir == "" {
		return invalid("storage.output_dir", "must be set")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return invalid("logging.level", fmt.Sprintf("must be debug/info/warn/error, got %q", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return invalid("logging.format", fmt.Sprintf("must be 'text' or 'json', got %q", cfg.Logging.Format))
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return invalid("metrics.port", fmt.Sprintf("must be 1-65535, got %d", cfg.Metrics.Port))
		}
	}

	return nil
}

// ValidateURL checks that a target URL is well formed. A malformed URL is a
// fatal configuration error, never a retryable one.
func ValidateURL(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, &types.ConfigError{Field: "url", Err: types.ErrMissingURL}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &types.ConfigError{Field: "url", Err: fmt.Errorf("%w: %v", types.ErrInvalidURL, err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &types.ConfigError{Field: "url", Err: fmt.Errorf("%w: scheme must be http or https, got %q", types.ErrInvalidURL, u.Scheme)}
	}
	if u.Host == "" {
		return nil, &types.ConfigError{Field: "url", Err: fmt.Errorf("%w: URL must have a host", types.ErrInvalidURL)}
	}
	return u, nil
}

func invalid(field, msg string) error {
	return &types.ConfigError{Field: field, Err: errors.New(msg)}
}
