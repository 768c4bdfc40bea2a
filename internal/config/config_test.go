package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		field string
		mut   func(*Config)
	}{
		{"negative cap", "harvest.enhancement_cap", func(c *Config) { c.Harvest.EnhancementCap = -1 }},
		{"zero nav timeout", "browser.navigation_timeout", func(c *Config) { c.Browser.NavigationTimeout = 0 }},
		{"bad storage", "storage.types", func(c *Config) { c.Storage.Types = []string{"xml"} }},
		{"mongo without uri", "storage.mongo_uri", func(c *Config) { c.Storage.Types = []string{"mongo"} }},
		{"bad log level", "logging.level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad rule type", "harvest.custom.rules[0].type", func(c *Config) {
			c.Harvest.Custom.Rules = []ParseRule{{Name: "x", Selector: "a", Type: "regex"}}
		}},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mut(cfg)
		err := Validate(cfg)
		var cfgErr *types.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s: expected ConfigError, got %v", tt.name, err)
			continue
		}
		if cfgErr.Field != tt.field {
			t.Errorf("%s: expected field %q, got %q", tt.name, tt.field, cfgErr.Field)
		}
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr error
	}{
		{"https://www.igdb.com/games/coming_soon", nil},
		{"http://example.com", nil},
		{"", types.ErrMissingURL},
		{"ftp://example.com", types.ErrInvalidURL},
		{"https://", types.ErrInvalidURL},
		{"://bad", types.ErrInvalidURL},
	}

	for _, tt := range tests {
		u, err := ValidateURL(tt.input)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("%q: unexpected error %v", tt.input, err)
			} else if u.String() != tt.input {
				t.Errorf("%q: URL not preserved, got %q", tt.input, u.String())
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%q: expected %v, got %v", tt.input, tt.wantErr, err)
		}
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.yaml")
	data := []byte(`
harvest:
  site: games
  enhancement_cap: 5
  scroll_interval: 250ms
storage:
  types: [json, csv]
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("HARVESTER_HARVEST_SORT_KEY", "title")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Harvest.Site != "games" {
		t.Errorf("expected site games, got %q", cfg.Harvest.Site)
	}
	if cfg.Harvest.EnhancementCap != 5 {
		t.Errorf("expected cap 5, got %d", cfg.Harvest.EnhancementCap)
	}
	if cfg.Harvest.ScrollInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms scroll interval, got %s", cfg.Harvest.ScrollInterval)
	}
	if len(cfg.Storage.Types) != 2 {
		t.Errorf("expected 2 storage types, got %v", cfg.Storage.Types)
	}
	if cfg.Harvest.SortKey != "title" {
		t.Errorf("expected env sort key title, got %q", cfg.Harvest.SortKey)
	}
	if cfg.Harvest.DetailTimeout != DefaultConfig().Harvest.DetailTimeout {
		t.Errorf("expected default detail timeout, got %s", cfg.Harvest.DetailTimeout)
	}
}
