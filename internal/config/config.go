package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for a harvest run.
type Config struct {
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Harvest HarvestConfig `mapstructure:"harvest" yaml:"harvest"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// BrowserConfig controls the browser session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"           yaml:"headless"`
	Evasion           bool          `mapstructure:"evasion"            yaml:"evasion"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	UserAgent         string        `mapstructure:"user_agent"         yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width"       yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"      yaml:"window_height"`
	BrowserBin        string        `mapstructure:"browser_bin"        yaml:"browser_bin"`
	NoSandbox         bool          `mapstructure:"no_sandbox"         yaml:"no_sandbox"`
	UserDataDir       string        `mapstructure:"user_data_dir"      yaml:"user_data_dir"`
}

// HarvestConfig controls the pipeline stages.
type HarvestConfig struct {
	Site             string        `mapstructure:"site"              yaml:"site"`
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout" yaml:"challenge_timeout"`
	ChallengePoll    time.Duration `mapstructure:"challenge_poll"    yaml:"challenge_poll"`
	ReadyTimeout     time.Duration `mapstructure:"ready_timeout"     yaml:"ready_timeout"`
	ScrollInterval   time.Duration `mapstructure:"scroll_interval"   yaml:"scroll_interval"`
	EnhancementCap   int           `mapstructure:"enhancement_cap"   yaml:"enhancement_cap"` // 0 = unbounded
	DetailTimeout    time.Duration `mapstructure:"detail_timeout"    yaml:"detail_timeout"`
	DetailDelay      time.Duration `mapstructure:"detail_delay"      yaml:"detail_delay"`
	SortKey          string        `mapstructure:"sort_key"          yaml:"sort_key"`
	Dedup            bool          `mapstructure:"dedup"             yaml:"dedup"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"       yaml:"run_timeout"` // 0 = no deadline
	PersistPartial   bool          `mapstructure:"persist_partial"   yaml:"persist_partial"`
	RespectRobots    bool          `mapstructure:"respect_robots"    yaml:"respect_robots"`
	Search           SearchConfig  `mapstructure:"search"            yaml:"search"`
	Custom           CustomConfig  `mapstructure:"custom"            yaml:"custom"`
}

// SearchConfig describes an optional search form filled before extraction.
type SearchConfig struct {
	Query          string        `mapstructure:"query"           yaml:"query"`
	InputSelector  string        `mapstructure:"input_selector"  yaml:"input_selector"`
	CheckboxLimit  int           `mapstructure:"checkbox_limit"  yaml:"checkbox_limit"`
	SubmitSelector string        `mapstructure:"submit_selector" yaml:"submit_selector"`
	Timeout        time.Duration `mapstructure:"timeout"         yaml:"timeout"`
}

// CustomConfig defines the rule-driven "custom" site.
type CustomConfig struct {
	ItemSelector string      `mapstructure:"item_selector" yaml:"item_selector"`
	Rules        []ParseRule `mapstructure:"rules"         yaml:"rules"`
	Fields       []string    `mapstructure:"fields"        yaml:"fields"`
}

// ParseRule defines a single extraction rule evaluated relative to an item.
type ParseRule struct {
	Name      string `mapstructure:"name"      yaml:"name"`
	Selector  string `mapstructure:"selector"  yaml:"selector"`
	Type      string `mapstructure:"type"      yaml:"type"` // css, xpath
	Attribute string `mapstructure:"attribute" yaml:"attribute"`
}

// ProxyConfig controls proxy selection for the browser session.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// StorageConfig controls result persistence.
type StorageConfig struct {
	Types           []string `mapstructure:"types"            yaml:"types"`
	OutputDir       string   `mapstructure:"output_dir"       yaml:"output_dir"`
	MongoURI        string   `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string   `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string   `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus-format metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          false,
			Evasion:           true,
			NavigationTimeout: 60 * time.Second,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:       1366,
			WindowHeight:      768,
		},
		Harvest: HarvestConfig{
			Site:             "inventory",
			ChallengeTimeout: 30 * time.Second,
			ChallengePoll:    500 * time.Millisecond,
			ReadyTimeout:     15 * time.Second,
			ScrollInterval:   2 * time.Second,
			EnhancementCap:   20,
			DetailTimeout:    15 * time.Second,
			DetailDelay:      1 * time.Second,
			Search: SearchConfig{
				InputSelector: `input[type="text"], input:not([type])`,
				CheckboxLimit: 3,
				Timeout:       30 * time.Second,
			},
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Rotation: "round_robin",
		},
		Storage: StorageConfig{
			Types:           []string{"json"},
			OutputDir:       "./results",
			MongoDatabase:   "harvester",
			MongoCollection: "results",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
