package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied by the caller on the returned value.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("harvester")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".harvester"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.evasion", cfg.Browser.Evasion)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)
	v.SetDefault("browser.user_agent", cfg.Browser.UserAgent)
	v.SetDefault("browser.window_width", cfg.Browser.WindowWidth)
	v.SetDefault("browser.window_height", cfg.Browser.WindowHeight)
	v.SetDefault("browser.browser_bin", cfg.Browser.BrowserBin)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)

	v.SetDefault("harvest.site", cfg.Harvest.Site)
	v.SetDefault("harvest.challenge_timeout", cfg.Harvest.ChallengeTimeout)
	v.SetDefault("harvest.challenge_poll", cfg.Harvest.ChallengePoll)
	v.SetDefault("harvest.ready_timeout", cfg.Harvest.ReadyTimeout)
	v.SetDefault("harvest.scroll_interval", cfg.Harvest.ScrollInterval)
	v.SetDefault("harvest.enhancement_cap", cfg.Harvest.EnhancementCap)
	v.SetDefault("harvest.detail_timeout", cfg.Harvest.DetailTimeout)
	v.SetDefault("harvest.detail_delay", cfg.Harvest.DetailDelay)
	v.SetDefault("harvest.sort_key", cfg.Harvest.SortKey)
	v.SetDefault("harvest.dedup", cfg.Harvest.Dedup)
	v.SetDefault("harvest.run_timeout", cfg.Harvest.RunTimeout)
	v.SetDefault("harvest.persist_partial", cfg.Harvest.PersistPartial)
	v.SetDefault("harvest.respect_robots", cfg.Harvest.RespectRobots)
	v.SetDefault("harvest.search.input_selector", cfg.Harvest.Search.InputSelector)
	v.SetDefault("harvest.search.checkbox_limit", cfg.Harvest.Search.CheckboxLimit)
	v.SetDefault("harvest.search.timeout", cfg.Harvest.Search.Timeout)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)

	v.SetDefault("storage.types", cfg.Storage.Types)
	v.SetDefault("storage.output_dir", cfg.Storage.OutputDir)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
