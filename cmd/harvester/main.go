package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/engine"
	"github.com/mubureterrance/webscraper-scaffolding/internal/fetcher"
	"github.com/mubureterrance/webscraper-scaffolding/internal/observability"
	"github.com/mubureterrance/webscraper-scaffolding/internal/site"
	"github.com/mubureterrance/webscraper-scaffolding/internal/storage"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

var (
	cfgFile        string
	verbose        bool
	siteName       string
	headless       bool
	enhanceCap     int
	sortKey        string
	outputDir      string
	outputTypes    []string
	persistPartial bool
	respectRobots  bool
	runTimeout     time.Duration
	searchQuery    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvester - browser-driven listing scraper",
		Long: `Harvester drives a real browser through a listing page and writes what it finds.

One run:
  • waits out bot challenges on the landing page
  • fills an optional search form
  • scrolls until the listing stops growing
  • extracts list items and visits a capped number of detail pages
  • normalizes, deduplicates and sorts the records
  • writes a timestamped JSON, JSONL or CSV file, or a MongoDB document`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sitesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps configuration mistakes to 2 and everything else to 1.
func exitCode(err error) int {
	var ce *types.ConfigError
	if errors.As(err, &ce) {
		return 2
	}
	return 1
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Harvest a listing page",
		Long:  "Harvest the given URL, or the site's default URL when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHarvest,
	}

	cmd.Flags().StringVarP(&siteName, "site", "s", "", "site profile (see 'harvester sites')")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window")
	cmd.Flags().IntVar(&enhanceCap, "cap", -1, "max detail pages to visit (0 = unbounded, -1 = config)")
	cmd.Flags().StringVar(&sortKey, "sort", "", "canonical field to sort records by")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	cmd.Flags().StringSliceVarP(&outputTypes, "format", "f", nil, "sinks: json, jsonl, csv, summary, mongo (repeatable)")
	cmd.Flags().BoolVar(&persistPartial, "persist-partial", false, "write collected records when a run fails")
	cmd.Flags().BoolVar(&respectRobots, "respect-robots", false, "honor robots.txt for the target and detail pages")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall run deadline (0 = none)")
	cmd.Flags().StringVarP(&searchQuery, "query", "q", "", "search query typed before extraction")

	return cmd
}

// runHarvest executes the run command.
func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &types.ConfigError{Field: "config", Err: err}
	}
	applyCLIOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	var proxies *fetcher.ProxyManager
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		proxies = fetcher.NewProxyManager(cfg.Proxy.URLs, cfg.Proxy.Rotation, logger)
	}
	client := fetcher.NewAPIClient(cfg.Browser.NavigationTimeout, proxies, logger)
	defer client.Close()

	profile, err := site.Build(cfg.Harvest.Site, site.Deps{
		Custom:   cfg.Harvest.Custom,
		Fallback: client,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	target := profile.DefaultURL
	if len(args) > 0 {
		target = args[0]
	}
	if _, err := config.ValidateURL(target); err != nil {
		_ = cmd.Usage()
		return err
	}

	sink, err := storage.NewFromConfig(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("sink close failed", "sink", sink.Name(), "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path)
	}

	h := engine.New(cfg, profile, fetcher.NewRodAcquirer(logger), logger,
		engine.WithSink(sink),
		engine.WithMetrics(metrics),
		engine.WithSessionOptions(fetcher.OptionsFromConfig(cfg, proxies)),
		engine.WithRobots(engine.NewRobotsManager(cfg.Harvest.RespectRobots, "harvester", client, logger)),
	)

	logger.Info("starting harvest",
		"site", profile.Name,
		"url", target,
		"cap", cfg.Harvest.EnhancementCap,
		"sinks", cfg.Storage.Types,
	)

	start := time.Now()
	result, err := h.Run(ctx, target)
	if err != nil {
		return err
	}

	stats := h.Stats().Snapshot()
	fmt.Printf("\n✅ Harvest complete in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Site:      %s\n", result.Site)
	fmt.Printf("   Items:     %d\n", result.TotalItems)
	fmt.Printf("   Details:   %v enhanced, %v failed, %v reused\n", stats["details_enhanced"], stats["details_failed"], stats["details_reused"])
	fmt.Printf("   Challenge: seen=%v timed_out=%v\n", stats["challenge_seen"], stats["gate_timed_out"])
	fmt.Printf("   Output:    %s\n", cfg.Storage.OutputDir)

	if result.TotalItems == 0 {
		fmt.Println("\n💡 No items were harvested. The page may have changed layout or still be")
		fmt.Println("   showing a challenge. Re-run without --headless to watch the browser.")
	}
	return nil
}

// sitesCmd lists the registered site profiles.
func sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List site profiles",
		Run: func(cmd *cobra.Command, args []string) {
			for _, info := range site.Catalog() {
				fmt.Printf("%-12s %s\n", info.Name, info.Description)
				if info.DefaultURL != "" {
					fmt.Printf("%-12s %s\n", "", info.DefaultURL)
				}
			}
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Harvester %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return &types.ConfigError{Field: "config", Err: err}
			}
			fmt.Printf("Browser:\n")
			fmt.Printf("  Headless:           %v\n", cfg.Browser.Headless)
			fmt.Printf("  Evasion:            %v\n", cfg.Browser.Evasion)
			fmt.Printf("  Navigation Timeout: %s\n", cfg.Browser.NavigationTimeout)
			fmt.Printf("  Window:             %dx%d\n", cfg.Browser.WindowWidth, cfg.Browser.WindowHeight)
			fmt.Printf("\nHarvest:\n")
			fmt.Printf("  Site:               %s\n", cfg.Harvest.Site)
			fmt.Printf("  Challenge Timeout:  %s\n", cfg.Harvest.ChallengeTimeout)
			fmt.Printf("  Scroll Interval:    %s\n", cfg.Harvest.ScrollInterval)
			fmt.Printf("  Enhancement Cap:    %d\n", cfg.Harvest.EnhancementCap)
			fmt.Printf("  Detail Delay:       %s\n", cfg.Harvest.DetailDelay)
			fmt.Printf("  Sort Key:           %s\n", cfg.Harvest.SortKey)
			fmt.Printf("  Persist Partial:    %v\n", cfg.Harvest.PersistPartial)
			fmt.Printf("  Respect robots.txt: %v\n", cfg.Harvest.RespectRobots)
			fmt.Printf("\nProxy:\n")
			fmt.Printf("  Enabled:            %v\n", cfg.Proxy.Enabled)
			fmt.Printf("  Rotation:           %s\n", cfg.Proxy.Rotation)
			fmt.Printf("  Count:              %d\n", len(cfg.Proxy.URLs))
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Sinks:              %s\n", strings.Join(cfg.Storage.Types, ", "))
			fmt.Printf("  Output Dir:         %s\n", cfg.Storage.OutputDir)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:            %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:               %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setupLogger creates a structured logger.
func setupLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// applyCLIOverrides applies explicitly set flags to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if siteName != "" {
		cfg.Harvest.Site = siteName
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = headless
	}
	if enhanceCap >= 0 {
		cfg.Harvest.EnhancementCap = enhanceCap
	}
	if sortKey != "" {
		cfg.Harvest.SortKey = sortKey
	}
	if outputDir != "" {
		cfg.Storage.OutputDir = outputDir
	}
	if len(outputTypes) > 0 {
		sinks := make([]string, 0, len(outputTypes))
		for _, t := range outputTypes {
			sinks = append(sinks, strings.ToLower(strings.TrimSpace(t)))
		}
		cfg.Storage.Types = sinks
	}
	if flags.Changed("persist-partial") {
		cfg.Harvest.PersistPartial = persistPartial
	}
	if flags.Changed("respect-robots") {
		cfg.Harvest.RespectRobots = respectRobots
	}
	if runTimeout > 0 {
		cfg.Harvest.RunTimeout = runTimeout
	}
	if searchQuery != "" {
		cfg.Harvest.Search.Query = searchQuery
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}
