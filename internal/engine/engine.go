// Package engine drives a single harvest run: one browser session carried
// through navigation, challenge gating, pagination, extraction, detail
// enhancement, normalization and persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mubureterrance/webscraper-scaffolding/internal/automation"
	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/fetcher"
	"github.com/mubureterrance/webscraper-scaffolding/internal/observability"
	"github.com/mubureterrance/webscraper-scaffolding/internal/pipeline"
	"github.com/mubureterrance/webscraper-scaffolding/internal/site"
	"github.com/mubureterrance/webscraper-scaffolding/internal/storage"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// partialPersistTimeout bounds the best-effort write after a failed run.
const partialPersistTimeout = 30 * time.Second

// State represents the stage a run is in.
type State int32

const (
	StateIdle State = iota
	StateAcquiring
	StateNavigating
	StateGating
	StateSearching
	StatePaginating
	StateExtracting
	StateEnhancing
	StateNormalizing
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateNavigating:
		return "navigating"
	case StateGating:
		return "gating"
	case StateSearching:
		return "searching"
	case StatePaginating:
		return "paginating"
	case StateExtracting:
		return "extracting"
	case StateEnhancing:
		return "enhancing"
	case StateNormalizing:
		return "normalizing"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// Harvester runs the pipeline for one site profile. Runs on the same
// Harvester are serialized; each run acquires its own session.
type Harvester struct {
	cfg         *config.Config
	profile     *site.Profile
	acquire     fetcher.AcquireFunc
	sessionOpts fetcher.SessionOptions
	sink        storage.Sink
	metrics     *observability.Metrics
	robots      *RobotsManager
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger

	state atomic.Int32
	stats atomic.Pointer[Stats]
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithSink sets where results are persisted. Without a sink the result is
// only returned.
func WithSink(s storage.Sink) Option {
	return func(h *Harvester) { h.sink = s }
}

// WithMetrics reports each finished run to m.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Harvester) { h.metrics = m }
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

// WithIDFunc overrides run ID generation.
func WithIDFunc(f func() string) Option {
	return func(h *Harvester) { h.newID = f }
}

// WithSessionOptions overrides the options derived from the configuration.
func WithSessionOptions(o fetcher.SessionOptions) Option {
	return func(h *Harvester) { h.sessionOpts = o }
}

// WithRobots enforces robots.txt on the target and detail navigations.
func WithRobots(rm *RobotsManager) Option {
	return func(h *Harvester) { h.robots = rm }
}

// New creates a Harvester for profile.
func New(cfg *config.Config, profile *site.Profile, acquire fetcher.AcquireFunc, logger *slog.Logger, opts ...Option) *Harvester {
	h := &Harvester{
		cfg:         cfg,
		profile:     profile,
		acquire:     acquire,
		sessionOpts: fetcher.OptionsFromConfig(cfg, nil),
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      logger.With("component", "harvester", "site", profile.Name),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.stats.Store(newStats(h.now()))
	return h
}

// State returns the current stage.
func (h *Harvester) State() State {
	return State(h.state.Load())
}

// Stats returns the statistics of the current or most recent run.
func (h *Harvester) Stats() *Stats {
	return h.stats.Load()
}

func (h *Harvester) setState(s State) {
	h.state.Store(int32(s))
}

// Run harvests targetURL and persists the result. A malformed URL or a
// session that cannot be acquired fails before anything is written. Per-item
// detail failures are absorbed; any other failure aborts the run after the
// session is released.
func (h *Harvester) Run(ctx context.Context, targetURL string) (*types.CrawlResult, error) {
	if !h.state.CompareAndSwap(int32(StateIdle), int32(StateAcquiring)) {
		return nil, fmt.Errorf("harvester is %s, cannot start another run", h.State())
	}
	defer h.setState(StateIdle)

	stats := newStats(h.now())
	h.stats.Store(stats)

	h.logger.Info("harvest starting", "url", targetURL)
	result, partial, err := h.run(ctx, targetURL, stats)

	if h.metrics != nil {
		h.metrics.ObserveRun(stats.Summary(h.profile.Name, err != nil, partial, h.now()))
	}
	if err != nil {
		h.logger.Error("harvest failed", "url", targetURL, "partial_persisted", partial, "error", err)
		return nil, err
	}
	h.logger.Info("harvest finished", "url", targetURL, "items", result.TotalItems, "stats", stats.Snapshot())
	return result, nil
}

// progress is what a run had produced when it stopped.
type progress struct {
	raw      []types.Record
	limit    int
	outcomes []EnhanceOutcome
}

// records returns the enhanced prefix followed by the raw records that were
// still waiting for enhancement.
func (p *progress) records() []types.Record {
	out := Records(p.outcomes)
	if p.limit > len(p.outcomes) {
		out = append(out, p.raw[len(p.outcomes):p.limit]...)
	}
	return out
}

func (h *Harvester) run(ctx context.Context, targetURL string, stats *Stats) (*types.CrawlResult, bool, error) {
	if _, err := config.ValidateURL(targetURL); err != nil {
		return nil, false, err
	}
	if !h.robots.IsAllowed(ctx, targetURL) {
		return nil, false, &types.ConfigError{Field: "url", Err: fmt.Errorf("%w: %s", types.ErrRobotsDisallowed, targetURL)}
	}

	normalizer, err := pipeline.NewNormalizer(h.profile.Schema, h.normalizeOptions(), h.logger)
	if err != nil {
		return nil, false, err
	}

	if d := h.cfg.Harvest.RunTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var (
		result  *types.CrawlResult
		partial bool
	)
	err = fetcher.WithSession(ctx, h.acquire, h.sessionOpts, h.logger, func(s *fetcher.Session) error {
		if h.metrics != nil {
			h.metrics.ActiveSessions.Add(1)
			defer h.metrics.ActiveSessions.Add(-1)
		}

		prog := &progress{}
		records, err := h.collect(ctx, s.Page(), targetURL, stats, prog)
		if err != nil {
			partial = h.persistPartial(ctx, targetURL, normalizer, prog)
			return err
		}

		h.setState(StateNormalizing)
		items, err := normalizer.Normalize(records)
		if err != nil {
			return err
		}
		stats.RecordsEmitted.Store(int64(len(items)))
		r := types.NewCrawlResult(h.newID(), h.profile.Name, targetURL, normalizer.Fields(), items, h.now())

		h.setState(StatePersisting)
		if err := h.persist(ctx, r); err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, partial, err
}

// collect runs every stage that needs the browser and returns the records
// ready for normalization.
func (h *Harvester) collect(ctx context.Context, page fetcher.Page, targetURL string, stats *Stats, prog *progress) ([]types.Record, error) {
	h.setState(StateNavigating)
	if err := page.Navigate(ctx, targetURL, h.sessionOpts.NavigationTimeout); err != nil {
		return nil, err
	}
	if err := h.gate(ctx, page, stats); err != nil {
		return nil, err
	}

	if form := h.searchForm(); form.Enabled() {
		fp, ok := page.(automation.FormPage)
		if !ok {
			return nil, errors.New("search form configured but the page cannot fill forms")
		}
		h.setState(StateSearching)
		if err := automation.RunSearch(ctx, fp, form, h.logger); err != nil {
			return nil, &types.NavigationError{URL: targetURL, Err: err}
		}
		if err := h.gate(ctx, page, stats); err != nil {
			return nil, err
		}
	}

	if err := h.awaitReady(ctx, page); err != nil {
		return nil, err
	}

	if h.profile.Paginate {
		h.setState(StatePaginating)
		ss, err := automation.ExpandToFullContent(ctx, page, h.cfg.Harvest.ScrollInterval, h.logger)
		stats.ScrollRounds.Add(int64(ss.Scrolls))
		if err != nil {
			return nil, fmt.Errorf("expand content: %w", err)
		}
	}

	h.setState(StateExtracting)
	records, err := h.profile.List.Extract(ctx, page)
	if err != nil {
		return nil, err
	}
	stats.RecordsExtracted.Store(int64(len(records)))
	prog.raw, prog.limit = records, len(records)
	if len(records) == 0 {
		h.logger.Warn("no records extracted", "url", page.URL(ctx))
	} else {
		h.logger.Info("records extracted", "count", len(records))
	}

	if h.profile.Detail == nil {
		return records, nil
	}

	h.setState(StateEnhancing)
	enhancer := NewEnhancer(h.profile.Detail, h.cfg.Harvest, h.robots, stats, h.logger)
	prog.limit = enhancer.Limit(len(records))
	outcomes, err := enhancer.EnhanceAll(ctx, page, records)
	prog.outcomes = outcomes
	if err != nil {
		return nil, err
	}
	return Records(outcomes), nil
}

// gate waits out a bot challenge. Only cancellation is an error; a timeout
// is recorded and the run goes on.
func (h *Harvester) gate(ctx context.Context, page fetcher.Page, stats *Stats) error {
	h.setState(StateGating)
	res, err := fetcher.AwaitChallengeClearance(ctx, page, fetcher.GateOptions{
		Timeout: h.cfg.Harvest.ChallengeTimeout,
		Poll:    h.cfg.Harvest.ChallengePoll,
	}, h.logger)
	stats.GatePolls.Add(int64(res.Polls))
	if res.MarkerSeen {
		stats.ChallengeSeen.Store(true)
	}
	if err != nil {
		return err
	}
	if res.Outcome == fetcher.TimedOut {
		stats.GateTimedOut.Store(true)
	}
	return nil
}

// awaitReady waits for the profile's ready selector. A timeout is logged and
// extraction proceeds on whatever rendered.
func (h *Harvester) awaitReady(ctx context.Context, page fetcher.Page) error {
	sel := h.profile.ReadySelector
	if sel == "" || h.cfg.Harvest.ReadyTimeout <= 0 {
		return nil
	}
	if err := page.WaitElement(ctx, sel, h.cfg.Harvest.ReadyTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Warn("ready selector did not appear, extracting anyway", "selector", sel, "error", err)
	}
	return nil
}

func (h *Harvester) searchForm() automation.SearchForm {
	form := automation.SearchFormFromConfig(h.cfg.Harvest.Search)
	if form.Query == "" {
		form.Query = h.profile.SearchQuery
	}
	return form
}

func (h *Harvester) normalizeOptions() pipeline.Options {
	opts := h.profile.Options
	if key := h.cfg.Harvest.SortKey; key != "" {
		opts.SortKey = key
	}
	if h.cfg.Harvest.Dedup {
		opts.Dedup = true
	}
	return opts
}

func (h *Harvester) persist(ctx context.Context, result *types.CrawlResult) error {
	if h.sink == nil {
		h.logger.Debug("no sink configured, result not persisted")
		return nil
	}
	loc, err := h.sink.Persist(ctx, result)
	if err != nil {
		return err
	}
	h.logger.Info("result persisted", "location", loc, "items", result.TotalItems)
	return nil
}

// persistPartial writes what a failed run had collected when partial
// persistence is enabled. It reports whether anything was written.
func (h *Harvester) persistPartial(ctx context.Context, targetURL string, normalizer *pipeline.Normalizer, prog *progress) bool {
	if !h.cfg.Harvest.PersistPartial || h.sink == nil || prog.raw == nil {
		return false
	}

	items, err := normalizer.Normalize(prog.records())
	if err != nil {
		h.logger.Warn("partial result could not be normalized", "error", err)
		return false
	}
	result := types.NewCrawlResult(h.newID(), h.profile.Name, targetURL, normalizer.Fields(), items, h.now())
	result.Partial = true

	// The run's context is usually what failed; the write gets its own deadline.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), partialPersistTimeout)
	defer cancel()

	loc, err := h.sink.Persist(pctx, result)
	if err != nil {
		h.logger.Warn("partial result not persisted", "error", err)
		return false
	}
	h.logger.Warn("partial result persisted", "location", loc, "items", result.TotalItems)
	return true
}
