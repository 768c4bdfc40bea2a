package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// RunSummary is what a finished harvest run reports.
type RunSummary struct {
	Site            string
	Failed          bool
	Partial         bool
	Records         int64
	DetailsEnhanced int64
	DetailsFailed   int64
	ScrollRounds    int64
	ChallengeSeen   bool
	GateTimedOut    bool
	Duration        time.Duration
}

// Metrics tracks operational metrics across harvest runs.
type Metrics struct {
	// Run metrics
	RunsTotal   atomic.Int64
	RunsFailed  atomic.Int64
	RunsPartial atomic.Int64

	// Record metrics
	RecordsHarvested atomic.Int64
	DetailsEnhanced  atomic.Int64
	DetailsFailed    atomic.Int64

	// Page metrics
	ScrollRounds     atomic.Int64
	ChallengesSeen   atomic.Int64
	GateTimeouts     atomic.Int64
	ActiveSessions   atomic.Int32
	RunMillisecTotal atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ObserveRun folds a finished run into the counters.
func (m *Metrics) ObserveRun(s RunSummary) {
	m.RunsTotal.Add(1)
	if s.Failed {
		m.RunsFailed.Add(1)
	}
	if s.Partial {
		m.RunsPartial.Add(1)
	}
	m.RecordsHarvested.Add(s.Records)
	m.DetailsEnhanced.Add(s.DetailsEnhanced)
	m.DetailsFailed.Add(s.DetailsFailed)
	m.ScrollRounds.Add(s.ScrollRounds)
	if s.ChallengeSeen {
		m.ChallengesSeen.Add(1)
	}
	if s.GateTimedOut {
		m.GateTimeouts.Add(1)
	}
	m.RunMillisecTotal.Add(s.Duration.Milliseconds())

	m.logger.Debug("run observed", "site", s.Site, "records", s.Records, "failed", s.Failed)
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		kind  string
		value int64
	}{
		{"harvester_runs_total", "Total harvest runs", "counter", m.RunsTotal.Load()},
		{"harvester_runs_failed_total", "Total failed runs", "counter", m.RunsFailed.Load()},
		{"harvester_runs_partial_total", "Total runs persisted as partial results", "counter", m.RunsPartial.Load()},
		{"harvester_records_total", "Total canonical records harvested", "counter", m.RecordsHarvested.Load()},
		{"harvester_details_enhanced_total", "Total detail pages merged", "counter", m.DetailsEnhanced.Load()},
		{"harvester_details_failed_total", "Total detail pages replaced by placeholders", "counter", m.DetailsFailed.Load()},
		{"harvester_scroll_rounds_total", "Total pagination scroll rounds", "counter", m.ScrollRounds.Load()},
		{"harvester_challenges_seen_total", "Total runs where a challenge marker was seen", "counter", m.ChallengesSeen.Load()},
		{"harvester_gate_timeouts_total", "Total gate waits that ended by timeout", "counter", m.GateTimeouts.Load()},
		{"harvester_run_milliseconds_total", "Total wall time spent in runs", "counter", m.RunMillisecTotal.Load()},
		{"harvester_active_sessions", "Browser sessions currently held", "gauge", int64(m.ActiveSessions.Load())},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer serves the metrics endpoint until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return srv
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"runs_total":        m.RunsTotal.Load(),
		"runs_failed":       m.RunsFailed.Load(),
		"runs_partial":      m.RunsPartial.Load(),
		"records_harvested": m.RecordsHarvested.Load(),
		"details_enhanced":  m.DetailsEnhanced.Load(),
		"details_failed":    m.DetailsFailed.Load(),
		"scroll_rounds":     m.ScrollRounds.Load(),
		"challenges_seen":   m.ChallengesSeen.Load(),
		"gate_timeouts":     m.GateTimeouts.Load(),
		"active_sessions":   int64(m.ActiveSessions.Load()),
	}
}
