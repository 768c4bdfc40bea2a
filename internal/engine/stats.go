package engine

import (
	"sync/atomic"
	"time"

	"github.com/mubureterrance/webscraper-scaffolding/internal/observability"
)

// Stats tracks one harvest run. Counters are atomic so a monitor can read
// them while the run is in progress.
type Stats struct {
	RecordsExtracted atomic.Int64
	RecordsEmitted   atomic.Int64
	DetailsEnhanced  atomic.Int64
	DetailsFailed    atomic.Int64
	DetailsReused    atomic.Int64
	ScrollRounds     atomic.Int64
	GatePolls        atomic.Int64
	ChallengeSeen    atomic.Bool
	GateTimedOut     atomic.Bool
	StartTime        time.Time
}

func newStats(start time.Time) *Stats {
	return &Stats{StartTime: start}
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"records_extracted": s.RecordsExtracted.Load(),
		"records_emitted":   s.RecordsEmitted.Load(),
		"details_enhanced":  s.DetailsEnhanced.Load(),
		"details_failed":    s.DetailsFailed.Load(),
		"details_reused":    s.DetailsReused.Load(),
		"scroll_rounds":     s.ScrollRounds.Load(),
		"gate_polls":        s.GatePolls.Load(),
		"challenge_seen":    s.ChallengeSeen.Load(),
		"gate_timed_out":    s.GateTimedOut.Load(),
		"elapsed":           time.Since(s.StartTime).String(),
	}
}

// Summary converts the run stats for the process-wide metrics.
func (s *Stats) Summary(site string, failed, partial bool, end time.Time) observability.RunSummary {
	return observability.RunSummary{
		Site:            site,
		Failed:          failed,
		Partial:         partial,
		Records:         s.RecordsEmitted.Load(),
		DetailsEnhanced: s.DetailsEnhanced.Load(),
		DetailsFailed:   s.DetailsFailed.Load(),
		ScrollRounds:    s.ScrollRounds.Load(),
		ChallengeSeen:   s.ChallengeSeen.Load(),
		GateTimedOut:    s.GateTimedOut.Load(),
		Duration:        end.Sub(s.StartTime),
	}
}
