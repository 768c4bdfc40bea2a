package automation

import (
	"context"
	"log/slog"
	"time"
)

// Scroller is the page surface the pagination loop drives.
type Scroller interface {
	ScrollHeight(ctx context.Context) (int, error)
	ScrollToBottom(ctx context.Context) error
}

// ScrollStats summarizes one expansion.
type ScrollStats struct {
	Reads       int
	Scrolls     int
	FinalHeight int
	Duration    time.Duration
}

// ExpandToFullContent scrolls until two consecutive extent readings match,
// pausing interval after each scroll so lazy content can attach. There is
// no round limit; a page that never settles runs until ctx is done.
func ExpandToFullContent(ctx context.Context, s Scroller, interval time.Duration, logger *slog.Logger) (ScrollStats, error) {
	var stats ScrollStats
	start := time.Now()
	lastHeight := 0

	for {
		currentHeight, err := s.ScrollHeight(ctx)
		if err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		stats.Reads++
		stats.FinalHeight = currentHeight

		if currentHeight == lastHeight {
			break // No new content loaded
		}
		lastHeight = currentHeight

		if err := s.ScrollToBottom(ctx); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		stats.Scrolls++

		if err := sleep(ctx, interval); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
	}

	stats.Duration = time.Since(start)
	logger.Debug("content fully expanded",
		"reads", stats.Reads,
		"scrolls", stats.Scrolls,
		"height", stats.FinalHeight,
		"duration", stats.Duration,
	)
	return stats, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
