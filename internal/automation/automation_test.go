package automation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// growingPage simulates a feed whose extent grows by inc for k iterations.
type growingPage struct {
	inc, k  int
	height  int
	reads   int
	scrolls int
}

func (p *growingPage) ScrollHeight(context.Context) (int, error) {
	p.reads++
	return p.height, nil
}

func (p *growingPage) ScrollToBottom(context.Context) error {
	p.scrolls++
	if p.scrolls < p.k {
		p.height += p.inc
	}
	return nil
}

func TestExpandReachesFixedPoint(t *testing.T) {
	for _, k := range []int{1, 2, 5, 12} {
		page := &growingPage{inc: 400, k: k, height: 400}
		stats, err := ExpandToFullContent(context.Background(), page, 0, testLogger)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if page.reads != k+1 {
			t.Errorf("k=%d: expected %d extent reads, got %d", k, k+1, page.reads)
		}
		if stats.Reads != page.reads || stats.Scrolls != page.scrolls {
			t.Errorf("k=%d: stats %+v disagree with page (reads=%d scrolls=%d)", k, stats, page.reads, page.scrolls)
		}
		if stats.FinalHeight != 400*k {
			t.Errorf("k=%d: final height = %d, want %d", k, stats.FinalHeight, 400*k)
		}
	}
}

// endlessPage never settles.
type endlessPage struct{ height int }

func (p *endlessPage) ScrollHeight(context.Context) (int, error) { return p.height, nil }
func (p *endlessPage) ScrollToBottom(context.Context) error    { p.height += 100; return nil }

func TestExpandIsCancellable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ExpandToFullContent(ctx, &endlessPage{height: 1}, 5*time.Millisecond, testLogger)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

type failingScroller struct{}

func (failingScroller) ScrollHeight(context.Context) (int, error) { return 0, errors.New("target closed") }
func (failingScroller) ScrollToBottom(context.Context) error      { return nil }

func TestExpandPropagatesReadError(t *testing.T) {
	if _, err := ExpandToFullContent(context.Background(), failingScroller{}, 0, testLogger); err == nil {
		t.Fatal("expected error")
	}
}

type recordingForm struct {
	typed     string
	clicked   int
	limit     int
	submitted string
	typeErr   error
}

func (f *recordingForm) TypeText(_ context.Context, _ string, text string, _ time.Duration) error {
	if f.typeErr != nil {
		return f.typeErr
	}
	f.typed = text
	return nil
}

func (f *recordingForm) ClickAll(_ context.Context, _ string, limit int, _ time.Duration) (int, error) {
	f.limit = limit
	f.clicked = min(limit, 5)
	return f.clicked, nil
}

func (f *recordingForm) Submit(_ context.Context, selector string, _ time.Duration) error {
	f.submitted = selector
	return nil
}

func TestRunSearch(t *testing.T) {
	form := SearchFormFromConfig(config.SearchConfig{
		Query:         "New York",
		InputSelector: "input",
		CheckboxLimit: 3,
		Timeout:       time.Second,
	})
	page := &recordingForm{}

	if err := RunSearch(context.Background(), page, form, testLogger); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	if page.typed != "New York" {
		t.Errorf("typed %q", page.typed)
	}
	if page.limit != 3 || page.clicked != 3 {
		t.Errorf("expected 3 filters ticked, got limit=%d clicked=%d", page.limit, page.clicked)
	}
	if page.submitted != defaultSubmitSelector {
		t.Errorf("submit selector = %q", page.submitted)
	}
}

func TestRunSearchDisabled(t *testing.T) {
	page := &recordingForm{typeErr: errors.New("should not be called")}
	if err := RunSearch(context.Background(), page, SearchForm{}, testLogger); err != nil {
		t.Fatalf("empty query should be a no-op, got %v", err)
	}
}

func TestRunSearchTypeFailure(t *testing.T) {
	page := &recordingForm{typeErr: errors.New("no input")}
	form := SearchForm{Query: "x", InputSelector: "input"}
	if err := RunSearch(context.Background(), page, form, testLogger); err == nil {
		t.Fatal("expected error when the query cannot be typed")
	}
}
