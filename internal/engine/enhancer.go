package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/fetcher"
	"github.com/mubureterrance/webscraper-scaffolding/internal/parser"
	"github.com/mubureterrance/webscraper-scaffolding/internal/site"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// EnhanceStatus is the per-item result of detail enhancement.
type EnhanceStatus int

const (
	// Enhanced means the detail page was read and merged.
	Enhanced EnhanceStatus = iota
	// FailedWithPlaceholder means the detail fields hold placeholders.
	FailedWithPlaceholder
)

func (s EnhanceStatus) String() string {
	switch s {
	case Enhanced:
		return "enhanced"
	case FailedWithPlaceholder:
		return "failed_with_placeholder"
	default:
		return "unknown"
	}
}

// EnhanceOutcome is the result for the list item at Index.
type EnhanceOutcome struct {
	Index  int
	Status EnhanceStatus
	Record types.Record
	Err    error // *types.DetailError when Status is FailedWithPlaceholder
}

// Enhancer visits each record's detail page on the run's single page and
// merges the fields it finds. A failing item gets placeholders and never
// fails the batch.
type Enhancer struct {
	spec    *site.DetailSpec
	cap     int
	timeout time.Duration
	delay   time.Duration
	robots  *RobotsManager
	memo    *detailMemo
	stats   *Stats
	logger  *slog.Logger

	navigations int
}

// NewEnhancer creates an Enhancer. robots may be nil.
func NewEnhancer(spec *site.DetailSpec, cfg config.HarvestConfig, robots *RobotsManager, stats *Stats, logger *slog.Logger) *Enhancer {
	if stats == nil {
		stats = newStats(time.Now())
	}
	return &Enhancer{
		spec:    spec,
		cap:     cfg.EnhancementCap,
		timeout: cfg.DetailTimeout,
		delay:   cfg.DetailDelay,
		robots:  robots,
		memo:    newDetailMemo(),
		stats:   stats,
		logger:  logger.With("component", "enhancer"),
	}
}

// Limit returns how many of n list items are enhanced. Items past the cap
// are not part of the output.
func (e *Enhancer) Limit(n int) int {
	if e.cap > 0 && n > e.cap {
		return e.cap
	}
	return n
}

// EnhanceAll enhances the first Limit(len(records)) records strictly in
// order. It returns early only when ctx is done, with the outcomes finished
// so far.
func (e *Enhancer) EnhanceAll(ctx context.Context, page fetcher.Page, records []types.Record) ([]EnhanceOutcome, error) {
	n := e.Limit(len(records))
	if n < len(records) {
		e.logger.Info("enhancement capped", "cap", e.cap, "listed", len(records))
	}

	outcomes := make([]EnhanceOutcome, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out := e.EnhanceOne(ctx, page, i, records[i])
		if err := ctx.Err(); err != nil && out.Status == FailedWithPlaceholder {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}

	e.logger.Info("enhancement complete",
		"items", n,
		"enhanced", e.stats.DetailsEnhanced.Load(),
		"failed", e.stats.DetailsFailed.Load(),
		"reused", e.stats.DetailsReused.Load(),
	)
	return outcomes, nil
}

// EnhanceOne enhances a single record.
func (e *Enhancer) EnhanceOne(ctx context.Context, page fetcher.Page, index int, rec types.Record) EnhanceOutcome {
	link := strings.TrimSpace(rec.GetString(e.spec.LinkField))
	if link == "" {
		return e.fail(ctx, index, rec, "", types.ErrNoDetailLink)
	}
	if !e.robots.IsAllowed(ctx, link) {
		return e.fail(ctx, index, rec, link, types.ErrRobotsDisallowed)
	}

	if m, ok := e.memo.lookup(link); ok {
		e.stats.DetailsReused.Add(1)
		if m.err != nil {
			return e.fail(ctx, index, rec, link, m.err)
		}
		return e.succeed(index, rec, m.detail)
	}

	detail, err := e.visit(ctx, page, link)
	if ctx.Err() == nil {
		e.memo.store(link, memoEntry{detail: detail, err: err})
	}
	if err != nil {
		return e.fail(ctx, index, rec, link, err)
	}
	return e.succeed(index, rec, detail)
}

func (e *Enhancer) visit(ctx context.Context, page fetcher.Page, link string) (types.Record, error) {
	if e.navigations > 0 {
		if err := wait(ctx, e.pause(link)); err != nil {
			return nil, err
		}
	}
	e.navigations++

	if err := page.Navigate(ctx, link, e.timeout); err != nil {
		return nil, err
	}
	if sel := e.spec.ReadySelector; sel != "" {
		if err := page.WaitElement(ctx, sel, e.timeout); err != nil {
			return nil, e.annotate(ctx, page, fmt.Errorf("%w: %w", types.ErrDetailMissing, err))
		}
	}

	doc, base, err := parser.LoadDocument(ctx, page)
	if err != nil {
		return nil, err
	}
	detail, err := e.spec.Extract(doc, base)
	if err != nil {
		return nil, e.annotate(ctx, page, err)
	}
	return detail, nil
}

// pause is the configured delay, raised to the domain's crawl-delay.
func (e *Enhancer) pause(link string) time.Duration {
	if d := e.robots.CrawlDelay(link); d > e.delay {
		return d
	}
	return e.delay
}

// annotate notes a challenge widget on the failed page, if there is one.
func (e *Enhancer) annotate(ctx context.Context, page fetcher.Page, err error) error {
	markup, herr := page.HTML(ctx)
	if herr != nil {
		return err
	}
	if kind, _ := fetcher.DetectChallenge(markup); kind != fetcher.ChallengeNone {
		return fmt.Errorf("%w (%s challenge on page)", err, kind)
	}
	return err
}

func (e *Enhancer) succeed(index int, rec, detail types.Record) EnhanceOutcome {
	e.stats.DetailsEnhanced.Add(1)
	return EnhanceOutcome{
		Index:  index,
		Status: Enhanced,
		Record: rec.Merge(detail),
	}
}

func (e *Enhancer) fail(ctx context.Context, index int, rec types.Record, link string, err error) EnhanceOutcome {
	derr := &types.DetailError{Index: index, URL: link, Err: err}
	if ctx.Err() == nil {
		e.stats.DetailsFailed.Add(1)
		e.logger.Warn("detail enhancement failed, using placeholders",
			"index", index,
			"url", link,
			"error", err,
		)
	}
	return EnhanceOutcome{
		Index:  index,
		Status: FailedWithPlaceholder,
		Record: fillAbsent(rec, e.placeholder()),
		Err:    derr,
	}
}

func (e *Enhancer) placeholder() types.Record {
	if e.spec.Placeholder != nil {
		return e.spec.Placeholder()
	}
	ph := make(types.Record, len(e.spec.Fields))
	for _, f := range e.spec.Fields {
		ph[f] = types.Unknown
	}
	return ph
}

// fillAbsent copies rec and sets each placeholder field the record does not
// already carry. Placeholders never replace extracted values.
func fillAbsent(rec, placeholder types.Record) types.Record {
	out := rec.Clone()
	for k, v := range placeholder {
		if out[k] != nil {
			continue
		}
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

// Records returns the records of outcomes in order.
func Records(outcomes []EnhanceOutcome) []types.Record {
	out := make([]types.Record, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Record
	}
	return out
}

func wait(ctx context.Context, d time.Duration) error {
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
