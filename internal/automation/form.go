package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
)

const (
	defaultCheckboxSelector = `input[type="checkbox"]`
	defaultSubmitSelector   = `button[type="submit"], input[type="submit"]`
	checkboxPause           = 300 * time.Millisecond
)

// FormPage is the page surface needed to drive a search form.
type FormPage interface {
	TypeText(ctx context.Context, selector, text string, timeout time.Duration) error
	ClickAll(ctx context.Context, selector string, limit int, pause time.Duration) (int, error)
	Submit(ctx context.Context, selector string, timeout time.Duration) error
}

// SearchForm describes a query typed into a page before extraction.
type SearchForm struct {
	Query            string
	InputSelector    string
	CheckboxSelector string
	CheckboxLimit    int
	SubmitSelector   string
	Pause            time.Duration
	Timeout          time.Duration
}

// SearchFormFromConfig fills selector defaults. The returned form is a no-op
// when the query is empty.
func SearchFormFromConfig(cfg config.SearchConfig) SearchForm {
	f := SearchForm{
		Query:            cfg.Query,
		InputSelector:    cfg.InputSelector,
		CheckboxSelector: defaultCheckboxSelector,
		CheckboxLimit:    cfg.CheckboxLimit,
		SubmitSelector:   cfg.SubmitSelector,
		Pause:            checkboxPause,
		Timeout:          cfg.Timeout,
	}
	if f.SubmitSelector == "" {
		f.SubmitSelector = defaultSubmitSelector
	}
	return f
}

// Enabled reports whether the form has anything to submit.
func (f SearchForm) Enabled() bool {
	return f.Query != ""
}

// RunSearch types the query, ticks up to CheckboxLimit filter boxes, and
// submits, waiting for the results navigation.
func RunSearch(ctx context.Context, page FormPage, form SearchForm, logger *slog.Logger) error {
	if !form.Enabled() {
		return nil
	}
	logger = logger.With("component", "search_form")

	if err := page.TypeText(ctx, form.InputSelector, form.Query, form.Timeout); err != nil {
		return fmt.Errorf("type query: %w", err)
	}

	if form.CheckboxLimit > 0 {
		n, err := page.ClickAll(ctx, form.CheckboxSelector, form.CheckboxLimit, form.Pause)
		if err != nil {
			return fmt.Errorf("select filters: %w", err)
		}
		logger.Debug("filters selected", "count", n)
	}

	if err := page.Submit(ctx, form.SubmitSelector, form.Timeout); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}

	logger.Info("search submitted", "query", form.Query)
	return nil
}
