package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// RodPage implements Page on top of a single Rod tab.
type RodPage struct {
	page      *rod.Page
	userAgent string
	logger    *slog.Logger
}

// NewRodPage wraps a Rod page.
func NewRodPage(page *rod.Page, userAgent string, logger *slog.Logger) *RodPage {
	return &RodPage{
		page:      page,
		userAgent: userAgent,
		logger:    logger.With("component", "rod_page"),
	}
}

// Navigate loads url and waits for the load event.
func (p *RodPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	pg := p.page.Context(ctx).Timeout(timeout)

	if err := pg.Navigate(url); err != nil {
		return &types.NavigationError{URL: url, Timeout: timeout, Err: err}
	}
	if err := pg.WaitLoad(); err != nil {
		return &types.NavigationError{URL: url, Timeout: timeout, Err: fmt.Errorf("wait load: %w", err)}
	}

	// Lazy scripts keep mutating the DOM after load; a short stability
	// window is best-effort only.
	if err := pg.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		p.logger.Debug("DOM did not settle, continuing", "url", url, "error", err)
	}
	return nil
}

// URL returns the current document URL, or "" when it cannot be read.
func (p *RodPage) URL(ctx context.Context) string {
	info, err := p.page.Context(ctx).Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// HTML returns the rendered DOM.
func (p *RodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// HasElement reports whether selector currently matches.
func (p *RodPage) HasElement(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

// WaitElement waits for selector to match.
func (p *RodPage) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// ScrollHeight reads document.body.scrollHeight.
func (p *RodPage) ScrollHeight(ctx context.Context) (int, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// ScrollToBottom scrolls to the current document extent.
func (p *RodPage) ScrollToBottom(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

// FetchText runs fetch() inside the page so the request carries the
// session's cookies and clearance tokens.
func (p *RodPage) FetchText(ctx context.Context, url string) (string, error) {
	res, err := p.page.Context(ctx).Eval(`async (u) => {
		const res = await fetch(u, { credentials: "same-origin" });
		if (!res.ok) throw new Error("HTTP " + res.status);
		return await res.text();
	}`, url)
	if err != nil {
		return "", fmt.Errorf("page fetch %s: %w", url, err)
	}
	return res.Value.Str(), nil
}

// Cookies returns the page cookies applicable to url.
func (p *RodPage) Cookies(ctx context.Context, url string) ([]*http.Cookie, error) {
	cookies, err := p.page.Context(ctx).Cookies([]string{url})
	if err != nil {
		return nil, err
	}
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return out, nil
}

// UserAgent returns the User-Agent the page presents.
func (p *RodPage) UserAgent() string {
	return p.userAgent
}

// --- Form Interaction ---

// TypeText types text into the first element matching selector.
func (p *RodPage) TypeText(ctx context.Context, selector, text string, timeout time.Duration) error {
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	el = el.CancelTimeout()
	if err := el.SelectAllText(); err != nil {
		p.logger.Debug("select all text failed", "selector", selector, "error", err)
	}
	return el.Input(text)
}

// ClickAll clicks up to limit elements matching selector, pausing between
// clicks. It returns the number of elements clicked.
func (p *RodPage) ClickAll(ctx context.Context, selector string, limit int, pause time.Duration) (int, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, err
	}
	clicked := 0
	for _, el := range els {
		if clicked >= limit {
			break
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return clicked, fmt.Errorf("click %s #%d: %w", selector, clicked, err)
		}
		clicked++
		select {
		case <-ctx.Done():
			return clicked, ctx.Err()
		case <-time.After(pause):
		}
	}
	return clicked, nil
}

// Submit clicks the submit control matching selector, or presses Enter when
// none exists, and waits for the resulting navigation. It fails with
// ErrNoNavigation when the wait runs out and the page never left its URL.
func (p *RodPage) Submit(ctx context.Context, selector string, timeout time.Duration) error {
	before := p.URL(ctx)
	pg := p.page.Context(ctx).Timeout(timeout)
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)

	has, btn, err := pg.Has(selector)
	if err != nil {
		return err
	}
	if has {
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click submit: %w", err)
		}
	} else if err := pg.Keyboard.Press(input.Enter); err != nil {
		return fmt.Errorf("press enter: %w", err)
	}

	wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return submitOutcome(before, p.URL(ctx), pg.GetContext().Err(), timeout)
}

// submitOutcome decides whether a submit went anywhere. A wait that ran out
// still counts when the document URL has moved on.
func submitOutcome(before, after string, waitErr error, timeout time.Duration) error {
	if waitErr == nil || (after != "" && after != before) {
		return nil
	}
	return fmt.Errorf("%w: still at %s after %s", types.ErrNoNavigation, before, timeout)
}

// setExtraHeaders applies headers to every request the page makes.
func setExtraHeaders(page *rod.Page, headers map[string]string) error {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return proto.NetworkSetExtraHTTPHeaders{Headers: m}.Call(page)
}
