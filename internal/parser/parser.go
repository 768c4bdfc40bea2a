package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mubureterrance/webscraper-scaffolding/internal/fetcher"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// ListExtractor reads the current page into raw records in document order.
type ListExtractor interface {
	Extract(ctx context.Context, page fetcher.Page) ([]types.Record, error)
}

// DocumentFunc extracts records from a parsed document. base is the URL the
// document was loaded from and may be nil.
type DocumentFunc func(doc *goquery.Document, base *url.URL) []types.Record

// DetailFunc extracts detail fields from a secondary page.
type DetailFunc func(doc *goquery.Document, base *url.URL) (types.Record, error)

// DocumentExtractor applies a DocumentFunc to the rendered DOM of a page.
type DocumentExtractor struct {
	Site string
	Func DocumentFunc
}

// Extract implements ListExtractor.
func (e *DocumentExtractor) Extract(ctx context.Context, page fetcher.Page) ([]types.Record, error) {
	doc, base, err := LoadDocument(ctx, page)
	if err != nil {
		return nil, &types.ExtractError{Site: e.Site, Err: err}
	}
	return e.Func(doc, base), nil
}

// LoadDocument parses the page's rendered DOM.
func LoadDocument(ctx context.Context, page fetcher.Page) (*goquery.Document, *url.URL, error) {
	markup, err := page.HTML(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read DOM: %w", err)
	}
	doc, err := ParseHTML(markup)
	if err != nil {
		return nil, nil, err
	}
	base, _ := url.Parse(page.URL(ctx))
	return doc, base, nil
}

// ParseHTML parses markup into a goquery document.
func ParseHTML(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	return doc, nil
}

// TextFetcher performs a direct request that can reuse a browser session.
type TextFetcher interface {
	GetText(ctx context.Context, url string, src fetcher.CookieSource) (string, error)
}

// APIExtractor fetches a structured endpoint from inside the page so the
// request carries the session's clearance, then decodes it. When the
// in-page fetch fails and Fallback is set, the endpoint is requested
// directly with the page's cookies.
type APIExtractor struct {
	Site     string
	Endpoint string // resolved against the page URL; empty means the page URL
	Decode   func(body []byte) ([]types.Record, error)
	Fallback TextFetcher
	Logger   *slog.Logger
}

// Extract implements ListExtractor.
func (e *APIExtractor) Extract(ctx context.Context, page fetcher.Page) ([]types.Record, error) {
	endpoint := resolveURL(page.URL(ctx), e.Endpoint)
	if endpoint == "" {
		return nil, &types.ExtractError{Site: e.Site, Err: fmt.Errorf("no endpoint to fetch")}
	}

	body, err := page.FetchText(ctx, endpoint)
	if err != nil && e.Fallback != nil {
		if e.Logger != nil {
			e.Logger.Warn("in-page fetch failed, retrying directly", "endpoint", endpoint, "error", err)
		}
		src, _ := page.(fetcher.CookieSource)
		body, err = e.Fallback.GetText(ctx, endpoint, src)
	}
	if err != nil {
		return nil, &types.ExtractError{Site: e.Site, Err: err}
	}

	records, err := e.Decode([]byte(body))
	if err != nil {
		return nil, &types.ExtractError{Site: e.Site, Err: err}
	}
	return records, nil
}

// resolveURL resolves ref against base. An empty ref yields base.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return ref
	}
	return absURL(b, ref)
}

// absURL resolves href against base, returning "" when href is blank or
// unparseable. Protocol-relative references inherit base's scheme.
func absURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// firstText returns the trimmed text of the first selector that yields
// non-empty text within sel.
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// texts returns the trimmed, non-empty text of every match in order.
func texts(sel *goquery.Selection, selector string) []string {
	var out []string
	sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
