package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Page is the single active tab owned by a Session. Every pipeline stage
// talks to the browser through this interface.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// URL returns the current document URL.
	URL(ctx context.Context) string

	// HTML returns the rendered DOM serialized as markup.
	HTML(ctx context.Context) (string, error)

	// HasElement reports whether any element matches selector right now.
	HasElement(ctx context.Context, selector string) (bool, error)

	// WaitElement blocks until selector matches or timeout elapses.
	WaitElement(ctx context.Context, selector string, timeout time.Duration) error

	// ScrollHeight reads the current document extent.
	ScrollHeight(ctx context.Context) (int, error)

	// ScrollToBottom scrolls the window to the current extent.
	ScrollToBottom(ctx context.Context) error

	// FetchText issues a same-origin fetch from the page context and
	// returns the response body.
	FetchText(ctx context.Context, url string) (string, error)
}

// CookieSource is implemented by pages that can expose their cookie jar and
// identity, allowing a direct HTTP request to reuse a cleared session.
type CookieSource interface {
	Cookies(ctx context.Context, url string) ([]*http.Cookie, error)
	UserAgent() string
}
