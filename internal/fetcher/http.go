package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

const maxAPIBodySize = 32 << 20

// APIClient fetches structured endpoints directly over HTTP, reusing the
// browser session's cookies and User-Agent. It is the fallback when a
// same-origin fetch from the page context fails.
type APIClient struct {
	client *http.Client
	logger *slog.Logger
}

// NewAPIClient creates an APIClient. proxies may be nil.
func NewAPIClient(timeout time.Duration, proxies *ProxyManager, logger *slog.Logger) *APIClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // decoded below, including brotli
	}
	if proxies != nil && proxies.Count() > 0 {
		transport.Proxy = proxies.ProxyFunc()
	}

	return &APIClient{
		client: &http.Client{Transport: transport, Timeout: timeout},
		logger: logger.With("component", "api_client"),
	}
}

// GetText performs a GET on url and returns the decoded body. When src is
// non-nil its cookies and User-Agent are attached to the request.
func (c *APIClient) GetText(ctx context.Context, url string, src CookieSource) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	if src != nil {
		if ua := src.UserAgent(); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		cookies, err := src.Cookies(ctx, url)
		if err != nil {
			c.logger.Debug("session cookies unavailable", "url", url, "error", err)
		}
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("get %s: HTTP %d: %s", url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	reader, err := decompressReader(resp, io.LimitReader(resp.Body, maxAPIBodySize))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", url, err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}

	c.logger.Debug("api fetch complete",
		"url", url,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)
	return string(body), nil
}

// Close releases idle connections.
func (c *APIClient) Close() {
	c.client.CloseIdleConnections()
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
