package fetcher

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

type staticCookies struct{}

func (staticCookies) Cookies(context.Context, string) ([]*http.Cookie, error) {
	return []*http.Cookie{{Name: "cf_clearance", Value: "token"}}, nil
}

func (staticCookies) UserAgent() string { return "HarvesterTest/1.0" }

func TestAPIClientReusesSessionAndDecodesBrotli(t *testing.T) {
	payload := `[{"company":"Acme"}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("cf_clearance"); err != nil || c.Value != "token" {
			http.Error(w, "no clearance", http.StatusForbidden)
			return
		}
		if r.UserAgent() != "HarvesterTest/1.0" {
			http.Error(w, "bad ua", http.StatusForbidden)
			return
		}
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write([]byte(payload))
		_ = bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := NewAPIClient(5*time.Second, nil, testLogger)
	defer c.Close()

	body, err := c.GetText(context.Background(), srv.URL, staticCookies{})
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if body != payload {
		t.Errorf("body = %q, want %q", body, payload)
	}
}

func TestAPIClientRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewAPIClient(5*time.Second, nil, testLogger)
	_, err := c.GetText(context.Background(), srv.URL, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
