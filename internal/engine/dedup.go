package engine

import (
	"net/url"
	"sort"
	"strings"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// detailMemo remembers detail-page outcomes by canonical URL, so a listing
// that links the same page twice costs one navigation.
type detailMemo struct {
	entries map[string]memoEntry
}

type memoEntry struct {
	detail types.Record
	err    error
}

func newDetailMemo() *detailMemo {
	return &detailMemo{entries: make(map[string]memoEntry)}
}

func (m *detailMemo) lookup(rawURL string) (memoEntry, bool) {
	e, ok := m.entries[CanonicalizeURL(rawURL)]
	return e, ok
}

func (m *detailMemo) store(rawURL string, e memoEntry) {
	m.entries[CanonicalizeURL(rawURL)] = e
}

func (m *detailMemo) Len() int {
	return len(m.entries)
}

// CanonicalizeURL normalizes a URL for comparison:
// - lowercases scheme and host
// - removes fragment
// - sorts query parameters
// - removes trailing slash (except root)
// - removes default ports (80 for http, 443 for https)
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}
