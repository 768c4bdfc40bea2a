package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const maxNameLen = 50

var (
	schemePrefix = regexp.MustCompile(`^https?://`)
	unsafeChars  = regexp.MustCompile(`[^A-Za-z0-9_\-]`)
)

// SanitizeURL turns a source URL into a file name fragment: the scheme is
// dropped, anything outside [A-Za-z0-9_-] becomes an underscore, and the
// result is cut to 50 characters.
func SanitizeURL(rawURL string) string {
	s := schemePrefix.ReplaceAllString(rawURL, "")
	s = unsafeChars.ReplaceAllString(s, "_")
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	return s
}

// Timestamp formats ts as an ISO-8601 UTC instant that is safe in file
// names, e.g. 2024-03-05T14-07-09-120Z.
func Timestamp(ts time.Time) string {
	iso := ts.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(iso)
}

// BuildPath returns dir/results_<sanitized url>_<timestamp>.<ext>, creating
// dir when it does not exist yet.
func BuildPath(dir, sourceURL string, ts time.Time, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return namedPath(dir, "results", sourceURL, ts, ext), nil
}

// SummaryPath is BuildPath with a "summary" prefix.
func SummaryPath(dir, sourceURL string, ts time.Time, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return namedPath(dir, "summary", sourceURL, ts, ext), nil
}

func namedPath(dir, prefix, sourceURL string, ts time.Time, ext string) string {
	name := fmt.Sprintf("%s_%s_%s.%s", prefix, SanitizeURL(sourceURL), Timestamp(ts), ext)
	return filepath.Join(dir, name)
}

// StreamPath returns dir/results_<sanitized url>.<ext>, the stable file that
// successive runs against the same URL append to.
func StreamPath(dir, sourceURL, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("results_%s.%s", SanitizeURL(sourceURL), ext)), nil
}
