package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// --- JSON Sink ---

// JSONSink writes each result as one indented JSON document.
type JSONSink struct {
	dir    string
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONSink creates a JSON sink writing under dir.
func NewJSONSink(dir string, logger *slog.Logger) *JSONSink {
	return &JSONSink{
		dir:    dir,
		logger: logger.With("component", "json_sink"),
	}
}

func (s *JSONSink) Name() string { return "json" }

func (s *JSONSink) Persist(ctx context.Context, result *types.CrawlResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	data, err := result.ToJSON()
	if err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSON: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := BuildPath(s.dir, result.URL, result.Timestamp, "json")
	if err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write output file: %w", err)}
	}

	s.count++
	s.logger.Info("JSON written", "path", path, "items", result.TotalItems, "partial", result.Partial)
	return path, nil
}

func (s *JSONSink) Close() error {
	s.logger.Debug("json sink closed", "documents", s.count)
	return nil
}

// --- JSONL Sink ---

// JSONLSink appends one JSON object per canonical record to a per-URL
// stream file, each carrying the run provenance under underscore-prefixed
// keys so lines from different runs stay distinguishable.
type JSONLSink struct {
	dir    string
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLSink creates a newline-delimited JSON sink writing under dir.
func NewJSONLSink(dir string, logger *slog.Logger) *JSONLSink {
	return &JSONLSink{
		dir:    dir,
		logger: logger.With("component", "jsonl_sink"),
	}
}

func (s *JSONLSink) Name() string { return "jsonl" }

func (s *JSONLSink) Persist(ctx context.Context, result *types.CrawlResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := StreamPath(s.dir, result.URL, "jsonl")
	if err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("open output file: %w", err)}
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, item := range result.Items {
		entry := make(map[string]any, len(item)+3)
		entry["_run_id"] = result.RunID
		entry["_url"] = result.URL
		entry["_timestamp"] = result.Timestamp
		for k, v := range item {
			entry[k] = v
		}
		if err := enc.Encode(entry); err != nil {
			return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSONL: %w", err)}
		}
	}
	if err := f.Sync(); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.count += len(result.Items)
	s.logger.Info("JSONL appended", "path", path, "items", len(result.Items))
	return path, nil
}

func (s *JSONLSink) Close() error {
	s.logger.Debug("jsonl sink closed", "items", s.count)
	return nil
}

// --- CSV Sink ---

// CSVSink writes the records of a result as CSV rows. List fields are joined
// with ", ".
type CSVSink struct {
	dir    string
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewCSVSink creates a CSV sink writing under dir.
func NewCSVSink(dir string, logger *slog.Logger) *CSVSink {
	return &CSVSink{
		dir:    dir,
		logger: logger.With("component", "csv_sink"),
	}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Persist(ctx context.Context, result *types.CrawlResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := BuildPath(s.dir, result.URL, result.Timestamp, "csv")
	if err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("create output file: %w", err)}
	}
	defer f.Close()

	headers := csvHeaders(result)
	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV header: %w", err)}
	}
	for _, item := range result.Items {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = item.String(h)
		}
		if err := w.Write(row); err != nil {
			return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV row: %w", err)}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.count += len(result.Items)
	s.logger.Info("CSV written", "path", path, "items", len(result.Items))
	return path, nil
}

func (s *CSVSink) Close() error {
	s.logger.Debug("csv sink closed", "items", s.count)
	return nil
}

// csvHeaders uses the result's field order, falling back to the sorted keys
// of the first record.
func csvHeaders(result *types.CrawlResult) []string {
	if len(result.Fields) > 0 {
		return result.Fields
	}
	if len(result.Items) == 0 {
		return []string{}
	}
	headers := make([]string, 0, len(result.Items[0]))
	for k := range result.Items[0] {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	return headers
}

// --- Summary Sink ---

// SummaryFields are the fields kept in the condensed summary, in output order.
var SummaryFields = []string{"title", "genres", "platforms", "release_date"}

// SummarySink writes a condensed JSON array holding only SummaryFields, with
// lists joined by ", ". Records carrying none of those fields are left out.
type SummarySink struct {
	dir    string
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewSummarySink creates a summary sink writing under dir.
func NewSummarySink(dir string, logger *slog.Logger) *SummarySink {
	return &SummarySink{
		dir:    dir,
		logger: logger.With("component", "summary_sink"),
	}
}

func (s *SummarySink) Name() string { return "summary" }

func (s *SummarySink) Persist(ctx context.Context, result *types.CrawlResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	rows := summarize(result.Items)
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode summary: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := SummaryPath(s.dir, result.URL, result.Timestamp, "json")
	if err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write output file: %w", err)}
	}

	s.count += len(rows)
	s.logger.Info("summary written", "path", path, "items", len(rows))
	return path, nil
}

func (s *SummarySink) Close() error {
	s.logger.Debug("summary sink closed", "items", s.count)
	return nil
}

func summarize(items []types.CanonicalRecord) []map[string]string {
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		row := make(map[string]string, len(SummaryFields))
		for _, f := range SummaryFields {
			if v := item.String(f); v != "" {
				row[f] = v
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}
