package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var testTime = time.Date(2024, 3, 5, 14, 7, 9, 120_000_000, time.UTC)

func sampleResult() *types.CrawlResult {
	items := []types.CanonicalRecord{
		{"title": "Alpha", "genres": []string{"RPG", "Action"}},
		{"title": "Bravo", "genres": []string{types.Unknown}},
	}
	return types.NewCrawlResult("run-1", "games", "https://www.igdb.com/games/coming_soon", []string{"title", "genres"}, items, testTime)
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.igdb.com/games/coming_soon", "www_igdb_com_games_coming_soon"},
		{"http://example.com/a?b=c", "example_com_a_b_c"},
		{"ftp://x.y", "ftp___x_y"},
		{"https://" + strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := SanitizeURL(tt.in); got != tt.want {
			t.Errorf("SanitizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTimestamp(t *testing.T) {
	if got := Timestamp(testTime); got != "2024-03-05T14-07-09-120Z" {
		t.Errorf("Timestamp = %q", got)
	}
}

func TestBuildPathCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	path, err := BuildPath(dir, "https://example.com/list", testTime, "json")
	if err != nil {
		t.Fatalf("BuildPath: %v", err)
	}
	if filepath.Base(path) != "results_example_com_list_2024-03-05T14-07-09-120Z.json" {
		t.Errorf("unexpected file name %q", filepath.Base(path))
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("output dir not created: %v", err)
	}
}

func TestJSONSink(t *testing.T) {
	dir := t.TempDir()
	sink := NewJSONSink(dir, testLogger)
	defer sink.Close()

	path, err := sink.Persist(context.Background(), sampleResult())
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("written outside output dir: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Timestamp  time.Time        `json:"timestamp"`
		URL        string           `json:"url"`
		TotalItems int              `json:"total_items"`
		Items      []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.URL != "https://www.igdb.com/games/coming_soon" {
		t.Errorf("url = %q", doc.URL)
	}
	if doc.TotalItems != 2 || len(doc.Items) != 2 {
		t.Errorf("total_items = %d, items = %d", doc.TotalItems, len(doc.Items))
	}
	if !doc.Timestamp.Equal(testTime) {
		t.Errorf("timestamp = %v", doc.Timestamp)
	}
	if doc.Items[0]["title"] != "Alpha" {
		t.Errorf("document order not preserved: %v", doc.Items[0])
	}
}

func TestJSONSinkCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	_, err := NewJSONSink(dir, testLogger).Persist(ctx, sampleResult())
	var se *types.StorageError
	if !errors.As(err, &se) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected StorageError wrapping context.Canceled, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("nothing should be written, found %d files", len(entries))
	}
}

func TestJSONLSinkAppendsRuns(t *testing.T) {
	dir := t.TempDir()
	sink := NewJSONLSink(dir, testLogger)

	first := sampleResult()
	second := sampleResult()
	second.RunID = "run-2"
	second.Timestamp = testTime.Add(time.Hour)

	path1, err := sink.Persist(context.Background(), first)
	if err != nil {
		t.Fatalf("persist first: %v", err)
	}
	path2, err := sink.Persist(context.Background(), second)
	if err != nil {
		t.Fatalf("persist second: %v", err)
	}
	if path1 != path2 {
		t.Fatalf("runs against one URL should share a file: %s vs %s", path1, path2)
	}
	if filepath.Base(path1) != "results_www_igdb_com_games_coming_soon.jsonl" {
		t.Errorf("path = %s", path1)
	}

	data, err := os.ReadFile(path1)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines across both runs, got %d", len(lines))
	}
	var head, tail map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &head); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[3]), &tail); err != nil {
		t.Fatal(err)
	}
	if head["_run_id"] != "run-1" || head["title"] != "Alpha" {
		t.Errorf("unexpected first line: %v", head)
	}
	if tail["_run_id"] != "run-2" || tail["title"] != "Bravo" {
		t.Errorf("unexpected last line: %v", tail)
	}
}

func TestCSVSink(t *testing.T) {
	sink := NewCSVSink(t.TempDir(), testLogger)
	path, err := sink.Persist(context.Background(), sampleResult())
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"title", "genres"},
		{"Alpha", "RPG, Action"},
		{"Bravo", "Unknown"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestSummarySinkCondensesGames(t *testing.T) {
	dir := t.TempDir()
	items := []types.CanonicalRecord{
		{"title": "Alpha", "genres": []string{"RPG", "Action"}, "platforms": []string{"PC"}, "release_date": "Mar 1, 2024", "link": "https://www.igdb.com/games/alpha", "image": types.NotAvailable},
		{"link": "https://www.igdb.com/games/none"},
	}
	result := types.NewCrawlResult("run-1", "games", "https://www.igdb.com/games/coming_soon", nil, items, testTime)

	path, err := NewSummarySink(dir, testLogger).Persist(context.Background(), result)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if base := filepath.Base(path); base != "summary_www_igdb_com_games_coming_soon_2024-03-05T14-07-09-120Z.json" {
		t.Errorf("file name = %s", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rows []map[string]string
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("summary is not a JSON array: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the record without summary fields dropped, got %v", rows)
	}
	want := map[string]string{"title": "Alpha", "genres": "RPG, Action", "platforms": "PC", "release_date": "Mar 1, 2024"}
	if len(rows[0]) != len(want) {
		t.Errorf("summary row = %v", rows[0])
	}
	for k, v := range want {
		if rows[0][k] != v {
			t.Errorf("%s = %q, want %q", k, rows[0][k], v)
		}
	}
}

type fakeCollection struct {
	docs []any
	err  error
}

func (f *fakeCollection) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, document)
	return &mongo.InsertOneResult{InsertedID: "run-1"}, nil
}

func TestMongoSinkDocument(t *testing.T) {
	coll := &fakeCollection{}
	sink := &MongoSink{collection: coll, namespace: "harvester.results", logger: testLogger}

	loc, err := sink.Persist(context.Background(), sampleResult())
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if loc != "mongodb:harvester.results/run-1" {
		t.Errorf("location = %q", loc)
	}
	if len(coll.docs) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(coll.docs))
	}
	doc := coll.docs[0].(bson.M)
	if doc["_id"] != "run-1" || doc["total_items"] != 2 {
		t.Errorf("unexpected document: %v", doc)
	}
	items := doc["items"].([]bson.M)
	if items[1]["title"] != "Bravo" {
		t.Errorf("items = %v", items)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

type failingSink struct{ closed bool }

func (f *failingSink) Persist(context.Context, *types.CrawlResult) (string, error) {
	return "", &types.StorageError{Backend: "failing", Err: errors.New("disk full")}
}
func (f *failingSink) Close() error  { f.closed = true; return nil }
func (f *failingSink) Name() string { return "failing" }

func TestMultiSinkContinuesAfterFailure(t *testing.T) {
	bad := &failingSink{}
	good := NewJSONSink(t.TempDir(), testLogger)
	multi := NewMultiSink([]Sink{bad, good}, testLogger)

	loc, err := multi.Persist(context.Background(), sampleResult())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected first error to be returned, got %v", err)
	}
	if !strings.HasSuffix(loc, ".json") {
		t.Errorf("good sink should still write, location %q", loc)
	}
	if err := multi.Close(); err != nil || !bad.closed {
		t.Errorf("close: %v, closed=%v", err, bad.closed)
	}
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()

	sink, err := NewFromConfig(config.StorageConfig{Types: []string{"json"}, OutputDir: dir}, testLogger)
	if err != nil || sink.Name() != "json" {
		t.Fatalf("single sink: %v, %v", sink, err)
	}

	sink, err = NewFromConfig(config.StorageConfig{Types: []string{"json", "csv"}, OutputDir: dir}, testLogger)
	if err != nil || sink.Name() != "multi" {
		t.Fatalf("multi sink: %v, %v", sink, err)
	}

	sink, err = NewFromConfig(config.StorageConfig{Types: []string{"summary"}, OutputDir: dir}, testLogger)
	if err != nil || sink.Name() != "summary" {
		t.Fatalf("summary sink: %v, %v", sink, err)
	}

	_, err = NewFromConfig(config.StorageConfig{Types: []string{"parquet"}, OutputDir: dir}, testLogger)
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "parquet" {
		t.Errorf("expected StorageError for unknown type, got %v", err)
	}
}
