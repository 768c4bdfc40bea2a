package pipeline

import (
	"log/slog"
	"os"
	"reflect"
	"testing"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var brokerSchema = Schema{
	{Name: "firm", Sources: []string{"company"}},
	{Name: "contact_person", Join: []string{"first_name", "last_name"}},
	{Name: "email"},
}

var gameSchema = Schema{
	{Name: "title"},
	{Name: "release_date"},
	{Name: "genres", List: true, Sentinel: types.Unknown},
	{Name: "trailer", Sentinel: types.Unknown},
}

func mustNormalizer(t *testing.T, schema Schema, opts Options) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(schema, opts, testLogger)
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	return n
}

func TestPipelineBasic(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	rec := types.NewRecord()
	rec.Set("title", "  Hello \n  World  ")
	rec.Set("tags", []string{" a ", "", "b"})
	rec.Set("blank", "   ")

	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.GetString("title") != "Hello World" {
		t.Errorf("expected collapsed title, got %q", result.GetString("title"))
	}
	if !reflect.DeepEqual(result.GetStrings("tags"), []string{"a", "b"}) {
		t.Errorf("tags = %v", result.GetStrings("tags"))
	}
	if v, ok := result.Get("blank"); !ok || v != nil {
		t.Errorf("blank field should be nil, got %v", v)
	}
	if rec.GetString("title") != "  Hello \n  World  " {
		t.Error("input record must not be mutated")
	}
}

func TestNormalizeFillsSentinelsAndJoins(t *testing.T) {
	n := mustNormalizer(t, brokerSchema, Options{})

	records := []types.Record{
		{"company": "Acme", "first_name": " Jane ", "last_name": "Roe", "email": "jane@acme.org"},
		{"company": "Solo", "first_name": nil, "last_name": "Only"},
		{"firm": "", "stray": "ignored"},
	}
	out, err := n.Normalize(records)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}

	want := []types.CanonicalRecord{
		{"firm": "Acme", "contact_person": "Jane Roe", "email": "jane@acme.org"},
		{"firm": "Solo", "contact_person": "Only", "email": "N/A"},
		{"firm": "N/A", "contact_person": "N/A", "email": "N/A"},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("got %v\nwant %v", out, want)
	}
}

func TestNormalizeIsTotal(t *testing.T) {
	n := mustNormalizer(t, gameSchema, Options{})
	inputs := []types.Record{
		{},
		{"title": nil, "genres": []string{}},
		{"title": "   ", "genres": []any{" ", "RPG"}},
		{"genres": "Puzzle", "trailer": "https://youtube.com/x"},
	}
	out, err := n.Normalize(inputs)
	if err != nil {
		t.Fatal(err)
	}
	for i, rec := range out {
		for _, f := range gameSchema {
			switch v := rec[f.Name].(type) {
			case string:
				if v == "" {
					t.Errorf("record %d: %s is empty", i, f.Name)
				}
			case []string:
				if len(v) == 0 || v[0] == "" {
					t.Errorf("record %d: %s is an empty list", i, f.Name)
				}
			default:
				t.Errorf("record %d: %s has unexpected value %#v", i, f.Name, v)
			}
		}
	}
	if !reflect.DeepEqual(out[0]["genres"], []string{types.Unknown}) || out[0]["trailer"] != types.Unknown {
		t.Errorf("detail sentinels not applied: %v", out[0])
	}
	if !reflect.DeepEqual(out[2]["genres"], []string{"RPG"}) {
		t.Errorf("genres = %v", out[2]["genres"])
	}
	if !reflect.DeepEqual(out[3]["genres"], []string{"Puzzle"}) {
		t.Errorf("single string should become a list, got %v", out[3]["genres"])
	}
}

func TestNormalizeIsDeterministicAndIdempotent(t *testing.T) {
	n := mustNormalizer(t, brokerSchema, Options{Dedup: true, SortKey: "firm"})
	input := []types.Record{
		{"company": "Charlie", "first_name": "C", "last_name": "One"},
		{"company": "alpha", "email": "a@alpha.test"},
		{"company": "Bravo"},
		{"company": "alpha", "email": "a@alpha.test"},
	}

	first, err := n.Normalize(input)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := n.Normalize(input)
	if !reflect.DeepEqual(first, again) {
		t.Error("normalize is not deterministic")
	}

	second, err := n.Normalize(Records(first))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("normalize is not idempotent:\nfirst  %v\nsecond %v", first, second)
	}
}

func TestNormalizeSortsCaseInsensitively(t *testing.T) {
	n := mustNormalizer(t, brokerSchema, Options{SortKey: "firm"})
	out, err := n.Normalize([]types.Record{
		{"firm": "Charlie"},
		{"firm": "alpha"},
		{"firm": "Bravo"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, r := range out {
		got = append(got, r.String("firm"))
	}
	if !reflect.DeepEqual(got, []string{"alpha", "Bravo", "Charlie"}) {
		t.Errorf("sorted = %v", got)
	}
}

func TestNormalizeKeepsListOrderWithoutSortKey(t *testing.T) {
	n := mustNormalizer(t, brokerSchema, Options{})
	out, _ := n.Normalize([]types.Record{{"firm": "b"}, {"firm": "A"}, {"firm": "c"}})
	if out[0].String("firm") != "b" || out[1].String("firm") != "A" || out[2].String("firm") != "c" {
		t.Errorf("order changed: %v", out)
	}
}

func TestNormalizeDedupKeepsFirst(t *testing.T) {
	n := mustNormalizer(t, brokerSchema, Options{Dedup: true})
	out, err := n.Normalize([]types.Record{
		{"firm": "Acme", "email": "x@acme.test"},
		{"firm": "Acme ", "email": "x@acme.test", "extra": "differs outside schema"},
		{"firm": "Acme", "email": "y@acme.test"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records after dedup, got %d: %v", len(out), out)
	}
	if out[1].String("email") != "y@acme.test" {
		t.Errorf("unexpected survivor: %v", out[1])
	}
}

func TestNormalizerRejectsUnknownSortKey(t *testing.T) {
	_, err := NewNormalizer(brokerSchema, Options{SortKey: "title"}, testLogger)
	if err == nil {
		t.Fatal("expected error for sort key outside the schema")
	}
}

func TestFieldValidateClearsInvalidValues(t *testing.T) {
	n := mustNormalizer(t, brokerSchema, Options{
		Validate: map[string]string{"email": `^[^@\s]+@[^@\s]+\.[^@\s]+$`},
	})
	out, err := n.Normalize([]types.Record{
		{"firm": "Acme", "email": "not-an-email"},
		{"firm": "Bravo", "email": "ok@bravo.test"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].String("email") != types.NotAvailable {
		t.Errorf("invalid email should become N/A, got %q", out[0].String("email"))
	}
	if out[1].String("email") != "ok@bravo.test" {
		t.Errorf("valid email changed: %q", out[1].String("email"))
	}
}

func TestDateNormalizeMiddleware(t *testing.T) {
	m := NewDateNormalizeMiddleware([]string{"release_date"}, "")
	tests := []struct {
		in, want string
	}{
		{"2026-11-01T00:00:00Z", "2026-11-01"},
		{"1 November 2026", "2026-11-01"},
		{"Nov 1, 2026", "2026-11-01"},
		{"TBA", "TBA"},
	}
	for _, tt := range tests {
		rec := types.Record{"release_date": tt.in}
		out, err := m.Process(rec)
		if err != nil {
			t.Fatal(err)
		}
		if got := out.GetString("release_date"); got != tt.want {
			t.Errorf("%q -> %q, want %q", tt.in, got, tt.want)
		}
	}
}
