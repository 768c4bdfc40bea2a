package site

import (
	"errors"
	"log/slog"
	"os"
	"reflect"
	"testing"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/parser"
	"github.com/mubureterrance/webscraper-scaffolding/internal/pipeline"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestBuildUnknownSite(t *testing.T) {
	_, err := Build("nope", Deps{Logger: testLogger})
	if !errors.Is(err, types.ErrUnknownSite) {
		t.Fatalf("expected ErrUnknownSite, got %v", err)
	}
	var ce *types.ConfigError
	if !errors.As(err, &ce) || ce.Field != "harvest.site" {
		t.Errorf("expected ConfigError on harvest.site, got %v", err)
	}
}

func TestEveryProfileHasValidNormalizer(t *testing.T) {
	deps := Deps{
		Logger: testLogger,
		Custom: config.CustomConfig{
			ItemSelector: ".item",
			Rules:        []config.ParseRule{{Name: "title", Selector: "h2"}},
		},
	}
	for _, name := range Names() {
		p, err := Build(name, deps)
		if err != nil {
			t.Errorf("%s: build: %v", name, err)
			continue
		}
		if p.Name != name || p.List == nil {
			t.Errorf("%s: incomplete profile %+v", name, p)
		}
		if _, err := pipeline.NewNormalizer(p.Schema, p.Options, testLogger); err != nil {
			t.Errorf("%s: normalizer: %v", name, err)
		}
		if p.Detail != nil {
			for _, f := range p.Detail.Fields {
				if !p.Schema.Has(f) {
					t.Errorf("%s: detail field %q missing from schema", name, f)
				}
			}
		}
	}
}

func TestGamesProfileDetail(t *testing.T) {
	p, err := Build("games", Deps{Logger: testLogger})
	if err != nil {
		t.Fatal(err)
	}
	if p.Detail == nil || p.Detail.LinkField != "link" {
		t.Fatalf("games profile needs a detail spec keyed on link, got %+v", p.Detail)
	}
	if !p.Paginate {
		t.Error("games list is infinite-scroll and should paginate")
	}

	n, err := pipeline.NewNormalizer(p.Schema, p.Options, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	rec := types.NewRecord()
	rec.SetString("title", "Alpha")
	out, err := n.Normalize([]types.Record{rec.Merge(p.Detail.Placeholder())})
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range p.Detail.Fields {
		if got := out[0].String(f); got != types.Unknown {
			t.Errorf("%s = %q, want %q", f, got, types.Unknown)
		}
	}
}

func TestBrokersAPIProfileNormalizes(t *testing.T) {
	p, err := Build("brokers-api", Deps{Logger: testLogger})
	if err != nil {
		t.Fatal(err)
	}
	records, err := parser.DecodeBrokerAPI([]byte(`[
		{"company":"Charlie","first_name":" Ann ","last_name":"Lee","email":"ann@charlie.com"},
		{"company":"alpha","first_name":"","last_name":"","email":"not-an-email"},
		{"company":"Bravo","first_name":"Bo","last_name":"","email":""}
	]`))
	if err != nil {
		t.Fatal(err)
	}

	n, err := pipeline.NewNormalizer(p.Schema, p.Options, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	out, err := n.Normalize(records)
	if err != nil {
		t.Fatal(err)
	}

	var firms []string
	for _, r := range out {
		firms = append(firms, r.String("firm"))
	}
	if !reflect.DeepEqual(firms, []string{"alpha", "Bravo", "Charlie"}) {
		t.Errorf("firms = %v", firms)
	}
	if out[2].String("contact_person") != "Ann Lee" {
		t.Errorf("contact_person = %q", out[2].String("contact_person"))
	}
	if out[0].String("email") != types.NotAvailable || out[0].String("contact_person") != types.NotAvailable {
		t.Errorf("invalid email and empty names should be N/A: %v", out[0])
	}
}

func TestCustomProfile(t *testing.T) {
	_, err := Build("custom", Deps{Logger: testLogger})
	var ce *types.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError without rules, got %v", err)
	}

	p, err := Build("custom", Deps{
		Logger: testLogger,
		Custom: config.CustomConfig{
			ItemSelector: ".item",
			Rules: []config.ParseRule{
				{Name: "title", Selector: "h2"},
				{Name: "url", Selector: "a", Attribute: "href"},
				{Name: "title", Selector: "//h3", Type: "xpath"},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p.Schema.Names(), []string{"title", "url"}) {
		t.Errorf("schema = %v", p.Schema.Names())
	}
	if p.ReadySelector != ".item" {
		t.Errorf("ready selector = %q", p.ReadySelector)
	}
}

func TestCatalog(t *testing.T) {
	infos := Catalog()
	if len(infos) != len(Names()) {
		t.Fatalf("catalog has %d entries, want %d", len(infos), len(Names()))
	}
	for _, info := range infos {
		if info.Description == "" {
			t.Errorf("%s has no description", info.Name)
		}
		if info.Name == "games" && info.DefaultURL != "https://www.igdb.com/games/coming_soon" {
			t.Errorf("games default URL = %q", info.DefaultURL)
		}
	}
}
