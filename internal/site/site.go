// Package site holds the per-target profiles that parameterize the harvest
// pipeline: what to wait for, how to extract, which detail pages to visit and
// how records are normalized.
package site

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/parser"
	"github.com/mubureterrance/webscraper-scaffolding/internal/pipeline"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// Profile describes one harvestable site.
type Profile struct {
	Name        string
	Description string
	DefaultURL  string

	// ReadySelector is waited for before extraction. Empty skips the wait.
	ReadySelector string

	// Paginate expands infinite-scroll content before extraction.
	Paginate bool

	// SearchQuery, when set, enables the search prelude with this query
	// unless the configuration supplies one.
	SearchQuery string

	List   parser.ListExtractor
	Detail *DetailSpec

	Schema  pipeline.Schema
	Options pipeline.Options
}

// DetailSpec describes the secondary page visited for each list item.
type DetailSpec struct {
	// LinkField names the record field holding the detail URL.
	LinkField string

	// ReadySelector must appear on the detail page before extraction.
	ReadySelector string

	Extract parser.DetailFunc

	// Fields are the detail fields filled by Placeholder on failure.
	Fields      []string
	Placeholder func() types.Record
}

// Deps are the collaborators profiles may need.
type Deps struct {
	Custom   config.CustomConfig
	Fallback parser.TextFetcher
	Logger   *slog.Logger
}

type builder struct {
	description string
	build       func(Deps) (*Profile, error)
}

var registry = map[string]builder{
	"brokers":     {"business-broker directory, read from the rendered result cards", brokers},
	"brokers-api": {"business-broker directory, read from its JSON endpoint", brokersAPI},
	"games":       {"upcoming game releases with per-game detail pages", games},
	"inventory":   {"every link, image and email address on a page", inventory},
	"custom":      {"records described by configured CSS/XPath rules", custom},
}

// Build returns the named profile.
func Build(name string, deps Deps) (*Profile, error) {
	b, ok := registry[name]
	if !ok {
		return nil, &types.ConfigError{Field: "harvest.site", Err: fmt.Errorf("%w: %q (available: %v)", types.ErrUnknownSite, name, Names())}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	p, err := b.build(deps)
	if err != nil {
		return nil, err
	}
	p.Name = name
	p.Description = b.description
	return p, nil
}

// Names returns the registered profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info summarizes a registered profile.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DefaultURL  string `json:"default_url,omitempty"`
}

// Catalog summarizes every registered profile. Profiles that need
// configuration to build are listed without a default URL.
func Catalog() []Info {
	infos := make([]Info, 0, len(registry))
	for _, name := range Names() {
		info := Info{Name: name, Description: registry[name].description}
		if p, err := registry[name].build(Deps{Logger: slog.Default()}); err == nil {
			info.DefaultURL = p.DefaultURL
		}
		infos = append(infos, info)
	}
	return infos
}

// --- Profiles ---

const emailPattern = `^[^@\s]+@[^@\s]+\.[^@\s]+$`

func brokers(Deps) (*Profile, error) {
	return &Profile{
		DefaultURL:    "https://www.ibba.org/find-a-business-broker/",
		ReadySelector: parser.BrokerCardSelector,
		SearchQuery:   "New York",
		List:          &parser.DocumentExtractor{Site: "brokers", Func: parser.ExtractBrokers},
		Schema: pipeline.Schema{
			{Name: "firm"},
			{Name: "contact_person"},
			{Name: "email"},
		},
		Options: pipeline.Options{
			Dedup:    true,
			Validate: map[string]string{"email": emailPattern},
		},
	}, nil
}

func brokersAPI(deps Deps) (*Profile, error) {
	return &Profile{
		DefaultURL: "https://www.ibba.org/wp-json/brokers/all",
		List: &parser.APIExtractor{
			Site:     "brokers-api",
			Decode:   parser.DecodeBrokerAPI,
			Fallback: deps.Fallback,
			Logger:   deps.Logger,
		},
		Schema: pipeline.Schema{
			{Name: "firm", Sources: []string{"company"}},
			{Name: "contact_person", Join: []string{"first_name", "last_name"}},
			{Name: "email"},
		},
		Options: pipeline.Options{
			SortKey:  "firm",
			Validate: map[string]string{"email": emailPattern},
		},
	}, nil
}

func games(Deps) (*Profile, error) {
	return &Profile{
		DefaultURL:    "https://www.igdb.com/games/coming_soon",
		ReadySelector: ".gameGridContainer, " + parser.GameCardSelector,
		Paginate:      true,
		List:          &parser.DocumentExtractor{Site: "games", Func: parser.ExtractGames},
		Detail: &DetailSpec{
			LinkField:     "link",
			ReadySelector: parser.GameDetailContainer,
			Extract:       parser.ExtractGameDetail,
			Fields:        parser.GameDetailFields,
			Placeholder:   parser.GamePlaceholder,
		},
		Schema: pipeline.Schema{
			{Name: "title"},
			{Name: "link"},
			{Name: "release_date", Sentinel: types.Unknown},
			{Name: "image"},
			{Name: "genres", List: true, Sentinel: types.Unknown},
			{Name: "platforms", List: true, Sentinel: types.Unknown},
			{Name: "publishers", List: true, Sentinel: types.Unknown},
			{Name: "trailer", Sentinel: types.Unknown},
		},
		Options: pipeline.Options{
			DateFields: []string{"release_date"},
		},
	}, nil
}

func inventory(Deps) (*Profile, error) {
	return &Profile{
		Paginate: true,
		List:     &parser.DocumentExtractor{Site: "inventory", Func: parser.ExtractInventory},
		Schema: pipeline.Schema{
			{Name: "kind"},
			{Name: "value"},
		},
		Options: pipeline.Options{Dedup: true},
	}, nil
}

func custom(deps Deps) (*Profile, error) {
	c := deps.Custom
	if c.ItemSelector == "" {
		return nil, &types.ConfigError{Field: "harvest.custom.item_selector", Err: fmt.Errorf("required for the custom site")}
	}
	if len(c.Rules) == 0 {
		return nil, &types.ConfigError{Field: "harvest.custom.rules", Err: fmt.Errorf("at least one rule is required for the custom site")}
	}

	fields := c.Fields
	if len(fields) == 0 {
		for _, r := range c.Rules {
			fields = append(fields, r.Name)
		}
	}
	schema := make(pipeline.Schema, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		schema = append(schema, pipeline.FieldSpec{Name: f})
	}

	rules := parser.NewRuleExtractor(c.ItemSelector, c.Rules, deps.Logger)
	return &Profile{
		ReadySelector: c.ItemSelector,
		Paginate:      true,
		List:          &parser.DocumentExtractor{Site: "custom", Func: rules.FromDocument},
		Schema:        schema,
	}, nil
}
