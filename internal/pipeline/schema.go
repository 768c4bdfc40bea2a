package pipeline

import (
	"strings"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// FieldSpec maps raw source fields onto one canonical field.
type FieldSpec struct {
	// Name is the canonical field name. It is always tried as a source
	// first, so canonical output maps onto itself.
	Name string

	// Sources are alternative raw field names, tried in order.
	Sources []string

	// Join names parts concatenated with a space when no source is set,
	// e.g. first and last name.
	Join []string

	// List marks an ordered string-list field.
	List bool

	// Sentinel replaces an absent value. Defaults to types.NotAvailable.
	Sentinel string
}

func (f FieldSpec) sentinel() string {
	if f.Sentinel == "" {
		return types.NotAvailable
	}
	return f.Sentinel
}

// Schema is the ordered set of canonical fields for a site.
type Schema []FieldSpec

// Names returns the canonical field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Has reports whether name is a canonical field.
func (s Schema) Has(name string) bool {
	for _, f := range s {
		if f.Name == name {
			return true
		}
	}
	return false
}

// CanonicalizeMiddleware projects a record onto a Schema: only schema
// fields survive and every one of them is non-empty.
type CanonicalizeMiddleware struct {
	Schema Schema
}

func (m *CanonicalizeMiddleware) Name() string { return "canonicalize" }

func (m *CanonicalizeMiddleware) Process(rec types.Record) (types.Record, error) {
	out := make(types.Record, len(m.Schema))
	for _, f := range m.Schema {
		if f.List {
			out[f.Name] = listValue(rec, f)
		} else {
			out[f.Name] = stringValue(rec, f)
		}
	}
	return out, nil
}

func stringValue(rec types.Record, f FieldSpec) string {
	for _, src := range append([]string{f.Name}, f.Sources...) {
		if s := asString(rec[src]); s != "" {
			return s
		}
	}
	if len(f.Join) > 0 {
		parts := make([]string, 0, len(f.Join))
		for _, p := range f.Join {
			if s := asString(rec[p]); s != "" {
				parts = append(parts, s)
			}
		}
		if joined := strings.TrimSpace(strings.Join(parts, " ")); joined != "" {
			return joined
		}
	}
	return f.sentinel()
}

func listValue(rec types.Record, f FieldSpec) []string {
	for _, src := range append([]string{f.Name}, f.Sources...) {
		var list []string
		for _, s := range rec.GetStrings(src) {
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
		if len(list) > 0 {
			return list
		}
	}
	return []string{f.sentinel()}
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		return strings.TrimSpace(strings.Join(val, ", "))
	default:
		return ""
	}
}
