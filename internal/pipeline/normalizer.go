package pipeline

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// DedupMiddleware drops records whose key fields repeat an earlier record.
// The first occurrence wins.
type DedupMiddleware struct {
	seen map[string]struct{}
	keys []string // fields forming the identity
}

func NewDedupMiddleware(keys []string) *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
		keys: keys,
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec types.Record) (types.Record, error) {
	var b strings.Builder
	for _, k := range m.keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(types.CanonicalRecord(rec).String(k))
		b.WriteByte(0)
	}
	key := b.String()

	if _, exists := m.seen[key]; exists {
		return nil, nil // Drop duplicate
	}
	m.seen[key] = struct{}{}
	return rec, nil
}

// Options control the optional normalization steps.
type Options struct {
	Dedup   bool
	SortKey string // canonical field; empty keeps list order

	// DateFields are rewritten to DateFormat when recognizable.
	DateFields []string
	DateFormat string

	// Validate maps fields to patterns; non-matching values become absent.
	Validate map[string]string
}

// Normalizer maps raw or enhanced records to canonical records.
type Normalizer struct {
	schema   Schema
	opts     Options
	validate *FieldValidateMiddleware
	logger   *slog.Logger
}

// NewNormalizer checks opts against the schema.
func NewNormalizer(schema Schema, opts Options, logger *slog.Logger) (*Normalizer, error) {
	if len(schema) == 0 {
		return nil, &types.ConfigError{Field: "schema", Err: fmt.Errorf("at least one canonical field is required")}
	}
	if opts.SortKey != "" && !schema.Has(opts.SortKey) {
		return nil, &types.ConfigError{
			Field: "harvest.sort_key",
			Err:   fmt.Errorf("%q is not a field of this site (fields: %s)", opts.SortKey, strings.Join(schema.Names(), ", ")),
		}
	}

	n := &Normalizer{
		schema: schema,
		opts:   opts,
		logger: logger.With("component", "normalizer"),
	}
	if len(opts.Validate) > 0 {
		v, err := NewFieldValidateMiddleware(opts.Validate, false)
		if err != nil {
			return nil, &types.ConfigError{Field: "validate", Err: err}
		}
		n.validate = v
	}
	return n, nil
}

// Fields returns the canonical field names in output order.
func (n *Normalizer) Fields() []string {
	return n.schema.Names()
}

// chain builds a fresh pipeline so dedup state never leaks between calls.
func (n *Normalizer) chain() *Pipeline {
	p := New(n.logger)
	p.Use(&TrimMiddleware{})
	if n.validate != nil {
		p.Use(n.validate)
	}
	if len(n.opts.DateFields) > 0 {
		p.Use(NewDateNormalizeMiddleware(n.opts.DateFields, n.opts.DateFormat))
	}
	p.Use(&CanonicalizeMiddleware{Schema: n.schema})
	if n.opts.Dedup {
		p.Use(NewDedupMiddleware(n.schema.Names()))
	}
	return p
}

// Normalize is deterministic: the same records and options always yield
// the same output. Every output field is non-empty. With a sort key the
// output is stably sorted case-insensitively on that field; otherwise list
// order is kept.
func (n *Normalizer) Normalize(records []types.Record) ([]types.CanonicalRecord, error) {
	p := n.chain()
	out := make([]types.CanonicalRecord, 0, len(records))

	for _, rec := range records {
		result, err := p.Process(rec)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		out = append(out, types.CanonicalRecord(result))
	}

	if dropped := len(records) - len(out); dropped > 0 {
		n.logger.Debug("duplicates removed", "count", dropped)
	}

	if key := n.opts.SortKey; key != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].String(key)) < strings.ToLower(out[j].String(key))
		})
	}
	return out, nil
}

// Records converts canonical records back to plain records, e.g. to feed a
// result through normalization again.
func Records(items []types.CanonicalRecord) []types.Record {
	out := make([]types.Record, len(items))
	for i, c := range items {
		out[i] = types.Record(c)
	}
	return out
}
