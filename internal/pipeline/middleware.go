package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// TrimMiddleware trims and collapses whitespace in string fields and list
// elements. Fields that become blank are set to nil; blank list elements
// are dropped.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec types.Record) (types.Record, error) {
	out := rec.Clone()
	for key, v := range out {
		switch val := v.(type) {
		case string:
			out.SetString(key, collapse(val))
		case []string, []any:
			list := make([]string, 0)
			for _, s := range out.GetStrings(key) {
				if s = collapse(s); s != "" {
					list = append(list, s)
				}
			}
			if len(list) == 0 {
				out[key] = nil
			} else {
				out[key] = list
			}
		case nil:
		default:
			out.SetString(key, fmt.Sprint(val))
		}
	}
	return out, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FieldValidateMiddleware validates field values with regex patterns.
// Invalid values are cleared, or the record dropped when dropInvalid is set.
type FieldValidateMiddleware struct {
	validations map[string]*regexp.Regexp // field -> validation pattern
	dropInvalid bool
}

func NewFieldValidateMiddleware(patterns map[string]string, dropInvalid bool) (*FieldValidateMiddleware, error) {
	compiled := make(map[string]*regexp.Regexp, len(patterns))
	for field, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid validation regex for %q: %w", field, err)
		}
		compiled[field] = re
	}
	return &FieldValidateMiddleware{
		validations: compiled,
		dropInvalid: dropInvalid,
	}, nil
}

func (m *FieldValidateMiddleware) Name() string { return "field_validate" }

func (m *FieldValidateMiddleware) Process(rec types.Record) (types.Record, error) {
	out := rec
	cloned := false
	for field, re := range m.validations {
		s := rec.GetString(field)
		if s == "" || re.MatchString(s) {
			continue
		}
		if m.dropInvalid {
			return nil, nil // Drop record
		}
		if !cloned {
			out, cloned = rec.Clone(), true
		}
		out[field] = nil
	}
	return out, nil
}

// DateNormalizeMiddleware rewrites recognizable dates in the given fields to
// a single layout. Unrecognized values are left as they are.
type DateNormalizeMiddleware struct {
	fields    []string
	outFormat string
	inFormats []string
}

func NewDateNormalizeMiddleware(fields []string, outFormat string) *DateNormalizeMiddleware {
	if outFormat == "" {
		outFormat = "2006-01-02"
	}
	return &DateNormalizeMiddleware{
		fields:    fields,
		outFormat: outFormat,
		inFormats: []string{
			time.RFC3339,
			time.RFC1123,
			time.RFC1123Z,
			"2006-01-02",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"January 2, 2006",
			"Jan 2, 2006",
			"2 January 2006",
			"2 Jan 2006",
			"Mon, 02 Jan 2006",
			"02-Jan-2006",
			"2006/01/02",
		},
	}
}

func (m *DateNormalizeMiddleware) Name() string { return "date_normalize" }

func (m *DateNormalizeMiddleware) Process(rec types.Record) (types.Record, error) {
	out := rec.Clone()
	for _, field := range m.fields {
		s := strings.TrimSpace(out.GetString(field))
		if s == "" {
			continue
		}

		for _, format := range m.inFormats {
			t, err := time.Parse(format, s)
			if err == nil {
				out.Set(field, t.Format(m.outFormat))
				break
			}
		}
	}
	return out, nil
}
