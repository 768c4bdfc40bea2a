package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Sentinel values substituted for absent fields during normalization.
const (
	NotAvailable = "N/A"
	Unknown      = "Unknown"
)

// Record is a loosely typed field mapping for one scraped item.
// Values are string, []string or nil (an absent field).
type Record map[string]any

// NewRecord creates an empty Record.
func NewRecord() Record {
	return make(Record)
}

// Set sets a field value.
func (r Record) Set(key string, value any) {
	r[key] = value
}

// SetString sets a string field, storing nil when s is blank.
func (r Record) SetString(key, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		r[key] = nil
		return
	}
	r[key] = s
}

// Get retrieves a field value.
func (r Record) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

// GetString retrieves a field value as a string. Non-string values yield "".
func (r Record) GetString(key string) string {
	s, _ := r[key].(string)
	return s
}

// GetStrings retrieves a field as a string list. A plain string is returned
// as a one-element list.
func (r Record) GetStrings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Has returns true if the field exists, even when its value is nil.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Delete removes a field.
func (r Record) Delete(key string) {
	delete(r, key)
}

// Keys returns all field names.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	return keys
}

// Clone creates a copy of the record. String lists are copied too.
func (r Record) Clone() Record {
	clone := make(Record, len(r))
	for k, v := range r {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		clone[k] = v
	}
	return clone
}

// Merge returns a copy of r overlaid with the non-nil values of detail.
// Fields present in r are only replaced by a more specific (non-nil) value.
func (r Record) Merge(detail Record) Record {
	merged := r.Clone()
	for k, v := range detail {
		if v == nil {
			if !merged.Has(k) {
				merged[k] = nil
			}
			continue
		}
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		merged[k] = v
	}
	return merged
}

// CanonicalRecord is a normalized record: every schema field is present and
// holds a non-empty string or a non-empty string list.
type CanonicalRecord map[string]any

// String returns the field as a display string, joining lists with ", ".
func (c CanonicalRecord) String(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	default:
		return ""
	}
}

// CrawlResult is the immutable product of one pipeline run.
type CrawlResult struct {
	RunID      string            `json:"run_id"`
	Site       string            `json:"site"`
	Timestamp  time.Time         `json:"timestamp"`
	URL        string            `json:"url"`
	TotalItems int               `json:"total_items"`
	Partial    bool              `json:"partial,omitempty"`
	Fields     []string          `json:"fields"`
	Items      []CanonicalRecord `json:"items"`
}

// NewCrawlResult builds a CrawlResult; TotalItems always equals len(items).
func NewCrawlResult(runID, site, sourceURL string, fields []string, items []CanonicalRecord, ts time.Time) *CrawlResult {
	if items == nil {
		items = []CanonicalRecord{}
	}
	return &CrawlResult{
		RunID:      runID,
		Site:       site,
		Timestamp:  ts.UTC(),
		URL:        sourceURL,
		TotalItems: len(items),
		Fields:     append([]string(nil), fields...),
		Items:      items,
	}
}

// ToJSON serializes the result as an indented document.
func (r *CrawlResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
