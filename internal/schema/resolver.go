// Package schema maps loosely named input headers onto canonical fields.
//
// Matching is exact on a normalized token form: case, surrounding whitespace and
// separator style ("Gross Revenue", "gross_revenue", "GrossRevenue") are ignored,
// but nothing fuzzier than that is attempted. A header either resolves to exactly
// one canonical field or it is ignored.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// synonyms lists the accepted header spellings per canonical field. Every entry is
// normalized at lookup time, so only distinct spellings need listing.
var synonyms = map[Field][]string{
	FieldDate:                  {"date", "day", "report date"},
	FieldPackage:               {"package", "pkg", "package name", "bundle"},
	FieldCampaignID:            {"campaign id", "campaign", "campaignid"},
	FieldAdvertiser:            {"advertiser", "advertiser name"},
	FieldChannel:               {"channel", "channel name"},
	FieldAdFormat:              {"ad format", "format", "adformat"},
	FieldProduct:               {"product", "product id"},
	FieldGrossRevenue:          {"gross revenue", "revenue", "gross rev"},
	FieldRevenueCost:           {"revenue cost", "cost"},
	FieldPublisherImpressions:  {"publisher impressions", "pub imps", "pubimps", "publisher imps"},
	FieldAdvertiserImpressions: {"advertiser impressions", "adv imps", "advimps", "advertiser imps"},
	FieldRequests:              {"request ne", "requests", "request", "requests ne", "ad requests"},
	FieldIVTRate:               {"ivt (%)", "ivt", "ivt %", "ivt rate", "invalid traffic"},
	FieldMargin:                {"margin (%)", "margin", "margin %"},
	FieldRPM:                   {"rpm"},
	FieldFillRate:              {"fill rate", "fill rate (%)", "fillrate"},
	FieldCPM:                   {"cpm", "ecpm"},
	FieldScore:                 {"score", "quality score"},
}

// Normalize folds a header into its comparison token: lowercase, trimmed, quotes
// removed and runs of whitespace, '_' or '-' collapsed into one space.
func Normalize(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.Trim(h, "\"'\uFEFF")

	var b strings.Builder
	pendingSpace := false
	for _, r := range h {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func compact(token string) string {
	return strings.ReplaceAll(token, " ", "")
}

// Resolver owns an immutable synonym table. The zero value is not usable; build one
// with NewResolver.
type Resolver struct {
	lookup map[string]Field
}

// NewResolver builds a resolver from the built-in synonyms plus any extras. Extra
// synonyms may also introduce new canonical fields, e.g. a custom dimension.
func NewResolver(extra map[Field][]string) (*Resolver, error) {
	r := &Resolver{lookup: make(map[string]Field)}
	for field, names := range synonyms {
		if err := r.add(field, names); err != nil {
			return nil, err
		}
	}
	for field, names := range extra {
		if err := r.add(field, append([]string{string(field)}, names...)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Resolver) add(field Field, names []string) error {
	for _, name := range names {
		token := Normalize(name)
		if token == "" {
			continue
		}
		for _, key := range []string{token, compact(token)} {
			if existing, ok := r.lookup[key]; ok && existing != field {
				return fmt.Errorf("synonym %q maps to both %s and %s", name, existing, field)
			}
			r.lookup[key] = field
		}
	}
	return nil
}

// Match returns the canonical field for one header.
func (r *Resolver) Match(header string) (Field, bool) {
	token := Normalize(header)
	if token == "" {
		return "", false
	}
	if f, ok := r.lookup[token]; ok {
		return f, true
	}
	f, ok := r.lookup[compact(token)]
	return f, ok
}

// Mapping is the resolved binding of canonical fields to header columns.
type Mapping struct {
	Columns map[Field]int
	Headers []string
	// Ignored lists headers that matched a field already bound by an earlier column.
	Ignored []string
}

// Column returns the header index bound to f.
func (m *Mapping) Column(f Field) (int, bool) {
	idx, ok := m.Columns[f]
	return idx, ok
}

// Has reports whether f was resolved.
func (m *Mapping) Has(f Field) bool {
	_, ok := m.Columns[f]
	return ok
}

// Header returns the original header text bound to f.
func (m *Mapping) Header(f Field) string {
	if idx, ok := m.Columns[f]; ok && idx < len(m.Headers) {
		return m.Headers[idx]
	}
	return ""
}

// Fields lists resolved canonical fields sorted by name.
func (m *Mapping) Fields() []Field {
	out := make([]Field, 0, len(m.Columns))
	for f := range m.Columns {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve binds headers to canonical fields and fails with *MissingFieldError when
// any required field is left unresolved. The first matching header wins.
func (r *Resolver) Resolve(headers []string, required []Field) (*Mapping, error) {
	m := &Mapping{
		Columns: make(map[Field]int, len(headers)),
		Headers: headers,
	}
	for i, h := range headers {
		f, ok := r.Match(h)
		if !ok {
			continue
		}
		if _, bound := m.Columns[f]; bound {
			m.Ignored = append(m.Ignored, h)
			continue
		}
		m.Columns[f] = i
	}

	var missing []Field
	seen := make(map[Field]bool, len(required))
	for _, f := range required {
		if seen[f] {
			continue
		}
		seen[f] = true
		if !m.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldError{Fields: missing, Headers: headers}
	}
	return m, nil
}

// MissingFieldError names every required canonical field with no matching header.
type MissingFieldError struct {
	Fields  []Field
	Headers []string
}

func (e *MissingFieldError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	if len(e.Headers) == 0 {
		return fmt.Sprintf("missing required field(s) %s", strings.Join(names, ", "))
	}
	return fmt.Sprintf("missing required field(s) %s; available columns: %s",
		strings.Join(names, ", "), strings.Join(e.Headers, ", "))
}
