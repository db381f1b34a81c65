package structured

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ingres/internal/domain"
)

// Field is a canonical record field.
type Field string

const (
	FieldRegion     Field = "region"
	FieldRainfall   Field = "rainfall"
	FieldResources  Field = "resources"
	FieldExtraction Field = "extraction"
	FieldPeriod     Field = "period"
	FieldURL        Field = "url"
)

// Alias maps record keys onto one canonical field. Exact names are compared
// case-insensitively; Contains hints are substrings of the lowercased key,
// tried in order; a key containing any Exclude substring never matches.
type Alias struct {
	Field    Field
	Label    string
	Unit     string
	Exact    []string
	Contains []string
	Exclude  []string
}

// AliasTable is the ordered, versioned set of aliases. Fields are resolved
// in table order and each record key claims at most one field, so
// resources must precede extraction.
type AliasTable struct {
	Version int
	Aliases []Alias
	// Ignored keys are never rendered.
	Ignored []string
}

// DefaultAliases covers the field names seen across the CGWB exports and
// the preprocessed JSON records.
var DefaultAliases = AliasTable{
	Version: 2,
	Aliases: []Alias{
		{Field: FieldRegion, Label: "State/UT", Exact: []string{"state", "state_name", "state_ut", "state/ut", "region"}},
		{Field: FieldRainfall, Label: "Annual Rainfall", Unit: "mm", Exact: []string{"rainfall_mm"}, Contains: []string{"rainfall", "precipitation"}},
		{Field: FieldResources, Label: "Annual Extractable Resources", Exact: []string{"annual_extractable_ground_water_resources_ham"}, Contains: []string{"resources", "extractable"}},
		{Field: FieldExtraction, Label: "Ground Water Extraction", Exact: []string{"ground_water_extraction_ham", "extraction_ham"}, Contains: []string{"extraction", "ground_water", "groundwater"}, Exclude: []string{"level", "depth"}},
		{Field: FieldPeriod, Label: "Year", Exact: []string{"year", "assessment_year", "period"}},
		{Field: FieldURL, Label: "Source URL", Exact: []string{"url", "source_url"}},
	},
	Ignored: []string{"_id", "source_file"},
}

// Value is one resolved field of a record.
type Value struct {
	Field Field
	Label string
	Key   string
	Value any
}

// Text renders the value with its unit, if any.
func (v Value) Text(unit string) string {
	s := FormatValue(v.Value)
	if unit != "" {
		s += " " + unit
	}
	return s
}

// Resolution is a record split into recognised fields, in table order, and
// the remaining renderable fields sorted by key.
type Resolution struct {
	Known []Value
	Rest  []Value
}

// Get returns the resolved value for f.
func (r Resolution) Get(f Field) (Value, bool) {
	for _, v := range r.Known {
		if v.Field == f {
			return v, true
		}
	}
	return Value{}, false
}

// Resolve classifies every key of rec. Null and blank values are dropped.
func (t AliasTable) Resolve(rec domain.Record) Resolution {
	keys := make([]string, 0, len(rec))
	for k, v := range rec {
		if present(v) && !t.ignored(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	claimed := make(map[string]bool, len(keys))
	var res Resolution
	for _, a := range t.Aliases {
		if key, ok := a.match(keys, claimed); ok {
			claimed[key] = true
			res.Known = append(res.Known, Value{Field: a.Field, Label: a.Label, Key: key, Value: rec[key]})
		}
	}
	for _, k := range keys {
		if claimed[k] || !scalar(rec[k]) {
			continue
		}
		res.Rest = append(res.Rest, Value{Key: k, Label: k, Value: rec[k]})
	}
	return res
}

// Alias returns the alias entry for f.
func (t AliasTable) Alias(f Field) (Alias, bool) {
	for _, a := range t.Aliases {
		if a.Field == f {
			return a, true
		}
	}
	return Alias{}, false
}

// Keys returns the exact key names probed for f, lowercased.
func (t AliasTable) Keys(f Field) []string {
	a, ok := t.Alias(f)
	if !ok {
		return nil
	}
	return append([]string(nil), a.Exact...)
}

// Region returns the record's region value as written in the store.
func (t AliasTable) Region(rec domain.Record) (string, bool) {
	v, ok := t.Resolve(rec).Get(FieldRegion)
	if !ok {
		return "", false
	}
	return FormatValue(v.Value), true
}

// Period returns the record's temporal tag.
func (t AliasTable) Period(rec domain.Record) (string, bool) {
	v, ok := t.Resolve(rec).Get(FieldPeriod)
	if !ok {
		return "", false
	}
	return FormatValue(v.Value), true
}

// MatchesRegion reports whether rec belongs to region. Comparison is on
// canonical forms and tolerates qualified names such as "NCT of Delhi".
func (t AliasTable) MatchesRegion(rec domain.Record, region string) bool {
	want := domain.CanonicalRegion(region)
	if want == "" {
		return true
	}
	got, ok := t.Region(rec)
	if !ok {
		return false
	}
	return strings.Contains(domain.CanonicalRegion(got), want)
}

// MatchesPeriod reports whether rec carries the given temporal tag.
func (t AliasTable) MatchesPeriod(rec domain.Record, period string) bool {
	want := strings.TrimSpace(period)
	if want == "" {
		return true
	}
	got, ok := t.Period(rec)
	return ok && strings.TrimSpace(got) == want
}

func (t AliasTable) ignored(key string) bool {
	for _, k := range t.Ignored {
		if k == key {
			return true
		}
	}
	return false
}

func (a Alias) match(keys []string, claimed map[string]bool) (string, bool) {
	for _, k := range keys {
		if claimed[k] {
			continue
		}
		lk := strings.ToLower(k)
		for _, e := range a.Exact {
			if lk == e {
				return k, true
			}
		}
	}
	for _, hint := range a.Contains {
		for _, k := range keys {
			if claimed[k] {
				continue
			}
			lk := strings.ToLower(k)
			if strings.Contains(lk, hint) && !a.excluded(lk) {
				return k, true
			}
		}
	}
	return "", false
}

func (a Alias) excluded(lk string) bool {
	for _, x := range a.Exclude {
		if strings.Contains(lk, x) {
			return true
		}
	}
	return false
}

// FormatValue renders a field value without float noise: 1202.46 stays 1202.46.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func scalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int64, int32, uint, uint64:
		return true
	default:
		return false
	}
}
