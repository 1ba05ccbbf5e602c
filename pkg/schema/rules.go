package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

func field(s *arrow.Schema, name string) (arrow.Field, bool) {
	idx := s.FieldIndices(name)
	if len(idx) == 0 {
		return arrow.Field{}, false
	}
	return s.Field(idx[0]), true
}

// verdict turns the problems a rule found into its return values.
func verdict(what string, problems []string) (bool, error) {
	if len(problems) == 0 {
		return true, nil
	}
	return false, fmt.Errorf("%s: %s", what, strings.Join(problems, "; "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RequiredFieldsRule fails when any listed column is absent.
type RequiredFieldsRule struct {
	RequiredFields []string
}

func (r *RequiredFieldsRule) Validate(s *arrow.Schema) (bool, error) {
	var missing []string
	for _, name := range r.RequiredFields {
		if _, ok := field(s, name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return true, nil
	}
	return verdict("missing columns", []string{strings.Join(missing, ", ")})
}

func (r *RequiredFieldsRule) Name() string { return "RequiredFieldsRule" }

func (r *RequiredFieldsRule) Description() string {
	return "listed columns exist"
}

// NullabilityRule fails when a listed column is declared nullable. Absent columns are left
// to RequiredFieldsRule.
type NullabilityRule struct {
	NonNullableFields []string
}

func (r *NullabilityRule) Validate(s *arrow.Schema) (bool, error) {
	var nullable []string
	for _, name := range r.NonNullableFields {
		if f, ok := field(s, name); ok && f.Nullable {
			nullable = append(nullable, name)
		}
	}
	if len(nullable) == 0 {
		return true, nil
	}
	return verdict("columns declared nullable", []string{strings.Join(nullable, ", ")})
}

func (r *NullabilityRule) Name() string { return "NullabilityRule" }

func (r *NullabilityRule) Description() string {
	return "listed columns are NOT NULL"
}

// FieldTypeRule restricts each listed column to a set of types.
type FieldTypeRule struct {
	AllowedTypes map[string][]arrow.DataType
}

func (r *FieldTypeRule) Validate(s *arrow.Schema) (bool, error) {
	var problems []string
	for _, name := range sortedKeys(r.AllowedTypes) {
		allowed := r.AllowedTypes[name]
		f, ok := field(s, name)
		if !ok {
			problems = append(problems, name+" is absent")
			continue
		}
		match := false
		names := make([]string, len(allowed))
		for i, dt := range allowed {
			names[i] = dt.String()
			match = match || arrow.TypeEqual(f.Type, dt)
		}
		if !match {
			problems = append(problems, fmt.Sprintf("%s is %s, want %s", name, f.Type, strings.Join(names, " or ")))
		}
	}
	return verdict("column types", problems)
}

func (r *FieldTypeRule) Name() string { return "FieldTypeRule" }

func (r *FieldTypeRule) Description() string {
	return "listed columns have one of the allowed types"
}

// TemporalFormatRule requires timestamp columns with a given unit and, when set, zone.
type TemporalFormatRule struct {
	TimestampFields  []string
	RequiredUnit     arrow.TimeUnit
	RequiredTimezone string
}

func (r *TemporalFormatRule) Validate(s *arrow.Schema) (bool, error) {
	var problems []string
	for _, name := range r.TimestampFields {
		f, ok := field(s, name)
		if !ok {
			continue
		}
		ts, ok := f.Type.(*arrow.TimestampType)
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s is %s, not a timestamp", name, f.Type))
		case ts.Unit != r.RequiredUnit:
			problems = append(problems, fmt.Sprintf("%s has unit %s, want %s", name, ts.Unit, r.RequiredUnit))
		case r.RequiredTimezone != "" && ts.TimeZone != r.RequiredTimezone:
			problems = append(problems, fmt.Sprintf("%s has zone %q, want %q", name, ts.TimeZone, r.RequiredTimezone))
		}
	}
	return verdict("timestamp columns", problems)
}

func (r *TemporalFormatRule) Name() string { return "TemporalFormatRule" }

func (r *TemporalFormatRule) Description() string {
	return "timestamp columns use the required unit and zone"
}

// DecimalPrecisionRule pins decimal columns to a [precision, scale] pair.
type DecimalPrecisionRule struct {
	FieldRequirements map[string][2]int32
}

func (r *DecimalPrecisionRule) Validate(s *arrow.Schema) (bool, error) {
	var problems []string
	for _, name := range sortedKeys(r.FieldRequirements) {
		want := r.FieldRequirements[name]
		f, ok := field(s, name)
		if !ok {
			continue
		}
		dec, ok := f.Type.(*arrow.Decimal128Type)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s is %s, not a decimal", name, f.Type))
			continue
		}
		if dec.Precision != want[0] || dec.Scale != want[1] {
			problems = append(problems, fmt.Sprintf("%s is decimal(%d, %d), want decimal(%d, %d)",
				name, dec.Precision, dec.Scale, want[0], want[1]))
		}
	}
	return verdict("decimal columns", problems)
}

func (r *DecimalPrecisionRule) Name() string { return "DecimalPrecisionRule" }

func (r *DecimalPrecisionRule) Description() string {
	return "decimal columns have the required precision and scale"
}

// MetadataRule requires schema metadata keys. KeyValidators, when present for a key, also
// check its value.
type MetadataRule struct {
	RequiredKeys  []string
	KeyValidators map[string]func(string) error
}

func (r *MetadataRule) Validate(s *arrow.Schema) (bool, error) {
	md := s.Metadata()

	var missing []string
	for _, key := range r.RequiredKeys {
		if md.FindKey(key) < 0 {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return verdict("missing metadata", []string{strings.Join(missing, ", ")})
	}

	var problems []string
	for _, key := range sortedKeys(r.KeyValidators) {
		i := md.FindKey(key)
		if i < 0 {
			continue
		}
		if err := r.KeyValidators[key](md.Values()[i]); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
		}
	}
	return verdict("metadata values", problems)
}

func (r *MetadataRule) Name() string { return "MetadataRule" }

func (r *MetadataRule) Description() string {
	return "schema metadata carries the required keys"
}
