// Package schema declares the physical layout of the six generated tables and validates
// Arrow schemas against it.
package schema

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
)

// ValidationLevel selects how a stored schema is compared with its declaration.
type ValidationLevel int

const (
	// ValidationLevelStrict wants identical columns in identical order.
	ValidationLevelStrict ValidationLevel = iota

	// ValidationLevelCompatible matches columns by name. A column declared nullable may be
	// stored non-nullable, and extra columns only warn.
	ValidationLevelCompatible
)

// ValidationRule is one check applied to a schema on its own.
type ValidationRule interface {
	Validate(schema *arrow.Schema) (bool, error)
	Name() string
	Description() string
}

// Result groups for checks that are not rules.
const (
	groupStructure  = "SchemaStructure"
	groupCompatible = "SchemaCompatibility"
	groupEvolution  = "SchemaEvolution"
)

// ValidationResult collects the outcome of a validation. Errors and Warnings are keyed by
// the rule or check that produced them.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   map[string][]string `json:"errors,omitempty"`
	Warnings map[string][]string `json:"warnings,omitempty"`
}

func newResult() ValidationResult {
	return ValidationResult{
		Valid:    true,
		Errors:   map[string][]string{},
		Warnings: map[string][]string{},
	}
}

func (r *ValidationResult) fail(group, msg string) {
	r.Valid = false
	r.Errors[group] = append(r.Errors[group], msg)
}

func (r *ValidationResult) warn(group, msg string) {
	r.Warnings[group] = append(r.Warnings[group], msg)
}

// Messages flattens Errors into "group: message" lines, ordered by group.
func (r ValidationResult) Messages() []string {
	groups := make([]string, 0, len(r.Errors))
	for g := range r.Errors {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var out []string
	for _, g := range groups {
		for _, e := range r.Errors[g] {
			out = append(out, g+": "+e)
		}
	}
	return out
}

// SchemaValidator checks schemas against a rule set and against a target schema.
type SchemaValidator interface {
	ValidateSchema(schema *arrow.Schema) ValidationResult
	ValidateAgainstTarget(schema, targetSchema *arrow.Schema) ValidationResult
	AddRule(rule ValidationRule)
	SetValidationLevel(level ValidationLevel)
}
