package schema

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/money"
	"github.com/TFMV/rawlayer/pkg/temporal"
)

// ArrowSchemaValidator applies rules to a schema and compares schemas at a ValidationLevel.
type ArrowSchemaValidator struct {
	rules []ValidationRule
	level ValidationLevel
}

var _ SchemaValidator = (*ArrowSchemaValidator)(nil)

// NewArrowSchemaValidator returns an empty validator at the compatible level.
func NewArrowSchemaValidator() *ArrowSchemaValidator {
	return &ArrowSchemaValidator{level: ValidationLevelCompatible}
}

// NewStrictValidator returns an empty validator at the strict level.
func NewStrictValidator() *ArrowSchemaValidator {
	return &ArrowSchemaValidator{level: ValidationLevelStrict}
}

// NewTableValidator returns a validator holding the column rules derived from t.
func NewTableValidator(t Table, level ValidationLevel) *ArrowSchemaValidator {
	decimals := make(map[string][2]int32)
	for _, name := range t.MoneyColumns() {
		decimals[name] = [2]int32{money.Precision, money.Scale}
	}

	v := &ArrowSchemaValidator{level: level}
	v.AddRule(&RequiredFieldsRule{RequiredFields: t.ColumnNames()})
	v.AddRule(&NullabilityRule{NonNullableFields: t.NonNullColumns()})
	v.AddRule(&DecimalPrecisionRule{FieldRequirements: decimals})
	v.AddRule(&TemporalFormatRule{
		TimestampFields:  t.TimestampColumns(),
		RequiredUnit:     temporal.Type.Unit,
		RequiredTimezone: temporal.Zone,
	})
	return v
}

// Conform returns a SchemaMismatchError unless s matches the declared schema of t column for
// column. Metadata is ignored.
func Conform(t Table, s *arrow.Schema) error {
	if s == nil {
		return &core.SchemaMismatchError{Table: t.Name, Reason: "schema is nil"}
	}
	v := NewTableValidator(t, ValidationLevelStrict)
	msgs := append(v.ValidateSchema(s).Messages(), v.ValidateAgainstTarget(s, t.Schema).Messages()...)
	if len(msgs) == 0 {
		return nil
	}
	return &core.SchemaMismatchError{Table: t.Name, Reason: strings.Join(msgs, "; ")}
}

// ValidateSchema runs every rule against schema.
func (v *ArrowSchemaValidator) ValidateSchema(schema *arrow.Schema) ValidationResult {
	res := newResult()
	for _, rule := range v.rules {
		ok, err := rule.Validate(schema)
		if ok {
			continue
		}
		msg := "rule failed"
		if err != nil {
			msg = err.Error()
		}
		res.fail(rule.Name(), msg)
	}
	return res
}

// ValidateAgainstTarget compares schema with targetSchema at the validator's level.
func (v *ArrowSchemaValidator) ValidateAgainstTarget(schema, targetSchema *arrow.Schema) ValidationResult {
	res := newResult()
	if v.level == ValidationLevelStrict {
		compareStrict(schema, targetSchema, &res)
	} else {
		compareByName(schema, targetSchema, &res)
	}
	return res
}

func compareStrict(got, want *arrow.Schema, res *ValidationResult) {
	if got.NumFields() != want.NumFields() {
		res.fail(groupStructure, fmt.Sprintf("%d columns, want %d", got.NumFields(), want.NumFields()))
		return
	}
	for i, w := range want.Fields() {
		g := got.Field(i)
		if g.Name != w.Name {
			res.fail(groupStructure, fmt.Sprintf("column %d is %s, want %s", i, g.Name, w.Name))
			continue
		}
		if !arrow.TypeEqual(g.Type, w.Type) {
			res.fail(groupStructure, fmt.Sprintf("%s is %s, want %s", w.Name, g.Type, w.Type))
		}
		if g.Nullable != w.Nullable {
			res.fail(groupStructure, fmt.Sprintf("%s nullable=%t, want %t", w.Name, g.Nullable, w.Nullable))
		}
	}
}

func compareByName(got, want *arrow.Schema, res *ValidationResult) {
	for _, w := range want.Fields() {
		g, ok := field(got, w.Name)
		if !ok {
			res.fail(groupCompatible, w.Name+" is absent")
			continue
		}
		if !arrow.TypeEqual(g.Type, w.Type) {
			res.fail(groupCompatible, fmt.Sprintf("%s is %s, want %s", w.Name, g.Type, w.Type))
		}
		switch {
		case g.Nullable && !w.Nullable:
			res.fail(groupCompatible, w.Name+" must be NOT NULL")
		case !g.Nullable && w.Nullable:
			res.warn(groupEvolution, w.Name+" is stored NOT NULL")
		}
	}
	for _, g := range got.Fields() {
		if _, ok := field(want, g.Name); !ok {
			res.warn(groupEvolution, "extra column "+g.Name)
		}
	}
}

func (v *ArrowSchemaValidator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
}

func (v *ArrowSchemaValidator) SetValidationLevel(level ValidationLevel) {
	v.level = level
}
