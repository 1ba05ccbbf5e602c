package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ContractConfig is a consumer-maintained set of expectations on one table, loaded from a
// YAML or JSON file.
type ContractConfig struct {
	// Table is the table the contract applies to.
	Table string `json:"table" yaml:"table"`

	// ValidationLevel is "strict" or "compatible".
	ValidationLevel string `json:"validation_level" yaml:"validation_level"`

	RequiredFields    []string            `json:"required_fields" yaml:"required_fields"`
	NonNullableFields []string            `json:"non_nullable_fields" yaml:"non_nullable_fields"`
	FieldTypes        map[string][]string `json:"field_types" yaml:"field_types"`
	TimestampFields   []string            `json:"timestamp_fields" yaml:"timestamp_fields"`

	// RequiredTimezone defaults to UTC when timestamp fields are listed.
	RequiredTimezone string `json:"required_timezone" yaml:"required_timezone"`

	// DecimalPrecisions maps decimal field names to [precision, scale].
	DecimalPrecisions map[string][2]int32 `json:"decimal_precisions" yaml:"decimal_precisions"`

	RequiredMetadataKeys []string `json:"required_metadata_keys" yaml:"required_metadata_keys"`
}

// LoadContract reads a contract file. The format follows the file extension.
func LoadContract(path string) (*ContractConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract file: %w", err)
	}

	var cfg ContractConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON contract file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML contract file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported contract file format: %s (supported: .json, .yaml, .yml)", ext)
	}

	if cfg.Table == "" {
		return nil, fmt.Errorf("contract file %s does not name a table", path)
	}
	if _, err := Lookup(cfg.Table); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validator builds the validator the contract describes.
func (c *ContractConfig) Validator() (*ArrowSchemaValidator, error) {
	validator := NewArrowSchemaValidator()

	switch strings.ToLower(c.ValidationLevel) {
	case "", "compatible":
		validator.SetValidationLevel(ValidationLevelCompatible)
	case "strict":
		validator.SetValidationLevel(ValidationLevelStrict)
	default:
		return nil, fmt.Errorf("unknown validation level: %s", c.ValidationLevel)
	}

	if len(c.RequiredFields) > 0 {
		validator.AddRule(&RequiredFieldsRule{RequiredFields: c.RequiredFields})
	}

	if len(c.NonNullableFields) > 0 {
		validator.AddRule(&NullabilityRule{NonNullableFields: c.NonNullableFields})
	}

	if len(c.FieldTypes) > 0 {
		allowed := make(map[string][]arrow.DataType, len(c.FieldTypes))
		for field, names := range c.FieldTypes {
			for _, name := range names {
				dt, err := ParseArrowType(name)
				if err != nil {
					return nil, fmt.Errorf("invalid type specification for field '%s': %w", field, err)
				}
				allowed[field] = append(allowed[field], dt)
			}
		}
		validator.AddRule(&FieldTypeRule{AllowedTypes: allowed})
	}

	if len(c.TimestampFields) > 0 {
		tz := c.RequiredTimezone
		if tz == "" {
			tz = "UTC"
		}
		validator.AddRule(&TemporalFormatRule{
			TimestampFields:  c.TimestampFields,
			RequiredUnit:     arrow.Microsecond,
			RequiredTimezone: tz,
		})
	}

	if len(c.DecimalPrecisions) > 0 {
		validator.AddRule(&DecimalPrecisionRule{FieldRequirements: c.DecimalPrecisions})
	}

	if len(c.RequiredMetadataKeys) > 0 {
		validator.AddRule(&MetadataRule{RequiredKeys: c.RequiredMetadataKeys})
	}

	return validator, nil
}

// Check validates the declared schema of the contract's table against the contract.
func (c *ContractConfig) Check() (ValidationResult, error) {
	v, err := c.Validator()
	if err != nil {
		return ValidationResult{}, err
	}
	t, err := Lookup(c.Table)
	if err != nil {
		return ValidationResult{}, err
	}
	return v.ValidateSchema(t.Schema), nil
}

// ParseArrowType converts a type name as written in contract files to an Arrow type.
func ParseArrowType(typeStr string) (arrow.DataType, error) {
	s := strings.ToLower(strings.ReplaceAll(typeStr, " ", ""))
	switch s {
	case "bool", "boolean":
		return arrow.FixedWidthTypes.Boolean, nil
	case "int32", "int":
		return arrow.PrimitiveTypes.Int32, nil
	case "int64", "long":
		return arrow.PrimitiveTypes.Int64, nil
	case "double", "float64":
		return arrow.PrimitiveTypes.Float64, nil
	case "string", "utf8":
		return arrow.BinaryTypes.String, nil
	case "timestamp[us]":
		return &arrow.TimestampType{Unit: arrow.Microsecond}, nil
	case "timestamp[us,utc]", "timestamp[us,tz=utc]":
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, nil
	case "timestamp[ms]":
		return &arrow.TimestampType{Unit: arrow.Millisecond}, nil
	case "timestamp[ns]":
		return &arrow.TimestampType{Unit: arrow.Nanosecond}, nil
	}

	if strings.HasPrefix(s, "decimal") || strings.HasPrefix(s, "numeric") {
		var precision, scale int32
		if _, err := fmt.Sscanf(strings.TrimPrefix(strings.TrimPrefix(s, "numeric"), "decimal"), "(%d,%d)", &precision, &scale); err == nil {
			return &arrow.Decimal128Type{Precision: precision, Scale: scale}, nil
		}
	}

	return nil, fmt.Errorf("unsupported Arrow type: %s", typeStr)
}

// SchemaToString renders an Arrow schema for humans.
func SchemaToString(schema *arrow.Schema) string {
	var b strings.Builder
	b.WriteString("Schema:\n")
	for _, f := range schema.Fields() {
		null := "NOT NULL"
		if f.Nullable {
			null = "NULL"
		}
		fmt.Fprintf(&b, "  %s: %s %s\n", f.Name, f.Type, null)
	}

	md := schema.Metadata()
	if md.Len() == 0 {
		return b.String()
	}
	b.WriteString("\nMetadata:\n")
	keys, values := md.Keys(), md.Values()
	for i := range keys {
		fmt.Fprintf(&b, "  %s: %s\n", keys[i], values[i])
	}
	return b.String()
}

// PrintValidationResult renders a validation result for humans, groups in name order.
func PrintValidationResult(result ValidationResult) string {
	var b strings.Builder
	if result.Valid {
		b.WriteString("Schema validation passed.\n")
	} else {
		b.WriteString("Schema validation failed!\n")
	}
	writeGroups(&b, "Errors", result.Errors)
	writeGroups(&b, "Warnings", result.Warnings)
	return b.String()
}

func writeGroups(b *strings.Builder, title string, groups map[string][]string) {
	if len(groups) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, g := range sortedKeys(groups) {
		fmt.Fprintf(b, "  %s:\n", g)
		for _, msg := range groups[g] {
			fmt.Fprintf(b, "    - %s\n", msg)
		}
	}
}

// DDL renders the warehouse column list with partitioning and clustering for t.
// It is reference output; nothing in this module executes it.
func DDL(dataset string, t Table) string {
	var b strings.Builder
	name := t.Name
	if dataset != "" {
		name = dataset + "." + t.Name
	}
	fmt.Fprintf(&b, "CREATE TABLE `%s`\n(\n", name)
	for i, f := range t.Schema.Fields() {
		fmt.Fprintf(&b, "  %s %s", f.Name, warehouseType(f.Type))
		if i < t.Schema.NumFields()-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")\n")
	if t.PartitionBy != "" {
		fmt.Fprintf(&b, "PARTITION BY DATE(%s)\n", t.PartitionBy)
	}
	if len(t.ClusterBy) > 0 {
		fmt.Fprintf(&b, "CLUSTER BY %s", strings.Join(t.ClusterBy, ", "))
	}
	b.WriteString(";\n")
	return b.String()
}

func warehouseType(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.STRING:
		return "STRING"
	case arrow.BOOL:
		return "BOOL"
	case arrow.INT64:
		return "INT64"
	case arrow.DECIMAL128:
		return "NUMERIC"
	case arrow.TIMESTAMP:
		return "TIMESTAMP"
	default:
		return strings.ToUpper(dt.String())
	}
}
