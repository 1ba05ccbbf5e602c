package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/rawlayer/pkg/core"
)

func TestDeclaredTables(t *testing.T) {
	assert.Equal(t, []string{Orgs, Users, Products, Orders, Payments, Events}, Names())

	users := MustLookup(Users)
	assert.Equal(t, 8, users.Schema.NumFields())
	assert.Equal(t, "email", users.Schema.Field(2).Name)
	assert.True(t, users.Schema.Field(2).Nullable)
	assert.NotContains(t, users.NonNullColumns(), "email")

	payments := MustLookup(Payments)
	assert.Equal(t, []string{"amount", "fee_amount", "tax_amount", "refund_amount"}, payments.MoneyColumns())
	assert.Equal(t, []string{"paid_ts"}, payments.TimestampColumns())
	assert.Equal(t, "paid_ts", payments.PartitionBy)
	assert.Equal(t, []string{"org_id", "order_id"}, payments.ClusterBy)

	md := payments.Schema.Metadata()
	assert.Equal(t, "org_id,order_id", md.Values()[md.FindKey(MetadataClusterBy)])

	_, err := Lookup("invoices")
	assert.True(t, core.IsConfigError(err))
}

func TestEveryTableConformsToItself(t *testing.T) {
	for _, table := range Tables() {
		t.Run(table.Name, func(t *testing.T) {
			assert.NoError(t, Conform(table, table.Schema))

			result := NewTableValidator(table, ValidationLevelStrict).ValidateSchema(table.Schema)
			assert.True(t, result.Valid, PrintValidationResult(result))
		})
	}
}

func TestConformRejectsDrift(t *testing.T) {
	orders := MustLookup(Orders)
	fields := orders.Schema.Fields()

	tests := []struct {
		name   string
		mutate func([]arrow.Field) []arrow.Field
		want   string
	}{
		{
			name: "money as float",
			mutate: func(f []arrow.Field) []arrow.Field {
				f[5].Type = arrow.PrimitiveTypes.Float64
				return f
			},
			want: "unit_price",
		},
		{
			name: "decimal with wrong scale",
			mutate: func(f []arrow.Field) []arrow.Field {
				f[5].Type = &arrow.Decimal128Type{Precision: 38, Scale: 9}
				return f
			},
			want: "unit_price",
		},
		{
			name: "nanosecond timestamps",
			mutate: func(f []arrow.Field) []arrow.Field {
				f[8].Type = &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
				return f
			},
			want: "order_ts",
		},
		{
			name: "naive timestamps",
			mutate: func(f []arrow.Field) []arrow.Field {
				f[9].Type = &arrow.TimestampType{Unit: arrow.Microsecond}
				return f
			},
			want: "updated_at",
		},
		{
			name: "nullable key",
			mutate: func(f []arrow.Field) []arrow.Field {
				f[0].Nullable = true
				return f
			},
			want: "order_id",
		},
		{
			name: "missing column",
			mutate: func(f []arrow.Field) []arrow.Field {
				return f[:len(f)-1]
			},
			want: "updated_at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := make([]arrow.Field, len(fields))
			copy(cp, fields)
			err := Conform(orders, arrow.NewSchema(tt.mutate(cp), nil))
			require.Error(t, err)
			assert.True(t, core.IsSchemaMismatchError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.True(t, core.IsSchemaMismatchError(Conform(orders, nil)))
}

func TestCompatibleLevelAcceptsStricterNullability(t *testing.T) {
	users := MustLookup(Users)
	fields := make([]arrow.Field, users.Schema.NumFields())
	copy(fields, users.Schema.Fields())
	fields[2].Nullable = false
	// Reverse the column order as well.
	for i, j := 0, len(fields)-1; i < j; i, j = i+1, j-1 {
		fields[i], fields[j] = fields[j], fields[i]
	}

	v := NewTableValidator(users, ValidationLevelCompatible)
	result := v.ValidateAgainstTarget(arrow.NewSchema(fields, nil), users.Schema)
	assert.True(t, result.Valid, PrintValidationResult(result))
	assert.NotEmpty(t, result.Warnings["SchemaEvolution"])

	strict := NewStrictValidator()
	assert.False(t, strict.ValidateAgainstTarget(arrow.NewSchema(fields, nil), users.Schema).Valid)
}

func TestMetadataRule(t *testing.T) {
	rule := &MetadataRule{
		RequiredKeys: []string{MetadataTable, MetadataPartitionBy},
		KeyValidators: map[string]func(string) error{
			MetadataTable: func(value string) error {
				if _, err := Lookup(value); err != nil {
					return fmt.Errorf("unknown table %s", value)
				}
				return nil
			},
		},
	}

	valid, err := rule.Validate(MustLookup(Events).Schema)
	assert.True(t, valid)
	assert.NoError(t, err)

	valid, err = rule.Validate(arrow.NewSchema(nil, nil))
	assert.False(t, valid)
	assert.Contains(t, err.Error(), MetadataPartitionBy)

	md := arrow.NewMetadata([]string{MetadataTable, MetadataPartitionBy}, []string{"invoices", "ts"})
	valid, err = rule.Validate(arrow.NewSchema(nil, &md))
	assert.False(t, valid)
	assert.Contains(t, err.Error(), "invoices")
}

func TestFieldTypeRule(t *testing.T) {
	rule := &FieldTypeRule{AllowedTypes: map[string][]arrow.DataType{
		"quantity": {arrow.PrimitiveTypes.Int32, arrow.PrimitiveTypes.Int64},
	}}
	valid, err := rule.Validate(MustLookup(Orders).Schema)
	assert.True(t, valid)
	assert.NoError(t, err)

	valid, err = rule.Validate(MustLookup(Orgs).Schema)
	assert.False(t, valid)
	assert.Contains(t, err.Error(), "quantity")
}

func TestLoadContract(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "payments.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
table: payments
validation_level: strict
required_fields: [charge_id, amount, paid_ts]
non_nullable_fields: [charge_id]
field_types:
  amount: ["numeric(38,2)"]
timestamp_fields: [paid_ts]
decimal_precisions:
  fee_amount: [38, 2]
required_metadata_keys: [rawlayer.partition_by]
`), 0o644))

	contract, err := LoadContract(yamlPath)
	require.NoError(t, err)
	result, err := contract.Check()
	require.NoError(t, err)
	assert.True(t, result.Valid, PrintValidationResult(result))

	jsonPath := filepath.Join(dir, "events.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
  "table": "events",
  "required_fields": ["event_id", "session_id"]
}`), 0o644))

	contract, err = LoadContract(jsonPath)
	require.NoError(t, err)
	result, err = contract.Check()
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors["RequiredFieldsRule"][0], "session_id")

	badPath := filepath.Join(dir, "contract.txt")
	require.NoError(t, os.WriteFile(badPath, []byte("table: orgs"), 0o644))
	_, err = LoadContract(badPath)
	assert.Error(t, err)
}

func TestParseArrowType(t *testing.T) {
	dt, err := ParseArrowType("decimal(38, 2)")
	require.NoError(t, err)
	assert.True(t, arrow.TypeEqual(&arrow.Decimal128Type{Precision: 38, Scale: 2}, dt))

	dt, err = ParseArrowType("timestamp[us, UTC]")
	require.NoError(t, err)
	assert.True(t, arrow.TypeEqual(&arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, dt))

	_, err = ParseArrowType("geography")
	assert.Error(t, err)
}

func TestDDL(t *testing.T) {
	ddl := DDL("raw", MustLookup(Orgs))
	assert.Contains(t, ddl, "CREATE TABLE `raw.orgs`")
	assert.Contains(t, ddl, "  org_name STRING,\n")
	assert.Contains(t, ddl, "  updated_at TIMESTAMP\n)")
	assert.Contains(t, ddl, "PARTITION BY DATE(created_at)")
	assert.Contains(t, ddl, "CLUSTER BY org_id;")

	assert.Contains(t, DDL("", MustLookup(Payments)), "amount NUMERIC")
	assert.Contains(t, SchemaToString(MustLookup(Payments).Schema), "amount: decimal(38, 2) NOT NULL")
}
