package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/money"
	"github.com/TFMV/rawlayer/pkg/temporal"
)

// Table names, in generation order.
const (
	Orgs     = "orgs"
	Users    = "users"
	Products = "products"
	Orders   = "orders"
	Payments = "payments"
	Events   = "events"
)

// Metadata keys carried by every declared schema.
const (
	MetadataTable       = "rawlayer.table"
	MetadataPartitionBy = "rawlayer.partition_by"
	MetadataClusterBy   = "rawlayer.cluster_by"
)

// Table is the declared physical layout of one output table.
type Table struct {
	Name string
	// PartitionBy is the timestamp column the warehouse partitions the table by day on.
	PartitionBy string
	// ClusterBy lists the warehouse clustering columns.
	ClusterBy []string
	Schema    *arrow.Schema
}

// MoneyColumns returns the names of the DECIMAL(38,2) columns.
func (t Table) MoneyColumns() []string {
	return t.columnsOf(arrow.DECIMAL128)
}

// TimestampColumns returns the names of the timestamp columns.
func (t Table) TimestampColumns() []string {
	return t.columnsOf(arrow.TIMESTAMP)
}

// NonNullColumns returns the names of the columns that must not hold nulls.
func (t Table) NonNullColumns() []string {
	var out []string
	for _, f := range t.Schema.Fields() {
		if !f.Nullable {
			out = append(out, f.Name)
		}
	}
	return out
}

// ColumnNames returns every column name in declared order.
func (t Table) ColumnNames() []string {
	out := make([]string, 0, t.Schema.NumFields())
	for _, f := range t.Schema.Fields() {
		out = append(out, f.Name)
	}
	return out
}

func (t Table) columnsOf(id arrow.Type) []string {
	var out []string
	for _, f := range t.Schema.Fields() {
		if f.Type.ID() == id {
			out = append(out, f.Name)
		}
	}
	return out
}

func str(name string) arrow.Field {
	return arrow.Field{Name: name, Type: arrow.BinaryTypes.String}
}

func nullableStr(name string) arrow.Field {
	return arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
}

func ts(name string) arrow.Field {
	return arrow.Field{Name: name, Type: temporal.Type}
}

func dec(name string) arrow.Field {
	return arrow.Field{Name: name, Type: money.Type}
}

func boolean(name string) arrow.Field {
	return arrow.Field{Name: name, Type: arrow.FixedWidthTypes.Boolean}
}

func int64Field(name string) arrow.Field {
	return arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int64}
}

func newTable(name, partitionBy string, clusterBy []string, fields ...arrow.Field) Table {
	md := arrow.NewMetadata(
		[]string{MetadataTable, MetadataPartitionBy, MetadataClusterBy},
		[]string{name, partitionBy, strings.Join(clusterBy, ",")},
	)
	return Table{
		Name:        name,
		PartitionBy: partitionBy,
		ClusterBy:   clusterBy,
		Schema:      arrow.NewSchema(fields, &md),
	}
}

var tables = []Table{
	newTable(Orgs, "created_at", []string{"org_id"},
		str("org_id"),
		str("org_name"),
		str("plan_id"),
		boolean("is_enterprise"),
		ts("created_at"),
		str("billing_country"),
		ts("updated_at"),
	),
	newTable(Users, "created_at", []string{"org_id", "user_id"},
		str("user_id"),
		str("org_id"),
		nullableStr("email"),
		str("full_name"),
		ts("created_at"),
		str("country_code"),
		boolean("is_deleted"),
		ts("updated_at"),
	),
	newTable(Products, "launched_at", []string{"category"},
		str("product_id"),
		str("sku"),
		str("title"),
		str("category"),
		boolean("is_active"),
		ts("launched_at"),
		ts("updated_at"),
	),
	newTable(Orders, "order_ts", []string{"org_id", "user_id"},
		str("order_id"),
		str("org_id"),
		str("user_id"),
		str("product_id"),
		int64Field("quantity"),
		dec("unit_price"),
		str("currency"),
		str("status"),
		ts("order_ts"),
		ts("updated_at"),
	),
	newTable(Payments, "paid_ts", []string{"org_id", "order_id"},
		str("charge_id"),
		str("order_id"),
		str("org_id"),
		dec("amount"),
		str("currency"),
		ts("paid_ts"),
		str("status"),
		dec("fee_amount"),
		dec("tax_amount"),
		dec("refund_amount"),
		str("raw_payload"),
	),
	newTable(Events, "event_ts", []string{"org_id", "event_type"},
		str("event_id"),
		ts("event_ts"),
		ts("received_ts"),
		str("user_id"),
		str("org_id"),
		str("event_type"),
		str("context"),
		str("properties"),
	),
}

// Tables returns every declared table in generation order.
func Tables() []Table {
	out := make([]Table, len(tables))
	copy(out, tables)
	return out
}

// Names returns the table names in generation order.
func Names() []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = t.Name
	}
	return out
}

// Lookup returns the declared table called name.
func Lookup(name string) (Table, error) {
	for _, t := range tables {
		if t.Name == name {
			return t, nil
		}
	}
	known := Names()
	sort.Strings(known)
	return Table{}, &core.ConfigError{
		Field:   "table",
		Value:   name,
		Message: fmt.Sprintf("unknown table, expected one of %s", strings.Join(known, ", ")),
	}
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name string) Table {
	t, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}
