// Package entity defines the typed row records of the six generated tables. Each record
// lists its values in the declared column order of its table.
package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/TFMV/rawlayer/pkg/schema"
)

// Row is a record that can be appended to a table batch.
type Row interface {
	// Table returns the name of the table the row belongs to.
	Table() string
	// Values returns the column values in declared order. A nil *string is a null.
	Values() []any
}

// Org is a tenant organisation.
type Org struct {
	OrgID          string
	Name           string
	Plan           string
	IsEnterprise   bool
	CreatedAt      time.Time
	BillingCountry string
	UpdatedAt      time.Time
}

func (Org) Table() string { return schema.Orgs }

func (o Org) Values() []any {
	return []any{o.OrgID, o.Name, o.Plan, o.IsEnterprise, o.CreatedAt, o.BillingCountry, o.UpdatedAt}
}

// User is a member of an org. Email is nil when the null-email anomaly fired.
type User struct {
	UserID      string
	OrgID       string
	Email       *string
	FullName    string
	CreatedAt   time.Time
	CountryCode string
	IsDeleted   bool
	UpdatedAt   time.Time
}

func (User) Table() string { return schema.Users }

func (u User) Values() []any {
	return []any{u.UserID, u.OrgID, u.Email, u.FullName, u.CreatedAt, u.CountryCode, u.IsDeleted, u.UpdatedAt}
}

// Product is a catalogue item.
type Product struct {
	ProductID  string
	SKU        string
	Title      string
	Category   string
	IsActive   bool
	LaunchedAt time.Time
	UpdatedAt  time.Time
}

func (Product) Table() string { return schema.Products }

func (p Product) Values() []any {
	return []any{p.ProductID, p.SKU, p.Title, p.Category, p.IsActive, p.LaunchedAt, p.UpdatedAt}
}

// Order is a single-line purchase.
type Order struct {
	OrderID   string
	OrgID     string
	UserID    string
	ProductID string
	Quantity  int64
	UnitPrice decimal.Decimal
	Currency  string
	Status    string
	OrderTS   time.Time
	UpdatedAt time.Time
}

func (Order) Table() string { return schema.Orders }

func (o Order) Values() []any {
	return []any{o.OrderID, o.OrgID, o.UserID, o.ProductID, o.Quantity, o.UnitPrice, o.Currency, o.Status, o.OrderTS, o.UpdatedAt}
}

// Payment is a charge against an order.
type Payment struct {
	ChargeID     string
	OrderID      string
	OrgID        string
	Amount       decimal.Decimal
	Currency     string
	PaidTS       time.Time
	Status       string
	FeeAmount    decimal.Decimal
	TaxAmount    decimal.Decimal
	RefundAmount decimal.Decimal
	RawPayload   string
}

func (Payment) Table() string { return schema.Payments }

func (p Payment) Values() []any {
	return []any{p.ChargeID, p.OrderID, p.OrgID, p.Amount, p.Currency, p.PaidTS, p.Status, p.FeeAmount, p.TaxAmount, p.RefundAmount, p.RawPayload}
}

// Event is a clickstream event. Context and Properties hold JSON text.
type Event struct {
	EventID    string
	EventTS    time.Time
	ReceivedTS time.Time
	UserID     string
	OrgID      string
	EventType  string
	Context    string
	Properties string
}

func (Event) Table() string { return schema.Events }

func (e Event) Values() []any {
	return []any{e.EventID, e.EventTS, e.ReceivedTS, e.UserID, e.OrgID, e.EventType, e.Context, e.Properties}
}
