package generate

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TFMV/rawlayer/pkg/draw"
	"github.com/TFMV/rawlayer/pkg/ids"
	"github.com/TFMV/rawlayer/pkg/money"
	"github.com/TFMV/rawlayer/pkg/schema"
	"github.com/TFMV/rawlayer/pkg/temporal"
)

// OrderRef holds the facts of one order that payment derivation needs.
type OrderRef struct {
	OrderID  uuid.UUID
	OrgID    uuid.UUID
	Currency string
	// UnitCents is the quantized unit price in hundredths.
	UnitCents int64
	Quantity  int64
	// OrderMicros is order_ts in microseconds since the Unix epoch.
	OrderMicros int64
}

// UnitPrice returns the quantized unit price.
func (r OrderRef) UnitPrice() decimal.Decimal {
	return decimal.New(r.UnitCents, -money.Scale)
}

// OrderTS returns the normalized order timestamp.
func (r OrderRef) OrderTS() time.Time {
	return time.UnixMicro(r.OrderMicros).UTC()
}

// OrderBook is the identifier pool of the orders table. Besides the order ids it keeps
// what payments copy or derive from their order.
type OrderBook struct {
	refs   []OrderRef
	frozen bool
}

// NewOrderBook returns an empty, writable book.
func NewOrderBook(capacity int) *OrderBook {
	if capacity < 0 {
		capacity = 0
	}
	return &OrderBook{refs: make([]OrderRef, 0, capacity)}
}

// Add records an order. Adding to a frozen book is a programming error.
func (b *OrderBook) Add(ref OrderRef) {
	if b.frozen {
		panic("generate: add to frozen order book")
	}
	b.refs = append(b.refs, ref)
}

// Freeze marks order generation as complete.
func (b *OrderBook) Freeze() {
	b.frozen = true
}

// Len returns the number of orders.
func (b *OrderBook) Len() int {
	return len(b.refs)
}

// At returns the i-th order in generation order.
func (b *OrderBook) At(i int) OrderRef {
	return b.refs[i]
}

// Sample draws one order uniformly, with replacement.
func (b *OrderBook) Sample(src *draw.Source) (OrderRef, error) {
	i, err := ids.SampleIndex(schema.Orders, b.frozen, len(b.refs), src)
	if err != nil {
		return OrderRef{}, err
	}
	return b.refs[i], nil
}

func newOrderRef(id, org uuid.UUID, currency string, price decimal.Decimal, qty int64, orderTS time.Time) OrderRef {
	return OrderRef{
		OrderID:     id,
		OrgID:       org,
		Currency:    currency,
		UnitCents:   price.Shift(money.Scale).IntPart(),
		Quantity:    qty,
		OrderMicros: int64(temporal.Micros(orderTS)),
	}
}
