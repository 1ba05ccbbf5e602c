package validation

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TFMV/rawlayer/pkg/anomaly"
	"github.com/TFMV/rawlayer/pkg/generate"
	"github.com/TFMV/rawlayer/pkg/money"
	"github.com/TFMV/rawlayer/pkg/schema"
)

type keySet map[uuid.UUID]struct{}

func (k keySet) has(id uuid.UUID) bool {
	_, ok := k[id]
	return ok
}

// orderFact is what a payment is checked against.
type orderFact struct {
	org      uuid.UUID
	ts       time.Time
	amount   decimal.Decimal
	currency string
}

// keys holds the primary keys of the parent tables. Each set is written by exactly one
// phase and only read by later phases.
type keys struct {
	orgs, users, products keySet
	orders                map[uuid.UUID]orderFact
}

func newKeys() *keys {
	return &keys{orgs: keySet{}, users: keySet{}, products: keySet{}, orders: map[uuid.UUID]orderFact{}}
}

var (
	feeRate     = decimal.RequireFromString("0.03")
	taxRate     = decimal.RequireFromString("0.20")
	refundRates = []decimal.Decimal{decimal.RequireFromString("0.10"), decimal.RequireFromString("0.25")}
)

func unquantized(ds ...decimal.Decimal) bool {
	for _, d := range ds {
		if !money.IsQuantized(d) {
			return true
		}
	}
	return false
}

type orgRow struct {
	OrgID     uuid.UUID `arrow:"org_id"`
	CreatedAt time.Time `arrow:"created_at"`
	UpdatedAt time.Time `arrow:"updated_at"`
}

func (au *audit) orgs(ctx context.Context) error {
	var dups, order int64
	win := au.window(generate.OrgWindow)
	_, err := scan(ctx, au, schema.Orgs, func(r orgRow) {
		if au.keys.orgs.has(r.OrgID) {
			dups++
		}
		au.keys.orgs[r.OrgID] = struct{}{}
		if r.UpdatedAt.Before(r.CreatedAt) {
			order++
		}
		win.observe(r.CreatedAt)
	})
	if err != nil {
		return err
	}
	au.add(
		zeroCheck(schema.Orgs, "unique.org_id", dups),
		zeroCheck(schema.Orgs, "order.updated_at", order),
	)
	au.addOptional(opt(win.check(schema.Orgs, "created_at")))
	return nil
}

type userRow struct {
	UserID    uuid.UUID `arrow:"user_id"`
	OrgID     uuid.UUID `arrow:"org_id"`
	Email     *string   `arrow:"email"`
	CreatedAt time.Time `arrow:"created_at"`
	UpdatedAt time.Time `arrow:"updated_at"`
}

func (au *audit) users(ctx context.Context) error {
	var dups, order int64
	var nulls, cov ratio
	win := au.window(generate.UserWindow)
	_, err := scan(ctx, au, schema.Users, func(r userRow) {
		if au.keys.users.has(r.UserID) {
			// A duplicate repeats an earlier row and is counted once.
			dups++
			return
		}
		au.keys.users[r.UserID] = struct{}{}
		nulls.observe(r.Email == nil)
		cov.observe(au.keys.orgs.has(r.OrgID))
		if r.UpdatedAt.Before(r.CreatedAt) {
			order++
		}
		win.observe(r.CreatedAt)
	})
	if err != nil {
		return err
	}
	au.add(zeroCheck(schema.Users, "order.updated_at", order))
	if p, ok := au.manifestProbability(anomaly.UserDanglingOrg); !ok || p == 0 {
		au.add(au.coverageCheck(schema.Users, "org_id", cov))
	}
	au.addOptional(
		opt(win.check(schema.Users, "created_at")),
		opt(au.anomalyCheck(schema.Users, anomaly.UserDuplicate, dups, true)),
		opt(au.anomalyCheck(schema.Users, anomaly.UserEmailNull, nulls.hit, true)),
		opt(au.anomalyCheck(schema.Users, anomaly.UserDanglingOrg, cov.total-cov.hit, true)),
		opt(au.rateCheck(schema.Users, "null_rate.email", anomaly.UserEmailNull, nulls)),
	)
	return nil
}

func (au *audit) manifestProbability(rule string) (float64, bool) {
	if au.Manifest == nil {
		return 0, false
	}
	return au.Manifest.Probability(rule)
}

type productRow struct {
	ProductID  uuid.UUID `arrow:"product_id"`
	LaunchedAt time.Time `arrow:"launched_at"`
	UpdatedAt  time.Time `arrow:"updated_at"`
}

func (au *audit) products(ctx context.Context) error {
	var dups, order int64
	win := au.window(generate.ProductWindow)
	_, err := scan(ctx, au, schema.Products, func(r productRow) {
		if au.keys.products.has(r.ProductID) {
			dups++
		}
		au.keys.products[r.ProductID] = struct{}{}
		if r.UpdatedAt.Before(r.LaunchedAt) {
			order++
		}
		win.observe(r.LaunchedAt)
	})
	if err != nil {
		return err
	}
	au.add(
		zeroCheck(schema.Products, "unique.product_id", dups),
		zeroCheck(schema.Products, "order.updated_at", order),
	)
	au.addOptional(opt(win.check(schema.Products, "launched_at")))
	return nil
}

type orderRow struct {
	OrderID   uuid.UUID       `arrow:"order_id"`
	OrgID     uuid.UUID       `arrow:"org_id"`
	UserID    uuid.UUID       `arrow:"user_id"`
	ProductID uuid.UUID       `arrow:"product_id"`
	Quantity  int64           `arrow:"quantity"`
	UnitPrice decimal.Decimal `arrow:"unit_price"`
	Currency  string          `arrow:"currency"`
	OrderTS   time.Time       `arrow:"order_ts"`
	UpdatedAt time.Time       `arrow:"updated_at"`
}

func (au *audit) orders(ctx context.Context) error {
	var dups, order, scale, negative, zero int64
	var orgCov, userCov, productCov ratio
	win := au.window(generate.OrderWindow)
	_, err := scan(ctx, au, schema.Orders, func(r orderRow) {
		if _, ok := au.keys.orders[r.OrderID]; ok {
			dups++
		}
		orgCov.observe(au.keys.orgs.has(r.OrgID))
		userCov.observe(au.keys.users.has(r.UserID))
		productCov.observe(au.keys.products.has(r.ProductID))
		if lag := r.UpdatedAt.Sub(r.OrderTS); lag < time.Hour || lag > 48*time.Hour {
			order++
		}
		win.observe(r.OrderTS)
		if unquantized(r.UnitPrice) {
			scale++
		}
		if r.UnitPrice.IsNegative() {
			negative++
		}
		if r.Quantity == 0 {
			zero++
		}

		qty := r.Quantity
		if qty < 1 {
			qty = 1
		}
		amount, err := money.Mul(r.UnitPrice, decimal.NewFromInt(qty))
		if err != nil {
			scale++
		}
		au.keys.orders[r.OrderID] = orderFact{org: r.OrgID, ts: r.OrderTS, amount: amount, currency: r.Currency}
	})
	if err != nil {
		return err
	}
	au.add(
		zeroCheck(schema.Orders, "unique.order_id", dups),
		zeroCheck(schema.Orders, "order.updated_at", order),
		zeroCheck(schema.Orders, "money_scale", scale),
		au.coverageCheck(schema.Orders, "org_id", orgCov),
		au.coverageCheck(schema.Orders, "user_id", userCov),
		au.coverageCheck(schema.Orders, "product_id", productCov),
	)
	au.addOptional(
		opt(win.check(schema.Orders, "order_ts")),
		opt(au.anomalyCheck(schema.Orders, anomaly.OrderNegativePrice, negative, true)),
		opt(au.anomalyCheck(schema.Orders, anomaly.OrderZeroQuantity, zero, false)),
	)
	return nil
}

type paymentRow struct {
	ChargeID     uuid.UUID       `arrow:"charge_id"`
	OrderID      uuid.UUID       `arrow:"order_id"`
	OrgID        uuid.UUID       `arrow:"org_id"`
	Amount       decimal.Decimal `arrow:"amount"`
	Currency     string          `arrow:"currency"`
	PaidTS       time.Time       `arrow:"paid_ts"`
	FeeAmount    decimal.Decimal `arrow:"fee_amount"`
	TaxAmount    decimal.Decimal `arrow:"tax_amount"`
	RefundAmount decimal.Decimal `arrow:"refund_amount"`
}

func (au *audit) payments(ctx context.Context) error {
	charges := keySet{}
	var dups, order, scale, derived, foreign int64
	var orderCov ratio
	_, err := scan(ctx, au, schema.Payments, func(r paymentRow) {
		if charges.has(r.ChargeID) {
			dups++
		}
		charges[r.ChargeID] = struct{}{}
		if unquantized(r.Amount, r.FeeAmount, r.TaxAmount, r.RefundAmount) {
			scale++
		}

		o, ok := au.keys.orders[r.OrderID]
		orderCov.observe(ok)
		if !ok {
			return
		}
		if o.org != r.OrgID || o.currency != r.Currency {
			foreign++
		}
		if lag := r.PaidTS.Sub(o.ts); lag < 0 || lag > 24*time.Hour {
			order++
		}
		if !derivedFrom(o.amount, r) {
			derived++
		}
	})
	if err != nil {
		return err
	}
	au.add(
		zeroCheck(schema.Payments, "unique.charge_id", dups),
		zeroCheck(schema.Payments, "order.paid_ts", order),
		zeroCheck(schema.Payments, "money_scale", scale),
		zeroCheck(schema.Payments, "derivation.amount", derived),
		zeroCheck(schema.Payments, "consistency.order", foreign),
		au.coverageCheck(schema.Payments, "order_id", orderCov),
	)
	return nil
}

// derivedFrom reports whether the money fields of r follow from the order amount.
func derivedFrom(amount decimal.Decimal, r paymentRow) bool {
	if !r.Amount.Equal(amount) {
		return false
	}
	fee, err := money.Mul(amount, feeRate)
	if err != nil || !r.FeeAmount.Equal(fee) {
		return false
	}
	tax, err := money.Mul(amount, taxRate)
	if err != nil || !r.TaxAmount.Equal(tax) {
		return false
	}
	if r.RefundAmount.IsZero() {
		return true
	}
	for _, rate := range refundRates {
		if refund, err := money.Mul(amount, rate); err == nil && r.RefundAmount.Equal(refund) {
			return true
		}
	}
	return false
}

type eventRow struct {
	EventID    uuid.UUID `arrow:"event_id"`
	EventTS    time.Time `arrow:"event_ts"`
	ReceivedTS time.Time `arrow:"received_ts"`
	UserID     uuid.UUID `arrow:"user_id"`
	OrgID      uuid.UUID `arrow:"org_id"`
	Properties string    `arrow:"properties"`
}

type eventProperties struct {
	NewKey      *string `json:"new_key"`
	LeakedEmail *string `json:"leaked_email"`
}

func (au *audit) events(ctx context.Context) error {
	events := keySet{}
	var dups, order, malformed, drift, leak int64
	var orgCov, userCov ratio
	win := au.window(generate.EventWindow)
	_, err := scan(ctx, au, schema.Events, func(r eventRow) {
		if events.has(r.EventID) {
			dups++
		}
		events[r.EventID] = struct{}{}
		orgCov.observe(au.keys.orgs.has(r.OrgID))
		userCov.observe(au.keys.users.has(r.UserID))
		if r.ReceivedTS.Before(r.EventTS) {
			order++
		}
		win.observe(r.EventTS)

		var props eventProperties
		if err := json.Unmarshal([]byte(r.Properties), &props); err != nil {
			malformed++
			return
		}
		if props.NewKey != nil {
			drift++
		}
		if props.LeakedEmail != nil {
			leak++
		}
	})
	if err != nil {
		return err
	}
	au.add(
		zeroCheck(schema.Events, "unique.event_id", dups),
		zeroCheck(schema.Events, "order.received_ts", order),
		zeroCheck(schema.Events, "json.properties", malformed),
		au.coverageCheck(schema.Events, "org_id", orgCov),
		au.coverageCheck(schema.Events, "user_id", userCov),
	)
	au.addOptional(
		opt(win.check(schema.Events, "event_ts")),
		opt(au.anomalyCheck(schema.Events, anomaly.EventSchemaDrift, drift, true)),
		opt(au.anomalyCheck(schema.Events, anomaly.EventLeakedEmail, leak, true)),
	)
	return nil
}
