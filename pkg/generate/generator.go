package generate

import (
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/TFMV/rawlayer/pkg/anomaly"
	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/draw"
	"github.com/TFMV/rawlayer/pkg/entity"
	"github.com/TFMV/rawlayer/pkg/ids"
	"github.com/TFMV/rawlayer/pkg/money"
	"github.com/TFMV/rawlayer/pkg/schema"
	"github.com/TFMV/rawlayer/pkg/temporal"
)

// Generation windows, measured back from the anchor.
const (
	OrgWindow     = 365 * 24 * time.Hour
	UserWindow    = 180 * 24 * time.Hour
	ProductWindow = 730 * 24 * time.Hour
	OrderWindow   = 90 * 24 * time.Hour
	EventWindow   = 30 * 24 * time.Hour
)

const (
	enterpriseRate = 0.30
	deletedRate    = 0.10
	activeRate     = 0.70
	quantityScale  = 1.5
	feeRate        = "0.03"
	taxRate        = "0.20"
	gateway        = "Stripe"
)

var refundFactors = []decimal.Decimal{
	decimal.Zero,
	decimal.Zero,
	decimal.RequireFromString("0.10"),
	decimal.RequireFromString("0.25"),
}

// Generator produces the rows of every entity from a single draw source.
// It is not safe for concurrent use.
type Generator struct {
	src    *draw.Source
	policy *anomaly.Policy
	anchor time.Time
	names  *namer

	fee, tax decimal.Decimal
}

// New returns a Generator drawing from src, mutating rows under policy and ending every
// time window at anchor. A nil policy disables all anomalies.
func New(src *draw.Source, policy *anomaly.Policy, anchor time.Time) *Generator {
	if policy == nil {
		policy = anomaly.Default().Disabled()
	}
	if anchor.IsZero() {
		anchor = temporal.DefaultAnchor
	}
	return &Generator{
		src:    src,
		policy: policy,
		anchor: temporal.Normalize(anchor),
		names:  newNamer(),
		fee:    decimal.RequireFromString(feeRate),
		tax:    decimal.RequireFromString(taxRate),
	}
}

// Policy returns the anomaly policy, including the counts of fired rules.
func (g *Generator) Policy() *anomaly.Policy {
	return g.policy
}

// Anchor returns the instant every generation window ends at.
func (g *Generator) Anchor() time.Time {
	return g.anchor
}

func checkCount(table string, n int) error {
	if n < 0 {
		return &core.ConfigError{Field: table, Value: n, Message: "count must not be negative"}
	}
	return nil
}

// updatedAfter draws a modification time in [created, anchor).
func (g *Generator) updatedAfter(created time.Time) time.Time {
	return temporal.After(created, g.src.Duration(g.anchor.Sub(created)))
}

// Orgs generates n organisations and returns their identifier pool.
func (g *Generator) Orgs(n int, emit func(entity.Org) error) (*ids.Pool, error) {
	if err := checkCount(schema.Orgs, n); err != nil {
		return nil, err
	}
	pool := ids.NewPool(schema.Orgs, n)
	for i := 0; i < n; i++ {
		id := g.src.UUID()
		o := entity.Org{
			OrgID:        id.String(),
			Name:         g.names.company(g.src),
			Plan:         draw.Pick(g.src, plans),
			IsEnterprise: g.src.Bernoulli(enterpriseRate),
			CreatedAt:    temporal.Window(g.src, g.anchor, OrgWindow),
		}
		o.BillingCountry = draw.Pick(g.src, countries)
		o.UpdatedAt = g.updatedAfter(o.CreatedAt)

		pool.Add(id)
		if err := emit(o); err != nil {
			return nil, err
		}
	}
	pool.Freeze()
	return pool, nil
}

// Users generates n users attached to orgs and returns their identifier pool.
// Duplicate rows produced by the anomaly policy are emitted in addition to the n users
// and are not part of the pool.
func (g *Generator) Users(n int, orgs *ids.Pool, emit func(entity.User) error) (*ids.Pool, error) {
	if err := checkCount(schema.Users, n); err != nil {
		return nil, err
	}
	pool := ids.NewPool(schema.Users, n)
	clean := make([]entity.User, 0, n)
	for i := 0; i < n; i++ {
		id := g.src.UUID()
		org, err := orgs.Sample(g.src)
		if err != nil {
			return nil, fmt.Errorf("users: %w", err)
		}
		fullName, email := g.names.person(g.src)
		u := entity.User{
			UserID:    id.String(),
			OrgID:     org.String(),
			Email:     &email,
			FullName:  fullName,
			CreatedAt: temporal.Window(g.src, g.anchor, UserWindow),
		}
		u.CountryCode = draw.Pick(g.src, countryCodes)
		u.IsDeleted = g.src.Bernoulli(deletedRate)
		u.UpdatedAt = g.updatedAfter(u.CreatedAt)

		if g.policy.Fire(g.src, anomaly.UserEmailNull) {
			u.Email = nil
		}
		dangling := g.policy.Fire(g.src, anomaly.UserDanglingOrg)
		unknownOrg := g.src.UUID()
		if dangling {
			u.OrgID = unknownOrg.String()
		}

		pool.Add(id)
		clean = append(clean, u)
		if err := emit(u); err != nil {
			return nil, err
		}

		duplicate := g.policy.Fire(g.src, anomaly.UserDuplicate)
		prior := clean[g.src.Intn(len(clean))]
		if duplicate {
			if err := emit(prior); err != nil {
				return nil, err
			}
		}
	}
	pool.Freeze()
	return pool, nil
}

// Products generates n catalogue items and returns their identifier pool.
func (g *Generator) Products(n int, emit func(entity.Product) error) (*ids.Pool, error) {
	if err := checkCount(schema.Products, n); err != nil {
		return nil, err
	}
	pool := ids.NewPool(schema.Products, n)
	for i := 0; i < n; i++ {
		id := g.src.UUID()
		p := entity.Product{
			ProductID: id.String(),
			SKU:       "SKU-" + g.src.Digits(4),
			Title:     word(g.src),
			Category:  draw.Pick(g.src, categories),
			IsActive:  g.src.Bernoulli(activeRate),
		}
		p.LaunchedAt = temporal.Window(g.src, g.anchor, ProductWindow)
		p.UpdatedAt = g.updatedAfter(p.LaunchedAt)

		pool.Add(id)
		if err := emit(p); err != nil {
			return nil, err
		}
	}
	pool.Freeze()
	return pool, nil
}

// Orders generates n orders whose org, user and product are sampled independently, and
// returns the order book payments are derived from.
func (g *Generator) Orders(n int, orgs, users, products *ids.Pool, emit func(entity.Order) error) (*OrderBook, error) {
	if err := checkCount(schema.Orders, n); err != nil {
		return nil, err
	}
	book := NewOrderBook(n)
	for i := 0; i < n; i++ {
		id := g.src.UUID()
		org, err := orgs.Sample(g.src)
		if err != nil {
			return nil, fmt.Errorf("orders: %w", err)
		}
		user, err := users.Sample(g.src)
		if err != nil {
			return nil, fmt.Errorf("orders: %w", err)
		}
		product, err := products.Sample(g.src)
		if err != nil {
			return nil, fmt.Errorf("orders: %w", err)
		}

		qty := int64(math.Floor(g.src.Exp(quantityScale)))
		price, err := money.Quantize(g.src.Uniform(5, 500))
		if err != nil {
			return nil, core.WithEntity(err, schema.Orders, "unit_price")
		}
		o := entity.Order{
			OrderID:   id.String(),
			OrgID:     org.String(),
			UserID:    user.String(),
			ProductID: product.String(),
			Currency:  draw.Pick(g.src, currencies),
			Status:    draw.Pick(g.src, orderStatuses),
			OrderTS:   temporal.Window(g.src, g.anchor, OrderWindow),
		}
		o.UpdatedAt = temporal.After(o.OrderTS, g.src.DurationBetween(time.Hour, 48*time.Hour))

		if g.policy.Fire(g.src, anomaly.OrderNegativePrice) {
			price = price.Neg()
		}
		if g.policy.Fire(g.src, anomaly.OrderZeroQuantity) {
			qty = 0
		}
		o.Quantity = qty
		o.UnitPrice = price

		book.Add(newOrderRef(id, org, o.Currency, price, qty, o.OrderTS))
		if err := emit(o); err != nil {
			return nil, err
		}
	}
	book.Freeze()
	return book, nil
}

type payload struct {
	Gateway string `json:"gateway"`
	AuthID  string `json:"auth_id"`
}

// Payments generates n charges, each against an order sampled with replacement.
func (g *Generator) Payments(n int, book *OrderBook, emit func(entity.Payment) error) error {
	if err := checkCount(schema.Payments, n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		ref, err := book.Sample(g.src)
		if err != nil {
			return fmt.Errorf("payments: %w", err)
		}
		chargeID := g.src.UUID()
		paidTS := temporal.After(ref.OrderTS(), g.src.Duration(24*time.Hour))
		status := draw.Pick(g.src, payStatuses)
		factor := draw.Pick(g.src, refundFactors)
		authID := g.src.UUID()

		p, err := g.payment(ref, factor)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(payload{Gateway: gateway, AuthID: authID.String()})
		if err != nil {
			return fmt.Errorf("payments: encode raw_payload: %w", err)
		}
		p.ChargeID = chargeID.String()
		p.PaidTS = paidTS
		p.Status = status
		p.RawPayload = string(raw)

		if err := emit(p); err != nil {
			return err
		}
	}
	return nil
}

// payment derives the money fields of a charge against ref.
func (g *Generator) payment(ref OrderRef, refundFactor decimal.Decimal) (entity.Payment, error) {
	qty := ref.Quantity
	if qty < 1 {
		qty = 1
	}
	amount, err := money.Mul(ref.UnitPrice(), decimal.NewFromInt(qty))
	if err != nil {
		return entity.Payment{}, core.WithEntity(err, schema.Payments, "amount")
	}
	fee, err := money.Mul(amount, g.fee)
	if err != nil {
		return entity.Payment{}, core.WithEntity(err, schema.Payments, "fee_amount")
	}
	tax, err := money.Mul(amount, g.tax)
	if err != nil {
		return entity.Payment{}, core.WithEntity(err, schema.Payments, "tax_amount")
	}
	refund, err := money.Mul(amount, refundFactor)
	if err != nil {
		return entity.Payment{}, core.WithEntity(err, schema.Payments, "refund_amount")
	}
	return entity.Payment{
		OrderID:      ref.OrderID.String(),
		OrgID:        ref.OrgID.String(),
		Amount:       amount,
		Currency:     ref.Currency,
		FeeAmount:    fee,
		TaxAmount:    tax,
		RefundAmount: refund,
	}, nil
}

// jsonNumber is a pre-formatted JSON number.
type jsonNumber string

func (n jsonNumber) MarshalJSON() ([]byte, error) {
	return []byte(n), nil
}

type eventContext struct {
	IP      string `json:"ip"`
	Browser string `json:"browser"`
}

type eventProperties struct {
	Page        string     `json:"page"`
	CartValue   jsonNumber `json:"cart_value"`
	NewKey      string     `json:"new_key,omitempty"`
	LeakedEmail string     `json:"leaked_email,omitempty"`
}

// Events generates n clickstream events whose org and user are sampled independently.
func (g *Generator) Events(n int, orgs, users *ids.Pool, emit func(entity.Event) error) error {
	if err := checkCount(schema.Events, n); err != nil {
		return err
	}
	var ip [4]byte
	for i := 0; i < n; i++ {
		id := g.src.UUID()
		eventTS := temporal.Window(g.src, g.anchor, EventWindow)
		receivedTS := temporal.After(eventTS, g.src.Duration(10*time.Second))
		user, err := users.Sample(g.src)
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		org, err := orgs.Sample(g.src)
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		eventType := draw.Pick(g.src, eventTypes)

		_, _ = g.src.Read(ip[:])
		evCtx := eventContext{
			IP:      fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3]),
			Browser: draw.Pick(g.src, browsers),
		}
		props := eventProperties{Page: word(g.src)}
		cart, err := money.Quantize(g.src.Uniform(0, 300))
		if err != nil {
			return core.WithEntity(err, schema.Events, "properties.cart_value")
		}
		props.CartValue = jsonNumber(cart.StringFixed(money.Scale))

		drift := g.policy.Fire(g.src, anomaly.EventSchemaDrift)
		driftWord := word(g.src)
		if drift {
			props.NewKey = driftWord
		}
		leak := g.policy.Fire(g.src, anomaly.EventLeakedEmail)
		leaked := g.names.email(g.src)
		if leak {
			props.LeakedEmail = leaked
		}

		contextJSON, err := json.Marshal(evCtx)
		if err != nil {
			return fmt.Errorf("events: encode context: %w", err)
		}
		propsJSON, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("events: encode properties: %w", err)
		}

		e := entity.Event{
			EventID:    id.String(),
			EventTS:    eventTS,
			ReceivedTS: receivedTS,
			UserID:     user.String(),
			OrgID:      org.String(),
			EventType:  eventType,
			Context:    string(contextJSON),
			Properties: string(propsJSON),
		}
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}
