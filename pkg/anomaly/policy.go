// Package anomaly implements the table of intentional data-quality defects injected
// while rows are generated.
//
// Every rule gets exactly one Bernoulli trial per row of its entity, drawn from the
// shared draw source whatever its probability is. A policy with all probabilities at
// zero therefore consumes the same stream as the default one and leaves every clean
// field byte-identical.
package anomaly

import (
	"fmt"
	"sort"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/draw"
)

// Mutation names the defect a rule introduces.
type Mutation string

const (
	Null      Mutation = "null"
	Duplicate Mutation = "duplicate"
	Dangling  Mutation = "dangling"
	Negate    Mutation = "negate"
	Zero      Mutation = "zero"
	Drift     Mutation = "schema_drift"
	Leak      Mutation = "leak"
)

// Rule names.
const (
	UserEmailNull      = "user_email_null"
	UserDuplicate      = "user_duplicate"
	UserDanglingOrg    = "user_dangling_org"
	OrderNegativePrice = "order_negative_price"
	OrderZeroQuantity  = "order_zero_quantity"
	EventSchemaDrift   = "event_schema_drift"
	EventLeakedEmail   = "event_leaked_email"
)

// Rule is one row of the policy table.
type Rule struct {
	Name        string   `json:"name" yaml:"name"`
	Entity      string   `json:"entity" yaml:"entity"`
	Field       string   `json:"field" yaml:"field"`
	Mutation    Mutation `json:"mutation" yaml:"mutation"`
	Probability float64  `json:"probability" yaml:"probability"`
}

// Defaults returns the baseline rule table.
func Defaults() []Rule {
	return []Rule{
		{Name: UserEmailNull, Entity: "users", Field: "email", Mutation: Null, Probability: 0.02},
		{Name: UserDuplicate, Entity: "users", Field: "user_id", Mutation: Duplicate, Probability: 0.005},
		{Name: UserDanglingOrg, Entity: "users", Field: "org_id", Mutation: Dangling, Probability: 0},
		{Name: OrderNegativePrice, Entity: "orders", Field: "unit_price", Mutation: Negate, Probability: 0.002},
		{Name: OrderZeroQuantity, Entity: "orders", Field: "quantity", Mutation: Zero, Probability: 0.005},
		{Name: EventSchemaDrift, Entity: "events", Field: "properties", Mutation: Drift, Probability: 0.05},
		{Name: EventLeakedEmail, Entity: "events", Field: "properties", Mutation: Leak, Probability: 0.02},
	}
}

// Policy is a rule table plus the number of times each rule fired.
type Policy struct {
	rules  map[string]Rule
	counts map[string]int64
}

// Default returns a policy with the baseline rates.
func Default() *Policy {
	p, _ := New(Defaults())
	return p
}

// New builds a policy from rules.
func New(rules []Rule) (*Policy, error) {
	p := &Policy{
		rules:  make(map[string]Rule, len(rules)),
		counts: make(map[string]int64, len(rules)),
	}
	for _, r := range rules {
		if r.Name == "" {
			return nil, &core.ConfigError{Field: "anomalies", Message: "rule name is required"}
		}
		if !draw.Valid(r.Probability) {
			return nil, &core.ConfigError{Field: "anomalies." + r.Name, Value: r.Probability, Message: "probability must be within [0, 1]"}
		}
		p.rules[r.Name] = r
	}
	return p, nil
}

// With returns a copy of the policy with the given rule probabilities replaced.
func (p *Policy) With(overrides map[string]float64) (*Policy, error) {
	rules := p.Rules()
	for name, prob := range overrides {
		found := false
		for i := range rules {
			if rules[i].Name == name {
				rules[i].Probability = prob
				found = true
				break
			}
		}
		if !found {
			return nil, &core.ConfigError{Field: "anomalies." + name, Value: prob, Message: "unknown anomaly rule"}
		}
	}
	return New(rules)
}

// Disabled returns a copy of the policy with every probability set to zero.
func (p *Policy) Disabled() *Policy {
	rules := p.Rules()
	for i := range rules {
		rules[i].Probability = 0
	}
	np, _ := New(rules)
	return np
}

// Clone returns a copy of the policy with fresh counters.
func (p *Policy) Clone() *Policy {
	np, _ := New(p.Rules())
	return np
}

// Fire runs the trial for rule and reports whether its mutation applies to the current row.
// It consumes exactly one draw; rules missing from the table never fire.
func (p *Policy) Fire(src *draw.Source, rule string) bool {
	r, ok := p.rules[rule]
	hit := src.Bernoulli(r.Probability)
	if ok && hit {
		p.counts[rule]++
	}
	return ok && hit
}

// Probability returns the configured probability of rule, zero if it is unknown.
func (p *Policy) Probability(rule string) float64 {
	return p.rules[rule].Probability
}

// Rules returns the rule table sorted by name.
func (p *Policy) Rules() []Rule {
	out := make([]Rule, 0, len(p.rules))
	for _, r := range p.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Counts returns how many times each rule fired.
func (p *Policy) Counts() map[string]int64 {
	out := make(map[string]int64, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

// CountsFor returns the fired counts of the rules of one entity.
func (p *Policy) CountsFor(entity string) map[string]int64 {
	out := map[string]int64{}
	for name, r := range p.rules {
		if r.Entity == entity {
			out[name] = p.counts[name]
		}
	}
	return out
}

// String renders the table for logs.
func (p *Policy) String() string {
	s := ""
	for _, r := range p.Rules() {
		s += fmt.Sprintf("%s=%g ", r.Name, r.Probability)
	}
	return s
}
