package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/TFMV/rawlayer/pkg/anomaly"
	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/draw"
	"github.com/TFMV/rawlayer/pkg/entity"
	"github.com/TFMV/rawlayer/pkg/ids"
	"github.com/TFMV/rawlayer/pkg/schema"
	"github.com/TFMV/rawlayer/pkg/temporal"
	"github.com/TFMV/rawlayer/pkg/writers"
)

// Request describes one generation run.
type Request struct {
	Seed int64
	// Scale names a preset; Overrides replace individual table counts.
	Scale     string
	Overrides map[string]int
	BatchSize int
	// Anchor is the instant every time window ends at. Zero selects temporal.DefaultAnchor.
	Anchor time.Time
	// Policy is the anomaly table. Nil selects the default rates.
	Policy *anomaly.Policy
}

// SinkFactory opens the sink one table is written to.
type SinkFactory func(table schema.Table) (core.RecordSink, error)

// Stage identifies the table being generated.
type Stage struct {
	Index     int
	Total     int
	Table     string
	Requested int
}

// Options are the collaborators of a run that do not affect its output.
type Options struct {
	Logger    *zap.Logger
	Allocator memory.Allocator
	// OnStage is called before each table is generated.
	OnStage func(Stage)
}

// TableResult summarises one generated table.
type TableResult struct {
	Table     string           `json:"table"`
	Requested int              `json:"requested"`
	Rows      int64            `json:"rows"`
	Batches   int64            `json:"batches"`
	Anomalies map[string]int64 `json:"anomalies,omitempty"`
	Duration  time.Duration    `json:"duration"`
	WriteTime time.Duration    `json:"write_time"`
}

// Result summarises a completed run.
type Result struct {
	Seed      int64          `json:"seed"`
	Scale     string         `json:"scale"`
	Anchor    time.Time      `json:"anchor"`
	BatchSize int            `json:"batch_size"`
	Counts    Counts         `json:"counts"`
	Rules     []anomaly.Rule `json:"rules"`
	Tables    []TableResult  `json:"tables"`
	Started   time.Time      `json:"started"`
	Duration  time.Duration  `json:"duration"`
}

// Table returns the result of one table.
func (r *Result) Table(name string) (TableResult, bool) {
	for _, t := range r.Tables {
		if t.Table == name {
			return t, true
		}
	}
	return TableResult{}, false
}

// Anomalies returns the fired counts of every rule across tables.
func (r *Result) Anomalies() map[string]int64 {
	out := map[string]int64{}
	for _, t := range r.Tables {
		for k, v := range t.Anomalies {
			out[k] += v
		}
	}
	return out
}

type runner struct {
	ctx       context.Context
	sinks     SinkFactory
	opts      Options
	log       *zap.Logger
	counts    Counts
	batchSize int
	policy    *anomaly.Policy
	result    *Result
}

// Run generates every table in dependency order: orgs, users, products, orders, then
// payments and events. Each table is committed to its sink before the next one starts.
// On failure the current table is aborted and the error is returned; tables already
// committed stay in place but the run as a whole must be restarted from its seed.
func Run(ctx context.Context, req Request, sinks SinkFactory, opts Options) (*Result, error) {
	counts, err := ResolveCounts(req.Scale, req.Overrides)
	if err != nil {
		return nil, err
	}
	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = writers.DefaultBatchSize
	}
	if batchSize < 0 {
		return nil, &core.ConfigError{Field: "batch_size", Value: batchSize, Message: "must be positive"}
	}
	policy := req.Policy
	if policy == nil {
		policy = anomaly.Default()
	}
	policy = policy.Clone()
	anchor := req.Anchor
	if anchor.IsZero() {
		anchor = temporal.DefaultAnchor
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	g := New(draw.New(req.Seed), policy, anchor)
	r := &runner{
		ctx:       ctx,
		sinks:     sinks,
		opts:      opts,
		log:       log,
		counts:    counts,
		batchSize: batchSize,
		policy:    policy,
		result: &Result{
			Seed:      req.Seed,
			Scale:     req.Scale,
			Anchor:    g.Anchor(),
			BatchSize: batchSize,
			Counts:    counts,
			Rules:     policy.Rules(),
			Started:   time.Now(),
		},
	}

	log.Info("Starting generation",
		zap.Int64("seed", req.Seed),
		zap.String("scale", req.Scale),
		zap.Time("anchor", g.Anchor()),
		zap.Int("batch_size", batchSize),
		zap.String("anomalies", policy.String()))

	var orgs, users, products *ids.Pool
	var book *OrderBook

	if err := stage(r, schema.Orgs, func(emit func(entity.Org) error) (err error) {
		orgs, err = g.Orgs(counts[schema.Orgs], emit)
		return err
	}); err != nil {
		return nil, err
	}
	if err := stage(r, schema.Users, func(emit func(entity.User) error) (err error) {
		users, err = g.Users(counts[schema.Users], orgs, emit)
		return err
	}); err != nil {
		return nil, err
	}
	if err := stage(r, schema.Products, func(emit func(entity.Product) error) (err error) {
		products, err = g.Products(counts[schema.Products], emit)
		return err
	}); err != nil {
		return nil, err
	}
	if err := stage(r, schema.Orders, func(emit func(entity.Order) error) (err error) {
		book, err = g.Orders(counts[schema.Orders], orgs, users, products, emit)
		return err
	}); err != nil {
		return nil, err
	}
	if err := stage(r, schema.Payments, func(emit func(entity.Payment) error) error {
		return g.Payments(counts[schema.Payments], book, emit)
	}); err != nil {
		return nil, err
	}
	if err := stage(r, schema.Events, func(emit func(entity.Event) error) error {
		return g.Events(counts[schema.Events], orgs, users, emit)
	}); err != nil {
		return nil, err
	}

	r.result.Duration = time.Since(r.result.Started)
	log.Info("Generation complete", zap.Duration("duration", r.result.Duration))
	return r.result, nil
}

// ctxCheckInterval is how many rows are appended between cancellation checks.
const ctxCheckInterval = 1024

// stage generates one table into a fresh batcher and commits it.
func stage[T entity.Row](r *runner, table string, produce func(emit func(T) error) error) error {
	t := schema.MustLookup(table)
	index := len(r.result.Tables) + 1
	if r.opts.OnStage != nil {
		r.opts.OnStage(Stage{Index: index, Total: len(schema.Names()), Table: table, Requested: r.counts[table]})
	}
	r.log.Debug("Generating table", zap.String("table", table), zap.Int("requested", r.counts[table]))

	start := time.Now()
	sink, err := r.sinks(t)
	if err != nil {
		return fmt.Errorf("open %s sink: %w", table, err)
	}
	b, err := writers.NewBatcher(t, sink, r.batchSize, r.opts.Allocator)
	if err != nil {
		sink.Abort()
		return fmt.Errorf("generate %s: %w", table, err)
	}

	n := 0
	err = produce(func(row T) error {
		n++
		if n%ctxCheckInterval == 0 {
			if err := r.ctx.Err(); err != nil {
				return err
			}
		}
		return b.Append(r.ctx, row)
	})
	if err == nil {
		err = r.ctx.Err()
	}
	if err == nil {
		err = b.Close(r.ctx)
	}
	if err != nil {
		if abortErr := b.Abort(); abortErr != nil {
			r.log.Warn("Failed to discard partial table", zap.String("table", table), zap.Error(abortErr))
		}
		r.log.Error("Table generation failed", zap.String("table", table), zap.Error(err))
		return fmt.Errorf("generate %s: %w", table, err)
	}

	res := TableResult{
		Table:     table,
		Requested: r.counts[table],
		Rows:      b.Rows(),
		Batches:   b.Batches(),
		Anomalies: r.policy.CountsFor(table),
		Duration:  time.Since(start),
		WriteTime: b.WriteTime(),
	}
	r.result.Tables = append(r.result.Tables, res)
	r.log.Info("Table generated",
		zap.String("table", table),
		zap.Int64("rows", res.Rows),
		zap.Int64("batches", res.Batches),
		zap.Duration("duration", res.Duration))
	return nil
}
