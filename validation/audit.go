// Package validation audits a generated dataset by reading it back and checking the
// properties the generator guarantees.
package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/TFMV/rawlayer/internal/typed"
	"github.com/TFMV/rawlayer/metrics"
	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/readers"
	"github.com/TFMV/rawlayer/pkg/schema"
	"github.com/TFMV/rawlayer/pkg/writers"
)

// Auditor manages the configuration of an audit run.
type Auditor struct {
	// Dir is the output directory of a generation run.
	Dir string
	// Format of the table files. Empty uses the manifest, then parquet.
	Format string
	// Manifest enables the checks that compare against what the run reported.
	Manifest   *metrics.Manifest
	Thresholds metrics.AuditThresholds
	// Contracts are optional consumer contracts, by table.
	Contracts map[string]*schema.ContractConfig
	BatchSize int64

	Logger  *zap.Logger
	Readers *readers.Factory
}

// NewAuditor audits dir, loading its manifest when one is present.
func NewAuditor(dir string, logger *zap.Logger) (*Auditor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Auditor{
		Dir:        dir,
		Thresholds: metrics.DefaultThresholds(),
		Contracts:  map[string]*schema.ContractConfig{},
		BatchSize:  readers.DefaultBatchSize,
		Logger:     logger,
		Readers:    readers.DefaultFactory,
	}
	path := filepath.Join(dir, metrics.ManifestFile)
	m, err := metrics.LoadManifest(path)
	switch {
	case err == nil:
		a.Manifest = m
		a.Format = m.Output.Format
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("No manifest found, row counts and anomaly rates are not checked", zap.String("dir", dir))
	default:
		return nil, err
	}
	return a, nil
}

// AddContract registers a consumer contract for its table.
func (a *Auditor) AddContract(c *schema.ContractConfig) {
	a.Contracts[c.Table] = c
}

func (a *Auditor) format() string {
	if a.Format == "" {
		return "parquet"
	}
	return a.Format
}

// Audit reads every table back and returns the report. Parent tables are read before
// the tables that reference them; tables within a phase are read concurrently.
func (a *Auditor) Audit(ctx context.Context) (*metrics.AuditReport, error) {
	if a.format() == "duckdb" {
		return nil, &core.ConfigError{Field: "format", Value: "duckdb", Message: "audit reads table files; use the load verification for duckdb"}
	}
	start := time.Now()
	a.Logger.Info("Starting audit", zap.String("dir", a.Dir), zap.String("format", a.format()))

	au := &audit{Auditor: a, report: &metrics.AuditReport{
		Dir:        a.Dir,
		Format:     a.format(),
		Thresholds: a.Thresholds,
		StartTime:  start,
	}, keys: newKeys()}
	if a.Manifest != nil {
		au.report.Seed = a.Manifest.Seed
		au.report.Scale = a.Manifest.Scale
	}

	phases := [][]func(context.Context) error{
		{au.orgs, au.products},
		{au.users},
		{au.orders, au.events},
		{au.payments},
	}
	for _, phase := range phases {
		if err := runPhase(ctx, phase); err != nil {
			a.Logger.Error("Audit failed", zap.Error(err))
			return nil, err
		}
	}

	au.report.EndTime = time.Now()
	au.report.Duration = au.report.EndTime.Sub(start)
	au.report.Finish()
	a.Logger.Info("Audit complete",
		zap.Bool("passed", au.report.Passed),
		zap.Int("checks", au.report.NumChecks()),
		zap.Int("failures", len(au.report.Failures())),
		zap.Duration("duration", au.report.Duration))
	return au.report, nil
}

func runPhase(ctx context.Context, fns []func(context.Context) error) error {
	var (
		wg    sync.WaitGroup
		errCh = make(chan error, len(fns))
	)
	wg.Add(len(fns))
	for _, fn := range fns {
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

// audit is the state of one Audit call.
type audit struct {
	*Auditor
	mu     sync.Mutex
	report *metrics.AuditReport
	keys   *keys
}

func (au *audit) add(checks ...metrics.Check) {
	au.mu.Lock()
	defer au.mu.Unlock()
	for _, c := range checks {
		au.report.Add(c)
	}
}

func (au *audit) setFile(table, file string, rows int64) {
	au.mu.Lock()
	defer au.mu.Unlock()
	for i := range au.report.Tables {
		if au.report.Tables[i].Table == table {
			au.report.Tables[i].File = file
			au.report.Tables[i].Rows = rows
			return
		}
	}
	au.report.Tables = append(au.report.Tables, metrics.TableAudit{Table: table, File: file, Rows: rows})
}

// scan reads one table and decodes every row into T. It records the schema, contract
// and row count checks of the table.
func scan[T any](ctx context.Context, au *audit, name string, fn func(T)) (int64, error) {
	t := schema.MustLookup(name)
	path, err := writers.DefaultFactory.Path(au.Dir, au.format(), name)
	if err != nil {
		return 0, err
	}
	r, err := au.Readers.Create(core.ReaderConfig{
		Type:      au.format(),
		Path:      path,
		BatchSize: au.BatchSize,
		Schema:    t.Schema,
	})
	if err != nil {
		return 0, fmt.Errorf("audit %s: %w", name, err)
	}
	defer r.Close()

	au.add(au.schemaCheck(t, r.Schema()))
	if c, ok := au.Contracts[name]; ok {
		chk, err := au.contractCheck(c, r.Schema())
		if err != nil {
			return 0, err
		}
		au.add(chk)
	}

	var rows int64
	err = readers.Each(ctx, r, func(rec arrow.Record) error {
		rows += rec.NumRows()
		return typed.NewReader[T](rec).Each(func(row T) error {
			fn(row)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("audit %s: %w", name, err)
	}

	au.setFile(name, filepath.Base(path), rows)
	if chk, ok := au.rowCountCheck(name, rows); ok {
		au.add(chk)
	}
	au.Logger.Info("Table audited", zap.String("table", name), zap.Int64("rows", rows))
	return rows, nil
}

func (au *audit) schemaCheck(t schema.Table, s *arrow.Schema) metrics.Check {
	c := metrics.Check{Table: t.Name, Name: "schema", Expected: "declared schema", Passed: true}
	if err := schema.Conform(t, s); err != nil {
		c.Passed = false
		c.Message = err.Error()
	}
	return c
}

func (au *audit) contractCheck(cfg *schema.ContractConfig, s *arrow.Schema) (metrics.Check, error) {
	v, err := cfg.Validator()
	if err != nil {
		return metrics.Check{}, err
	}
	res := v.ValidateSchema(s)
	c := metrics.Check{Table: cfg.Table, Name: "contract", Passed: res.Valid}
	if !res.Valid {
		c.Message = fmt.Sprint(res.Messages())
	}
	return c, nil
}

func (au *audit) rowCountCheck(table string, rows int64) (metrics.Check, bool) {
	if au.Manifest == nil {
		return metrics.Check{}, false
	}
	want, ok := au.Manifest.Table(table)
	if !ok {
		return metrics.Check{Table: table, Name: "row_count", Actual: fmt.Sprint(rows),
			Message: "table missing from manifest"}, true
	}
	return metrics.Check{
		Table:    table,
		Name:     "row_count",
		Expected: fmt.Sprint(want.Rows),
		Actual:   fmt.Sprint(rows),
		Passed:   want.Rows == rows,
	}, true
}

// zeroCheck passes when no row violated a property.
func zeroCheck(table, name string, violations int64) metrics.Check {
	return metrics.Check{
		Table:    table,
		Name:     name,
		Expected: "0",
		Actual:   fmt.Sprint(violations),
		Passed:   violations == 0,
	}
}

// ratio counts hits out of a total.
type ratio struct {
	hit, total int64
}

func (r *ratio) observe(hit bool) {
	r.total++
	if hit {
		r.hit++
	}
}

func (r ratio) value() float64 {
	if r.total == 0 {
		return 1
	}
	return float64(r.hit) / float64(r.total)
}

func (au *audit) coverageCheck(table, column string, r ratio) metrics.Check {
	return metrics.Check{
		Table:    table,
		Name:     "fk_coverage." + column,
		Expected: fmt.Sprintf(">= %.4f", au.Thresholds.MinCoverage),
		Actual:   fmt.Sprintf("%.4f", r.value()),
		Passed:   r.value() >= au.Thresholds.MinCoverage,
	}
}

// anomalyCheck compares the observed count of a rule with what the run reported. Rules
// whose mutation can also occur in clean rows only need at least the reported count.
func (au *audit) anomalyCheck(table, rule string, observed int64, exact bool) (metrics.Check, bool) {
	if au.Manifest == nil {
		return metrics.Check{}, false
	}
	want := au.Manifest.Anomaly(rule)
	c := metrics.Check{Table: table, Name: "anomaly." + rule, Actual: fmt.Sprint(observed)}
	if exact {
		c.Expected = fmt.Sprint(want)
		c.Passed = observed == want
	} else {
		c.Expected = fmt.Sprintf(">= %d", want)
		c.Passed = observed >= want
	}
	return c, true
}

// rateCheck compares an observed rate with the configured probability of rule. The
// tolerance widens to four standard errors for small samples.
func (au *audit) rateCheck(table, name, rule string, r ratio) (metrics.Check, bool) {
	if au.Manifest == nil || r.total == 0 {
		return metrics.Check{}, false
	}
	p, ok := au.Manifest.Probability(rule)
	if !ok {
		return metrics.Check{}, false
	}
	tol := math.Max(au.Thresholds.RateTolerance, 4*math.Sqrt(p*(1-p)/float64(r.total)))
	got := r.value()
	return metrics.Check{
		Table:    table,
		Name:     name,
		Expected: fmt.Sprintf("%.4f ± %.4f", p, tol),
		Actual:   fmt.Sprintf("%.4f", got),
		Passed:   math.Abs(got-p) <= tol,
	}, true
}

// windowCheck counts timestamps outside [anchor-span, anchor).
type windowCheck struct {
	lo, hi     time.Time
	enabled    bool
	violations int64
}

func (au *audit) window(span time.Duration) *windowCheck {
	if au.Manifest == nil || au.Manifest.Anchor.IsZero() {
		return &windowCheck{}
	}
	anchor := au.Manifest.Anchor.UTC()
	return &windowCheck{lo: anchor.Add(-span), hi: anchor, enabled: true}
}

func (w *windowCheck) observe(t time.Time) {
	if w.enabled && (t.Before(w.lo) || !t.Before(w.hi)) {
		w.violations++
	}
}

func (w *windowCheck) check(table, column string) (metrics.Check, bool) {
	if !w.enabled {
		return metrics.Check{}, false
	}
	return zeroCheck(table, "window."+column, w.violations), true
}

func (au *audit) addOptional(pairs ...optional) {
	for _, p := range pairs {
		if p.ok {
			au.add(p.check)
		}
	}
}

type optional struct {
	check metrics.Check
	ok    bool
}

func opt(c metrics.Check, ok bool) optional {
	return optional{check: c, ok: ok}
}
