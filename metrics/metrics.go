// Package metrics records what a generation run produced and what an audit found.
package metrics

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"github.com/TFMV/rawlayer/pkg/anomaly"
	"github.com/TFMV/rawlayer/pkg/generate"
	"github.com/TFMV/rawlayer/version"
)

// ManifestFile is the manifest name inside an output directory.
const ManifestFile = "manifest.json"

// -----------------------------
// Run Manifest
// -----------------------------

// Output describes where and how the tables were written.
type Output struct {
	Dir         string `json:"dir"`
	Format      string `json:"format"`
	Compression string `json:"compression,omitempty"`
	// Database is the DuckDB file of the duckdb format.
	Database string `json:"database,omitempty"`
}

// TableManifest records one generated table.
type TableManifest struct {
	Table     string           `json:"table"`
	File      string           `json:"file,omitempty"`
	Bytes     int64            `json:"bytes,omitempty"`
	Digest    string           `json:"digest,omitempty"`
	Requested int              `json:"requested"`
	Rows      int64            `json:"rows"`
	Batches   int64            `json:"batches"`
	Anomalies map[string]int64 `json:"anomalies,omitempty"`
	Duration  time.Duration    `json:"duration"`
	WriteTime time.Duration    `json:"write_time"`
}

// Manifest is the record of one generation run. Two runs with the same seed, counts,
// anchor, rules and output settings have identical digests.
type Manifest struct {
	Version   string          `json:"version"`
	Seed      int64           `json:"seed"`
	Scale     string          `json:"scale,omitempty"`
	Anchor    time.Time       `json:"anchor"`
	BatchSize int             `json:"batch_size"`
	Counts    map[string]int  `json:"counts"`
	Rules     []anomaly.Rule  `json:"rules"`
	Output    Output          `json:"output"`
	Tables    []TableManifest `json:"tables"`
	Started   time.Time       `json:"started"`
	Duration  time.Duration   `json:"duration"`
}

// NewManifest builds the manifest of res written to out.
func NewManifest(res *generate.Result, out Output) *Manifest {
	m := &Manifest{
		Version:   version.GetVersion(),
		Seed:      res.Seed,
		Scale:     res.Scale,
		Anchor:    res.Anchor,
		BatchSize: res.BatchSize,
		Counts:    map[string]int(res.Counts),
		Rules:     res.Rules,
		Output:    out,
		Started:   res.Started,
		Duration:  res.Duration,
	}
	for _, t := range res.Tables {
		m.Tables = append(m.Tables, TableManifest{
			Table:     t.Table,
			Requested: t.Requested,
			Rows:      t.Rows,
			Batches:   t.Batches,
			Anomalies: t.Anomalies,
			Duration:  t.Duration,
			WriteTime: t.WriteTime,
		})
	}
	return m
}

// Table returns the entry of one table.
func (m *Manifest) Table(name string) (TableManifest, bool) {
	for _, t := range m.Tables {
		if t.Table == name {
			return t, true
		}
	}
	return TableManifest{}, false
}

// Probability returns the configured probability of a rule.
func (m *Manifest) Probability(rule string) (float64, bool) {
	for _, r := range m.Rules {
		if r.Name == rule {
			return r.Probability, true
		}
	}
	return 0, false
}

// Anomaly returns how often a rule fired across all tables.
func (m *Manifest) Anomaly(rule string) int64 {
	var n int64
	for _, t := range m.Tables {
		n += t.Anomalies[rule]
	}
	return n
}

// TotalRows sums the rows of every table.
func (m *Manifest) TotalRows() int64 {
	var n int64
	for _, t := range m.Tables {
		n += t.Rows
	}
	return n
}

// AttachFiles records the size and xxh3 digest of each table file. path maps a table
// to its file; tables whose path is empty are skipped.
func (m *Manifest) AttachFiles(path func(table string) string) error {
	for i := range m.Tables {
		p := path(m.Tables[i].Table)
		if p == "" {
			continue
		}
		digest, size, err := FileDigest(p)
		if err != nil {
			return fmt.Errorf("digest %s: %w", m.Tables[i].Table, err)
		}
		m.Tables[i].File = filepath.Base(p)
		m.Tables[i].Bytes = size
		m.Tables[i].Digest = digest
	}
	return nil
}

// FileDigest returns the hex xxh3-128 digest and the size of a file.
func FileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := xxh3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	sum := h.Sum128().Bytes()
	return fmt.Sprintf("%x", sum[:]), n, nil
}

// -----------------------------
// Audit Results
// -----------------------------

// Check is the outcome of one audit assertion.
type Check struct {
	Table    string `json:"table"`
	Name     string `json:"name"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// TableAudit groups the checks of one table.
type TableAudit struct {
	Table  string  `json:"table"`
	File   string  `json:"file,omitempty"`
	Rows   int64   `json:"rows"`
	Checks []Check `json:"checks"`
	Passed bool    `json:"passed"`
}

// AuditThresholds are the tolerances of the statistical checks.
type AuditThresholds struct {
	// MinCoverage is the smallest accepted fraction of foreign keys found in their parent.
	MinCoverage float64 `json:"min_coverage"`
	// RateTolerance is the smallest accepted deviation of an observed anomaly rate.
	RateTolerance float64 `json:"rate_tolerance"`
}

// DefaultThresholds returns the tolerances used when none are configured.
func DefaultThresholds() AuditThresholds {
	return AuditThresholds{MinCoverage: 0.99, RateTolerance: 0.005}
}

// AuditReport aggregates the checks of an audit run.
type AuditReport struct {
	Dir        string          `json:"dir"`
	Format     string          `json:"format"`
	Seed       int64           `json:"seed"`
	Scale      string          `json:"scale,omitempty"`
	Thresholds AuditThresholds `json:"thresholds"`
	Tables     []TableAudit    `json:"tables"`
	Passed     bool            `json:"passed"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    time.Time       `json:"end_time"`
	Duration   time.Duration   `json:"duration"`
}

// Add records a check under its table.
func (r *AuditReport) Add(c Check) {
	for i := range r.Tables {
		if r.Tables[i].Table == c.Table {
			r.Tables[i].Checks = append(r.Tables[i].Checks, c)
			return
		}
	}
	r.Tables = append(r.Tables, TableAudit{Table: c.Table, Checks: []Check{c}})
}

// Finish computes the pass flags and orders the checks.
func (r *AuditReport) Finish() {
	r.Passed = true
	for i := range r.Tables {
		t := &r.Tables[i]
		sort.SliceStable(t.Checks, func(a, b int) bool { return t.Checks[a].Name < t.Checks[b].Name })
		t.Passed = true
		for _, c := range t.Checks {
			if !c.Passed {
				t.Passed = false
				r.Passed = false
			}
		}
	}
}

// Failures returns every failed check.
func (r *AuditReport) Failures() []Check {
	var out []Check
	for _, t := range r.Tables {
		for _, c := range t.Checks {
			if !c.Passed {
				out = append(out, c)
			}
		}
	}
	return out
}

// NumChecks returns the number of checks across tables.
func (r *AuditReport) NumChecks() int {
	n := 0
	for _, t := range r.Tables {
		n += len(t.Checks)
	}
	return n
}

// -----------------------------
// Metrics Storage
// -----------------------------

// MetricsStore abstracts manifest and audit storage.
type MetricsStore interface {
	SaveManifest(ctx context.Context, m *Manifest) error
	SaveAudit(ctx context.Context, r *AuditReport) error
}

// JSONMetricsStore stores results as indented JSON. An empty FilePath prints to stdout.
type JSONMetricsStore struct {
	FilePath string
}

func (j *JSONMetricsStore) save(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if j.FilePath != "" {
		return os.WriteFile(j.FilePath, data, 0644)
	}
	fmt.Println(string(data))
	return nil
}

func (j *JSONMetricsStore) SaveManifest(ctx context.Context, m *Manifest) error {
	return j.save(ctx, m)
}

func (j *JSONMetricsStore) SaveAudit(ctx context.Context, r *AuditReport) error {
	return j.save(ctx, r)
}

// LoadManifest reads a manifest written by JSONMetricsStore.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// -----------------------------
// Error Handling
// -----------------------------

// ValidationError reports an audit that did not pass.
type ValidationError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Validation Error [%s]: %s", e.Code, e.Message)
}

// AuditError summarises the failures of r, or returns nil when it passed.
func AuditError(r *AuditReport) error {
	if r.Passed {
		return nil
	}
	failures := r.Failures()
	details := make(map[string]any, len(failures))
	for _, c := range failures {
		details[c.Table+"."+c.Name] = c.Actual
	}
	return &ValidationError{
		Code:    "AUDIT_FAILED",
		Message: fmt.Sprintf("%d of %d checks failed", len(failures), r.NumChecks()),
		Details: details,
	}
}
