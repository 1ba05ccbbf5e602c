package validation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TFMV/rawlayer/integrations"
	"github.com/TFMV/rawlayer/metrics"
)

// VerifyLoaded compares COUNT(*) of every loaded table with the rows the run reported.
func VerifyLoaded(ctx context.Context, conn integrations.Connection, m *metrics.Manifest, logger *zap.Logger) (*metrics.AuditReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	report := &metrics.AuditReport{
		Dir:        m.Output.Dir,
		Format:     m.Output.Format,
		Seed:       m.Seed,
		Scale:      m.Scale,
		Thresholds: metrics.DefaultThresholds(),
		StartTime:  time.Now(),
	}
	for _, t := range m.Tables {
		n, err := integrations.RowCount(ctx, conn, t.Table)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", t.Table, err)
		}
		report.Add(metrics.Check{
			Table:    t.Table,
			Name:     "row_count",
			Expected: fmt.Sprint(t.Rows),
			Actual:   fmt.Sprint(n),
			Passed:   n == t.Rows,
		})
		logger.Info("Load verified", zap.String("table", t.Table), zap.Int64("output_rows", t.Rows), zap.Int64("loaded_rows", n))
	}
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	report.Finish()
	return report, nil
}
