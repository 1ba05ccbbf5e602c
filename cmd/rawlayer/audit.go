package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TFMV/rawlayer/config"
	"github.com/TFMV/rawlayer/integrations/duckdb"
	"github.com/TFMV/rawlayer/metrics"
	"github.com/TFMV/rawlayer/pkg/schema"
	"github.com/TFMV/rawlayer/report"
	"github.com/TFMV/rawlayer/validation"
)

var auditFlags = map[string]string{
	"audit.min_coverage":   "min-coverage",
	"audit.rate_tolerance": "rate-tolerance",
	"output.duckdb_driver": "duckdb-driver",
}

// AuditOptions are the outputs of the audit command.
type AuditOptions struct {
	Format    string
	JSONPath  string
	HTMLPath  string
	AlertPath string
	Contracts []string
}

func newAuditCommand(a *app) *cobra.Command {
	options := &AuditOptions{}

	cmd := &cobra.Command{
		Use:   "audit [DIR]",
		Short: "Read a generated dataset back and check its guarantees",
		Long: `Audit reads every table of a generated dataset back and checks primary-key
uniqueness, foreign-key coverage, time windows and ordering, money scale, payment
derivation and the anomaly counts recorded in manifest.json.

A dataset loaded into DuckDB is verified by comparing each table's COUNT(*) with
the manifest. The command exits non-zero when any check fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.load(cmd, auditFlags, func(v *viper.Viper) error {
				if len(args) == 1 {
					v.Set("output.dir", args[0])
				}
				return nil
			})
			if err != nil {
				return err
			}
			return runAudit(cmd.Context(), a.cfg, a.log, options, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&options.Format, "format", "f", "", "Table file format when the directory has no manifest")
	f.StringVar(&options.JSONPath, "json", "", "Write the JSON report to this file")
	f.StringVar(&options.HTMLPath, "html", "", "Write the HTML report to this file")
	f.StringVar(&options.AlertPath, "alert", "", "Write a JSON alert listing the failures to this file when the audit fails")
	f.StringSliceVar(&options.Contracts, "contract", nil, "Consumer contract files (.yaml, .yml or .json)")
	f.Float64("min-coverage", 0.99, "Smallest accepted foreign-key coverage")
	f.Float64("rate-tolerance", 0.005, "Smallest accepted deviation of an anomaly rate")
	f.String("duckdb-driver", "", "Path of the DuckDB shared library")
	return cmd
}

func runAudit(ctx context.Context, cfg *config.Config, log *zap.Logger, options *AuditOptions, w io.Writer) error {
	auditor, err := validation.NewAuditor(cfg.Output.Dir, log)
	if err != nil {
		return err
	}
	if options.Format != "" {
		auditor.Format = options.Format
	}
	auditor.Thresholds = metrics.AuditThresholds{
		MinCoverage:   cfg.Audit.MinCoverage,
		RateTolerance: cfg.Audit.RateTolerance,
	}
	for _, path := range append(cfg.Audit.Contracts, options.Contracts...) {
		c, err := schema.LoadContract(path)
		if err != nil {
			return err
		}
		auditor.AddContract(c)
	}

	var run *metrics.AuditReport
	if auditor.Manifest != nil && auditor.Manifest.Output.Format == "duckdb" {
		run, err = verifyDuckDB(ctx, cfg, auditor.Manifest, log)
	} else {
		run, err = auditor.Audit(ctx)
	}
	if err != nil {
		return err
	}

	printAudit(w, run)
	if err := report.SaveReports(run, options.JSONPath, options.HTMLPath); err != nil {
		return fmt.Errorf("save reports: %w", err)
	}
	if !run.Passed && options.AlertPath != "" {
		alert, err := (&report.JSONReportGenerator{}).GenerateAlertNotification(run)
		if err != nil {
			return err
		}
		if err := os.WriteFile(options.AlertPath, alert, 0644); err != nil {
			return fmt.Errorf("save alert: %w", err)
		}
	}
	return metrics.AuditError(run)
}

func verifyDuckDB(ctx context.Context, cfg *config.Config, m *metrics.Manifest, log *zap.Logger) (*metrics.AuditReport, error) {
	path := m.Output.Database
	if path == "" {
		path = cfg.Output.DuckDBPath
	}
	db, err := duckdb.NewDuckDB(
		duckdb.WithPath(path),
		duckdb.WithDriverPath(cfg.Output.DuckDBDriver),
		duckdb.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer db.Close()
	conn, err := db.OpenConnection()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return validation.VerifyLoaded(ctx, conn, m, log)
}

func printAudit(w io.Writer, r *metrics.AuditReport) {
	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(w, "Audit of %s (%s): %s, %d checks\n", r.Dir, r.Format, status, r.NumChecks())
	for _, t := range r.Tables {
		mark := "ok"
		if !t.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  %-9s %10d rows  %3d checks  %s\n", t.Table, t.Rows, len(t.Checks), mark)
	}
	for _, c := range r.Failures() {
		fmt.Fprintf(w, "  FAIL %s.%s expected %s, got %s", c.Table, c.Name, c.Expected, c.Actual)
		if c.Message != "" {
			fmt.Fprintf(w, ": %s", c.Message)
		}
		fmt.Fprintln(w)
	}
}
