package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TFMV/rawlayer/config"
	"github.com/TFMV/rawlayer/integrations/duckdb"
	"github.com/TFMV/rawlayer/metrics"
	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/generate"
	"github.com/TFMV/rawlayer/pkg/schema"
	"github.com/TFMV/rawlayer/pkg/writers"
	"github.com/TFMV/rawlayer/validation"
)

// generateFlags maps configuration keys to the generate flags that set them.
var generateFlags = map[string]string{
	"seed":                 "seed",
	"scale":                "scale",
	"batch_size":           "batch-size",
	"anchor":               "anchor",
	"no_anomalies":         "no-anomalies",
	"output.dir":           "out",
	"output.format":        "format",
	"output.compression":   "compression",
	"output.duckdb_path":   "duckdb-path",
	"output.duckdb_driver": "duckdb-driver",
}

func newGenerateCommand(a *app) *cobra.Command {
	var (
		rows      map[string]int
		anomalies map[string]string
		progress  bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the six raw tables",
		Long: `Generate orgs, users, products, orders, payments and events in dependency order.

Each table is written to a partial file (or a staging table for duckdb) and only
becomes visible once it is complete. A manifest.json with row counts, fired
anomalies and file digests is written to the output directory.

Examples:
  rawlayer generate --scale s --format parquet --out data
  rawlayer generate --rows orders=2000,payments=500 --anomaly user_duplicate=0.05
  rawlayer generate --format duckdb --duckdb-path raw.duckdb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.load(cmd, generateFlags, func(v *viper.Viper) error {
				mergeMap(v, "overrides", rows)
				rates := make(map[string]float64, len(anomalies))
				for name, raw := range anomalies {
					p, err := strconv.ParseFloat(raw, 64)
					if err != nil {
						return &core.ConfigError{Field: "anomalies." + name, Value: raw, Message: "must be a probability"}
					}
					rates[name] = p
				}
				mergeMap(v, "anomalies", rates)
				return nil
			})
			if err != nil {
				return err
			}
			var out io.Writer
			if progress {
				out = cmd.ErrOrStderr()
			}
			manifest, err := runGenerate(cmd.Context(), a.cfg, a.log, out)
			if err != nil {
				return err
			}
			printManifest(cmd.OutOrStdout(), manifest)
			return nil
		},
	}

	f := cmd.Flags()
	f.Int64("seed", 42, "Seed of the run")
	f.String("scale", "xs", "Scale preset (xs, s, m, l)")
	f.StringToIntVar(&rows, "rows", nil, "Per-table row count overrides, e.g. orders=1000")
	f.Int("batch-size", 100_000, "Maximum rows per record batch")
	f.String("anchor", "", "RFC3339 instant every time window ends at")
	f.StringToStringVar(&anomalies, "anomaly", nil, "Anomaly probability overrides, e.g. user_duplicate=0.05")
	f.Bool("no-anomalies", false, "Disable every anomaly rule")
	f.StringP("out", "o", "data", "Output directory")
	f.StringP("format", "f", "parquet", "Output format (parquet, arrow, json, duckdb)")
	f.String("compression", "", "Codec: parquet snappy|zstd|gzip|none, arrow zstd|lz4|none")
	f.String("duckdb-path", "rawlayer.duckdb", "DuckDB database file for the duckdb format")
	f.String("duckdb-driver", "", "Path of the DuckDB shared library")
	f.BoolVar(&progress, "progress", true, "Show a progress spinner")
	return cmd
}

// runGenerate executes one run described by cfg and writes its manifest. Progress is
// shown on progress when it is not nil.
func runGenerate(ctx context.Context, cfg *config.Config, log *zap.Logger, progress io.Writer) (*metrics.Manifest, error) {
	req, err := cfg.Request()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	out := metrics.Output{Dir: cfg.Output.Dir, Format: cfg.Output.Format, Compression: cfg.Output.Compression}
	factory := writers.DefaultFactory
	var db *duckdb.DuckDB
	if cfg.Output.Format == "duckdb" {
		db, err = duckdb.NewDuckDB(
			duckdb.WithPath(cfg.Output.DuckDBPath),
			duckdb.WithDriverPath(cfg.Output.DuckDBDriver),
			duckdb.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		defer db.Close()
		out.Database = cfg.Output.DuckDBPath
		factory = writers.NewFactory()
		factory.Register("duckdb", "", func(c core.WriterConfig) (core.RecordSink, error) {
			sink, err := duckdb.NewSink(ctx, db, c)
			if err != nil {
				return nil, err
			}
			return sink, nil
		})
	}

	sinks := func(t schema.Table) (core.RecordSink, error) {
		path, err := factory.Path(cfg.Output.Dir, cfg.Output.Format, t.Name)
		if err != nil {
			return nil, err
		}
		return factory.Create(core.WriterConfig{
			Type:        cfg.Output.Format,
			Path:        path,
			Table:       t.Name,
			Schema:      t.Schema,
			Compression: cfg.Output.Compression,
			BatchSize:   int64(req.BatchSize),
		})
	}

	opts := generate.Options{Logger: log}
	if progress != nil {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(progress))
		opts.OnStage = func(st generate.Stage) {
			s.Lock()
			s.Suffix = fmt.Sprintf(" [%d/%d] %s (%d rows)", st.Index, st.Total, st.Table, st.Requested)
			s.Unlock()
		}
		s.Start()
		defer s.Stop()
	}

	res, err := generate.Run(ctx, req, sinks, opts)
	if err != nil {
		return nil, err
	}

	m := metrics.NewManifest(res, out)
	err = m.AttachFiles(func(table string) string {
		if cfg.Output.Format == "duckdb" {
			return ""
		}
		p, _ := factory.Path(cfg.Output.Dir, cfg.Output.Format, table)
		return p
	})
	if err != nil {
		return nil, err
	}
	store := &metrics.JSONMetricsStore{FilePath: filepath.Join(cfg.Output.Dir, metrics.ManifestFile)}
	if err := store.SaveManifest(ctx, m); err != nil {
		return nil, fmt.Errorf("save manifest: %w", err)
	}

	if db != nil {
		conn, err := db.OpenConnection()
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		report, err := validation.VerifyLoaded(ctx, conn, m, log)
		if err != nil {
			return nil, err
		}
		if err := metrics.AuditError(report); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func printManifest(w io.Writer, m *metrics.Manifest) {
	fmt.Fprintf(w, "Generated seed %d", m.Seed)
	if m.Scale != "" {
		fmt.Fprintf(w, " at scale %s", m.Scale)
	}
	fmt.Fprintf(w, " as %s in %s\n", m.Output.Format, m.Duration.Round(time.Millisecond))
	for _, t := range m.Tables {
		fmt.Fprintf(w, "  %-9s %10d rows  %5d batches", t.Table, t.Rows, t.Batches)
		if t.File != "" {
			fmt.Fprintf(w, "  %s %s", t.File, t.Digest)
		}
		fmt.Fprintln(w)
	}
	for _, r := range m.Rules {
		if n := m.Anomaly(r.Name); n > 0 {
			fmt.Fprintf(w, "  anomaly %-22s %d\n", r.Name, n)
		}
	}
}
