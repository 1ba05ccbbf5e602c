package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/TFMV/rawlayer/metrics"
	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/writers"
)

func executeCommand(rootCmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// generateInto runs the generate command into a fresh directory.
func generateInto(t *testing.T, format string, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	args := append([]string{"generate", "--log-file=", "--progress=false",
		"--out", dir, "--format", format, "--batch-size", "200"}, extra...)
	output, err := executeCommand(newRootCommand(), args...)
	if err != nil {
		t.Fatalf("generate failed: %v\n%s", err, output)
	}
	return dir
}

func TestCLI_Help(t *testing.T) {
	output, err := executeCommand(newRootCommand(), "--help")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(output, "Usage:") {
		t.Errorf("Expected usage output in --help, got: %s", output)
	}
	for _, sub := range []string{"generate", "audit", "schema", "inspect", "presets", "serve", "version"} {
		if !strings.Contains(output, sub) {
			t.Errorf("Expected help to list %s, got: %s", sub, output)
		}
	}
}

func TestCLI_Version(t *testing.T) {
	output, err := executeCommand(newRootCommand(), "version")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(output, "rawlayer") {
		t.Errorf("Expected version output to contain 'rawlayer', got: %s", output)
	}
}

func TestCLI_Presets(t *testing.T) {
	output, err := executeCommand(newRootCommand(), "presets")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, want := range []string{"xs", "orders", "user_duplicate"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected presets output to contain %q, got: %s", want, output)
		}
	}
}

func TestCLI_Schema(t *testing.T) {
	output, err := executeCommand(newRootCommand(), "schema", "payments", "--ddl")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(output, "CREATE TABLE `raw.payments`") || !strings.Contains(output, "PARTITION BY DATE(paid_ts)") {
		t.Errorf("Unexpected DDL: %s", output)
	}

	output, err = executeCommand(newRootCommand(), "schema")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if strings.Count(output, "Table: ") != 6 {
		t.Errorf("Expected six tables, got: %s", output)
	}

	if _, err := executeCommand(newRootCommand(), "schema", "invoices"); err == nil {
		t.Error("Expected an error for an unknown table")
	}
}

func TestCLI_GenerateAuditInspect(t *testing.T) {
	for _, format := range []string{"parquet", "arrow", "json"} {
		t.Run(format, func(t *testing.T) {
			dir := generateInto(t, format, "--seed", "11")

			m, err := metrics.LoadManifest(filepath.Join(dir, metrics.ManifestFile))
			if err != nil {
				t.Fatalf("Expected a manifest: %v", err)
			}
			if m.Seed != 11 || m.Output.Format != format {
				t.Errorf("Unexpected manifest: seed %d, format %s", m.Seed, m.Output.Format)
			}
			for _, table := range m.Tables {
				if table.Digest == "" {
					t.Errorf("Expected a digest for %s", table.Table)
				}
			}

			reportPath := filepath.Join(dir, "audit.json")
			output, err := executeCommand(newRootCommand(), "audit", dir, "--log-file=", "--json", reportPath)
			if err != nil {
				t.Fatalf("Expected audit to pass, got %v\n%s", err, output)
			}
			if !strings.Contains(output, "PASSED") {
				t.Errorf("Expected a passing summary, got: %s", output)
			}
			if _, err := os.Stat(reportPath); err != nil {
				t.Errorf("Expected a JSON report: %v", err)
			}

			file := filepath.Join(dir, m.Tables[3].File)
			output, err = executeCommand(newRootCommand(), "inspect", file, "-n", "2")
			if err != nil {
				t.Fatalf("Expected inspect to succeed, got %v", err)
			}
			if strings.Count(output, "order_id=") != 2 {
				t.Errorf("Expected two order rows, got: %s", output)
			}
		})
	}
}

func TestCLI_GenerateIsDeterministic(t *testing.T) {
	a := generateInto(t, "parquet", "--rows", "orders=300,events=400")
	b := generateInto(t, "parquet", "--rows", "orders=300,events=400")

	ma, err := metrics.LoadManifest(filepath.Join(a, metrics.ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	mb, err := metrics.LoadManifest(filepath.Join(b, metrics.ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	if ma.Counts["orders"] != 300 || ma.Counts["events"] != 400 {
		t.Errorf("Row overrides not applied: %v", ma.Counts)
	}
	for i := range ma.Tables {
		if ma.Tables[i].Digest != mb.Tables[i].Digest {
			t.Errorf("Digest of %s differs between identical runs", ma.Tables[i].Table)
		}
	}
}

func TestCLI_CompressionHelpMatchesWriters(t *testing.T) {
	cmd, _, err := newRootCommand().Find([]string{"generate"})
	if err != nil {
		t.Fatalf("Expected generate command, got %v", err)
	}
	usage := cmd.Flags().Lookup("compression").Usage
	const prefix = "parquet "
	start := strings.Index(usage, prefix)
	if start < 0 {
		t.Fatalf("Expected parquet codecs in %q", usage)
	}
	list, _, _ := strings.Cut(usage[start+len(prefix):], ",")
	for _, codec := range strings.Split(list, "|") {
		if _, err := writers.ParquetCompression(codec); err != nil {
			t.Errorf("Help lists parquet codec %q but the writer rejects it: %v", codec, err)
		}
	}
	if _, err := writers.ParquetCompression("brotli"); err == nil {
		t.Error("Expected brotli to be rejected for parquet")
	}
}

func TestCLI_GenerateRejectsBadConfig(t *testing.T) {
	cases := [][]string{
		{"--format", "csv"},
		{"--anomaly", "user_duplicate=often"},
		{"--anomaly", "user_duplicate=2"},
		{"--rows", "invoices=10"},
		{"--scale", "xxl"},
	}
	for _, args := range cases {
		_, err := executeCommand(newRootCommand(), append([]string{"generate", "--log-file=", "--progress=false", "--out", t.TempDir()}, args...)...)
		var cfgErr *core.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%v: expected a ConfigError, got %v", args, err)
		}
	}
}

func TestCLI_AuditFailure(t *testing.T) {
	dir := generateInto(t, "parquet")
	path := filepath.Join(dir, metrics.ManifestFile)
	m, err := metrics.LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	m.Tables[0].Rows++
	if err := (&metrics.JSONMetricsStore{FilePath: path}).SaveManifest(context.Background(), m); err != nil {
		t.Fatal(err)
	}

	alert := filepath.Join(dir, "alert.json")
	output, err := executeCommand(newRootCommand(), "audit", dir, "--log-file=", "--alert", alert)
	var vErr *metrics.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected a ValidationError, got %v", err)
	}
	if vErr.Code != "AUDIT_FAILED" {
		t.Errorf("Unexpected code %s", vErr.Code)
	}
	if !strings.Contains(output, "FAIL orgs.row_count") {
		t.Errorf("Expected the failing check in the summary, got: %s", output)
	}
	if _, err := os.Stat(alert); err != nil {
		t.Errorf("Expected an alert file: %v", err)
	}
}

func TestCLI_GenerateAnomalyOverride(t *testing.T) {
	dir := generateInto(t, "json", "--anomaly", "event_schema_drift=1,user_email_null=0")
	m, err := metrics.LoadManifest(filepath.Join(dir, metrics.ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	if p, _ := m.Probability("event_schema_drift"); p != 1 {
		t.Errorf("Expected drift probability 1, got %v", p)
	}
	events, _ := m.Table("events")
	if got := m.Anomaly("event_schema_drift"); got != events.Rows {
		t.Errorf("Expected every event to drift, got %d of %d", got, events.Rows)
	}
	if got := m.Anomaly("user_email_null"); got != 0 {
		t.Errorf("Expected no null emails, got %d", got)
	}
}
