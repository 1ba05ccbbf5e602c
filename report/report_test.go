package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/TFMV/rawlayer/metrics"
)

func TestJSONReportGenerator_GenerateAuditReport(t *testing.T) {
	report := createTestReport()
	generator := &JSONReportGenerator{}

	data, err := generator.GenerateAuditReport(report)
	if err != nil {
		t.Fatalf("Failed to generate report: %v", err)
	}

	var decoded metrics.AuditReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Generated invalid JSON: %v", err)
	}
	if decoded.Dir != "data" {
		t.Errorf("Expected dir 'data', got %s", decoded.Dir)
	}
	if len(decoded.Tables) != 2 {
		t.Errorf("Expected 2 tables, got %d", len(decoded.Tables))
	}
}

func TestJSONReportGenerator_GenerateAlertNotification(t *testing.T) {
	data, err := (&JSONReportGenerator{}).GenerateAlertNotification(createTestReport())
	if err != nil {
		t.Fatalf("Failed to generate alert: %v", err)
	}
	if !strings.Contains(string(data), "fk_coverage.user_id") {
		t.Errorf("Alert does not list the failed check: %s", data)
	}
}

func TestHTMLReportGenerator_GenerateAuditReport(t *testing.T) {
	report := createTestReport()
	generator := &HTMLReportGenerator{}

	data, err := generator.GenerateAuditReport(report)
	if err != nil {
		t.Fatalf("Failed to generate HTML report: %v", err)
	}

	html := string(data)
	expectedElements := []string{
		"<!DOCTYPE html>",
		"<title>Rawlayer Audit Report</title>",
		"orders.parquet",
		"fk_coverage.user_id",
		"PASS",
		"FAIL",
	}
	for _, expected := range expectedElements {
		if !strings.Contains(html, expected) {
			t.Errorf("HTML report missing expected content: %s", expected)
		}
	}
}

func TestSaveReports(t *testing.T) {
	report := createTestReport()
	tmpDir := t.TempDir()
	jsonPath := filepath.Join(tmpDir, "audit.json")
	htmlPath := filepath.Join(tmpDir, "audit.html")

	if err := SaveReports(report, jsonPath, htmlPath); err != nil {
		t.Fatalf("Failed to save reports: %v", err)
	}
	if _, err := os.Stat(jsonPath); os.IsNotExist(err) {
		t.Error("JSON report file was not created")
	}
	if _, err := os.Stat(htmlPath); os.IsNotExist(err) {
		t.Error("HTML report file was not created")
	}

	loaded, err := ReportFromFilePath(jsonPath)
	if err != nil {
		t.Fatalf("Failed to load report: %v", err)
	}
	if loaded.Passed != report.Passed || loaded.Seed != report.Seed {
		t.Errorf("Loaded report mismatch: %+v", loaded)
	}
}

func TestReportFromFilePathMissing(t *testing.T) {
	if _, err := ReportFromFilePath(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected an error for a missing report")
	}
}

func createTestReport() *metrics.AuditReport {
	now := time.Now()
	r := &metrics.AuditReport{
		Dir:        "data",
		Format:     "parquet",
		Seed:       42,
		Scale:      "xs",
		Thresholds: metrics.DefaultThresholds(),
		StartTime:  now,
		EndTime:    now.Add(time.Second),
		Duration:   time.Second,
	}
	r.Add(metrics.Check{Table: "orgs", Name: "row_count", Expected: "20", Actual: "20", Passed: true})
	r.Add(metrics.Check{Table: "orders", Name: "fk_coverage.user_id", Expected: ">= 0.99", Actual: "0.5", Passed: false})
	r.Tables[1].File = "orders.parquet"
	r.Finish()
	return r
}
