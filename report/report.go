// Package report renders audit results as JSON and HTML.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/TFMV/rawlayer/metrics"
)

// -----------------------------
// Report Generator Interfaces
// -----------------------------

// ReportGenerator defines the methods for generating reports.
type ReportGenerator interface {
	GenerateAuditReport(run *metrics.AuditReport) ([]byte, error)
	GenerateAlertNotification(run *metrics.AuditReport) ([]byte, error)
	SaveReportToFile(run *metrics.AuditReport, filePath string) error
}

// -----------------------------
// JSON Report Generator
// -----------------------------

// JSONReportGenerator generates JSON reports.
type JSONReportGenerator struct{}

// GenerateAuditReport serializes the AuditReport to JSON.
func (j *JSONReportGenerator) GenerateAuditReport(run *metrics.AuditReport) ([]byte, error) {
	return json.MarshalIndent(run, "", "  ")
}

// GenerateAlertNotification lists the failed checks in JSON format.
func (j *JSONReportGenerator) GenerateAlertNotification(run *metrics.AuditReport) ([]byte, error) {
	alert := map[string]any{
		"alert":     "Audit Failed",
		"dir":       run.Dir,
		"seed":      run.Seed,
		"failures":  run.Failures(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return json.MarshalIndent(alert, "", "  ")
}

// SaveReportToFile saves the JSON report to a file.
func (j *JSONReportGenerator) SaveReportToFile(run *metrics.AuditReport, filePath string) error {
	data, err := j.GenerateAuditReport(run)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// -----------------------------
// HTML Report Generator
// -----------------------------

// HTMLReportGenerator generates HTML reports.
type HTMLReportGenerator struct{}

const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Rawlayer Audit Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        table { width: 100%; border-collapse: collapse; margin-top: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f4f4f4; }
        .status-pass { color: green; }
        .status-fail { color: red; }
    </style>
</head>
<body>
    <h1>Rawlayer Audit Report</h1>
    <p><strong>Directory:</strong> {{.Dir}}</p>
    <p><strong>Format:</strong> {{.Format}}</p>
    <p><strong>Seed:</strong> {{.Seed}}{{if .Scale}} <strong>Scale:</strong> {{.Scale}}{{end}}</p>
    <p><strong>Audit Date:</strong> {{.StartTime}}</p>
    <p><strong>Status:</strong> {{if .Passed}}<span class="status-pass">PASS</span>{{else}}<span class="status-fail">FAIL</span>{{end}}</p>

    <h2>Tables</h2>
    <table>
        <tr>
            <th>Table</th>
            <th>File</th>
            <th>Rows</th>
            <th>Checks</th>
            <th>Status</th>
        </tr>
        {{range .Tables}}
        <tr>
            <td>{{.Table}}</td>
            <td>{{.File}}</td>
            <td>{{.Rows}}</td>
            <td>{{len .Checks}}</td>
            <td class="{{if .Passed}}status-pass{{else}}status-fail{{end}}">
                {{if .Passed}}PASS{{else}}FAIL{{end}}
            </td>
        </tr>
        {{end}}
    </table>

    {{range .Tables}}
    <h2>{{.Table}}</h2>
    <table>
        <tr>
            <th>Check</th>
            <th>Expected</th>
            <th>Actual</th>
            <th>Status</th>
            <th>Message</th>
        </tr>
        {{range .Checks}}
        <tr>
            <td>{{.Name}}</td>
            <td>{{.Expected}}</td>
            <td>{{.Actual}}</td>
            <td class="{{if .Passed}}status-pass{{else}}status-fail{{end}}">
                {{if .Passed}}PASS{{else}}FAIL{{end}}
            </td>
            <td>{{.Message}}</td>
        </tr>
        {{end}}
    </table>
    {{end}}

    <footer>
        <p>Generated on {{.EndTime}} in {{.Duration}}</p>
    </footer>
</body>
</html>
`

var reportTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// GenerateAuditReport generates an HTML report from the audit run.
func (h *HTMLReportGenerator) GenerateAuditReport(run *metrics.AuditReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, run); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateAlertNotification generates an HTML alert.
func (h *HTMLReportGenerator) GenerateAlertNotification(run *metrics.AuditReport) ([]byte, error) {
	alertHTML := fmt.Sprintf(
		`<html><body><h3>Audit Failed</h3><p>%d checks failed for %s.</p></body></html>`,
		len(run.Failures()), template.HTMLEscapeString(run.Dir),
	)
	return []byte(alertHTML), nil
}

// SaveReportToFile saves the HTML report to a file.
func (h *HTMLReportGenerator) SaveReportToFile(run *metrics.AuditReport, filePath string) error {
	data, err := h.GenerateAuditReport(run)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// SaveReports saves both JSON and HTML reports. An empty path skips that format.
func SaveReports(run *metrics.AuditReport, jsonPath, htmlPath string) error {
	if jsonPath != "" {
		if err := (&JSONReportGenerator{}).SaveReportToFile(run, jsonPath); err != nil {
			return err
		}
	}
	if htmlPath != "" {
		if err := (&HTMLReportGenerator{}).SaveReportToFile(run, htmlPath); err != nil {
			return err
		}
	}
	return nil
}

// ReportFromFilePath loads a JSON audit report.
func ReportFromFilePath(filePath string) (*metrics.AuditReport, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var report metrics.AuditReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
