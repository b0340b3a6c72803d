package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/dexprobe/pkg/browser"
)

// ArtifactWriter writes the run report and failure snapshots to a directory.
type ArtifactWriter struct {
	outputDir string
}

// NewArtifactWriter creates a new artifact writer
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
	}
}

// Dir returns the output directory.
func (w *ArtifactWriter) Dir() string {
	return w.outputDir
}

// WriteAll writes results.json and summary.md
func (w *ArtifactWriter) WriteAll(report *Report) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.WriteResultsJSON(report); err != nil {
		return fmt.Errorf("failed to write results JSON: %w", err)
	}

	if err := w.WriteSummaryMarkdown(report); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}

	return nil
}

// WriteResultsJSON writes the full report as JSON
func (w *ArtifactWriter) WriteResultsJSON(report *Report) error {
	path := filepath.Join(w.outputDir, "results.json")

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write results JSON: %w", writeErr)
	}

	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteSummaryMarkdown(report *Report) error {
	path := filepath.Join(w.outputDir, "summary.md")

	var md strings.Builder

	md.WriteString("# dexprobe Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Run:** %s\n\n", report.RunID))
	md.WriteString(fmt.Sprintf("**dApp:** %s\n\n", report.DAppURL))
	if report.Address != "" {
		md.WriteString(fmt.Sprintf("**Wallet:** `%s`\n\n", report.Address))
	}
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", report.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", report.Duration.Round(time.Millisecond)))

	if report.SetupError != "" {
		md.WriteString(fmt.Sprintf("❌ **Setup failed:** %s\n\n", report.SetupError))
	}

	md.WriteString("## Scenarios\n\n")
	for _, r := range report.Results {
		md.WriteString(fmt.Sprintf("%s **%s** (%s)\n", statusIcon(r.Status), r.Scenario, r.Duration.Round(time.Millisecond)))
		if r.Error != "" {
			md.WriteString(fmt.Sprintf("   Error: %s\n", r.Error))
		}
		for _, failure := range r.Failures {
			md.WriteString(fmt.Sprintf("   - %s\n", failure))
		}
		if r.Snapshot != "" {
			md.WriteString(fmt.Sprintf("   Snapshot: `%s`\n", r.Snapshot))
		}
	}
	md.WriteString("\n")

	md.WriteString("## Totals\n\n")
	md.WriteString(fmt.Sprintf("- **Passed:** %d\n", report.Count(StatusPassed)))
	md.WriteString(fmt.Sprintf("- **Failed:** %d\n", report.Count(StatusFailed)))
	md.WriteString(fmt.Sprintf("- **Skipped:** %d\n", report.Count(StatusSkipped)))

	if writeErr := os.WriteFile(path, []byte(md.String()), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}

	return nil
}

// WriteSnapshot stores a cleaned page snapshot for the scenario and returns
// its path relative to the output directory.
func (w *ArtifactWriter) WriteSnapshot(scenarioID string, snap *browser.Snapshot) (string, error) {
	dir := filepath.Join(w.outputDir, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := strings.ReplaceAll(scenarioID, "/", "_") + ".html"

	var doc strings.Builder
	doc.WriteString(fmt.Sprintf("<!-- %s -->\n", snap.URL))
	if snap.Truncated {
		doc.WriteString("<!-- truncated -->\n")
	}
	doc.WriteString(snap.HTML)

	if err := os.WriteFile(filepath.Join(dir, name), []byte(doc.String()), 0600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return filepath.Join("snapshots", name), nil
}

func statusIcon(s Status) string {
	switch s {
	case StatusPassed:
		return "✅"
	case StatusFailed:
		return "❌"
	default:
		return "⏭️"
	}
}
