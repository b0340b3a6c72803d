package suite

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Verbosity controls how much the console reporter prints.
type Verbosity int

const (
	// VerbosityQuiet shows failures and the final summary
	VerbosityQuiet Verbosity = iota
	// VerbosityNormal shows one line per scenario (default)
	VerbosityNormal
	// VerbosityVerbose also shows scenario starts and assertion details
	VerbosityVerbose
)

// ParseReportVerbosity maps a configured verbosity name. "debug" reports like
// "verbose"; the extra detail goes to the log file.
func ParseReportVerbosity(name string) (Verbosity, error) {
	switch strings.ToLower(name) {
	case "quiet":
		return VerbosityQuiet, nil
	case "", "normal":
		return VerbosityNormal, nil
	case "verbose", "debug":
		return VerbosityVerbose, nil
	default:
		return VerbosityNormal, fmt.Errorf("invalid verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", name)
	}
}

// Color Palette
var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	coralPink   = lipgloss.Color("#FFCCCB")
	mintGreen   = lipgloss.Color("#A8E6CF")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(coralPink)

	passStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	detailStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Foreground(brightWhite).
			Padding(0, 1)
)

// Reporter prints run progress to a terminal.
type Reporter struct {
	level  Verbosity
	writer io.Writer
}

// NewReporter creates a reporter writing to w, or stdout when w is nil.
func NewReporter(level Verbosity, w io.Writer) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &Reporter{level: level, writer: w}
}

// Header prints the run banner.
func (r *Reporter) Header(runID, dappURL string) {
	if r == nil || r.level < VerbosityNormal {
		return
	}
	fmt.Fprintln(r.writer, headerStyle.Render("dexprobe "+dappURL))
	fmt.Fprintln(r.writer, detailStyle.Render("run "+runID))
}

// Section prints a phase divider.
func (r *Reporter) Section(title string) {
	if r == nil || r.level < VerbosityNormal {
		return
	}
	fmt.Fprintln(r.writer)
	fmt.Fprintln(r.writer, sectionStyle.Render("▶ "+title))
	fmt.Fprintln(r.writer, detailStyle.Render(strings.Repeat("─", 50)))
}

// Started announces a scenario in verbose mode.
func (r *Reporter) Started(id string) {
	if r == nil || r.level < VerbosityVerbose {
		return
	}
	fmt.Fprintln(r.writer, detailStyle.Render("→ "+id))
}

// Finished prints a scenario's outcome. Failures are shown at every level.
func (r *Reporter) Finished(res Result) {
	if r == nil {
		return
	}
	switch res.Status {
	case StatusPassed:
		if r.level >= VerbosityNormal {
			fmt.Fprintf(r.writer, "%s %s\n", passStyle.Render("✓ "+res.Scenario), detailStyle.Render(res.Duration.Round(time.Millisecond).String()))
		}
	case StatusSkipped:
		if r.level >= VerbosityVerbose {
			fmt.Fprintln(r.writer, detailStyle.Render("- "+res.Scenario+" skipped"))
		}
	default:
		fmt.Fprintln(r.writer, failStyle.Render("✗ "+res.Scenario))
		if res.Error != "" {
			fmt.Fprintln(r.writer, detailStyle.Render("    "+res.Error))
		}
		if r.level >= VerbosityVerbose || res.Error == "" {
			for _, failure := range res.Failures {
				fmt.Fprintln(r.writer, detailStyle.Render("    "+failure))
			}
		}
	}
}

// Errorf prints an error outside any scenario.
func (r *Reporter) Errorf(format string, args ...interface{}) {
	if r == nil {
		return
	}
	fmt.Fprintln(r.writer, failStyle.Render("✗ Error: "+fmt.Sprintf(format, args...)))
}

// Summary prints the totals box.
func (r *Reporter) Summary(report *Report) {
	if r == nil {
		return
	}
	lines := []string{
		fmt.Sprintf("passed  %d", report.Count(StatusPassed)),
		fmt.Sprintf("failed  %d", report.Count(StatusFailed)),
		fmt.Sprintf("skipped %d", report.Count(StatusSkipped)),
		fmt.Sprintf("took    %s", report.Duration.Round(time.Millisecond)),
	}
	if report.ArtifactDir != "" {
		lines = append(lines, "report  "+report.ArtifactDir)
	}
	fmt.Fprintln(r.writer)
	fmt.Fprintln(r.writer, summaryStyle.Render(strings.Join(lines, "\n")))
}
