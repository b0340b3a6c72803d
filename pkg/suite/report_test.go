package suite

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/dexprobe/pkg/browser"
	"github.com/entrhq/dexprobe/pkg/config"
)

func sampleReport() *Report {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Report{
		RunID:     "run-1",
		DAppURL:   dappURL,
		Address:   address,
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Duration:  90 * time.Second,
		Results: []Result{
			{Scenario: "swap-page/title", Status: StatusPassed, Duration: time.Second},
			{Scenario: "swap/buy-token", Status: StatusFailed, Error: "swap not confirmed", Snapshot: "snapshots/swap_buy-token.html"},
			{Scenario: "pool-page/title", Status: StatusFailed, Failures: []string{`"a" does not contain "b"`}},
			{Scenario: "pool-page/url", Status: StatusSkipped},
		},
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		id      string
		want    bool
	}{
		{name: "no patterns", id: "swap/buy-token", want: true},
		{name: "group include", include: []string{"swap/*"}, id: "swap/buy-token", want: true},
		{name: "group include other group", include: []string{"swap/*"}, id: "swap-page/title", want: false},
		{name: "star does not cross groups", include: []string{"*"}, id: "swap/buy-token", want: false},
		{name: "exclude wins", include: []string{"swap/*"}, exclude: []string{"*/buy-*"}, id: "swap/buy-token", want: false},
		{name: "exclude only", exclude: []string{"pool-page/*"}, id: "swap-page/url", want: true},
		{name: "alternatives", include: []string{"{swap,pool-page}/*"}, id: "pool-page/positions", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.include, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(tt.id))
		})
	}
}

func TestFilterInvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{"swap/["}, nil)
	assert.ErrorContains(t, err, "invalid scenario pattern")
}

func TestNilFilterMatchesAll(t *testing.T) {
	var f *Filter
	assert.True(t, f.Match("anything/at-all"))
	assert.Len(t, f.Select(DefaultScenarios()), len(DefaultScenarios()))
}

func TestChecker(t *testing.T) {
	c := &Checker{}
	assert.False(t, c.Failed())

	assert.Contains(c, "GalaSwap", "Uniswap", "page title")
	assert.Equal(c, 1, 1)

	require.True(t, c.Failed())
	failures := c.Failures()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], `does not contain "Uniswap"`)
	assert.Contains(t, failures[0], "page title")
	assert.NotContains(t, failures[0], "Error Trace")
	assert.NotContains(t, failures[0], "\n")
}

func TestCompact(t *testing.T) {
	msg := "\n\tError Trace:\t/src/a.go:10\n\t            \t/src/b.go:20\n\tError:      \tShould be true\n\tMessages:   \tswitch visible\n"
	assert.Equal(t, "Error:      \tShould be true Messages:   \tswitch visible", compact(msg))
}

func TestArtifactWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewArtifactWriter(dir)

	require.NoError(t, w.WriteAll(sampleReport()))

	data, err := os.ReadFile(filepath.Join(dir, "results.json"))
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Len(t, decoded.Results, 4)
	assert.Equal(t, StatusFailed, decoded.Results[1].Status)

	md, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	summary := string(md)
	assert.Contains(t, summary, "**Run:** run-1")
	assert.Contains(t, summary, "✅ **swap-page/title**")
	assert.Contains(t, summary, "❌ **swap/buy-token**")
	assert.Contains(t, summary, "Error: swap not confirmed")
	assert.Contains(t, summary, "Snapshot: `snapshots/swap_buy-token.html`")
	assert.Contains(t, summary, "- **Failed:** 2")
	assert.Contains(t, summary, "- **Skipped:** 1")
}

func TestArtifactWriterSnapshot(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir)

	path, err := w.WriteSnapshot("pool-page/positions", &browser.Snapshot{
		URL:       dappURL + "dex/pool",
		HTML:      "<div>positions</div>",
		Truncated: true,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("snapshots", "pool-page_positions.html"), path)

	data, err := os.ReadFile(filepath.Join(dir, path))
	require.NoError(t, err)
	assert.Equal(t, "<!-- "+dappURL+"dex/pool -->\n<!-- truncated -->\n<div>positions</div>", string(data))
}

func TestReportCounts(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 1, r.Count(StatusPassed))
	assert.Equal(t, 2, r.Count(StatusFailed))
	assert.True(t, r.Failed())

	ok := &Report{Results: []Result{{Status: StatusPassed}, {Status: StatusSkipped}}}
	assert.False(t, ok.Failed())
	ok.SetupError = "launch failed"
	assert.True(t, ok.Failed())
}

func TestReporter(t *testing.T) {
	t.Run("normal", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewReporter(VerbosityNormal, &buf)
		report := sampleReport()

		r.Header(report.RunID, report.DAppURL)
		r.Section("Scenarios")
		for _, res := range report.Results {
			r.Started(res.Scenario)
			r.Finished(res)
		}
		r.Summary(report)

		out := buf.String()
		assert.Contains(t, out, dappURL)
		assert.Contains(t, out, "✓ swap-page/title")
		assert.Contains(t, out, "✗ swap/buy-token")
		assert.Contains(t, out, "swap not confirmed")
		assert.Contains(t, out, `"a" does not contain "b"`)
		assert.NotContains(t, out, "→ ")
		assert.NotContains(t, out, "pool-page/url skipped")
		assert.Contains(t, out, "failed  2")
	})

	t.Run("quiet", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewReporter(VerbosityQuiet, &buf)
		report := sampleReport()

		r.Header(report.RunID, report.DAppURL)
		for _, res := range report.Results {
			r.Finished(res)
		}

		out := buf.String()
		assert.NotContains(t, out, "swap-page/title")
		assert.Contains(t, out, "✗ swap/buy-token")
	})

	t.Run("verbose", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewReporter(VerbosityVerbose, &buf)
		r.Started("swap/buy-token")
		r.Finished(Result{Scenario: "pool-page/url", Status: StatusSkipped})
		assert.Contains(t, buf.String(), "→ swap/buy-token")
		assert.Contains(t, buf.String(), "pool-page/url skipped")
	})

	t.Run("nil reporter", func(t *testing.T) {
		var r *Reporter
		assert.NotPanics(t, func() {
			r.Header("run", dappURL)
			r.Finished(Result{Status: StatusFailed})
			r.Summary(sampleReport())
		})
	})
}

func TestParseReportVerbosity(t *testing.T) {
	for name, want := range map[string]Verbosity{
		"":        VerbosityNormal,
		"quiet":   VerbosityQuiet,
		"NORMAL":  VerbosityNormal,
		"verbose": VerbosityVerbose,
		"debug":   VerbosityVerbose,
	} {
		got, err := ParseReportVerbosity(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseReportVerbosity("loud")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Artifacts.OutputDir = t.TempDir()
	cfg.Scenarios.Include = []string{"swap/*"}

	r, shutdown, err := Build(cfg, BuildOptions{Launcher: &fakeLauncher{}})
	require.NoError(t, err)
	require.NoError(t, shutdown())

	require.Len(t, r.Scenarios(), 2)
	assert.Equal(t, "swap/buy-token", r.Scenarios()[0].ID())
	require.NotNil(t, r.opts.Artifacts)
	assert.Equal(t, cfg.Artifacts.OutputDir, r.opts.Artifacts.Dir())
	assert.Equal(t, cfg.Retry.Attempts, r.opts.Fixture.Swap.Approval.Attempts)
	assert.Equal(t, cfg.DApp.URL, r.opts.DAppURL)

	cfg.Artifacts.Enabled = false
	cfg.Scenarios.Exclude = []string{"["}
	_, _, err = Build(cfg, BuildOptions{Launcher: &fakeLauncher{}})
	assert.ErrorContains(t, err, "invalid scenario pattern")
}
