// Package suite runs end-to-end scenarios against the dApp through a single
// connected browser session.
//
// A run builds one Fixture (launch, connect, isolate the dApp page), executes
// the selected scenarios one after another against it, and tears it down.
// Scenarios share the page, so they never run in parallel.
package suite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/dexprobe/pkg/browser"
	"github.com/entrhq/dexprobe/pkg/connector"
	"github.com/entrhq/dexprobe/pkg/logging"
)

// Status is the outcome of one scenario.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result records one scenario outcome.
type Result struct {
	Scenario string        `json:"scenario"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Failures []string      `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
	Snapshot string        `json:"snapshot,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	RunID       string        `json:"run_id"`
	DAppURL     string        `json:"dapp_url"`
	Address     string        `json:"address,omitempty"`
	ExtensionID string        `json:"extension_id,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	SetupError  string        `json:"setup_error,omitempty"`
	Results     []Result      `json:"results"`
	ArtifactDir string        `json:"-"`
}

// Count returns the number of results with the given status.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failed reports whether setup or any scenario failed.
func (r *Report) Failed() bool {
	return r.SetupError != "" || r.Count(StatusFailed) > 0
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Fixture FixtureOptions
	Filter  *Filter

	// Artifacts receives the report and snapshots; nil disables them
	Artifacts *ArtifactWriter

	// Snapshots captures the dApp page of every failed scenario
	Snapshots         bool
	SnapshotMaxLength int

	Reporter *Reporter
	DAppURL  string
	Logger   *logging.Logger
}

// Runner executes scenarios against one connector.
type Runner struct {
	connector *connector.Connector
	scenarios []Scenario
	opts      RunnerOptions
	log       *logging.Logger
}

// NewRunner creates a runner. Scenarios not matched by opts.Filter are
// dropped here so they never appear in the report.
func NewRunner(c *connector.Connector, scenarios []Scenario, opts RunnerOptions) *Runner {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	if opts.Fixture.Logger == nil {
		opts.Fixture.Logger = log
	}
	return &Runner{
		connector: c,
		scenarios: opts.Filter.Select(scenarios),
		opts:      opts,
		log:       log,
	}
}

// Scenarios returns the selected scenarios in run order.
func (r *Runner) Scenarios() []Scenario {
	return append([]Scenario(nil), r.scenarios...)
}

// Run sets up the fixture, runs every selected scenario and tears down. The
// returned error covers setup, teardown and artifact failures; scenario
// failures are reported through Report.Failed.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     logging.GetRunID(),
		DAppURL:   r.opts.DAppURL,
		StartTime: time.Now(),
	}
	rep := r.opts.Reporter
	rep.Header(report.RunID, report.DAppURL)

	if len(r.scenarios) == 0 {
		r.log.Warnf("No scenarios selected")
	}

	rep.Section("Setup")
	fixture, setupErr := Setup(ctx, r.connector, r.opts.Fixture)
	var runErr error
	if setupErr != nil {
		r.log.Errorf("Setup failed: %v", setupErr)
		rep.Errorf("%v", setupErr)
		report.SetupError = setupErr.Error()
		for _, s := range r.scenarios {
			report.Results = append(report.Results, Result{Scenario: s.ID(), Status: StatusSkipped, Error: "setup failed"})
		}
		runErr = setupErr
	} else {
		report.Address = fixture.Address()
		report.ExtensionID = r.connector.ExtensionID()

		rep.Section("Scenarios")
		for _, s := range r.scenarios {
			res := r.runOne(ctx, fixture, s)
			report.Results = append(report.Results, res)
			rep.Finished(res)
		}
	}

	if err := Teardown(r.connector, r.log); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("suite teardown: %w", err))
	}

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)

	if w := r.opts.Artifacts; w != nil {
		if err := w.WriteAll(report); err != nil {
			r.log.Errorf("Failed to write artifacts: %v", err)
			runErr = errors.Join(runErr, err)
		} else {
			report.ArtifactDir = w.Dir()
		}
	}

	rep.Summary(report)
	return report, runErr
}

func (r *Runner) runOne(ctx context.Context, f *Fixture, s Scenario) Result {
	res := Result{Scenario: s.ID()}
	if err := ctx.Err(); err != nil {
		res.Status = StatusSkipped
		res.Error = err.Error()
		return res
	}

	r.opts.Reporter.Started(res.Scenario)
	r.log.Infof("Running scenario %s", res.Scenario)

	start := time.Now()
	checker := &Checker{}
	err := r.invoke(ctx, f, s, checker)
	res.Duration = time.Since(start)
	res.Failures = checker.Failures()

	switch {
	case err != nil:
		res.Status = StatusFailed
		res.Error = err.Error()
	case checker.Failed():
		res.Status = StatusFailed
	default:
		res.Status = StatusPassed
		r.log.Infof("Scenario %s passed in %s", res.Scenario, res.Duration)
		return res
	}

	r.log.Errorf("Scenario %s failed: %s %v", res.Scenario, res.Error, res.Failures)
	res.Snapshot = r.snapshot(f, res.Scenario)
	return res
}

// invoke runs the scenario, converting a panic into an error so one broken
// scenario cannot abort the run before teardown.
func (r *Runner) invoke(ctx context.Context, f *Fixture, s Scenario, c *Checker) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scenario panicked: %v", p)
		}
	}()
	return s.Run(ctx, f, c)
}

func (r *Runner) snapshot(f *Fixture, id string) string {
	w := r.opts.Artifacts
	if w == nil || !r.opts.Snapshots || f.Page().IsClosed() {
		return ""
	}
	snap, err := browser.TakeSnapshot(f.Page(), r.opts.SnapshotMaxLength)
	if err != nil {
		r.log.Warnf("Failed to snapshot %s: %v", id, err)
		return ""
	}
	path, err := w.WriteSnapshot(id, snap)
	if err != nil {
		r.log.Warnf("Failed to write snapshot for %s: %v", id, err)
		return ""
	}
	return path
}
