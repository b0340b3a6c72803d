package suite

import (
	"io"

	"github.com/entrhq/dexprobe/pkg/browser"
	"github.com/entrhq/dexprobe/pkg/config"
	"github.com/entrhq/dexprobe/pkg/connector"
	"github.com/entrhq/dexprobe/pkg/dex"
	"github.com/entrhq/dexprobe/pkg/logging"
	"github.com/entrhq/dexprobe/pkg/retry"
)

// BuildOptions supplies the parts of a run that do not come from the
// configuration file.
type BuildOptions struct {
	// Launcher starts the browser session. When nil a Playwright launcher is
	// built from cfg.Browser.
	Launcher connector.Launcher

	// Scenarios defaults to DefaultScenarios
	Scenarios []Scenario

	Reporter *Reporter
	Logger   *logging.Logger

	// InstallOutput receives Playwright installer progress
	InstallOutput io.Writer
}

// Build wires a runner from configuration. The returned shutdown function
// stops the browser runtime and must be called after Run.
func Build(cfg *config.Config, opts BuildOptions) (*Runner, func() error, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	shutdown := func() error { return nil }
	launcher := opts.Launcher
	if launcher == nil {
		manager := browser.NewManager(
			browser.WithSkipInstall(cfg.Browser.SkipInstall),
			browser.WithOutput(opts.InstallOutput),
			browser.WithLogger(log.With("browser")),
		)
		launcher = manager.Launcher(browser.OptionsFromConfig(cfg.Browser))
		shutdown = manager.Shutdown
	}

	connOpts, err := connector.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	connOpts.Logger = log.With("connector")

	c, err := connector.New(launcher, connOpts)
	if err != nil {
		return nil, nil, err
	}

	filter, err := NewFilter(cfg.Scenarios.Include, cfg.Scenarios.Exclude)
	if err != nil {
		return nil, nil, err
	}

	scenarios := opts.Scenarios
	if scenarios == nil {
		scenarios = DefaultScenarios()
	}

	runOpts := RunnerOptions{
		Fixture: FixtureOptions{
			Swap: dex.SwapOptions{
				Approval: retry.Policy{
					Attempts: cfg.Retry.Attempts,
					Delay:    cfg.Retry.Delay,
					Factor:   cfg.Retry.Factor,
				},
				Logger: log.With("dex"),
			},
			Logger: log.With("suite"),
		},
		Filter:            filter,
		Snapshots:         cfg.Artifacts.Snapshots,
		SnapshotMaxLength: cfg.Artifacts.SnapshotMaxLength,
		Reporter:          opts.Reporter,
		DAppURL:           cfg.DApp.URL,
		Logger:            log.With("runner"),
	}
	if cfg.Artifacts.Enabled {
		runOpts.Artifacts = NewArtifactWriter(cfg.Artifacts.OutputDir)
	}

	return NewRunner(c, scenarios, runOpts), shutdown, nil
}
