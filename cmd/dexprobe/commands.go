package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/entrhq/dexprobe/pkg/config"
	"github.com/entrhq/dexprobe/pkg/logging"
	"github.com/entrhq/dexprobe/pkg/suite"
)

// cliFlags holds values that override the loaded configuration.
type cliFlags struct {
	configFile    string
	verbosity     string
	dappURL       string
	extensionPath string
	userDataDir   string
	headless      bool
	include       []string
	exclude       []string
	artifactsDir  string
	noArtifacts   bool
	skipInstall   bool
}

func newRootCommand() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "dexprobe",
		Short:         "End-to-end probe for the DEX frontend with a MetaMask wallet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "path to the YAML configuration file")
	root.PersistentFlags().StringVarP(&flags.verbosity, "verbosity", "v", "", "quiet, normal, verbose or debug")
	root.PersistentFlags().StringSliceVar(&flags.include, "include", nil, "scenario globs to run, e.g. 'swap/*'")
	root.PersistentFlags().StringSliceVar(&flags.exclude, "exclude", nil, "scenario globs to skip")

	root.AddCommand(
		newRunCommand(flags),
		newListCommand(flags),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect the wallet and run the scenarios",
		Long: `Launch the browser with the wallet extension, connect to the dApp and
run every selected scenario against the connected page.

Exits non-zero when setup or any scenario fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.dappURL, "dapp-url", "", "dApp URL to test")
	f.StringVar(&flags.extensionPath, "extension", "", "unpacked wallet extension directory")
	f.StringVar(&flags.userDataDir, "user-data-dir", "", "persistent browser profile directory")
	f.BoolVar(&flags.headless, "headless", false, "run the browser without a window")
	f.StringVar(&flags.artifactsDir, "artifacts", "", "directory for the run report and snapshots")
	f.BoolVar(&flags.noArtifacts, "no-artifacts", false, "do not write the run report")
	f.BoolVar(&flags.skipInstall, "skip-install", false, "do not download the Playwright driver")
	return cmd
}

func newListCommand(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scenarios a run would execute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.Flags())
			if err != nil {
				return err
			}
			filter, err := suite.NewFilter(cfg.Scenarios.Include, cfg.Scenarios.Exclude)
			if err != nil {
				return err
			}
			for _, s := range filter.Select(suite.DefaultScenarios()) {
				fmt.Fprintln(cmd.OutOrStdout(), s.ID())
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dexprobe v%s\n", version)
		},
	}
}

// loadConfig reads the file and environment, then applies the flags that were
// set explicitly and validates the result.
func loadConfig(flags *cliFlags, set *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile, nil)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, flags, set)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, flags *cliFlags, set *pflag.FlagSet) {
	changed := func(name string) bool {
		f := set.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("verbosity") {
		cfg.Logging.Verbosity = flags.verbosity
	}
	if changed("include") {
		cfg.Scenarios.Include = flags.include
	}
	if changed("exclude") {
		cfg.Scenarios.Exclude = flags.exclude
	}
	if changed("dapp-url") {
		cfg.DApp.URL = flags.dappURL
	}
	if changed("extension") {
		cfg.Browser.ExtensionPath = flags.extensionPath
	}
	if changed("user-data-dir") {
		cfg.Browser.UserDataDir = flags.userDataDir
	}
	if changed("headless") {
		cfg.Browser.Headless = flags.headless
	}
	if changed("artifacts") {
		cfg.Artifacts.OutputDir = flags.artifactsDir
	}
	if changed("no-artifacts") {
		cfg.Artifacts.Enabled = !flags.noArtifacts
	}
	if changed("skip-install") {
		cfg.Browser.SkipInstall = flags.skipInstall
	}
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	level, err := logging.ParseVerbosity(cfg.Logging.Verbosity)
	if err != nil {
		return err
	}
	verbosity, err := suite.ParseReportVerbosity(cfg.Logging.Verbosity)
	if err != nil {
		return err
	}

	logging.SetLevel(level)
	if cfg.Logging.Dir != "" {
		logging.SetLogDirectory(cfg.Logging.Dir)
	}
	if cfg.Logging.Console {
		logging.SetMirror(os.Stderr)
	}

	log, err := logging.NewLogger("dexprobe")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	defer log.Close()

	out := cmd.OutOrStdout()
	reporter := suite.NewReporter(verbosity, out)

	runner, shutdown, err := suite.Build(cfg, suite.BuildOptions{
		Reporter:      reporter,
		Logger:        log,
		InstallOutput: out,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(); err != nil {
			log.Warnf("Failed to stop browser runtime: %v", err)
		}
	}()

	log.Infof("dexprobe v%s against %s (run %s)", version, cfg.DApp.URL, logging.GetRunID())
	if path := log.LogPath(); path != "" && verbosity >= suite.VerbosityVerbose {
		fmt.Fprintf(out, "Log file: %s\n", path)
	}

	report, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}
	if report.Failed() {
		return errScenariosFailed
	}
	return nil
}
