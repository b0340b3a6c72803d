// Package config loads the suite configuration.
//
// Values are resolved in order: DefaultConfig, then the YAML file, then
// environment overrides, then CLI flags (applied by the caller). The result is
// validated once and treated as read-only afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete suite configuration.
type Config struct {
	Browser   BrowserConfig  `yaml:"browser" json:"browser"`
	Wallet    WalletConfig   `yaml:"wallet" json:"wallet"`
	DApp      DAppConfig     `yaml:"dapp" json:"dapp"`
	Popup     PopupConfig    `yaml:"popup" json:"popup"`
	Retry     RetryConfig    `yaml:"retry" json:"retry"`
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
	Scenarios ScenarioConfig `yaml:"scenarios" json:"scenarios"`
}

// BrowserConfig controls the persistent browser session.
type BrowserConfig struct {
	// ExtensionPath is the unpacked wallet extension directory
	ExtensionPath string `yaml:"extension_path" json:"extension_path"`

	// UserDataDir is the persistent profile directory (created if missing)
	UserDataDir string `yaml:"user_data_dir" json:"user_data_dir"`

	// Channel selects the browser distribution, e.g. "chrome"
	Channel string `yaml:"channel" json:"channel"`

	// Headless is off by default: extensions need a headed browser
	Headless bool `yaml:"headless" json:"headless"`

	ViewportWidth  int `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height" json:"viewport_height"`

	SlowMo         time.Duration `yaml:"slow_mo" json:"slow_mo"`
	WorkerTimeout  time.Duration `yaml:"worker_timeout" json:"worker_timeout"`
	DefaultTimeout time.Duration `yaml:"default_timeout" json:"default_timeout"`

	// VideoDir records page videos when set
	VideoDir string `yaml:"video_dir" json:"video_dir"`

	// SkipInstall skips downloading the Playwright driver and browsers
	SkipInstall bool `yaml:"skip_install" json:"skip_install"`
}

// WalletConfig is the wallet agent configuration.
type WalletConfig struct {
	Kind     string        `yaml:"kind" json:"kind"`
	Password string        `yaml:"password" json:"-"`
	Mnemonic []string      `yaml:"mnemonic" json:"-"`
	Network  string        `yaml:"network" json:"network"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	// VerifyUnlock re-checks that the lock screen is gone after submitting the
	// password instead of trusting the click
	VerifyUnlock bool `yaml:"verify_unlock" json:"verify_unlock"`
}

// DAppConfig describes the target application.
type DAppConfig struct {
	URL string `yaml:"url" json:"url"`

	SettleDelay         time.Duration `yaml:"settle_delay" json:"settle_delay"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ConnectedTimeout    time.Duration `yaml:"connected_timeout" json:"connected_timeout"`
	ConfirmProbeTimeout time.Duration `yaml:"confirm_probe_timeout" json:"confirm_probe_timeout"`

	// ConnectButton and WalletOption are case-insensitive name patterns
	ConnectButton string `yaml:"connect_button" json:"connect_button"`
	WalletOption  string `yaml:"wallet_option" json:"wallet_option"`

	ProfileSelector  string   `yaml:"profile_selector" json:"profile_selector"`
	AddressSelectors []string `yaml:"address_selectors" json:"address_selectors"`
}

// PopupConfig tunes popup acquisition.
type PopupConfig struct {
	EventTimeout  time.Duration `yaml:"event_timeout" json:"event_timeout"`
	FocusAttempts int           `yaml:"focus_attempts" json:"focus_attempts"`
	FocusDelay    time.Duration `yaml:"focus_delay" json:"focus_delay"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" json:"probe_timeout"`

	// HomePatterns are globs for extension pages that are never popups
	HomePatterns []string `yaml:"home_patterns" json:"home_patterns"`
}

// RetryConfig bounds the unlock and confirm loops.
type RetryConfig struct {
	Attempts int           `yaml:"attempts" json:"attempts"`
	Delay    time.Duration `yaml:"delay" json:"delay"`
	Factor   float64       `yaml:"factor" json:"factor"`
}

// ArtifactConfig defines report generation.
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Snapshots writes a cleaned HTML snapshot of the dApp page per failure
	Snapshots         bool `yaml:"snapshots" json:"snapshots"`
	SnapshotMaxLength int  `yaml:"snapshot_max_length" json:"snapshot_max_length"`
}

// LoggingConfig defines logging configuration.
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`

	// Dir overrides ~/.dexprobe/logs
	Dir string `yaml:"dir" json:"dir"`

	// Console mirrors log entries to stderr
	Console bool `yaml:"console" json:"console"`
}

// ScenarioConfig selects which scenarios run.
type ScenarioConfig struct {
	// Include lists scenario name globs; empty runs everything
	Include []string `yaml:"include" json:"include"`

	// Exclude lists scenario name globs to skip
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// DefaultMnemonic is the recovery phrase of the shared test wallet.
var DefaultMnemonic = []string{
	"vast", "flip", "matter", "ship", "predict", "alcohol",
	"black", "jacket", "observe", "hour", "kid", "view",
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			UserDataDir:    "user-data",
			Channel:        "chrome",
			Headless:       false,
			ViewportWidth:  1680,
			ViewportHeight: 1050,
			WorkerTimeout:  30 * time.Second,
			DefaultTimeout: 60 * time.Second,
		},
		Wallet: WalletConfig{
			Kind:     "metamask",
			Password: "Test@123",
			Mnemonic: append([]string(nil), DefaultMnemonic...),
			Network:  "ethereum",
			Timeout:  60 * time.Second,
		},
		DApp: DAppConfig{
			URL:                 "https://dex-frontend-qa1.defi.gala.com/",
			SettleDelay:         time.Second,
			ConnectTimeout:      10 * time.Second,
			ConnectedTimeout:    30 * time.Second,
			ConfirmProbeTimeout: 10 * time.Second,
			ConnectButton:       "connect wallet",
			WalletOption:        "metamask",
			ProfileSelector:     "#dropdown-basic",
			AddressSelectors: []string{
				".copyaddress",
				`[data-testid="wallet-address"]`,
				".wallet-address",
				".address",
				`div[class*="address"]`,
			},
		},
		Popup: PopupConfig{
			EventTimeout:  25 * time.Second,
			FocusAttempts: 5,
			FocusDelay:    2 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Retry: RetryConfig{
			Attempts: 5,
			Delay:    time.Second,
		},
		Artifacts: ArtifactConfig{
			Enabled:           true,
			OutputDir:         ".dexprobe/artifacts",
			Snapshots:         true,
			SnapshotMaxLength: 20000,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load reads the YAML file at path over DefaultConfig, applies environment
// overrides from lookup (os.LookupEnv when nil) and validates the result.
// An empty path skips the file.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	if c.DApp.URL == "" {
		return fmt.Errorf("dapp.url is required")
	}

	if c.Browser.UserDataDir == "" {
		return fmt.Errorf("browser.user_data_dir is required")
	}

	if c.Browser.ViewportWidth < 0 || c.Browser.ViewportHeight < 0 {
		return fmt.Errorf("browser viewport cannot be negative")
	}

	if c.Wallet.Kind != "metamask" {
		return fmt.Errorf("unsupported wallet kind: %s (must be 'metamask')", c.Wallet.Kind)
	}

	if c.Wallet.Password == "" {
		return fmt.Errorf("wallet.password is required")
	}

	if len(c.Wallet.Mnemonic) != 12 && len(c.Wallet.Mnemonic) != 24 {
		return fmt.Errorf("wallet.mnemonic must have 12 or 24 words, got %d", len(c.Wallet.Mnemonic))
	}

	if len(c.DApp.AddressSelectors) == 0 {
		return fmt.Errorf("dapp.address_selectors cannot be empty")
	}

	if c.Popup.FocusAttempts < 1 {
		return fmt.Errorf("popup.focus_attempts must be at least 1")
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}

	if c.Retry.Factor < 0 {
		return fmt.Errorf("retry.factor cannot be negative")
	}

	durations := map[string]time.Duration{
		"popup.event_timeout":        c.Popup.EventTimeout,
		"popup.focus_delay":          c.Popup.FocusDelay,
		"popup.probe_timeout":        c.Popup.ProbeTimeout,
		"retry.delay":                c.Retry.Delay,
		"wallet.timeout":             c.Wallet.Timeout,
		"dapp.settle_delay":          c.DApp.SettleDelay,
		"dapp.connect_timeout":       c.DApp.ConnectTimeout,
		"dapp.connected_timeout":     c.DApp.ConnectedTimeout,
		"dapp.confirm_probe_timeout": c.DApp.ConfirmProbeTimeout,
		"browser.worker_timeout":     c.Browser.WorkerTimeout,
		"browser.slow_mo":            c.Browser.SlowMo,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}

	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}
