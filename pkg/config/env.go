package config

import (
	"fmt"
	"os"

	"github.com/mstoykov/envconfig"
)

// envOverrides are the settings that may come from the environment.
type envOverrides struct {
	Password      string `envconfig:"METAMASK_PASSWORD"`
	DAppURL       string `envconfig:"DEXPROBE_DAPP_URL"`
	ExtensionPath string `envconfig:"DEXPROBE_EXTENSION_PATH"`
	UserDataDir   string `envconfig:"DEXPROBE_USER_DATA_DIR"`
	Headless      *bool  `envconfig:"DEXPROBE_HEADLESS"`
	Verbosity     string `envconfig:"DEXPROBE_VERBOSITY"`
	OutputDir     string `envconfig:"DEXPROBE_ARTIFACTS_DIR"`
}

// ApplyEnv overlays environment overrides. lookup defaults to os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var env envOverrides
	if err := envconfig.Process("", &env, lookup); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if env.Password != "" {
		c.Wallet.Password = env.Password
	}
	if env.DAppURL != "" {
		c.DApp.URL = env.DAppURL
	}
	if env.ExtensionPath != "" {
		c.Browser.ExtensionPath = env.ExtensionPath
	}
	if env.UserDataDir != "" {
		c.Browser.UserDataDir = env.UserDataDir
	}
	if env.Headless != nil {
		c.Browser.Headless = *env.Headless
	}
	if env.Verbosity != "" {
		c.Logging.Verbosity = env.Verbosity
	}
	if env.OutputDir != "" {
		c.Artifacts.OutputDir = env.OutputDir
	}

	return nil
}
