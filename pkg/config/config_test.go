package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dexprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "chrome", cfg.Browser.Channel)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1680, cfg.Browser.ViewportWidth)
	assert.Equal(t, 1050, cfg.Browser.ViewportHeight)
	assert.Equal(t, "Test@123", cfg.Wallet.Password)
	assert.Len(t, cfg.Wallet.Mnemonic, 12)
	assert.Equal(t, 25*time.Second, cfg.Popup.EventTimeout)
	assert.Equal(t, 5, cfg.Popup.FocusAttempts)
	assert.Equal(t, 2*time.Second, cfg.Popup.FocusDelay)
	assert.Equal(t, 3*time.Second, cfg.Popup.ProbeTimeout)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, time.Second, cfg.DApp.SettleDelay)
}

func TestDefaultMnemonicIsCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Wallet.Mnemonic[0] = "changed"
	assert.Equal(t, "vast", DefaultMnemonic[0])
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DApp.URL, cfg.DApp.URL)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
browser:
  extension_path: /opt/metamask
  headless: true
wallet:
  network: sepolia
dapp:
  url: https://dex.example.test/
  settle_delay: 1500ms
popup:
  event_timeout: 10s
retry:
  attempts: 3
  delay: 250ms
logging:
  verbosity: debug
`)

	cfg, err := Load(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, "/opt/metamask", cfg.Browser.ExtensionPath)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "chrome", cfg.Browser.Channel, "unset keys keep defaults")
	assert.Equal(t, "sepolia", cfg.Wallet.Network)
	assert.Equal(t, "Test@123", cfg.Wallet.Password)
	assert.Equal(t, "https://dex.example.test/", cfg.DApp.URL)
	assert.Equal(t, 1500*time.Millisecond, cfg.DApp.SettleDelay)
	assert.Equal(t, 10*time.Second, cfg.Popup.EventTimeout)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, "debug", cfg.Logging.Verbosity)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
wallet:
  password: from-file
dapp:
  url: https://file.example.test/
`)

	cfg, err := Load(path, envMap(map[string]string{
		"METAMASK_PASSWORD":       "from-env",
		"DEXPROBE_DAPP_URL":       "https://env.example.test/",
		"DEXPROBE_EXTENSION_PATH": "/env/metamask",
		"DEXPROBE_HEADLESS":       "true",
		"DEXPROBE_VERBOSITY":      "quiet",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Wallet.Password)
	assert.Equal(t, "https://env.example.test/", cfg.DApp.URL)
	assert.Equal(t, "/env/metamask", cfg.Browser.ExtensionPath)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "quiet", cfg.Logging.Verbosity)
}

func TestLoadEnvInvalidBool(t *testing.T) {
	_, err := Load("", envMap(map[string]string{"DEXPROBE_HEADLESS": "maybe"}))
	assert.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), noEnv)
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "browser: [unterminated")
		_, err := Load(path, noEnv)
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "retry:\n  attempts: 0\n")
		_, err := Load(path, noEnv)
		assert.ErrorContains(t, err, "retry.attempts")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing url", func(c *Config) { c.DApp.URL = "" }, "dapp.url"},
		{"missing user data dir", func(c *Config) { c.Browser.UserDataDir = "" }, "user_data_dir"},
		{"unknown wallet", func(c *Config) { c.Wallet.Kind = "phantom" }, "unsupported wallet kind"},
		{"empty password", func(c *Config) { c.Wallet.Password = "" }, "wallet.password"},
		{"short mnemonic", func(c *Config) { c.Wallet.Mnemonic = []string{"vast"} }, "12 or 24 words"},
		{"no address selectors", func(c *Config) { c.DApp.AddressSelectors = nil }, "address_selectors"},
		{"zero focus attempts", func(c *Config) { c.Popup.FocusAttempts = 0 }, "focus_attempts"},
		{"negative factor", func(c *Config) { c.Retry.Factor = -1 }, "retry.factor"},
		{"negative duration", func(c *Config) { c.Popup.FocusDelay = -time.Second }, "popup.focus_delay"},
		{"bad verbosity", func(c *Config) { c.Logging.Verbosity = "chatty" }, "verbosity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidateDefaultsVerbosity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Verbosity = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "normal", cfg.Logging.Verbosity)
}
