package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/dexprobe/pkg/config"
)

func TestNormalizeDefaults(t *testing.T) {
	ext := t.TempDir()

	opts, err := LaunchOptions{
		ExtensionPath: ext,
		UserDataDir:   "user-data",
	}.normalize()
	require.NoError(t, err)

	assert.Equal(t, ext, opts.ExtensionPath)
	assert.True(t, filepath.IsAbs(opts.UserDataDir))
	assert.Equal(t, DefaultChannel, opts.Channel)
	require.NotNil(t, opts.Viewport)
	assert.Equal(t, DefaultViewportWidth, opts.Viewport.Width)
	assert.Equal(t, DefaultViewportHeight, opts.Viewport.Height)
	assert.Equal(t, DefaultWorkerTimeout, opts.WorkerTimeout)
}

func TestNormalizeErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0600))

	tests := []struct {
		name    string
		opts    LaunchOptions
		wantErr string
	}{
		{"missing extension path", LaunchOptions{UserDataDir: "x"}, "extension path is required"},
		{"extension not found", LaunchOptions{ExtensionPath: filepath.Join(t.TempDir(), "nope"), UserDataDir: "x"}, "extension not found"},
		{"extension is a file", LaunchOptions{ExtensionPath: file, UserDataDir: "x"}, "not a directory"},
		{"missing user data dir", LaunchOptions{ExtensionPath: t.TempDir()}, "user data directory is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.normalize()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestExtensionArgs(t *testing.T) {
	assert.Equal(t, []string{
		"--disable-extensions-except=/opt/metamask",
		"--load-extension=/opt/metamask",
	}, ExtensionArgs("/opt/metamask"))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Browser
	cfg.ExtensionPath = "/opt/metamask"
	cfg.SlowMo = 200 * time.Millisecond

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "/opt/metamask", opts.ExtensionPath)
	assert.Equal(t, "user-data", opts.UserDataDir)
	assert.Equal(t, "chrome", opts.Channel)
	assert.False(t, opts.Headless)
	assert.Equal(t, &Viewport{Width: 1680, Height: 1050}, opts.Viewport)
	assert.Equal(t, 200*time.Millisecond, opts.SlowMo)
	assert.Equal(t, 30*time.Second, opts.WorkerTimeout)

	cfg.ViewportWidth = 0
	assert.Nil(t, OptionsFromConfig(cfg).Viewport)
}

func TestLaunchRequiresInitialize(t *testing.T) {
	m := NewManager()

	_, err := m.Launch(LaunchOptions{
		ExtensionPath: t.TempDir(),
		UserDataDir:   filepath.Join(t.TempDir(), "profile"),
	})
	assert.ErrorContains(t, err, "not initialized")
	assert.Equal(t, 0, m.ActiveSessions())
}

func TestLauncherHonoursCancelledContext(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Launcher(LaunchOptions{}).Launch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShutdownWithoutInitialize(t *testing.T) {
	assert.NoError(t, NewManager().Shutdown())
}

func TestIsWebOrigin(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://dex-frontend-qa1.defi.gala.com/", true},
		{"http://localhost:3000", true},
		{"chrome-extension://abc/home.html", false},
		{"about:blank", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, isWebOrigin(tt.url))
		})
	}
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 2500.0, *millis(2500*time.Millisecond))
	assert.Equal(t, 0.5, *millis(500*time.Microsecond))
}
