package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/dexprobe/pkg/config"
)

// Default configuration values
const (
	// DefaultViewportWidth is the default browser viewport width
	DefaultViewportWidth = 1680

	// DefaultViewportHeight is the default browser viewport height
	DefaultViewportHeight = 1050

	// DefaultChannel is the browser distribution extensions are loaded into
	DefaultChannel = "chrome"

	// DefaultWorkerTimeout bounds the wait for the extension's service worker
	DefaultWorkerTimeout = 30 * time.Second

	// DefaultSnapshotLength is the default maximum snapshot length in characters
	DefaultSnapshotLength = 20000

	// workerPollInterval is how often ServiceWorkerURL re-checks the context
	workerPollInterval = 250 * time.Millisecond
)

// LaunchOptions configures a persistent browser session.
type LaunchOptions struct {
	// ExtensionPath is the unpacked extension directory; it must exist
	ExtensionPath string

	// UserDataDir is the profile directory, created if missing
	UserDataDir string

	// Channel selects the browser distribution
	Channel string

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// SlowMo delays every operation, useful when watching a run
	SlowMo time.Duration

	// DefaultTimeout applies to every page operation without its own timeout
	DefaultTimeout time.Duration

	// WorkerTimeout bounds ServiceWorkerURL when none is passed
	WorkerTimeout time.Duration

	// VideoDir records page videos into this directory when set
	VideoDir string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// OptionsFromConfig maps the browser section of the suite configuration.
func OptionsFromConfig(cfg config.BrowserConfig) LaunchOptions {
	opts := LaunchOptions{
		ExtensionPath:  cfg.ExtensionPath,
		UserDataDir:    cfg.UserDataDir,
		Channel:        cfg.Channel,
		Headless:       cfg.Headless,
		SlowMo:         cfg.SlowMo,
		DefaultTimeout: cfg.DefaultTimeout,
		WorkerTimeout:  cfg.WorkerTimeout,
		VideoDir:       cfg.VideoDir,
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts.Viewport = &Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
	}
	return opts
}

// normalize fills defaults and resolves paths. It fails if the extension
// directory does not exist.
func (o LaunchOptions) normalize() (LaunchOptions, error) {
	if o.ExtensionPath == "" {
		return o, fmt.Errorf("extension path is required")
	}

	extPath, err := filepath.Abs(o.ExtensionPath)
	if err != nil {
		return o, fmt.Errorf("failed to resolve extension path: %w", err)
	}
	info, err := os.Stat(extPath)
	if err != nil {
		return o, fmt.Errorf("extension not found at %s: %w", extPath, err)
	}
	if !info.IsDir() {
		return o, fmt.Errorf("extension path %s is not a directory", extPath)
	}
	o.ExtensionPath = extPath

	if o.UserDataDir == "" {
		return o, fmt.Errorf("user data directory is required")
	}
	dataDir, err := filepath.Abs(o.UserDataDir)
	if err != nil {
		return o, fmt.Errorf("failed to resolve user data directory: %w", err)
	}
	o.UserDataDir = dataDir

	if o.Channel == "" {
		o.Channel = DefaultChannel
	}
	if o.Viewport == nil {
		o.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if o.WorkerTimeout <= 0 {
		o.WorkerTimeout = DefaultWorkerTimeout
	}
	return o, nil
}

// ExtensionArgs returns the Chromium flags that load exactly one unpacked
// extension.
func ExtensionArgs(extensionPath string) []string {
	return []string{
		"--disable-extensions-except=" + extensionPath,
		"--load-extension=" + extensionPath,
	}
}
