package browser

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/logging"
)

// Manager owns the Playwright runtime and every persistent session launched
// from it.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	playwright  *playwright.Playwright
	initialized bool
	skipInstall bool
	output      io.Writer
	logger      *logging.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSkipInstall skips downloading the driver and browsers on Initialize.
func WithSkipInstall(skip bool) ManagerOption {
	return func(m *Manager) {
		m.skipInstall = skip
	}
}

// WithOutput sends the Playwright driver's own output to w. A nil writer
// keeps the output discarded.
func WithOutput(w io.Writer) ManagerOption {
	return func(m *Manager) {
		if w != nil {
			m.output = w
		}
	}
}

// WithLogger sets the logger for launch and reset progress.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a manager. Initialize must be called before Launch.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		output:   io.Discard,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize installs (unless skipped) and starts the Playwright driver.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  m.output,
		Stderr:  m.output,
	}

	if !m.skipInstall {
		m.logger.Infof("Installing Playwright driver and browsers")
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	return nil
}

// Launch starts a persistent context bound to opts.UserDataDir with the wallet
// extension loaded. A profile directory can back only one live session.
func (m *Manager) Launch(opts LaunchOptions) (*Session, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("browser manager not initialized")
	}

	if _, exists := m.sessions[opts.UserDataDir]; exists {
		return nil, fmt.Errorf("profile %q already has a running session", opts.UserDataDir)
	}

	if err := os.MkdirAll(opts.UserDataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create user data directory: %w", err)
	}

	m.logger.Infof("Launching %s with extension %s", opts.Channel, opts.ExtensionPath)
	m.logger.Infof("Using user data directory %s", opts.UserDataDir)

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Channel:  playwright.String(opts.Channel),
		Headless: playwright.Bool(opts.Headless),
		Args:     ExtensionArgs(opts.ExtensionPath),
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = millis(opts.SlowMo)
	}
	if opts.VideoDir != "" {
		launchOpts.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
	}

	bctx, err := m.playwright.Chromium.LaunchPersistentContext(opts.UserDataDir, launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}

	if opts.DefaultTimeout > 0 {
		bctx.SetDefaultTimeout(*millis(opts.DefaultTimeout))
	}

	session := newSession(bctx, opts, m.logger)
	session.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, opts.UserDataDir)
	}
	m.sessions[opts.UserDataDir] = session
	return session, nil
}

// Launcher binds launch options so a session can be started on demand.
func (m *Manager) Launcher(opts LaunchOptions) *Launcher {
	return &Launcher{manager: m, opts: opts}
}

// Launcher starts sessions from fixed options.
type Launcher struct {
	manager *Manager
	opts    LaunchOptions
}

// Launch initializes the runtime if needed and starts a session.
func (l *Launcher) Launch(ctx context.Context) (driver.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.manager.Initialize(); err != nil {
		return nil, err
	}
	return l.manager.Launch(l.opts)
}

// ActiveSessions returns the number of running sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes all sessions and stops Playwright.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	// Session.Close takes the lock again through onClose
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			m.logger.Warnf("Failed to close session %s: %v", s.ProfileDir(), err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}

	return nil
}
