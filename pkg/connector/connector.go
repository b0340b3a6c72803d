// Package connector connects a wallet extension to a dApp.
//
// A Connector owns one browser session. Launch starts it and resolves the
// extension id; Connect prepares the wallet, opens the dApp, drives the
// connect flow through the wallet popup and returns the dApp page together
// with the connected address.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/dexprobe/pkg/config"
	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/extension"
	"github.com/entrhq/dexprobe/pkg/logging"
	"github.com/entrhq/dexprobe/pkg/popup"
	"github.com/entrhq/dexprobe/pkg/wallet"
)

// ErrNotLaunched is returned by operations that need a launched session.
var ErrNotLaunched = errors.New("call launch before connect")

// ErrAlreadyLaunched is returned when Launch is called twice.
var ErrAlreadyLaunched = errors.New("connector already launched")

// Launcher starts a browser session with the wallet extension loaded.
type Launcher interface {
	Launch(ctx context.Context) (driver.Session, error)
}

// Default option values
const (
	DefaultSettleDelay         = time.Second
	DefaultConnectTimeout      = 10 * time.Second
	DefaultConnectedTimeout    = 30 * time.Second
	DefaultConfirmProbeTimeout = 10 * time.Second
	DefaultNavigationTimeout   = 60 * time.Second
	DefaultWorkerTimeout       = 30 * time.Second
	DefaultConnectButton       = "connect wallet"
	DefaultWalletOption        = "metamask"
)

// Options configures a Connector.
type Options struct {
	// DAppURL is the application under test
	DAppURL string

	// WalletKind selects a registered wallet; ignored when Factory is set
	WalletKind string
	Factory    wallet.Factory
	Wallet     wallet.Options

	// SettleDelay is waited after the dApp reaches network idle
	SettleDelay time.Duration

	// ConnectTimeout bounds the check for the connect button
	ConnectTimeout time.Duration

	// ConnectedTimeout bounds the check for the profile dropdown
	ConnectedTimeout time.Duration

	// ConfirmProbeTimeout bounds the check for a confirm button on the popup
	ConfirmProbeTimeout time.Duration

	NavigationTimeout time.Duration
	WorkerTimeout     time.Duration

	// ConnectButton and WalletOption are case-insensitive button name patterns
	ConnectButton string
	WalletOption  string

	// ConfirmProbe is the control whose presence means the popup needs confirming
	ConfirmProbe driver.Selector

	Logger *logging.Logger
}

// OptionsFromConfig maps the suite configuration onto connector options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	walletOpts, err := wallet.OptionsFromConfig(cfg)
	if err != nil {
		return Options{}, err
	}
	return Options{
		DAppURL:             cfg.DApp.URL,
		WalletKind:          cfg.Wallet.Kind,
		Wallet:              walletOpts,
		SettleDelay:         cfg.DApp.SettleDelay,
		ConnectTimeout:      cfg.DApp.ConnectTimeout,
		ConnectedTimeout:    cfg.DApp.ConnectedTimeout,
		ConfirmProbeTimeout: cfg.DApp.ConfirmProbeTimeout,
		NavigationTimeout:   cfg.Browser.DefaultTimeout,
		WorkerTimeout:       cfg.Browser.WorkerTimeout,
		ConnectButton:       cfg.DApp.ConnectButton,
		WalletOption:        cfg.DApp.WalletOption,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.WalletKind == "" {
		o.WalletKind = wallet.KindMetaMask
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ConnectedTimeout <= 0 {
		o.ConnectedTimeout = DefaultConnectedTimeout
	}
	if o.ConfirmProbeTimeout <= 0 {
		o.ConfirmProbeTimeout = DefaultConfirmProbeTimeout
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = DefaultNavigationTimeout
	}
	if o.WorkerTimeout <= 0 {
		o.WorkerTimeout = DefaultWorkerTimeout
	}
	if o.ConnectButton == "" {
		o.ConnectButton = DefaultConnectButton
	}
	if o.WalletOption == "" {
		o.WalletOption = DefaultWalletOption
	}
	if o.ConfirmProbe == (driver.Selector{}) {
		o.ConfirmProbe = wallet.ConfirmButton
	}
	if o.Wallet.ProfileSelector == "" {
		o.Wallet.ProfileSelector = wallet.DefaultProfileSelector
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Wallet.Logger == nil {
		o.Wallet.Logger = o.Logger.With("wallet")
	}
	if o.Wallet.Popup.Logger == nil {
		o.Wallet.Popup.Logger = o.Logger.With("popup")
	}
	return o
}

// Connection is the result of a successful Connect.
type Connection struct {
	// Page is the dApp page, left in the foreground
	Page driver.Page

	// Address is the wallet address shown by the dApp
	Address string

	ExtensionID string
}

// Connector drives the wallet connection flow over one browser session.
type Connector struct {
	launcher Launcher
	factory  wallet.Factory
	opts     Options
	logger   *logging.Logger

	mu          sync.Mutex
	session     driver.Session
	extensionID string
	classifier  *extension.Classifier
	wallet      wallet.Wallet
	popups      *popup.Acquirer
	closed      bool
}

// New creates a connector. The wallet implementation is resolved here so an
// unknown kind fails before a browser is started.
func New(launcher Launcher, opts Options) (*Connector, error) {
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	opts = opts.withDefaults()
	if opts.DAppURL == "" {
		return nil, errors.New("dApp URL is required")
	}

	factory := opts.Factory
	if factory == nil {
		f, err := wallet.Lookup(opts.WalletKind)
		if err != nil {
			return nil, err
		}
		factory = f
	}

	classifier := opts.Wallet.Popup.Classifier
	if classifier == nil {
		classifier = extension.MustClassifier()
	}

	return &Connector{
		launcher:   launcher,
		factory:    factory,
		opts:       opts,
		logger:     opts.Logger,
		classifier: classifier,
	}, nil
}

// Launch starts the browser session, resolves the extension id from its
// service worker and builds the wallet.
func (c *Connector) Launch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return ErrAlreadyLaunched
	}

	c.logger.Infof("Launching browser session")
	session, err := c.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("launch browser session: %w", err)
	}

	id, err := resolveExtensionID(session, c.opts.WorkerTimeout)
	if err != nil {
		c.logger.Errorf("Failed to resolve extension id: %v", err)
		if cerr := session.Close(); cerr != nil {
			c.logger.Warnf("Failed to close session: %v", cerr)
		}
		return err
	}

	c.session = session
	c.extensionID = id
	c.wallet = c.factory(session, c.opts.Wallet)
	c.popups = popup.New(session, c.opts.Wallet.Popup)
	c.closed = false

	c.logger.Infof("Extension id: %s", id)
	return nil
}

func resolveExtensionID(session driver.Session, timeout time.Duration) (string, error) {
	workerURL, err := session.ServiceWorkerURL(timeout)
	if err != nil {
		return "", &extension.ExtensionIDError{Cause: err}
	}
	return extension.ResolveID(workerURL)
}

// ExtensionID returns the id resolved by Launch.
func (c *Connector) ExtensionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extensionID
}

// Session returns the launched session, or nil.
func (c *Connector) Session() driver.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Wallet returns the wallet built by Launch, or nil.
func (c *Connector) Wallet() wallet.Wallet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallet
}

// Popups returns the popup acquirer bound to the session, or nil.
func (c *Connector) Popups() *popup.Acquirer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popups
}

// state returns the launched session and wallet or ErrNotLaunched.
func (c *Connector) state() (driver.Session, wallet.Wallet, *popup.Acquirer, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.extensionID == "" || c.wallet == nil {
		return nil, nil, nil, "", ErrNotLaunched
	}
	return c.session, c.wallet, c.popups, c.extensionID, nil
}

// Reset clears cookies, permissions, storage and cache of the session.
func (c *Connector) Reset() error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	c.logger.Infof("Resetting browser context")
	return session.Reset()
}

// Close closes the session. Later calls are no-ops.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.closed {
		return nil
	}
	c.closed = true
	session := c.session
	c.session = nil
	c.wallet = nil
	c.popups = nil
	c.extensionID = ""

	c.logger.Infof("Closing browser session")
	return session.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
