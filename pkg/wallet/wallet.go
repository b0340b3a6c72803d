// Package wallet drives a browser wallet extension through its UI.
//
// A Wallet covers the capabilities the connection flow needs: one-time setup,
// unlocking, confirming a request and reading the connected address from the
// dApp. Implementations register a Factory under a kind name and are chosen
// when the connector is built.
package wallet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/dexprobe/pkg/config"
	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/logging"
	"github.com/entrhq/dexprobe/pkg/popup"
	"github.com/entrhq/dexprobe/pkg/retry"
)

// Wallet is a wallet extension that can be driven through its pages.
type Wallet interface {
	// Setup imports the test wallet on first run; it is a no-op once the
	// profile is configured.
	Setup(ctx context.Context) error

	// Unlock submits the password if page shows the lock screen. A page
	// without one is left alone.
	Unlock(ctx context.Context, page driver.Page) error

	// Confirm approves the pending request on page, if any.
	Confirm(ctx context.Context, page driver.Page) error

	// VerifyConnection reads the connected address from the dApp page.
	VerifyConnection(ctx context.Context, page driver.Page) (string, error)
}

// PopupHandler is implemented by wallets that can find and settle their own
// popups.
type PopupHandler interface {
	// HandlePopup returns the open popup or waits for one.
	HandlePopup(ctx context.Context) (driver.Page, error)

	// HandleAllPopups unlocks, confirms and closes popups until none are left
	// and reports how many were handled.
	HandleAllPopups(ctx context.Context) (int, error)
}

// NetworkSwitcher is implemented by wallets that can change the active network.
type NetworkSwitcher interface {
	SwitchNetwork(ctx context.Context, network string) error
}

// Factory builds a wallet bound to a launched session.
type Factory func(session driver.Session, opts Options) Wallet

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a wallet kind available to New. It panics on duplicates.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	kind = strings.ToLower(kind)
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("wallet kind %q already registered", kind))
	}
	registry[kind] = factory
}

// Kinds lists the registered wallet kinds.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Lookup returns the factory registered for kind.
func Lookup(kind string) (Factory, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(kind)]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown wallet kind %q (available: %s)", kind, strings.Join(Kinds(), ", "))
	}
	return factory, nil
}

// New builds a wallet of the given kind.
func New(kind string, session driver.Session, opts Options) (Wallet, error) {
	factory, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	return factory(session, opts), nil
}

// Options is the wallet configuration. A wallet copies it on construction and
// never changes it afterwards.
type Options struct {
	Password string
	Mnemonic []string
	Network  string

	// Timeout bounds long waits: the profile dropdown and the onboarding address
	Timeout time.Duration

	// Retry bounds the unlock and confirm loops
	Retry retry.Policy

	// ProbeTimeout bounds the initial check for the lock screen or confirm button
	ProbeTimeout time.Duration

	// RecheckTimeout bounds the visibility checks inside each attempt
	RecheckTimeout time.Duration

	// VerifyUnlock waits for the lock screen to go away before an unlock
	// attempt counts as successful
	VerifyUnlock bool

	// OnboardingTimeout bounds the wait for the extension page during setup
	OnboardingTimeout time.Duration

	// Sweep bounds HandleAllPopups rounds
	Sweep retry.Policy

	// ProfileSelector opens the dApp's account dropdown
	ProfileSelector string

	// AddressSelectors are tried in order for the connected address
	AddressSelectors []string

	// Popup configures popup acquisition for HandlePopup and SwitchNetwork
	Popup popup.Options

	Logger *logging.Logger
}

// Default option values
const (
	DefaultPassword          = "Test@123"
	DefaultNetwork           = "ethereum"
	DefaultTimeout           = 60 * time.Second
	DefaultProbeTimeout      = 2 * time.Second
	DefaultRecheckTimeout    = time.Second
	DefaultOnboardingTimeout = 10 * time.Second
	DefaultProfileSelector   = "#dropdown-basic"
)

// DefaultAddressSelectors are tried in order by VerifyConnection.
var DefaultAddressSelectors = []string{
	".copyaddress",
	`[data-testid="wallet-address"]`,
	".wallet-address",
	".address",
	`div[class*="address"]`,
}

// DefaultOptions returns the options of the shared test wallet.
func DefaultOptions() Options {
	return Options{
		Password:          DefaultPassword,
		Mnemonic:          append([]string(nil), config.DefaultMnemonic...),
		Network:           DefaultNetwork,
		Timeout:           DefaultTimeout,
		Retry:             retry.Fixed(5, time.Second),
		ProbeTimeout:      DefaultProbeTimeout,
		RecheckTimeout:    DefaultRecheckTimeout,
		OnboardingTimeout: DefaultOnboardingTimeout,
		Sweep:             retry.Fixed(5, 2*time.Second),
		ProfileSelector:   DefaultProfileSelector,
		AddressSelectors:  append([]string(nil), DefaultAddressSelectors...),
		Popup:             popup.DefaultOptions(),
	}
}

// OptionsFromConfig maps the suite configuration onto wallet options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	popupOpts, err := popup.OptionsFromConfig(cfg.Popup)
	if err != nil {
		return Options{}, err
	}

	opts := DefaultOptions()
	opts.Password = cfg.Wallet.Password
	opts.Mnemonic = append([]string(nil), cfg.Wallet.Mnemonic...)
	opts.Network = cfg.Wallet.Network
	opts.Timeout = cfg.Wallet.Timeout
	opts.VerifyUnlock = cfg.Wallet.VerifyUnlock
	opts.Retry = retry.Policy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Factor:   cfg.Retry.Factor,
	}
	opts.ProfileSelector = cfg.DApp.ProfileSelector
	opts.AddressSelectors = append([]string(nil), cfg.DApp.AddressSelectors...)
	opts.Popup = popupOpts
	return opts, nil
}

// withDefaults fills zero values and copies slices so the caller's options
// can no longer affect the wallet.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Password == "" {
		o.Password = d.Password
	}
	if len(o.Mnemonic) == 0 {
		o.Mnemonic = d.Mnemonic
	} else {
		o.Mnemonic = append([]string(nil), o.Mnemonic...)
	}
	if o.Network == "" {
		o.Network = d.Network
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Retry.Attempts < 1 {
		o.Retry = d.Retry
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = d.ProbeTimeout
	}
	if o.RecheckTimeout <= 0 {
		o.RecheckTimeout = d.RecheckTimeout
	}
	if o.OnboardingTimeout <= 0 {
		o.OnboardingTimeout = d.OnboardingTimeout
	}
	if o.Sweep.Attempts < 1 {
		o.Sweep = d.Sweep
	}
	if o.ProfileSelector == "" {
		o.ProfileSelector = d.ProfileSelector
	}
	if len(o.AddressSelectors) == 0 {
		o.AddressSelectors = d.AddressSelectors
	} else {
		o.AddressSelectors = append([]string(nil), o.AddressSelectors...)
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Popup.Logger == nil {
		o.Popup.Logger = o.Logger.With("popup")
	}
	return o
}

// UnlockError reports that the lock screen was shown but the password could
// not be submitted.
type UnlockError struct {
	Attempts int
	Cause    error
}

func (e *UnlockError) Error() string {
	return fmt.Sprintf("failed to unlock wallet after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *UnlockError) Unwrap() error {
	return e.Cause
}

// ConfirmError reports that a confirm button was shown but could not be
// clicked.
type ConfirmError struct {
	Attempts int
	Cause    error
}

func (e *ConfirmError) Error() string {
	return fmt.Sprintf("failed to confirm transaction after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ConfirmError) Unwrap() error {
	return e.Cause
}

// AddressNotFoundError reports that none of the address selectors yielded
// text.
type AddressNotFoundError struct {
	Selectors []string
}

func (e *AddressNotFoundError) Error() string {
	return fmt.Sprintf("wallet address not found (tried %s)", strings.Join(e.Selectors, ", "))
}
