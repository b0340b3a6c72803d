package suite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/dexprobe/pkg/connector"
	"github.com/entrhq/dexprobe/pkg/dex"
	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/logging"
	"github.com/entrhq/dexprobe/pkg/popup"
	"github.com/entrhq/dexprobe/pkg/wallet"
)

// Fixture is the state shared by every scenario of a run. It is built once by
// Setup and released by Teardown; scenarios receive it by reference.
type Fixture struct {
	Connector *connector.Connector
	Conn      *connector.Connection
	Wallet    wallet.Wallet
	Popups    *popup.Acquirer

	Swap *dex.SwapPage
	Pool *dex.PoolPage

	Expect Expectations
	Logger *logging.Logger
}

// Page returns the connected dApp page.
func (f *Fixture) Page() driver.Page {
	return f.Conn.Page
}

// Address returns the connected wallet address.
func (f *Fixture) Address() string {
	return f.Conn.Address
}

// FixtureOptions configures Setup.
type FixtureOptions struct {
	Swap dex.SwapOptions

	// PoolSettle is waited around scrolling the pool positions list
	PoolSettle time.Duration

	Expect Expectations
	Logger *logging.Logger
}

// Setup launches the browser, connects the wallet and leaves the dApp page as
// the only open page, in the foreground.
func Setup(ctx context.Context, c *connector.Connector, opts FixtureOptions) (*Fixture, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	if err := c.Launch(ctx); err != nil {
		return nil, fmt.Errorf("suite setup: %w", err)
	}

	conn, err := c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("suite setup: %w", err)
	}
	log.Infof("Connected with address: %s", conn.Address)

	page := conn.Page
	for _, p := range c.Session().Pages() {
		if p == page || p.IsClosed() {
			continue
		}
		if err := p.Close(); err != nil {
			log.Warnf("Failed to close %s: %v", p.URL(), err)
		}
	}
	if err := page.BringToFront(); err != nil {
		return nil, fmt.Errorf("suite setup: bring dApp to front: %w", err)
	}
	for _, state := range []driver.LoadState{driver.LoadStateDOMContentLoaded, driver.LoadStateNetworkIdle} {
		if err := page.WaitForLoadState(state); err != nil {
			log.Debugf("Wait for %s failed: %v", state, err)
		}
	}

	swapOpts := opts.Swap
	if swapOpts.Logger == nil {
		swapOpts.Logger = log.With("dex")
	}

	return &Fixture{
		Connector: c,
		Conn:      conn,
		Wallet:    c.Wallet(),
		Popups:    c.Popups(),
		Swap:      dex.NewSwapPage(page, swapOpts),
		Pool:      dex.NewPoolPage(page, opts.PoolSettle),
		Expect:    opts.Expect.withDefaults(),
		Logger:    log,
	}, nil
}

// Teardown resets the browser context and closes the session. Both steps run
// even when the first fails.
func Teardown(c *connector.Connector, log *logging.Logger) error {
	if log == nil {
		log = logging.Discard()
	}
	resetErr := c.Reset()
	if resetErr != nil {
		log.Warnf("Failed to reset browser context: %v", resetErr)
	}
	closeErr := c.Close()
	if closeErr != nil {
		log.Errorf("Failed to close browser session: %v", closeErr)
	}
	return errors.Join(resetErr, closeErr)
}

// OpenPool navigates to the pool screen unless it is already shown.
func (f *Fixture) OpenPool() error {
	if strings.Contains(f.Page().URL(), "dex/pool") {
		return nil
	}
	return f.Pool.Open()
}
