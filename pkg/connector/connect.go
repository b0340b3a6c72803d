package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/extension"
	"github.com/entrhq/dexprobe/pkg/popup"
	"github.com/entrhq/dexprobe/pkg/wallet"
)

// ErrNoConnectControl is returned when the dApp shows neither a connect
// button nor the profile dropdown.
var ErrNoConnectControl = errors.New("dApp shows neither a connect button nor a connected profile")

// Connect prepares the wallet, opens the dApp and connects them. Every step
// fails fast except the cleanup of stray extension pages.
func (c *Connector) Connect(ctx context.Context) (*Connection, error) {
	session, w, popups, id, err := c.state()
	if err != nil {
		return nil, err
	}
	log := c.logger

	if err := c.openHome(session, id); err != nil {
		return nil, err
	}

	if err := w.Setup(ctx); err != nil {
		return nil, err
	}

	dapp, err := c.openDApp(ctx, session)
	if err != nil {
		return nil, err
	}

	var walletPopup driver.Page
	connect := dapp.Locate(driver.Button(c.opts.ConnectButton).FirstMatch())
	profile := dapp.Locate(driver.CSS(c.opts.Wallet.ProfileSelector))

	switch {
	case connect.IsVisible(c.opts.ConnectTimeout):
		log.Infof("Connect button visible, starting connect flow")
		walletPopup, err = c.requestConnection(ctx, dapp, connect, popups)
		if err != nil {
			return nil, err
		}
		if err := c.approve(ctx, w, walletPopup); err != nil {
			return nil, err
		}

	case profile.IsVisible(c.opts.ConnectedTimeout):
		log.Infof("Wallet already connected, skipping connect flow")
		if err := w.Unlock(ctx, dapp); err != nil {
			return nil, err
		}
		c.front(dapp)
		c.cleanup(ctx, session, w, dapp)

	default:
		return nil, ErrNoConnectControl
	}

	c.cleanup(ctx, session, w, dapp)

	c.front(dapp)
	address, err := w.VerifyConnection(ctx, dapp)
	if err != nil {
		return nil, err
	}

	if walletPopup != nil && !walletPopup.IsClosed() {
		if err := walletPopup.Close(); err != nil {
			log.Debugf("Failed to close popup: %v", err)
		}
	}

	log.Infof("Connected %s to %s", address, c.opts.DAppURL)
	return &Connection{Page: dapp, Address: address, ExtensionID: id}, nil
}

func (c *Connector) openHome(session driver.Session, id string) error {
	home, err := session.NewPage()
	if err != nil {
		return fmt.Errorf("open wallet home page: %w", err)
	}
	if err := home.Goto(extension.HomeURL(id), driver.LoadStateDOMContentLoaded, c.opts.NavigationTimeout); err != nil {
		return fmt.Errorf("open wallet home page: %w", err)
	}
	return nil
}

func (c *Connector) openDApp(ctx context.Context, session driver.Session) (driver.Page, error) {
	c.logger.Infof("Opening %s", c.opts.DAppURL)

	dapp, err := session.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open dApp page: %w", err)
	}
	if err := dapp.BringToFront(); err != nil {
		c.logger.Debugf("Bring dApp to front failed: %v", err)
	}
	if err := dapp.Goto(c.opts.DAppURL, driver.LoadStateNetworkIdle, c.opts.NavigationTimeout); err != nil {
		return nil, fmt.Errorf("open dApp page: %w", err)
	}
	// Client-side hydration may still swap the header after network idle
	if err := sleep(ctx, c.opts.SettleDelay); err != nil {
		return nil, err
	}
	return dapp, nil
}

// requestConnection clicks connect and then the wallet option, which opens the
// wallet popup.
func (c *Connector) requestConnection(ctx context.Context, dapp driver.Page, connect driver.Locator, popups *popup.Acquirer) (driver.Page, error) {
	if err := connect.Click(); err != nil {
		return nil, fmt.Errorf("click connect button: %w", err)
	}

	option := dapp.Locate(driver.Button(c.opts.WalletOption).FirstMatch())
	trigger := func() error {
		if err := option.WaitVisible(c.opts.ConnectTimeout); err != nil {
			return fmt.Errorf("wallet option %q not visible: %w", c.opts.WalletOption, err)
		}
		if err := option.Click(); err != nil {
			return fmt.Errorf("click wallet option %q: %w", c.opts.WalletOption, err)
		}
		c.logger.Infof("Triggered dApp connect wallet flow")
		return nil
	}

	return popups.Acquire(ctx, trigger)
}

// approve unlocks the popup and confirms the request when a confirm control
// shows up.
func (c *Connector) approve(ctx context.Context, w wallet.Wallet, p driver.Page) error {
	if p.IsClosed() {
		return nil
	}
	if err := w.Unlock(ctx, p); err != nil {
		return err
	}
	if p.IsClosed() {
		return nil
	}
	if !p.Locate(c.opts.ConfirmProbe).IsVisible(c.opts.ConfirmProbeTimeout) {
		c.logger.Infof("No confirm needed, only unlock performed")
		return nil
	}
	return w.Confirm(ctx, p)
}

// cleanup settles and closes every extension page except the home page and
// keep. Failures are logged and swallowed.
func (c *Connector) cleanup(ctx context.Context, session driver.Session, w wallet.Wallet, keep driver.Page) {
	for _, p := range session.Pages() {
		if p.IsClosed() || p == keep || !c.classifier.IsPopup(p.URL()) {
			continue
		}
		url := p.URL()
		if err := w.Unlock(ctx, p); err != nil {
			c.logger.Warnf("Cleanup unlock of %s failed: %v", url, err)
		}
		if err := w.Confirm(ctx, p); err != nil {
			c.logger.Warnf("Cleanup confirm of %s failed: %v", url, err)
		}
		if p.IsClosed() {
			continue
		}
		if err := p.Close(); err != nil {
			c.logger.Warnf("Failed to close %s: %v", url, err)
		}
	}
	c.front(keep)
}

// Cleanup closes stray wallet popups and brings page to the front.
func (c *Connector) Cleanup(ctx context.Context, page driver.Page) error {
	session, w, _, _, err := c.state()
	if err != nil {
		return err
	}
	c.cleanup(ctx, session, w, page)
	return nil
}

func (c *Connector) front(p driver.Page) {
	if p.IsClosed() {
		return
	}
	if err := p.BringToFront(); err != nil {
		c.logger.Debugf("Bring %s to front failed: %v", p.URL(), err)
	}
}
