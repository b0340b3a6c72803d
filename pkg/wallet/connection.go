package wallet

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/retry"
)

// NetworkButton opens MetaMask's network picker.
var NetworkButton = driver.Button("network|chain|ethereum").FirstMatch()

// VerifyConnection implements Wallet. It opens the profile dropdown, returns
// the first non-empty address among AddressSelectors and closes the dropdown.
func (m *MetaMask) VerifyConnection(ctx context.Context, page driver.Page) (string, error) {
	log := m.opts.Logger
	log.Infof("Verifying wallet connection")

	dropdown := page.Locate(driver.CSS(m.opts.ProfileSelector))
	if err := dropdown.WaitVisible(m.opts.Timeout); err != nil {
		log.Errorf("Failed to verify wallet connection: %v", err)
		return "", fmt.Errorf("profile dropdown not visible: %w", err)
	}
	if err := dropdown.Click(); err != nil {
		return "", fmt.Errorf("open profile dropdown: %w", err)
	}

	for _, sel := range m.opts.AddressSelectors {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		el := page.Locate(driver.CSS(sel).FirstMatch())
		count, err := el.Count()
		if err != nil || count == 0 {
			continue
		}
		text, err := el.TextContent()
		if err != nil {
			log.Debugf("Read %s failed: %v", sel, err)
			continue
		}
		if address := strings.TrimSpace(text); address != "" {
			log.Infof("Wallet connected: %s", address)
			if err := dropdown.Click(); err != nil {
				log.Warnf("Failed to close profile dropdown: %v", err)
			}
			return address, nil
		}
	}

	err := &AddressNotFoundError{Selectors: append([]string(nil), m.opts.AddressSelectors...)}
	log.Errorf("Failed to verify wallet connection: %v", err)
	return "", err
}

// HandlePopup implements PopupHandler. It returns an already open popup or
// waits one event timeout for a new one.
func (m *MetaMask) HandlePopup(ctx context.Context) (driver.Page, error) {
	m.opts.Logger.Infof("Waiting for MetaMask popup")
	return m.popups.Acquire(ctx, nil)
}

// HandleAllPopups implements PopupHandler. Each round brings every popup to
// front, unlocks, confirms and closes it; rounds stop once none are left.
// Per-popup failures are logged and skipped.
func (m *MetaMask) HandleAllPopups(ctx context.Context) (int, error) {
	log := m.opts.Logger
	handled := 0

	rounds := 0
	fn := func(ctx context.Context, round int) (bool, error) {
		rounds = round
		popups := m.popups.Candidates()
		if len(popups) == 0 {
			return true, nil
		}
		for _, p := range popups {
			if err := m.settle(ctx, p); err != nil {
				log.Debugf("Popup %s not handled: %v", p.URL(), err)
				continue
			}
			handled++
		}
		return false, nil
	}

	_, err := retry.Do(ctx, m.opts.Sweep, fn)
	if err := ctx.Err(); err != nil {
		return handled, err
	}
	if err != nil {
		log.Debugf("Popups still open after %d rounds", rounds)
	}
	return handled, nil
}

func (m *MetaMask) settle(ctx context.Context, p driver.Page) error {
	if err := p.BringToFront(); err != nil {
		return err
	}
	if err := m.Unlock(ctx, p); err != nil {
		return err
	}
	if err := m.Confirm(ctx, p); err != nil {
		return err
	}
	if p.IsClosed() {
		return nil
	}
	return p.Close()
}

// SwitchNetwork implements NetworkSwitcher.
func (m *MetaMask) SwitchNetwork(ctx context.Context, network string) error {
	log := m.opts.Logger
	log.Infof("Switching to %s network", network)

	err := func() error {
		p, err := m.HandlePopup(ctx)
		if err != nil {
			return err
		}
		if err := m.Unlock(ctx, p); err != nil {
			return err
		}
		if err := p.Locate(NetworkButton).Click(); err != nil {
			return fmt.Errorf("open network picker: %w", err)
		}
		option := driver.Button(regexp.QuoteMeta(network)).FirstMatch()
		if err := p.Locate(option).Click(); err != nil {
			return fmt.Errorf("select network %s: %w", network, err)
		}
		return nil
	}()
	if err != nil {
		log.Errorf("Failed to switch to %s network: %v", network, err)
		return err
	}

	log.Infof("Switched to %s network", network)
	return nil
}
