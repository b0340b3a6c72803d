package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/popup"
	"github.com/entrhq/dexprobe/pkg/retry"
)

// KindMetaMask is the registry name of the MetaMask wallet.
const KindMetaMask = "metamask"

// MetaMask controls
var (
	PasswordInput = driver.Label("Password")
	UnlockButton  = driver.Button("unlock").FirstMatch()
	ConfirmButton = driver.Button("confirm|sign|approve|connect|ok|next").FirstMatch()
)

func init() {
	Register(KindMetaMask, func(session driver.Session, opts Options) Wallet {
		return NewMetaMask(session, opts)
	})
}

// UnlockState is a step of the unlock state machine.
type UnlockState int

const (
	// Locked means the lock screen was detected
	Locked UnlockState = iota

	// Unlocking means password submission is being attempted
	Unlocking

	// Unlocked means the password was submitted or no lock screen was shown
	Unlocked

	// Failed means every attempt ran without a submission
	Failed
)

func (s UnlockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("UnlockState(%d)", int(s))
	}
}

// MetaMask drives the MetaMask extension.
type MetaMask struct {
	session driver.Session
	opts    Options
	popups  *popup.Acquirer
}

// NewMetaMask creates a MetaMask wallet for session.
func NewMetaMask(session driver.Session, opts Options) *MetaMask {
	opts = opts.withDefaults()
	return &MetaMask{
		session: session,
		opts:    opts,
		popups:  popup.New(session, opts.Popup),
	}
}

// Options returns a copy of the wallet's options.
func (m *MetaMask) Options() Options {
	opts := m.opts
	opts.Mnemonic = append([]string(nil), m.opts.Mnemonic...)
	opts.AddressSelectors = append([]string(nil), m.opts.AddressSelectors...)
	return opts
}

// Unlock implements Wallet.
func (m *MetaMask) Unlock(ctx context.Context, page driver.Page) error {
	_, err := m.unlock(ctx, page)
	return err
}

// unlock runs the state machine and returns the state it ended in.
func (m *MetaMask) unlock(ctx context.Context, page driver.Page) (UnlockState, error) {
	log := m.opts.Logger
	log.Infof("Unlocking MetaMask")

	password := page.Locate(PasswordInput)
	button := page.Locate(UnlockButton)

	if !password.IsVisible(m.opts.ProbeTimeout) || !button.IsVisible(m.opts.ProbeTimeout) {
		log.Infof("Unlock screen not visible or already unlocked")
		return Unlocked, nil
	}

	log.Debugf("State %s -> %s", Locked, Unlocking)

	var lastErr error
	attempts, err := retry.Do(ctx, m.opts.Retry, func(ctx context.Context, attempt int) (bool, error) {
		if err := m.unlockAttempt(page, password, button); err != nil {
			lastErr = err
			log.Warnf("[Attempt %d] Error during wallet unlock: %v", attempt, err)
			return false, nil
		}
		log.Infof("Wallet unlocked via password (attempt %d)", attempt)
		return true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) && lastErr != nil {
			err = fmt.Errorf("%w: %v", err, lastErr)
		}
		log.Debugf("State %s -> %s", Unlocking, Failed)
		return Failed, &UnlockError{Attempts: attempts, Cause: err}
	}

	log.Debugf("State %s -> %s", Unlocking, Unlocked)
	return Unlocked, nil
}

var errControlsHidden = errors.New("unlock controls not visible")

func (m *MetaMask) unlockAttempt(page driver.Page, password, button driver.Locator) error {
	if err := page.BringToFront(); err != nil {
		return fmt.Errorf("bring to front: %w", err)
	}
	if err := page.WaitForLoadState(driver.LoadStateDOMContentLoaded); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}
	if !password.IsVisible(m.opts.RecheckTimeout) || !button.IsVisible(m.opts.RecheckTimeout) {
		return errControlsHidden
	}
	if err := password.Fill(m.opts.Password); err != nil {
		return err
	}
	if err := button.Click(); err != nil {
		return err
	}

	if m.opts.VerifyUnlock && !page.IsClosed() {
		if err := button.WaitHidden(m.opts.ProbeTimeout); err != nil {
			return fmt.Errorf("lock screen still shown after submitting password: %w", err)
		}
	}
	return nil
}

// Confirm implements Wallet.
func (m *MetaMask) Confirm(ctx context.Context, page driver.Page) error {
	log := m.opts.Logger
	log.Infof("Waiting for transaction confirmation")

	button := page.Locate(ConfirmButton)
	if !button.IsVisible(m.opts.ProbeTimeout) {
		log.Infof("No confirm/sign/connect/approve/ok/next button visible (may already be confirmed)")
		return nil
	}

	var lastErr error
	attempts, err := retry.Do(ctx, m.opts.Retry, func(ctx context.Context, attempt int) (bool, error) {
		if err := m.confirmAttempt(page, button); err != nil {
			lastErr = err
			log.Warnf("[Attempt %d] Error during confirm transaction: %v", attempt, err)
			return false, nil
		}
		log.Infof("Transaction confirmed (attempt %d)", attempt)
		return true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) && lastErr != nil {
			err = fmt.Errorf("%w: %v", err, lastErr)
		}
		return &ConfirmError{Attempts: attempts, Cause: err}
	}
	return nil
}

var errConfirmHidden = errors.New("confirm button not visible")

func (m *MetaMask) confirmAttempt(page driver.Page, button driver.Locator) error {
	if err := page.BringToFront(); err != nil {
		return fmt.Errorf("bring to front: %w", err)
	}
	if err := page.WaitForLoadState(driver.LoadStateDOMContentLoaded); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}
	if !button.IsVisible(m.opts.RecheckTimeout) {
		return errConfirmHidden
	}
	return button.Click()
}
