// Package dex holds page objects for the DEX application under test.
package dex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/logging"
	"github.com/entrhq/dexprobe/pkg/popup"
	"github.com/entrhq/dexprobe/pkg/retry"
	"github.com/entrhq/dexprobe/pkg/wallet"
)

// Swap page controls
var (
	SwapCard             = driver.CSS(".swap_flow")
	SwapCardHeader       = driver.CSS(".swap_flow .card-header")
	SwapCardBody         = driver.CSS(".swap_flow .card-body")
	SwapCardButton       = driver.CSS(".swap_flow button").WithText("Swap").FirstMatch()
	SwitchButton         = driver.CSS(".swap_flow_switch button")
	Header               = driver.CSS(".header")
	Footer               = driver.CSS(".footer")
	TokenSelector        = driver.CSS(".swap_flow .selecttoken_btn.selected")
	AmountInput          = driver.CSS("input#wanted")
	SwapButton           = driver.Button("^swap$").FirstMatch()
	ConfirmSwapButton    = driver.Button("^confirm swap$").FirstMatch()
	SwapConfirmedHeading = driver.Role("heading", "swap confirmed")
	CloseModalButton     = driver.CSS(`button:has-text("Close")`).FirstMatch()
)

// TokenOption selects a token in the token picker by name.
func TokenOption(name string) driver.Selector {
	return driver.CSS(".tokenmodal_list_btn .common_btn_title").WithText(name).FirstMatch()
}

// Default swap values
const (
	DefaultConfirmedTimeout = 30 * time.Second
	DefaultVisibleTimeout   = 5 * time.Second
)

// SwapOptions tunes the swap flow.
type SwapOptions struct {
	// Approval bounds the unlock and confirm rounds on the wallet popup
	Approval retry.Policy

	// ConfirmedTimeout bounds the wait for the "Swap Confirmed" modal
	ConfirmedTimeout time.Duration

	// VisibleTimeout bounds visibility checks of page controls
	VisibleTimeout time.Duration

	Logger *logging.Logger
}

func (o SwapOptions) withDefaults() SwapOptions {
	if o.Approval.Attempts < 1 {
		o.Approval = retry.Fixed(5, time.Second)
	}
	if o.ConfirmedTimeout <= 0 {
		o.ConfirmedTimeout = DefaultConfirmedTimeout
	}
	if o.VisibleTimeout <= 0 {
		o.VisibleTimeout = DefaultVisibleTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

// SwapPage wraps the swap screen of the dApp.
type SwapPage struct {
	page driver.Page
	opts SwapOptions
}

// NewSwapPage creates a page object over page.
func NewSwapPage(page driver.Page, opts SwapOptions) *SwapPage {
	return &SwapPage{page: page, opts: opts.withDefaults()}
}

// Page returns the underlying page.
func (s *SwapPage) Page() driver.Page {
	return s.page
}

// Title returns the document title.
func (s *SwapPage) Title() (string, error) {
	return s.page.Title()
}

// URL returns the current address.
func (s *SwapPage) URL() string {
	return s.page.URL()
}

func (s *SwapPage) text(sel driver.Selector) (string, error) {
	text, err := s.page.Locate(sel).TextContent()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", sel, err)
	}
	return text, nil
}

// CardText returns the text of the whole swap card.
func (s *SwapPage) CardText() (string, error) { return s.text(SwapCard) }

// CardHeaderText returns the swap card header text.
func (s *SwapPage) CardHeaderText() (string, error) { return s.text(SwapCardHeader) }

// CardBodyText returns the swap card body text.
func (s *SwapPage) CardBodyText() (string, error) { return s.text(SwapCardBody) }

// HeaderText returns the site header text.
func (s *SwapPage) HeaderText() (string, error) { return s.text(Header) }

// FooterText returns the site footer text.
func (s *SwapPage) FooterText() (string, error) { return s.text(Footer) }

// SwitchVisible reports whether the token switch button is shown.
func (s *SwapPage) SwitchVisible() bool {
	return s.page.Locate(SwitchButton).IsVisible(s.opts.VisibleTimeout)
}

// SwapButtonVisible reports whether the swap card shows its Swap button.
func (s *SwapPage) SwapButtonVisible() bool {
	return s.page.Locate(SwapCardButton).IsVisible(s.opts.VisibleTimeout)
}

// OpenBuyTokenSelector opens the token picker of the second (buying) slot.
func (s *SwapPage) OpenBuyTokenSelector() error {
	if err := s.page.Locate(TokenSelector).Nth(1).Click(); err != nil {
		return fmt.Errorf("open token selector: %w", err)
	}
	return nil
}

// SelectToken picks name in the open token picker.
func (s *SwapPage) SelectToken(name string) error {
	if err := s.page.Locate(TokenOption(name)).Click(); err != nil {
		return fmt.Errorf("select token %s: %w", name, err)
	}
	return nil
}

// FillAmount enters the wanted amount.
func (s *SwapPage) FillAmount(amount string) error {
	if err := s.page.Locate(AmountInput).Fill(amount); err != nil {
		return fmt.Errorf("fill amount: %w", err)
	}
	return nil
}

// ClickSwitch swaps the selling and buying tokens.
func (s *SwapPage) ClickSwitch() error {
	return s.page.Locate(SwitchButton).Click()
}

// ClickSwap opens the swap review.
func (s *SwapPage) ClickSwap() error {
	return s.page.Locate(SwapButton).Click()
}

// ClickConfirmSwap submits the swap; the wallet opens a popup for it.
func (s *SwapPage) ClickConfirmSwap() error {
	return s.page.Locate(ConfirmSwapButton).Click()
}

// WaitSwapConfirmed waits for the "Swap Confirmed" modal.
func (s *SwapPage) WaitSwapConfirmed() error {
	if err := s.page.Locate(SwapConfirmedHeading).WaitVisible(s.opts.ConfirmedTimeout); err != nil {
		return fmt.Errorf("swap not confirmed: %w", err)
	}
	return nil
}

// CloseConfirmedModal dismisses the "Swap Confirmed" modal.
func (s *SwapPage) CloseConfirmedModal() error {
	return s.page.Locate(CloseModalButton).Click()
}

// SwapRequest describes one swap against the selling token.
type SwapRequest struct {
	// Token is picked as the buying token
	Token string

	Amount string

	// Reverse clicks the switch button so Token is sold instead
	Reverse bool
}

func (r SwapRequest) String() string {
	if r.Reverse {
		return fmt.Sprintf("sell %s %s", r.Amount, r.Token)
	}
	return fmt.Sprintf("buy %s %s", r.Amount, r.Token)
}

// Swap fills in req, submits it, settles the wallet popup and waits for the
// confirmation modal, which is closed afterwards.
func (s *SwapPage) Swap(ctx context.Context, w wallet.Wallet, popups *popup.Acquirer, req SwapRequest) error {
	log := s.opts.Logger
	log.Infof("Swap: %s", req)

	steps := []func() error{
		s.OpenBuyTokenSelector,
		func() error { return s.SelectToken(req.Token) },
		func() error { return s.FillAmount(req.Amount) },
	}
	if req.Reverse {
		steps = append(steps, s.ClickSwitch)
	}
	steps = append(steps, s.ClickSwap)

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	p, err := popups.Acquire(ctx, s.ClickConfirmSwap)
	if err != nil {
		return fmt.Errorf("swap %s: %w", req, err)
	}

	approveErr := s.approve(ctx, w, p)
	if approveErr != nil {
		log.Warnf("Wallet approval incomplete: %v", approveErr)
	}

	if err := s.WaitSwapConfirmed(); err != nil {
		return errors.Join(err, approveErr)
	}
	if err := s.CloseConfirmedModal(); err != nil {
		return fmt.Errorf("close swap confirmed modal: %w", err)
	}
	log.Infof("Swap confirmed successfully")
	return nil
}

// approve runs unlock and confirm on the popup until both succeed.
func (s *SwapPage) approve(ctx context.Context, w wallet.Wallet, p driver.Page) error {
	var lastErr error
	_, err := retry.Do(ctx, s.opts.Approval, func(ctx context.Context, attempt int) (bool, error) {
		if p.IsClosed() {
			return true, nil
		}
		if err := p.BringToFront(); err != nil {
			lastErr = err
			return false, nil
		}
		if err := w.Unlock(ctx, p); err != nil {
			lastErr = err
			return false, nil
		}
		if err := w.Confirm(ctx, p); err != nil {
			lastErr = err
			return false, nil
		}
		return true, nil
	})
	if err != nil && lastErr != nil {
		return fmt.Errorf("%w: %v", err, lastErr)
	}
	return err
}
