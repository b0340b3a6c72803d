package wallet

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/extension"
)

// Onboarding controls
var (
	TermsCheckbox        = driver.CSS(`[data-testid="onboarding-terms-checkbox"]`)
	ImportWalletButton   = driver.Button("import an existing wallet")
	AgreeButton          = driver.Button("i agree")
	ConfirmPhraseButton  = driver.Button("confirm secret recovery phrase|confirm").FirstMatch()
	NewPasswordInput     = driver.CSS(`[data-testid="create-password-new"]`)
	ConfirmPasswordInput = driver.CSS(`[data-testid="create-password-confirm"]`)
	ImportMyWalletButton = driver.Button("import my wallet")
	DismissButton        = driver.Button("done|next|got it|close").FirstMatch()
	HeaderAddress        = driver.CSS(`[data-testid='app-header-copy-button'] span span`)
)

// dismissRounds is how many completion dialogs onboarding clicks through.
const dismissRounds = 3

// headerAddress matches a full or abbreviated (0x1234...abcd) address.
var headerAddress = regexp.MustCompile(`^0x[a-fA-F0-9]+(\.{3}[a-fA-F0-9]+)?$`)

// PhraseWordInput selects the recovery phrase input for word i.
func PhraseWordInput(i int) driver.Selector {
	return driver.CSS(fmt.Sprintf("#import-srp__srp-word-%d", i))
}

// Setup implements Wallet. It finds the extension page (waiting for one to
// open if needed) and imports the recovery phrase when onboarding is shown.
// The extension page is closed afterwards.
func (m *MetaMask) Setup(ctx context.Context) error {
	log := m.opts.Logger
	log.Infof("Setting up MetaMask wallet")

	page, err := m.extensionPage(ctx)
	if err != nil {
		log.Errorf("Failed to setup MetaMask: %v", err)
		return fmt.Errorf("wallet setup: %w", err)
	}

	if err := m.onboard(ctx, page); err != nil {
		log.Errorf("Failed to setup MetaMask: %v", err)
		return fmt.Errorf("wallet setup: %w", err)
	}

	if err := page.Close(); err != nil {
		log.Warnf("Failed to close onboarding page: %v", err)
	}
	log.Infof("Wallet setup completed")
	return nil
}

func (m *MetaMask) extensionPage(ctx context.Context) (driver.Page, error) {
	pages := m.session.Pages()
	for _, p := range pages {
		if err := p.WaitForLoadState(driver.LoadStateDOMContentLoaded); err != nil {
			m.opts.Logger.Debugf("Load wait for %s failed: %v", p.URL(), err)
		}
	}

	for _, p := range pages {
		if strings.HasPrefix(p.URL(), extension.Scheme) {
			if err := p.BringToFront(); err != nil {
				return nil, fmt.Errorf("bring extension page to front: %w", err)
			}
			if err := p.Reload(driver.LoadStateNetworkIdle); err != nil {
				return nil, err
			}
			return p, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.opts.Logger.Debugf("No extension page open, waiting %s for one", m.opts.OnboardingTimeout)
	p, err := m.session.ExpectPage(nil, m.opts.OnboardingTimeout)
	if err != nil {
		return nil, fmt.Errorf("MetaMask extension page not found: %w", err)
	}
	if err := p.WaitForLoadState(driver.LoadStateDOMContentLoaded); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(p.URL(), extension.Scheme) {
		return nil, fmt.Errorf("MetaMask extension page not found (opened %s)", p.URL())
	}
	return p, nil
}

// step is one onboarding action; failures abort setup.
type step struct {
	name string
	run  func() error
}

func (m *MetaMask) onboard(ctx context.Context, page driver.Page) error {
	log := m.opts.Logger

	checkbox := page.Locate(TermsCheckbox)
	if !checkbox.IsVisible(m.opts.ProbeTimeout) {
		log.Infof("Wallet already set up or onboarding UI not visible")
		return nil
	}

	log.Infof("Starting MetaMask onboarding")

	click := func(sel driver.Selector) func() error {
		return func() error { return page.Locate(sel).Click() }
	}
	fill := func(sel driver.Selector, value string) func() error {
		return func() error { return page.Locate(sel).Fill(value) }
	}

	steps := []step{
		{"accept terms", checkbox.Click},
		{"choose import", click(ImportWalletButton)},
		{"agree", click(AgreeButton)},
		{"fill recovery phrase", func() error {
			log.Infof("Filling seed phrase")
			for i, word := range m.opts.Mnemonic {
				if err := page.Locate(PhraseWordInput(i)).Fill(word); err != nil {
					return fmt.Errorf("word %d: %w", i, err)
				}
			}
			return nil
		}},
		{"confirm recovery phrase", click(ConfirmPhraseButton)},
		{"fill new password", fill(NewPasswordInput, m.opts.Password)},
		{"fill confirm password", fill(ConfirmPasswordInput, m.opts.Password)},
		{"import wallet", click(ImportMyWalletButton)},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.run(); err != nil {
			return fmt.Errorf("onboarding step %q: %w", s.name, err)
		}
	}

	// Completion dialogs vary between releases
	for i := 0; i < dismissRounds; i++ {
		dismiss := page.Locate(DismissButton)
		if dismiss.IsVisible(m.opts.ProbeTimeout) {
			if err := dismiss.Click(); err != nil {
				log.Debugf("Dismiss dialog %d failed: %v", i+1, err)
			}
		}
	}

	if err := page.WaitForLoadState(driver.LoadStateNetworkIdle); err != nil {
		log.Debugf("Network idle wait failed: %v", err)
	}

	address, err := readHeaderAddress(page, m.opts.Timeout)
	if err != nil {
		return err
	}
	log.Infof("Wallet address: %s", address)
	return nil
}

func readHeaderAddress(page driver.Page, timeout time.Duration) (string, error) {
	loc := page.Locate(HeaderAddress)
	if err := loc.WaitVisible(timeout); err != nil {
		return "", fmt.Errorf("wallet address not shown after import: %w", err)
	}
	text, err := loc.TextContent()
	if err != nil {
		return "", fmt.Errorf("read wallet address: %w", err)
	}
	address := strings.TrimSpace(text)
	if !headerAddress.MatchString(address) || len(address) <= 10 {
		return "", fmt.Errorf("unexpected wallet address %q after import", address)
	}
	return address, nil
}
