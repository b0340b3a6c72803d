package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/dexprobe/pkg/config"
	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/driver/drivertest"
)

// showOnboarding makes every onboarding control on p visible.
func showOnboarding(p *drivertest.Page, address string) {
	p.Locator(TermsCheckbox).Show()
	p.Locator(ImportWalletButton).Show()
	p.Locator(AgreeButton).Show()
	for i := range config.DefaultMnemonic {
		p.Locator(PhraseWordInput(i)).Show()
	}
	p.Locator(ConfirmPhraseButton).Show()
	p.Locator(NewPasswordInput).Show()
	p.Locator(ConfirmPasswordInput).Show()
	p.Locator(ImportMyWalletButton).Show()
	p.Locator(DismissButton).Show().HideOnClick()
	p.Locator(HeaderAddress).Show().SetText(address)
}

func TestSetupImportsWallet(t *testing.T) {
	m, session := newTestWallet(t)
	home := session.Open(homeURL)
	showOnboarding(home, " 0x1234...abcd ")

	require.NoError(t, m.Setup(context.Background()))

	assert.Equal(t, 1, home.Reloads())
	assert.True(t, home.IsClosed())
	assert.Equal(t, 1, home.Locator(TermsCheckbox).Clicks())
	assert.Equal(t, 1, home.Locator(ImportMyWalletButton).Clicks())
	assert.Equal(t, 1, home.Locator(DismissButton).Clicks())

	for i, word := range config.DefaultMnemonic {
		assert.Equal(t, []string{word}, home.Locator(PhraseWordInput(i)).Fills(), "word %d", i)
	}
	assert.Equal(t, []string{DefaultPassword}, home.Locator(NewPasswordInput).Fills())
	assert.Equal(t, []string{DefaultPassword}, home.Locator(ConfirmPasswordInput).Fills())
	assert.Contains(t, home.Loads(), driver.LoadStateNetworkIdle)
}

func TestSetupAlreadyConfigured(t *testing.T) {
	m, session := newTestWallet(t)
	dapp := session.Open(dappURL)
	home := session.Open(homeURL)

	require.NoError(t, m.Setup(context.Background()))

	assert.True(t, home.IsClosed())
	assert.False(t, dapp.IsClosed())
	assert.Equal(t, 0, home.Locator(ImportWalletButton).Clicks())
}

func TestSetupRejectsUnexpectedAddress(t *testing.T) {
	m, session := newTestWallet(t)
	home := session.Open(homeURL)
	showOnboarding(home, "0x12")

	err := m.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet setup")
	assert.Contains(t, err.Error(), `unexpected wallet address "0x12"`)
	assert.False(t, home.IsClosed())
}

func TestSetupStepFailure(t *testing.T) {
	m, session := newTestWallet(t)
	home := session.Open(homeURL)
	showOnboarding(home, "0x1234...abcd")
	home.Locator(AgreeButton).Hide()

	err := m.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `onboarding step "agree"`)
	assert.ErrorIs(t, err, drivertest.ErrNotVisible)
}

func TestSetupWithoutExtensionPage(t *testing.T) {
	m, session := newTestWallet(t)
	session.Open(dappURL)

	err := m.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MetaMask extension page not found")
	assert.ErrorIs(t, err, drivertest.ErrTimeout)
}

func TestSetupWaitsForExtensionPage(t *testing.T) {
	session := drivertest.NewSession()
	opts := fastOptions()
	opts.OnboardingTimeout = time.Second
	m := NewMetaMask(session, opts)

	go func() {
		time.Sleep(10 * time.Millisecond)
		session.Open(homeURL)
	}()

	require.NoError(t, m.Setup(context.Background()))

	open := session.OpenPages()
	assert.Empty(t, open)
}

func TestReadHeaderAddress(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "abbreviated", text: "0x1234...abcd", want: "0x1234...abcd"},
		{name: "full", text: "0x9f8e7d6c5b4a39281706f5e4d3c2b1a098765432", want: "0x9f8e7d6c5b4a39281706f5e4d3c2b1a098765432"},
		{name: "trimmed", text: "\n 0xAbCdEf1234 \t", want: "0xAbCdEf1234"},
		{name: "too short", text: "0x1234", wantErr: true},
		{name: "not hex", text: "0xzz12...abcd", wantErr: true},
		{name: "account name", text: "Account 1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := drivertest.NewSession().Open(homeURL)
			p.Locator(HeaderAddress).Show().SetText(tt.text)

			got, err := readHeaderAddress(p, time.Millisecond)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadHeaderAddressHidden(t *testing.T) {
	p := drivertest.NewSession().Open(homeURL)

	_, err := readHeaderAddress(p, time.Millisecond)
	assert.ErrorContains(t, err, "wallet address not shown after import")
}
