package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/driver/drivertest"
	"github.com/entrhq/dexprobe/pkg/popup"
)

func addressLocator(p *drivertest.Page, sel string) *drivertest.Locator {
	return p.Locator(driver.CSS(sel).FirstMatch())
}

func TestVerifyConnection(t *testing.T) {
	t.Run("first selector with text wins", func(t *testing.T) {
		m, session := newTestWallet(t)
		p := session.Open(dappURL)
		dropdown := p.Locator(driver.CSS(DefaultProfileSelector)).Show()
		addressLocator(p, `[data-testid="wallet-address"]`).Show().SetText(" 0xabc...def ")
		addressLocator(p, ".address").Show().SetText("0xother")

		address, err := m.VerifyConnection(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, "0xabc...def", address)
		assert.Equal(t, 2, dropdown.Clicks(), "dropdown is opened and closed again")
	})

	t.Run("empty text is skipped", func(t *testing.T) {
		m, session := newTestWallet(t)
		p := session.Open(dappURL)
		p.Locator(driver.CSS(DefaultProfileSelector)).Show()
		addressLocator(p, ".copyaddress").Show().SetText("   ")
		addressLocator(p, ".wallet-address").Show().SetText("0x1111...2222")

		address, err := m.VerifyConnection(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, "0x1111...2222", address)
	})

	t.Run("no selector matches", func(t *testing.T) {
		m, session := newTestWallet(t)
		p := session.Open(dappURL)
		dropdown := p.Locator(driver.CSS(DefaultProfileSelector)).Show()

		_, err := m.VerifyConnection(context.Background(), p)
		var notFound *AddressNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, DefaultAddressSelectors, notFound.Selectors)
		assert.Equal(t, 1, dropdown.Clicks())
	})

	t.Run("custom selectors", func(t *testing.T) {
		session := drivertest.NewSession()
		opts := fastOptions()
		opts.ProfileSelector = "#account"
		opts.AddressSelectors = []string{".acct"}
		m := NewMetaMask(session, opts)

		p := session.Open(dappURL)
		p.Locator(driver.CSS("#account")).Show()
		addressLocator(p, ".acct").Show().SetText("0xfeed...beef")

		address, err := m.VerifyConnection(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, "0xfeed...beef", address)
	})

	t.Run("dropdown missing", func(t *testing.T) {
		m, session := newTestWallet(t)
		p := session.Open(dappURL)

		_, err := m.VerifyConnection(context.Background(), p)
		assert.ErrorContains(t, err, "profile dropdown not visible")
		assert.ErrorIs(t, err, drivertest.ErrTimeout)
	})
}

func TestHandlePopup(t *testing.T) {
	m, session := newTestWallet(t)
	session.Open(homeURL)
	want := session.Open(popupURL)

	got, err := m.HandlePopup(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestHandlePopupNone(t *testing.T) {
	m, session := newTestWallet(t)
	session.Open(homeURL)

	_, err := m.HandlePopup(context.Background())
	var notFound *popup.PopupNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{homeURL}, notFound.OpenPages)
}

func TestHandleAllPopups(t *testing.T) {
	t.Run("settles every popup", func(t *testing.T) {
		m, session := newTestWallet(t)
		home := session.Open(homeURL)
		dapp := session.Open(dappURL)

		locked := session.Open(popupURL)
		locked.Locator(PasswordInput).Show()
		locked.Locator(UnlockButton).Show()
		locked.Locator(ConfirmButton).Show()

		pending := session.Open(popupURL + "#confirm-transaction")
		pending.Locator(ConfirmButton).Show()

		handled, err := m.HandleAllPopups(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, handled)

		assert.True(t, locked.IsClosed())
		assert.True(t, pending.IsClosed())
		assert.False(t, home.IsClosed())
		assert.False(t, dapp.IsClosed())
		assert.Equal(t, []string{DefaultPassword}, locked.Locator(PasswordInput).Fills())
		assert.Equal(t, 1, pending.Locator(ConfirmButton).Clicks())
	})

	t.Run("no popups", func(t *testing.T) {
		m, session := newTestWallet(t)
		session.Open(homeURL)

		handled, err := m.HandleAllPopups(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, handled)
	})

	t.Run("failing popup is skipped", func(t *testing.T) {
		m, session := newTestWallet(t)
		stuck := session.Open(popupURL)
		stuck.FrontErr = errors.New("target crashed")
		ok := session.Open(popupURL + "?id=2")

		handled, err := m.HandleAllPopups(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, handled)
		assert.True(t, ok.IsClosed())
		assert.False(t, stuck.IsClosed())
	})

	t.Run("cancelled", func(t *testing.T) {
		m, session := newTestWallet(t)
		session.Open(popupURL)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := m.HandleAllPopups(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSwitchNetwork(t *testing.T) {
	t.Run("selects network", func(t *testing.T) {
		m, session := newTestWallet(t)
		p := session.Open(popupURL)
		picker := p.Locator(NetworkButton).Show()
		option := p.Locator(driver.Button("sepolia").FirstMatch()).Show()

		require.NoError(t, m.SwitchNetwork(context.Background(), "sepolia"))
		assert.Equal(t, 1, picker.Clicks())
		assert.Equal(t, 1, option.Clicks())
	})

	t.Run("network option missing", func(t *testing.T) {
		m, session := newTestWallet(t)
		p := session.Open(popupURL)
		p.Locator(NetworkButton).Show()

		err := m.SwitchNetwork(context.Background(), "Linea Mainnet")
		assert.ErrorContains(t, err, "select network Linea Mainnet")
	})

	t.Run("no popup", func(t *testing.T) {
		m, _ := newTestWallet(t)

		err := m.SwitchNetwork(context.Background(), "sepolia")
		var notFound *popup.PopupNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}
