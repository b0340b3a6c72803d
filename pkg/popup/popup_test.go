package popup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/dexprobe/pkg/config"
	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/driver/drivertest"
	"github.com/entrhq/dexprobe/pkg/extension"
	"github.com/entrhq/dexprobe/pkg/retry"
)

const (
	extID     = "nkbihfbeogaeaoehlefnkodbefgpgknn"
	dappURL   = "https://dex.example.test/"
	popupURL  = "chrome-extension://" + extID + "/notification.html#connect"
	popupURL2 = "chrome-extension://" + extID + "/popup.html"
)

func fastOptions() Options {
	return Options{
		EventTimeout: 30 * time.Millisecond,
		Focus:        retry.Fixed(5, time.Millisecond),
		ProbeTimeout: time.Millisecond,
	}
}

func TestAcquireFromPageEvent(t *testing.T) {
	session := drivertest.NewSession()
	session.Open(dappURL)

	var opened *drivertest.Page
	acq := New(session, fastOptions())

	p, err := acq.Acquire(context.Background(), func() error {
		// The page opens synchronously inside the trigger, so it is only
		// caught if the listener was registered first.
		opened = session.Open(popupURL)
		opened.Locator(DefaultProbe).Show()
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, opened, p)
	assert.Equal(t, 1, opened.Fronts(), "probe visible on first focus attempt")
	assert.Contains(t, opened.Loads(), driver.LoadStateDOMContentLoaded)
}

func TestAcquireFallsBackToScan(t *testing.T) {
	session := drivertest.NewSession()
	session.Open(dappURL)
	existing := session.Open(popupURL)
	existing.Locator(DefaultProbe).Show()
	session.ExpectErr = errors.New("Timeout 25000ms exceeded while waiting for event \"page\"")

	acq := New(session, fastOptions())
	triggered := false

	p, err := acq.Acquire(context.Background(), func() error {
		triggered = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Same(t, existing, p)
}

func TestAcquireIgnoresHomeAndWebPages(t *testing.T) {
	session := drivertest.NewSession()
	session.Open(dappURL)
	session.Open(extension.HomeURL(extID))
	session.Open(extension.HomeURL(extID) + "#onboarding/welcome")
	eventErr := errors.New("waiting for page event: timeout")
	session.ExpectErr = eventErr

	acq := New(session, fastOptions())
	_, err := acq.Acquire(context.Background(), func() error { return nil })

	var notFound *PopupNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{
		dappURL,
		extension.HomeURL(extID),
		extension.HomeURL(extID) + "#onboarding/welcome",
	}, notFound.OpenPages)
	assert.ErrorIs(t, err, eventErr)
	assert.Contains(t, err.Error(), dappURL)
}

func TestAcquireEventDeliversHomePage(t *testing.T) {
	session := drivertest.NewSession()
	acq := New(session, fastOptions())

	_, err := acq.Acquire(context.Background(), func() error {
		session.Open(extension.HomeURL(extID))
		return nil
	})

	var notFound *PopupNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{extension.HomeURL(extID)}, notFound.OpenPages)
}

func TestAcquireWithoutTriggerTerminates(t *testing.T) {
	session := drivertest.NewSession()
	session.Open(dappURL)

	opts := fastOptions()
	opts.EventTimeout = 50 * time.Millisecond
	acq := New(session, opts)

	start := time.Now()
	_, err := acq.Acquire(context.Background(), nil)
	elapsed := time.Since(start)

	var notFound *PopupNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{dappURL}, notFound.OpenPages)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestAcquireWithoutTriggerReturnsOpenPopup(t *testing.T) {
	session := drivertest.NewSession()
	session.Open(dappURL)
	existing := session.Open(popupURL)
	existing.Locator(DefaultProbe).Show()

	opts := fastOptions()
	opts.EventTimeout = 5 * time.Second
	acq := New(session, opts)

	start := time.Now()
	p, err := acq.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, existing, p)
	assert.Less(t, time.Since(start), time.Second, "an open popup is returned without waiting for an event")
}

func TestAcquireTriggerErrorIsReturned(t *testing.T) {
	session := drivertest.NewSession()
	session.Open(popupURL)
	clickErr := errors.New("click: element detached")

	acq := New(session, fastOptions())
	_, err := acq.Acquire(context.Background(), func() error { return clickErr })

	assert.ErrorIs(t, err, clickErr)
	var notFound *PopupNotFoundError
	assert.False(t, errors.As(err, &notFound))
}

func TestAcquireCancelled(t *testing.T) {
	session := drivertest.NewSession()
	acq := New(session, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := acq.Acquire(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStabilize(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(p *drivertest.Page)
		want       bool
		wantFronts int
	}{
		{
			name:       "probe visible immediately",
			setup:      func(p *drivertest.Page) { p.Locator(DefaultProbe).Show() },
			want:       true,
			wantFronts: 1,
		},
		{
			name:       "probe visible on third attempt",
			setup:      func(p *drivertest.Page) { p.Locator(DefaultProbe).ShowAfter(2) },
			want:       true,
			wantFronts: 3,
		},
		{
			name:       "probe never visible",
			setup:      func(p *drivertest.Page) {},
			want:       false,
			wantFronts: 5,
		},
		{
			name: "bring to front keeps failing",
			setup: func(p *drivertest.Page) {
				p.Locator(DefaultProbe).Show()
				p.FrontErr = errors.New("target closed")
			},
			want:       false,
			wantFronts: 5,
		},
		{
			name:       "popup closed",
			setup:      func(p *drivertest.Page) { _ = p.Close() },
			want:       false,
			wantFronts: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := drivertest.NewSession()
			p := session.Open(popupURL)
			tt.setup(p)

			acq := New(session, fastOptions())
			assert.Equal(t, tt.want, acq.Stabilize(context.Background(), p))
			assert.Equal(t, tt.wantFronts, p.Fronts())
		})
	}
}

func TestDefaultFocusBudget(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 5, opts.Focus.Attempts)
	assert.LessOrEqual(t, opts.Focus.MaxDelay(), 10*time.Second)
	assert.Equal(t, 3*time.Second, opts.ProbeTimeout)
	assert.Equal(t, driver.Label("Password"), opts.Probe)
}

func TestCandidates(t *testing.T) {
	session := drivertest.NewSession()
	session.Open(dappURL)
	session.Open(extension.HomeURL(extID))
	first := session.Open(popupURL)
	closed := session.Open(popupURL2)
	_ = closed.Close()
	second := session.Open(popupURL2 + "?v=2")

	acq := New(session, fastOptions())
	candidates := acq.Candidates()
	require.Len(t, candidates, 2)
	assert.Same(t, first, candidates[0])
	assert.Same(t, second, candidates[1])
	assert.Same(t, first, acq.Find())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Popup
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 25*time.Second, opts.EventTimeout)
	assert.Equal(t, retry.Fixed(5, 2*time.Second), opts.Focus)
	assert.True(t, opts.Classifier.IsHome(extension.HomeURL(extID)))

	cfg.HomePatterns = []string{"chrome-extension://*/welcome.html"}
	opts, err = OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.True(t, opts.Classifier.IsPopup(extension.HomeURL(extID)))
	assert.False(t, opts.Classifier.IsPopup("chrome-extension://abc/welcome.html"))

	cfg.HomePatterns = []string{"chrome-extension://[/home.html"}
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
