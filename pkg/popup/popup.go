// Package popup finds the wallet extension's popup window.
//
// A popup opens asynchronously after a dApp action and the browser's "new
// page" notification is not always delivered. Acquire therefore races the
// notification against a scan of the open pages:
//
//  1. Register for the next page event, then run the trigger.
//  2. If the event does not arrive in time, scan the open pages for an
//     extension page that is not the extension's home page.
//  3. Bring the popup to front until its password control shows, a bounded
//     number of times. Failing to stabilize is not an error.
//
// When nothing is found Acquire returns *PopupNotFoundError listing every open
// page URL.
package popup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/dexprobe/pkg/config"
	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/extension"
	"github.com/entrhq/dexprobe/pkg/logging"
	"github.com/entrhq/dexprobe/pkg/retry"
)

// Default timings
const (
	DefaultEventTimeout  = 25 * time.Second
	DefaultFocusAttempts = 5
	DefaultFocusDelay    = 2 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
)

// DefaultProbe is the control whose visibility marks a popup as ready.
var DefaultProbe = driver.Label("Password")

// PopupNotFoundError reports that no popup could be located. The run cannot
// continue past it.
type PopupNotFoundError struct {
	// OpenPages lists the URL of every page open when the scan ran
	OpenPages []string

	// Cause is why the page event was not received, if it was awaited
	Cause error
}

func (e *PopupNotFoundError) Error() string {
	msg := fmt.Sprintf("could not find wallet popup; open pages: [%s]", strings.Join(e.OpenPages, ", "))
	if e.Cause != nil {
		msg += fmt.Sprintf(" (page event: %v)", e.Cause)
	}
	return msg
}

func (e *PopupNotFoundError) Unwrap() error {
	return e.Cause
}

// Options tunes acquisition.
type Options struct {
	// EventTimeout bounds the wait for the page event
	EventTimeout time.Duration

	// Focus bounds the focus-stabilization loop
	Focus retry.Policy

	// ProbeTimeout bounds each probe visibility check
	ProbeTimeout time.Duration

	// Probe is the control expected on a ready popup
	Probe driver.Selector

	// Classifier separates popups from the home page. Nil uses the defaults.
	Classifier *extension.Classifier

	Logger *logging.Logger
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		EventTimeout: DefaultEventTimeout,
		Focus:        retry.Fixed(DefaultFocusAttempts, DefaultFocusDelay),
		ProbeTimeout: DefaultProbeTimeout,
		Probe:        DefaultProbe,
	}
}

// OptionsFromConfig maps the popup section of the suite configuration.
func OptionsFromConfig(cfg config.PopupConfig) (Options, error) {
	classifier, err := extension.NewClassifier(cfg.HomePatterns...)
	if err != nil {
		return Options{}, err
	}
	return Options{
		EventTimeout: cfg.EventTimeout,
		Focus:        retry.Fixed(cfg.FocusAttempts, cfg.FocusDelay),
		ProbeTimeout: cfg.ProbeTimeout,
		Probe:        DefaultProbe,
		Classifier:   classifier,
	}, nil
}

// Acquirer locates popups in one session.
type Acquirer struct {
	session driver.Session
	opts    Options
	logger  *logging.Logger
}

// New creates an Acquirer. Zero-valued options take their defaults.
func New(session driver.Session, opts Options) *Acquirer {
	defaults := DefaultOptions()
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = defaults.EventTimeout
	}
	if opts.Focus.Attempts < 1 {
		opts.Focus = defaults.Focus
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaults.ProbeTimeout
	}
	if opts.Probe.Value == "" {
		opts.Probe = defaults.Probe
	}
	if opts.Classifier == nil {
		opts.Classifier = extension.MustClassifier()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Acquirer{
		session: session,
		opts:    opts,
		logger:  logger,
	}
}

// Options returns the effective options.
func (a *Acquirer) Options() Options {
	return a.opts
}

// Acquire returns the popup opened by trigger, focused and ideally showing its
// password control.
//
// With a nil trigger an already-open popup is returned immediately; otherwise
// Acquire waits one event timeout for a popup to appear and then fails. It
// never waits longer than EventTimeout plus the focus loop.
func (a *Acquirer) Acquire(ctx context.Context, trigger func() error) (driver.Page, error) {
	if trigger == nil {
		if p := a.Find(); p != nil {
			a.logger.Infof("Found already opened popup %s", p.URL())
			a.prepare(ctx, p)
			return p, nil
		}
	}

	p, eventErr := a.awaitEvent(ctx, trigger)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var triggerErr *triggerError
	if errors.As(eventErr, &triggerErr) {
		return nil, triggerErr.err
	}

	if p == nil {
		a.logger.Debugf("No popup from page event (%v), scanning open pages", eventErr)
		p = a.Find()
	}
	if p == nil {
		err := &PopupNotFoundError{OpenPages: a.OpenPageURLs(), Cause: eventErr}
		a.logger.Errorf("%v", err)
		return nil, err
	}

	a.logger.Infof("Popup acquired: %s", p.URL())
	a.prepare(ctx, p)
	return p, nil
}

// triggerError marks a failure of the caller's action, as opposed to a
// failure to observe the page event.
type triggerError struct {
	err error
}

func (e *triggerError) Error() string {
	return e.err.Error()
}

type eventResult struct {
	page driver.Page
	err  error
}

// awaitEvent registers for the next page, runs trigger and waits. A page that
// is not a popup (for example the home page) counts as no result.
func (a *Acquirer) awaitEvent(ctx context.Context, trigger func() error) (driver.Page, error) {
	wrapped := func() error {
		if trigger == nil {
			return nil
		}
		if err := trigger(); err != nil {
			return &triggerError{err: err}
		}
		return nil
	}

	results := make(chan eventResult, 1)
	go func() {
		p, err := a.session.ExpectPage(wrapped, a.opts.EventTimeout)
		results <- eventResult{page: p, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		if res.page == nil || res.page.IsClosed() {
			return nil, errors.New("page event delivered a closed page")
		}
		if a.isPopup(res.page) {
			return res.page, nil
		}
		// New pages can report about:blank until their first navigation commits
		_ = res.page.WaitForLoadState(driver.LoadStateDOMContentLoaded)
		if a.isPopup(res.page) {
			return res.page, nil
		}
		return nil, fmt.Errorf("page event delivered a non-popup page %q", res.page.URL())
	}
}

func (a *Acquirer) isPopup(p driver.Page) bool {
	return !p.IsClosed() && a.opts.Classifier.IsPopup(p.URL())
}

// Find returns the first open extension page that is not the home page, or
// nil.
func (a *Acquirer) Find() driver.Page {
	candidates := a.Candidates()
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

// Candidates returns every open popup page in session order.
func (a *Acquirer) Candidates() []driver.Page {
	var popups []driver.Page
	for _, p := range a.session.Pages() {
		if a.isPopup(p) {
			popups = append(popups, p)
		}
	}
	return popups
}

// OpenPageURLs lists the URL of every open page.
func (a *Acquirer) OpenPageURLs() []string {
	pages := a.session.Pages()
	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		urls = append(urls, p.URL())
	}
	return urls
}

func (a *Acquirer) prepare(ctx context.Context, p driver.Page) {
	if err := p.WaitForLoadState(driver.LoadStateDOMContentLoaded); err != nil {
		a.logger.Debugf("Popup load wait failed: %v", err)
	}
	a.Stabilize(ctx, p)
}

// Stabilize brings p to front until the probe control is visible, at most
// Focus.Attempts times. It reports whether the probe was seen. Failure is not
// an error: the unlock step checks visibility again.
func (a *Acquirer) Stabilize(ctx context.Context, p driver.Page) bool {
	probe := p.Locate(a.opts.Probe)

	attempts, err := retry.Do(ctx, a.opts.Focus, func(ctx context.Context, attempt int) (bool, error) {
		if p.IsClosed() {
			return false, errPopupClosed
		}
		if err := p.BringToFront(); err != nil {
			a.logger.Debugf("[Attempt %d] Bring popup to front failed: %v", attempt, err)
			return false, nil
		}
		if probe.IsVisible(a.opts.ProbeTimeout) {
			return true, nil
		}
		a.logger.Debugf("[Attempt %d] %s not visible yet", attempt, a.opts.Probe)
		return false, nil
	})

	if err != nil {
		a.logger.Debugf("Popup not stabilized after %d attempts: %v", attempts, err)
		return false
	}
	a.logger.Debugf("Popup stabilized after %d attempts", attempts)
	return true
}

var errPopupClosed = errors.New("popup closed")
