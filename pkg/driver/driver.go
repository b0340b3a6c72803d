// Package driver defines the slice of browser automation that dexprobe relies on.
//
// The wallet flows, the popup protocol, and the suite scenarios are written
// against these interfaces instead of a concrete automation library. The
// browser package binds them to playwright-go; the drivertest package provides
// in-memory fakes for tests.
//
// # Visibility
//
// Locator.IsVisible waits up to the given timeout for the element to become
// visible and reports false on expiry or on any lookup error. Callers treat a
// false result as "not present" rather than as a failure.
//
// # Page events
//
// Session.ExpectPage registers interest in the next page event before running
// the trigger, so a page opened by the trigger is never missed.
package driver

import (
	"time"
)

// LoadState is a page lifecycle milestone that WaitForLoadState can wait for.
type LoadState string

const (
	// LoadStateLoad waits for the load event
	LoadStateLoad LoadState = "load"

	// LoadStateDOMContentLoaded waits for the DOMContentLoaded event
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"

	// LoadStateNetworkIdle waits until there are no network connections for 500ms
	LoadStateNetworkIdle LoadState = "networkidle"
)

// Session is a persistent browser execution context holding open pages and the
// extension's background worker.
type Session interface {
	// Pages returns the open pages in creation order.
	Pages() []Page

	// NewPage opens a blank page.
	NewPage() (Page, error)

	// ExpectPage runs trigger after registering for the next page event and
	// returns the page that opened. A nil trigger only waits.
	ExpectPage(trigger func() error, timeout time.Duration) (Page, error)

	// ServiceWorkerURL returns the URL of the first registered service worker,
	// waiting up to timeout for one to register.
	ServiceWorkerURL(timeout time.Duration) (string, error)

	// Reset clears cookies, permissions, web storage and the HTTP cache.
	Reset() error

	// Close closes the session and every page in it.
	Close() error
}

// Page is one open browsing context.
type Page interface {
	URL() string
	Title() (string, error)
	Content() (string, error)

	Goto(url string, waitUntil LoadState, timeout time.Duration) error
	Reload(waitUntil LoadState) error
	BringToFront() error
	WaitForLoadState(state LoadState) error

	// Evaluate runs a JavaScript expression in the page.
	Evaluate(expression string) (interface{}, error)

	// Locate resolves a selector lazily; nothing is queried until a Locator
	// method is called.
	Locate(sel Selector) Locator

	IsClosed() bool
	Close() error
}

// Locator is a lazily resolved reference to zero or more elements.
type Locator interface {
	// IsVisible reports whether the element becomes visible within timeout.
	IsVisible(timeout time.Duration) bool

	// WaitVisible is IsVisible that reports why it failed.
	WaitVisible(timeout time.Duration) error

	// WaitHidden waits until the element is hidden or detached.
	WaitHidden(timeout time.Duration) error

	Fill(value string) error
	Click() error
	Count() (int, error)
	TextContent() (string, error)

	// Nth narrows the locator to the element at index.
	Nth(index int) Locator
}
