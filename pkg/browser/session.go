package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/entrhq/dexprobe/pkg/driver"
	"github.com/entrhq/dexprobe/pkg/logging"
)

// Session is a persistent browser context implementing driver.Session.
type Session struct {
	context   playwright.BrowserContext
	opts      LaunchOptions
	logger    *logging.Logger
	createdAt time.Time

	mu      sync.Mutex
	pages   map[playwright.Page]*page
	closed  bool
	onClose func()
}

func newSession(bctx playwright.BrowserContext, opts LaunchOptions, logger *logging.Logger) *Session {
	return &Session{
		context:   bctx,
		opts:      opts,
		logger:    logger,
		createdAt: time.Now(),
		pages:     make(map[playwright.Page]*page),
	}
}

// ProfileDir returns the user data directory backing the session.
func (s *Session) ProfileDir() string {
	return s.opts.UserDataDir
}

// CreatedAt returns when the session was launched.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// wrap returns the adapter for pg, reusing it so page identity is stable
// across Pages calls.
func (s *Session) wrap(pg playwright.Page) *page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[pg]; ok {
		return p
	}
	p := &page{page: pg}
	s.pages[pg] = p
	return p
}

// Pages implements driver.Session.
func (s *Session) Pages() []driver.Page {
	raw := s.context.Pages()
	pages := make([]driver.Page, 0, len(raw))
	for _, pg := range raw {
		if pg.IsClosed() {
			continue
		}
		pages = append(pages, s.wrap(pg))
	}
	return pages
}

// NewPage implements driver.Session.
func (s *Session) NewPage() (driver.Page, error) {
	pg, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return s.wrap(pg), nil
}

// ExpectPage implements driver.Session. Playwright registers the page listener
// before invoking the callback.
func (s *Session) ExpectPage(trigger func() error, timeout time.Duration) (driver.Page, error) {
	if trigger == nil {
		trigger = func() error { return nil }
	}
	pg, err := s.context.ExpectPage(trigger, playwright.BrowserContextExpectPageOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for page event: %w", err)
	}
	return s.wrap(pg), nil
}

// ServiceWorkerURL implements driver.Session. It polls the context's service
// workers until one registers or timeout expires.
func (s *Session) ServiceWorkerURL(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = s.opts.WorkerTimeout
	}

	var url string
	err := wait.PollUntilContextTimeout(context.Background(), workerPollInterval, timeout, true,
		func(context.Context) (bool, error) {
			workers := s.context.ServiceWorkers()
			if len(workers) == 0 {
				return false, nil
			}
			url = workers[0].URL()
			return true, nil
		})
	if err != nil {
		return "", fmt.Errorf("no service worker registered within %s: %w", timeout, err)
	}
	return url, nil
}

// Reset implements driver.Session. Every step runs even if an earlier one
// fails; the failures are joined.
func (s *Session) Reset() error {
	s.logger.Infof("Starting browser context cleanup")

	var errs []error

	if err := s.context.ClearCookies(); err != nil {
		errs = append(errs, fmt.Errorf("clear cookies: %w", err))
	} else {
		s.logger.Debugf("Cookies cleared")
	}

	if err := s.context.ClearPermissions(); err != nil {
		errs = append(errs, fmt.Errorf("clear permissions: %w", err))
	} else {
		s.logger.Debugf("Permissions cleared")
	}

	pages := s.context.Pages()
	for _, pg := range pages {
		url := pg.URL()
		// Extension pages run under LavaMoat and reject storage access
		if !isWebOrigin(url) {
			s.logger.Debugf("Skipping storage clear for %s", url)
			continue
		}
		if _, err := pg.Evaluate(clearStorageScript); err != nil {
			s.logger.Warnf("Could not clear storage for %s: %v", url, err)
			continue
		}
		s.logger.Debugf("Storage cleared for %s", url)
	}

	if len(pages) > 0 {
		if err := s.clearCache(pages[0]); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("browser context reset incomplete: %w", err)
	}
	s.logger.Infof("Browser context fully cleaned")
	return nil
}

func (s *Session) clearCache(pg playwright.Page) error {
	cdp, err := s.context.NewCDPSession(pg)
	if err != nil {
		return fmt.Errorf("open CDP session: %w", err)
	}
	defer func() {
		_ = cdp.Detach()
	}()

	if _, err := cdp.Send("Network.clearBrowserCache", nil); err != nil {
		return fmt.Errorf("clear browser cache: %w", err)
	}
	s.logger.Debugf("Cache cleared")
	return nil
}

// Close implements driver.Session. Only the first call closes the context.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		defer onClose()
	}
	if err := s.context.Close(); err != nil {
		return fmt.Errorf("failed to close browser context: %w", err)
	}
	return nil
}

// page adapts playwright.Page to driver.Page.
type page struct {
	page playwright.Page
}

func (p *page) URL() string {
	return p.page.URL()
}

func (p *page) Title() (string, error) {
	return p.page.Title()
}

func (p *page) Content() (string, error) {
	return p.page.Content()
}

func (p *page) Goto(url string, waitUntil driver.LoadState, timeout time.Duration) error {
	opts := playwright.PageGotoOptions{}
	if waitUntil != "" {
		state := playwright.WaitUntilState(waitUntil)
		opts.WaitUntil = &state
	}
	if timeout > 0 {
		opts.Timeout = millis(timeout)
	}
	if _, err := p.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *page) Reload(waitUntil driver.LoadState) error {
	opts := playwright.PageReloadOptions{}
	if waitUntil != "" {
		state := playwright.WaitUntilState(waitUntil)
		opts.WaitUntil = &state
	}
	if _, err := p.page.Reload(opts); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (p *page) BringToFront() error {
	return p.page.BringToFront()
}

func (p *page) WaitForLoadState(state driver.LoadState) error {
	ls := playwright.LoadState(state)
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: &ls})
}

func (p *page) Evaluate(expression string) (interface{}, error) {
	return p.page.Evaluate(expression)
}

func (p *page) Locate(sel driver.Selector) driver.Locator {
	var loc playwright.Locator
	switch sel.Kind {
	case driver.KindRole:
		opts := playwright.PageGetByRoleOptions{}
		re, err := sel.NameRegexp()
		if err != nil {
			return &locator{sel: sel, err: err}
		}
		if re != nil {
			opts.Name = re
		}
		loc = p.page.GetByRole(playwright.AriaRole(sel.Value), opts)
	case driver.KindLabel:
		loc = p.page.GetByLabel(sel.Value, playwright.PageGetByLabelOptions{
			Exact: playwright.Bool(sel.Exact),
		})
	default:
		opts := playwright.PageLocatorOptions{}
		if sel.HasText != "" {
			opts.HasText = sel.HasText
		}
		loc = p.page.Locator(sel.Value, opts)
	}
	if sel.First {
		loc = loc.First()
	}
	return &locator{sel: sel, loc: loc}
}

func (p *page) IsClosed() bool {
	return p.page.IsClosed()
}

func (p *page) Close() error {
	return p.page.Close()
}

// locator adapts playwright.Locator to driver.Locator. err holds a selector
// that could not be built; every action reports it.
type locator struct {
	sel driver.Selector
	loc playwright.Locator
	err error
}

func (l *locator) IsVisible(timeout time.Duration) bool {
	return l.WaitVisible(timeout) == nil
}

// WaitVisible uses WaitFor because Playwright's IsVisible ignores its timeout.
func (l *locator) WaitVisible(timeout time.Duration) error {
	if l.err != nil {
		return l.err
	}
	opts := playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	}
	if timeout > 0 {
		opts.Timeout = millis(timeout)
	}
	if err := l.loc.WaitFor(opts); err != nil {
		return fmt.Errorf("waiting for %s: %w", l.sel, err)
	}
	return nil
}

func (l *locator) WaitHidden(timeout time.Duration) error {
	if l.err != nil {
		return l.err
	}
	opts := playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateHidden,
	}
	if timeout > 0 {
		opts.Timeout = millis(timeout)
	}
	if err := l.loc.WaitFor(opts); err != nil {
		return fmt.Errorf("waiting for %s to hide: %w", l.sel, err)
	}
	return nil
}

func (l *locator) Fill(value string) error {
	if l.err != nil {
		return l.err
	}
	if err := l.loc.Fill(value); err != nil {
		return fmt.Errorf("fill %s: %w", l.sel, err)
	}
	return nil
}

func (l *locator) Click() error {
	if l.err != nil {
		return l.err
	}
	if err := l.loc.Click(); err != nil {
		return fmt.Errorf("click %s: %w", l.sel, err)
	}
	return nil
}

func (l *locator) Count() (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	return l.loc.Count()
}

func (l *locator) TextContent() (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return l.loc.TextContent()
}

func (l *locator) Nth(index int) driver.Locator {
	if l.err != nil {
		return l
	}
	return &locator{sel: l.sel, loc: l.loc.Nth(index)}
}
