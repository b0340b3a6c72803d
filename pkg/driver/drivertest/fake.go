// Package drivertest provides in-memory fakes of the driver interfaces.
//
// Pages and locators are configured up front (or from click hooks) and record
// every interaction, so protocol code can be exercised without a browser.
// Visibility checks never sleep: a locator that is hidden reports false
// immediately, which keeps timeout-heavy flows fast under test.
package drivertest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/dexprobe/pkg/driver"
)

// ErrTimeout is returned by waits that expire.
var ErrTimeout = errors.New("timeout exceeded")

// Session is a fake driver.Session.
type Session struct {
	mu      sync.Mutex
	pages   []*Page
	workers []string

	// ExpectErr, when set, is returned by ExpectPage after the trigger runs.
	ExpectErr error

	// ResetErr is returned by Reset.
	ResetErr error

	// OnNavigate, when set, runs after every Goto so tests can lay out the
	// page that was navigated to.
	OnNavigate func(p *Page, url string)

	ResetCalls int
	CloseCalls int
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// AddWorker registers a service worker URL.
func (s *Session) AddWorker(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, url)
}

// Open adds a page with the given URL, as if the browser opened it.
func (s *Session) Open(url string) *Page {
	p := &Page{
		session:  s,
		url:      url,
		locators: make(map[string]*Locator),
	}
	s.mu.Lock()
	s.pages = append(s.pages, p)
	s.mu.Unlock()
	return p
}

// OpenPages returns the fakes of every page that is still open.
func (s *Session) OpenPages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*Page
	for _, p := range s.pages {
		if !p.IsClosed() {
			open = append(open, p)
		}
	}
	return open
}

// Pages implements driver.Session.
func (s *Session) Pages() []driver.Page {
	open := s.OpenPages()
	pages := make([]driver.Page, 0, len(open))
	for _, p := range open {
		pages = append(pages, p)
	}
	return pages
}

// NewPage implements driver.Session.
func (s *Session) NewPage() (driver.Page, error) {
	return s.Open("about:blank"), nil
}

// ExpectPage implements driver.Session. It returns the first page opened after
// the call began, polling until timeout.
func (s *Session) ExpectPage(trigger func() error, timeout time.Duration) (driver.Page, error) {
	s.mu.Lock()
	before := len(s.pages)
	s.mu.Unlock()

	if trigger != nil {
		if err := trigger(); err != nil {
			return nil, err
		}
	}
	if s.ExpectErr != nil {
		return nil, s.ExpectErr
	}

	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		if len(s.pages) > before {
			p := s.pages[before]
			s.mu.Unlock()
			return p, nil
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("waiting for page event: %w", ErrTimeout)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// ServiceWorkerURL implements driver.Session.
func (s *Session) ServiceWorkerURL(timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.workers) == 0 {
		return "", fmt.Errorf("waiting for service worker: %w", ErrTimeout)
	}
	return s.workers[0], nil
}

// Reset implements driver.Session.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
	return s.ResetErr
}

// Close implements driver.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	pages := append([]*Page(nil), s.pages...)
	s.CloseCalls++
	s.mu.Unlock()

	for _, p := range pages {
		_ = p.Close()
	}
	return nil
}

// Page is a fake driver.Page.
type Page struct {
	mu       sync.Mutex
	session  *Session
	url      string
	title    string
	content  string
	closed   bool
	locators map[string]*Locator

	fronts  int
	loads   []driver.LoadState
	gotos   []string
	reloads int
	evals   []string

	// FrontErr is returned by BringToFront.
	FrontErr error
}

// SetURL changes the page URL.
func (p *Page) SetURL(url string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return p
}

// SetTitle sets the document title.
func (p *Page) SetTitle(title string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
	return p
}

// SetContent sets the HTML returned by Content.
func (p *Page) SetContent(html string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content = html
	return p
}

// Locator returns the fake behind sel, creating a hidden one on first use.
func (p *Page) Locator(sel driver.Selector) *Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := sel.String()
	loc, ok := p.locators[key]
	if !ok {
		loc = newLocator(p, sel)
		p.locators[key] = loc
	}
	return loc
}

// Fronts returns how many times the page was brought to front.
func (p *Page) Fronts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fronts
}

// Loads returns every load state waited for.
func (p *Page) Loads() []driver.LoadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]driver.LoadState(nil), p.loads...)
}

// Gotos returns every URL navigated to.
func (p *Page) Gotos() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.gotos...)
}

// Reloads returns how many times the page was reloaded.
func (p *Page) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// Evaluated returns every evaluated expression.
func (p *Page) Evaluated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evals...)
}

// URL implements driver.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Title implements driver.Page.
func (p *Page) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

// Content implements driver.Page.
func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, nil
}

// Goto implements driver.Page.
func (p *Page) Goto(url string, waitUntil driver.LoadState, timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("target page has been closed")
	}
	p.gotos = append(p.gotos, url)
	p.url = url
	if waitUntil != "" {
		p.loads = append(p.loads, waitUntil)
	}
	p.mu.Unlock()

	if p.session != nil && p.session.OnNavigate != nil {
		p.session.OnNavigate(p, url)
	}
	return nil
}

// Reload implements driver.Page.
func (p *Page) Reload(waitUntil driver.LoadState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	if waitUntil != "" {
		p.loads = append(p.loads, waitUntil)
	}
	return nil
}

// BringToFront implements driver.Page.
func (p *Page) BringToFront() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("target page has been closed")
	}
	p.fronts++
	return p.FrontErr
}

// WaitForLoadState implements driver.Page.
func (p *Page) WaitForLoadState(state driver.LoadState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads = append(p.loads, state)
	return nil
}

// Evaluate implements driver.Page.
func (p *Page) Evaluate(expression string) (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals = append(p.evals, expression)
	return nil, nil
}

// Locate implements driver.Page.
func (p *Page) Locate(sel driver.Selector) driver.Locator {
	return p.Locator(sel)
}

// IsClosed implements driver.Page.
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close implements driver.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
