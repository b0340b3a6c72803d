package drivertest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/dexprobe/pkg/driver"
)

// ErrNotVisible is returned by actions on a hidden locator.
var ErrNotVisible = errors.New("element is not visible")

// Locator is a fake driver.Locator.
type Locator struct {
	mu   sync.Mutex
	page *Page
	sel  driver.Selector

	visible     bool
	hiddenFor   int
	hideAfter   int
	hideArmed   bool
	text        string
	count       int
	countSet    bool
	nth         map[int]*Locator
	failClicks  int
	clickErr    error
	fillErr     error
	hideOnClick bool
	onClick     func() error

	fills     []string
	clicks    int
	visChecks int
}

func newLocator(p *Page, sel driver.Selector) *Locator {
	return &Locator{page: p, sel: sel, nth: make(map[int]*Locator)}
}

// Show makes the element visible.
func (l *Locator) Show() *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visible = true
	return l
}

// Hide makes the element invisible.
func (l *Locator) Hide() *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visible = false
	return l
}

// ShowAfter makes the first n visibility checks report false even when the
// element is visible.
func (l *Locator) ShowAfter(n int) *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visible = true
	l.hiddenFor = n
	return l
}

// HideAfter makes the element visible for the next n visibility checks and
// hidden from then on.
func (l *Locator) HideAfter(n int) *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visible = true
	l.hideAfter = n
	l.hideArmed = true
	return l
}

// SetText sets the text content.
func (l *Locator) SetText(text string) *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text = text
	return l
}

// SetCount fixes the number of matched elements.
func (l *Locator) SetCount(n int) *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count = n
	l.countSet = true
	return l
}

// FailClicks makes the next n clicks fail with err.
func (l *Locator) FailClicks(n int, err error) *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failClicks = n
	l.clickErr = err
	return l
}

// FailFill makes every fill fail with err.
func (l *Locator) FailFill(err error) *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fillErr = err
	return l
}

// HideOnClick hides the element after a successful click.
func (l *Locator) HideOnClick() *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hideOnClick = true
	return l
}

// OnClick runs fn after each successful click. An error from fn is returned by
// Click.
func (l *Locator) OnClick(fn func() error) *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onClick = fn
	return l
}

// NthLocator returns the fake behind Nth(index).
func (l *Locator) NthLocator(index int) *Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nth[index]
	if !ok {
		sel := l.sel
		sel.Value = fmt.Sprintf("%s >> nth=%d", sel.Value, index)
		n = newLocator(l.page, sel)
		l.nth[index] = n
	}
	return n
}

// Clicks returns how many clicks succeeded.
func (l *Locator) Clicks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clicks
}

// Fills returns every value filled.
func (l *Locator) Fills() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.fills...)
}

// VisibilityChecks returns how many times visibility was queried.
func (l *Locator) VisibilityChecks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visChecks
}

// IsVisible implements driver.Locator.
func (l *Locator) IsVisible(timeout time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkVisibleLocked()
}

func (l *Locator) checkVisibleLocked() bool {
	l.visChecks++
	if l.page != nil && l.page.IsClosed() {
		return false
	}
	if l.hiddenFor > 0 {
		l.hiddenFor--
		return false
	}
	if l.hideArmed {
		if l.hideAfter <= 0 {
			l.visible = false
			l.hideArmed = false
		} else {
			l.hideAfter--
		}
	}
	return l.visible
}

// WaitVisible implements driver.Locator.
func (l *Locator) WaitVisible(timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.checkVisibleLocked() {
		return fmt.Errorf("waiting for %s to be visible: %w", l.sel, ErrTimeout)
	}
	return nil
}

// WaitHidden implements driver.Locator.
func (l *Locator) WaitHidden(timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.page != nil && l.page.IsClosed() {
		return nil
	}
	if l.visible {
		return fmt.Errorf("waiting for %s to be hidden: %w", l.sel, ErrTimeout)
	}
	return nil
}

// Fill implements driver.Locator.
func (l *Locator) Fill(value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fillErr != nil {
		return l.fillErr
	}
	if !l.visible {
		return fmt.Errorf("fill %s: %w", l.sel, ErrNotVisible)
	}
	l.fills = append(l.fills, value)
	return nil
}

// Click implements driver.Locator.
func (l *Locator) Click() error {
	l.mu.Lock()
	if l.failClicks > 0 {
		l.failClicks--
		err := l.clickErr
		l.mu.Unlock()
		return err
	}
	if !l.visible {
		l.mu.Unlock()
		return fmt.Errorf("click %s: %w", l.sel, ErrNotVisible)
	}
	l.clicks++
	if l.hideOnClick {
		l.visible = false
	}
	hook := l.onClick
	l.mu.Unlock()

	if hook != nil {
		return hook()
	}
	return nil
}

// Count implements driver.Locator.
func (l *Locator) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.countSet {
		return l.count, nil
	}
	if l.visible {
		return 1, nil
	}
	return 0, nil
}

// TextContent implements driver.Locator.
func (l *Locator) TextContent() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text, nil
}

// Nth implements driver.Locator.
func (l *Locator) Nth(index int) driver.Locator {
	return l.NthLocator(index)
}
