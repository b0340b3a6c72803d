package dex

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/dexprobe/pkg/driver"
)

// Pool page controls
var (
	PoolLink      = driver.CSS(`a[href='/dex/pool']`).FirstMatch()
	PoolPositions = driver.CSS(`div.poolpreview_pos a.poolpreview_pos_single`)
)

// DefaultPositionsSettle is waited before and after scrolling the positions
// list so lazily loaded entries render.
const DefaultPositionsSettle = 5 * time.Second

const scrollToBottom = "() => window.scrollTo(0, document.body.scrollHeight)"

// PoolPage wraps the liquidity pool screen of the dApp.
type PoolPage struct {
	page   driver.Page
	settle time.Duration
}

// NewPoolPage creates a page object over page. A settle of zero uses
// DefaultPositionsSettle.
func NewPoolPage(page driver.Page, settle time.Duration) *PoolPage {
	if settle <= 0 {
		settle = DefaultPositionsSettle
	}
	return &PoolPage{page: page, settle: settle}
}

// Open navigates from any dApp screen to the pool screen via the header link.
func (p *PoolPage) Open() error {
	if err := p.page.BringToFront(); err != nil {
		return fmt.Errorf("bring dApp to front: %w", err)
	}
	for _, state := range []driver.LoadState{driver.LoadStateDOMContentLoaded, driver.LoadStateNetworkIdle} {
		if err := p.page.WaitForLoadState(state); err != nil {
			return fmt.Errorf("wait for %s: %w", state, err)
		}
	}
	if err := p.page.Locate(PoolLink).Click(); err != nil {
		return fmt.Errorf("open pool page: %w", err)
	}
	return p.page.WaitForLoadState(driver.LoadStateNetworkIdle)
}

// Title returns the document title.
func (p *PoolPage) Title() (string, error) {
	return p.page.Title()
}

// URL returns the current address.
func (p *PoolPage) URL() string {
	return p.page.URL()
}

// Positions reloads the page, scrolls to the bottom and counts the listed
// liquidity positions.
func (p *PoolPage) Positions(ctx context.Context) (int, error) {
	if err := p.page.Reload(driver.LoadStateLoad); err != nil {
		return 0, fmt.Errorf("reload pool page: %w", err)
	}
	if err := sleep(ctx, p.settle); err != nil {
		return 0, err
	}
	if _, err := p.page.Evaluate(scrollToBottom); err != nil {
		return 0, fmt.Errorf("scroll pool page: %w", err)
	}
	if err := sleep(ctx, p.settle); err != nil {
		return 0, err
	}
	return p.page.Locate(PoolPositions).Count()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
