package suite

import (
	"context"
	"fmt"
	"regexp"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/dexprobe/pkg/dex"
)

// Scenario is one named check run against the shared fixture. A returned
// error fails the scenario at once; failed soft assertions recorded on the
// Checker fail it after Run returns.
type Scenario struct {
	Group string
	Name  string
	Run   func(ctx context.Context, f *Fixture, c *Checker) error
}

// ID is the scenario's "group/name" identifier used by filters and reports.
func (s Scenario) ID() string {
	return s.Group + "/" + s.Name
}

// Expectations holds the dApp facts the scenarios assert.
type Expectations struct {
	Title string

	// SwapURLPattern must match the swap page address
	SwapURLPattern string

	// PoolURLPattern must match the pool page address
	PoolURLPattern string

	// SwapToken is bought against the default selling token
	SwapToken  string
	SwapAmount string

	CardBody   []string
	CardHeader []string
	Header     []string

	// HeaderPattern is a case-insensitive pattern the header must match
	HeaderPattern string
}

// DefaultExpectations describes the QA deployment of the exchange.
func DefaultExpectations() Expectations {
	return Expectations{
		Title:          "GalaSwap - Dex-Trade Exchange",
		SwapURLPattern: "qa1",
		PoolURLPattern: `dex/pool`,
		SwapToken:      "ETIME",
		SwapAmount:     "1",
		CardBody:       []string{"Selling", "GALA", "Buying", "Select token"},
		CardHeader:     []string{"Swap"},
		Header:         []string{"Swap", "Pool", "Balance", "Explore", "About"},
		HeaderPattern:  "faqs",
	}
}

func (e Expectations) withDefaults() Expectations {
	d := DefaultExpectations()
	if e.Title == "" {
		e.Title = d.Title
	}
	if e.SwapURLPattern == "" {
		e.SwapURLPattern = d.SwapURLPattern
	}
	if e.PoolURLPattern == "" {
		e.PoolURLPattern = d.PoolURLPattern
	}
	if e.SwapToken == "" {
		e.SwapToken = d.SwapToken
	}
	if e.SwapAmount == "" {
		e.SwapAmount = d.SwapAmount
	}
	if e.CardBody == nil {
		e.CardBody = d.CardBody
	}
	if e.CardHeader == nil {
		e.CardHeader = d.CardHeader
	}
	if e.Header == nil {
		e.Header = d.Header
	}
	if e.HeaderPattern == "" {
		e.HeaderPattern = d.HeaderPattern
	}
	return e
}

// DefaultScenarios returns the built-in scenarios in run order. Pool scenarios
// navigate away from the swap screen and therefore run last.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Group: "swap-page", Name: "title", Run: checkTitle},
		{Group: "swap-page", Name: "url", Run: checkSwapURL},
		{Group: "swap-page", Name: "card-content", Run: checkSwapCard},
		{Group: "swap-page", Name: "header-content", Run: checkHeader},
		{Group: "swap-page", Name: "footer-content", Run: checkFooter},
		{Group: "swap", Name: "buy-token", Run: func(ctx context.Context, f *Fixture, c *Checker) error {
			return swap(ctx, f, false)
		}},
		{Group: "swap", Name: "sell-token", Run: func(ctx context.Context, f *Fixture, c *Checker) error {
			return swap(ctx, f, true)
		}},
		{Group: "pool-page", Name: "title", Run: inPool(checkTitle)},
		{Group: "pool-page", Name: "url", Run: inPool(checkPoolURL)},
		{Group: "pool-page", Name: "positions", Run: inPool(countPositions)},
	}
}

func checkTitle(ctx context.Context, f *Fixture, c *Checker) error {
	title, err := f.Page().Title()
	if err != nil {
		return err
	}
	assert.Contains(c, title, f.Expect.Title, "page title")
	return nil
}

func checkSwapURL(ctx context.Context, f *Fixture, c *Checker) error {
	return matchURL(f, c, f.Expect.SwapURLPattern)
}

func checkPoolURL(ctx context.Context, f *Fixture, c *Checker) error {
	return matchURL(f, c, f.Expect.PoolURLPattern)
}

func matchURL(f *Fixture, c *Checker, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid URL pattern %q: %w", pattern, err)
	}
	assert.Regexp(c, re, f.Page().URL(), "page URL")
	return nil
}

func checkSwapCard(ctx context.Context, f *Fixture, c *Checker) error {
	body, err := f.Swap.CardBodyText()
	if err != nil {
		return err
	}
	header, err := f.Swap.CardHeaderText()
	if err != nil {
		return err
	}

	for _, want := range f.Expect.CardBody {
		assert.Contains(c, body, want, "swap card body")
	}
	for _, want := range f.Expect.CardHeader {
		assert.Contains(c, header, want, "swap card header")
	}
	assert.True(c, f.Swap.SwitchVisible(), "switch button visible")
	assert.True(c, f.Swap.SwapButtonVisible(), "swap button visible")
	return nil
}

func checkHeader(ctx context.Context, f *Fixture, c *Checker) error {
	header, err := f.Swap.HeaderText()
	if err != nil {
		return err
	}
	for _, want := range f.Expect.Header {
		assert.Contains(c, header, want, "site header")
	}
	if f.Expect.HeaderPattern != "" {
		assert.Regexp(c, regexp.MustCompile("(?i)"+f.Expect.HeaderPattern), header, "site header")
	}
	return nil
}

func checkFooter(ctx context.Context, f *Fixture, c *Checker) error {
	footer, err := f.Swap.FooterText()
	if err != nil {
		return err
	}
	f.Logger.Infof("Footer: %s", footer)
	return nil
}

func swap(ctx context.Context, f *Fixture, reverse bool) error {
	req := dex.SwapRequest{Token: f.Expect.SwapToken, Amount: f.Expect.SwapAmount, Reverse: reverse}
	return f.Swap.Swap(ctx, f.Wallet, f.Popups, req)
}

func countPositions(ctx context.Context, f *Fixture, c *Checker) error {
	n, err := f.Pool.Positions(ctx)
	if err != nil {
		return err
	}
	f.Logger.Infof("Number of positions: %d", n)
	return nil
}

func inPool(run func(context.Context, *Fixture, *Checker) error) func(context.Context, *Fixture, *Checker) error {
	return func(ctx context.Context, f *Fixture, c *Checker) error {
		if err := f.OpenPool(); err != nil {
			return err
		}
		return run(ctx, f, c)
	}
}
