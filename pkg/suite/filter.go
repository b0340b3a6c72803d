package suite

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter selects scenarios by "group/name" globs. A scenario runs when it
// matches an include pattern (or there are none) and no exclude pattern.
type Filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewFilter compiles the include and exclude patterns. '/' separates the
// group from the name, so "swap/*" selects one group.
func NewFilter(include, exclude []string) (*Filter, error) {
	f := &Filter{}
	var err error
	if f.include, err = compileAll(include); err != nil {
		return nil, err
	}
	if f.exclude, err = compileAll(exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid scenario pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Match reports whether the scenario with the given ID is selected.
func (f *Filter) Match(id string) bool {
	if f == nil {
		return true
	}
	for _, g := range f.exclude {
		if g.Match(id) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(id) {
			return true
		}
	}
	return false
}

// Select returns the scenarios the filter matches, in order.
func (f *Filter) Select(scenarios []Scenario) []Scenario {
	var selected []Scenario
	for _, s := range scenarios {
		if f.Match(s.ID()) {
			selected = append(selected, s)
		}
	}
	return selected
}
