package driver

import (
	"fmt"
	"regexp"
)

// SelectorKind identifies how a Selector finds elements.
type SelectorKind string

const (
	// KindCSS matches a CSS or XPath selector
	KindCSS SelectorKind = "css"

	// KindRole matches an ARIA role whose accessible name matches Name
	KindRole SelectorKind = "role"

	// KindLabel matches form controls by their label text
	KindLabel SelectorKind = "label"
)

// Selector describes an element lookup independent of the automation library.
type Selector struct {
	Kind SelectorKind

	// Value is the CSS expression, the ARIA role, or the label text
	Value string

	// Name is a case-insensitive regular expression for the accessible name
	// (KindRole only). Empty matches any name.
	Name string

	// HasText narrows a CSS selector to elements containing the text
	HasText string

	// Exact requires exact label text (KindLabel only)
	Exact bool

	// First narrows the match to the first element
	First bool
}

// CSS returns a selector for a CSS or XPath expression.
func CSS(expr string) Selector {
	return Selector{Kind: KindCSS, Value: expr}
}

// Role returns a selector for an ARIA role whose accessible name matches the
// case-insensitive pattern.
func Role(role, namePattern string) Selector {
	return Selector{Kind: KindRole, Value: role, Name: namePattern}
}

// Button is shorthand for Role("button", namePattern).
func Button(namePattern string) Selector {
	return Role("button", namePattern)
}

// Label returns a selector for a control labelled by text (substring match).
func Label(text string) Selector {
	return Selector{Kind: KindLabel, Value: text}
}

// WithText narrows a CSS selector to elements containing text.
func (s Selector) WithText(text string) Selector {
	s.HasText = text
	return s
}

// FirstMatch narrows the selector to its first match.
func (s Selector) FirstMatch() Selector {
	s.First = true
	return s
}

// NameRegexp compiles Name as a case-insensitive expression.
func (s Selector) NameRegexp() (*regexp.Regexp, error) {
	if s.Name == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + s.Name)
	if err != nil {
		return nil, fmt.Errorf("invalid name pattern %q: %w", s.Name, err)
	}
	return re, nil
}

// String renders the selector in a stable form used for logging and as a
// lookup key by the fakes.
func (s Selector) String() string {
	var out string
	switch s.Kind {
	case KindRole:
		out = fmt.Sprintf("role=%s[name=/%s/i]", s.Value, s.Name)
	case KindLabel:
		if s.Exact {
			out = fmt.Sprintf("label=%q", s.Value)
		} else {
			out = fmt.Sprintf("label=%s", s.Value)
		}
	default:
		out = s.Value
	}
	if s.HasText != "" {
		out += fmt.Sprintf(" >> has-text=%q", s.HasText)
	}
	if s.First {
		out += " >> first"
	}
	return out
}
