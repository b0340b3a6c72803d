// Package extension identifies the wallet extension and classifies the pages it
// hosts.
package extension

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Scheme is the URL scheme of extension-hosted pages.
const Scheme = "chrome-extension://"

// DefaultHomePatterns match the extension's home and onboarding page, which is
// never treated as a popup.
var DefaultHomePatterns = []string{
	Scheme + "*/home.html",
	Scheme + "*/home.html#*",
	Scheme + `*/home.html\?*`,
}

var idPattern = regexp.MustCompile(`^chrome-extension://([a-z]+)/`)

// ExtensionIDError reports that no extension identifier could be parsed from
// the background worker URL.
type ExtensionIDError struct {
	WorkerURL string
	Cause     error
}

func (e *ExtensionIDError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to resolve extension id from service worker %q: %v", e.WorkerURL, e.Cause)
	}
	return fmt.Sprintf("failed to resolve extension id from service worker %q", e.WorkerURL)
}

func (e *ExtensionIDError) Unwrap() error {
	return e.Cause
}

// ResolveID extracts the extension identifier from a background worker URL
// such as chrome-extension://nkbihfbeogaeaoehlefnkodbefgpgknn/scripts/app-init.js.
func ResolveID(workerURL string) (string, error) {
	m := idPattern.FindStringSubmatch(workerURL)
	if m == nil {
		return "", &ExtensionIDError{WorkerURL: workerURL}
	}
	return m[1], nil
}

// HomeURL returns the URL of the extension's home page.
func HomeURL(id string) string {
	return Scheme + id + "/home.html"
}

// Classifier decides which open pages are extension popups.
type Classifier struct {
	home []glob.Glob
}

// NewClassifier compiles home-page patterns. With no patterns,
// DefaultHomePatterns are used.
func NewClassifier(homePatterns ...string) (*Classifier, error) {
	if len(homePatterns) == 0 {
		homePatterns = DefaultHomePatterns
	}

	c := &Classifier{}
	for _, pattern := range homePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid home page pattern %q: %w", pattern, err)
		}
		c.home = append(c.home, g)
	}
	return c, nil
}

// MustClassifier is NewClassifier that panics on an invalid pattern.
func MustClassifier(homePatterns ...string) *Classifier {
	c, err := NewClassifier(homePatterns...)
	if err != nil {
		panic(err)
	}
	return c
}

// IsExtensionPage reports whether url is hosted by an extension.
func (c *Classifier) IsExtensionPage(url string) bool {
	return strings.HasPrefix(url, Scheme)
}

// IsHome reports whether url is the extension's home or onboarding page.
func (c *Classifier) IsHome(url string) bool {
	if !c.IsExtensionPage(url) {
		return false
	}
	for _, g := range c.home {
		if g.Match(url) {
			return true
		}
	}
	return false
}

// IsPopup reports whether url is an extension page other than the home page.
func (c *Classifier) IsPopup(url string) bool {
	return c.IsExtensionPage(url) && !c.IsHome(url)
}
