package browser

import (
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
)

const clearStorageScript = `() => { localStorage.clear(); sessionStorage.clear(); }`

var webOrigin = regexp.MustCompile(`^https?:`)

// isWebOrigin reports whether url belongs to a regular web origin whose
// storage can be cleared.
func isWebOrigin(url string) bool {
	return webOrigin.MatchString(url)
}

// millis converts d to the float milliseconds Playwright expects.
func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d) / float64(time.Millisecond))
}
