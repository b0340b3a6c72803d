package suite

import (
	"fmt"
	"strings"
	"sync"
)

// Checker collects soft assertion failures for one scenario. It satisfies
// testify's assert.TestingT, so assertions keep running after a failure and
// the scenario fails once it returns.
type Checker struct {
	mu       sync.Mutex
	failures []string
}

// Errorf records a failed assertion.
func (c *Checker) Errorf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, compact(fmt.Sprintf(format, args...)))
}

// Failed reports whether any assertion failed.
func (c *Checker) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failures) > 0
}

// Failures returns the recorded failure messages.
func (c *Checker) Failures() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.failures...)
}

// compact drops testify's "Error Trace" block, which points into this
// package rather than at the page under test, and trims the layout.
func compact(msg string) string {
	var kept []string
	skipping := false
	for _, line := range strings.Split(msg, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Error Trace:"):
			skipping = true
			continue
		case strings.HasPrefix(trimmed, "Error:"), strings.HasPrefix(trimmed, "Messages:"):
			skipping = false
		}
		if skipping || trimmed == "" {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, " ")
}
