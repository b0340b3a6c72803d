// Package retry runs an attempt function a bounded number of times with a
// delay between attempts.
//
// It is the one retry loop shared by wallet unlock, transaction confirmation,
// popup focus stabilization and the suite's popup handling. The delay may grow
// geometrically (Factor > 1) or stay fixed (Factor 0 or 1).
package retry

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrExhausted is returned when every attempt ran without success.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the maximum number of attempts (minimum 1)
	Attempts int

	// Delay is the pause between attempts
	Delay time.Duration

	// Factor multiplies Delay after every attempt; 0 or 1 keeps it fixed
	Factor float64
}

// Fixed returns a policy with a constant delay.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay}
}

// MaxDelay is the total deliberate delay the policy can spend between
// attempts.
func (p Policy) MaxDelay() time.Duration {
	var total time.Duration
	b := p.backoff()
	for gaps := b.Steps - 1; gaps > 0; gaps-- {
		total += b.Step()
	}
	return total
}

func (p Policy) backoff() wait.Backoff {
	steps := p.Attempts
	if steps < 1 {
		steps = 1
	}
	factor := p.Factor
	if factor == 1 {
		factor = 0
	}
	return wait.Backoff{
		Duration: p.Delay,
		Factor:   factor,
		Steps:    steps,
	}
}

// AttemptFunc is one attempt. It returns done=true on success. A non-nil error
// stops the loop immediately; transient failures should be reported as
// (false, nil).
type AttemptFunc func(ctx context.Context, attempt int) (done bool, err error)

// Do runs fn until it succeeds, returns an error, the attempts run out, or ctx
// ends. It returns the number of attempts made alongside the outcome: nil on
// success, the error from fn, ctx.Err(), or ErrExhausted.
func Do(ctx context.Context, p Policy, fn AttemptFunc) (int, error) {
	var (
		attempts  int
		succeeded bool
		fatal     error
	)

	err := wait.ExponentialBackoffWithContext(ctx, p.backoff(), func(ctx context.Context) (bool, error) {
		attempts++
		done, err := fn(ctx, attempts)
		if err != nil {
			fatal = err
			return false, err
		}
		succeeded = done
		return done, nil
	})

	switch {
	case succeeded:
		return attempts, nil
	case fatal != nil:
		return attempts, fatal
	case ctx.Err() != nil:
		return attempts, ctx.Err()
	case err != nil && !wait.Interrupted(err):
		return attempts, err
	default:
		return attempts, ErrExhausted
	}
}
