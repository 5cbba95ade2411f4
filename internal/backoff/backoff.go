// Package backoff defines the retry schedule shared by every simulation phase.
package backoff

import (
	"time"

	"github.com/torosent/ga4sim/internal/failure"
)

const (
	// MaxAttempts is the total number of attempts a phase gets, including the first.
	MaxAttempts = 3
	// BaseDelay is the wait after the first failed attempt.
	BaseDelay = 500 * time.Millisecond
)

// Policy maps attempt numbers to wait durations and errors to retry classes.
// The zero value uses BaseDelay and MaxAttempts.
type Policy struct {
	Base        time.Duration
	MaxAttempts int
}

// Default returns the fixed phase policy: 0.5s, 1s, 2s over three attempts.
func Default() Policy {
	return Policy{Base: BaseDelay, MaxAttempts: MaxAttempts}
}

// NextDelay returns the wait after the given 1-based failed attempt.
// It doubles from the base delay and never decreases.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.Base
	if base <= 0 {
		base = BaseDelay
	}
	// Cap the shift so large attempt numbers cannot overflow.
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	return base * time.Duration(1<<uint(shift))
}

// Attempts returns the attempt budget.
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return MaxAttempts
	}
	return p.MaxAttempts
}

// Classify reports whether err is eligible for retry.
func (Policy) Classify(err error) failure.Class {
	return failure.Classify(err)
}
