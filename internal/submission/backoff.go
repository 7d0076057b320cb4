package submission

import (
	"context"
	"time"
)

// Backoff computes the delay before each poll:
// min(Base × min(attempt, CapAttempts), Max)
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	CapAttempts int
}

// DefaultBackoff yields 2s, 4s, 6s, 8s, 10s, 10s, ...
var DefaultBackoff = Backoff{
	Base:        2 * time.Second,
	Max:         10 * time.Second,
	CapAttempts: 5,
}

// DefaultMaxAttempts bounds how many non-terminal results are tolerated
const DefaultMaxAttempts = 20

// Delay returns the wait after the given attempt (1-based)
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := attempt
	if b.CapAttempts > 0 && mult > b.CapAttempts {
		mult = b.CapAttempts
	}
	delay := b.Base * time.Duration(mult)
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the timer-backed Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
