package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrTooManyAttempts = errors.New("too many retry attempts")

// Callable is called once per attempt, attempts are counted from 1
type Callable func(attempt int) error

// NotifyFunc is told about a failed attempt before waiting for the next one
type NotifyFunc func(attempt int, wait time.Duration, err error)

// recoverable marks an error as worth another attempt, any other error
// returned by a Callable ends the loop right away
type recoverable struct {
	error
}

func (e *recoverable) Unwrap() error { return e.error }

// Error marks err as recoverable
func Error(err error) error {
	if err == nil {
		return nil
	}

	return &recoverable{error: err}
}

// Backoff waits one more Step after every failed attempt
// and gives up after MaxAttempts
type Backoff struct {
	Step        time.Duration
	MaxAttempts int
	Notify      NotifyFunc
}

// Run calls cb until it succeeds, fails with an unrecoverable error,
// runs out of attempts or the context is done
func (b Backoff) Run(ctx context.Context, cb Callable) error {
	maxAttempts := b.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var wait time.Duration
	for attempt := 1; ; attempt++ {
		err := cb(attempt)
		if err == nil {
			return nil
		}

		var r *recoverable
		if !errors.As(err, &r) {
			return errors.Wrapf(err, "attempt %d failed", attempt)
		}

		if attempt >= maxAttempts {
			return errors.Wrapf(ErrTooManyAttempts, "%d attempt(s), last error: %v", attempt, r.error)
		}

		wait += b.Step
		if b.Notify != nil {
			b.Notify(attempt, wait, r.error)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "gave up after attempt %d: %v", attempt, r.error)
		case <-timer.C:
		}
	}
}
