// Package retry implements the bounded polling helper used by the draw
// orchestrator, the transaction confirmation wait, and the client resolver.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBudgetExhausted is returned when every attempt completed without the
// condition being met. Callers treat it as "try again later", never as a
// reason to force state.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// Poll invokes fn up to attempts times, waiting interval between calls.
// fn reports done=true to stop early. A non-nil error from fn aborts the
// loop only when fatal; transient errors are swallowed so an RPC hiccup
// does not consume the whole budget's worth of signal.
func Poll(ctx context.Context, attempts int, interval time.Duration, fn func(ctx context.Context) (done bool, err error)) error {
	if attempts <= 0 {
		return fmt.Errorf("attempts must be positive, got %d", attempts)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		done, err := fn(ctx)
		if done {
			return nil
		}
		if err != nil {
			if IsFatal(err) {
				return err
			}
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w: last error: %v", ErrBudgetExhausted, lastErr)
	}
	return ErrBudgetExhausted
}

type fatalError struct{ err error }

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

// Fatal marks an error so Poll stops retrying immediately.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

// IsFatal reports whether err was wrapped with Fatal.
func IsFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}
