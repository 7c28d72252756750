package provision

import (
	"context"
	"time"
)

// retry tick granularity. Waits are sliced into ticks so cancellation takes
// effect within one tick, not one full delay.
const waitTick = time.Second

// RetryNotify is invoked before each retry wait with the failed attempt
// number, the attempt budget, and the remaining delay. The sequencer wires
// this to the event sink so the operator sees a countdown.
type RetryNotify func(attempt, maxAttempts int, remaining time.Duration)

// RetryWithBackoff invokes op up to maxAttempts times with a fixed delay
// between attempts. On exhaustion it returns a retry-exhausted error wrapping
// the last underlying failure and the attempt count. Non-retryable failures
// abort immediately.
func RetryWithBackoff[T any](ctx context.Context, operation string, op func(ctx context.Context) (T, error), maxAttempts int, delay time.Duration, notify RetryNotify) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}
		if notify != nil {
			notify(attempt, maxAttempts, delay)
		}
		if err := sleepCancellable(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, NewRetryExhaustedError(operation, maxAttempts, lastErr)
}

// PollUntil invokes check until isReady reports the result usable, up to
// maxAttempts with a fixed inter-attempt delay. It returns (result, true) on
// readiness and (zero, false) on timeout; timeout is a signal, not an error,
// and the caller decides fatality. Errors from check itself propagate.
func PollUntil[T any](ctx context.Context, check func(ctx context.Context) (T, error), isReady func(T) bool, maxAttempts int, delay time.Duration) (T, bool, error) {
	var zero T

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := check(ctx)
		if err != nil && !IsNotFound(err) {
			return zero, false, err
		}
		if err == nil && isReady(result) {
			return result, true, nil
		}
		if attempt == maxAttempts {
			break
		}
		if err := sleepCancellable(ctx, delay); err != nil {
			return zero, false, err
		}
	}

	return zero, false, nil
}

// sleepCancellable sleeps for d, waking at every tick to honor cancellation.
func sleepCancellable(ctx context.Context, d time.Duration) error {
	for remaining := d; remaining > 0; remaining -= waitTick {
		tick := waitTick
		if remaining < tick {
			tick = remaining
		}
		timer := time.NewTimer(tick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
