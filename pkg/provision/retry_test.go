package provision

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	calls := 0
	boom := errors.New("boom")

	_, err := RetryWithBackoff(ctx, "create user", func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	}, 3, time.Millisecond, nil)

	if calls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", calls)
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Expected classified error, got %v", err)
	}
	if perr.Class != ClassRetryExhausted {
		t.Errorf("Expected retry_exhausted, got %s", perr.Class)
	}
	if perr.Attempts != 3 {
		t.Errorf("Expected attempt count 3, got %d", perr.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Error("Expected final error to wrap the last underlying failure")
	}
}

func TestRetryWithBackoff_SucceedsOnThirdAttempt(t *testing.T) {
	ctx := context.Background()
	calls := 0
	delay := 20 * time.Millisecond

	start := time.Now()
	result, err := RetryWithBackoff(ctx, "create user", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewDirectoryError("service unavailable", http.StatusServiceUnavailable, "", nil)
		}
		return "user-id", nil
	}, 5, delay, nil)

	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if result != "user-id" {
		t.Errorf("Expected user-id, got %q", result)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	// Two inter-attempt waits should have elapsed.
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("Expected at least %s elapsed, got %s", 2*delay, elapsed)
	}
}

func TestRetryWithBackoff_NonRetryableAbortsImmediately(t *testing.T) {
	ctx := context.Background()
	calls := 0

	_, err := RetryWithBackoff(ctx, "create app", func(ctx context.Context) (string, error) {
		calls++
		return "", NewDirectoryError("bad request", http.StatusBadRequest, "Request_BadRequest", nil)
	}, 5, time.Millisecond, nil)

	if calls != 1 {
		t.Errorf("Client errors must not retry, got %d attempts", calls)
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Class != ClassDirectoryAPI {
		t.Errorf("Expected the directory error unchanged, got %v", err)
	}
}

func TestRetryWithBackoff_NotifyCountdown(t *testing.T) {
	ctx := context.Background()
	var notified []int

	_, _ = RetryWithBackoff(ctx, "op", func(ctx context.Context) (int, error) {
		return 0, errors.New("nope")
	}, 3, time.Millisecond, func(attempt, maxAttempts int, remaining time.Duration) {
		notified = append(notified, attempt)
		if maxAttempts != 3 {
			t.Errorf("Expected budget 3 in notification, got %d", maxAttempts)
		}
	})

	// Notifications happen before each wait: attempts 1 and 2 but not the last.
	if len(notified) != 2 || notified[0] != 1 || notified[1] != 2 {
		t.Errorf("Expected notifications for attempts [1 2], got %v", notified)
	}
}

func TestPollUntil_ReadyOnSecondAttempt(t *testing.T) {
	ctx := context.Background()
	calls := 0

	result, ready, err := PollUntil(ctx, func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewNotFoundError("application")
		}
		return "app-object-id", nil
	}, func(s string) bool { return s != "" }, 5, time.Millisecond)

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !ready {
		t.Fatal("Expected readiness on second attempt")
	}
	if result != "app-object-id" {
		t.Errorf("Expected app-object-id, got %q", result)
	}
}

func TestPollUntil_TimeoutIsNotAnError(t *testing.T) {
	ctx := context.Background()

	_, ready, err := PollUntil(ctx, func(ctx context.Context) (string, error) {
		return "", NewNotFoundError("application")
	}, func(s string) bool { return s != "" }, 3, time.Millisecond)

	if err != nil {
		t.Errorf("Timeout must not raise, got %v", err)
	}
	if ready {
		t.Error("Expected not-ready sentinel on timeout")
	}
}

func TestPollUntil_CancelsWithinOneTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := PollUntil(ctx, func(ctx context.Context) (string, error) {
		return "", NewNotFoundError("application")
	}, func(s string) bool { return s != "" }, 10, 10*time.Second)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	// The wait is sliced into one-second ticks; cancellation must land
	// within a tick, far before the full 10s delay.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Cancellation took %s, expected within one tick", elapsed)
	}
}

func TestSleepCancellable_FullDuration(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	if err := sleepCancellable(ctx, 30*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Expected full sleep, got %s", elapsed)
	}
}
