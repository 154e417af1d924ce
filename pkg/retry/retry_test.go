package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(), "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errors.New("flaky"))
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Errorf("unexpected result: %q", result)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 invocations, got %d", calls)
	}
}

func TestDoPermanentFailsImmediately(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), "op", func(ctx context.Context) (string, error) {
		calls++
		return "", Permanent(errors.New("bad request"))
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsPermanent(err) {
		t.Errorf("expected a permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent failure must not be retried, got %d invocations", calls)
	}
}

func TestDoExhaustionYieldsServiceUnavailable(t *testing.T) {
	calls := 0
	underlying := errors.New("still down")
	_, err := Do(context.Background(), fastPolicy(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, Transient(underlying)
	})
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if !IsUnavailable(err) {
		t.Fatalf("expected ServiceUnavailableError, got %v", err)
	}
	var ue *ServiceUnavailableError
	if !errors.As(err, &ue) {
		t.Fatal("errors.As failed for ServiceUnavailableError")
	}
	if ue.Attempts != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", ue.Attempts)
	}
	if !errors.Is(err, underlying) {
		t.Error("last underlying error should be wrapped")
	}
}

func TestDoTreatsUnclassifiedAsTransient(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("plain error")
	})
	if calls != 3 {
		t.Errorf("unclassified errors should be retried, got %d invocations", calls)
	}
	if !IsUnavailable(err) {
		t.Errorf("expected ServiceUnavailableError, got %v", err)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour, Multiplier: 2.0}

	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, "op", func(ctx context.Context) (int, error) {
			calls++
			return 0, Transient(errors.New("down"))
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt before cancellation, got %d", calls)
	}
}

func TestTransientNilPassthrough(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
