package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diagnosis/onboarding/internal/domain"
	"github.com/diagnosis/onboarding/pkg/config"
)

type fakeChecker struct {
	appearAt int // check number on which the record becomes visible; 0 = never
	checks   int
	err      error
}

func (f *fakeChecker) ExistsWithType(_ context.Context, _ int64, _ string) (bool, error) {
	f.checks++
	if f.err != nil {
		return false, f.err
	}
	return f.appearAt > 0 && f.checks >= f.appearAt, nil
}

func newTestWatcher(checker RecordChecker, maxAttempts int) (*Watcher, *[]time.Duration) {
	w := NewWatcher(checker, config.ProvisioningConfig{
		MaxAttempts:  maxAttempts,
		PollInterval: time.Second,
		MaxInterval:  3 * time.Second,
	})

	var waits []time.Duration
	w.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return w, &waits
}

func TestWatcherReadyOnFirstSighting(t *testing.T) {
	checker := &fakeChecker{appearAt: 3}
	w, waits := newTestWatcher(checker, 10)

	state, attempts := w.Wait(context.Background(), 1)
	if state != domain.StateReady {
		t.Errorf("expected ready, got %s", state)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(*waits) != 2 {
		t.Errorf("expected 2 waits before the third check, got %d", len(*waits))
	}
}

func TestWatcherExhaustsBudget(t *testing.T) {
	checker := &fakeChecker{}
	w, waits := newTestWatcher(checker, 12)

	state, attempts := w.Wait(context.Background(), 1)
	if state != domain.StateNeedsRepair {
		t.Errorf("expected needs-repair, got %s", state)
	}
	if attempts != 12 {
		t.Errorf("expected the full attempt budget, got %d", attempts)
	}
	if checker.checks != 12 {
		t.Errorf("expected 12 checks, got %d", checker.checks)
	}
	// No wait after the final check: the bound is a hard contract.
	if len(*waits) != 11 {
		t.Errorf("expected 11 waits, got %d", len(*waits))
	}
}

func TestWatcherBackoffIsCapped(t *testing.T) {
	checker := &fakeChecker{}
	w, waits := newTestWatcher(checker, 10)

	w.Wait(context.Background(), 1)

	for i, d := range *waits {
		if d > 3*time.Second {
			t.Errorf("wait %d exceeded cap: %s", i, d)
		}
	}
	// The first four ticks poll at the base interval.
	for i := 0; i < 4 && i < len(*waits); i++ {
		if (*waits)[i] != time.Second {
			t.Errorf("early wait %d should be 1s, got %s", i, (*waits)[i])
		}
	}
}

func TestWatcherCancellation(t *testing.T) {
	checker := &fakeChecker{}
	w := NewWatcher(checker, config.ProvisioningConfig{
		MaxAttempts:  10,
		PollInterval: time.Second,
		MaxInterval:  3 * time.Second,
	})

	cancelled := errors.New("cancelled")
	w.wait = func(ctx context.Context, _ time.Duration) error {
		return cancelled
	}

	state, attempts := w.Wait(context.Background(), 1)
	if state != domain.StateFailed {
		t.Errorf("expected failed on cancellation, got %s", state)
	}
	if attempts != 1 {
		t.Errorf("expected to stop after the first tick, got %d", attempts)
	}
	if checker.checks != 1 {
		t.Errorf("cancellation must stop further checks, got %d", checker.checks)
	}
}

func TestWatcherTerminatesInWallClockBudget(t *testing.T) {
	checker := &fakeChecker{}
	w := NewWatcher(checker, config.ProvisioningConfig{
		MaxAttempts:  5,
		PollInterval: time.Millisecond,
		MaxInterval:  2 * time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		w.Wait(context.Background(), 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not terminate within its budget")
	}
}

func TestWatcherTreatsCheckErrorsAsMisses(t *testing.T) {
	checker := &fakeChecker{err: errors.New("db down")}
	w, _ := newTestWatcher(checker, 3)

	state, attempts := w.Wait(context.Background(), 1)
	if state != domain.StateNeedsRepair {
		t.Errorf("expected needs-repair when checks keep failing, got %s", state)
	}
	if attempts != 3 {
		t.Errorf("expected full budget despite errors, got %d", attempts)
	}
}
