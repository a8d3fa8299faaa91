package provision

import (
	"context"
	"time"

	"github.com/diagnosis/onboarding/internal/domain"
	"github.com/diagnosis/onboarding/pkg/config"
	"github.com/diagnosis/onboarding/pkg/logger"
)

// RecordChecker answers whether a provisioned business record with the
// expected account type exists yet for an identity.
type RecordChecker interface {
	ExistsWithType(ctx context.Context, identityID int64, accountType string) (bool, error)
}

// Watcher bridges the latency gap between "identity confirmed" and
// "business record materialized". It is a bounded polling loop: it either
// sees the record and reports ready, or exhausts its attempts and reports
// needs-repair. It never blocks past maxAttempts, and cancelling the
// context stops it between ticks.
type Watcher struct {
	checker     RecordChecker
	accountType string
	maxAttempts int
	interval    time.Duration
	maxInterval time.Duration

	// wait is replaceable in tests so the loop runs without real timers.
	wait func(ctx context.Context, d time.Duration) error
}

func NewWatcher(checker RecordChecker, cfg config.ProvisioningConfig) *Watcher {
	return &Watcher{
		checker:     checker,
		accountType: domain.AccountTypeClient,
		maxAttempts: cfg.MaxAttempts,
		interval:    cfg.PollInterval,
		maxInterval: cfg.MaxInterval,
		wait:        sleepContext,
	}
}

// Wait polls until the business record appears, the attempt budget runs
// out, or ctx is cancelled. The returned attempt count is how many checks
// actually ran.
func (w *Watcher) Wait(ctx context.Context, identityID int64) (domain.ProvisioningState, int) {
	interval := w.interval

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		exists, err := w.checker.ExistsWithType(ctx, identityID, w.accountType)
		if err != nil {
			// A transient read failure is just a missed tick.
			logger.WarnContext(ctx, "Provisioning check failed", "error", err, "identity_id", identityID, "attempt", attempt)
		}
		if exists {
			return domain.StateReady, attempt
		}

		if attempt == w.maxAttempts {
			return domain.StateNeedsRepair, attempt
		}

		// Light backoff: double after the fifth attempt, capped.
		if attempt >= 5 {
			interval *= 2
			if interval > w.maxInterval {
				interval = w.maxInterval
			}
		}

		if err := w.wait(ctx, interval); err != nil {
			return domain.StateFailed, attempt
		}
	}

	return domain.StateNeedsRepair, w.maxAttempts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
