package categorize

import (
	"context"
	"fmt"
	"log"
	"time"

	"reviewtrends/internal/domain"
)

// Failover runs the primary provider and, when it fails, a budgeted secondary.
// There are no retries: a batch both tiers cannot classify is skipped.
type Failover struct {
	Primary   Provider
	Secondary Provider // nil means no fallback
	Cooldown  time.Duration
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Classify returns the proposals and the name of the provider that produced
// them. A non-nil error means the caller must skip the batch.
func (f *Failover) Classify(ctx context.Context, batch []string, existing []domain.Topic, budget *Budget) ([]domain.Proposal, string, error) {
	proposals, err := f.Primary.Classify(ctx, batch, existing)
	if err == nil {
		return proposals, f.Primary.Name(), nil
	}
	primaryErr := fmt.Errorf("primary %s: %w", f.Primary.Name(), err)
	log.Printf("categorize primary-failed provider=%s reviews=%d err=%v", f.Primary.Name(), len(batch), err)

	if f.Secondary == nil {
		return nil, "", fmt.Errorf("%w; no fallback provider configured", primaryErr)
	}
	if err := budget.Take(); err != nil {
		log.Printf("categorize fallback-refused provider=%s used=%d max=%d", f.Secondary.Name(), budget.Used(), budgetMax(budget))
		return nil, "", fmt.Errorf("%w; fallback %s: %w", primaryErr, f.Secondary.Name(), err)
	}

	log.Printf("categorize fallback provider=%s reviews=%d call=%d remaining=%d", f.Secondary.Name(), len(batch), budget.Used(), budget.Remaining())
	proposals, err = f.Secondary.Classify(ctx, batch, existing)
	if err != nil {
		return nil, "", fmt.Errorf("%w; fallback %s: %w", primaryErr, f.Secondary.Name(), err)
	}

	if f.Cooldown > 0 {
		sleep := f.Sleep
		if sleep == nil {
			sleep = sleepContext
		}
		if err := sleep(ctx, f.Cooldown); err != nil {
			log.Printf("categorize fallback-cooldown interrupted: %v", err)
		}
	}
	return proposals, f.Secondary.Name(), nil
}

func budgetMax(b *Budget) int {
	if b == nil {
		return 0
	}
	return b.Max
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
