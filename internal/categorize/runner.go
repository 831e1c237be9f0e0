package categorize

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"reviewtrends/internal/domain"
)

// Filter narrows a multi-day run. Empty fields match everything; From and To
// are inclusive YYYY-MM-DD bounds. PendingOnly drops days the runner's
// Completions already reports as done.
type Filter struct {
	Product     string
	From        string
	To          string
	PendingOnly bool
}

func (f Filter) match(day domain.ReviewDay) bool {
	if f.Product != "" && day.Product != f.Product {
		return false
	}
	if f.From != "" && day.Date < f.From {
		return false
	}
	if f.To != "" && day.Date > f.To {
		return false
	}
	return true
}

type DayOutcome struct {
	Result DayResult
	Err    error
}

// Runner drives the engine over every discovered day, one at a time.
type Runner struct {
	Engine      *Engine
	Completions Completions
	DayDelay    time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// RunAll processes products in name order and each product's days in date
// order. A failed day is logged and the next one still runs. The returned
// error is non-nil only when discovery or the completion lookup fails, or
// ctx is cancelled.
func (r *Runner) RunAll(ctx context.Context, filter Filter) ([]DayOutcome, error) {
	days, err := r.Engine.Store.ListReviewDays()
	if err != nil {
		return nil, fmt.Errorf("listing review files: %w", err)
	}
	days = planDays(days, filter)
	if filter.PendingOnly {
		if days, err = r.pending(ctx, days); err != nil {
			return nil, err
		}
	}
	if len(days) == 0 {
		log.Printf("categorize no review files matched product=%q from=%q to=%q", filter.Product, filter.From, filter.To)
		return nil, nil
	}

	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	outcomes := make([]DayOutcome, 0, len(days))
	for i, day := range days {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		log.Printf("categorize day-start product=%s date=%s (%d/%d)", day.Product, day.Date, i+1, len(days))
		res, err := r.Engine.RunDay(ctx, DayRequest{Product: day.Product, Date: day.Date})
		switch {
		case IsMissingInput(err):
			log.Printf("categorize day-missing-input product=%s date=%s err=%v", day.Product, day.Date, err)
		case err != nil:
			log.Printf("categorize day-failed product=%s date=%s err=%v", day.Product, day.Date, err)
		}
		outcomes = append(outcomes, DayOutcome{Result: res, Err: err})

		if i < len(days)-1 && r.DayDelay > 0 {
			log.Printf("categorize waiting %s before next day", r.DayDelay)
			if err := sleep(ctx, r.DayDelay); err != nil {
				return outcomes, err
			}
		}
	}
	return outcomes, nil
}

// pending drops the days that already completed.
func (r *Runner) pending(ctx context.Context, days []domain.ReviewDay) ([]domain.ReviewDay, error) {
	if r.Completions == nil {
		return days, nil
	}
	out := days[:0]
	for _, day := range days {
		done, err := r.Completions.DayCompleted(ctx, day.Product, day.Date)
		if err != nil {
			return nil, fmt.Errorf("checking %s %s: %w", day.Product, day.Date, err)
		}
		if done {
			log.Printf("categorize skip-completed product=%s date=%s", day.Product, day.Date)
			continue
		}
		out = append(out, day)
	}
	return out, nil
}

// Products lists the distinct products that have review files.
func (r *Runner) Products(filter Filter) ([]string, error) {
	days, err := r.Engine.Store.ListReviewDays()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var products []string
	for _, d := range planDays(days, filter) {
		if !seen[d.Product] {
			seen[d.Product] = true
			products = append(products, d.Product)
		}
	}
	return products, nil
}

func planDays(days []domain.ReviewDay, filter Filter) []domain.ReviewDay {
	out := make([]domain.ReviewDay, 0, len(days))
	for _, d := range days {
		if filter.match(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Product != out[j].Product {
			return out[i].Product < out[j].Product
		}
		return out[i].Date < out[j].Date
	})
	return out
}
