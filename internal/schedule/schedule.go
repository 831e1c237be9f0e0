package schedule

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse reads a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "0 6 * * *" for 6am daily.
func Parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	return parser.Parse(expr)
}

// Run calls job at every tick of expr in loc until ctx is done. Jobs never
// overlap: the next tick is computed after the previous job returns.
func Run(ctx context.Context, expr string, loc *time.Location, job func(context.Context)) error {
	sched, err := Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid schedule '%s': %w", expr, err)
	}
	if loc == nil {
		loc = time.Local
	}
	log.Printf("Pipeline scheduled (cron: %s, tz: %s)", expr, loc)

	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("Next pipeline run at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("Scheduler stopped: %v", ctx.Err())
			return ctx.Err()
		case <-timer.C:
		}
		job(ctx)
	}
}
