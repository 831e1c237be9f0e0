package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"reviewtrends/internal/categorize"
	"reviewtrends/internal/integrations/llm"
	"reviewtrends/internal/trends"
)

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type TrendOutcome struct {
	Product string
	Path    string
	Topics  int
	Dates   int
	Err     error
}

type Result struct {
	Days   []categorize.DayOutcome
	Trends []TrendOutcome
	Usage  string
}

// Pipeline categorizes every pending day and then rebuilds each product's
// trend table.
type Pipeline struct {
	Runner     *categorize.Runner
	Aggregator *trends.Aggregator
	Notifier   Notifier
	Usage      *llm.UsageTotals
}

func (p *Pipeline) Run(ctx context.Context, filter categorize.Filter) (Result, error) {
	var res Result
	outcomes, err := p.Runner.RunAll(ctx, filter)
	res.Days = outcomes
	if err != nil {
		return res, err
	}

	products, err := p.Runner.Products(filter)
	if err != nil {
		return res, fmt.Errorf("listing products: %w", err)
	}
	for _, product := range products {
		path, m, err := p.Aggregator.Run(ctx, product)
		if err != nil {
			log.Printf("pipeline trends product=%s err=%v", product, err)
		}
		res.Trends = append(res.Trends, TrendOutcome{Product: product, Path: path, Topics: len(m.Topics), Dates: len(m.Dates), Err: err})
	}
	if p.Usage != nil {
		res.Usage = p.Usage.String()
	}

	summary := FormatSummary(res)
	log.Printf("pipeline complete: %s", strings.ReplaceAll(summary, "\n", " | "))
	if p.Notifier != nil {
		if err := p.Notifier.Notify(ctx, "Review trends run complete:\n"+summary); err != nil {
			log.Printf("pipeline notify error: %v", err)
		}
	}
	return res, nil
}

// FormatSummary returns a human-readable summary of a Result.
func FormatSummary(r Result) string {
	if len(r.Days) == 0 && len(r.Trends) == 0 {
		return "No review files to process."
	}

	var assigned, dropped, skipped, newTopics, fallback int
	var failed []string
	for _, d := range r.Days {
		if d.Err != nil {
			failed = append(failed, fmt.Sprintf("%s %s: %v", d.Result.Product, d.Result.Date, d.Err))
			continue
		}
		assigned += d.Result.Assigned
		dropped += d.Result.Dropped
		skipped += d.Result.SkippedBatches
		newTopics += d.Result.NewTopics
		fallback += d.Result.FallbackCalls
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("%d days processed (%d failed): %d reviews assigned, %d new topics, %d dropped, %d batches skipped, %d fallback calls",
		len(r.Days), len(failed), assigned, newTopics, dropped, skipped, fallback))
	for _, t := range r.Trends {
		if t.Err != nil {
			lines = append(lines, fmt.Sprintf("%s trend table failed: %v", t.Product, t.Err))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s trend table: %d topics x %d dates (%s)", t.Product, t.Topics, t.Dates, t.Path))
	}
	if len(failed) > 0 {
		lines = append(lines, "Failed days:")
		lines = append(lines, failed...)
	}
	if r.Usage != "" {
		lines = append(lines, "Usage: "+r.Usage)
	}
	return strings.Join(lines, "\n")
}
