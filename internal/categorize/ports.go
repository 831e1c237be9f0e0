package categorize

import (
	"context"

	"reviewtrends/internal/domain"
)

// Provider classifies a batch of reviews against the current topics. It
// returns exactly one proposal per review, in input order.
type Provider interface {
	Name() string
	Classify(ctx context.Context, batch []string, existing []domain.Topic) ([]domain.Proposal, error)
}

type Validator interface {
	Validate(ctx context.Context, proposed, review string, existing []domain.Topic) (domain.Verdict, error)
}

type Canonicalizer interface {
	Canonicalize(ctx context.Context, proposed, review string) (domain.Topic, error)
}

// Store is the per-product, per-day persistence the engine reads and writes.
// LoadRegistry returns an empty registry when none has been saved yet.
type Store interface {
	ListReviewDays() ([]domain.ReviewDay, error)
	LoadReviews(product, date string) ([]domain.Review, error)
	LoadRegistry(product string) (*domain.Registry, error)
	SaveRegistry(product string, registry *domain.Registry) error
	SaveAssignments(product, date string, assignments []domain.Assignment) error
	SaveCounts(product string, counts domain.DailyCounts) error
}

// Recorder is an optional audit sink for day runs. Its failures are logged
// and never fail the run.
type Recorder interface {
	StartRun(ctx context.Context, product, date string) (string, error)
	RecordEvent(ctx context.Context, event domain.RunEvent) error
	// RecordAssignments replaces whatever was recorded for product and date.
	RecordAssignments(ctx context.Context, product, date string, records []domain.ClassificationRecord) error
	FinishRun(ctx context.Context, summary domain.RunSummary) error
}

// Completions answers whether a day already finished successfully.
type Completions interface {
	DayCompleted(ctx context.Context, product, date string) (bool, error)
}
