package categorize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"reviewtrends/internal/domain"
)

const (
	defaultBatchSize = 10
	excerptLen       = 80
)

// Engine categorizes one product's reviews for one day against its registry.
type Engine struct {
	Store            Store
	Failover         *Failover
	Validator        Validator
	Canonicalizer    Canonicalizer
	Recorder         Recorder
	BatchSize        int
	MaxFallbackCalls int
	Now              func() time.Time
}

type DayRequest struct {
	Product string
	Date    string
}

type DayResult struct {
	RunID          string
	Product        string
	Date           string
	Reviews        int
	Assigned       int
	SkippedBatches int
	SkippedReviews int
	Dropped        int
	NewTopics      int
	FallbackCalls  int
	Topics         int
}

// dayState is the record threaded through the stages. Each stage takes it by
// value and returns the updated copy.
type dayState struct {
	req         DayRequest
	runID       string
	reviews     []string
	registry    *domain.Registry
	budget      *Budget
	counts      domain.DailyCounts
	assignments []domain.Assignment
	records     []domain.ClassificationRecord
	result      DayResult
}

type stage struct {
	name string
	run  func(context.Context, dayState) (dayState, error)
}

// RunDay executes LOAD_REVIEWS, LOAD_OR_INIT_REGISTRY, CATEGORIZE_BATCHES and
// PERSIST in order. The first failing stage ends the day with its error; a
// day that fails before PERSIST leaves no files behind.
func (e *Engine) RunDay(ctx context.Context, req DayRequest) (DayResult, error) {
	st := dayState{
		req:    req,
		budget: NewBudget(e.MaxFallbackCalls),
		result: DayResult{Product: req.Product, Date: req.Date},
	}
	started := e.now()
	if e.Recorder != nil {
		runID, err := e.Recorder.StartRun(ctx, req.Product, req.Date)
		if err != nil {
			log.Printf("categorize ledger start-run product=%s date=%s err=%v", req.Product, req.Date, err)
		} else {
			st.runID = runID
			st.result.RunID = runID
			ctx = domain.ContextWithRunID(ctx, runID)
		}
	}

	stages := []stage{
		{"LOAD_REVIEWS", e.loadReviews},
		{"LOAD_OR_INIT_REGISTRY", e.loadRegistry},
		{"CATEGORIZE_BATCHES", e.categorizeBatches},
		{"PERSIST", e.persist},
	}
	var runErr error
	for _, s := range stages {
		next, err := s.run(ctx, st)
		if err != nil {
			runErr = fmt.Errorf("%s %s %s: %w", req.Product, req.Date, s.name, err)
			break
		}
		st = next
	}
	st.result.FallbackCalls = st.budget.Used()

	e.finishRun(ctx, st, started, runErr)
	if runErr != nil {
		return st.result, runErr
	}
	log.Printf("categorize day-done product=%s date=%s reviews=%d assigned=%d skipped_batches=%d dropped=%d new_topics=%d fallback_calls=%d",
		req.Product, req.Date, st.result.Reviews, st.result.Assigned, st.result.SkippedBatches, st.result.Dropped, st.result.NewTopics, st.result.FallbackCalls)
	return st.result, nil
}

// loadReviews reads req, writes reviews and result.Reviews.
func (e *Engine) loadReviews(_ context.Context, st dayState) (dayState, error) {
	reviews, err := e.Store.LoadReviews(st.req.Product, st.req.Date)
	if err != nil {
		return st, err
	}
	st.reviews = make([]string, 0, len(reviews))
	for i, r := range reviews {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			log.Printf("categorize skip-empty-review product=%s date=%s index=%d", st.req.Product, st.req.Date, i)
			continue
		}
		st.reviews = append(st.reviews, text)
	}
	st.result.Reviews = len(st.reviews)
	return st, nil
}

// loadRegistry reads req, writes registry and the zero-seeded counts.
func (e *Engine) loadRegistry(_ context.Context, st dayState) (dayState, error) {
	registry, err := e.Store.LoadRegistry(st.req.Product)
	if err != nil {
		return st, err
	}
	if registry == nil {
		registry = domain.NewRegistry()
	}
	st.registry = registry
	st.counts = domain.NewDailyCounts(st.req.Date, registry)
	return st, nil
}

// categorizeBatches reads reviews and registry; writes registry, counts,
// assignments, records and the result tallies.
func (e *Engine) categorizeBatches(ctx context.Context, st dayState) (dayState, error) {
	size := e.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	for start, batchIdx := 0, 0; start < len(st.reviews); start, batchIdx = start+size, batchIdx+1 {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		end := min(start+size, len(st.reviews))
		batch := st.reviews[start:end]

		proposals, provider, err := e.Failover.Classify(ctx, batch, st.registry.All(), st.budget)
		if err != nil {
			st.result.SkippedBatches++
			st.result.SkippedReviews += len(batch)
			log.Printf("categorize skip-batch product=%s date=%s batch=%d reviews=%d first=%q err=%v",
				st.req.Product, st.req.Date, batchIdx, len(batch), domain.Truncate(batch[0], excerptLen), err)
			e.recordEvent(ctx, domain.RunEvent{RunID: st.runID, Kind: domain.EventBatchSkipped, Batch: batchIdx, Review: batch[0], Reason: err.Error(), At: e.now()})
			continue
		}

		for _, p := range proposals {
			label, created, ok := e.resolve(ctx, &st, batchIdx, p)
			if !ok {
				st.result.Dropped++
				continue
			}
			if created {
				st.result.NewTopics++
			}
			st.counts.Increment(label)
			st.assignments = append(st.assignments, domain.Assignment{Review: p.Review, Topic: label})
			st.records = append(st.records, domain.ClassificationRecord{
				RunID:      st.runID,
				Product:    st.req.Product,
				Date:       st.req.Date,
				Review:     p.Review,
				Topic:      label,
				Provider:   provider,
				NewTopic:   created,
				AssignedAt: e.now(),
			})
			st.result.Assigned++
		}
	}
	return st, nil
}

// resolve turns one proposal into a registry label. ok is false when the
// review has to be dropped.
func (e *Engine) resolve(ctx context.Context, st *dayState, batchIdx int, p domain.Proposal) (label string, created bool, ok bool) {
	if !p.IsNew {
		if existing, found := st.registry.Resolve(p.Label); found {
			return existing, false, true
		}
		log.Printf("categorize unknown-existing-topic product=%s date=%s batch=%d topic=%q; validating as new",
			st.req.Product, st.req.Date, batchIdx, p.Label)
	}

	verdict, err := e.Validator.Validate(ctx, p.Label, p.Review, st.registry.All())
	if err != nil {
		e.drop(ctx, st, batchIdx, p, fmt.Sprintf("validator failed: %v", err))
		return "", false, false
	}
	if !verdict.Approved {
		e.drop(ctx, st, batchIdx, p, "rejected: "+verdict.Reason)
		return "", false, false
	}

	topic, err := e.Canonicalizer.Canonicalize(ctx, p.Label, p.Review)
	if err != nil {
		e.drop(ctx, st, batchIdx, p, fmt.Sprintf("canonicalizer failed: %v", err))
		return "", false, false
	}
	topic.Label = strings.TrimSpace(topic.Label)
	if domain.NormalizeLabel(topic.Label) == "" {
		e.drop(ctx, st, batchIdx, p, "canonicalizer returned an empty label")
		return "", false, false
	}
	if existing, found := st.registry.Resolve(topic.Label); found {
		topic.Label = existing
	}
	created = st.registry.Put(topic)
	if created {
		log.Printf("categorize new-topic product=%s date=%s batch=%d topic=%q proposed=%q",
			st.req.Product, st.req.Date, batchIdx, topic.Label, p.Label)
		e.recordEvent(ctx, domain.RunEvent{RunID: st.runID, Kind: domain.EventTopicCreated, Batch: batchIdx, Review: p.Review, Topic: topic.Label, At: e.now()})
	}
	return topic.Label, created, true
}

func (e *Engine) drop(ctx context.Context, st *dayState, batchIdx int, p domain.Proposal, reason string) {
	log.Printf("categorize drop-review product=%s date=%s batch=%d topic=%q review=%q reason=%s",
		st.req.Product, st.req.Date, batchIdx, p.Label, domain.Truncate(p.Review, excerptLen), reason)
	e.recordEvent(ctx, domain.RunEvent{RunID: st.runID, Kind: domain.EventReviewDropped, Batch: batchIdx, Review: p.Review, Topic: p.Label, Reason: reason, At: e.now()})
}

// persist reads registry, assignments and counts and writes them out.
func (e *Engine) persist(ctx context.Context, st dayState) (dayState, error) {
	if err := e.Store.SaveRegistry(st.req.Product, st.registry); err != nil {
		return st, fmt.Errorf("saving registry: %w", err)
	}
	assignments := st.assignments
	if assignments == nil {
		assignments = []domain.Assignment{}
	}
	if err := e.Store.SaveAssignments(st.req.Product, st.req.Date, assignments); err != nil {
		return st, fmt.Errorf("saving assignments: %w", err)
	}
	if err := e.Store.SaveCounts(st.req.Product, st.counts); err != nil {
		return st, fmt.Errorf("saving counts: %w", err)
	}
	st.result.Topics = st.registry.Len()

	if e.Recorder != nil {
		if err := e.Recorder.RecordAssignments(ctx, st.req.Product, st.req.Date, st.records); err != nil {
			log.Printf("categorize ledger assignments product=%s date=%s err=%v", st.req.Product, st.req.Date, err)
		}
	}
	return st, nil
}

func (e *Engine) recordEvent(ctx context.Context, ev domain.RunEvent) {
	if e.Recorder == nil || ev.RunID == "" {
		return
	}
	if err := e.Recorder.RecordEvent(ctx, ev); err != nil {
		log.Printf("categorize ledger event kind=%s err=%v", ev.Kind, err)
	}
}

func (e *Engine) finishRun(ctx context.Context, st dayState, started time.Time, runErr error) {
	if e.Recorder == nil || st.runID == "" {
		return
	}
	summary := domain.RunSummary{
		ID:             st.runID,
		Product:        st.req.Product,
		Date:           st.req.Date,
		Status:         domain.RunStatusOK,
		Reviews:        st.result.Reviews,
		Assigned:       st.result.Assigned,
		SkippedBatches: st.result.SkippedBatches,
		Dropped:        st.result.Dropped,
		NewTopics:      st.result.NewTopics,
		FallbackCalls:  st.result.FallbackCalls,
		StartedAt:      started,
		FinishedAt:     e.now(),
	}
	if runErr != nil {
		summary.Status = domain.RunStatusFailed
		summary.Error = runErr.Error()
	}
	// The run context may already be cancelled; the summary still goes in.
	if err := e.Recorder.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
		log.Printf("categorize ledger finish-run product=%s date=%s err=%v", st.req.Product, st.req.Date, err)
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// IsMissingInput reports whether a day failed only because its input is absent.
func IsMissingInput(err error) bool {
	return errors.Is(err, domain.ErrMissingInput)
}
