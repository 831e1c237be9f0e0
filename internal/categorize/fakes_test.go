package categorize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reviewtrends/internal/domain"
)

type memStore struct {
	days        []domain.ReviewDay
	reviews     map[string][]domain.Review // key product/date
	registries  map[string]*domain.Registry
	assignments map[string][]domain.Assignment
	counts      map[string]domain.DailyCounts
	saveErr     error
}

func newMemStore() *memStore {
	return &memStore{
		reviews:     make(map[string][]domain.Review),
		registries:  make(map[string]*domain.Registry),
		assignments: make(map[string][]domain.Assignment),
		counts:      make(map[string]domain.DailyCounts),
	}
}

func (m *memStore) addDay(product, date string, texts ...string) {
	reviews := make([]domain.Review, len(texts))
	for i, t := range texts {
		reviews[i] = domain.Review{Text: t}
	}
	m.reviews[product+"/"+date] = reviews
	m.days = append(m.days, domain.ReviewDay{Product: product, Date: date})
}

func (m *memStore) ListReviewDays() ([]domain.ReviewDay, error) {
	return m.days, nil
}

func (m *memStore) LoadReviews(product, date string) ([]domain.Review, error) {
	r, ok := m.reviews[product+"/"+date]
	if !ok {
		return nil, fmt.Errorf("reviews %s %s: %w", product, date, domain.ErrMissingInput)
	}
	return r, nil
}

// LoadRegistry hands out a copy so a failed day cannot leak mutations.
func (m *memStore) LoadRegistry(product string) (*domain.Registry, error) {
	out := domain.NewRegistry()
	if r, ok := m.registries[product]; ok {
		for _, t := range r.All() {
			out.Put(t)
		}
	}
	return out, nil
}

func (m *memStore) SaveRegistry(product string, r *domain.Registry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.registries[product] = r
	return nil
}

func (m *memStore) SaveAssignments(product, date string, a []domain.Assignment) error {
	m.assignments[product+"/"+date] = a
	return nil
}

func (m *memStore) SaveCounts(product string, c domain.DailyCounts) error {
	m.counts[product+"/"+c.Date] = c
	return nil
}

// scriptedProvider answers each call with the next scripted response. A nil
// proposals slice with a nil error means "echo every review as an existing
// topic given by label".
type scriptedProvider struct {
	name    string
	label   func(review string) (string, bool)
	errs    []error
	calls   int
	batches [][]string
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Classify(_ context.Context, batch []string, _ []domain.Topic) ([]domain.Proposal, error) {
	p.calls++
	p.batches = append(p.batches, append([]string(nil), batch...))
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([]domain.Proposal, len(batch))
	for i, review := range batch {
		label, isNew := p.label(review)
		out[i] = domain.Proposal{Review: review, Label: label, IsNew: isNew}
	}
	return out, nil
}

func failing(name string) *scriptedProvider {
	return &scriptedProvider{
		name:  name,
		label: func(string) (string, bool) { return "", false },
		errs:  repeatErr(&domain.ProviderError{Provider: name, Err: errors.New("unavailable")}, 100),
	}
}

func repeatErr(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

// strictValidator rejects any proposal that already resolves in the topics it
// is shown, like a near-duplicate check.
type strictValidator struct {
	calls  int
	err    error
	reject map[string]bool
}

func (v *strictValidator) Validate(_ context.Context, proposed, _ string, existing []domain.Topic) (domain.Verdict, error) {
	v.calls++
	if v.err != nil {
		return domain.Verdict{}, v.err
	}
	if v.reject[proposed] {
		return domain.Verdict{Approved: false, Reason: "not grounded"}, nil
	}
	key := domain.NormalizeLabel(proposed)
	for _, t := range existing {
		if domain.NormalizeLabel(t.Label) == key {
			return domain.Verdict{Approved: false, Reason: "similar to " + t.Label}, nil
		}
	}
	return domain.Verdict{Approved: true, Reason: "distinct"}, nil
}

type mapCanonicalizer struct {
	rename map[string]string
	err    error
	calls  int
}

func (c *mapCanonicalizer) Canonicalize(_ context.Context, proposed, _ string) (domain.Topic, error) {
	c.calls++
	if c.err != nil {
		return domain.Topic{}, c.err
	}
	label := proposed
	if renamed, ok := c.rename[proposed]; ok {
		label = renamed
	}
	return domain.Topic{Label: label, Description: "about " + label}, nil
}

type memRecorder struct {
	started  []string
	events   []domain.RunEvent
	records  []domain.ClassificationRecord
	finished []domain.RunSummary
}

func (r *memRecorder) StartRun(_ context.Context, product, date string) (string, error) {
	id := fmt.Sprintf("run-%d", len(r.started)+1)
	r.started = append(r.started, product+"/"+date)
	return id, nil
}

func (r *memRecorder) RecordEvent(_ context.Context, ev domain.RunEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *memRecorder) RecordAssignments(_ context.Context, product, date string, recs []domain.ClassificationRecord) error {
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.Product != product || rec.Date != date {
			kept = append(kept, rec)
		}
	}
	r.records = append(kept, recs...)
	return nil
}

func (r *memRecorder) FinishRun(_ context.Context, s domain.RunSummary) error {
	r.finished = append(r.finished, s)
	return nil
}

func (r *memRecorder) DayCompleted(_ context.Context, product, date string) (bool, error) {
	for _, s := range r.finished {
		if s.Product == product && s.Date == date && s.Status == domain.RunStatusOK {
			return true, nil
		}
	}
	return false, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func fixedLabel(label string, isNew bool) func(string) (string, bool) {
	return func(string) (string, bool) { return label, isNew }
}
