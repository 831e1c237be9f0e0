package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"reviewtrends/internal/domain"
)

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// UsageRecorder receives one record per provider call, successful or not.
type UsageRecorder interface {
	RecordCall(ctx context.Context, call domain.ProviderCall)
}

// MultiRecorder fans a call record out to several recorders; nil entries are skipped.
type MultiRecorder []UsageRecorder

func (m MultiRecorder) RecordCall(ctx context.Context, call domain.ProviderCall) {
	for _, r := range m {
		if r != nil {
			r.RecordCall(ctx, call)
		}
	}
}

// UsageTotals accumulates token usage per provider for end-of-run logging.
type UsageTotals struct {
	mu     sync.Mutex
	byName map[string]Usage
	calls  map[string]int
}

func NewUsageTotals() *UsageTotals {
	return &UsageTotals{byName: make(map[string]Usage), calls: make(map[string]int)}
}

func (t *UsageTotals) RecordCall(_ context.Context, call domain.ProviderCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.byName[call.Provider]
	u.Add(Usage{InputTokens: call.InputTokens, OutputTokens: call.OutputTokens})
	t.byName[call.Provider] = u
	t.calls[call.Provider]++
}

func (t *UsageTotals) Total() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total Usage
	for _, u := range t.byName {
		total.Add(u)
	}
	return total
}

func (t *UsageTotals) Provider(name string) (Usage, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byName[name], t.calls[name]
}

// String renders "provider calls=N tokens_in=X tokens_out=Y" per provider, sorted by name.
func (t *UsageTotals) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		u := t.byName[name]
		parts = append(parts, fmt.Sprintf("%s calls=%d tokens_in=%d tokens_out=%d", name, t.calls[name], u.InputTokens, u.OutputTokens))
	}
	return strings.Join(parts, "; ")
}

func recordCall(ctx context.Context, rec UsageRecorder, c Completer, role string, usage Usage, ok bool) {
	if rec == nil {
		return
	}
	rec.RecordCall(ctx, domain.ProviderCall{
		RunID:        domain.RunIDFromContext(ctx),
		Provider:     c.Name(),
		Model:        c.Model(),
		Role:         role,
		OK:           ok,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CalledAt:     time.Now().UTC(),
	})
}
