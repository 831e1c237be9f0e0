package categorize

import (
	"context"
	"errors"
	"testing"
	"time"

	"reviewtrends/internal/domain"
)

func TestBudgetTake(t *testing.T) {
	b := NewBudget(2)
	for i := 0; i < 2; i++ {
		if err := b.Take(); err != nil {
			t.Fatalf("Take %d: %v", i, err)
		}
	}
	if err := b.Take(); !errors.Is(err, domain.ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
	if b.Used() != 2 || b.Remaining() != 0 {
		t.Fatalf("unexpected budget state used=%d remaining=%d", b.Used(), b.Remaining())
	}

	var none *Budget
	if err := none.Take(); !errors.Is(err, domain.ErrBudgetExhausted) {
		t.Fatalf("nil budget must refuse, got %v", err)
	}
	if NewBudget(-3).Max != 0 {
		t.Fatal("negative max should clamp to zero")
	}
}

func TestFailoverPrimarySuccessSkipsSecondary(t *testing.T) {
	primary := &scriptedProvider{name: "groq", label: fixedLabel("A", false)}
	secondary := &scriptedProvider{name: "mistral", label: fixedLabel("B", false)}
	f := &Failover{Primary: primary, Secondary: secondary, Cooldown: time.Second, Sleep: func(context.Context, time.Duration) error {
		t.Fatal("no cooldown after a primary success")
		return nil
	}}
	budget := NewBudget(1)

	got, name, err := f.Classify(context.Background(), []string{"r"}, nil, budget)
	if err != nil || name != "groq" || got[0].Label != "A" {
		t.Fatalf("unexpected result %v %q %v", got, name, err)
	}
	if secondary.calls != 0 || budget.Used() != 0 {
		t.Fatalf("secondary should not run: calls=%d used=%d", secondary.calls, budget.Used())
	}
}

func TestFailoverFallbackPaths(t *testing.T) {
	parseErr := &domain.ParseError{Provider: "groq", Snippet: "oops"}
	tests := []struct {
		name          string
		secondary     *scriptedProvider
		budget        *Budget
		wantErr       error
		wantProvider  string
		wantSecondary int
		wantSleeps    int
	}{
		{
			name:          "fallback succeeds",
			secondary:     &scriptedProvider{name: "mistral", label: fixedLabel("B", false)},
			budget:        NewBudget(1),
			wantProvider:  "mistral",
			wantSecondary: 1,
			wantSleeps:    1,
		},
		{
			name:      "budget exhausted",
			secondary: &scriptedProvider{name: "mistral", label: fixedLabel("B", false)},
			budget:    NewBudget(0),
			wantErr:   domain.ErrBudgetExhausted,
		},
		{
			name:          "fallback fails",
			secondary:     failing("mistral"),
			budget:        NewBudget(5),
			wantErr:       domain.ErrProvider,
			wantSecondary: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &scriptedProvider{name: "groq", label: fixedLabel("", false), errs: []error{parseErr}}
			sleeps := 0
			f := &Failover{Primary: primary, Secondary: tt.secondary, Cooldown: 10 * time.Second, Sleep: func(_ context.Context, d time.Duration) error {
				if d != 10*time.Second {
					t.Fatalf("unexpected cooldown %s", d)
				}
				sleeps++
				return nil
			}}

			_, name, err := f.Classify(context.Background(), []string{"r"}, nil, tt.budget)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !errors.Is(err, domain.ErrParse) {
					t.Fatalf("primary cause should stay visible, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if name != tt.wantProvider {
				t.Fatalf("provider = %q, want %q", name, tt.wantProvider)
			}
			if tt.secondary.calls != tt.wantSecondary {
				t.Fatalf("secondary calls = %d, want %d", tt.secondary.calls, tt.wantSecondary)
			}
			if sleeps != tt.wantSleeps {
				t.Fatalf("sleeps = %d, want %d", sleeps, tt.wantSleeps)
			}
		})
	}
}

func TestFailoverWithoutSecondary(t *testing.T) {
	f := &Failover{Primary: failing("groq")}
	_, _, err := f.Classify(context.Background(), []string{"r"}, nil, NewBudget(10))
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
