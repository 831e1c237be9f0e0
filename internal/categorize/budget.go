package categorize

import "reviewtrends/internal/domain"

// Budget caps fallback provider calls for one day. Build a new one per day.
type Budget struct {
	Max  int
	used int
}

func NewBudget(max int) *Budget {
	if max < 0 {
		max = 0
	}
	return &Budget{Max: max}
}

// Take reserves one call, or returns domain.ErrBudgetExhausted once Max
// calls have been taken. A nil budget allows nothing.
func (b *Budget) Take() error {
	if b == nil || b.used >= b.Max {
		return domain.ErrBudgetExhausted
	}
	b.used++
	return nil
}

func (b *Budget) Used() int {
	if b == nil {
		return 0
	}
	return b.used
}

func (b *Budget) Remaining() int {
	if b == nil {
		return 0
	}
	return b.Max - b.used
}
