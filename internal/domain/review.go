package domain

// Review is one input record. Fields other than the review text are ignored.
type Review struct {
	Text string `json:"Review"`
}

type Assignment struct {
	Review string `json:"review"`
	Topic  string `json:"topic"`
}

// DailyCounts holds one day's per-topic review counts.
type DailyCounts struct {
	Date   string         `json:"date"`
	Topics map[string]int `json:"topics"`
}

// NewDailyCounts seeds a zero count for every label already in the registry.
func NewDailyCounts(date string, registry *Registry) DailyCounts {
	counts := DailyCounts{Date: date, Topics: make(map[string]int, registry.Len())}
	for _, label := range registry.Labels() {
		counts.Topics[label] = 0
	}
	return counts
}

func (c DailyCounts) Increment(label string) {
	c.Topics[label]++
}

func (c DailyCounts) Total() int {
	total := 0
	for _, n := range c.Topics {
		total += n
	}
	return total
}

// ReviewDay identifies one product's review file for one date.
type ReviewDay struct {
	Product string
	Date    string
	Path    string
}
