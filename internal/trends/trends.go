package trends

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"

	"reviewtrends/internal/domain"
)

// Matrix is a Topic x Date table of review counts with every cell present.
type Matrix struct {
	Topics []string
	Dates  []string
	Cells  map[string]map[string]int
}

// Build lays out one row per registry label, in registry order, and one
// column per date, ascending. Counts recorded under labels no longer in the
// registry are dropped.
func Build(registry *domain.Registry, days []domain.DailyCounts) Matrix {
	m := Matrix{
		Topics: registry.Labels(),
		Cells:  make(map[string]map[string]int, registry.Len()),
	}

	seen := make(map[string]bool, len(days))
	for _, d := range days {
		if d.Date == "" || seen[d.Date] {
			continue
		}
		seen[d.Date] = true
		m.Dates = append(m.Dates, d.Date)
	}
	sort.Strings(m.Dates)

	for _, topic := range m.Topics {
		row := make(map[string]int, len(m.Dates))
		for _, date := range m.Dates {
			row[date] = 0
		}
		m.Cells[topic] = row
	}

	for _, d := range days {
		for label, n := range d.Topics {
			row, ok := m.Cells[label]
			if !ok {
				continue
			}
			row[d.Date] += n
		}
	}
	return m
}

func (m Matrix) Get(topic, date string) int {
	return m.Cells[topic][date]
}

func (m Matrix) RowTotal(topic string) int {
	total := 0
	for _, n := range m.Cells[topic] {
		total += n
	}
	return total
}

// WriteCSV writes a header "topic,<dates...>" and one row per topic.
func WriteCSV(w io.Writer, m Matrix) error {
	cw := csv.NewWriter(w)
	header := append([]string{"topic"}, m.Dates...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, topic := range m.Topics {
		row := make([]string, 0, len(m.Dates)+1)
		row = append(row, topic)
		for _, date := range m.Dates {
			row = append(row, strconv.Itoa(m.Get(topic, date)))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Source is the persisted state the aggregator reads.
type Source interface {
	LoadExistingRegistry(product string) (*domain.Registry, error)
	LoadAllCounts(product string) ([]domain.DailyCounts, error)
	TrendTablePath(product string) string
}

type Writer func(path string, data []byte) error

type Aggregator struct {
	Source Source
	Write  Writer
}

// Run builds and writes the product's trend table and returns its path.
func (a *Aggregator) Run(ctx context.Context, product string) (string, Matrix, error) {
	if err := ctx.Err(); err != nil {
		return "", Matrix{}, err
	}
	registry, err := a.Source.LoadExistingRegistry(product)
	if err != nil {
		return "", Matrix{}, fmt.Errorf("trends %s: registry: %w", product, err)
	}
	days, err := a.Source.LoadAllCounts(product)
	if err != nil {
		return "", Matrix{}, fmt.Errorf("trends %s: counts: %w", product, err)
	}
	if len(days) == 0 {
		return "", Matrix{}, fmt.Errorf("trends %s: no topic_counts files: %w", product, domain.ErrMissingInput)
	}

	m := Build(registry, days)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, m); err != nil {
		return "", m, fmt.Errorf("trends %s: rendering csv: %w", product, err)
	}
	path := a.Source.TrendTablePath(product)
	if err := a.Write(path, buf.Bytes()); err != nil {
		return "", m, fmt.Errorf("trends %s: %w", product, err)
	}
	log.Printf("trends written product=%s topics=%d dates=%d path=%s", product, len(m.Topics), len(m.Dates), path)
	return path, m, nil
}
