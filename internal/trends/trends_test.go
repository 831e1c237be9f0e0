package trends

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reviewtrends/internal/domain"
	"reviewtrends/internal/storage/files"
)

func testRegistry(labels ...string) *domain.Registry {
	r := domain.NewRegistry()
	for _, l := range labels {
		r.Put(domain.Topic{Label: l})
	}
	return r
}

func TestBuildZeroFillsAndDropsSupersededLabels(t *testing.T) {
	reg := testRegistry("Late delivery", "App crashes")
	days := []domain.DailyCounts{
		{Date: "2026-01-03", Topics: map[string]int{"App crashes": 4}},
		{Date: "2026-01-01", Topics: map[string]int{"Late delivery": 2, "Delayed orders": 7}},
		{Date: "2026-01-02", Topics: map[string]int{}},
	}

	m := Build(reg, days)
	if strings.Join(m.Dates, ",") != "2026-01-01,2026-01-02,2026-01-03" {
		t.Fatalf("dates not sorted: %v", m.Dates)
	}
	if strings.Join(m.Topics, ",") != "Late delivery,App crashes" {
		t.Fatalf("topics should follow registry order: %v", m.Topics)
	}
	for _, topic := range m.Topics {
		for _, date := range m.Dates {
			if _, ok := m.Cells[topic][date]; !ok {
				t.Fatalf("missing cell %s/%s", topic, date)
			}
		}
	}
	if m.Get("Late delivery", "2026-01-01") != 2 || m.Get("App crashes", "2026-01-03") != 4 {
		t.Fatalf("unexpected cells: %v", m.Cells)
	}
	if _, ok := m.Cells["Delayed orders"]; ok {
		t.Fatal("superseded label must not get a row")
	}
	if m.RowTotal("Late delivery") != 2 || m.RowTotal("App crashes") != 4 {
		t.Fatalf("unexpected totals")
	}
}

func TestWriteCSV(t *testing.T) {
	m := Build(testRegistry("Ads, popups", "Login"), []domain.DailyCounts{
		{Date: "2026-01-01", Topics: map[string]int{"Login": 1}},
		{Date: "2026-01-02", Topics: map[string]int{"Ads, popups": 3}},
	})
	var buf bytes.Buffer
	if err := WriteCSV(&buf, m); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "topic,2026-01-01,2026-01-02\n\"Ads, popups\",0,3\nLogin,1,0\n"
	if buf.String() != want {
		t.Fatalf("csv =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestAggregatorRun(t *testing.T) {
	store := files.New(t.TempDir(), t.TempDir())
	agg := &Aggregator{Source: store, Write: files.WriteFileAtomic}

	if _, _, err := agg.Run(context.Background(), "p"); !errors.Is(err, domain.ErrMissingInput) {
		t.Fatalf("missing registry should be ErrMissingInput, got %v", err)
	}

	if err := store.SaveRegistry("p", testRegistry("Login")); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}
	if _, _, err := agg.Run(context.Background(), "p"); !errors.Is(err, domain.ErrMissingInput) {
		t.Fatalf("no counts files should be ErrMissingInput, got %v", err)
	}

	if err := store.SaveCounts("p", domain.DailyCounts{Date: "2026-01-05", Topics: map[string]int{"Login": 2}}); err != nil {
		t.Fatalf("SaveCounts: %v", err)
	}
	path, m, err := agg.Run(context.Background(), "p")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if path != store.TrendTablePath("p") || m.Get("Login", "2026-01-05") != 2 {
		t.Fatalf("unexpected result path=%s matrix=%v", path, m.Cells)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if string(data) != "topic,2026-01-05\nLogin,2\n" {
		t.Fatalf("unexpected csv: %q", data)
	}
}

func TestAggregatorColumnsFollowCountsFileNames(t *testing.T) {
	store := files.New(t.TempDir(), t.TempDir())
	if err := store.SaveRegistry("p", testRegistry("Login")); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}
	dir := store.ProductDir("p")
	for name, body := range map[string]string{
		"topic_counts_2026-01-01.json": `{"date": "2026-01-02", "topics": {"Login": 4}}`,
		"topic_counts_2026-01-02.json": `{"date": "2026-01-02", "topics": {"Login": 1}}`,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	agg := &Aggregator{Source: store, Write: files.WriteFileAtomic}
	path, _, err := agg.Run(context.Background(), "p")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if want := "topic,2026-01-01,2026-01-02\nLogin,4,1\n"; string(data) != want {
		t.Fatalf("csv = %q, want %q", data, want)
	}
}
