package files

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reviewtrends/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestListReviewDays(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, "reviews_in.swiggy_2026-01-02.json"), "[]")
	writeFile(t, filepath.Join(in, "reviews_in.swiggy_2026-01-01.json"), "[]")
	writeFile(t, filepath.Join(in, "reviews_zomato_app_2026-01-01.json"), "[]")
	writeFile(t, filepath.Join(in, "reviews_bad_date_2026-1-1.json"), "[]")
	writeFile(t, filepath.Join(in, "notes.txt"), "x")

	s := New(in, t.TempDir())
	days, err := s.ListReviewDays()
	if err != nil {
		t.Fatalf("ListReviewDays: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %+v", days)
	}
	if days[0].Product != "in.swiggy" || days[0].Date != "2026-01-01" {
		t.Fatalf("unexpected first day: %+v", days[0])
	}
	if days[2].Product != "zomato_app" {
		t.Fatalf("product names may contain underscores, got %+v", days[2])
	}

	empty := New(filepath.Join(in, "missing"), t.TempDir())
	if days, err := empty.ListReviewDays(); err != nil || len(days) != 0 {
		t.Fatalf("missing input dir should list nothing, got %v %v", days, err)
	}
}

func TestLoadReviews(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, "reviews_p_2026-01-01.json"), `[{"Review": "Great app", "Rating": 5}, {"Review": "Crashes"}]`)
	s := New(in, t.TempDir())

	reviews, err := s.LoadReviews("p", "2026-01-01")
	if err != nil {
		t.Fatalf("LoadReviews: %v", err)
	}
	if len(reviews) != 2 || reviews[0].Text != "Great app" {
		t.Fatalf("unexpected reviews: %+v", reviews)
	}

	_, err = s.LoadReviews("p", "2026-01-09")
	if !errors.Is(err, domain.ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
}

func TestRegistryRoundTripAndMissing(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())

	r, err := s.LoadRegistry("p")
	if err != nil || r.Len() != 0 {
		t.Fatalf("missing registry should load empty, got %v %v", r, err)
	}
	if _, err := s.LoadExistingRegistry("p"); !errors.Is(err, domain.ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}

	r.Put(domain.Topic{Label: "Slow app", Description: "lag"})
	r.Put(domain.Topic{Label: "Ads", Description: "too many"})
	if err := s.SaveRegistry("p", r); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}
	back, err := s.LoadExistingRegistry("p")
	if err != nil {
		t.Fatalf("LoadExistingRegistry: %v", err)
	}
	if labels := back.Labels(); len(labels) != 2 || labels[0] != "Slow app" {
		t.Fatalf("unexpected labels: %v", labels)
	}

	entries, _ := os.ReadDir(s.ProductDir("p"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSaveAndListCounts(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())
	for _, c := range []domain.DailyCounts{
		{Date: "2026-01-03", Topics: map[string]int{"A": 2}},
		{Date: "2026-01-01", Topics: map[string]int{"A": 1, "B": 0}},
	} {
		if err := s.SaveCounts("p", c); err != nil {
			t.Fatalf("SaveCounts: %v", err)
		}
	}
	if err := s.SaveAssignments("p", "2026-01-01", nil); err != nil {
		t.Fatalf("SaveAssignments: %v", err)
	}

	paths, err := s.ListCountFiles("p")
	if err != nil {
		t.Fatalf("ListCountFiles: %v", err)
	}
	if len(paths) != 2 || !strings.HasSuffix(paths[0], "topic_counts_2026-01-01.json") {
		t.Fatalf("unexpected paths: %v", paths)
	}

	all, err := s.LoadAllCounts("p")
	if err != nil {
		t.Fatalf("LoadAllCounts: %v", err)
	}
	if all[1].Date != "2026-01-03" || all[1].Topics["A"] != 2 {
		t.Fatalf("unexpected counts: %+v", all)
	}

	assignments, err := s.LoadAssignments("p", "2026-01-01")
	if err != nil || assignments == nil || len(assignments) != 0 {
		t.Fatalf("expected empty assignments array, got %#v %v", assignments, err)
	}
	data, _ := os.ReadFile(s.AssignmentsPath("p", "2026-01-01"))
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("expected [] on disk, got %s", data)
	}
}

func TestLoadCountsTakesDateFromName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topic_counts_2026-02-10.json")
	writeFile(t, path, `{"topics": {"Ads": 3}}`)

	c, err := LoadCounts(path)
	if err != nil {
		t.Fatalf("LoadCounts: %v", err)
	}
	if c.Date != "2026-02-10" || c.Topics["Ads"] != 3 {
		t.Fatalf("unexpected counts: %+v", c)
	}
}

func TestLoadCountsPrefersFileNameDate(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())
	dir := s.ProductDir("p")
	writeFile(t, filepath.Join(dir, "topic_counts_2026-02-10.json"), `{"date": "2026-02-11", "topics": {"Ads": 3}}`)
	writeFile(t, filepath.Join(dir, "topic_counts_2026-02-11.json"), `{"date": "2026-02-11", "topics": {"Ads": 1}}`)

	all, err := s.LoadAllCounts("p")
	if err != nil {
		t.Fatalf("LoadAllCounts: %v", err)
	}
	if len(all) != 2 || all[0].Date != "2026-02-10" || all[0].Topics["Ads"] != 3 || all[1].Date != "2026-02-11" || all[1].Topics["Ads"] != 1 {
		t.Fatalf("columns must follow file names, got %+v", all)
	}
}

func TestPaths(t *testing.T) {
	s := New("in", "out")
	if got := s.TrendTablePath("p"); got != filepath.Join("out", "p_Topic_Trend_Table.csv") {
		t.Fatalf("TrendTablePath = %s", got)
	}
	if got := s.ReviewPath("p", "2026-01-01"); got != filepath.Join("in", "reviews_p_2026-01-01.json") {
		t.Fatalf("ReviewPath = %s", got)
	}
}
