package files

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"reviewtrends/internal/domain"
)

const (
	registryFile      = "topics.json"
	assignmentsPrefix = "topic_assignments_"
	countsPrefix      = "topic_counts_"
	trendTableSuffix  = "_Topic_Trend_Table.csv"
)

var (
	reviewFileRe = regexp.MustCompile(`^reviews_(.+)_(\d{4}-\d{2}-\d{2})\.json$`)
	countsFileRe = regexp.MustCompile(`^topic_counts_(\d{4}-\d{2}-\d{2})\.json$`)
)

// Store keeps review input under InputDir and everything derived from it
// under OutputDir/<product>/.
type Store struct {
	InputDir  string
	OutputDir string
}

func New(inputDir, outputDir string) *Store {
	return &Store{InputDir: inputDir, OutputDir: outputDir}
}

func (s *Store) ReviewPath(product, date string) string {
	return filepath.Join(s.InputDir, fmt.Sprintf("reviews_%s_%s.json", product, date))
}

func (s *Store) ProductDir(product string) string {
	return filepath.Join(s.OutputDir, product)
}

func (s *Store) RegistryPath(product string) string {
	return filepath.Join(s.ProductDir(product), registryFile)
}

func (s *Store) AssignmentsPath(product, date string) string {
	return filepath.Join(s.ProductDir(product), assignmentsPrefix+date+".json")
}

func (s *Store) CountsPath(product, date string) string {
	return filepath.Join(s.ProductDir(product), countsPrefix+date+".json")
}

func (s *Store) TrendTablePath(product string) string {
	return filepath.Join(s.OutputDir, product+trendTableSuffix)
}

// ListReviewDays finds every reviews_<product>_<YYYY-MM-DD>.json in InputDir.
// Other files are ignored. A missing InputDir yields no days.
func (s *Store) ListReviewDays() ([]domain.ReviewDay, error) {
	entries, err := os.ReadDir(s.InputDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.InputDir, err)
	}
	var days []domain.ReviewDay
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := reviewFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		days = append(days, domain.ReviewDay{
			Product: m[1],
			Date:    m[2],
			Path:    filepath.Join(s.InputDir, entry.Name()),
		})
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].Product != days[j].Product {
			return days[i].Product < days[j].Product
		}
		return days[i].Date < days[j].Date
	})
	return days, nil
}

func (s *Store) LoadReviews(product, date string) ([]domain.Review, error) {
	path := s.ReviewPath(product, date)
	var reviews []domain.Review
	if err := readJSON(path, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// LoadRegistry returns the product's saved registry, or an empty one when
// nothing has been saved yet.
func (s *Store) LoadRegistry(product string) (*domain.Registry, error) {
	r, err := s.LoadExistingRegistry(product)
	if errors.Is(err, domain.ErrMissingInput) {
		return domain.NewRegistry(), nil
	}
	return r, err
}

// LoadExistingRegistry is LoadRegistry without the empty default: a missing
// topics.json is domain.ErrMissingInput.
func (s *Store) LoadExistingRegistry(product string) (*domain.Registry, error) {
	r := domain.NewRegistry()
	if err := readJSON(s.RegistryPath(product), r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) SaveRegistry(product string, registry *domain.Registry) error {
	return writeJSON(s.RegistryPath(product), registry)
}

func (s *Store) SaveAssignments(product, date string, assignments []domain.Assignment) error {
	if assignments == nil {
		assignments = []domain.Assignment{}
	}
	return writeJSON(s.AssignmentsPath(product, date), assignments)
}

func (s *Store) LoadAssignments(product, date string) ([]domain.Assignment, error) {
	var out []domain.Assignment
	if err := readJSON(s.AssignmentsPath(product, date), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveCounts(product string, counts domain.DailyCounts) error {
	if counts.Date == "" {
		return errors.New("counts without a date")
	}
	if counts.Topics == nil {
		counts.Topics = map[string]int{}
	}
	return writeJSON(s.CountsPath(product, counts.Date), counts)
}

// ListCountFiles returns the product's topic_counts_<date>.json paths in date order.
func (s *Store) ListCountFiles(product string) ([]string, error) {
	entries, err := os.ReadDir(s.ProductDir(product))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.ProductDir(product), err)
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && countsFileRe.MatchString(entry.Name()) {
			paths = append(paths, filepath.Join(s.ProductDir(product), entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadCounts reads one counts file. The date in a topic_counts_<date>.json
// name wins over the file's own date field, which is only used for files
// named otherwise.
func LoadCounts(path string) (domain.DailyCounts, error) {
	var counts domain.DailyCounts
	if err := readJSON(path, &counts); err != nil {
		return domain.DailyCounts{}, err
	}
	if m := countsFileRe.FindStringSubmatch(filepath.Base(path)); m != nil {
		if counts.Date != "" && counts.Date != m[1] {
			log.Printf("files counts-date-mismatch path=%s field=%s using=%s", path, counts.Date, m[1])
		}
		counts.Date = m[1]
	}
	if counts.Topics == nil {
		counts.Topics = map[string]int{}
	}
	return counts, nil
}

// LoadAllCounts reads every counts file of a product, in date order.
func (s *Store) LoadAllCounts(product string) ([]domain.DailyCounts, error) {
	paths, err := s.ListCountFiles(product)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DailyCounts, 0, len(paths))
	for _, p := range paths {
		c, err := LoadCounts(p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, domain.ErrMissingInput)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return WriteFileAtomic(path, buf.Bytes())
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", tmpName, err)
	}
	return nil
}
