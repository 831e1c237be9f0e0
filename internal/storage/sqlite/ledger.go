package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"reviewtrends/internal/categorize"
	"reviewtrends/internal/domain"
	"reviewtrends/internal/integrations/llm"
)

var (
	_ categorize.Recorder    = (*Ledger)(nil)
	_ categorize.Completions = (*Ledger)(nil)
	_ llm.UsageRecorder      = (*Ledger)(nil)
)

// Ledger is the audit trail of day runs: one row per run, plus the provider
// calls, events and assignments made inside it.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		product         TEXT NOT NULL,
		run_date        TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'running',
		reviews         INTEGER NOT NULL DEFAULT 0,
		assigned        INTEGER NOT NULL DEFAULT 0,
		skipped_batches INTEGER NOT NULL DEFAULT 0,
		dropped         INTEGER NOT NULL DEFAULT 0,
		new_topics      INTEGER NOT NULL DEFAULT 0,
		fallback_calls  INTEGER NOT NULL DEFAULT 0,
		error           TEXT DEFAULT '',
		started_at      DATETIME NOT NULL,
		finished_at     DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_product_date ON runs(product, run_date);

	CREATE TABLE IF NOT EXISTS provider_calls (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT NOT NULL DEFAULT '',
		provider      TEXT NOT NULL,
		model         TEXT DEFAULT '',
		role          TEXT NOT NULL,
		ok            INTEGER NOT NULL,
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		called_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pc_run ON provider_calls(run_id);

	CREATE TABLE IF NOT EXISTS run_events (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id   TEXT NOT NULL,
		kind     TEXT NOT NULL,
		batch    INTEGER NOT NULL DEFAULT 0,
		review   TEXT DEFAULT '',
		topic    TEXT DEFAULT '',
		reason   TEXT DEFAULT '',
		event_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_re_run ON run_events(run_id);

	CREATE TABLE IF NOT EXISTS assignments (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		product     TEXT NOT NULL,
		run_date    TEXT NOT NULL,
		review      TEXT NOT NULL,
		topic       TEXT NOT NULL,
		provider    TEXT DEFAULT '',
		new_topic   INTEGER NOT NULL DEFAULT 0,
		assigned_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_as_product_date ON assignments(product, run_date);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func Open(path string) (*Ledger, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun opens a run row and returns its id.
func (l *Ledger) StartRun(ctx context.Context, product, date string) (string, error) {
	id := uuid.NewString()
	_, err := sq.Insert("runs").
		Columns("id", "product", "run_date", "status", "started_at").
		Values(id, product, date, domain.RunStatusRunning, l.now()).
		RunWith(l.db).
		ExecContext(ctx)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (l *Ledger) FinishRun(ctx context.Context, s domain.RunSummary) error {
	finished := s.FinishedAt
	if finished.IsZero() {
		finished = l.now()
	}
	res, err := sq.Update("runs").
		SetMap(map[string]any{
			"status":          s.Status,
			"reviews":         s.Reviews,
			"assigned":        s.Assigned,
			"skipped_batches": s.SkippedBatches,
			"dropped":         s.Dropped,
			"new_topics":      s.NewTopics,
			"fallback_calls":  s.FallbackCalls,
			"error":           s.Error,
			"finished_at":     finished,
		}).
		Where(sq.Eq{"id": s.ID}).
		RunWith(l.db).
		ExecContext(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", s.ID)
	}
	return nil
}

func (l *Ledger) RecordEvent(ctx context.Context, ev domain.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = l.now()
	}
	_, err := sq.Insert("run_events").
		Columns("run_id", "kind", "batch", "review", "topic", "reason", "event_at").
		Values(ev.RunID, ev.Kind, ev.Batch, ev.Review, ev.Topic, ev.Reason, at).
		RunWith(l.db).
		ExecContext(ctx)
	return err
}

// RecordAssignments replaces the assignments stored for product and date, so
// a re-run day is never counted twice.
func (l *Ledger) RecordAssignments(ctx context.Context, product, date string, records []domain.ClassificationRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sq.Delete("assignments").
		Where(sq.Eq{"product": product, "run_date": date}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO assignments
		 (run_id, product, run_date, review, topic, provider, new_topic, assigned_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		at := r.AssignedAt
		if at.IsZero() {
			at = l.now()
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, product, date, r.Review, r.Topic, r.Provider, r.NewTopic, at); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordCall stores one provider call. Failures are logged only: usage
// accounting never interrupts categorization.
func (l *Ledger) RecordCall(ctx context.Context, call domain.ProviderCall) {
	at := call.CalledAt
	if at.IsZero() {
		at = l.now()
	}
	_, err := sq.Insert("provider_calls").
		Columns("run_id", "provider", "model", "role", "ok", "input_tokens", "output_tokens", "called_at").
		Values(call.RunID, call.Provider, call.Model, call.Role, call.OK, call.InputTokens, call.OutputTokens, at).
		RunWith(l.db).
		ExecContext(context.WithoutCancel(ctx))
	if err != nil {
		log.Printf("ledger record-call provider=%s role=%s err=%v", call.Provider, call.Role, err)
	}
}

// ListRuns returns the most recent runs, newest first. An empty product
// lists every product; limit <= 0 means no limit.
func (l *Ledger) ListRuns(ctx context.Context, product string, limit int) ([]domain.RunSummary, error) {
	q := sq.Select("id", "product", "run_date", "status", "reviews", "assigned", "skipped_batches",
		"dropped", "new_topics", "fallback_calls", "error", "started_at", "finished_at").
		From("runs").
		OrderBy("started_at DESC", "run_date DESC")
	if product != "" {
		q = q.Where(sq.Eq{"product": product})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := q.RunWith(l.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var s domain.RunSummary
		var finished sql.NullTime
		var errText sql.NullString
		if err := rows.Scan(&s.ID, &s.Product, &s.Date, &s.Status, &s.Reviews, &s.Assigned, &s.SkippedBatches,
			&s.Dropped, &s.NewTopics, &s.FallbackCalls, &errText, &s.StartedAt, &finished); err != nil {
			return nil, err
		}
		s.Error = errText.String
		if finished.Valid {
			s.FinishedAt = finished.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LastCompletedDate is the latest date with a successful run for product,
// or "" when there is none.
func (l *Ledger) LastCompletedDate(ctx context.Context, product string) (string, error) {
	var date sql.NullString
	err := sq.Select("MAX(run_date)").
		From("runs").
		Where(sq.Eq{"product": product, "status": domain.RunStatusOK}).
		RunWith(l.db).
		QueryRowContext(ctx).
		Scan(&date)
	if err != nil {
		return "", err
	}
	return date.String, nil
}

// DayCompleted reports whether product has a successful run for date.
func (l *Ledger) DayCompleted(ctx context.Context, product, date string) (bool, error) {
	var n int
	err := sq.Select("COUNT(*)").
		From("runs").
		Where(sq.Eq{"product": product, "run_date": date, "status": domain.RunStatusOK}).
		RunWith(l.db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *Ledger) ProviderCalls(ctx context.Context, runID string) ([]domain.ProviderCall, error) {
	rows, err := sq.Select("run_id", "provider", "model", "role", "ok", "input_tokens", "output_tokens", "called_at").
		From("provider_calls").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("id").
		RunWith(l.db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProviderCall
	for rows.Next() {
		var c domain.ProviderCall
		var model sql.NullString
		if err := rows.Scan(&c.RunID, &c.Provider, &model, &c.Role, &c.OK, &c.InputTokens, &c.OutputTokens, &c.CalledAt); err != nil {
			return nil, err
		}
		c.Model = model.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Events returns a run's events in the order they were recorded. An empty
// kind returns all of them.
func (l *Ledger) Events(ctx context.Context, runID, kind string) ([]domain.RunEvent, error) {
	where := sq.Eq{"run_id": runID}
	if kind != "" {
		where["kind"] = kind
	}
	rows, err := sq.Select("run_id", "kind", "batch", "review", "topic", "reason", "event_at").
		From("run_events").
		Where(where).
		OrderBy("id").
		RunWith(l.db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunEvent
	for rows.Next() {
		var ev domain.RunEvent
		var review, topic, reason sql.NullString
		if err := rows.Scan(&ev.RunID, &ev.Kind, &ev.Batch, &review, &topic, &reason, &ev.At); err != nil {
			return nil, err
		}
		ev.Review, ev.Topic, ev.Reason = review.String, topic.String, reason.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// TopicHistory counts ledger assignments per topic for a product, across
// every recorded run.
func (l *Ledger) TopicHistory(ctx context.Context, product string) (map[string]int, error) {
	rows, err := sq.Select("topic", "COUNT(*)").
		From("assignments").
		Where(sq.Eq{"product": product}).
		GroupBy("topic").
		RunWith(l.db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var topic string
		var n int
		if err := rows.Scan(&topic, &n); err != nil {
			return nil, err
		}
		out[topic] = n
	}
	return out, rows.Err()
}
