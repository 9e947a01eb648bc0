// Package store persists completed replay runs to SQLite so decision
// traces can be compared across parameter changes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/leo-handover/core"
	"github.com/signalsfoundry/leo-handover/model"
)

// ErrRunNotFound reports a lookup for a run id that was never saved.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	dataset     TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	epochs      INTEGER NOT NULL,
	samples     INTEGER NOT NULL,
	config_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	ts             TEXT NOT NULL,
	constellation  TEXT NOT NULL,
	serving_id     TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	target_id      TEXT,
	confidence     REAL NOT NULL,
	rule           TEXT NOT NULL,
	detail_json    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	direction     TEXT NOT NULL,
	constellation TEXT NOT NULL,
	serving_id    TEXT NOT NULL,
	neighbor_id   TEXT NOT NULL,
	ts            TEXT NOT NULL,
	detail_json   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// RunRecord is one complete persisted run.
type RunRecord struct {
	RunID      string
	Dataset    string
	StartedAt  time.Time
	FinishedAt time.Time
	Epochs     int
	Samples    int
	Config     core.Config
	Decisions  []model.DecisionRecord
	Events     []model.EventRecord
}

// RunSummary is the listing view of a saved run.
type RunSummary struct {
	RunID      string
	Dataset    string
	StartedAt  time.Time
	FinishedAt time.Time
	Epochs     int
	Samples    int
	Decisions  int
	Events     int
}

// Store manages run persistence in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run with all its decisions and events in one
// transaction.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("save run: empty run id")
	}
	cfgJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, dataset, started_at, finished_at, epochs, samples, config_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Dataset,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.Epochs, rec.Samples, string(cfgJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i := range rec.Decisions {
		d := &rec.Decisions[i]
		detail, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal decision %s: %w", d.ID, err)
		}
		var target interface{}
		if d.TargetID != "" {
			target = d.TargetID
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO decisions (id, run_id, ts, constellation, serving_id, recommendation, target_id, confidence, rule, detail_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, rec.RunID, d.Timestamp.UTC().Format(time.RFC3339Nano),
			d.Constellation, d.ServingID, string(d.Recommendation), target,
			d.Confidence, d.RuleName, string(detail),
		)
		if err != nil {
			return fmt.Errorf("insert decision %s: %w", d.ID, err)
		}
	}

	for i := range rec.Events {
		e := &rec.Events[i]
		detail, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (id, run_id, event_type, direction, constellation, serving_id, neighbor_id, ts, detail_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, rec.RunID, string(e.EventType), string(e.Direction),
			e.Constellation, e.ServingID, e.NeighborID,
			e.Timestamp.UTC().Format(time.RFC3339Nano), string(detail),
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetRun reads one run with its full decision and event payloads.
func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	var rec RunRecord
	var startedStr, finishedStr, cfgJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, dataset, started_at, finished_at, epochs, samples, config_json
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&rec.RunID, &rec.Dataset, &startedStr, &finishedStr, &rec.Epochs, &rec.Samples, &cfgJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}

	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr)
	if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal config: %w", err)
	}

	rec.Decisions, err = s.runDecisions(ctx, runID)
	if err != nil {
		return RunRecord{}, err
	}
	rec.Events, err = s.runEvents(ctx, runID)
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

func (s *Store) runDecisions(ctx context.Context, runID string) ([]model.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT detail_json FROM decisions WHERE run_id = ? ORDER BY ts, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		var d model.DecisionRecord
		if err := json.Unmarshal([]byte(detail), &d); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) runEvents(ctx context.Context, runID string) ([]model.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT detail_json FROM events WHERE run_id = ? ORDER BY ts, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.EventRecord
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e model.EventRecord
		if err := json.Unmarshal([]byte(detail), &e); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRuns returns the most recent runs with row counts, newest first.
// A non-positive limit lists up to 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.run_id, r.dataset, r.started_at, r.finished_at, r.epochs, r.samples,
		        (SELECT COUNT(*) FROM decisions d WHERE d.run_id = r.run_id),
		        (SELECT COUNT(*) FROM events e WHERE e.run_id = r.run_id)
		 FROM runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var sum RunSummary
		var startedStr, finishedStr string
		if err := rows.Scan(&sum.RunID, &sum.Dataset, &startedStr, &finishedStr,
			&sum.Epochs, &sum.Samples, &sum.Decisions, &sum.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
		sum.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// CountRecommendations tallies decisions per recommendation for one run.
func (s *Store) CountRecommendations(ctx context.Context, runID string) (map[model.Recommendation]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recommendation, COUNT(*) FROM decisions WHERE run_id = ? GROUP BY recommendation`, runID)
	if err != nil {
		return nil, fmt.Errorf("count recommendations: %w", err)
	}
	defer rows.Close()

	out := make(map[model.Recommendation]int)
	for rows.Next() {
		var rec string
		var n int
		if err := rows.Scan(&rec, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[model.Recommendation(rec)] = n
	}
	return out, rows.Err()
}
