package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store wraps the database handle shared by the run and evaluation
// tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Call Migrate
// before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// retryOnBusy retries a write a few times when sqlite reports the
// database locked by a concurrent writer.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil || !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}

// Run records one classification batch: which model was applied and how
// many epochs survived validation.
type Run struct {
	RunID        string `json:"run_id"`
	Model        string `json:"model"`
	Participants int    `json:"participants"`
	EpochCount   int    `json:"epoch_count"`
	InvalidCount int    `json:"invalid_count"`
	CreatedAt    int64  `json:"created_at"`
}

// InsertRun persists a run. If RunID is empty a UUID is generated.
func (s *Store) InsertRun(r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixNano()
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO classification_runs (
				run_id, model, participants, epoch_count, invalid_count, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			r.RunID, r.Model, r.Participants, r.EpochCount, r.InvalidCount, r.CreatedAt,
		)
		return err
	})
}

// GetRun returns a run by ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, model, participants, epoch_count, invalid_count, created_at
		FROM classification_runs
		WHERE run_id = ?`, runID)

	var r Run
	err := row.Scan(&r.RunID, &r.Model, &r.Participants, &r.EpochCount, &r.InvalidCount, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &r, nil
}

// ListRuns returns all runs ordered by creation time descending.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, model, participants, epoch_count, invalid_count, created_at
		FROM classification_runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.Model, &r.Participants, &r.EpochCount, &r.InvalidCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// Evaluation records one agreement summary against ground truth for a
// run. ConfusionJSON holds the rendered confusion matrix.
type Evaluation struct {
	EvalID        string          `json:"eval_id"`
	RunID         string          `json:"run_id"`
	KappaMean     float64         `json:"kappa_mean"`
	KappaSD       float64         `json:"kappa_sd"`
	KappaCILow    float64         `json:"kappa_ci_low"`
	KappaCIHigh   float64         `json:"kappa_ci_high"`
	AccuracyMean  float64         `json:"accuracy_mean"`
	AccuracySD    float64         `json:"accuracy_sd"`
	Participants  int             `json:"participants"`
	ConfusionJSON json.RawMessage `json:"confusion_json,omitempty"`
	CreatedAt     int64           `json:"created_at"`
}

// InsertEvaluation persists an evaluation summary.
func (s *Store) InsertEvaluation(e *Evaluation) error {
	if e.EvalID == "" {
		e.EvalID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixNano()
	}
	var confusion interface{}
	if len(e.ConfusionJSON) > 0 {
		confusion = string(e.ConfusionJSON)
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO evaluation_results (
				eval_id, run_id, kappa_mean, kappa_sd, kappa_ci_low, kappa_ci_high,
				accuracy_mean, accuracy_sd, participants, confusion_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EvalID, e.RunID, e.KappaMean, e.KappaSD, e.KappaCILow, e.KappaCIHigh,
			e.AccuracyMean, e.AccuracySD, e.Participants, confusion, e.CreatedAt,
		)
		return err
	})
}

// ListEvaluations returns the evaluations for a run, newest first.
func (s *Store) ListEvaluations(runID string) ([]*Evaluation, error) {
	rows, err := s.db.Query(`
		SELECT eval_id, run_id, kappa_mean, kappa_sd, kappa_ci_low, kappa_ci_high,
		       accuracy_mean, accuracy_sd, participants, confusion_json, created_at
		FROM evaluation_results
		WHERE run_id = ?
		ORDER BY created_at DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var evals []*Evaluation
	for rows.Next() {
		var e Evaluation
		var confusion sql.NullString
		err := rows.Scan(&e.EvalID, &e.RunID, &e.KappaMean, &e.KappaSD, &e.KappaCILow, &e.KappaCIHigh,
			&e.AccuracyMean, &e.AccuracySD, &e.Participants, &confusion, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}
		if confusion.Valid {
			e.ConfusionJSON = json.RawMessage(confusion.String)
		}
		evals = append(evals, &e)
	}
	return evals, rows.Err()
}
