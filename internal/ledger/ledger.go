// Package ledger persists finished runs and their correction records in a
// SQLite database so they can be audited after the process exits.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/orchestrator"
	"github.com/Iron-Ham/autopilot/internal/plan"
	"github.com/Iron-Ham/autopilot/internal/recovery"
)

// Run is a stored run summary.
type Run struct {
	ID                 int64     `json:"id"`
	PlanID             string    `json:"plan_id"`
	Root               string    `json:"root"`
	State              string    `json:"state"`
	Reason             string    `json:"reason,omitempty"`
	Steps              int       `json:"steps"` // steps in the plan
	Succeeded          int       `json:"succeeded"`
	Waves              int       `json:"waves"`
	SnapshotID         string    `json:"snapshot_id,omitempty"`
	RestoredSnapshotID string    `json:"restored_snapshot_id,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}

// Correction is a stored correction record.
type Correction struct {
	RunID      int64            `json:"run_id"`
	PlanID     string           `json:"plan_id"`
	StepIndex  int              `json:"step_index"`
	Attempt    int              `json:"attempt"`
	Original   plan.ActionSpec  `json:"original"`
	Corrected  *plan.ActionSpec `json:"corrected,omitempty"`
	Category   string           `json:"category,omitempty"`
	Message    string           `json:"message,omitempty"`
	ExitCode   int              `json:"exit_code"`
	Pattern    string           `json:"pattern,omitempty"`
	Confidence float64          `json:"confidence"`
	Note       string           `json:"note,omitempty"`
	Outcome    string           `json:"outcome"`
	Duration   time.Duration    `json:"duration"`
	At         time.Time        `json:"at"`
}

// Store is a SQLite-backed run ledger. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO NOTHING`, schemaVersion)
	return err
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a finished run together with its ledger.
func (s *Store) RecordRun(ctx context.Context, r *orchestrator.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin ledger transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (plan_id, root, state, reason, steps, succeeded, waves,
			snapshot_id, restored_snapshot_id, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PlanID, r.Root, r.State.String(), r.Reason, r.TotalSteps, r.StepsSucceeded(),
		r.WavesCompleted, r.LastSnapshotID(), r.RestoredSnapshotID,
		r.StartedAt.UnixNano(), r.FinishedAt.UnixNano())
	if err != nil {
		return errors.Wrap(err, "insert run")
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "read run id")
	}

	if err := appendRecords(ctx, tx, runID, r.PlanID, r.Ledger); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit run")
	}
	return nil
}

func appendRecords(ctx context.Context, tx *sql.Tx, runID int64, planID string, records []recovery.Record) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO corrections (run_id, plan_id, step_index, attempt, original_action,
			corrected_action, category, message, exit_code, pattern, confidence, note,
			outcome, duration_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare correction insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		original, err := encodeAction(rec.OriginalAction)
		if err != nil {
			return err
		}
		var corrected sql.NullString
		if rec.CorrectedAction != nil {
			enc, err := encodeAction(rec.CorrectedAction)
			if err != nil {
				return err
			}
			corrected = sql.NullString{String: enc, Valid: true}
		}

		var category, message string
		var exitCode int
		if rec.Signature != nil {
			category = string(rec.Signature.Category)
			message = rec.Signature.Message
			exitCode = rec.Signature.ExitCode
		}

		if _, err := stmt.ExecContext(ctx,
			runID, planID, rec.StepIndex, rec.Attempt, original, corrected,
			category, message, exitCode, string(rec.Pattern), rec.Confidence, rec.Note,
			string(rec.Outcome), rec.Duration.Milliseconds(), rec.At.UnixNano()); err != nil {
			return errors.Wrapf(err, "insert correction for step %d attempt %d", rec.StepIndex, rec.Attempt)
		}
	}
	return nil
}

func encodeAction(a plan.Action) (string, error) {
	if a == nil {
		return "{}", nil
	}
	data, err := json.Marshal(plan.SpecOf(a))
	if err != nil {
		return "", errors.Wrap(err, "encode action")
	}
	return string(data), nil
}

// Runs returns the most recent runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, root, state, COALESCE(reason, ''), steps, succeeded, waves,
			COALESCE(snapshot_id, ''), COALESCE(restored_snapshot_id, ''), started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.PlanID, &r.Root, &r.State, &r.Reason, &r.Steps,
			&r.Succeeded, &r.Waves, &r.SnapshotID, &r.RestoredSnapshotID, &started, &finished); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Corrections returns every record stored for planID in ledger order.
func (s *Store) Corrections(ctx context.Context, planID string) ([]Correction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, plan_id, step_index, attempt, original_action, corrected_action,
			COALESCE(category, ''), COALESCE(message, ''), COALESCE(exit_code, 0),
			COALESCE(pattern, ''), COALESCE(confidence, 0), COALESCE(note, ''),
			outcome, duration_ms, at
		FROM corrections
		WHERE plan_id = ?
		ORDER BY id`, planID)
	if err != nil {
		return nil, errors.Wrap(err, "query corrections")
	}
	defer func() { _ = rows.Close() }()

	var out []Correction
	for rows.Next() {
		var c Correction
		var original string
		var corrected sql.NullString
		var durationMs, at int64
		if err := rows.Scan(&c.RunID, &c.PlanID, &c.StepIndex, &c.Attempt, &original, &corrected,
			&c.Category, &c.Message, &c.ExitCode, &c.Pattern, &c.Confidence, &c.Note,
			&c.Outcome, &durationMs, &at); err != nil {
			return nil, errors.Wrap(err, "scan correction")
		}
		if err := json.Unmarshal([]byte(original), &c.Original); err != nil {
			return nil, errors.Wrap(err, "decode original action")
		}
		if corrected.Valid {
			var spec plan.ActionSpec
			if err := json.Unmarshal([]byte(corrected.String), &spec); err != nil {
				return nil, errors.Wrap(err, "decode corrected action")
			}
			c.Corrected = &spec
		}
		c.Duration = time.Duration(durationMs) * time.Millisecond
		c.At = time.Unix(0, at)
		out = append(out, c)
	}
	return out, rows.Err()
}
