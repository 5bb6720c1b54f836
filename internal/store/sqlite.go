package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/diligence-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS answers (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	question_id  TEXT NOT NULL,
	state        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	details      TEXT NOT NULL DEFAULT '',
	is_edited    INTEGER NOT NULL DEFAULT 0,
	model_used   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	error_detail TEXT NOT NULL DEFAULT '',
	attempts     INTEGER NOT NULL DEFAULT 0,
	warnings     TEXT NOT NULL DEFAULT '[]',
	updated_at   DATETIME NOT NULL,
	PRIMARY KEY (run_id, question_id)
);

CREATE TABLE IF NOT EXISTS stage_results (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	stage_name  TEXT NOT NULL,
	domain      TEXT NOT NULL DEFAULT '',
	iteration   INTEGER NOT NULL,
	input_refs  TEXT NOT NULL DEFAULT '[]',
	output_text TEXT NOT NULL,
	model       TEXT NOT NULL DEFAULT '',
	reformatted INTEGER NOT NULL DEFAULT 0,
	warnings    TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL,
	UNIQUE (run_id, stage_name, domain, iteration)
);

CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);
CREATE INDEX IF NOT EXISTS idx_answers_run_id ON answers(run_id);
CREATE INDEX IF NOT EXISTS idx_stage_results_run_id ON stage_results(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, name, mode string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, mode, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, mode, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{ID: id, Name: name, Mode: mode, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, mode, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	var r model.Run
	err := row.Scan(&r.ID, &r.Name, &r.Mode, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, name, mode, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, filter.Mode)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.Name, &r.Mode, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveAnswer(ctx context.Context, runID string, rec model.AnswerRecord) error {
	warnings, err := json.Marshal(nonNil(rec.Warnings))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal warnings")
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save answer")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO answers (run_id, question_id, state, summary, details, is_edited, model_used, error, error_detail, attempts, warnings, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, question_id) DO UPDATE SET
			state = excluded.state, summary = excluded.summary, details = excluded.details,
			is_edited = excluded.is_edited, model_used = excluded.model_used, error = excluded.error,
			error_detail = excluded.error_detail, attempts = excluded.attempts,
			warnings = excluded.warnings, updated_at = excluded.updated_at`,
		runID, rec.QuestionID, string(rec.State), rec.Summary, rec.Details, rec.IsEdited,
		rec.ModelUsed, rec.Error, rec.ErrorDetail, rec.Attempts, string(warnings), updated,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save answer %s", rec.QuestionID)
	}

	res, err := tx.ExecContext(ctx, `UPDATE runs SET updated_at = ? WHERE id = ?`, updated, runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch run %s", runID)
	}
	if err := checkRowsAffected(res, runID); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save answer")
}

func (s *SQLiteStore) ListAnswers(ctx context.Context, runID string) ([]model.AnswerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, state, summary, details, is_edited, model_used, error, error_detail, attempts, warnings, updated_at
		 FROM answers WHERE run_id = ? ORDER BY question_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list answers")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AnswerRecord
	for rows.Next() {
		var rec model.AnswerRecord
		var state, warnings string
		if err := rows.Scan(&rec.QuestionID, &state, &rec.Summary, &rec.Details, &rec.IsEdited,
			&rec.ModelUsed, &rec.Error, &rec.ErrorDetail, &rec.Attempts, &warnings, &rec.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan answer")
		}
		rec.State = model.AnswerState(state)
		if err := json.Unmarshal([]byte(warnings), &rec.Warnings); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal warnings")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list answers iterate")
}

func (s *SQLiteStore) SaveStageResult(ctx context.Context, runID string, r model.StageResult) error {
	refs, err := json.Marshal(nonNil(r.InputRefs))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal input refs")
	}
	warnings, err := json.Marshal(nonNil(r.Warnings))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal warnings")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stage_results (id, run_id, stage_name, domain, iteration, input_refs, output_text, model, reformatted, warnings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, runID, r.StageName, r.Domain, r.Iteration, string(refs), r.OutputText,
		r.Model, r.Reformatted, string(warnings), r.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert stage result %s", r.ID)
}

func (s *SQLiteStore) ListStageResults(ctx context.Context, runID string) ([]model.StageResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage_name, domain, iteration, input_refs, output_text, model, reformatted, warnings, created_at
		 FROM stage_results WHERE run_id = ? ORDER BY created_at, iteration`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stage results")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StageResult
	for rows.Next() {
		var r model.StageResult
		var refs, warnings string
		if err := rows.Scan(&r.ID, &r.StageName, &r.Domain, &r.Iteration, &refs, &r.OutputText,
			&r.Model, &r.Reformatted, &warnings, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage result")
		}
		if err := json.Unmarshal([]byte(refs), &r.InputRefs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal input refs")
		}
		if err := json.Unmarshal([]byte(warnings), &r.Warnings); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal warnings")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stage results iterate")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
