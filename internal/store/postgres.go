package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":          `INSERT INTO runs (id, name, mode, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_run":             `SELECT id, name, mode, created_at, updated_at FROM runs WHERE id = $1`,
	"touch_run":           `UPDATE runs SET updated_at = $1 WHERE id = $2`,
	"list_answers":        `SELECT question_id, state, summary, details, is_edited, model_used, error, error_detail, attempts, warnings, updated_at FROM answers WHERE run_id = $1 ORDER BY question_id`,
	"insert_stage_result": insertStageResultSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = min(minConns, maxConns)
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS answers (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	question_id  TEXT NOT NULL,
	state        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	details      TEXT NOT NULL DEFAULT '',
	is_edited    BOOLEAN NOT NULL DEFAULT false,
	model_used   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	error_detail TEXT NOT NULL DEFAULT '',
	attempts     INTEGER NOT NULL DEFAULT 0,
	warnings     JSONB NOT NULL DEFAULT '[]',
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, question_id)
);

CREATE TABLE IF NOT EXISTS stage_results (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	stage_name  TEXT NOT NULL,
	domain      TEXT NOT NULL DEFAULT '',
	iteration   INTEGER NOT NULL,
	input_refs  JSONB NOT NULL DEFAULT '[]',
	output_text TEXT NOT NULL,
	model       TEXT NOT NULL DEFAULT '',
	reformatted BOOLEAN NOT NULL DEFAULT false,
	warnings    JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (run_id, stage_name, domain, iteration)
);

CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_stage_results_run_id ON stage_results(run_id);
`

const upsertAnswerSQL = `INSERT INTO answers (run_id, question_id, state, summary, details, is_edited, model_used, error, error_detail, attempts, warnings, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (run_id, question_id) DO UPDATE SET
	state = EXCLUDED.state, summary = EXCLUDED.summary, details = EXCLUDED.details,
	is_edited = EXCLUDED.is_edited, model_used = EXCLUDED.model_used, error = EXCLUDED.error,
	error_detail = EXCLUDED.error_detail, attempts = EXCLUDED.attempts,
	warnings = EXCLUDED.warnings, updated_at = EXCLUDED.updated_at`

const insertStageResultSQL = `INSERT INTO stage_results (id, run_id, stage_name, domain, iteration, input_refs, output_text, model, reformatted, warnings, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, name, mode string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, preparedStatements["insert_run"], id, name, mode, now, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{ID: id, Name: name, Mode: mode, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	err := s.pool.QueryRow(ctx, preparedStatements["get_run"], runID).
		Scan(&r.ID, &r.Name, &r.Mode, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, name, mode, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	argN := 1

	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, argN)
		args = append(args, filter.Mode)
		argN++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argN)
	args = append(args, listLimit(filter.Limit))
	argN++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.Name, &r.Mode, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveAnswer(ctx context.Context, runID string, rec model.AnswerRecord) error {
	warnings, err := json.Marshal(nonNil(rec.Warnings))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal warnings")
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save answer")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, upsertAnswerSQL,
		runID, rec.QuestionID, string(rec.State), rec.Summary, rec.Details, rec.IsEdited,
		rec.ModelUsed, rec.Error, rec.ErrorDetail, rec.Attempts, warnings, updated,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save answer %s", rec.QuestionID)
	}

	tag, err := tx.Exec(ctx, preparedStatements["touch_run"], updated, runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save answer")
}

func (s *PostgresStore) ListAnswers(ctx context.Context, runID string) ([]model.AnswerRecord, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_answers"], runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list answers")
	}
	defer rows.Close()

	var out []model.AnswerRecord
	for rows.Next() {
		var rec model.AnswerRecord
		var state string
		var warnings []byte
		if err := rows.Scan(&rec.QuestionID, &state, &rec.Summary, &rec.Details, &rec.IsEdited,
			&rec.ModelUsed, &rec.Error, &rec.ErrorDetail, &rec.Attempts, &warnings, &rec.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan answer")
		}
		rec.State = model.AnswerState(state)
		if err := json.Unmarshal(warnings, &rec.Warnings); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal warnings")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list answers iterate")
}

func (s *PostgresStore) SaveStageResult(ctx context.Context, runID string, r model.StageResult) error {
	refs, err := json.Marshal(nonNil(r.InputRefs))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal input refs")
	}
	warnings, err := json.Marshal(nonNil(r.Warnings))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal warnings")
	}

	_, err = s.pool.Exec(ctx, insertStageResultSQL,
		r.ID, runID, r.StageName, r.Domain, r.Iteration, refs, r.OutputText,
		r.Model, r.Reformatted, warnings, r.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert stage result %s", r.ID)
}

func (s *PostgresStore) ListStageResults(ctx context.Context, runID string) ([]model.StageResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, stage_name, domain, iteration, input_refs, output_text, model, reformatted, warnings, created_at
		 FROM stage_results WHERE run_id = $1 ORDER BY created_at, iteration`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stage results")
	}
	defer rows.Close()

	var out []model.StageResult
	for rows.Next() {
		var r model.StageResult
		var refs, warnings []byte
		if err := rows.Scan(&r.ID, &r.StageName, &r.Domain, &r.Iteration, &refs, &r.OutputText,
			&r.Model, &r.Reformatted, &warnings, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage result")
		}
		if err := json.Unmarshal(refs, &r.InputRefs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal input refs")
		}
		if err := json.Unmarshal(warnings, &r.Warnings); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal warnings")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stage results iterate")
}
