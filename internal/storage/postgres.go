package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/y0f/apiprobe/internal/report"
	"github.com/y0f/apiprobe/internal/run"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and applies the idempotent schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, r *report.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save report begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, r.RunID, r.Source, r.Contract, r.ContractVersion, r.ContractDigest, r.Target, string(r.Status),
		r.StartedAt.UTC(), r.EndedAt.UTC(), r.DurationMs,
		r.Summary.Total, r.Summary.Passed, r.Summary.Failed, r.Summary.Errored, r.Summary.Skipped)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range r.Cases {
		diff, err := encodeDiff(c.Diff)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO case_results (`+caseColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::jsonb,$13)
		`, r.RunID, c.ID, c.Name, c.Operation, c.Method, c.Path, c.Category, string(c.Status),
			c.Explanation, c.StatusCode, c.DurationMs, diff, r.StartedAt.UTC())
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert case results: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const pgRunSelect = `SELECT id, source, contract, contract_version, contract_digest, target, status,
	started_at, ended_at, duration_ms, total, passed, failed, errored, skipped FROM runs`

const pgCaseSelect = `SELECT run_id, case_id, name, operation, method, path, category, status,
	explanation, status_code, duration_ms, diff::text, started_at FROM case_results`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	rec, err := pgScanRun(s.pool.QueryRow(ctx, pgRunSelect+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, f RunFilter) ([]*RunRecord, error) {
	rows, err := s.pool.Query(ctx, pgRunSelect+`
		WHERE ($1 = '' OR contract = $1) AND ($2 = '' OR source = $2)
		ORDER BY started_at DESC, id
		LIMIT $3
	`, f.Contract, f.Source, f.limit())
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return pgCollectRuns(rows)
}

func (s *PostgresStore) RunsBetween(ctx context.Context, from, to time.Time) ([]*RunRecord, error) {
	rows, err := s.pool.Query(ctx, pgRunSelect+`
		WHERE started_at >= $1 AND started_at <= $2
		ORDER BY started_at, id
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("runs between: %w", err)
	}
	return pgCollectRuns(rows)
}

func (s *PostgresStore) ListCaseResults(ctx context.Context, runID string) ([]*CaseResult, error) {
	rows, err := s.pool.Query(ctx, pgCaseSelect+` WHERE run_id=$1 ORDER BY case_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list case results: %w", err)
	}
	return pgCollectCases(rows)
}

func (s *PostgresStore) CaseResultsBetween(ctx context.Context, from, to time.Time) ([]*CaseResult, error) {
	rows, err := s.pool.Query(ctx, pgCaseSelect+`
		WHERE started_at >= $1 AND started_at <= $2
		ORDER BY started_at, run_id, case_id
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("case results between: %w", err)
	}
	return pgCollectCases(rows)
}

func (s *PostgresStore) SaveJUnitSuites(ctx context.Context, runID string, suites []report.Suite) error {
	if len(suites) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, su := range suites {
		c := su.Counts()
		ts := su.Timestamp
		if ts.IsZero() {
			ts = now
		}
		batch.Queue(`
			INSERT INTO junit_suites (run_id, name, status, tests, passed, failed, errored, skipped, duration_ms, timestamp)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, runID, su.Name, su.Status(), c.Total, c.Passed, c.Failed, c.Errored, c.Skipped,
			su.Duration.Milliseconds(), ts.UTC())
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert junit suites: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListJUnitSuites(ctx context.Context, runID string) ([]*JUnitSuite, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, name, status, tests, passed, failed, errored, skipped, duration_ms, timestamp
		FROM junit_suites WHERE run_id=$1 ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list junit suites: %w", err)
	}
	defer rows.Close()

	var out []*JUnitSuite
	for rows.Next() {
		var su JUnitSuite
		if err := rows.Scan(&su.ID, &su.RunID, &su.Name, &su.Status, &su.Total, &su.Passed, &su.Failed,
			&su.Errored, &su.Skipped, &su.DurationMs, &su.Timestamp); err != nil {
			return nil, fmt.Errorf("scan junit suite: %w", err)
		}
		out = append(out, &su)
	}
	return out, rows.Err()
}

// PurgeOldRuns relies on ON DELETE CASCADE for case results and suites.
func (s *PostgresStore) PurgeOldRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM runs WHERE started_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func pgScanRun(row pgx.Row) (*RunRecord, error) {
	var r RunRecord
	var status string
	err := row.Scan(&r.ID, &r.Source, &r.Contract, &r.ContractVersion, &r.ContractDigest, &r.Target, &status,
		&r.StartedAt, &r.EndedAt, &r.DurationMs, &r.Total, &r.Passed, &r.Failed, &r.Errored, &r.Skipped)
	if err != nil {
		return nil, err
	}
	r.Status = run.Status(status)
	r.StartedAt = r.StartedAt.UTC()
	r.EndedAt = r.EndedAt.UTC()
	return &r, nil
}

func pgCollectRuns(rows pgx.Rows) ([]*RunRecord, error) {
	defer rows.Close()
	var out []*RunRecord
	for rows.Next() {
		r, err := pgScanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func pgCollectCases(rows pgx.Rows) ([]*CaseResult, error) {
	defer rows.Close()
	var out []*CaseResult
	for rows.Next() {
		var c CaseResult
		var status, diff string
		if err := rows.Scan(&c.RunID, &c.CaseID, &c.Name, &c.Operation, &c.Method, &c.Path, &c.Category, &status,
			&c.Explanation, &c.StatusCode, &c.DurationMs, &diff, &c.StartedAt); err != nil {
			return nil, fmt.Errorf("scan case result: %w", err)
		}
		c.Status = run.VerdictStatus(status)
		c.StartedAt = c.StartedAt.UTC()
		decodeDiff(diff, &c)
		out = append(out, &c)
	}
	return out, rows.Err()
}
