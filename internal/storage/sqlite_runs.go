package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/y0f/apiprobe/internal/report"
	"github.com/y0f/apiprobe/internal/run"
)

const runColumns = `id, source, contract, contract_version, contract_digest, target, status,
	started_at, ended_at, duration_ms, total, passed, failed, errored, skipped`

const caseColumns = `run_id, case_id, name, operation, method, path, category, status,
	explanation, status_code, duration_ms, diff, started_at`

func (s *SQLiteStore) SaveReport(ctx context.Context, r *report.Report) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save report begin: %w", err)
	}
	defer tx.Rollback()

	started := formatTime(r.StartedAt)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Source, r.Contract, r.ContractVersion, r.ContractDigest, r.Target, string(r.Status),
		started, formatTime(r.EndedAt), r.DurationMs,
		r.Summary.Total, r.Summary.Passed, r.Summary.Failed, r.Summary.Errored, r.Summary.Skipped)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO case_results (`+caseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save report prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range r.Cases {
		diff, err := encodeDiff(c.Diff)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			r.RunID, c.ID, c.Name, c.Operation, c.Method, c.Path, c.Category, string(c.Status),
			c.Explanation, c.StatusCode, c.DurationMs, diff, started)
		if err != nil {
			return fmt.Errorf("insert case %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, f RunFilter) ([]*RunRecord, error) {
	where := "1=1"
	var args []any
	if f.Contract != "" {
		where += " AND contract=?"
		args = append(args, f.Contract)
	}
	if f.Source != "" {
		where += " AND source=?"
		args = append(args, f.Source)
	}
	args = append(args, f.limit())

	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE `+where+` ORDER BY started_at DESC, id LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return collectRuns(rows)
}

func (s *SQLiteStore) RunsBetween(ctx context.Context, from, to time.Time) ([]*RunRecord, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE started_at >= ? AND started_at <= ? ORDER BY started_at, id`,
		formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("runs between: %w", err)
	}
	return collectRuns(rows)
}

func (s *SQLiteStore) ListCaseResults(ctx context.Context, runID string) ([]*CaseResult, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM case_results WHERE run_id=? ORDER BY case_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list case results: %w", err)
	}
	return collectCases(rows)
}

func (s *SQLiteStore) CaseResultsBetween(ctx context.Context, from, to time.Time) ([]*CaseResult, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM case_results WHERE started_at >= ? AND started_at <= ? ORDER BY started_at, run_id, case_id`,
		formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("case results between: %w", err)
	}
	return collectCases(rows)
}

func (s *SQLiteStore) SaveJUnitSuites(ctx context.Context, runID string, suites []report.Suite) error {
	if len(suites) == 0 {
		return nil
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("junit suites begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO junit_suites (run_id, name, status, tests, passed, failed, errored, skipped, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("junit suites prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, su := range suites {
		c := su.Counts()
		ts := su.Timestamp
		if ts.IsZero() {
			ts = now
		}
		_, err := stmt.ExecContext(ctx, runID, su.Name, su.Status(),
			c.Total, c.Passed, c.Failed, c.Errored, c.Skipped, su.Duration.Milliseconds(), formatTime(ts))
		if err != nil {
			return fmt.Errorf("insert junit suite %s: %w", su.Name, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListJUnitSuites(ctx context.Context, runID string) ([]*JUnitSuite, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, run_id, name, status, tests, passed, failed, errored, skipped, duration_ms, timestamp
		 FROM junit_suites WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list junit suites: %w", err)
	}
	defer rows.Close()

	var out []*JUnitSuite
	for rows.Next() {
		var su JUnitSuite
		var ts string
		if err := rows.Scan(&su.ID, &su.RunID, &su.Name, &su.Status, &su.Total, &su.Passed, &su.Failed,
			&su.Errored, &su.Skipped, &su.DurationMs, &ts); err != nil {
			return nil, fmt.Errorf("scan junit suite: %w", err)
		}
		su.Timestamp = parseTime(ts)
		out = append(out, &su)
	}
	return out, rows.Err()
}

// PurgeOldRuns deletes runs started before the cutoff together with their
// case results and suites, and returns the number of runs removed.
func (s *SQLiteStore) PurgeOldRuns(ctx context.Context, before time.Time) (int64, error) {
	ts := formatTime(before)

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("purge begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM case_results WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`,
		`DELETE FROM junit_suites WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`,
	} {
		if _, err := tx.ExecContext(ctx, q, ts); err != nil {
			return 0, fmt.Errorf("purge children: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", ts)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("purge commit: %w", err)
	}
	return n, nil
}

func scanRun(row scanner) (*RunRecord, error) {
	var r RunRecord
	var status, started, ended string
	err := row.Scan(&r.ID, &r.Source, &r.Contract, &r.ContractVersion, &r.ContractDigest, &r.Target, &status,
		&started, &ended, &r.DurationMs, &r.Total, &r.Passed, &r.Failed, &r.Errored, &r.Skipped)
	if err != nil {
		return nil, err
	}
	r.Status = run.Status(status)
	r.StartedAt = parseTime(started)
	r.EndedAt = parseTime(ended)
	return &r, nil
}

func collectRuns(rows *sql.Rows) ([]*RunRecord, error) {
	defer rows.Close()
	var out []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanCase(row scanner) (*CaseResult, error) {
	var c CaseResult
	var status, diff, started string
	err := row.Scan(&c.RunID, &c.CaseID, &c.Name, &c.Operation, &c.Method, &c.Path, &c.Category, &status,
		&c.Explanation, &c.StatusCode, &c.DurationMs, &diff, &started)
	if err != nil {
		return nil, err
	}
	c.Status = run.VerdictStatus(status)
	c.StartedAt = parseTime(started)
	decodeDiff(diff, &c)
	return &c, nil
}

func collectCases(rows *sql.Rows) ([]*CaseResult, error) {
	defer rows.Close()
	var out []*CaseResult
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case result: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func decodeDiff(data string, c *CaseResult) {
	json.Unmarshal([]byte(data), &c.Diff)
	if len(c.Diff) == 0 {
		c.Diff = nil
	}
}

func encodeDiff(diff []run.Mismatch) (string, error) {
	if len(diff) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(diff)
	if err != nil {
		return "", fmt.Errorf("encode diff: %w", err)
	}
	return string(data), nil
}
