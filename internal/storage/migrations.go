package storage

const schemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id               TEXT    PRIMARY KEY,
	source           TEXT    NOT NULL DEFAULT 'engine',
	contract         TEXT    NOT NULL DEFAULT '',
	contract_version TEXT    NOT NULL DEFAULT '',
	contract_digest  TEXT    NOT NULL DEFAULT '',
	target           TEXT    NOT NULL DEFAULT '',
	status           TEXT    NOT NULL,
	started_at       TEXT    NOT NULL,
	ended_at         TEXT    NOT NULL,
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	total            INTEGER NOT NULL DEFAULT 0,
	passed           INTEGER NOT NULL DEFAULT 0,
	failed           INTEGER NOT NULL DEFAULT 0,
	errored          INTEGER NOT NULL DEFAULT 0,
	skipped          INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS case_results (
	run_id      TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	case_id     TEXT    NOT NULL,
	name        TEXT    NOT NULL,
	operation   TEXT    NOT NULL DEFAULT '',
	method      TEXT    NOT NULL DEFAULT '',
	path        TEXT    NOT NULL DEFAULT '',
	category    TEXT    NOT NULL DEFAULT '',
	status      TEXT    NOT NULL,
	explanation TEXT    NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	diff        TEXT    NOT NULL DEFAULT '[]',
	started_at  TEXT    NOT NULL,
	PRIMARY KEY (run_id, case_id)
);

CREATE INDEX IF NOT EXISTS idx_case_results_started_at ON case_results(started_at);

CREATE TABLE IF NOT EXISTS junit_suites (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name        TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	tests       INTEGER NOT NULL DEFAULT 0,
	passed      INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	errored     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	timestamp   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_junit_suites_run_id ON junit_suites(run_id);
`

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS junit_suites (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name        TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	tests       INTEGER NOT NULL DEFAULT 0,
	passed      INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	errored     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	timestamp   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_junit_suites_run_id ON junit_suites(run_id);
ALTER TABLE runs ADD COLUMN source TEXT NOT NULL DEFAULT 'engine';`,
	},
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT        PRIMARY KEY,
	source           TEXT        NOT NULL DEFAULT 'engine',
	contract         TEXT        NOT NULL DEFAULT '',
	contract_version TEXT        NOT NULL DEFAULT '',
	contract_digest  TEXT        NOT NULL DEFAULT '',
	target           TEXT        NOT NULL DEFAULT '',
	status           TEXT        NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ NOT NULL,
	duration_ms      BIGINT      NOT NULL DEFAULT 0,
	total            INTEGER     NOT NULL DEFAULT 0,
	passed           INTEGER     NOT NULL DEFAULT 0,
	failed           INTEGER     NOT NULL DEFAULT 0,
	errored          INTEGER     NOT NULL DEFAULT 0,
	skipped          INTEGER     NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS case_results (
	run_id      TEXT        NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	case_id     TEXT        NOT NULL,
	name        TEXT        NOT NULL,
	operation   TEXT        NOT NULL DEFAULT '',
	method      TEXT        NOT NULL DEFAULT '',
	path        TEXT        NOT NULL DEFAULT '',
	category    TEXT        NOT NULL DEFAULT '',
	status      TEXT        NOT NULL,
	explanation TEXT        NOT NULL DEFAULT '',
	status_code INTEGER     NOT NULL DEFAULT 0,
	duration_ms BIGINT      NOT NULL DEFAULT 0,
	diff        JSONB       NOT NULL DEFAULT '[]'::jsonb,
	started_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, case_id)
);

CREATE INDEX IF NOT EXISTS idx_case_results_started_at ON case_results(started_at);

CREATE TABLE IF NOT EXISTS junit_suites (
	id          BIGSERIAL   PRIMARY KEY,
	run_id      TEXT        NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name        TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	tests       INTEGER     NOT NULL DEFAULT 0,
	passed      INTEGER     NOT NULL DEFAULT 0,
	failed      INTEGER     NOT NULL DEFAULT 0,
	errored     INTEGER     NOT NULL DEFAULT 0,
	skipped     INTEGER     NOT NULL DEFAULT 0,
	duration_ms BIGINT      NOT NULL DEFAULT 0,
	timestamp   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_junit_suites_run_id ON junit_suites(run_id);
`
