package store

// PostgresSchema creates the lifecycle tables in PostgreSQL.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS protocols (
	id           TEXT PRIMARY KEY,
	module_type  TEXT NOT NULL,
	status       TEXT NOT NULL,
	data         JSONB,
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	version      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_protocols_status ON protocols (status, created_at);

CREATE TABLE IF NOT EXISTS stages (
	id                    TEXT PRIMARY KEY,
	protocol_id           TEXT NOT NULL REFERENCES protocols (id) ON DELETE CASCADE,
	stage_order           INTEGER NOT NULL,
	name                  TEXT NOT NULL,
	status                TEXT NOT NULL,
	sla_working_days      INTEGER NOT NULL DEFAULT 0,
	required_documents    JSONB,
	completion_conditions JSONB,
	can_skip              BOOLEAN NOT NULL DEFAULT FALSE,
	due_date              TIMESTAMPTZ,
	assigned_to           TEXT NOT NULL DEFAULT '',
	started_by            TEXT NOT NULL DEFAULT '',
	started_at            TIMESTAMPTZ,
	completed_at          TIMESTAMPTZ,
	skipped_at            TIMESTAMPTZ,
	failed_at             TIMESTAMPTZ,
	result                TEXT NOT NULL DEFAULT '',
	notes                 TEXT NOT NULL DEFAULT '',
	reason                TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_stages_order ON stages (protocol_id, stage_order);

CREATE TABLE IF NOT EXISTS slas (
	id                TEXT PRIMARY KEY,
	protocol_id       TEXT NOT NULL UNIQUE REFERENCES protocols (id) ON DELETE CASCADE,
	start_date        TIMESTAMPTZ NOT NULL,
	expected_end_date TIMESTAMPTZ NOT NULL,
	actual_end_date   TIMESTAMPTZ,
	working_days      INTEGER NOT NULL,
	calendar_days     INTEGER NOT NULL,
	is_paused         BOOLEAN NOT NULL DEFAULT FALSE,
	paused_at         TIMESTAMPTZ,
	resumed_at        TIMESTAMPTZ,
	paused_reason     TEXT NOT NULL DEFAULT '',
	total_paused_days INTEGER NOT NULL DEFAULT 0,
	is_overdue        BOOLEAN NOT NULL DEFAULT FALSE,
	completed_late    BOOLEAN NOT NULL DEFAULT FALSE,
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_slas_open ON slas (expected_end_date) WHERE actual_end_date IS NULL;

CREATE TABLE IF NOT EXISTS pendings (
	id            TEXT PRIMARY KEY,
	protocol_id   TEXT NOT NULL REFERENCES protocols (id) ON DELETE CASCADE,
	type          TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	priority      TEXT NOT NULL,
	status        TEXT NOT NULL,
	is_blocking   BOOLEAN NOT NULL DEFAULT FALSE,
	due_date      TIMESTAMPTZ,
	details       JSONB,
	created_by    TEXT NOT NULL DEFAULT '',
	assigned_to   TEXT NOT NULL DEFAULT '',
	resolved_at   TIMESTAMPTZ,
	resolved_by   TEXT NOT NULL DEFAULT '',
	resolution    TEXT NOT NULL DEFAULT '',
	cancelled_at  TIMESTAMPTZ,
	cancel_reason TEXT NOT NULL DEFAULT '',
	expired_at    TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pendings_protocol ON pendings (protocol_id, status);

CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	protocol_id   TEXT NOT NULL REFERENCES protocols (id) ON DELETE CASCADE,
	document_type TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	reviewed_by   TEXT NOT NULL DEFAULT '',
	reviewed_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_protocol ON documents (protocol_id);
`

// SQLiteSchema creates the lifecycle tables in SQLite. Column names match
// PostgresSchema so both stores share their queries.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS protocols (
	id           TEXT PRIMARY KEY,
	module_type  TEXT NOT NULL,
	status       TEXT NOT NULL,
	data         TEXT,
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	version      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_protocols_status ON protocols (status, created_at);

CREATE TABLE IF NOT EXISTS stages (
	id                    TEXT PRIMARY KEY,
	protocol_id           TEXT NOT NULL REFERENCES protocols (id) ON DELETE CASCADE,
	stage_order           INTEGER NOT NULL,
	name                  TEXT NOT NULL,
	status                TEXT NOT NULL,
	sla_working_days      INTEGER NOT NULL DEFAULT 0,
	required_documents    TEXT,
	completion_conditions TEXT,
	can_skip              BOOLEAN NOT NULL DEFAULT 0,
	due_date              TIMESTAMP,
	assigned_to           TEXT NOT NULL DEFAULT '',
	started_by            TEXT NOT NULL DEFAULT '',
	started_at            TIMESTAMP,
	completed_at          TIMESTAMP,
	skipped_at            TIMESTAMP,
	failed_at             TIMESTAMP,
	result                TEXT NOT NULL DEFAULT '',
	notes                 TEXT NOT NULL DEFAULT '',
	reason                TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMP NOT NULL,
	updated_at            TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_stages_order ON stages (protocol_id, stage_order);

CREATE TABLE IF NOT EXISTS slas (
	id                TEXT PRIMARY KEY,
	protocol_id       TEXT NOT NULL UNIQUE REFERENCES protocols (id) ON DELETE CASCADE,
	start_date        TIMESTAMP NOT NULL,
	expected_end_date TIMESTAMP NOT NULL,
	actual_end_date   TIMESTAMP,
	working_days      INTEGER NOT NULL,
	calendar_days     INTEGER NOT NULL,
	is_paused         BOOLEAN NOT NULL DEFAULT 0,
	paused_at         TIMESTAMP,
	resumed_at        TIMESTAMP,
	paused_reason     TEXT NOT NULL DEFAULT '',
	total_paused_days INTEGER NOT NULL DEFAULT 0,
	is_overdue        BOOLEAN NOT NULL DEFAULT 0,
	completed_late    BOOLEAN NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pendings (
	id            TEXT PRIMARY KEY,
	protocol_id   TEXT NOT NULL REFERENCES protocols (id) ON DELETE CASCADE,
	type          TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	priority      TEXT NOT NULL,
	status        TEXT NOT NULL,
	is_blocking   BOOLEAN NOT NULL DEFAULT 0,
	due_date      TIMESTAMP,
	details       TEXT,
	created_by    TEXT NOT NULL DEFAULT '',
	assigned_to   TEXT NOT NULL DEFAULT '',
	resolved_at   TIMESTAMP,
	resolved_by   TEXT NOT NULL DEFAULT '',
	resolution    TEXT NOT NULL DEFAULT '',
	cancelled_at  TIMESTAMP,
	cancel_reason TEXT NOT NULL DEFAULT '',
	expired_at    TIMESTAMP,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pendings_protocol ON pendings (protocol_id, status);

CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	protocol_id   TEXT NOT NULL REFERENCES protocols (id) ON DELETE CASCADE,
	document_type TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	reviewed_by   TEXT NOT NULL DEFAULT '',
	reviewed_at   TIMESTAMP,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_protocol ON documents (protocol_id);
`
