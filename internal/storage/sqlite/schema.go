package sqlite

// CurrentSchemaVersion is stamped into the database's user_version pragma
// once the full schema script (or the migration chain) brings a file up to
// date.
const CurrentSchemaVersion = 2

// schemaSQL creates every table, index, and trigger for a brand-new store.
// Existing stores at a lower user_version go through the migration runner
// instead (migrations.go); this script is only ever applied once, to a
// freshly created file.
const schemaSQL = `
CREATE TABLE issues (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL,
	priority     INTEGER NOT NULL DEFAULT 2,
	type         TEXT NOT NULL,
	parent_id    TEXT REFERENCES issues(id) ON DELETE SET NULL,
	assignee     TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	closed_at    TEXT,
	description  TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	fields       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX idx_issues_status ON issues(status);
CREATE INDEX idx_issues_type ON issues(type);
CREATE INDEX idx_issues_parent_id ON issues(parent_id);
CREATE INDEX idx_issues_assignee ON issues(assignee);
CREATE INDEX idx_issues_priority ON issues(priority);

CREATE TABLE dependencies (
	issue_id       TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	depends_on_id  TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	kind           TEXT NOT NULL DEFAULT 'blocks',
	created_at     TEXT NOT NULL,
	PRIMARY KEY (issue_id, depends_on_id)
);

CREATE INDEX idx_dependencies_depends_on ON dependencies(depends_on_id);

CREATE TABLE events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id    TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	event_type  TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	old_value   TEXT,
	new_value   TEXT,
	comment     TEXT,
	created_at  TEXT NOT NULL
);

CREATE UNIQUE INDEX idx_events_dedup ON events(
	issue_id, event_type, actor, coalesce(old_value,''), coalesce(new_value,''), created_at
);
CREATE INDEX idx_events_issue_id ON events(issue_id, id);
CREATE INDEX idx_events_created_at ON events(created_at);

CREATE TABLE comments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id    TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	author      TEXT NOT NULL DEFAULT '',
	text        TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX idx_comments_issue_id ON comments(issue_id);

CREATE TABLE labels (
	issue_id  TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	label     TEXT NOT NULL,
	PRIMARY KEY (issue_id, label)
);

CREATE TABLE file_records (
	id          TEXT PRIMARY KEY,
	path        TEXT NOT NULL UNIQUE,
	language    TEXT NOT NULL DEFAULT '',
	file_type   TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE scan_findings (
	id            TEXT PRIMARY KEY,
	file_id       TEXT NOT NULL REFERENCES file_records(id) ON DELETE CASCADE,
	issue_id      TEXT REFERENCES issues(id) ON DELETE SET NULL,
	scan_source   TEXT NOT NULL,
	rule_id       TEXT NOT NULL,
	severity      TEXT NOT NULL DEFAULT 'info',
	status        TEXT NOT NULL DEFAULT 'open',
	message       TEXT NOT NULL DEFAULT '',
	suggestion    TEXT NOT NULL DEFAULT '',
	scan_run_id   TEXT NOT NULL DEFAULT '',
	line_start    INTEGER,
	line_end      INTEGER,
	seen_count    INTEGER NOT NULL DEFAULT 1,
	first_seen    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	last_seen_at  TEXT NOT NULL,
	CHECK (severity IN ('critical', 'high', 'medium', 'low', 'info')),
	CHECK (status IN ('open', 'acknowledged', 'fixed', 'false_positive', 'unseen_in_latest'))
);

CREATE UNIQUE INDEX idx_scan_findings_dedup ON scan_findings(
	file_id, scan_source, rule_id, coalesce(line_start, -1)
);
CREATE INDEX idx_scan_findings_scan_source ON scan_findings(scan_source, scan_run_id);
CREATE INDEX idx_scan_findings_status ON scan_findings(status);

CREATE TABLE file_associations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id     TEXT NOT NULL REFERENCES file_records(id) ON DELETE CASCADE,
	issue_id    TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	assoc_type  TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE (file_id, issue_id, assoc_type)
);

CREATE TABLE file_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id     TEXT NOT NULL REFERENCES file_records(id) ON DELETE CASCADE,
	event_type  TEXT NOT NULL,
	old_value   TEXT,
	new_value   TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX idx_file_events_file_id ON file_events(file_id, id);

CREATE VIRTUAL TABLE issues_fts USING fts5(
	id UNINDEXED, title, description, content='issues', content_rowid='rowid'
);

CREATE TRIGGER issues_fts_insert AFTER INSERT ON issues BEGIN
	INSERT INTO issues_fts(rowid, id, title, description) VALUES (new.rowid, new.id, new.title, new.description);
END;

CREATE TRIGGER issues_fts_update AFTER UPDATE ON issues BEGIN
	INSERT INTO issues_fts(issues_fts, rowid, id, title, description) VALUES ('delete', old.rowid, old.id, old.title, old.description);
	INSERT INTO issues_fts(rowid, id, title, description) VALUES (new.rowid, new.id, new.title, new.description);
END;

CREATE TRIGGER issues_fts_delete AFTER DELETE ON issues BEGIN
	INSERT INTO issues_fts(issues_fts, rowid, id, title, description) VALUES ('delete', old.rowid, old.id, old.title, old.description);
END;
`
