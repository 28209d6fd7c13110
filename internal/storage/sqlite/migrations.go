package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

// migrationFn applies one schema step inside an already-open write
// transaction. It must not commit or roll back itself.
type migrationFn func(ctx context.Context, tx *sql.Tx) error

// migrations is keyed by the "from" version: migrations[v] takes a
// database from v to v+1. A fresh store gets the full schema script
// directly at CurrentSchemaVersion; this registry only matters for files
// created at an older version.
var migrations = map[int]migrationFn{
	1: migrateV1ToV2,
}

// migrateV1ToV2 tightens scan_findings.severity/status with CHECK
// constraints SQLite's ALTER TABLE can't add in place, so it goes through
// the rebuild-table sequence instead.
func migrateV1ToV2(ctx context.Context, tx *sql.Tx) error {
	newTable := `
		CREATE TABLE scan_findings_new (
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
		)`
	recreateIndexes := []string{
		`CREATE UNIQUE INDEX idx_scan_findings_dedup ON scan_findings(file_id, scan_source, rule_id, coalesce(line_start, -1))`,
		`CREATE INDEX idx_scan_findings_scan_source ON scan_findings(scan_source, scan_run_id)`,
		`CREATE INDEX idx_scan_findings_status ON scan_findings(status)`,
	}
	return rebuildTable(ctx, tx, "scan_findings", newTable, "*", nil, recreateIndexes, nil)
}

// runMigrations reads the database's current version and applies pending
// steps in order, each inside its own database/sql transaction (a deferred
// BEGIN, not BEGIN IMMEDIATE). A failing step, version stamp or commit
// returns a *types.MigrationError wrapping storage.ErrMigration. It
// refuses to run against a file whose version is already ahead of
// CurrentSchemaVersion (schema downgrade is an explicit non-goal).
func runMigrations(ctx context.Context, db *sql.DB, from int, logger *slog.Logger) error {
	if from > CurrentSchemaVersion {
		return fmt.Errorf("%w: database version %d is newer than supported version %d (downgrade not supported)",
			storage.ErrMigration, from, CurrentSchemaVersion)
	}

	version := from
	for version < CurrentSchemaVersion {
		step, ok := migrations[version]
		if !ok {
			return fmt.Errorf("%w: no migration registered from version %d", storage.ErrMigration, version)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: beginning migration from %d: %v", storage.ErrMigration, version, err)
		}
		if err := step(ctx, tx); err != nil {
			tx.Rollback()
			logger.Error("migration step failed", "from_version", version, "error", err)
			return &types.MigrationError{FromVersion: version, ToVersion: version + 1, Err: fmt.Errorf("%w: step from %d failed: %v", storage.ErrMigration, version, err)}
		}
		next := version + 1
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version=%d`, next)); err != nil {
			tx.Rollback()
			return &types.MigrationError{FromVersion: version, ToVersion: next, Err: fmt.Errorf("%w: stamping version %d: %v", storage.ErrMigration, next, err)}
		}
		if err := tx.Commit(); err != nil {
			return &types.MigrationError{FromVersion: version, ToVersion: next, Err: fmt.Errorf("%w: committing migration to %d: %v", storage.ErrMigration, next, err)}
		}
		logger.Info("applied migration", "from_version", version, "to_version", next)
		version = next
	}
	return nil
}

// columnExists checks PRAGMA table_info for idempotent column-adding
// migrations, the pattern the teacher uses throughout its migrations/ dir
// (e.g. 002_external_ref_column.go).
func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// addColumn adds column to table with the given type/default clause if it
// doesn't already exist.
func addColumn(ctx context.Context, tx *sql.Tx, table, column, typeAndDefault string) error {
	exists, err := columnExists(ctx, tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, typeAndDefault))
	return err
}

// addIndex creates an index if it doesn't already exist.
func addIndex(ctx context.Context, tx *sql.Tx, name, table, columns string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(%s)`, name, table, columns))
	return err
}

// dropIndex removes an index if present.
func dropIndex(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s`, name))
	return err
}

// renameColumn renames a column using SQLite's native RENAME COLUMN.
func renameColumn(ctx context.Context, tx *sql.Tx, table, from, to string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s`, table, from, to))
	return err
}

// rebuildTable performs SQLite's canonical 12-step table-rebuild sequence
// for constraint changes (FK/CHECK) that ALTER TABLE cannot express in
// place: SAVEPOINT, drop dependent views, create the new table, copy data
// (optionally transformed via copyColumns), drop the old table, rename the
// new one into place, recreate indexes and views, RELEASE SAVEPOINT.
//
// newTableSQL must create a table literally named "<table>_new". copyExpr
// is the column list/expression used in the INSERT...SELECT (pass "*" to
// copy unchanged). dependentViews are dropped before the rebuild and their
// definitions are the caller's responsibility to recreate via
// recreateViews, since a constraint change often changes what those views
// select.
func rebuildTable(ctx context.Context, tx *sql.Tx, table, newTableSQL, copyExpr string, dependentViews []string, recreateIndexes []string, recreateViews []string) error {
	savepoint := "rebuild_" + table
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SAVEPOINT %s`, savepoint)); err != nil {
		return err
	}

	fail := func(err error) error {
		tx.ExecContext(ctx, fmt.Sprintf(`ROLLBACK TO %s`, savepoint))
		return err
	}

	for _, view := range dependentViews {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP VIEW IF EXISTS %s`, view)); err != nil {
			return fail(err)
		}
	}

	if _, err := tx.ExecContext(ctx, newTableSQL); err != nil {
		return fail(err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s_new SELECT %s FROM %s`, table, copyExpr, table)
	if _, err := tx.ExecContext(ctx, insert); err != nil {
		return fail(err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, table)); err != nil {
		return fail(err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s_new RENAME TO %s`, table, table)); err != nil {
		return fail(err)
	}

	for _, stmt := range recreateIndexes {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fail(err)
		}
	}
	for _, stmt := range recreateViews {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fail(err)
		}
	}

	// Re-check FK integrity before releasing: the drop/rename window above
	// is a documented non-atomic region with respect to other tables' FKs
	// that reference `table` by name rather than rowid, since SQLite
	// re-resolves FK targets by name on each statement; this is the last
	// chance to catch a dangling reference before committing.
	rows, err := tx.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fail(err)
	}
	hasViolation := rows.Next()
	rows.Close()
	if hasViolation {
		return fail(fmt.Errorf("foreign key violation after rebuilding %s", table))
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`RELEASE %s`, savepoint)); err != nil {
		return err
	}
	return nil
}
