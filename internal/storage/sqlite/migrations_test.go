package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

// v1FixtureSchema is schemaSQL as it looked before migrateV1ToV2 added
// CHECK constraints to scan_findings, used to build a synthetic lower-
// version database file for exercising the migration runner.
func v1FixtureSchema() string {
	without := strings.Replace(schemaSQL,
		"\tlast_seen_at  TEXT NOT NULL,\n"+
			"\tCHECK (severity IN ('critical', 'high', 'medium', 'low', 'info')),\n"+
			"\tCHECK (status IN ('open', 'acknowledged', 'fixed', 'false_positive', 'unseen_in_latest'))\n",
		"\tlast_seen_at  TEXT NOT NULL\n",
		1)
	if without == schemaSQL {
		panic("v1FixtureSchema: CHECK constraints not found in schemaSQL to strip")
	}
	return without
}

// createV1Fixture builds a database file at dbPath holding the pre-v2
// schema (no CHECK constraints on scan_findings) stamped at user_version=1,
// with one scan_findings row already present, then closes it.
func createV1Fixture(t *testing.T, dbPath string) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("opening v1 fixture: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		t.Fatalf("enabling WAL on fixture: %v", err)
	}
	if _, err := db.ExecContext(ctx, v1FixtureSchema()); err != nil {
		t.Fatalf("applying v1 fixture schema: %v", err)
	}

	now := nowISO()
	if _, err := db.ExecContext(ctx, `INSERT INTO file_records (id, path, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		"file-1", "internal/foo.go", now, now); err != nil {
		t.Fatalf("seeding file_records: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO scan_findings (id, file_id, scan_source, rule_id, severity, status, first_seen, updated_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"finding-1", "file-1", "staticcheck", "SA4006", "medium", "open", now, now, now); err != nil {
		t.Fatalf("seeding scan_findings: %v", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA user_version = 1`); err != nil {
		t.Fatalf("stamping user_version=1: %v", err)
	}
}

func TestMigrateV1ToV2RebuildsScanFindingsWithChecks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "filigree.db")
	createV1Fixture(t, dbPath)

	s, err := Open(dbPath, WithPrefix("fil"))
	if err != nil {
		t.Fatalf("Open against v1 fixture: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Fatalf("expected schema version %d after migration, got %d", CurrentSchemaVersion, version)
	}

	var severity string
	if err := s.db.QueryRowContext(ctx, `SELECT severity FROM scan_findings WHERE id = ?`, "finding-1").Scan(&severity); err != nil {
		t.Fatalf("expected pre-migration row to survive rebuild: %v", err)
	}
	if severity != "medium" {
		t.Fatalf("expected preserved severity %q, got %q", "medium", severity)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_findings (id, file_id, scan_source, rule_id, severity, status, first_seen, updated_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"finding-bad", "file-1", "staticcheck", "SA9999", "not-a-real-severity", "open", nowISO(), nowISO(), nowISO())
	if err == nil {
		t.Fatal("expected CHECK constraint on severity to reject an invalid value after migration")
	}
}

func TestRunMigrationsRejectsNewerThanSupportedVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "filigree.db")
	createV1Fixture(t, dbPath)

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("opening raw connection: %v", err)
	}
	if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, CurrentSchemaVersion+1)); err != nil {
		t.Fatalf("stamping future version: %v", err)
	}
	db.Close()

	_, err = Open(dbPath, WithPrefix("fil"))
	if err == nil {
		t.Fatal("expected Open to refuse a database newer than CurrentSchemaVersion")
	}
}
