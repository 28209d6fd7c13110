// Package sqlite implements storage.Storage over a single-file embedded
// SQLite database using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/tachyon-beep/filigree/internal/lockfile"
	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/templates"
)

// Store is the sqlite-backed implementation of storage.Storage. Each Store
// exclusively owns its DB connection and its process lock; callers must
// Close it to release both.
type Store struct {
	db       *sql.DB
	lock     *lockfile.Handle
	registry *templates.Registry
	prefix   string
	logger   *slog.Logger

	onMutate func() // triggers summary projection refresh; nil-safe no-op when unset
}

// Option configures Open.
type Option func(*options)

type options struct {
	prefix   string
	logger   *slog.Logger
	registry *templates.Registry
	onMutate func()
}

// WithPrefix sets the issue-id prefix new issues are minted with.
func WithPrefix(prefix string) Option { return func(o *options) { o.prefix = prefix } }

// WithLogger sets the structured logger used for slow-path diagnostics.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithRegistry injects a pre-built template registry (e.g. one already
// loaded with project-specific overrides). Defaults to a registry rooted at
// the database's directory: the built-in packs plus any overrides under its
// packs/ and templates/ subdirectories.
func WithRegistry(r *templates.Registry) Option { return func(o *options) { o.registry = r } }

// WithOnMutate registers a callback invoked (best-effort; it returns
// nothing, so no error reaches the mutation) after every committed mutation, so a caller can wire
// up the summary projection refresh described in spec.md §4.7.
func WithOnMutate(fn func()) Option { return func(o *options) { o.onMutate = fn } }

// Open opens (creating if necessary) the database file at dbPath, takes an
// exclusive process lock on dbPath+".lock", applies pragmas, and brings the
// schema to CurrentSchemaVersion via the full script (fresh file) or the
// migration runner (existing file at a lower version).
func Open(dbPath string, opts ...Option) (*Store, error) {
	o := &options{prefix: "fil"}
	for _, fn := range opts {
		fn(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	lock, err := lockfile.Acquire(dbPath + ".lock")
	if err != nil {
		if lockfile.IsLocked(err) {
			return nil, fmt.Errorf("opening store: %w", storage.ErrLocked)
		}
		return nil, fmt.Errorf("opening store: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer per process; WAL still allows concurrent readers

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		lock.Release()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	if o.registry == nil {
		o.registry = templates.NewRegistry(filepath.Dir(dbPath), nil, o.logger)
	}

	s := &Store{db: db, lock: lock, registry: o.registry, prefix: o.prefix, logger: o.logger, onMutate: o.onMutate}

	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		lock.Release()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying initial schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version=%d`, CurrentSchemaVersion)); err != nil {
			tx.Rollback()
			return fmt.Errorf("stamping schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing initial schema: %w", err)
		}
		return nil
	}

	return runMigrations(ctx, s.db, version, s.logger)
}

// Close releases the database handle and the process lock.
func (s *Store) Close() error {
	dbErr := s.db.Close()
	lockErr := s.lock.Release()
	if dbErr != nil {
		return dbErr
	}
	return lockErr
}

// SchemaVersion reports the database's current user_version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v)
	return v, err
}

// ValidateFieldsForState delegates to the workflow registry so callers
// outside this package (e.g. the summary projection) never need direct
// registry access.
func (s *Store) ValidateFieldsForState(ctx context.Context, typeName, state string, fields map[string]any) []string {
	return s.registry.ValidateFieldsForState(typeName, state, fields)
}

// ReloadTemplates rebuilds the cached workflow registry from disk.
func (s *Store) ReloadTemplates(ctx context.Context) error {
	s.registry.Reload()
	return nil
}

// notifyMutated fires the best-effort summary-projection hook. Per
// spec.md §4.7, a projection failure must never block the mutation that
// triggered it; the callback returns nothing and handles its own failures.
func (s *Store) notifyMutated() {
	if s.onMutate != nil {
		s.onMutate()
	}
}

// beginImmediate acquires a dedicated connection and starts a write
// transaction with BEGIN IMMEDIATE, matching the teacher's pattern of
// using a raw *sql.Conn (not sql.Tx's default DEFERRED mode) for mutations
// that must take the write lock up front rather than on first write.
func (s *Store) beginImmediate(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func commit(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `COMMIT`)
	conn.Close()
	return err
}

func rollback(ctx context.Context, conn *sql.Conn) {
	conn.ExecContext(ctx, `ROLLBACK`)
	conn.Close()
}
