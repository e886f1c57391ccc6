package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/chronicle/internal/event"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added content_hash index for append idempotency checks
const currentSchemaVersion = 1

// Store is durable append/read access to the immutable event log.
// Implementations must be safe for concurrent readers.
type Store interface {
	// Append stores e and returns its sequence number. Re-appending an
	// identical event returns the original sequence.
	Append(ctx context.Context, e event.Event) (int64, error)

	// EventsByStream returns every event whose context field for key.Kind
	// equals key.ID.
	EventsByStream(ctx context.Context, key event.StreamKey) ([]event.Raw, error)

	// EventsUntil returns every event with timestamp <= t.
	EventsUntil(ctx context.Context, t time.Time) ([]event.Raw, error)

	// EventsBetween returns every event with from <= timestamp <= to.
	EventsBetween(ctx context.Context, from, to time.Time) ([]event.Raw, error)

	// EventsByIDs returns the stored events among ids. Unknown ids are ignored.
	EventsByIDs(ctx context.Context, ids []string) ([]event.Raw, error)

	// EventByID returns one event. ok is false if it does not exist.
	EventByID(ctx context.Context, id string) (event.Raw, bool, error)

	// ListStreams summarizes the streams of one kind, ordered by id.
	ListStreams(ctx context.Context, kind event.StreamKind) ([]StreamInfo, error)

	// LastSeq returns the highest assigned sequence, 0 for an empty log.
	LastSeq(ctx context.Context) (int64, error)

	Close() error
}

// idChunk bounds the number of placeholders in one IN (...) query.
const idChunk = 500

// SQLiteStore is the SQLite-backed Store.
// Uses WAL mode for concurrent read access.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_content_hash ON events(content_hash)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteStore) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
