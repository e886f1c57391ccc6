// Package pgstore is the Postgres-backed event store.
//
// It shares the row codec and error types of package store, so the replay
// engine cannot tell the adapters apart. Placeholders use the $n form and id
// sets are passed as a single text[] parameter.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// columns mirrors store.Columns with the JSONB columns rendered as text.
const columns = "seq, id, type, ts_ns, timestamp, severity, source, workflow_id, issue_id, user_id, session_id, tags::text, data::text, content_hash"

// Store implements store.Store on Postgres.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open database handle. The schema is not touched; call Migrate.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return OpenDB(ctx, db)
}

// OpenDB checks the connection of db and applies the schema. db is closed on
// failure.
func OpenDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema. Safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts e, or verifies that an identical event is already stored.
func (s *Store) Append(ctx context.Context, e event.Event) (int64, error) {
	row, err := store.EncodeRow(e)
	if err != nil {
		return 0, err
	}

	var seq int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO events (id, type, ts_ns, timestamp, severity, source,
			workflow_id, issue_id, user_id, session_id, tags, data, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, $13)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq`,
		row.ID, row.Type, row.TsNanos, row.Timestamp, row.Severity, row.Source,
		row.WorkflowID, row.IssueID, row.UserID, row.SessionID, row.Tags, row.Data, row.ContentHash,
	).Scan(&seq)
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, unavailable("append", err)
	}

	// Id already present.
	var hash string
	if err := s.db.QueryRowContext(ctx, `SELECT seq, content_hash FROM events WHERE id = $1`, row.ID).Scan(&seq, &hash); err != nil {
		return 0, unavailable("append", err)
	}
	if hash != row.ContentHash {
		return 0, &store.AppendError{
			Code:    store.ErrCodeConflict,
			EventID: row.ID,
			Message: fmt.Sprintf("event already stored at seq %d with different content", seq),
		}
	}
	return seq, nil
}

// EventsByStream returns the events of one stream in insertion order.
func (s *Store) EventsByStream(ctx context.Context, key event.StreamKey) ([]event.Raw, error) {
	col, err := store.StreamColumn(key.Kind)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, "events by stream",
		`SELECT `+columns+` FROM events WHERE `+col+` = $1 ORDER BY seq ASC`, key.ID)
}

// EventsUntil returns every event with timestamp <= t.
func (s *Store) EventsUntil(ctx context.Context, t time.Time) ([]event.Raw, error) {
	return s.query(ctx, "events until",
		`SELECT `+columns+` FROM events WHERE ts_ns <= $1 ORDER BY seq ASC`, t.UnixNano())
}

// EventsBetween returns every event with from <= timestamp <= to.
func (s *Store) EventsBetween(ctx context.Context, from, to time.Time) ([]event.Raw, error) {
	return s.query(ctx, "events between",
		`SELECT `+columns+` FROM events WHERE ts_ns >= $1 AND ts_ns <= $2 ORDER BY seq ASC`,
		from.UnixNano(), to.UnixNano())
}

// EventsByIDs returns the stored events among ids.
func (s *Store) EventsByIDs(ctx context.Context, ids []string) ([]event.Raw, error) {
	if len(ids) == 0 {
		return []event.Raw{}, nil
	}
	return s.query(ctx, "events by ids",
		`SELECT `+columns+` FROM events WHERE id = ANY($1) ORDER BY seq ASC`, pq.Array(ids))
}

// EventByID returns one event by id.
func (s *Store) EventByID(ctx context.Context, id string) (event.Raw, bool, error) {
	row, err := store.ScanRow(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return event.Raw{}, false, nil
	}
	if err != nil {
		return event.Raw{}, false, unavailable("event by id", err)
	}
	return row.Raw(), true, nil
}

// ListStreams summarizes the streams of one kind ordered by id.
func (s *Store) ListStreams(ctx context.Context, kind event.StreamKind) ([]store.StreamInfo, error) {
	col, err := store.StreamColumn(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+col+`, COUNT(*), MIN(ts_ns), MAX(ts_ns), MAX(seq)
		FROM events
		WHERE `+col+` <> ''
		GROUP BY `+col+`
		ORDER BY `+col+` ASC`)
	if err != nil {
		return nil, unavailable("list streams", err)
	}
	defer rows.Close()

	out := []store.StreamInfo{}
	for rows.Next() {
		var info store.StreamInfo
		var id string
		var first, last int64
		if err := rows.Scan(&id, &info.EventCount, &first, &last, &info.LastSeq); err != nil {
			return nil, unavailable("list streams", err)
		}
		info.Key = event.StreamKey{Kind: kind, ID: id}
		info.First = time.Unix(0, first).UTC()
		info.Last = time.Unix(0, last).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list streams", err)
	}
	return out, nil
}

// LastSeq returns the highest assigned sequence.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, unavailable("last seq", err)
	}
	return seq, nil
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]event.Raw, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()
	return store.CollectRows(op, rows)
}

func unavailable(op string, err error) error {
	return &store.UnavailableError{Op: op, Err: err}
}
