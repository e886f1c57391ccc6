package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

// EventsByStream returns the events of one stream in insertion order.
func (s *SQLiteStore) EventsByStream(ctx context.Context, key event.StreamKey) ([]event.Raw, error) {
	col, err := StreamColumn(key.Kind)
	if err != nil {
		return nil, err
	}
	return s.queryEvents(ctx, "events by stream",
		`SELECT `+Columns+` FROM events WHERE `+col+` = ? ORDER BY seq ASC`, key.ID)
}

// EventsUntil returns every event with timestamp <= t in insertion order.
func (s *SQLiteStore) EventsUntil(ctx context.Context, t time.Time) ([]event.Raw, error) {
	return s.queryEvents(ctx, "events until",
		`SELECT `+Columns+` FROM events WHERE ts_ns <= ? ORDER BY seq ASC`, t.UnixNano())
}

// EventsBetween returns every event with from <= timestamp <= to in insertion order.
func (s *SQLiteStore) EventsBetween(ctx context.Context, from, to time.Time) ([]event.Raw, error) {
	return s.queryEvents(ctx, "events between",
		`SELECT `+Columns+` FROM events WHERE ts_ns >= ? AND ts_ns <= ? ORDER BY seq ASC`,
		from.UnixNano(), to.UnixNano())
}

// EventsByIDs returns the stored events among ids in insertion order.
// Large id sets are fetched in chunks and merged.
func (s *SQLiteStore) EventsByIDs(ctx context.Context, ids []string) ([]event.Raw, error) {
	out := []event.Raw{}
	seen := make(map[string]bool, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}

	for start := 0; start < len(uniq); start += idChunk {
		end := min(start+idChunk, len(uniq))
		chunk := uniq[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		part, err := s.queryEvents(ctx, "events by ids",
			`SELECT `+Columns+` FROM events WHERE id IN (`+placeholders+`) ORDER BY seq ASC`, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	SortBySeq(out)
	return out, nil
}

// EventByID returns one event by id.
func (s *SQLiteStore) EventByID(ctx context.Context, id string) (event.Raw, bool, error) {
	row, err := ScanRow(s.db.QueryRowContext(ctx, `SELECT `+Columns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return event.Raw{}, false, nil
	}
	if err != nil {
		return event.Raw{}, false, unavailable("event by id", err)
	}
	return row.Raw(), true, nil
}

// ListStreams summarizes the streams of one kind ordered by stream id.
func (s *SQLiteStore) ListStreams(ctx context.Context, kind event.StreamKind) ([]StreamInfo, error) {
	col, err := StreamColumn(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+col+`, COUNT(*), MIN(ts_ns), MAX(ts_ns), MAX(seq)
		FROM events
		WHERE `+col+` <> ''
		GROUP BY `+col+`
		ORDER BY `+col+` ASC
	`)
	if err != nil {
		return nil, unavailable("list streams", err)
	}
	defer rows.Close()

	out := []StreamInfo{}
	for rows.Next() {
		var (
			id          string
			count       int
			first, last int64
			lastSeq     int64
		)
		if err := rows.Scan(&id, &count, &first, &last, &lastSeq); err != nil {
			return nil, unavailable("list streams", err)
		}
		out = append(out, StreamInfo{
			Key:        event.StreamKey{Kind: kind, ID: id},
			EventCount: count,
			First:      time.Unix(0, first).UTC(),
			Last:       time.Unix(0, last).UTC(),
			LastSeq:    lastSeq,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list streams", err)
	}
	return out, nil
}

// LastSeq returns the highest assigned sequence number.
func (s *SQLiteStore) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, unavailable("last seq", err)
	}
	return seq, nil
}

func (s *SQLiteStore) queryEvents(ctx context.Context, op, query string, args ...any) ([]event.Raw, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()
	return CollectRows(op, rows)
}

// CollectRows scans every row selected with Columns. The result is never nil.
func CollectRows(op string, rows *sql.Rows) ([]event.Raw, error) {
	out := []event.Raw{}
	for rows.Next() {
		row, err := ScanRow(rows)
		if err != nil {
			return nil, &UnavailableError{Op: op, Err: err}
		}
		out = append(out, row.Raw())
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Op: op, Err: err}
	}
	return out, nil
}

// SortBySeq orders raw events by store sequence.
func SortBySeq(events []event.Raw) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
}
