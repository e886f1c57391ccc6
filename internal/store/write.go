package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/chronicle/internal/event"
)

// Append stores e at the end of the log.
//
// An event whose id is already stored is accepted only if its content hash
// matches; the original sequence is returned and nothing is written.
func (s *SQLiteStore) Append(ctx context.Context, e event.Event) (int64, error) {
	row, err := EncodeRow(e)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("append", err)
	}
	defer tx.Rollback()

	var seq int64
	var hash string
	err = tx.QueryRowContext(ctx, `SELECT seq, content_hash FROM events WHERE id = ?`, row.ID).Scan(&seq, &hash)
	switch {
	case err == nil:
		if hash != row.ContentHash {
			return 0, &AppendError{
				Code:    ErrCodeConflict,
				EventID: row.ID,
				Message: fmt.Sprintf("event already stored at seq %d with different content", seq),
			}
		}
		return seq, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, unavailable("append", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, type, ts_ns, timestamp, severity, source,
			workflow_id, issue_id, user_id, session_id, tags, data, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.Type, row.TsNanos, row.Timestamp, row.Severity, row.Source,
		row.WorkflowID, row.IssueID, row.UserID, row.SessionID, row.Tags, row.Data, row.ContentHash)
	if err != nil {
		return 0, unavailable("append", err)
	}
	seq, err = res.LastInsertId()
	if err != nil {
		return 0, unavailable("append", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("append", err)
	}
	return seq, nil
}
