// Package realtime implements the ordered report change log and the
// server-sent events stream that replays it to clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitdb/sitdb/internal/platform/db"
)

// EventType names a stream event.
type EventType string

// Stream event types. Only the change types are persisted in the log.
const (
	EventConnected     EventType = "CONNECTED"
	EventNewReport     EventType = "NEW_REPORT"
	EventStatusUpdate  EventType = "STATUS_UPDATE"
	EventReportDeleted EventType = "REPORT_DELETED"
	EventHeartbeat     EventType = "HEARTBEAT"
)

// Change is one row of the change log.
type Change struct {
	Seq       int64
	Type      EventType
	ReportID  string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// ChangeLog reads the ordered change log.
type ChangeLog interface {
	// Head returns the newest sequence number, or 0 when the log is empty.
	Head(ctx context.Context) (int64, error)
	// Since returns up to limit changes with seq > after, oldest first.
	Since(ctx context.Context, after int64, limit int) ([]Change, error)
}

// appendLockKey is the advisory lock serializing change-log appends.
const appendLockKey int64 = 0x5349_5444_4245_5654

// Append writes a change inside the caller's transaction and returns its
// sequence number. q must be a transaction: the advisory lock taken here is
// held until commit, so seq values become visible in seq order and readers
// polling seq > cursor never skip a row that commits late.
func Append(ctx context.Context, q db.Querier, typ EventType, reportID string, payload any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("realtime: marshal payload: %w", err)
	}
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return 0, fmt.Errorf("realtime: lock change log: %w", err)
	}
	var seq int64
	err = q.QueryRow(ctx, `INSERT INTO report_events (type, report_id, payload) VALUES ($1, $2, $3) RETURNING seq`,
		string(typ), reportID, body).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("realtime: append change: %w", err)
	}
	return seq, nil
}

// PGChangeLog reads report_events from PostgreSQL.
type PGChangeLog struct {
	pool *pgxpool.Pool
}

// NewChangeLog constructs a PGChangeLog.
func NewChangeLog(pool *pgxpool.Pool) *PGChangeLog {
	return &PGChangeLog{pool: pool}
}

// Head implements ChangeLog.
func (l *PGChangeLog) Head(ctx context.Context) (int64, error) {
	var seq int64
	if err := l.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM report_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("realtime: head: %w", err)
	}
	return seq, nil
}

// Since implements ChangeLog.
func (l *PGChangeLog) Since(ctx context.Context, after int64, limit int) ([]Change, error) {
	rows, err := l.pool.Query(ctx, `SELECT seq, type, report_id::text, payload, created_at
		FROM report_events WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("realtime: since: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Seq, &c.Type, &c.ReportID, &c.Payload, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ ChangeLog = (*PGChangeLog)(nil)
