package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitdb/sitdb/internal/platform/db"
)

// Op is a mirror operation recorded in the outbox.
type Op string

// Outbox operations.
const (
	OpUpsertReport Op = "UPSERT_REPORT"
	OpUpdateStatus Op = "UPDATE_STATUS"
	OpDeleteReport Op = "DELETE_REPORT"
)

// MaxAttempts stops the sweep from re-enqueuing an entry that keeps failing.
const MaxAttempts = 10

// ErrEntryNotFound is returned for unknown outbox ids.
var ErrEntryNotFound = errors.New("mirror: outbox entry not found")

// Entry is one outbox row.
type Entry struct {
	ID          int64
	Op          Op
	ReportID    string
	Payload     json.RawMessage
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Processed reports whether the entry has been applied.
func (e Entry) Processed() bool { return e.ProcessedAt != nil }

// Enqueue writes an outbox row inside the caller's transaction.
func Enqueue(ctx context.Context, q db.Querier, op Op, reportID string, payload any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("mirror: marshal payload: %w", err)
	}
	var id int64
	err = q.QueryRow(ctx, `INSERT INTO mirror_outbox (op, report_id, payload) VALUES ($1, $2, $3) RETURNING id`,
		string(op), reportID, body).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("mirror: enqueue: %w", err)
	}
	return id, nil
}

// Outbox is the worker side of the outbox table.
type Outbox interface {
	Get(ctx context.Context, id int64) (*Entry, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause error) error
	// Stale returns ids of unprocessed rows older than age that have not
	// exhausted MaxAttempts, oldest first.
	Stale(ctx context.Context, age time.Duration, limit int) ([]int64, error)
}

// Stats summarises the outbox backlog.
type Stats struct {
	Pending   int
	Failed    int
	OldestAge time.Duration
}

// PGOutbox implements Outbox on PostgreSQL.
type PGOutbox struct {
	pool *pgxpool.Pool
}

// NewOutbox constructs a PGOutbox.
func NewOutbox(pool *pgxpool.Pool) *PGOutbox {
	return &PGOutbox{pool: pool}
}

// Get implements Outbox.
func (o *PGOutbox) Get(ctx context.Context, id int64) (*Entry, error) {
	var e Entry
	err := o.pool.QueryRow(ctx, `SELECT id, op, report_id::text, payload, attempts, last_error, created_at, processed_at
		FROM mirror_outbox WHERE id = $1`, id).
		Scan(&e.ID, &e.Op, &e.ReportID, &e.Payload, &e.Attempts, &e.LastError, &e.CreatedAt, &e.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mirror: get entry: %w", err)
	}
	return &e, nil
}

// MarkDone implements Outbox.
func (o *PGOutbox) MarkDone(ctx context.Context, id int64) error {
	_, err := o.pool.Exec(ctx, `UPDATE mirror_outbox SET processed_at = NOW(), attempts = attempts + 1, last_error = NULL
		WHERE id = $1 AND processed_at IS NULL`, id)
	return err
}

// MarkFailed implements Outbox.
func (o *PGOutbox) MarkFailed(ctx context.Context, id int64, cause error) error {
	_, err := o.pool.Exec(ctx, `UPDATE mirror_outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, cause.Error())
	return err
}

// Stale implements Outbox.
func (o *PGOutbox) Stale(ctx context.Context, age time.Duration, limit int) ([]int64, error) {
	rows, err := o.pool.Query(ctx, `SELECT id FROM mirror_outbox
		WHERE processed_at IS NULL AND attempts < $3 AND created_at < NOW() - make_interval(secs => $1)
		ORDER BY created_at, id LIMIT $2`, age.Seconds(), limit, MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("mirror: stale entries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns backlog counters for operators.
func (o *PGOutbox) Stats(ctx context.Context) (Stats, error) {
	var (
		s      Stats
		oldest *float64
	)
	err := o.pool.QueryRow(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE last_error IS NOT NULL),
			EXTRACT(EPOCH FROM NOW() - MIN(created_at))::float8
		FROM mirror_outbox WHERE processed_at IS NULL`).Scan(&s.Pending, &s.Failed, &oldest)
	if err != nil {
		return Stats{}, fmt.Errorf("mirror: outbox stats: %w", err)
	}
	if oldest != nil {
		s.OldestAge = time.Duration(*oldest * float64(time.Second))
	}
	return s, nil
}

var _ Outbox = (*PGOutbox)(nil)
