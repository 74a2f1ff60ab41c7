package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitdb/sitdb/internal/platform/db"
	"github.com/sitdb/sitdb/internal/shared"
)

// Store is the persistence contract used by the service.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, id string, in UpdateInput) (*User, error)
	RecordAudit(ctx context.Context, entry shared.AuditLog) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool  *pgxpool.Pool
	audit *shared.AuditLogger
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, audit *shared.AuditLogger) *Repository {
	return &Repository{pool: pool, audit: audit}
}

const selectUser = `SELECT u.id::text, u.email, u.name, u.phone, u.role, u.status, u.created_at, u.updated_at,
	(SELECT COUNT(*) FROM disaster_reports r WHERE r.user_id = u.id),
	(SELECT COUNT(*) FROM report_status s WHERE s.user_id = u.id)
	FROM users u`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt,
		&u.Count.Reports, &u.Count.StatusUpdates)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns one page of users, newest first, plus the filtered total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Role != "" {
		args = append(args, filter.Role)
		conds = append(conds, fmt.Sprintf("u.role = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("u.status = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Search) != "" {
		args = append(args, shared.LikePattern(filter.Search))
		conds = append(conds, fmt.Sprintf("(u.name ILIKE $%d OR u.email ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users u"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	page := filter.PageRequest.Normalize()
	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf("%s%s ORDER BY u.created_at DESC, u.id LIMIT $%d OFFSET $%d", selectUser, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	out := make([]User, 0, page.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

// WithTx wraps callback in a read-committed transaction; GetForUpdate
// serializes writers on the user row.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, audit: r.audit})
	})
	if db.IsSerializationFailure(err) {
		return errConcurrentUpdate
	}
	return err
}

type txRepo struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
}

func (t *txRepo) GetForUpdate(ctx context.Context, id string) (*User, error) {
	if !shared.ValidID(id) {
		return nil, shared.ErrNotFound
	}
	return scanUser(t.tx.QueryRow(ctx, selectUser+` WHERE u.id = $1 FOR UPDATE OF u`, id))
}

func (t *txRepo) Update(ctx context.Context, id string, in UpdateInput) (*User, error) {
	_, err := t.tx.Exec(ctx, `UPDATE users SET
		name = COALESCE($2, name),
		phone = COALESCE($3, phone),
		role = COALESCE($4, role),
		status = COALESCE($5, status),
		updated_at = NOW()
		WHERE id = $1`, id, in.Name, in.Phone, in.Role, in.Status)
	if err != nil {
		return nil, fmt.Errorf("users: update: %w", err)
	}
	return scanUser(t.tx.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id))
}

func (t *txRepo) RecordAudit(ctx context.Context, entry shared.AuditLog) error {
	return t.audit.Record(ctx, t.tx, entry)
}

var _ Store = (*Repository)(nil)
