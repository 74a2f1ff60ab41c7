package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitdb/sitdb/internal/shared"
)

// PGPrincipalLoader reads principals from the users table.
type PGPrincipalLoader struct {
	pool *pgxpool.Pool
}

// NewPrincipalLoader constructs a PGPrincipalLoader.
func NewPrincipalLoader(pool *pgxpool.Pool) *PGPrincipalLoader {
	return &PGPrincipalLoader{pool: pool}
}

// FindPrincipal implements PrincipalLoader.
func (l *PGPrincipalLoader) FindPrincipal(ctx context.Context, id string) (shared.Principal, error) {
	var p shared.Principal
	err := l.pool.QueryRow(ctx,
		`SELECT id::text, email, name, role, status FROM users WHERE id::text = $1`, id,
	).Scan(&p.ID, &p.Email, &p.Name, &p.Role, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Principal{}, shared.ErrNotFound
	}
	if err != nil {
		return shared.Principal{}, err
	}
	return p, nil
}

var _ PrincipalLoader = (*PGPrincipalLoader)(nil)
