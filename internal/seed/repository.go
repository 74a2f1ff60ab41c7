package seed

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitdb/sitdb/internal/shared"
)

// PGStore writes fixture accounts to PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PGStore.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureUser inserts u unless its email is taken. Existing accounts keep
// their password and role.
func (s *PGStore) EnsureUser(ctx context.Context, u UserFixture, passwordHash string) (shared.Principal, bool, error) {
	var phone *string
	if u.Phone != "" {
		phone = &u.Phone
	}
	var p shared.Principal
	var created bool
	err := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO users (email, password_hash, name, phone, role, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (email) DO NOTHING
			RETURNING id::text, name, role, status
		)
		SELECT id, name, role, status, TRUE FROM ins
		UNION ALL
		SELECT id::text, name, role, status, FALSE FROM users
		WHERE email = $1 AND NOT EXISTS (SELECT 1 FROM ins)`,
		u.Email, passwordHash, u.Name, phone, u.Role, u.Status,
	).Scan(&p.ID, &p.Name, &p.Role, &p.Status, &created)
	if err != nil {
		return shared.Principal{}, false, err
	}
	p.Email = u.Email
	return p, created, nil
}

// ReportExists reports whether ownerID already filed a report titled title.
func (s *PGStore) ReportExists(ctx context.Context, ownerID, title string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM disaster_reports WHERE user_id::text = $1 AND title = $2)`,
		ownerID, title,
	).Scan(&exists)
	return exists, err
}

var _ Store = (*PGStore)(nil)
