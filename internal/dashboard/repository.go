package dashboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var groupColumns = map[string]bool{"status": true, "type": true, "severity": true}

// PGRepository runs the aggregate queries on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CountBy implements Repository.
func (r *PGRepository) CountBy(ctx context.Context, column string) (map[string]int, error) {
	if !groupColumns[column] {
		return nil, fmt.Errorf("dashboard: unsupported group column %q", column)
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %[1]s, COUNT(*) FROM disaster_reports GROUP BY %[1]s`, column))
	if err != nil {
		return nil, fmt.Errorf("dashboard: count by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

// UserCounts implements Repository.
func (r *PGRepository) UserCounts(ctx context.Context) (int, int, error) {
	var total, relawan int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE role = 'RELAWAN') FROM users`).Scan(&total, &relawan)
	if err != nil {
		return 0, 0, fmt.Errorf("dashboard: user counts: %w", err)
	}
	return total, relawan, nil
}

var _ Repository = (*PGRepository)(nil)
