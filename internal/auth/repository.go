package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

// Repository resolves team members for authentication.
type Repository interface {
	FindMember(ctx context.Context, id int64) (*Member, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) FindMember(ctx context.Context, id int64) (*Member, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, auth_role, pin_hash, is_active FROM team_members WHERE id = $1`, id)

	var m Member
	var role string
	if err := row.Scan(&m.ID, &m.Name, &role, &m.PINHash, &m.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	m.AuthRole = shared.Role(role)
	return &m, nil
}
