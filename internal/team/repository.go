package team

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-ops/atelier-ops/internal/platform/db"
	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

var ErrMemberNotFound = fmt.Errorf("%w: team member not found", httpx.ErrNotFound)

// Repository provides PostgreSQL-backed persistence for team members
// and their pay and profit-share status rows.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	ListMembers(ctx context.Context) ([]Member, error)
	GetMember(ctx context.Context, id int64) (*Member, error)
	// GetMemberForUpdate locks the member row so the profit-share lock
	// check and the write it guards commit atomically. Only valid
	// inside WithTx.
	GetMemberForUpdate(ctx context.Context, id int64) (*Member, error)
	CreateMember(ctx context.Context, member Member, pinHash string) (int64, error)
	UpdateMember(ctx context.Context, id int64, updates map[string]any) error
	DeleteMember(ctx context.Context, id int64) error

	// ProfitSharePaidFlags returns the paid flag of every profit-share
	// status row for a member, for the lock predicate.
	ProfitSharePaidFlags(ctx context.Context, memberID int64) ([]bool, error)

	ListPayStatus(ctx context.Context, projectID *int64) ([]PayStatus, error)
	GetPayStatusForUpdate(ctx context.Context, projectID, memberID int64) (*PayStatus, error)
	UpsertPayStatus(ctx context.Context, projectID, memberID int64, paid bool) (*PayStatus, error)

	ListProfitShareStatus(ctx context.Context, quarter *string) ([]ProfitShareStatus, error)
	GetProfitShareStatusForUpdate(ctx context.Context, quarter string, memberID int64) (*ProfitShareStatus, error)
	UpsertProfitShareStatus(ctx context.Context, quarter string, memberID int64, paid bool) (*ProfitShareStatus, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const memberColumns = `id, name, role_label, auth_role, profit_share_pct, is_active, created_at, updated_at`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	var role string
	err := row.Scan(&m.ID, &m.Name, &m.RoleLabel, &role, &m.ProfitSharePct, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	m.AuthRole = shared.Role(role)
	return &m, nil
}

func (r *repository) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := r.db.Query(ctx, `SELECT `+memberColumns+` FROM team_members ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (r *repository) GetMember(ctx context.Context, id int64) (*Member, error) {
	row := r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM team_members WHERE id = $1`, id)
	return scanMember(row)
}

func (r *repository) GetMemberForUpdate(ctx context.Context, id int64) (*Member, error) {
	row := r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM team_members WHERE id = $1 FOR UPDATE`, id)
	return scanMember(row)
}

func (r *repository) CreateMember(ctx context.Context, member Member, pinHash string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO team_members (name, role_label, auth_role, profit_share_pct, pin_hash, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
		 RETURNING id`,
		member.Name, member.RoleLabel, string(member.AuthRole), member.ProfitSharePct, pinHash).Scan(&id)
	return id, err
}

func (r *repository) UpdateMember(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	setClauses := ""
	args := make([]any, 0, len(updates)+1)
	argPos := 1
	for col, val := range updates {
		if setClauses != "" {
			setClauses += ", "
		}
		setClauses += fmt.Sprintf("%s = $%d", col, argPos)
		args = append(args, val)
		argPos++
	}
	setClauses += ", updated_at = NOW()"
	args = append(args, id)

	query := fmt.Sprintf("UPDATE team_members SET %s WHERE id = $%d", setClauses, argPos)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (r *repository) DeleteMember(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM team_members WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (r *repository) ProfitSharePaidFlags(ctx context.Context, memberID int64) ([]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT paid FROM profit_share_status WHERE member_id = $1`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []bool
	for rows.Next() {
		var paid bool
		if err := rows.Scan(&paid); err != nil {
			return nil, err
		}
		flags = append(flags, paid)
	}
	return flags, rows.Err()
}

const payStatusColumns = `id, project_id, member_id, paid, updated_at`

func scanPayStatus(row pgx.Row) (*PayStatus, error) {
	var s PayStatus
	if err := row.Scan(&s.ID, &s.ProjectID, &s.MemberID, &s.Paid, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListPayStatus(ctx context.Context, projectID *int64) ([]PayStatus, error) {
	query := `SELECT ` + payStatusColumns + ` FROM pay_status`
	args := []any{}
	if projectID != nil {
		query += ` WHERE project_id = $1`
		args = append(args, *projectID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []PayStatus
	for rows.Next() {
		s, err := scanPayStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *s)
	}
	return statuses, rows.Err()
}

// GetPayStatusForUpdate returns nil without error when no row exists
// yet for the pair.
func (r *repository) GetPayStatusForUpdate(ctx context.Context, projectID, memberID int64) (*PayStatus, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+payStatusColumns+` FROM pay_status WHERE project_id = $1 AND member_id = $2 FOR UPDATE`,
		projectID, memberID)
	s, err := scanPayStatus(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *repository) UpsertPayStatus(ctx context.Context, projectID, memberID int64, paid bool) (*PayStatus, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO pay_status (project_id, member_id, paid, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (project_id, member_id) DO UPDATE SET paid = EXCLUDED.paid, updated_at = NOW()
		 RETURNING `+payStatusColumns,
		projectID, memberID, paid)
	return scanPayStatus(row)
}

const profitShareColumns = `id, quarter, member_id, paid, updated_at`

func scanProfitShareStatus(row pgx.Row) (*ProfitShareStatus, error) {
	var s ProfitShareStatus
	if err := row.Scan(&s.ID, &s.Quarter, &s.MemberID, &s.Paid, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListProfitShareStatus(ctx context.Context, quarter *string) ([]ProfitShareStatus, error) {
	query := `SELECT ` + profitShareColumns + ` FROM profit_share_status`
	args := []any{}
	if quarter != nil {
		query += ` WHERE quarter = $1`
		args = append(args, *quarter)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []ProfitShareStatus
	for rows.Next() {
		s, err := scanProfitShareStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *s)
	}
	return statuses, rows.Err()
}

// GetProfitShareStatusForUpdate returns nil without error when no row
// exists yet for the pair.
func (r *repository) GetProfitShareStatusForUpdate(ctx context.Context, quarter string, memberID int64) (*ProfitShareStatus, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profitShareColumns+` FROM profit_share_status WHERE quarter = $1 AND member_id = $2 FOR UPDATE`,
		quarter, memberID)
	s, err := scanProfitShareStatus(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *repository) UpsertProfitShareStatus(ctx context.Context, quarter string, memberID int64, paid bool) (*ProfitShareStatus, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO profit_share_status (quarter, member_id, paid, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (quarter, member_id) DO UPDATE SET paid = EXCLUDED.paid, updated_at = NOW()
		 RETURNING `+profitShareColumns,
		quarter, memberID, paid)
	return scanProfitShareStatus(row)
}
