package payledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
)

var ErrNotFound = fmt.Errorf("%w: pay log entry not found", httpx.ErrNotFound)

// Repository provides PostgreSQL-backed persistence for pay log
// entries.
type Repository interface {
	Insert(ctx context.Context, entry Entry) (int64, error)
	Get(ctx context.Context, id int64) (*Entry, error)
	Delete(ctx context.Context, id int64) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	// DeleteAutomatic removes the automatic entries a status toggle
	// created, matched by member, pay type and source reference.
	DeleteAutomatic(ctx context.Context, memberID int64, payType string, projectID *int64, quarter *string) error
	Summaries(ctx context.Context) ([]SummaryRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, member_id, pay_type, amount, project_id, quarter, note, is_manual, created_by, paid_at, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.MemberID, &e.PayType, &e.Amount, &e.ProjectID, &e.Quarter,
		&e.Note, &e.IsManual, &e.CreatedBy, &e.PaidAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *repository) Insert(ctx context.Context, entry Entry) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO pay_log (member_id, pay_type, amount, project_id, quarter, note, is_manual, created_by, paid_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 RETURNING id`,
		entry.MemberID, entry.PayType, entry.Amount, entry.ProjectID, entry.Quarter,
		entry.Note, entry.IsManual, entry.CreatedBy, entry.PaidAt).Scan(&id)
	return id, err
}

func (r *repository) Get(ctx context.Context, id int64) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM pay_log WHERE id = $1`, id)
	return scanEntry(row)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pay_log WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM pay_log ORDER BY paid_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *repository) DeleteAutomatic(ctx context.Context, memberID int64, payType string, projectID *int64, quarter *string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM pay_log
		 WHERE is_manual = FALSE AND member_id = $1 AND pay_type = $2
		   AND project_id IS NOT DISTINCT FROM $3 AND quarter IS NOT DISTINCT FROM $4`,
		memberID, payType, projectID, quarter)
	return err
}

func (r *repository) Summaries(ctx context.Context) ([]SummaryRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.member_id, m.name, COALESCE(SUM(p.amount), 0), COUNT(*), COALESCE(MAX(EXTRACT(EPOCH FROM p.paid_at))::bigint, 0)
		 FROM pay_log p
		 JOIN team_members m ON m.id = p.member_id
		 GROUP BY p.member_id, m.name
		 ORDER BY m.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SummaryRow
	for rows.Next() {
		var s SummaryRow
		if err := rows.Scan(&s.MemberID, &s.MemberName, &s.Total, &s.EntryCount, &s.LastPaidAtEpoch); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
