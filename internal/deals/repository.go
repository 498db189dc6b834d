package deals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-ops/atelier-ops/internal/platform/db"
	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

var ErrNotFound = fmt.Errorf("%w: deal not found", httpx.ErrNotFound)

// Repository provides PostgreSQL-backed persistence for deals.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Deal, error)
	// GetForUpdate locks the deal row so lock checks and the writes
	// they guard commit atomically. Only valid inside WithTx.
	GetForUpdate(ctx context.Context, id int64) (*Deal, error)
	List(ctx context.Context) ([]Deal, error)
	Create(ctx context.Context, deal Deal) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	Delete(ctx context.Context, id int64) error

	ListExpenses(ctx context.Context, dealID int64) ([]Expense, error)
	AddExpense(ctx context.Context, expense Expense) (int64, error)
	DeleteExpense(ctx context.Context, dealID, expenseID int64) error
	SumExpenses(ctx context.Context, dealID int64) (float64, error)
	SetExpenses(ctx context.Context, dealID int64, total float64) error
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

const dealColumns = `id, name, value, expenses, stage, owner_id, close_period, invoice_status, collected, buckets, prob, created_at, updated_at`

func scanDeal(row pgx.Row) (*Deal, error) {
	var d Deal
	var stage, invoiceStatus string
	var buckets []byte
	err := row.Scan(&d.ID, &d.Name, &d.Value, &d.Expenses, &stage, &d.OwnerID, &d.ClosePeriod,
		&invoiceStatus, &d.Collected, &buckets, &d.Prob, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.Stage = Stage(stage)
	d.InvoiceStatus = shared.InvoiceStatus(invoiceStatus)
	d.Buckets = []Bucket{}
	if len(buckets) > 0 {
		if err := json.Unmarshal(buckets, &d.Buckets); err != nil {
			return nil, fmt.Errorf("decode buckets: %w", err)
		}
	}
	return &d, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Deal, error) {
	row := r.db.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id)
	return scanDeal(row)
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Deal, error) {
	row := r.db.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1 FOR UPDATE`, id)
	return scanDeal(row)
}

func (r *repository) List(ctx context.Context) ([]Deal, error) {
	rows, err := r.db.Query(ctx, `SELECT `+dealColumns+` FROM deals ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

func (r *repository) Create(ctx context.Context, deal Deal) (int64, error) {
	buckets, err := json.Marshal(deal.Buckets)
	if err != nil {
		return 0, fmt.Errorf("encode buckets: %w", err)
	}
	var id int64
	err = r.db.QueryRow(ctx,
		`INSERT INTO deals (name, value, expenses, stage, owner_id, close_period, invoice_status, collected, buckets, prob, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		 RETURNING id`,
		deal.Name, deal.Value, deal.Expenses, string(deal.Stage), deal.OwnerID, deal.ClosePeriod,
		string(deal.InvoiceStatus), deal.Collected, buckets, deal.Prob).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)
	argPos := 1
	for col, val := range updates {
		if col == "buckets" {
			encoded, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("encode buckets: %w", err)
			}
			val = encoded
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, argPos))
		args = append(args, val)
		argPos++
	}
	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE deals SET %s WHERE id = $%d", joinClauses(setClauses), argPos)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM deals WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListExpenses(ctx context.Context, dealID int64) ([]Expense, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, deal_id, label, amount, incurred_at, created_by, created_at
		 FROM deal_expenses WHERE deal_id = $1 ORDER BY incurred_at DESC`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.DealID, &e.Label, &e.Amount, &e.IncurredAt, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *repository) AddExpense(ctx context.Context, expense Expense) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO deal_expenses (deal_id, label, amount, incurred_at, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id`,
		expense.DealID, expense.Label, expense.Amount, expense.IncurredAt, expense.CreatedBy).Scan(&id)
	return id, err
}

func (r *repository) DeleteExpense(ctx context.Context, dealID, expenseID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM deal_expenses WHERE id = $1 AND deal_id = $2`, expenseID, dealID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expense not found", httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) SumExpenses(ctx context.Context, dealID int64) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM deal_expenses WHERE deal_id = $1`, dealID).Scan(&total)
	return total, err
}

func (r *repository) SetExpenses(ctx context.Context, dealID int64, total float64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE deals SET expenses = $1, updated_at = NOW() WHERE id = $2`, total, dealID)
	return err
}

func joinClauses(clauses []string) string {
	out := ""
	for i, c := range clauses {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
