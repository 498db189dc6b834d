package projects

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

var (
	ErrProjectNotFound = fmt.Errorf("%w: project not found", httpx.ErrNotFound)
	ErrTaskNotFound    = fmt.Errorf("%w: task not found", httpx.ErrNotFound)
)

// Repository provides PostgreSQL-backed persistence for projects and
// their tasks.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id int64) (*Project, error)
	CreateProject(ctx context.Context, project Project) (int64, error)
	UpdateProject(ctx context.Context, id int64, updates map[string]any) error
	DeleteProject(ctx context.Context, id int64) error

	ListTasks(ctx context.Context, projectID *int64) ([]Task, error)
	GetTask(ctx context.Context, id int64) (*Task, error)
	// GetTaskForUpdate locks the task row so the hours-lock check and
	// the write it guards commit atomically. Only valid inside WithTx.
	GetTaskForUpdate(ctx context.Context, id int64) (*Task, error)
	CreateTask(ctx context.Context, task Task) (int64, error)
	UpdateTask(ctx context.Context, id int64, updates map[string]any) error
	DeleteTask(ctx context.Context, id int64) error

	// DealInvoiceStatus reads the invoice status of the deal a project
	// links to, for the hours-lock predicate.
	DealInvoiceStatus(ctx context.Context, dealID int64) (shared.InvoiceStatus, error)
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

const projectColumns = `id, name, deal_id, status, archived, created_at, updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	var status string
	err := row.Scan(&p.ID, &p.Name, &p.DealID, &status, &p.Archived, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	p.Status = shared.ProjectStatus(status)
	return &p, nil
}

func (r *repository) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.db.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (r *repository) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (r *repository) CreateProject(ctx context.Context, project Project) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO projects (name, deal_id, status, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING id`,
		project.Name, project.DealID, string(project.Status), project.Archived).Scan(&id)
	return id, err
}

func (r *repository) UpdateProject(ctx context.Context, id int64, updates map[string]any) error {
	return r.update(ctx, "projects", id, updates, ErrProjectNotFound)
}

func (r *repository) DeleteProject(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

const taskColumns = `id, project_id, title, status, assignee_id, est_hours, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var status string
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &status, &t.AssigneeID, &t.EstHours, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	t.Status = TaskStatus(status)
	return &t, nil
}

func (r *repository) ListTasks(ctx context.Context, projectID *int64) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if projectID != nil {
		query += ` WHERE project_id = $1`
		args = append(args, *projectID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *repository) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (r *repository) GetTaskForUpdate(ctx context.Context, id int64) (*Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
	return scanTask(row)
}

func (r *repository) CreateTask(ctx context.Context, task Task) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO tasks (project_id, title, status, assignee_id, est_hours, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING id`,
		task.ProjectID, task.Title, string(task.Status), task.AssigneeID, task.EstHours).Scan(&id)
	return id, err
}

func (r *repository) UpdateTask(ctx context.Context, id int64, updates map[string]any) error {
	return r.update(ctx, "tasks", id, updates, ErrTaskNotFound)
}

func (r *repository) DeleteTask(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *repository) DealInvoiceStatus(ctx context.Context, dealID int64) (shared.InvoiceStatus, error) {
	var status string
	err := r.db.QueryRow(ctx, `SELECT invoice_status FROM deals WHERE id = $1`, dealID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: deal not found", httpx.ErrNotFound)
		}
		return "", err
	}
	return shared.InvoiceStatus(status), nil
}

func (r *repository) update(ctx context.Context, table string, id int64, updates map[string]any, notFound error) error {
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

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, setClauses, argPos)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
