package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit log row as served to clients.
type Entry struct {
	ID        int64          `json:"id" db:"id"`
	ActorID   *int64         `json:"actor_id" db:"actor_id"`
	ActorName string         `json:"actor_name" db:"actor_name"`
	Action    string         `json:"action" db:"action"`
	Entity    string         `json:"entity" db:"entity"`
	EntityID  string         `json:"entity_id" db:"entity_id"`
	Changes   map[string]any `json:"changes,omitempty" db:"changes"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Repository reads the append-only audit log. Writes go through the
// shared recorder; nothing here mutates.
type Repository interface {
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, actor_name, action, entity, entity_id, changes, created_at
		 FROM audit_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var changes []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.Entity, &e.EntityID, &changes, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
