package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is an immutable record of an actor's action against an
// entity. Entries are appended, never updated or deleted.
type AuditEntry struct {
	ActorID   *int64         `json:"actor_id"`
	ActorName string         `json:"actor_name"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	Changes   map[string]any `json:"changes,omitempty"`
	At        time.Time      `json:"at"`
}

// AuditStore persists audit entries.
type AuditStore interface {
	Insert(ctx context.Context, entry AuditEntry) error
}

// Recorder appends audit entries best-effort. Writes are dispatched in
// the background after the primary mutation commits; failures are
// logged and swallowed so audit can never fail or block a business
// operation.
type Recorder struct {
	store  AuditStore
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRecorder constructs a Recorder.
func NewRecorder(store AuditStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record dispatches the entry for appending. A partially populated
// actor falls back to a nil id and the name "unknown".
func (r *Recorder) Record(ctx context.Context, entry AuditEntry) {
	if r == nil || r.store == nil {
		return
	}
	if entry.ActorName == "" {
		entry.ActorName = "unknown"
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.store.Insert(writeCtx, entry); err != nil {
			r.logger.Warn("audit write failed",
				slog.String("action", entry.Action),
				slog.String("entity", entry.Entity),
				slog.String("entity_id", entry.EntityID),
				slog.Any("error", err))
		}
	}()
}

// Drain waits for in-flight audit writes. Used on shutdown and in
// tests; request handling never waits on it.
func (r *Recorder) Drain() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

// ActorRef converts a request actor into audit attribution fields.
func ActorRef(actor Actor) (*int64, string) {
	if actor.ID == 0 && actor.Name == "" {
		return nil, "unknown"
	}
	id := actor.ID
	return &id, actor.Name
}

// PGAuditStore writes audit entries to the audit_log table.
type PGAuditStore struct {
	pool *pgxpool.Pool
}

// NewPGAuditStore returns a PostgreSQL-backed audit store.
func NewPGAuditStore(pool *pgxpool.Pool) *PGAuditStore {
	return &PGAuditStore{pool: pool}
}

// Insert persists the entry.
func (s *PGAuditStore) Insert(ctx context.Context, entry AuditEntry) error {
	if s == nil || s.pool == nil {
		return errors.New("audit store not initialised")
	}
	if entry.Action == "" || entry.Entity == "" {
		return errors.New("audit entry requires action and entity")
	}
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (actor_id, actor_name, action, entity, entity_id, changes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ActorID, entry.ActorName, entry.Action, entry.Entity, entry.EntityID, changes, entry.At)
	return err
}
