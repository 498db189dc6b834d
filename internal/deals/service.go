package deals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/atelier-ops/atelier-ops/internal/shared"
)

const (
	entityDeals = "deals"

	actionEditDeal          = "EDIT_DEAL"
	actionDeleteDeal        = "DELETE_DEAL"
	actionBlockedEditPaid   = "BLOCKED_EDIT_PAID_DEAL"
	actionBlockedDeletePaid = "BLOCKED_DELETE_PAID_DEAL"
)

// TaskQueue enqueues background work triggered by deal mutations.
type TaskQueue interface {
	EnqueueExpenseRollup(ctx context.Context, dealID int64) error
}

// Service provides business logic for deal operations.
type Service struct {
	repo   Repository
	audit  *shared.Recorder
	queue  TaskQueue
	logger *slog.Logger
}

// NewService constructs a deals service. queue may be nil when no
// worker is deployed.
func NewService(repo Repository, audit *shared.Recorder, queue TaskQueue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, queue: queue, logger: logger}
}

// Create inserts a new deal with defaults. Nothing is locked at
// creation, so no guard applies.
func (s *Service) Create(ctx context.Context, req CreateDealRequest) (*Deal, error) {
	deal := Deal{
		Name:          req.Name,
		Value:         req.Value,
		Expenses:      0,
		Stage:         StageLead,
		OwnerID:       req.OwnerID,
		ClosePeriod:   req.ClosePeriod,
		InvoiceStatus: shared.InvoiceNone,
		Collected:     req.Collected,
		Buckets:       []Bucket{},
		Prob:          0,
	}
	if req.Stage != nil {
		deal.Stage = *req.Stage
	}
	if req.InvoiceStatus != nil {
		deal.InvoiceStatus = *req.InvoiceStatus
	}
	if req.Buckets != nil {
		deal.Buckets = req.Buckets
	}
	if req.Prob != nil {
		deal.Prob = *req.Prob
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		id, err = repo.Create(ctx, deal)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create deal: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Update applies a partial update. The read, the lock check and the
// write run in one transaction against a row lock, so two concurrent
// updates cannot both pass the check on a deal that one of them is
// about to lock.
func (s *Service) Update(ctx context.Context, id int64, req UpdateDealRequest, actor shared.Actor) (*Deal, error) {
	var before, after *Deal
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		cur, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = cur

		if shared.DealIsLocked(cur.InvoiceStatus) {
			if fields := req.lockedFields(); len(fields) > 0 {
				return &LockedFieldsError{Fields: fields}
			}
		}

		updates := req.updates()
		if len(updates) == 0 {
			after = cur
			return nil
		}
		if err := repo.Update(ctx, id, updates); err != nil {
			return err
		}
		after, err = repo.Get(ctx, id)
		return err
	})

	var lockErr *LockedFieldsError
	if errors.As(err, &lockErr) {
		actorID, actorName := shared.ActorRef(actor)
		s.audit.Record(ctx, shared.AuditEntry{
			ActorID:   actorID,
			ActorName: actorName,
			Action:    actionBlockedEditPaid,
			Entity:    entityDeals,
			EntityID:  strconv.FormatInt(id, 10),
			Changes:   map[string]any{"attempted_fields": lockErr.Fields},
		})
		return nil, lockErr
	}
	if err != nil {
		return nil, err
	}

	changes := shared.DiffFields(req.snapshot(before), req.snapshot(after))
	if len(changes) > 0 {
		actorID, actorName := shared.ActorRef(actor)
		changeMap := make(map[string]any, len(changes))
		for field, change := range changes {
			changeMap[field] = change
		}
		s.audit.Record(ctx, shared.AuditEntry{
			ActorID:   actorID,
			ActorName: actorName,
			Action:    actionEditDeal,
			Entity:    entityDeals,
			EntityID:  strconv.FormatInt(id, 10),
			Changes:   changeMap,
		})
	}
	return after, nil
}

// Delete removes a deal unless it is paid.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor) error {
	var deleted *Deal
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		cur, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if shared.DealIsLocked(cur.InvoiceStatus) {
			return ErrDealPaid
		}
		deleted = cur
		return repo.Delete(ctx, id)
	})

	actorID, actorName := shared.ActorRef(actor)
	if errors.Is(err, ErrDealPaid) {
		s.audit.Record(ctx, shared.AuditEntry{
			ActorID:   actorID,
			ActorName: actorName,
			Action:    actionBlockedDeletePaid,
			Entity:    entityDeals,
			EntityID:  strconv.FormatInt(id, 10),
		})
		return err
	}
	if err != nil {
		return err
	}

	s.audit.Record(ctx, shared.AuditEntry{
		ActorID:   actorID,
		ActorName: actorName,
		Action:    actionDeleteDeal,
		Entity:    entityDeals,
		EntityID:  strconv.FormatInt(id, 10),
		Changes:   map[string]any{"name": deleted.Name},
	})
	return nil
}

// Get retrieves a deal by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Deal, error) {
	return s.repo.Get(ctx, id)
}

// List returns all deals, newest first.
func (s *Service) List(ctx context.Context) ([]Deal, error) {
	return s.repo.List(ctx)
}

// AddExpense attaches an expense to a deal and schedules the rollup
// that refreshes the deal's accumulated total.
func (s *Service) AddExpense(ctx context.Context, dealID int64, req CreateExpenseRequest, actor shared.Actor) (*Expense, error) {
	incurredAt := time.Now().UTC()
	if req.IncurredAt != nil {
		incurredAt = *req.IncurredAt
	}
	expense := Expense{
		DealID:     dealID,
		Label:      req.Label,
		Amount:     *req.Amount,
		IncurredAt: incurredAt,
	}
	if actor.ID != 0 {
		createdBy := actor.ID
		expense.CreatedBy = &createdBy
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetForUpdate(ctx, dealID); err != nil {
			return err
		}
		var err error
		id, err = repo.AddExpense(ctx, expense)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add expense: %w", err)
	}
	expense.ID = id

	s.scheduleRollup(ctx, dealID)
	return &expense, nil
}

// DeleteExpense removes an expense row and schedules the rollup.
func (s *Service) DeleteExpense(ctx context.Context, dealID, expenseID int64) error {
	if err := s.repo.DeleteExpense(ctx, dealID, expenseID); err != nil {
		return err
	}
	s.scheduleRollup(ctx, dealID)
	return nil
}

// ListExpenses returns the expense rows behind a deal's total.
func (s *Service) ListExpenses(ctx context.Context, dealID int64) ([]Expense, error) {
	return s.repo.ListExpenses(ctx, dealID)
}

func (s *Service) scheduleRollup(ctx context.Context, dealID int64) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueExpenseRollup(ctx, dealID); err != nil {
		s.logger.Warn("enqueue expense rollup", slog.Int64("deal_id", dealID), slog.Any("error", err))
	}
}
