package payledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/atelier-ops/atelier-ops/internal/shared"
)

const (
	entityPayLog = "pay_log"

	actionPayLogEntry  = "PAY_LOG_ENTRY"
	actionDeletePayLog = "DELETE_PAY_LOG"
)

// DefaultListLimit caps the entries returned by a recent listing.
const DefaultListLimit = 500

// Service provides business logic for the pay ledger.
type Service struct {
	repo   Repository
	audit  *shared.Recorder
	logger *slog.Logger
}

// NewService constructs a pay ledger service.
func NewService(repo Repository, audit *shared.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Record appends a payout entry. The amount is taken as given: zero
// and negative corrections are allowed.
func (s *Service) Record(ctx context.Context, req CreateEntryRequest, actor shared.Actor) (*Entry, error) {
	entry := Entry{
		MemberID:  req.MemberID,
		PayType:   req.PayType,
		Amount:    *req.Amount,
		ProjectID: req.ProjectID,
		Quarter:   req.Quarter,
		Note:      req.Note,
		IsManual:  true,
		PaidAt:    time.Now().UTC(),
	}
	if req.IsManual != nil {
		entry.IsManual = *req.IsManual
	}
	if req.PaidAt != nil {
		entry.PaidAt = *req.PaidAt
	}
	if actor.ID != 0 {
		createdBy := actor.ID
		entry.CreatedBy = &createdBy
	}

	id, err := s.repo.Insert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	entry.ID = id

	actorID, actorName := shared.ActorRef(actor)
	s.audit.Record(ctx, shared.AuditEntry{
		ActorID:   actorID,
		ActorName: actorName,
		Action:    actionPayLogEntry,
		Entity:    entityPayLog,
		EntityID:  strconv.FormatInt(id, 10),
		Changes: map[string]any{
			"member":   entry.MemberID,
			"type":     entry.PayType,
			"amount":   entry.Amount,
			"isManual": entry.IsManual,
		},
	})
	return &entry, nil
}

// RecordAutomatic appends the ledger entry a status toggle produces.
func (s *Service) RecordAutomatic(ctx context.Context, memberID int64, payType string, amount float64, projectID *int64, quarter *string, actor shared.Actor) error {
	isManual := false
	req := CreateEntryRequest{
		MemberID:  memberID,
		PayType:   payType,
		Amount:    &amount,
		ProjectID: projectID,
		Quarter:   quarter,
		IsManual:  &isManual,
	}
	_, err := s.Record(ctx, req, actor)
	return err
}

// RemoveAutomatic deletes the automatic entries a toggle created, for
// when the toggle is reversed.
func (s *Service) RemoveAutomatic(ctx context.Context, memberID int64, payType string, projectID *int64, quarter *string) error {
	return s.repo.DeleteAutomatic(ctx, memberID, payType, projectID, quarter)
}

// Delete removes a manual entry. Automatic entries are immutable here;
// reversing the originating toggle removes them.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor) error {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !entry.IsManual {
		return ErrAutoEntryImmutable
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	actorID, actorName := shared.ActorRef(actor)
	s.audit.Record(ctx, shared.AuditEntry{
		ActorID:   actorID,
		ActorName: actorName,
		Action:    actionDeletePayLog,
		Entity:    entityPayLog,
		EntityID:  strconv.FormatInt(id, 10),
		Changes: map[string]any{
			"member": entry.MemberID,
			"amount": entry.Amount,
		},
	})
	return nil
}

// ListRecent returns entries newest-first by payment timestamp.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.repo.ListRecent(ctx, limit)
}
