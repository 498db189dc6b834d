package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/atelier-ops/atelier-ops/internal/auth"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

const (
	entityTeamMembers = "team_members"

	actionEditPSPct        = "EDIT_TEAM_PS_PCT"
	actionBlockedPSChange  = "BLOCKED_PS_PCT_CHANGE"
	actionDeleteTeamMember = "DELETE_TEAM_MEMBER"

	payTypeProject     = "project_pay"
	payTypeProfitShare = "profit_share"
)

// Ledger receives the automatic payout entries status toggles produce.
type Ledger interface {
	RecordAutomatic(ctx context.Context, memberID int64, payType string, amount float64, projectID *int64, quarter *string, actor shared.Actor) error
	RemoveAutomatic(ctx context.Context, memberID int64, payType string, projectID *int64, quarter *string) error
}

// Service provides business logic for the team roster and the pay and
// profit-share status toggles.
type Service struct {
	repo    Repository
	audit   *shared.Recorder
	ledger  Ledger
	logger  *slog.Logger
	pinCost int
}

// NewService constructs a team service.
func NewService(repo Repository, audit *shared.Recorder, ledger Ledger, logger *slog.Logger, pinCost int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, ledger: ledger, logger: logger, pinCost: pinCost}
}

// CreateMember adds a roster entry with a hashed PIN.
func (s *Service) CreateMember(ctx context.Context, req CreateMemberRequest) (*Member, error) {
	if !req.AuthRole.Valid() {
		return nil, ErrInvalidRole
	}
	pinHash, err := auth.HashPIN(req.PIN, s.pinCost)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}
	member := Member{
		Name:           req.Name,
		RoleLabel:      req.RoleLabel,
		AuthRole:       req.AuthRole,
		ProfitSharePct: req.ProfitSharePct,
	}
	id, err := s.repo.CreateMember(ctx, member, pinHash)
	if err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}
	return s.repo.GetMember(ctx, id)
}

// UpdateMember applies a partial update in guard order: self-demotion
// first, then role validity, then the profit-share lock, and only then
// the write. The lock check and the write share a row lock.
func (s *Service) UpdateMember(ctx context.Context, id int64, req UpdateMemberRequest, actor shared.Actor) (*Member, error) {
	if req.AuthRole != nil {
		if id == actor.ID && *req.AuthRole != shared.RoleAdmin {
			return nil, ErrCannotSelfDemote
		}
		if !req.AuthRole.Valid() {
			return nil, ErrInvalidRole
		}
	}

	var before, after *Member
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		cur, err := repo.GetMemberForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = cur

		if req.ProfitSharePct != nil && *req.ProfitSharePct != cur.ProfitSharePct {
			flags, err := repo.ProfitSharePaidFlags(ctx, id)
			if err != nil {
				return err
			}
			if shared.ProfitShareLocked(flags...) {
				return &ProfitShareLockedError{MemberName: cur.Name}
			}
		}

		updates, err := s.memberUpdates(req)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			after = cur
			return nil
		}
		if err := repo.UpdateMember(ctx, id, updates); err != nil {
			return err
		}
		after, err = repo.GetMember(ctx, id)
		return err
	})

	var lockErr *ProfitShareLockedError
	if errors.As(err, &lockErr) {
		actorID, actorName := shared.ActorRef(actor)
		s.audit.Record(ctx, shared.AuditEntry{
			ActorID:   actorID,
			ActorName: actorName,
			Action:    actionBlockedPSChange,
			Entity:    entityTeamMembers,
			EntityID:  strconv.FormatInt(id, 10),
			Changes: map[string]any{
				"from":   before.ProfitSharePct,
				"to":     *req.ProfitSharePct,
				"reason": "paid profit-share record exists",
			},
		})
		return nil, lockErr
	}
	if err != nil {
		return nil, err
	}

	if before.ProfitSharePct != after.ProfitSharePct {
		actorID, actorName := shared.ActorRef(actor)
		s.audit.Record(ctx, shared.AuditEntry{
			ActorID:   actorID,
			ActorName: actorName,
			Action:    actionEditPSPct,
			Entity:    entityTeamMembers,
			EntityID:  strconv.FormatInt(id, 10),
			Changes: map[string]any{
				"from": before.ProfitSharePct,
				"to":   after.ProfitSharePct,
			},
		})
	}
	return after, nil
}

func (s *Service) memberUpdates(req UpdateMemberRequest) (map[string]any, error) {
	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.RoleLabel != nil {
		updates["role_label"] = *req.RoleLabel
	}
	if req.AuthRole != nil {
		updates["auth_role"] = string(*req.AuthRole)
	}
	if req.ProfitSharePct != nil {
		updates["profit_share_pct"] = *req.ProfitSharePct
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.PIN != nil {
		pinHash, err := auth.HashPIN(*req.PIN, s.pinCost)
		if err != nil {
			return nil, fmt.Errorf("hash pin: %w", err)
		}
		updates["pin_hash"] = pinHash
	}
	return updates, nil
}

// DeleteMember removes a roster entry. Self-deletion is rejected.
func (s *Service) DeleteMember(ctx context.Context, id int64, actor shared.Actor) error {
	if id == actor.ID {
		return ErrCannotSelfDelete
	}
	member, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMember(ctx, id); err != nil {
		return err
	}

	actorID, actorName := shared.ActorRef(actor)
	s.audit.Record(ctx, shared.AuditEntry{
		ActorID:   actorID,
		ActorName: actorName,
		Action:    actionDeleteTeamMember,
		Entity:    entityTeamMembers,
		EntityID:  strconv.FormatInt(id, 10),
		Changes:   map[string]any{"name": member.Name},
	})
	return nil
}

// GetMember retrieves a roster entry by ID.
func (s *Service) GetMember(ctx context.Context, id int64) (*Member, error) {
	return s.repo.GetMember(ctx, id)
}

// ListMembers returns the roster ordered by name.
func (s *Service) ListMembers(ctx context.Context) ([]Member, error) {
	return s.repo.ListMembers(ctx)
}

// TogglePayStatus upserts the paid flag for a (project, member) pair.
// Flipping it on records an automatic ledger entry; flipping it off
// removes the entry the earlier toggle created.
func (s *Service) TogglePayStatus(ctx context.Context, req TogglePayStatusRequest, actor shared.Actor) (*PayStatus, error) {
	if _, err := s.repo.GetMember(ctx, req.MemberID); err != nil {
		return nil, err
	}

	var status *PayStatus
	var wasPaid bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		prev, err := repo.GetPayStatusForUpdate(ctx, req.ProjectID, req.MemberID)
		if err != nil {
			return err
		}
		wasPaid = prev != nil && prev.Paid
		status, err = repo.UpsertPayStatus(ctx, req.ProjectID, req.MemberID, *req.Paid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("toggle pay status: %w", err)
	}

	projectID := req.ProjectID
	s.syncLedger(ctx, wasPaid, status.Paid, req.MemberID, payTypeProject, amountOrZero(req.Amount), &projectID, nil, actor)
	return status, nil
}

// ToggleProfitShareStatus upserts the paid flag for a (quarter,
// member) pair with the same ledger side effects as pay status.
func (s *Service) ToggleProfitShareStatus(ctx context.Context, req ToggleProfitShareRequest, actor shared.Actor) (*ProfitShareStatus, error) {
	if _, err := s.repo.GetMember(ctx, req.MemberID); err != nil {
		return nil, err
	}

	var status *ProfitShareStatus
	var wasPaid bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		prev, err := repo.GetProfitShareStatusForUpdate(ctx, req.Quarter, req.MemberID)
		if err != nil {
			return err
		}
		wasPaid = prev != nil && prev.Paid
		status, err = repo.UpsertProfitShareStatus(ctx, req.Quarter, req.MemberID, *req.Paid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("toggle profit share status: %w", err)
	}

	quarter := req.Quarter
	s.syncLedger(ctx, wasPaid, status.Paid, req.MemberID, payTypeProfitShare, amountOrZero(req.Amount), nil, &quarter, actor)
	return status, nil
}

// syncLedger reconciles the automatic ledger entry with a toggle
// transition. Ledger failures are logged, not surfaced: the toggle
// itself has already committed.
func (s *Service) syncLedger(ctx context.Context, wasPaid, isPaid bool, memberID int64, payType string, amount float64, projectID *int64, quarter *string, actor shared.Actor) {
	if s.ledger == nil || wasPaid == isPaid {
		return
	}
	var err error
	if isPaid {
		err = s.ledger.RecordAutomatic(ctx, memberID, payType, amount, projectID, quarter, actor)
	} else {
		err = s.ledger.RemoveAutomatic(ctx, memberID, payType, projectID, quarter)
	}
	if err != nil {
		s.logger.Warn("sync pay ledger",
			slog.Int64("member_id", memberID),
			slog.String("pay_type", payType),
			slog.Any("error", err))
	}
}

// ListPayStatus returns pay status rows, optionally for one project.
func (s *Service) ListPayStatus(ctx context.Context, projectID *int64) ([]PayStatus, error) {
	return s.repo.ListPayStatus(ctx, projectID)
}

// ListProfitShareStatus returns profit-share rows, optionally for one
// quarter.
func (s *Service) ListProfitShareStatus(ctx context.Context, quarter *string) ([]ProfitShareStatus, error) {
	return s.repo.ListProfitShareStatus(ctx, quarter)
}

func amountOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
