package team

import (
	"fmt"
	"time"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

// Member is a team roster entry. ProfitSharePct freezes once any of
// the member's profit-share status rows is marked paid.
type Member struct {
	ID             int64       `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	RoleLabel      string      `json:"role_label" db:"role_label"`
	AuthRole       shared.Role `json:"auth_role" db:"auth_role"`
	ProfitSharePct float64     `json:"profit_share_pct" db:"profit_share_pct"`
	IsActive       bool        `json:"is_active" db:"is_active"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// PayStatus is the paid flag for one member on one project. Toggling
// it on emits an automatic pay ledger entry; toggling it off removes
// that entry.
type PayStatus struct {
	ID        int64     `json:"id" db:"id"`
	ProjectID int64     `json:"project_id" db:"project_id"`
	MemberID  int64     `json:"member_id" db:"member_id"`
	Paid      bool      `json:"paid" db:"paid"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProfitShareStatus is the paid flag for one member in one quarter. A
// paid row freezes the member's profit-share percentage.
type ProfitShareStatus struct {
	ID        int64     `json:"id" db:"id"`
	Quarter   string    `json:"quarter" db:"quarter"`
	MemberID  int64     `json:"member_id" db:"member_id"`
	Paid      bool      `json:"paid" db:"paid"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CreateMemberRequest struct {
	Name           string      `json:"name" validate:"required,max=200"`
	RoleLabel      string      `json:"role_label" validate:"omitempty,max=100"`
	AuthRole       shared.Role `json:"auth_role" validate:"required,oneof=admin class_a class_b va"`
	ProfitSharePct float64     `json:"profit_share_pct" validate:"gte=0,lte=100"`
	PIN            string      `json:"pin" validate:"required,min=4,max=64"`
}

type UpdateMemberRequest struct {
	Name           *string      `json:"name,omitempty" validate:"omitempty,max=200"`
	RoleLabel      *string      `json:"role_label,omitempty" validate:"omitempty,max=100"`
	AuthRole       *shared.Role `json:"auth_role,omitempty"`
	ProfitSharePct *float64     `json:"profit_share_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	IsActive       *bool        `json:"is_active,omitempty"`
	PIN            *string      `json:"pin,omitempty" validate:"omitempty,min=4,max=64"`
}

type TogglePayStatusRequest struct {
	ProjectID int64    `json:"project_id" validate:"required,gt=0"`
	MemberID  int64    `json:"member_id" validate:"required,gt=0"`
	Paid      *bool    `json:"paid" validate:"required"`
	Amount    *float64 `json:"amount,omitempty"`
}

type ToggleProfitShareRequest struct {
	Quarter  string   `json:"quarter" validate:"required,max=20"`
	MemberID int64    `json:"member_id" validate:"required,gt=0"`
	Paid     *bool    `json:"paid" validate:"required"`
	Amount   *float64 `json:"amount,omitempty"`
}

var (
	// ErrCannotSelfDemote rejects an admin removing their own admin
	// role.
	ErrCannotSelfDemote = fmt.Errorf("%w: you cannot change your own admin role", httpx.ErrForbidden)

	// ErrCannotSelfDelete rejects a member deleting themselves.
	ErrCannotSelfDelete = fmt.Errorf("%w: you cannot delete your own account", httpx.ErrForbidden)

	// ErrInvalidRole rejects an unknown auth role value.
	ErrInvalidRole = fmt.Errorf("%w: auth role must be one of admin, class_a, class_b, va", httpx.ErrValidation)
)

// ProfitShareLockedError rejects a percentage change once any of the
// member's profit-share rows has been paid out.
type ProfitShareLockedError struct {
	MemberName string
}

func (e *ProfitShareLockedError) Error() string {
	return fmt.Sprintf("profit share percentage for %s is locked: a paid profit-share record exists", e.MemberName)
}

func (e *ProfitShareLockedError) Unwrap() error {
	return httpx.ErrForbidden
}
