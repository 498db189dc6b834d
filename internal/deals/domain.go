package deals

import (
	"fmt"
	"strings"
	"time"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

// Stage is the sales pipeline stage of a deal.
type Stage string

const (
	StageLead        Stage = "lead"
	StageQualified   Stage = "qualified"
	StageProposal    Stage = "proposal"
	StageNegotiation Stage = "negotiation"
	StageClosedWon   Stage = "closed_won"
)

// Bucket is one probability-weighted revenue allocation entry. Order
// is meaningful and preserved.
type Bucket struct {
	Label string  `json:"label"`
	Pct   float64 `json:"pct"`
}

// Deal is a sales pipeline entry. Once InvoiceStatus reaches "paid",
// Value, Buckets and Prob freeze until the status moves away from
// paid again.
type Deal struct {
	ID            int64                `json:"id" db:"id"`
	Name          string               `json:"name" db:"name"`
	Value         float64              `json:"value" db:"value"`
	Expenses      float64              `json:"expenses" db:"expenses"`
	Stage         Stage                `json:"stage" db:"stage"`
	OwnerID       *int64               `json:"owner_id,omitempty" db:"owner_id"`
	ClosePeriod   *string              `json:"close_period,omitempty" db:"close_period"`
	InvoiceStatus shared.InvoiceStatus `json:"invoice_status" db:"invoice_status"`
	Collected     float64              `json:"collected" db:"collected"`
	Buckets       []Bucket             `json:"buckets" db:"buckets"`
	Prob          int                  `json:"prob" db:"prob"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at" db:"updated_at"`
}

// Expense is a cost attributed to a deal. The deal's Expenses column
// is a rollup over these rows, recomputed by a background task.
type Expense struct {
	ID         int64     `json:"id" db:"id"`
	DealID     int64     `json:"deal_id" db:"deal_id"`
	Label      string    `json:"label" db:"label"`
	Amount     float64   `json:"amount" db:"amount"`
	IncurredAt time.Time `json:"incurred_at" db:"incurred_at"`
	CreatedBy  *int64    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type CreateDealRequest struct {
	Name          string                `json:"name" validate:"required,max=200"`
	Value         float64               `json:"value" validate:"gte=0"`
	Stage         *Stage                `json:"stage,omitempty" validate:"omitempty,oneof=lead qualified proposal negotiation closed_won"`
	OwnerID       *int64                `json:"owner_id,omitempty"`
	ClosePeriod   *string               `json:"close_period,omitempty" validate:"omitempty,max=20"`
	InvoiceStatus *shared.InvoiceStatus `json:"invoice_status,omitempty" validate:"omitempty,oneof=none sent deposit paid"`
	Collected     float64               `json:"collected" validate:"gte=0"`
	Buckets       []Bucket              `json:"buckets,omitempty"`
	Prob          *int                  `json:"prob,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type UpdateDealRequest struct {
	Name          *string               `json:"name,omitempty" validate:"omitempty,max=200"`
	Value         *float64              `json:"value,omitempty" validate:"omitempty,gte=0"`
	Stage         *Stage                `json:"stage,omitempty" validate:"omitempty,oneof=lead qualified proposal negotiation closed_won"`
	OwnerID       *int64                `json:"owner_id,omitempty"`
	ClosePeriod   *string               `json:"close_period,omitempty"`
	InvoiceStatus *shared.InvoiceStatus `json:"invoice_status,omitempty" validate:"omitempty,oneof=none sent deposit paid"`
	Collected     *float64              `json:"collected,omitempty" validate:"omitempty,gte=0"`
	Buckets       *[]Bucket             `json:"buckets,omitempty"`
	Prob          *int                  `json:"prob,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// lockedFields returns the financial fields this update touches.
// InvoiceStatus is deliberately absent: changing it is the designated
// unlock path and stays editable on a locked deal.
func (r UpdateDealRequest) lockedFields() []string {
	var fields []string
	if r.Value != nil {
		fields = append(fields, "value")
	}
	if r.Buckets != nil {
		fields = append(fields, "buckets")
	}
	if r.Prob != nil {
		fields = append(fields, "prob")
	}
	return fields
}

// updates maps touched fields to column updates.
func (r UpdateDealRequest) updates() map[string]any {
	updates := make(map[string]any)
	if r.Name != nil {
		updates["name"] = *r.Name
	}
	if r.Value != nil {
		updates["value"] = *r.Value
	}
	if r.Stage != nil {
		updates["stage"] = string(*r.Stage)
	}
	if r.OwnerID != nil {
		updates["owner_id"] = *r.OwnerID
	}
	if r.ClosePeriod != nil {
		updates["close_period"] = *r.ClosePeriod
	}
	if r.InvoiceStatus != nil {
		updates["invoice_status"] = string(*r.InvoiceStatus)
	}
	if r.Collected != nil {
		updates["collected"] = *r.Collected
	}
	if r.Buckets != nil {
		updates["buckets"] = *r.Buckets
	}
	if r.Prob != nil {
		updates["prob"] = *r.Prob
	}
	return updates
}

// snapshot captures the deal's current values for exactly the fields
// this update touches, for before/after diffing.
func (r UpdateDealRequest) snapshot(d *Deal) map[string]any {
	snap := make(map[string]any)
	if r.Name != nil {
		snap["name"] = d.Name
	}
	if r.Value != nil {
		snap["value"] = d.Value
	}
	if r.Stage != nil {
		snap["stage"] = d.Stage
	}
	if r.OwnerID != nil {
		snap["owner_id"] = d.OwnerID
	}
	if r.ClosePeriod != nil {
		snap["close_period"] = d.ClosePeriod
	}
	if r.InvoiceStatus != nil {
		snap["invoice_status"] = d.InvoiceStatus
	}
	if r.Collected != nil {
		snap["collected"] = d.Collected
	}
	if r.Buckets != nil {
		snap["buckets"] = d.Buckets
	}
	if r.Prob != nil {
		snap["prob"] = d.Prob
	}
	return snap
}

type CreateExpenseRequest struct {
	Label      string     `json:"label" validate:"required,max=200"`
	Amount     *float64   `json:"amount" validate:"required"`
	IncurredAt *time.Time `json:"incurred_at,omitempty"`
}

// ErrDealPaid rejects deletion of a paid deal.
var ErrDealPaid = fmt.Errorf("%w: deal is paid and cannot be deleted; move its invoice status away from paid first", httpx.ErrForbidden)

// LockedFieldsError rejects edits to financial fields on a paid deal.
type LockedFieldsError struct {
	Fields []string
}

func (e *LockedFieldsError) Error() string {
	return fmt.Sprintf("financial fields are locked while the deal is paid: %s", strings.Join(e.Fields, ", "))
}

func (e *LockedFieldsError) Unwrap() error {
	return httpx.ErrForbidden
}
