package payledger

import (
	"fmt"
	"time"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
)

// Entry is one payout event. Automatic entries are derived from pay
// and profit-share status toggles; manual entries are recorded by an
// admin directly. Only manual entries may be deleted.
type Entry struct {
	ID        int64     `json:"id" db:"id"`
	MemberID  int64     `json:"member_id" db:"member_id"`
	PayType   string    `json:"pay_type" db:"pay_type"`
	Amount    float64   `json:"amount" db:"amount"`
	ProjectID *int64    `json:"project_id,omitempty" db:"project_id"`
	Quarter   *string   `json:"quarter,omitempty" db:"quarter"`
	Note      string    `json:"note,omitempty" db:"note"`
	IsManual  bool      `json:"is_manual" db:"is_manual"`
	CreatedBy *int64    `json:"created_by,omitempty" db:"created_by"`
	PaidAt    time.Time `json:"paid_at" db:"paid_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Pay types produced by the status toggles. Manual entries may carry
// any type string.
const (
	PayTypeProject     = "project_pay"
	PayTypeProfitShare = "profit_share"
)

// CreateEntryRequest records a payout. Amount is required but not
// range-checked: zero and negative entries are legitimate corrections.
type CreateEntryRequest struct {
	MemberID  int64      `json:"member_id" validate:"required,gt=0"`
	PayType   string     `json:"pay_type" validate:"required,max=50"`
	Amount    *float64   `json:"amount" validate:"required"`
	ProjectID *int64     `json:"project_id,omitempty"`
	Quarter   *string    `json:"quarter,omitempty" validate:"omitempty,max=20"`
	Note      string     `json:"note,omitempty" validate:"omitempty,max=500"`
	IsManual  *bool      `json:"is_manual,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// SummaryRow is one member's aggregated payout total for the
// dashboard.
type SummaryRow struct {
	MemberID        int64   `json:"member_id"`
	MemberName      string  `json:"member_name"`
	Total           float64 `json:"total"`
	FormattedTotal  string  `json:"formatted_total"`
	EntryCount      int64   `json:"entry_count"`
	LastPaidAtEpoch int64   `json:"last_paid_at_epoch"`
}

// ErrAutoEntryImmutable rejects deletion of automatically generated
// entries. Reversing the status toggle that produced one removes it.
var ErrAutoEntryImmutable = fmt.Errorf("%w: automatic pay log entries cannot be deleted; reverse the status toggle that created this entry instead", httpx.ErrForbidden)
