package shared

// Lock predicates over already-fetched entity state. They never touch
// storage; callers must supply state read inside the same transaction
// that performs the guarded write, otherwise the check is advisory.

// InvoiceStatus tracks how far a deal's invoice has progressed.
type InvoiceStatus string

const (
	InvoiceNone    InvoiceStatus = "none"
	InvoiceSent    InvoiceStatus = "sent"
	InvoiceDeposit InvoiceStatus = "deposit"
	InvoicePaid    InvoiceStatus = "paid"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectComplete ProjectStatus = "complete"
	ProjectArchived ProjectStatus = "archived"
)

// DealIsLocked reports whether a deal's financial fields are frozen.
// A paid invoice locks value, buckets and prob until the status is
// moved away from paid again.
func DealIsLocked(status InvoiceStatus) bool {
	return status == InvoicePaid
}

// TaskHoursLocked reports whether estimated hours on a project's tasks
// are frozen. deal is nil when the project has no linked deal.
func TaskHoursLocked(project ProjectStatus, deal *InvoiceStatus) bool {
	return project == ProjectComplete && deal != nil && DealIsLocked(*deal)
}

// ProfitShareLocked reports whether a member's profit-share percentage
// is frozen: true as soon as any of their profit-share status rows has
// been marked paid.
func ProfitShareLocked(paid ...bool) bool {
	for _, p := range paid {
		if p {
			return true
		}
	}
	return false
}
