package shared

import "reflect"

// FieldChange captures a single field transition for the audit trail.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// DiffFields compares typed before/after values field by field and
// returns the non-empty transitions. Only keys present in after are
// considered; callers build the maps from the columns the update
// payload touched.
func DiffFields(before, after map[string]any) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for field, to := range after {
		from := before[field]
		if reflect.DeepEqual(from, to) {
			continue
		}
		changes[field] = FieldChange{From: from, To: to}
	}
	return changes
}
