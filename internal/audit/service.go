package audit

import "context"

// DefaultListLimit caps the entries a listing returns.
const DefaultListLimit = 200

// Service serves read access to the audit trail.
type Service struct {
	repo Repository
}

// NewService constructs an audit query service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRecent returns the most recent entries, newest first.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.repo.ListRecent(ctx, limit)
}
