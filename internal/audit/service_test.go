package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	lastLimit int
	entries   []Entry
}

func (s *stubRepo) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	s.lastLimit = limit
	if len(s.entries) > limit {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func TestListRecentDefaultLimit(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultListLimit, repo.lastLimit)
}

func TestListRecentClampsExcessiveLimit(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.ListRecent(context.Background(), 10000)
	require.NoError(t, err)
	assert.Equal(t, DefaultListLimit, repo.lastLimit)
}

func TestListRecentPassesThroughSmallLimit(t *testing.T) {
	now := time.Now()
	repo := &stubRepo{entries: []Entry{
		{ID: 3, Action: "EDIT_DEAL", CreatedAt: now},
		{ID: 2, Action: "DELETE_DEAL", CreatedAt: now.Add(-time.Minute)},
		{ID: 1, Action: "PAY_LOG_ENTRY", CreatedAt: now.Add(-time.Hour)},
	}}
	svc := NewService(repo)

	entries, err := svc.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lastLimit)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].ID)
}
