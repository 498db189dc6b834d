package payledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, repo Repository) (*SummaryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, repo, nil), mr
}

func TestSummaryCacheColdReadRecomputes(t *testing.T) {
	repo := newMemoryRepo()
	repo.names[1] = "Ada"
	cache, mr := newTestCache(t, repo)
	ctx := context.Background()

	_, err := repo.Insert(ctx, Entry{MemberID: 1, PayType: "bonus", Amount: 1250.5, IsManual: true, PaidAt: time.Now()})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, Entry{MemberID: 1, PayType: "bonus", Amount: 749.5, IsManual: true, PaidAt: time.Now()})
	require.NoError(t, err)

	rows, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2000.0, rows[0].Total)
	assert.Equal(t, "$2,000.00", rows[0].FormattedTotal)
	assert.True(t, mr.Exists("pay:summary"))
}

func TestSummaryCacheServesWarmValue(t *testing.T) {
	repo := newMemoryRepo()
	repo.names[2] = "Ben"
	cache, _ := newTestCache(t, repo)
	ctx := context.Background()

	_, err := repo.Insert(ctx, Entry{MemberID: 2, PayType: "bonus", Amount: 100, IsManual: true, PaidAt: time.Now()})
	require.NoError(t, err)

	first, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A later ledger write is invisible until refresh or invalidate.
	_, err = repo.Insert(ctx, Entry{MemberID: 2, PayType: "bonus", Amount: 50, IsManual: true, PaidAt: time.Now()})
	require.NoError(t, err)

	warm, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, warm[0].Total)

	cache.Invalidate(ctx)
	fresh, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 150.0, fresh[0].Total)
}

func TestSummaryCacheNilClientRecomputes(t *testing.T) {
	repo := newMemoryRepo()
	repo.names[3] = "Cal"
	cache := NewSummaryCache(nil, repo, nil)
	ctx := context.Background()

	_, err := repo.Insert(ctx, Entry{MemberID: 3, PayType: "bonus", Amount: 10, IsManual: true, PaidAt: time.Now()})
	require.NoError(t, err)

	rows, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10.0, rows[0].Total)
}
