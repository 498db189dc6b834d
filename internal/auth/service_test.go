package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

type stubRepo struct {
	members map[int64]*Member
}

func (s *stubRepo) FindMember(ctx context.Context, id int64) (*Member, error) {
	m, ok := s.members[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func newTestDenylist(t *testing.T) *Denylist {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDenylist(client)
}

func seededService(t *testing.T) (*Service, *TokenManager) {
	t.Helper()
	hash, err := HashPIN("4321", 4)
	require.NoError(t, err)
	repo := &stubRepo{members: map[int64]*Member{
		1: {ID: 1, Name: "Ada", AuthRole: shared.RoleAdmin, PINHash: hash, IsActive: true},
		2: {ID: 2, Name: "Gone", AuthRole: shared.RoleVA, PINHash: hash, IsActive: false},
	}}
	tokens := NewTokenManager("test-secret", "atelier-ops", time.Hour)
	return NewService(repo, tokens, newTestDenylist(t)), tokens
}

func TestLoginSuccess(t *testing.T) {
	svc, tokens := seededService(t)

	resp, err := svc.Login(context.Background(), LoginRequest{MemberID: 1, PIN: "4321"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "Ada", resp.Member.Name)

	claims, err := tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.Subject)
	assert.Equal(t, shared.RoleAdmin, claims.Role)
}

func TestLoginWrongPIN(t *testing.T) {
	svc, _ := seededService(t)

	_, err := svc.Login(context.Background(), LoginRequest{MemberID: 1, PIN: "0000"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrUnauthorized))
}

func TestLoginUnknownMember(t *testing.T) {
	svc, _ := seededService(t)

	_, err := svc.Login(context.Background(), LoginRequest{MemberID: 42, PIN: "4321"})
	require.Error(t, err)
	// Unknown ids and bad PINs are indistinguishable to the caller.
	assert.True(t, errors.Is(err, httpx.ErrUnauthorized))
	assert.False(t, errors.Is(err, httpx.ErrNotFound))
}

func TestLoginInactiveMember(t *testing.T) {
	svc, _ := seededService(t)

	_, err := svc.Login(context.Background(), LoginRequest{MemberID: 2, PIN: "4321"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrUnauthorized))
}

func TestLogoutRevokesToken(t *testing.T) {
	denylist := newTestDenylist(t)
	tokens := NewTokenManager("test-secret", "atelier-ops", time.Hour)
	hash, err := HashPIN("4321", 4)
	require.NoError(t, err)
	repo := &stubRepo{members: map[int64]*Member{
		1: {ID: 1, Name: "Ada", AuthRole: shared.RoleAdmin, PINHash: hash, IsActive: true},
	}}
	svc := NewService(repo, tokens, denylist)
	ctx := context.Background()

	resp, err := svc.Login(ctx, LoginRequest{MemberID: 1, PIN: "4321"})
	require.NoError(t, err)
	claims, err := tokens.Parse(resp.Token)
	require.NoError(t, err)

	assert.False(t, denylist.IsRevoked(ctx, claims.ID))
	require.NoError(t, svc.Logout(ctx, claims))
	assert.True(t, denylist.IsRevoked(ctx, claims.ID))
}
