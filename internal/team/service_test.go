package team

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

type psKey struct {
	quarter  string
	memberID int64
}

type payKey struct {
	projectID int64
	memberID  int64
}

type memoryRepo struct {
	mu          sync.Mutex
	nextID      int64
	members     map[int64]*Member
	pinHashes   map[int64]string
	payStatus   map[payKey]*PayStatus
	profitShare map[psKey]*ProfitShareStatus
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:      1,
		members:     map[int64]*Member{},
		pinHashes:   map[int64]string{},
		payStatus:   map[payKey]*PayStatus{},
		profitShare: map[psKey]*ProfitShareStatus{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) ListMembers(ctx context.Context) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Member
	for _, m := range r.members {
		out = append(out, *m)
	}
	return out, nil
}

func (r *memoryRepo) GetMember(ctx context.Context, id int64) (*Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return nil, ErrMemberNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *memoryRepo) GetMemberForUpdate(ctx context.Context, id int64) (*Member, error) {
	return r.GetMember(ctx, id)
}

func (r *memoryRepo) CreateMember(ctx context.Context, member Member, pinHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	member.ID = r.nextID
	member.IsActive = true
	r.nextID++
	r.members[member.ID] = &member
	r.pinHashes[member.ID] = pinHash
	return member.ID, nil
}

func (r *memoryRepo) UpdateMember(ctx context.Context, id int64, updates map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return ErrMemberNotFound
	}
	for col, val := range updates {
		switch col {
		case "name":
			m.Name = val.(string)
		case "role_label":
			m.RoleLabel = val.(string)
		case "auth_role":
			m.AuthRole = shared.Role(val.(string))
		case "profit_share_pct":
			m.ProfitSharePct = val.(float64)
		case "is_active":
			m.IsActive = val.(bool)
		case "pin_hash":
			r.pinHashes[id] = val.(string)
		}
	}
	return nil
}

func (r *memoryRepo) DeleteMember(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return ErrMemberNotFound
	}
	delete(r.members, id)
	return nil
}

func (r *memoryRepo) ProfitSharePaidFlags(ctx context.Context, memberID int64) ([]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var flags []bool
	for key, s := range r.profitShare {
		if key.memberID == memberID {
			flags = append(flags, s.Paid)
		}
	}
	return flags, nil
}

func (r *memoryRepo) ListPayStatus(ctx context.Context, projectID *int64) ([]PayStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PayStatus
	for _, s := range r.payStatus {
		if projectID == nil || s.ProjectID == *projectID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetPayStatusForUpdate(ctx context.Context, projectID, memberID int64) (*PayStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.payStatus[payKey{projectID, memberID}]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *memoryRepo) UpsertPayStatus(ctx context.Context, projectID, memberID int64, paid bool) (*PayStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := payKey{projectID, memberID}
	s, ok := r.payStatus[key]
	if !ok {
		s = &PayStatus{ID: r.nextID, ProjectID: projectID, MemberID: memberID}
		r.nextID++
		r.payStatus[key] = s
	}
	s.Paid = paid
	s.UpdatedAt = time.Now()
	copied := *s
	return &copied, nil
}

func (r *memoryRepo) ListProfitShareStatus(ctx context.Context, quarter *string) ([]ProfitShareStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ProfitShareStatus
	for _, s := range r.profitShare {
		if quarter == nil || s.Quarter == *quarter {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetProfitShareStatusForUpdate(ctx context.Context, quarter string, memberID int64) (*ProfitShareStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.profitShare[psKey{quarter, memberID}]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *memoryRepo) UpsertProfitShareStatus(ctx context.Context, quarter string, memberID int64, paid bool) (*ProfitShareStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := psKey{quarter, memberID}
	s, ok := r.profitShare[key]
	if !ok {
		s = &ProfitShareStatus{ID: r.nextID, Quarter: quarter, MemberID: memberID}
		r.nextID++
		r.profitShare[key] = s
	}
	s.Paid = paid
	s.UpdatedAt = time.Now()
	copied := *s
	return &copied, nil
}

type captureStore struct {
	mu      sync.Mutex
	entries []shared.AuditEntry
}

func (s *captureStore) Insert(ctx context.Context, entry shared.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *captureStore) byAction(action string) []shared.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []shared.AuditEntry
	for _, e := range s.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type ledgerCall struct {
	memberID  int64
	payType   string
	amount    float64
	projectID *int64
	quarter   *string
}

type fakeLedger struct {
	mu       sync.Mutex
	recorded []ledgerCall
	removed  []ledgerCall
}

func (l *fakeLedger) RecordAutomatic(ctx context.Context, memberID int64, payType string, amount float64, projectID *int64, quarter *string, actor shared.Actor) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorded = append(l.recorded, ledgerCall{memberID, payType, amount, projectID, quarter})
	return nil
}

func (l *fakeLedger) RemoveAutomatic(ctx context.Context, memberID int64, payType string, projectID *int64, quarter *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, ledgerCall{memberID: memberID, payType: payType, projectID: projectID, quarter: quarter})
	return nil
}

func ptr[T any](v T) *T { return &v }

func adminActor(id int64) shared.Actor {
	return shared.Actor{ID: id, Name: "Root", Role: shared.RoleAdmin}
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *captureStore, *shared.Recorder, *fakeLedger) {
	t.Helper()
	repo := newMemoryRepo()
	store := &captureStore{}
	recorder := shared.NewRecorder(store, nil)
	ledger := &fakeLedger{}
	return NewService(repo, recorder, ledger, nil, 4), repo, store, recorder, ledger
}

func seedMember(t *testing.T, repo *memoryRepo, name string, role shared.Role, pct float64) int64 {
	t.Helper()
	id, err := repo.CreateMember(context.Background(), Member{Name: name, AuthRole: role, ProfitSharePct: pct}, "hash")
	require.NoError(t, err)
	return id
}

func TestSelfDemotionRejected(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	id := seedMember(t, repo, "Root", shared.RoleAdmin, 0)

	_, err := svc.UpdateMember(context.Background(), id, UpdateMemberRequest{AuthRole: ptr(shared.RoleClassA)}, adminActor(id))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCannotSelfDemote))
}

func TestSelfRoleKeepAdminAllowed(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	id := seedMember(t, repo, "Root", shared.RoleAdmin, 0)

	member, err := svc.UpdateMember(context.Background(), id, UpdateMemberRequest{AuthRole: ptr(shared.RoleAdmin), Name: ptr("Root Renamed")}, adminActor(id))
	require.NoError(t, err)
	assert.Equal(t, "Root Renamed", member.Name)
}

func TestInvalidRoleRejected(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	id := seedMember(t, repo, "Mara", shared.RoleClassB, 0)

	_, err := svc.UpdateMember(context.Background(), id, UpdateMemberRequest{AuthRole: ptr(shared.Role("superuser"))}, adminActor(99))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRole))
	assert.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestProfitSharePctLockedAfterPaidQuarter(t *testing.T) {
	svc, repo, store, recorder, _ := newTestService(t)
	ctx := context.Background()
	actor := adminActor(99)

	id := seedMember(t, repo, "Mira", shared.RoleClassA, 25)

	// Unpaid row does not lock.
	_, err := repo.UpsertProfitShareStatus(ctx, "Q1-2025", id, false)
	require.NoError(t, err)
	member, err := svc.UpdateMember(ctx, id, UpdateMemberRequest{ProfitSharePct: ptr(30.0)}, actor)
	require.NoError(t, err)
	assert.Equal(t, 30.0, member.ProfitSharePct)

	_, err = svc.ToggleProfitShareStatus(ctx, ToggleProfitShareRequest{Quarter: "Q1-2025", MemberID: id, Paid: ptr(true)}, actor)
	require.NoError(t, err)

	_, err = svc.UpdateMember(ctx, id, UpdateMemberRequest{ProfitSharePct: ptr(40.0)}, actor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrForbidden))
	assert.Contains(t, err.Error(), "Mira")

	cur, err := repo.GetMember(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 30.0, cur.ProfitSharePct)

	recorder.Drain()
	blocked := store.byAction("BLOCKED_PS_PCT_CHANGE")
	require.Len(t, blocked, 1)
	assert.Equal(t, 30.0, blocked[0].Changes["from"])
	assert.Equal(t, 40.0, blocked[0].Changes["to"])
}

func TestNameChangeAllowedWhileProfitShareLocked(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := context.Background()

	id := seedMember(t, repo, "Leo", shared.RoleClassB, 10)
	_, err := repo.UpsertProfitShareStatus(ctx, "Q2-2025", id, true)
	require.NoError(t, err)

	member, err := svc.UpdateMember(ctx, id, UpdateMemberRequest{Name: ptr("Leonard")}, adminActor(99))
	require.NoError(t, err)
	assert.Equal(t, "Leonard", member.Name)
}

func TestSamePctNotBlockedWhileLocked(t *testing.T) {
	svc, repo, store, recorder, _ := newTestService(t)
	ctx := context.Background()

	id := seedMember(t, repo, "Nina", shared.RoleClassA, 20)
	_, err := repo.UpsertProfitShareStatus(ctx, "Q3-2025", id, true)
	require.NoError(t, err)

	// Restating the current value is not a change and passes.
	_, err = svc.UpdateMember(ctx, id, UpdateMemberRequest{ProfitSharePct: ptr(20.0)}, adminActor(99))
	require.NoError(t, err)

	recorder.Drain()
	assert.Empty(t, store.byAction("BLOCKED_PS_PCT_CHANGE"))
	assert.Empty(t, store.byAction("EDIT_TEAM_PS_PCT"))
}

func TestPctChangeAudited(t *testing.T) {
	svc, repo, store, recorder, _ := newTestService(t)
	ctx := context.Background()

	id := seedMember(t, repo, "Ivy", shared.RoleClassA, 15)
	_, err := svc.UpdateMember(ctx, id, UpdateMemberRequest{ProfitSharePct: ptr(18.0)}, adminActor(99))
	require.NoError(t, err)

	recorder.Drain()
	edits := store.byAction("EDIT_TEAM_PS_PCT")
	require.Len(t, edits, 1)
	assert.Equal(t, 15.0, edits[0].Changes["from"])
	assert.Equal(t, 18.0, edits[0].Changes["to"])
}

func TestSelfDeleteRejected(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	id := seedMember(t, repo, "Root", shared.RoleAdmin, 0)

	err := svc.DeleteMember(context.Background(), id, adminActor(id))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCannotSelfDelete))
}

func TestDeleteMemberAudited(t *testing.T) {
	svc, repo, store, recorder, _ := newTestService(t)
	id := seedMember(t, repo, "Gone", shared.RoleVA, 0)

	require.NoError(t, svc.DeleteMember(context.Background(), id, adminActor(99)))

	recorder.Drain()
	deleted := store.byAction("DELETE_TEAM_MEMBER")
	require.Len(t, deleted, 1)
	assert.Equal(t, map[string]any{"name": "Gone"}, deleted[0].Changes)
}

func TestPayStatusToggleEmitsLedgerEntry(t *testing.T) {
	svc, repo, _, _, ledger := newTestService(t)
	ctx := context.Background()
	actor := adminActor(99)

	id := seedMember(t, repo, "Kay", shared.RoleClassB, 0)

	status, err := svc.TogglePayStatus(ctx, TogglePayStatusRequest{ProjectID: 5, MemberID: id, Paid: ptr(true), Amount: ptr(750.0)}, actor)
	require.NoError(t, err)
	assert.True(t, status.Paid)

	require.Len(t, ledger.recorded, 1)
	call := ledger.recorded[0]
	assert.Equal(t, id, call.memberID)
	assert.Equal(t, "project_pay", call.payType)
	assert.Equal(t, 750.0, call.amount)
	require.NotNil(t, call.projectID)
	assert.Equal(t, int64(5), *call.projectID)

	// Reversing the toggle removes the automatic entry.
	status, err = svc.TogglePayStatus(ctx, TogglePayStatusRequest{ProjectID: 5, MemberID: id, Paid: ptr(false)}, actor)
	require.NoError(t, err)
	assert.False(t, status.Paid)
	require.Len(t, ledger.removed, 1)
	assert.Equal(t, "project_pay", ledger.removed[0].payType)
}

func TestPayStatusRepeatedToggleNoDuplicateLedger(t *testing.T) {
	svc, repo, _, _, ledger := newTestService(t)
	ctx := context.Background()
	actor := adminActor(99)

	id := seedMember(t, repo, "Rae", shared.RoleClassB, 0)

	_, err := svc.TogglePayStatus(ctx, TogglePayStatusRequest{ProjectID: 8, MemberID: id, Paid: ptr(true)}, actor)
	require.NoError(t, err)
	_, err = svc.TogglePayStatus(ctx, TogglePayStatusRequest{ProjectID: 8, MemberID: id, Paid: ptr(true)}, actor)
	require.NoError(t, err)

	assert.Len(t, ledger.recorded, 1)
}

func TestProfitShareToggleEmitsLedgerEntry(t *testing.T) {
	svc, repo, _, _, ledger := newTestService(t)
	ctx := context.Background()
	actor := adminActor(99)

	id := seedMember(t, repo, "Quin", shared.RoleClassA, 12)

	_, err := svc.ToggleProfitShareStatus(ctx, ToggleProfitShareRequest{Quarter: "Q4-2025", MemberID: id, Paid: ptr(true), Amount: ptr(1800.0)}, actor)
	require.NoError(t, err)

	require.Len(t, ledger.recorded, 1)
	call := ledger.recorded[0]
	assert.Equal(t, "profit_share", call.payType)
	assert.Equal(t, 1800.0, call.amount)
	require.NotNil(t, call.quarter)
	assert.Equal(t, "Q4-2025", *call.quarter)
}

func TestToggleUnknownMember(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.TogglePayStatus(context.Background(), TogglePayStatusRequest{ProjectID: 1, MemberID: 42, Paid: ptr(true)}, adminActor(99))
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}
