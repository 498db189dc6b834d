package projects

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	nextID   int64
	projects map[int64]*Project
	tasks    map[int64]*Task
	deals    map[int64]shared.InvoiceStatus
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:   1,
		projects: map[int64]*Project{},
		tasks:    map[int64]*Task{},
		deals:    map[int64]shared.InvoiceStatus{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) ListProjects(ctx context.Context) ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Project
	for _, p := range r.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryRepo) GetProject(ctx context.Context, id int64) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memoryRepo) CreateProject(ctx context.Context, project Project) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	project.ID = r.nextID
	r.nextID++
	r.projects[project.ID] = &project
	return project.ID, nil
}

func (r *memoryRepo) UpdateProject(ctx context.Context, id int64, updates map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return ErrProjectNotFound
	}
	for col, val := range updates {
		switch col {
		case "name":
			p.Name = val.(string)
		case "deal_id":
			dealID := val.(int64)
			p.DealID = &dealID
		case "status":
			p.Status = shared.ProjectStatus(val.(string))
		case "archived":
			p.Archived = val.(bool)
		}
	}
	return nil
}

func (r *memoryRepo) DeleteProject(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return ErrProjectNotFound
	}
	delete(r.projects, id)
	for taskID, t := range r.tasks {
		if t.ProjectID == id {
			delete(r.tasks, taskID)
		}
	}
	return nil
}

func (r *memoryRepo) ListTasks(ctx context.Context, projectID *int64) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Task
	for _, t := range r.tasks {
		if projectID == nil || t.ProjectID == *projectID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetTask(ctx context.Context, id int64) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memoryRepo) GetTaskForUpdate(ctx context.Context, id int64) (*Task, error) {
	return r.GetTask(ctx, id)
}

func (r *memoryRepo) CreateTask(ctx context.Context, task Task) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task.ID = r.nextID
	r.nextID++
	r.tasks[task.ID] = &task
	return task.ID, nil
}

func (r *memoryRepo) UpdateTask(ctx context.Context, id int64, updates map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	for col, val := range updates {
		switch col {
		case "title":
			t.Title = val.(string)
		case "status":
			t.Status = TaskStatus(val.(string))
		case "assignee_id":
			assignee := val.(int64)
			t.AssigneeID = &assignee
		case "est_hours":
			t.EstHours = val.(float64)
		}
	}
	return nil
}

func (r *memoryRepo) DeleteTask(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *memoryRepo) DealInvoiceStatus(ctx context.Context, dealID int64) (shared.InvoiceStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.deals[dealID]
	if !ok {
		return "", httpx.ErrNotFound
	}
	return status, nil
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

func ptr[T any](v T) *T { return &v }

func testActor() shared.Actor {
	return shared.Actor{ID: 3, Name: "Ben", Role: shared.RoleClassA}
}

// seedLockedTask builds a complete project whose deal is paid, the
// combination that freezes task hour estimates.
func seedLockedTask(t *testing.T, repo *memoryRepo) int64 {
	t.Helper()
	ctx := context.Background()
	repo.deals[10] = shared.InvoicePaid
	dealID := int64(10)
	projectID, err := repo.CreateProject(ctx, Project{Name: "Launch site", DealID: &dealID, Status: shared.ProjectComplete})
	require.NoError(t, err)
	taskID, err := repo.CreateTask(ctx, Task{ProjectID: projectID, Title: "Design hero", Status: TaskTodo, EstHours: 8})
	require.NoError(t, err)
	return taskID
}

func TestUpdateTaskHoursLockedRejected(t *testing.T) {
	repo := newMemoryRepo()
	store := &captureStore{}
	recorder := shared.NewRecorder(store, nil)
	svc := NewService(repo, recorder, nil)
	ctx := context.Background()

	taskID := seedLockedTask(t, repo)

	_, err := svc.UpdateTask(ctx, taskID, UpdateTaskRequest{EstHours: ptr(12.0)}, testActor())
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrForbidden))

	task, err := repo.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 8.0, task.EstHours)

	recorder.Drain()
	blocked := store.byAction("BLOCKED_EDIT_TASK_HOURS")
	require.Len(t, blocked, 1)
	assert.Equal(t, "tasks", blocked[0].Entity)
	assert.Equal(t, map[string]any{"attempted_est_hours": 12.0}, blocked[0].Changes)
}

func TestUpdateTaskStatusAllowedWhileHoursLocked(t *testing.T) {
	repo := newMemoryRepo()
	store := &captureStore{}
	recorder := shared.NewRecorder(store, nil)
	svc := NewService(repo, recorder, nil)
	ctx := context.Background()

	taskID := seedLockedTask(t, repo)

	task, err := svc.UpdateTask(ctx, taskID, UpdateTaskRequest{Status: ptr(TaskDone)}, testActor())
	require.NoError(t, err)
	assert.Equal(t, TaskDone, task.Status)

	recorder.Drain()
	assert.Empty(t, store.entries)
}

func TestUpdateTaskHoursNoDealLink(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, shared.NewRecorder(&captureStore{}, nil), nil)
	ctx := context.Background()

	projectID, err := repo.CreateProject(ctx, Project{Name: "Internal", Status: shared.ProjectComplete})
	require.NoError(t, err)
	taskID, err := repo.CreateTask(ctx, Task{ProjectID: projectID, Title: "Cleanup", EstHours: 2})
	require.NoError(t, err)

	task, err := svc.UpdateTask(ctx, taskID, UpdateTaskRequest{EstHours: ptr(4.0)}, testActor())
	require.NoError(t, err)
	assert.Equal(t, 4.0, task.EstHours)
}

func TestUpdateTaskHoursActiveProject(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, shared.NewRecorder(&captureStore{}, nil), nil)
	ctx := context.Background()

	repo.deals[11] = shared.InvoicePaid
	dealID := int64(11)
	projectID, err := repo.CreateProject(ctx, Project{Name: "Ongoing", DealID: &dealID, Status: shared.ProjectActive})
	require.NoError(t, err)
	taskID, err := repo.CreateTask(ctx, Task{ProjectID: projectID, Title: "Wireframes", EstHours: 6})
	require.NoError(t, err)

	task, err := svc.UpdateTask(ctx, taskID, UpdateTaskRequest{EstHours: ptr(9.0)}, testActor())
	require.NoError(t, err)
	assert.Equal(t, 9.0, task.EstHours)
}

func TestCreateTaskRequiresProject(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, shared.NewRecorder(&captureStore{}, nil), nil)

	_, err := svc.CreateTask(context.Background(), CreateTaskRequest{ProjectID: 42, Title: "Orphan"})
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}

func TestDeleteProjectCascadesTasks(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, shared.NewRecorder(&captureStore{}, nil), nil)
	ctx := context.Background()

	projectID, err := repo.CreateProject(ctx, Project{Name: "Short lived"})
	require.NoError(t, err)
	taskID, err := repo.CreateTask(ctx, Task{ProjectID: projectID, Title: "Doomed"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProject(ctx, projectID))

	_, err = repo.GetTask(ctx, taskID)
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}
