package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/atelier-ops/atelier-ops/internal/shared"
)

const (
	entityTasks = "tasks"

	actionBlockedEditTaskHours = "BLOCKED_EDIT_TASK_HOURS"
)

// Service provides business logic for projects and tasks.
type Service struct {
	repo   Repository
	audit  *shared.Recorder
	logger *slog.Logger
}

// NewService constructs a projects service.
func NewService(repo Repository, audit *shared.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateProject inserts a new project. Status defaults to active.
func (s *Service) CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	project := Project{
		Name:   req.Name,
		DealID: req.DealID,
		Status: shared.ProjectActive,
	}
	if req.Status != nil {
		project.Status = *req.Status
	}
	id, err := s.repo.CreateProject(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return s.repo.GetProject(ctx, id)
}

// UpdateProject applies a partial update. Projects carry no locked
// fields themselves; the hours lock acts on their tasks.
func (s *Service) UpdateProject(ctx context.Context, id int64, req UpdateProjectRequest) (*Project, error) {
	if err := s.repo.UpdateProject(ctx, id, req.updates()); err != nil {
		return nil, err
	}
	return s.repo.GetProject(ctx, id)
}

// DeleteProject removes a project. Its tasks cascade with it.
func (s *Service) DeleteProject(ctx context.Context, id int64) error {
	return s.repo.DeleteProject(ctx, id)
}

// GetProject retrieves a project by ID.
func (s *Service) GetProject(ctx context.Context, id int64) (*Project, error) {
	return s.repo.GetProject(ctx, id)
}

// ListProjects returns all projects, newest first.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	return s.repo.ListProjects(ctx)
}

// CreateTask inserts a new task under a project.
func (s *Service) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	if _, err := s.repo.GetProject(ctx, req.ProjectID); err != nil {
		return nil, err
	}
	task := Task{
		ProjectID:  req.ProjectID,
		Title:      req.Title,
		Status:     TaskTodo,
		AssigneeID: req.AssigneeID,
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.EstHours != nil {
		task.EstHours = *req.EstHours
	}
	id, err := s.repo.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return s.repo.GetTask(ctx, id)
}

// UpdateTask applies a partial update. When the payload touches the
// hour estimate, the owning project and its deal are resolved inside
// the same transaction and the edit is rejected while hours-locked.
// Other fields stay editable regardless of lock state, and successful
// edits are not audited.
func (s *Service) UpdateTask(ctx context.Context, id int64, req UpdateTaskRequest, actor shared.Actor) (*Task, error) {
	var after *Task
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		cur, err := repo.GetTaskForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if req.EstHours != nil {
			project, err := repo.GetProject(ctx, cur.ProjectID)
			if err != nil {
				return err
			}
			var dealStatus *shared.InvoiceStatus
			if project.DealID != nil {
				status, err := repo.DealInvoiceStatus(ctx, *project.DealID)
				if err != nil {
					return err
				}
				dealStatus = &status
			}
			if shared.TaskHoursLocked(project.Status, dealStatus) {
				return ErrTaskHoursLocked
			}
		}

		updates := req.updates()
		if len(updates) == 0 {
			after = cur
			return nil
		}
		if err := repo.UpdateTask(ctx, id, updates); err != nil {
			return err
		}
		after, err = repo.GetTask(ctx, id)
		return err
	})

	if errors.Is(err, ErrTaskHoursLocked) {
		actorID, actorName := shared.ActorRef(actor)
		s.audit.Record(ctx, shared.AuditEntry{
			ActorID:   actorID,
			ActorName: actorName,
			Action:    actionBlockedEditTaskHours,
			Entity:    entityTasks,
			EntityID:  strconv.FormatInt(id, 10),
			Changes:   map[string]any{"attempted_est_hours": *req.EstHours},
		})
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return after, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	return s.repo.DeleteTask(ctx, id)
}

// ListTasks returns tasks, optionally filtered by project.
func (s *Service) ListTasks(ctx context.Context, projectID *int64) ([]Task, error) {
	return s.repo.ListTasks(ctx, projectID)
}
