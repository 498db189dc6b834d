package projects

import (
	"fmt"
	"time"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

// Project is a unit of delivery work, optionally tied to the deal that
// funds it. The deal link is weak: deleting the deal nulls DealID.
type Project struct {
	ID        int64                `json:"id" db:"id"`
	Name      string               `json:"name" db:"name"`
	DealID    *int64               `json:"deal_id,omitempty" db:"deal_id"`
	Status    shared.ProjectStatus `json:"status" db:"status"`
	Archived  bool                 `json:"archived" db:"archived"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt time.Time            `json:"updated_at" db:"updated_at"`
}

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// Task belongs to exactly one project and cascades with it. EstHours
// freezes while the owning project is hours-locked.
type Task struct {
	ID         int64      `json:"id" db:"id"`
	ProjectID  int64      `json:"project_id" db:"project_id"`
	Title      string     `json:"title" db:"title"`
	Status     TaskStatus `json:"status" db:"status"`
	AssigneeID *int64     `json:"assignee_id,omitempty" db:"assignee_id"`
	EstHours   float64    `json:"est_hours" db:"est_hours"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

type CreateProjectRequest struct {
	Name   string                `json:"name" validate:"required,max=200"`
	DealID *int64                `json:"deal_id,omitempty"`
	Status *shared.ProjectStatus `json:"status,omitempty" validate:"omitempty,oneof=active complete archived"`
}

type UpdateProjectRequest struct {
	Name     *string               `json:"name,omitempty" validate:"omitempty,max=200"`
	DealID   *int64                `json:"deal_id,omitempty"`
	Status   *shared.ProjectStatus `json:"status,omitempty" validate:"omitempty,oneof=active complete archived"`
	Archived *bool                 `json:"archived,omitempty"`
}

func (r UpdateProjectRequest) updates() map[string]any {
	updates := make(map[string]any)
	if r.Name != nil {
		updates["name"] = *r.Name
	}
	if r.DealID != nil {
		updates["deal_id"] = *r.DealID
	}
	if r.Status != nil {
		updates["status"] = string(*r.Status)
	}
	if r.Archived != nil {
		updates["archived"] = *r.Archived
	}
	return updates
}

type CreateTaskRequest struct {
	ProjectID  int64       `json:"project_id" validate:"required,gt=0"`
	Title      string      `json:"title" validate:"required,max=200"`
	Status     *TaskStatus `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress done"`
	AssigneeID *int64      `json:"assignee_id,omitempty"`
	EstHours   *float64    `json:"est_hours,omitempty" validate:"omitempty,gte=0"`
}

type UpdateTaskRequest struct {
	Title      *string     `json:"title,omitempty" validate:"omitempty,max=200"`
	Status     *TaskStatus `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress done"`
	AssigneeID *int64      `json:"assignee_id,omitempty"`
	EstHours   *float64    `json:"est_hours,omitempty" validate:"omitempty,gte=0"`
}

func (r UpdateTaskRequest) updates() map[string]any {
	updates := make(map[string]any)
	if r.Title != nil {
		updates["title"] = *r.Title
	}
	if r.Status != nil {
		updates["status"] = string(*r.Status)
	}
	if r.AssigneeID != nil {
		updates["assignee_id"] = *r.AssigneeID
	}
	if r.EstHours != nil {
		updates["est_hours"] = *r.EstHours
	}
	return updates
}

// ErrTaskHoursLocked rejects estimated-hours edits once the owning
// project is complete and its deal is paid.
var ErrTaskHoursLocked = fmt.Errorf("%w: estimated hours are locked while the project is complete and its deal is paid", httpx.ErrForbidden)
