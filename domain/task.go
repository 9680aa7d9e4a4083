package domain

import (
	"strings"
	"time"
)

// TaskStatus is the position of a task on the board. Any status may move to
// any other; there is no transition graph.
type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
)

// DefaultTaskStatus is applied when a task is created without a status.
const DefaultTaskStatus = StatusPending

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseTaskStatus validates a raw status value.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(raw)
	if !s.Valid() {
		return "", Validation("status must be PENDING, IN_PROGRESS, or COMPLETED")
	}
	return s, nil
}

// Task is a unit of work owned by exactly one user.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	UserID      string     `json:"userId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewTask holds the caller-supplied fields of a task being created.
type NewTask struct {
	Title       string
	Description string
	Status      *TaskStatus
}

func (n NewTask) validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return Validation("title is required")
	}
	if strings.TrimSpace(n.Description) == "" {
		return Validation("description is required")
	}
	if n.Status != nil && !n.Status.Valid() {
		return Validation("status must be PENDING, IN_PROGRESS, or COMPLETED")
	}
	return nil
}

// TaskPatch carries a partial task update. Nil fields are left untouched.
// UpdatedAt is stamped by TaskService before the patch reaches the store.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	UpdatedAt   time.Time
}

func (p TaskPatch) changes() map[string]any {
	m := make(map[string]any, 3)
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.Status != nil {
		m["status"] = *p.Status
	}
	return m
}

func (p TaskPatch) validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return Validation("title must not be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return Validation("status must be PENDING, IN_PROGRESS, or COMPLETED")
	}
	return nil
}

// Apply returns t with the present patch fields applied.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if !p.UpdatedAt.IsZero() {
		t.UpdatedAt = p.UpdatedAt
	}
	return t
}

// SortDirection orders listings.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// TaskOrderField names the sortable task columns.
type TaskOrderField string

const (
	OrderByCreatedAt TaskOrderField = "createdAt"
	OrderByUpdatedAt TaskOrderField = "updatedAt"
	OrderByTitle     TaskOrderField = "title"
	OrderByStatus    TaskOrderField = "status"
)

func (f TaskOrderField) Valid() bool {
	switch f {
	case OrderByCreatedAt, OrderByUpdatedAt, OrderByTitle, OrderByStatus:
		return true
	}
	return false
}

// MaxPageSize caps the take parameter of listings.
const MaxPageSize = 100

// TaskQuery holds the filters a caller may apply to their own task list.
// It has no owner field: the owner always comes from the caller's identity.
type TaskQuery struct {
	Status    *TaskStatus
	Skip      int
	Take      int
	OrderBy   TaskOrderField
	Direction SortDirection
}

// TaskFilter is the query handed to a TaskStore. UserID is always set.
type TaskFilter struct {
	UserID    string
	Status    *TaskStatus
	Skip      int
	Take      int
	OrderBy   TaskOrderField
	Direction SortDirection
}

// TaskPage is one window of a caller's tasks plus the total for the filter.
type TaskPage struct {
	Tasks []Task
	Total int
	Skip  int
	Take  int
}

func validatePaging(skip, take int) error {
	if skip < 0 {
		return Validation("skip must be greater than or equal to 0")
	}
	if take < 0 || take > MaxPageSize {
		return Validation("take must be between 1 and %d", MaxPageSize)
	}
	return nil
}
