package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TaskService runs task operations on behalf of an authenticated caller.
// Every read or mutation of an existing task goes through the ownership
// check in owned.
type TaskService struct {
	st    TaskStore
	pub   EventPublisher
	now   func() time.Time
	newID func() string
}

func NewTaskService(st TaskStore, pub EventPublisher) TaskService {
	if pub == nil {
		pub = nopPublisher{}
	}
	return TaskService{st: st, pub: pub, now: time.Now, newID: uuid.NewString}
}

// Create stores a new task owned by the caller.
func (s TaskService) Create(ctx context.Context, caller Identity, in NewTask) (Task, error) {
	if err := in.validate(); err != nil {
		return Task{}, err
	}
	status := DefaultTaskStatus
	if in.Status != nil {
		status = *in.Status
	}
	now := s.now().UTC()
	t, err := s.st.CreateTask(ctx, Task{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Status:      status,
		UserID:      caller.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	publish(ctx, s.pub, newEvent(TaskCreated, "task", t.ID, caller.ID, t, now))
	return t, nil
}

// Find returns the task if the caller owns it.
func (s TaskService) Find(ctx context.Context, caller Identity, id string) (Task, error) {
	t, err := s.owned(ctx, caller, id)
	if err != nil {
		return Task{}, err
	}
	return *t, nil
}

// Update applies the present fields of p to a task the caller owns.
func (s TaskService) Update(ctx context.Context, caller Identity, id string, p TaskPatch) (Task, error) {
	if err := p.validate(); err != nil {
		return Task{}, err
	}
	if _, err := s.owned(ctx, caller, id); err != nil {
		return Task{}, err
	}
	now := s.now().UTC()
	p.UpdatedAt = now
	t, err := s.st.UpdateTask(ctx, id, p)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Task{}, taskNotFound(id)
		}
		return Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	publish(ctx, s.pub, newEvent(TaskUpdated, "task", id, caller.ID, p.changes(), now))
	return t, nil
}

// Delete removes a task the caller owns and returns its last state.
func (s TaskService) Delete(ctx context.Context, caller Identity, id string) (Task, error) {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return Task{}, err
	}
	t, err := s.st.DeleteTask(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Task{}, taskNotFound(id)
		}
		return Task{}, fmt.Errorf("delete task %s: %w", id, err)
	}
	publish(ctx, s.pub, newEvent(TaskDeleted, "task", id, caller.ID, nil, s.now()))
	return t, nil
}

// List returns one page of the caller's tasks. The owner filter is taken
// from the caller and cannot be widened by q.
func (s TaskService) List(ctx context.Context, caller Identity, q TaskQuery) (TaskPage, error) {
	if err := validatePaging(q.Skip, q.Take); err != nil {
		return TaskPage{}, err
	}
	if q.Status != nil && !q.Status.Valid() {
		return TaskPage{}, Validation("status must be PENDING, IN_PROGRESS, or COMPLETED")
	}
	f := TaskFilter{
		UserID:    caller.ID,
		Status:    q.Status,
		Skip:      q.Skip,
		Take:      q.Take,
		OrderBy:   OrderByCreatedAt,
		Direction: SortDesc,
	}
	if q.OrderBy != "" {
		if !q.OrderBy.Valid() {
			return TaskPage{}, Validation("cannot order tasks by %q", q.OrderBy)
		}
		f.OrderBy = q.OrderBy
	}
	switch q.Direction {
	case "":
	case SortAsc, SortDesc:
		f.Direction = q.Direction
	default:
		return TaskPage{}, Validation("order direction must be asc or desc")
	}

	tasks, err := s.st.ListTasks(ctx, f)
	if err != nil {
		return TaskPage{}, fmt.Errorf("list tasks: %w", err)
	}
	total, err := s.st.CountTasks(ctx, f)
	if err != nil {
		return TaskPage{}, fmt.Errorf("count tasks: %w", err)
	}
	take := q.Take
	if take == 0 {
		take = len(tasks)
	}
	return TaskPage{Tasks: tasks, Total: total, Skip: q.Skip, Take: take}, nil
}

// owned loads a task and checks it belongs to caller. Existence is checked
// first, so a missing id is reported as not found even to non-owners.
func (s TaskService) owned(ctx context.Context, caller Identity, id string) (*Task, error) {
	t, err := s.st.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	if t == nil {
		return nil, taskNotFound(id)
	}
	if t.UserID != caller.ID {
		log.WithFields(log.Fields{"task": id, "user": caller.ID}).Info("task access denied")
		return nil, ErrNotOwner
	}
	return t, nil
}
