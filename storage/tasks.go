package storage

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

// GetTask finds a task by id across all owner partitions.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	filter := "RowKey eq " + quote(id)
	top := int32(1)
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if len(resp.Entities) > 0 {
			t, err := decodeTask(resp.Entities[0])
			if err != nil {
				return nil, err
			}
			return &t, nil
		}
	}
	return nil, nil
}

func (s *Store) getOwnedTask(ctx context.Context, owner, id string) (*domain.Task, azcore.ETag, error) {
	resp, err := s.tasks.GetEntity(ctx, owner, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, "", nil
		}
		return nil, "", err
	}
	t, err := decodeTask(resp.Value)
	if err != nil {
		return nil, "", err
	}
	return &t, resp.ETag, nil
}

func (s *Store) queryTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	filter := taskFilter(f)
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTask(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (s *Store) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	tasks, err := s.queryTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	sortTasks(tasks, f.OrderBy, f.Direction)
	return window(tasks, f.Skip, f.Take), nil
}

func (s *Store) CountTasks(ctx context.Context, f domain.TaskFilter) (int, error) {
	tasks, err := s.queryTasks(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

func (s *Store) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	payload, err := json.Marshal(toTaskEntity(t))
	if err == nil {
		_, err = s.tasks.AddEntity(ctx, payload, nil)
	}
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTask replaces the task row guarded by its ETag, retrying once when
// a concurrent write wins.
func (s *Store) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	found, err := s.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if found == nil {
		return domain.Task{}, domain.ErrRecordNotFound
	}
	for attempt := 0; ; attempt++ {
		cur, etag, err := s.getOwnedTask(ctx, found.UserID, id)
		if err != nil {
			return domain.Task{}, err
		}
		if cur == nil {
			return domain.Task{}, domain.ErrRecordNotFound
		}
		next := p.Apply(*cur)
		payload, err := json.Marshal(toTaskEntity(next))
		if err == nil {
			_, err = s.tasks.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		}
		if err != nil {
			if isPreconditionFailed(err) && attempt == 0 {
				continue
			}
			if isNotFound(err) {
				return domain.Task{}, domain.ErrRecordNotFound
			}
			return domain.Task{}, err
		}
		return next, nil
	}
}

func (s *Store) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if t == nil {
		return domain.Task{}, domain.ErrRecordNotFound
	}
	et := azcore.ETagAny
	if _, err := s.tasks.DeleteEntity(ctx, t.UserID, t.ID, &aztables.DeleteEntityOptions{IfMatch: &et}); err != nil {
		if isNotFound(err) {
			return domain.Task{}, domain.ErrRecordNotFound
		}
		return domain.Task{}, err
	}
	return *t, nil
}
