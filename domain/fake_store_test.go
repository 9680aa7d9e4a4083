package domain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu    sync.Mutex
	users map[string]User
	tasks map[string]Task
	err   error

	lastFilter TaskFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]User{}, tasks: map[string]Task{}}
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) filterUsers(q UserQuery) []User {
	out := make([]User, 0, len(f.users))
	for _, u := range f.users {
		if q.EmailContains != "" && !strings.Contains(u.Email, q.EmailContains) {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.Direction == SortAsc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (f *fakeStore) ListUsers(ctx context.Context, q UserQuery) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return window(f.filterUsers(q), q.Skip, q.Take), f.err
}

func (f *fakeStore) CountUsers(ctx context.Context, q UserQuery) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filterUsers(q)), f.err
}

func (f *fakeStore) CreateUser(ctx context.Context, u User) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return User{}, f.err
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return User{}, ErrEmailTaken
		}
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) UpdateUser(ctx context.Context, id string, p UserPatch) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrRecordNotFound
	}
	u = p.Apply(u)
	f.users[id] = u
	return u, nil
}

func (f *fakeStore) DeleteUser(ctx context.Context, id string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrRecordNotFound
	}
	delete(f.users, id)
	return u, nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) filterTasks(flt TaskFilter) []Task {
	out := make([]Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		if t.UserID != flt.UserID {
			continue
		}
		if flt.Status != nil && t.Status != *flt.Status {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		var less bool
		switch flt.OrderBy {
		case OrderByTitle:
			less = out[i].Title < out[j].Title
		case OrderByStatus:
			less = out[i].Status < out[j].Status
		case OrderByUpdatedAt:
			less = out[i].UpdatedAt.Before(out[j].UpdatedAt)
		default:
			less = out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if flt.Direction == SortDesc {
			return !less
		}
		return less
	})
	return out
}

func (f *fakeStore) ListTasks(ctx context.Context, flt TaskFilter) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = flt
	if f.err != nil {
		return nil, f.err
	}
	return window(f.filterTasks(flt), flt.Skip, flt.Take), nil
}

func (f *fakeStore) CountTasks(ctx context.Context, flt TaskFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filterTasks(flt)), f.err
}

func (f *fakeStore) CreateTask(ctx context.Context, t Task) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Task{}, f.err
	}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, id string, p TaskPatch) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, ErrRecordNotFound
	}
	t = p.Apply(t)
	f.tasks[id] = t
	return t, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, ErrRecordNotFound
	}
	delete(f.tasks, id)
	return t, nil
}

func window[T any](items []T, skip, take int) []T {
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if take > 0 && take < len(items) {
		items = items[:take]
	}
	return items
}

// fakeHasher salts with a random prefix so equal passwords hash differently.
type fakeHasher struct{ verifies int }

func (h *fakeHasher) Hash(plaintext string) (string, error) {
	return uuid.NewString()[:8] + "$" + plaintext, nil
}

func (h *fakeHasher) Verify(plaintext, digest string) bool {
	h.verifies++
	i := strings.IndexByte(digest, '$')
	if i < 0 {
		return false
	}
	return digest[i+1:] == plaintext
}

type fakeTokens struct{ err error }

func (f fakeTokens) Issue(id Identity) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token:" + id.ID + ":" + id.Email, nil
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) types() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

var errBoom = errors.New("boom")

func ptrString(s string) *string         { return &s }
func ptrStatus(s TaskStatus) *TaskStatus { return &s }
