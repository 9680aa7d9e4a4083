package storage

import (
	"sort"
	"strings"

	"taskboard-api/domain"
)

// Table Storage has no server-side ordering or offset paging, so listings
// are filtered by partition on the server and sorted and windowed here.

func taskFilter(f domain.TaskFilter) string {
	filter := "PartitionKey eq " + quote(f.UserID)
	if f.Status != nil {
		filter += " and Status eq " + quote(string(*f.Status))
	}
	return filter
}

func sortTasks(tasks []domain.Task, field domain.TaskOrderField, dir domain.SortDirection) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		var cmp int
		switch field {
		case domain.OrderByTitle:
			cmp = strings.Compare(a.Title, b.Title)
		case domain.OrderByStatus:
			cmp = strings.Compare(string(a.Status), string(b.Status))
		case domain.OrderByUpdatedAt:
			cmp = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp == 0 {
			cmp = strings.Compare(a.ID, b.ID)
		}
		if dir == domain.SortDesc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func filterUsers(users []domain.User, q domain.UserQuery) []domain.User {
	out := users[:0]
	for _, u := range users {
		if q.EmailContains != "" && !strings.Contains(u.Email, q.EmailContains) {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		cmp := out[i].CreatedAt.Compare(out[j].CreatedAt)
		if cmp == 0 {
			cmp = strings.Compare(out[i].ID, out[j].ID)
		}
		if q.Direction == domain.SortAsc {
			return cmp < 0
		}
		return cmp > 0
	})
	return out
}

// window returns items[skip:skip+take]. A zero take means no limit.
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
