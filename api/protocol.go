package api

import (
	"io"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"taskboard-api/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

const idempotencyKeyHeader = "Idempotency-Key"

// POST /auth/login request body
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /users request body
type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PUT /users/:id request body
type updateUserRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// POST /tasks request body
type createTaskRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Status      *domain.TaskStatus `json:"status,omitempty"`
}

// PUT /tasks/:id request body
type updateTaskRequest struct {
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	Status      *domain.TaskStatus `json:"status,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// decodeBody reads a size-limited JSON body into v, rejecting unknown fields.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

// pathID returns the :id path parameter, which must be a UUID.
func pathID(c echo.Context) (string, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", domain.Validation("validation failed (uuid is expected)")
	}
	return id.String(), nil
}

func queryInt(c echo.Context, name string) (int, bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, domain.Validation("%s must be an integer", name)
	}
	return n, true, nil
}

// paging reads skip and take. A present take must be at least 1; the upper
// bound is enforced by the services.
func paging(c echo.Context) (skip, take int, err error) {
	if skip, _, err = queryInt(c, "skip"); err != nil {
		return 0, 0, err
	}
	var present bool
	if take, present, err = queryInt(c, "take"); err != nil {
		return 0, 0, err
	}
	if present && take < 1 {
		return 0, 0, domain.Validation("take must be between 1 and %d", domain.MaxPageSize)
	}
	return skip, take, nil
}

// taskQuery parses GET /tasks parameters: status, skip, take, orderBy and
// orderDirection. A userId parameter is ignored; the owner is always the caller.
func taskQuery(c echo.Context) (domain.TaskQuery, error) {
	skip, take, err := paging(c)
	if err != nil {
		return domain.TaskQuery{}, err
	}
	q := domain.TaskQuery{
		Skip:      skip,
		Take:      take,
		OrderBy:   domain.TaskOrderField(c.QueryParam("orderBy")),
		Direction: domain.SortDirection(strings.ToLower(c.QueryParam("orderDirection"))),
	}
	if raw := c.QueryParam("status"); raw != "" {
		status, err := domain.ParseTaskStatus(raw)
		if err != nil {
			return domain.TaskQuery{}, err
		}
		q.Status = &status
	}
	return q, nil
}

// userQuery parses GET /users parameters: skip, take, email and orderBy,
// where orderBy is the createdAt direction.
func userQuery(c echo.Context) (domain.UserQuery, error) {
	skip, take, err := paging(c)
	if err != nil {
		return domain.UserQuery{}, err
	}
	return domain.UserQuery{
		Skip:          skip,
		Take:          take,
		EmailContains: c.QueryParam("email"),
		Direction:     domain.SortDirection(strings.ToLower(c.QueryParam("orderBy"))),
	}, nil
}
