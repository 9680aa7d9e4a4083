package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

const (
	headerTotalCount  = "X-Total-Count"
	healthPingTimeout = 2 * time.Second
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, logger *log.Logger) {
	e.Use(RequestMetrics(logger))
	requireIdentity := RequireIdentity(svc.Tokens)

	e.POST("/auth/login", login(svc.Auth))
	e.GET("/healthz", healthz(svc.Health))

	users := e.Group("/users")
	users.POST("", signUp(svc.Users))
	users.GET("", listUsers(svc.Users), requireIdentity)
	users.GET("/me", me(svc.Users), requireIdentity)
	users.GET("/:id", findUser(svc.Users), requireIdentity)
	users.PUT("/:id", updateUser(svc.Users), requireIdentity)
	users.DELETE("/:id", deleteUser(svc.Users), requireIdentity)

	tasks := e.Group("/tasks", requireIdentity)
	tasks.POST("", createTask(svc.Tasks, svc.Deduper, logger))
	tasks.GET("", listTasks(svc.Tasks))
	tasks.GET("/:id", findTask(svc.Tasks))
	tasks.PUT("/:id", updateTask(svc.Tasks))
	tasks.DELETE("/:id", deleteTask(svc.Tasks))
}

func healthz(checker HealthChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if checker == nil {
			return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()
		if err := checker.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
	}
}

func login(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		res, err := auth.Login(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			return err
		}
		metricsFrom(c).SetUserID(res.User.ID)
		return c.JSON(http.StatusOK, res)
	}
}

func signUp(users UserDirectory) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req signUpRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		u, err := users.SignUp(c.Request().Context(), domain.SignUpInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, u)
	}
}

func listUsers(users UserDirectory) echo.HandlerFunc {
	return func(c echo.Context) error {
		q, err := userQuery(c)
		if err != nil {
			return err
		}
		page, err := users.List(c.Request().Context(), q)
		if err != nil {
			return err
		}
		metricsFrom(c).SetResultCount(len(page.Data))
		return c.JSON(http.StatusOK, page)
	}
}

func me(users UserDirectory) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := identityFrom(c)
		if err != nil {
			return err
		}
		u, err := users.Me(c.Request().Context(), caller)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, u)
	}
}

func findUser(users UserDirectory) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		u, err := users.Find(c.Request().Context(), id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, u)
	}
}

func updateUser(users UserDirectory) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := identityFrom(c)
		if err != nil {
			return err
		}
		id, err := pathID(c)
		if err != nil {
			return err
		}
		var req updateUserRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		u, err := users.Update(c.Request().Context(), caller, id, domain.UserPatch{Name: req.Name, Email: req.Email})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, u)
	}
}

func deleteUser(users UserDirectory) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := identityFrom(c)
		if err != nil {
			return err
		}
		id, err := pathID(c)
		if err != nil {
			return err
		}
		if err := users.Delete(c.Request().Context(), caller, id); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func createTask(tasks TaskManager, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		caller, err := identityFrom(c)
		if err != nil {
			return err
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}

		key := strings.TrimSpace(c.Request().Header.Get(idempotencyKeyHeader))
		if deduper == nil {
			key = ""
		}
		if key != "" {
			added, err := deduper.Add(ctx, caller.ID, key)
			if err != nil {
				metricsFrom(c).SetErrorStage("dedupe")
				return err
			}
			if !added {
				return errDuplicateRequest
			}
		}

		task, err := tasks.Create(ctx, caller, domain.NewTask{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
		})
		if err != nil {
			if key != "" {
				if rerr := deduper.Remove(ctx, caller.ID, key); rerr != nil && logger != nil {
					logger.WithFields(log.Fields{"user": caller.ID, "key": key}).Warnf("release idempotency key: %v", rerr)
				}
			}
			return err
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func listTasks(tasks TaskManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := identityFrom(c)
		if err != nil {
			return err
		}
		q, err := taskQuery(c)
		if err != nil {
			return err
		}
		page, err := tasks.List(c.Request().Context(), caller, q)
		if err != nil {
			return err
		}
		metricsFrom(c).SetResultCount(len(page.Tasks))
		c.Response().Header().Set(headerTotalCount, strconv.Itoa(page.Total))
		return c.JSON(http.StatusOK, page.Tasks)
	}
}

func findTask(tasks TaskManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := identityFrom(c)
		if err != nil {
			return err
		}
		id, err := pathID(c)
		if err != nil {
			return err
		}
		task, err := tasks.Find(c.Request().Context(), caller, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, task)
	}
}

func updateTask(tasks TaskManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := identityFrom(c)
		if err != nil {
			return err
		}
		id, err := pathID(c)
		if err != nil {
			return err
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		task, err := tasks.Update(c.Request().Context(), caller, id, domain.TaskPatch{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(tasks TaskManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := identityFrom(c)
		if err != nil {
			return err
		}
		id, err := pathID(c)
		if err != nil {
			return err
		}
		if _, err := tasks.Delete(c.Request().Context(), caller, id); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}
