package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"taskboard-api/auth"
	"taskboard-api/domain"
	"taskboard-api/storage/sqlite"
)

var testSecret = []byte("handler-test-secret")

type harness struct {
	e     *echo.Echo
	store *sqlite.Store
}

func newHarness(t *testing.T, deduper Deduper) *harness {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	tokens, err := auth.NewTokens(auth.Options{Secret: testSecret})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	logger, _ := test.NewNullLogger()
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	Register(e, Services{
		Auth:    domain.NewAuthService(store, hasher, tokens, nil),
		Users:   domain.NewUserService(store, hasher, nil),
		Tasks:   domain.NewTaskService(store, nil),
		Tokens:  tokens,
		Deduper: deduper,
		Health:  store,
	}, logger)
	return &harness{e: e, store: store}
}

func (h *harness) do(t *testing.T, method, target, token, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

// register signs a user up and logs them in, returning the user and token.
func (h *harness) register(t *testing.T, name, email string) (domain.PublicUser, string) {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/users", "", `{"name":"`+name+`","email":"`+email+`","password":"secret123"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("sign up %s: expected 201, got %d: %s", email, rec.Code, rec.Body.String())
	}
	var u domain.PublicUser
	decodeJSON(t, rec, &u)

	rec = h.do(t, http.MethodPost, "/auth/login", "", `{"email":"`+email+`","password":"secret123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, rec.Code, rec.Body.String())
	}
	var res domain.LoginResult
	decodeJSON(t, rec, &res)
	return u, res.AccessToken
}

func (h *harness) createTask(t *testing.T, token, title string) domain.Task {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/tasks", token, `{"title":"`+title+`","description":"d"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var task domain.Task
	decodeJSON(t, rec, &task)
	return task
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d got %d: %s", status, rec.Code, rec.Body.String())
	}
	var body errorResponse
	decodeJSON(t, rec, &body)
	if body.Code != code {
		t.Fatalf("expected code %s, got %+v", code, body)
	}
}

func TestSignUpLoginRoundTrip(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/users", "", `{"name":"Alice","email":"alice@example.com","password":"secret123"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret123") || strings.Contains(strings.ToLower(rec.Body.String()), "password") {
		t.Fatalf("sign-up response leaks credentials: %s", rec.Body.String())
	}
	var created domain.PublicUser
	decodeJSON(t, rec, &created)
	if created.ID == "" || created.Email != "alice@example.com" || created.Name != "Alice" {
		t.Fatalf("unexpected user %+v", created)
	}

	rec = h.do(t, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"secret123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var res domain.LoginResult
	decodeJSON(t, rec, &res)
	if res.AccessToken == "" || res.User.ID != created.ID || res.User.Email != created.Email {
		t.Fatalf("unexpected login result %+v", res)
	}

	rec = h.do(t, http.MethodGet, "/users/me", res.AccessToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var me domain.PublicUser
	decodeJSON(t, rec, &me)
	if me.ID != created.ID {
		t.Fatalf("me returned %+v", me)
	}
}

func TestSignUpRejections(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "Alice", "alice@example.com")

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"duplicate email", `{"name":"Other","email":"alice@example.com","password":"secret123"}`, http.StatusConflict, "EMAIL_ALREADY_REGISTERED"},
		{"short password", `{"name":"Bob","email":"bob@example.com","password":"123"}`, http.StatusBadRequest, "VALIDATION"},
		{"bad email", `{"name":"Bob","email":"bob","password":"secret123"}`, http.StatusBadRequest, "VALIDATION"},
		{"unknown field", `{"name":"Bob","email":"bob@example.com","password":"secret123","admin":true}`, http.StatusBadRequest, "VALIDATION"},
		{"not json", `name=bob`, http.StatusBadRequest, "VALIDATION"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, h.do(t, http.MethodPost, "/users", "", tc.body), tc.status, tc.code)
		})
	}

	if n, err := h.store.CountUsers(context.Background(), domain.UserQuery{}); err != nil || n != 1 {
		t.Fatalf("expected exactly one stored user, got %d %v", n, err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "Alice", "alice@example.com")

	unknown := h.do(t, http.MethodPost, "/auth/login", "", `{"email":"nobody@example.com","password":"secret123"}`)
	wrong := h.do(t, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"wrong-pass"}`)

	expectError(t, unknown, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	expectError(t, wrong, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("responses differ: %s vs %s", unknown.Body.String(), wrong.Body.String())
	}

	missing := h.do(t, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com"}`)
	if missing.Body.String() != wrong.Body.String() {
		t.Fatalf("missing password should look like a wrong one: %s", missing.Body.String())
	}
	expectError(t, h.do(t, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"x","otp":1}`), http.StatusBadRequest, "VALIDATION")
}

func TestLoginRejectsSuffixPastMaxPasswordLength(t *testing.T) {
	h := newHarness(t, nil)
	password := strings.Repeat("p", domain.MaxPasswordLength)
	rec := h.do(t, http.MethodPost, "/users", "", `{"name":"Alice","email":"alice@example.com","password":"`+password+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"`+password+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	rec = h.do(t, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"`+password+`WRONG-SUFFIX"}`)
	expectError(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

func TestProtectedRoutesRequireValidToken(t *testing.T) {
	h := newHarness(t, nil)
	u, _ := h.register(t, "Alice", "alice@example.com")

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: u.ID,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID:           u.ID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("someone-else"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing", "", "MISSING_TOKEN"},
		{"wrong scheme", "Basic abc", "BAD_AUTHORIZATION"},
		{"garbage", "Bearer a.b.c", "TOKEN_INVALID"},
		{"forged", "Bearer " + forged, "TOKEN_INVALID"},
		{"expired", "Bearer " + expired, "TOKEN_EXPIRED"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var headers []string
			if tc.header != "" {
				headers = []string{echo.HeaderAuthorization, tc.header}
			}
			for _, target := range []string{"/tasks", "/users/me", "/users"} {
				expectError(t, h.do(t, http.MethodGet, target, "", "", headers...), http.StatusUnauthorized, tc.code)
			}
		})
	}
}

func TestTaskOwnershipOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	alice, aliceToken := h.register(t, "Alice", "alice@example.com")
	_, bobToken := h.register(t, "Bob", "bob@example.com")

	task := h.createTask(t, aliceToken, "write report")
	if task.UserID != alice.ID || task.Status != domain.StatusPending {
		t.Fatalf("unexpected task %+v", task)
	}
	path := "/tasks/" + task.ID

	expectError(t, h.do(t, http.MethodGet, path, bobToken, ""), http.StatusForbidden, "NOT_OWNER")
	expectError(t, h.do(t, http.MethodPut, path, bobToken, `{"status":"COMPLETED"}`), http.StatusForbidden, "NOT_OWNER")
	expectError(t, h.do(t, http.MethodDelete, path, bobToken, ""), http.StatusForbidden, "NOT_OWNER")
	expectError(t, h.do(t, http.MethodGet, "/tasks/"+uuid.NewString(), bobToken, ""), http.StatusNotFound, "TASK_NOT_FOUND")
	expectError(t, h.do(t, http.MethodGet, "/tasks/not-a-uuid", aliceToken, ""), http.StatusBadRequest, "VALIDATION")

	rec := h.do(t, http.MethodPut, path, aliceToken, `{"status":"COMPLETED"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var updated domain.Task
	decodeJSON(t, rec, &updated)
	if updated.Status != domain.StatusCompleted || updated.Title != "write report" {
		t.Fatalf("unexpected update %+v", updated)
	}
	expectError(t, h.do(t, http.MethodPut, path, aliceToken, `{"status":"DONE"}`), http.StatusBadRequest, "VALIDATION")
	expectError(t, h.do(t, http.MethodPut, path, aliceToken, `{"title":""}`), http.StatusBadRequest, "VALIDATION")

	if rec := h.do(t, http.MethodDelete, path, aliceToken, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	expectError(t, h.do(t, http.MethodGet, path, aliceToken, ""), http.StatusNotFound, "TASK_NOT_FOUND")
}

func TestCreateTaskKeepsExplicitStatusAndRejectsForeignOwner(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.register(t, "Alice", "alice@example.com")

	rec := h.do(t, http.MethodPost, "/tasks", token, `{"title":"t","description":"d","status":"IN_PROGRESS"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	var task domain.Task
	decodeJSON(t, rec, &task)
	if task.Status != domain.StatusInProgress {
		t.Fatalf("explicit status not kept: %+v", task)
	}

	other := uuid.NewString()
	expectError(t, h.do(t, http.MethodPost, "/tasks", token, `{"title":"t","description":"d","userId":"`+other+`"}`), http.StatusBadRequest, "VALIDATION")
	expectError(t, h.do(t, http.MethodPost, "/tasks", token, `{"title":"t"}`), http.StatusBadRequest, "VALIDATION")
}

func TestListTasksScopedToCaller(t *testing.T) {
	h := newHarness(t, nil)
	_, aliceToken := h.register(t, "Alice", "alice@example.com")
	bob, bobToken := h.register(t, "Bob", "bob@example.com")

	for _, title := range []string{"a", "b", "c"} {
		h.createTask(t, aliceToken, title)
	}
	h.createTask(t, bobToken, "bob's")
	if rec := h.do(t, http.MethodPost, "/tasks", aliceToken, `{"title":"done","description":"d","status":"COMPLETED"}`); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	tests := []struct {
		name  string
		query string
		count int
		total string
	}{
		{"all", "", 4, "4"},
		{"foreign user filter ignored", "?userId=" + bob.ID, 4, "4"},
		{"paged", "?skip=1&take=2&orderBy=title&orderDirection=asc", 2, "4"},
		{"status", "?status=COMPLETED", 1, "1"},
		{"status with foreign user", "?status=PENDING&userId=" + bob.ID, 3, "3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, "/tasks"+tc.query, aliceToken, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
			}
			var tasks []domain.Task
			decodeJSON(t, rec, &tasks)
			if len(tasks) != tc.count {
				t.Fatalf("expected %d tasks, got %d", tc.count, len(tasks))
			}
			for _, task := range tasks {
				if task.UserID == bob.ID {
					t.Fatalf("foreign task leaked: %+v", task)
				}
			}
			if got := rec.Header().Get(headerTotalCount); got != tc.total {
				t.Fatalf("expected total %s, got %q", tc.total, got)
			}
		})
	}

	rec := h.do(t, http.MethodGet, "/tasks?orderBy=title&orderDirection=asc", aliceToken, "")
	var ordered []domain.Task
	decodeJSON(t, rec, &ordered)
	if len(ordered) != 4 || ordered[0].Title != "a" || ordered[3].Title != "done" {
		t.Fatalf("unexpected order %+v", ordered)
	}

	for _, q := range []string{"?take=0", "?take=101", "?skip=-1", "?take=abc", "?status=DONE", "?orderBy=userId", "?orderDirection=up"} {
		expectError(t, h.do(t, http.MethodGet, "/tasks"+q, aliceToken, ""), http.StatusBadRequest, "VALIDATION")
	}
}

func TestCreateTaskIdempotency(t *testing.T) {
	_, client := newTestRedis(t)
	h := newHarness(t, NewRedisDeduper(client, time.Minute))
	_, token := h.register(t, "Alice", "alice@example.com")
	body := `{"title":"t","description":"d"}`

	if rec := h.do(t, http.MethodPost, "/tasks", token, body, idempotencyKeyHeader, "k1"); rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	expectError(t, h.do(t, http.MethodPost, "/tasks", token, body, idempotencyKeyHeader, "k1"), http.StatusConflict, "DUPLICATE_REQUEST")

	// A failed creation releases its key.
	expectError(t, h.do(t, http.MethodPost, "/tasks", token, `{"title":"t"}`, idempotencyKeyHeader, "k2"), http.StatusBadRequest, "VALIDATION")
	if rec := h.do(t, http.MethodPost, "/tasks", token, body, idempotencyKeyHeader, "k2"); rec.Code != http.StatusCreated {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}

	if rec := h.do(t, http.MethodPost, "/tasks", token, body); rec.Code != http.StatusCreated {
		t.Fatalf("requests without a key are never deduplicated, got %d", rec.Code)
	}

	rec := h.do(t, http.MethodGet, "/tasks", token, "")
	if got := rec.Header().Get(headerTotalCount); got != "3" {
		t.Fatalf("expected 3 tasks, got %s", got)
	}
}

func TestCreateTaskIgnoresKeyWithoutDeduper(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.register(t, "Alice", "alice@example.com")
	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodPost, "/tasks", token, `{"title":"t","description":"d"}`, idempotencyKeyHeader, "k1")
		if rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected status 201 got %d", i, rec.Code)
		}
	}
}

func TestUserProfileRoutes(t *testing.T) {
	h := newHarness(t, nil)
	alice, aliceToken := h.register(t, "Alice", "alice@example.com")
	bob, bobToken := h.register(t, "Bob", "bob@example.com")
	alicePath := "/users/" + alice.ID

	rec := h.do(t, http.MethodGet, alicePath, bobToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	expectError(t, h.do(t, http.MethodGet, "/users/"+uuid.NewString(), bobToken, ""), http.StatusNotFound, "USER_NOT_FOUND")
	expectError(t, h.do(t, http.MethodGet, "/users/nope", bobToken, ""), http.StatusBadRequest, "VALIDATION")
	for _, form := range []string{
		strings.ToUpper(alice.ID),
		"{" + alice.ID + "}",
		"urn:uuid:" + alice.ID,
		strings.ReplaceAll(alice.ID, "-", ""),
	} {
		rec := h.do(t, http.MethodGet, "/users/"+form, bobToken, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("id form %q: expected status 200 got %d: %s", form, rec.Code, rec.Body.String())
		}
	}

	expectError(t, h.do(t, http.MethodPut, alicePath, bobToken, `{"name":"Mallory"}`), http.StatusForbidden, "NOT_SELF")
	expectError(t, h.do(t, http.MethodPut, alicePath, aliceToken, `{"email":"bob@example.com"}`), http.StatusConflict, "EMAIL_ALREADY_REGISTERED")

	rec = h.do(t, http.MethodPut, alicePath, aliceToken, `{"name":"Alice Smith"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var updated domain.PublicUser
	decodeJSON(t, rec, &updated)
	if updated.Name != "Alice Smith" || updated.Email != alice.Email {
		t.Fatalf("unexpected update %+v", updated)
	}

	rec = h.do(t, http.MethodGet, "/users?take=1&orderBy=asc", aliceToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var page domain.UserPage
	decodeJSON(t, rec, &page)
	if len(page.Data) != 1 || page.Meta.Total != 2 || page.Meta.Take != 1 || page.Data[0].ID != alice.ID {
		t.Fatalf("unexpected page %+v", page)
	}
	rec = h.do(t, http.MethodGet, "/users?email=bob", aliceToken, "")
	decodeJSON(t, rec, &page)
	if len(page.Data) != 1 || page.Data[0].ID != bob.ID {
		t.Fatalf("unexpected filtered page %+v", page)
	}
	expectError(t, h.do(t, http.MethodGet, "/users?orderBy=sideways", aliceToken, ""), http.StatusBadRequest, "VALIDATION")

	expectError(t, h.do(t, http.MethodDelete, "/users/"+bob.ID, aliceToken, ""), http.StatusForbidden, "NOT_SELF")
	if rec := h.do(t, http.MethodDelete, "/users/"+bob.ID, bobToken, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	expectError(t, h.do(t, http.MethodGet, "/users/"+bob.ID, aliceToken, ""), http.StatusNotFound, "USER_NOT_FOUND")
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	h := newHarness(t, nil)
	expectError(t, h.do(t, http.MethodGet, "/nowhere", "", ""), http.StatusNotFound, "NOT_FOUND")
}

type failingChecker struct{}

func (failingChecker) Ping(context.Context) error { return errors.New("down") }

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var body healthResponse
	decodeJSON(t, rec, &body)
	if body.Status != "ok" {
		t.Fatalf("unexpected body %+v", body)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	if err := healthz(Probes{h.store, failingChecker{}})(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 got %d", rec.Code)
	}
}
