package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server/auth"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

// --- fakes ---

type fakeUsers struct {
	registerOut *services.AuthResult
	registerErr error
	loginOut    *services.AuthResult
	loginErr    error
	getOut      *models.PublicUser
	getErr      error

	gotName, gotEmail, gotPassword string
	gotUserID                      int64
}

func (f *fakeUsers) VerifyToken(token string) (int64, error) {
	id, err := auth.GetUserIDFromToken(token, secret)
	if err != nil {
		return 0, common.NewError(common.ErrUnauthenticated, "token is not valid")
	}
	return id, nil
}

func (f *fakeUsers) Register(_ context.Context, name, email, password string) (*services.AuthResult, error) {
	f.gotName, f.gotEmail, f.gotPassword = name, email, password
	return f.registerOut, f.registerErr
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*services.AuthResult, error) {
	f.gotEmail, f.gotPassword = email, password
	return f.loginOut, f.loginErr
}

func (f *fakeUsers) GetUser(_ context.Context, userID int64) (*models.PublicUser, error) {
	f.gotUserID = userID
	return f.getOut, f.getErr
}

type fakeTasks struct {
	calls int

	listOut []*models.Task
	task    *models.Task
	err     error

	gotUserID int64
	gotTaskID int64
	gotInput  models.TaskInput
	gotPatch  models.TaskPatch
}

func (f *fakeTasks) List(_ context.Context, userID int64) ([]*models.Task, error) {
	f.calls++
	f.gotUserID = userID
	return f.listOut, f.err
}

func (f *fakeTasks) Get(_ context.Context, userID, taskID int64) (*models.Task, error) {
	f.calls++
	f.gotUserID, f.gotTaskID = userID, taskID
	return f.task, f.err
}

func (f *fakeTasks) Create(_ context.Context, userID int64, in models.TaskInput) (*models.Task, error) {
	f.calls++
	f.gotUserID, f.gotInput = userID, in
	return f.task, f.err
}

func (f *fakeTasks) Update(_ context.Context, userID, taskID int64, p models.TaskPatch) (*models.Task, error) {
	f.calls++
	f.gotUserID, f.gotTaskID, f.gotPatch = userID, taskID, p
	return f.task, f.err
}

func (f *fakeTasks) Delete(_ context.Context, userID, taskID int64) error {
	f.calls++
	f.gotUserID, f.gotTaskID = userID, taskID
	return f.err
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

// --- helpers ---

type env struct {
	users *fakeUsers
	tasks *fakeTasks
	db    *fakePinger
	h     http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{users: &fakeUsers{}, tasks: &fakeTasks{}, db: &fakePinger{}}
	l := logging.NewJSONLogger(io.Discard, "ERROR")
	hd := NewHandler(e.users, e.tasks, e.db, l)
	hd.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	e.h = hd.Routes(time.Second)
	return e
}

func token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *env) do(method, path, body, tok string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if tok != "" {
		req.Header.Set(common.AccessTokenHeaderName, tok)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func errMsg(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

// --- health ---

func TestRoot(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","timestamp":"2025-01-02T03:04:05Z"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(common.RequestIDHeaderName))
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/health", "", "").Code)

	e.db.err = errors.New("down")
	assert.Equal(t, http.StatusServiceUnavailable, e.do(http.MethodGet, "/health", "", "").Code)
}

func TestRequestIDEchoed(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(common.RequestIDHeaderName, "abc-123")
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(common.RequestIDHeaderName))
}

// --- auth ---

func TestRegister(t *testing.T) {
	e := newEnv(t)
	e.users.registerOut = &services.AuthResult{Token: "tok", User: models.PublicUser{ID: 1, Name: "Ann", Email: "a@x.io"}}

	rec := e.do(http.MethodPost, "/api/auth/register", `{"name":"Ann","email":"a@x.io","password":"pw"}`, "")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Ann", e.users.gotName)
	assert.Equal(t, "pw", e.users.gotPassword)
	assert.Contains(t, rec.Body.String(), `"token":"tok"`)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegister_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{common.NewError(common.ErrValidation, "please provide name, email and password"), http.StatusBadRequest, "please provide name, email and password"},
		{common.NewError(common.ErrConflict, "user already exists with this email"), http.StatusBadRequest, "user already exists with this email"},
		{fmt.Errorf("%w: column \"secret\" violates check", common.ErrValidation), http.StatusBadRequest, "invalid request"},
		{fmt.Errorf("%w: users_email_key", common.ErrConflict), http.StatusBadRequest, "invalid request"},
		{fmt.Errorf("%w: pgx detail", common.ErrUnauthenticated), http.StatusUnauthorized, "unauthenticated"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "internal error"},
	}
	for _, c := range cases {
		e := newEnv(t)
		e.users.registerErr = c.err
		rec := e.do(http.MethodPost, "/api/auth/register", `{"name":"Ann","email":"a@x.io","password":"pw"}`, "")
		assert.Equal(t, c.status, rec.Code)
		assert.Equal(t, c.msg, errMsg(t, rec))
	}
}

func TestStrictDecoding(t *testing.T) {
	bodies := []string{
		`{"name":"Ann","email":"a@x.io","password":"pw","admin":true}`,
		`{"name":"Ann","email":"a@x.io","password":"pw"} {"x":1}`,
		`{"name":1,"email":"a@x.io","password":"pw"}`,
		`not json`,
		``,
	}
	for _, b := range bodies {
		e := newEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(b))
		rec := httptest.NewRecorder()
		e.h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, b)
		assert.Equal(t, "invalid request body", errMsg(t, rec))
		assert.Empty(t, e.users.gotName)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newEnv(t)
	e.users.loginErr = common.NewError(common.ErrUnauthenticated, "invalid credentials")

	rec := e.do(http.MethodPost, "/api/auth/login", `{"email":"a@x.io","password":"bad"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", errMsg(t, rec))
}

func TestLogin_OK(t *testing.T) {
	e := newEnv(t)
	e.users.loginOut = &services.AuthResult{Token: "tok", User: models.PublicUser{ID: 1}}

	rec := e.do(http.MethodPost, "/api/auth/login", `{"email":"a@x.io","password":"pw"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.io", e.users.gotEmail)
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	e.users.getOut = &models.PublicUser{ID: 5, Name: "Ann", Email: "a@x.io"}

	rec := e.do(http.MethodGet, "/api/auth/me", "", token(t, 5))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), e.users.gotUserID)

	e.users.getErr = common.NewError(common.ErrUnauthenticated, "user not found")
	rec = e.do(http.MethodGet, "/api/auth/me", "", token(t, 5))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "user not found", errMsg(t, rec))
}

// --- middleware ---

func TestAccessToken_Rejections(t *testing.T) {
	expired, err := auth.GenerateToken(7, secret, -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.GenerateToken(7, []byte("other"), time.Hour)
	require.NoError(t, err)
	valid := token(t, 7)
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	cases := []struct {
		name, tok, msg string
	}{
		{"missing", "", "no token provided"},
		{"expired", expired, "token is not valid"},
		{"wrong secret", foreign, "token is not valid"},
		{"tampered", tampered, "token is not valid"},
		{"garbage", "abc", "token is not valid"},
	}
	routes := []struct{ method, path, body string }{
		{http.MethodGet, "/api/auth/me", ""},
		{http.MethodGet, "/api/tasks", ""},
		{http.MethodPost, "/api/tasks", `{"title":"x"}`},
		{http.MethodGet, "/api/tasks/1", ""},
		{http.MethodPut, "/api/tasks/1", `{"title":"x"}`},
		{http.MethodDelete, "/api/tasks/1", ""},
	}

	for _, rt := range routes {
		for _, c := range cases {
			t.Run(rt.method+" "+rt.path+" "+c.name, func(t *testing.T) {
				e := newEnv(t)
				rec := e.do(rt.method, rt.path, rt.body, c.tok)

				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				assert.Equal(t, c.msg, errMsg(t, rec))
				assert.Zero(t, e.tasks.calls)
				assert.Zero(t, e.users.gotUserID)
			})
		}
	}
}

func TestAccessToken_BearerFallback(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 9))
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(9), e.tasks.gotUserID)
}

func TestUserIDFromContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := UserIDFromContext(WithUserID(context.Background(), 3))
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
}

// --- tasks ---

func TestListTasks_EmptyIsArray(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodGet, "/api/tasks", "", token(t, 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, int64(7), e.tasks.gotUserID)
}

func TestCreateTask(t *testing.T) {
	e := newEnv(t)
	e.tasks.task = &models.Task{ID: 1, UserID: 7, Title: "x", Status: models.StatusPending, Priority: models.PriorityMedium}

	rec := e.do(http.MethodPost, "/api/tasks", `{"title":"x","due_date":"2025-03-01","priority":"high"}`, token(t, 7))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(7), e.tasks.gotUserID)
	assert.Equal(t, "x", e.tasks.gotInput.Title)
	assert.Equal(t, models.PriorityHigh, e.tasks.gotInput.Priority)
	require.NotNil(t, e.tasks.gotInput.DueDate)
	assert.Equal(t, "2025-03-01", e.tasks.gotInput.DueDate.String())
	assert.Contains(t, rec.Body.String(), `"description":null`)
}

func TestCreateTask_UserIDInBodyRejected(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/api/tasks", `{"title":"x","user_id":99}`, token(t, 7))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, e.tasks.calls)
}

func TestCreateTask_BadDate(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/api/tasks", `{"title":"x","due_date":"tomorrow"}`, token(t, 7))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, e.tasks.calls)
}

func TestGetTask_BadID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-3", "1.5"} {
		e := newEnv(t)
		rec := e.do(http.MethodGet, "/api/tasks/"+id, "", token(t, 7))
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
		assert.Equal(t, "invalid task id", errMsg(t, rec))
		assert.Zero(t, e.tasks.calls)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	e := newEnv(t)
	e.tasks.err = common.NewError(common.ErrorNotFound, "task not found")

	rec := e.do(http.MethodGet, "/api/tasks/12", "", token(t, 7))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task not found", errMsg(t, rec))
	assert.Equal(t, int64(12), e.tasks.gotTaskID)
}

func TestUpdateTask_Presence(t *testing.T) {
	e := newEnv(t)
	e.tasks.task = &models.Task{ID: 12, UserID: 7, Title: "t"}

	rec := e.do(http.MethodPut, "/api/tasks/12", `{"status":"completed","due_date":null}`, token(t, 7))
	require.Equal(t, http.StatusOK, rec.Code)

	p := e.tasks.gotPatch
	assert.True(t, p.Status.Set)
	assert.Equal(t, models.StatusCompleted, p.Status.Value)
	assert.True(t, p.DueDate.Set)
	assert.True(t, p.DueDate.Null)
	assert.False(t, p.Title.Set)
	assert.False(t, p.Description.Set)
	assert.False(t, p.Priority.Set)
}

func TestUpdateTask_WrongType(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPut, "/api/tasks/12", `{"title":5}`, token(t, 7))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, e.tasks.calls)
}

func TestDeleteTask(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodDelete, "/api/tasks/12", "", token(t, 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"task deleted successfully"}`, rec.Body.String())
	assert.Equal(t, int64(12), e.tasks.gotTaskID)
}

func TestMethodNotAllowed(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPatch, "/api/tasks/12", `{}`, token(t, 7))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
