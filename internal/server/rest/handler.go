// Package rest exposes the taskkeeper services over HTTP/JSON.
package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/services"
)

// UserService is the part of services.UserService used by the handlers.
type UserService interface {
	TokenVerifier
	Register(ctx context.Context, name, email, password string) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	GetUser(ctx context.Context, userID int64) (*models.PublicUser, error)
}

// TaskService is the part of services.TaskService used by the handlers.
type TaskService interface {
	List(ctx context.Context, userID int64) ([]*models.Task, error)
	Get(ctx context.Context, userID, taskID int64) (*models.Task, error)
	Create(ctx context.Context, userID int64, in models.TaskInput) (*models.Task, error)
	Update(ctx context.Context, userID, taskID int64, patch models.TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, userID, taskID int64) error
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	users  UserService
	tasks  TaskService
	db     Pinger
	logger logging.Logger
	now    func() time.Time
}

func NewHandler(us UserService, ts TaskService, db Pinger, l logging.Logger) *Handler {
	return &Handler{users: us, tasks: ts, db: db, logger: l, now: time.Now}
}

// Routes builds the full handler chain: request logging, request timeout,
// then the mux. Task and /me routes additionally require a session token.
func (h *Handler) Routes(requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	auth := func(f http.HandlerFunc) http.Handler {
		return accessTokenMiddleware(h.users, f)
	}

	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /api/auth/register", h.register)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.Handle("GET /api/auth/me", auth(h.me))

	mux.Handle("GET /api/tasks", auth(h.listTasks))
	mux.Handle("POST /api/tasks", auth(h.createTask))
	mux.Handle("GET /api/tasks/{id}", auth(h.getTask))
	mux.Handle("PUT /api/tasks/{id}", auth(h.updateTask))
	mux.Handle("DELETE /api/tasks/{id}", auth(h.deleteTask))

	return requestLogMiddleware(h.logger, timeoutMiddleware(requestTimeout, mux))
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Warn(r.Context(), "database ping failed", "error", err)
		writeJSON(w, map[string]string{"status": "unhealthy"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in registerIn
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, errBody.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.users.Register(r.Context(), in.Name, in.Email, in.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, out, http.StatusCreated)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in loginIn
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, errBody.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.users.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, out, http.StatusOK)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, "no token provided", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, user, http.StatusOK)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	items, err := h.tasks.List(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if items == nil {
		items = []*models.Task{}
	}
	writeJSON(w, items, http.StatusOK)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var in createTaskIn
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, errBody.Error(), http.StatusBadRequest)
		return
	}

	task, err := h.tasks.Create(r.Context(), userID, in.toInput())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, task, http.StatusCreated)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	taskID, err := taskIDFromPath(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	task, err := h.tasks.Get(r.Context(), userID, taskID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, task, http.StatusOK)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	taskID, err := taskIDFromPath(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var in updateTaskIn
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, errBody.Error(), http.StatusBadRequest)
		return
	}

	task, err := h.tasks.Update(r.Context(), userID, taskID, in.toPatch())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, task, http.StatusOK)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	taskID, err := taskIDFromPath(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.tasks.Delete(r.Context(), userID, taskID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, messageOut{Message: "task deleted successfully"}, http.StatusOK)
}

var errTaskID = errors.New("invalid task id")

func taskIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errTaskID
	}
	return id, nil
}
