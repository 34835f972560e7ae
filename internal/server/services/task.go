package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server/cache"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/repomanager"
)

const (
	msgTaskNotFound    = "task not found"
	msgTitleRequired   = "title is required"
	msgInvalidStatus   = "invalid status"
	msgInvalidPriority = "invalid priority"
)

// TaskService implements task CRUD for a single authenticated user. Every
// method takes the caller's user id and never touches another user's rows.
type TaskService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       cache.TaskCache
	logger      logging.Logger
}

// NewTaskService constructs a TaskService. A nil cache disables caching.
func NewTaskService(db *sql.DB, m repomanager.RepositoryManager, c cache.TaskCache, l logging.Logger) *TaskService {
	if c == nil {
		c = cache.NopCache{}
	}
	return &TaskService{
		db:          db,
		repomanager: m,
		cache:       c,
		logger:      l.With("module", "task_service"),
	}
}

// List returns the caller's tasks, newest first.
func (s *TaskService) List(ctx context.Context, userID int64) ([]*models.Task, error) {
	items, err := s.repomanager.Tasks(s.db).List(ctx, userID)
	if err != nil {
		return nil, s.internal(ctx, "list tasks failed", err)
	}
	return items, nil
}

// Get returns one task owned by the caller, reading through the cache.
func (s *TaskService) Get(ctx context.Context, userID, taskID int64) (*models.Task, error) {
	if task, err := s.cache.Get(ctx, userID, taskID); err == nil {
		return task, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn(ctx, "task cache read failed", "error", err)
	}

	task, err := s.repomanager.Tasks(s.db).Get(ctx, userID, taskID)
	if err != nil {
		return nil, s.classify(ctx, "get task failed", err)
	}

	if err := s.cache.Set(ctx, task); err != nil {
		s.logger.Warn(ctx, "task cache write failed", "error", err)
	}
	return task, nil
}

// Create validates in and stores a new task owned by userID.
func (s *TaskService) Create(ctx context.Context, userID int64, in models.TaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, common.NewError(common.ErrValidation, msgTitleRequired)
	}

	status := in.Status
	if status == "" {
		status = models.StatusPending
	}
	if !status.Valid() {
		return nil, common.NewError(common.ErrValidation, msgInvalidStatus)
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, common.NewError(common.ErrValidation, msgInvalidPriority)
	}

	description := in.Description
	if description != nil && *description == "" {
		description = nil
	}

	task := &models.Task{
		UserID:      userID,
		Title:       title,
		Description: description,
		Status:      status,
		Priority:    priority,
		DueDate:     in.DueDate,
	}

	created, err := s.repomanager.Tasks(s.db).Create(ctx, task)
	if err != nil {
		return nil, s.internal(ctx, "create task failed", err)
	}

	s.logger.Info(ctx, "task created", "user_id", userID, "task_id", created.ID)
	return created, nil
}

// Update applies patch to a task owned by userID. The ownership check and
// the write share one transaction; updated_at always moves forward.
// The cached copy is invalidated before the write, and the write is refused
// if that fails, so a stale snapshot can never outlive it.
func (s *TaskService) Update(ctx context.Context, userID, taskID int64, patch models.TaskPatch) (*models.Task, error) {
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}
	if patch.Empty() {
		s.logger.Debug(ctx, "empty task patch, touching updated_at only", "task_id", taskID)
	}

	if err := s.cache.Invalidate(ctx, userID, taskID); err != nil {
		return nil, s.internal(ctx, "task cache invalidation failed", err)
	}

	var updated *models.Task
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Tasks(tx)
		if _, err := repo.Get(ctx, userID, taskID); err != nil {
			return err
		}
		var err error
		updated, err = repo.Update(ctx, userID, taskID, &patch)
		return err
	})
	if err != nil {
		return nil, s.classify(ctx, "update task failed", err)
	}

	s.reinvalidate(ctx, userID, taskID)
	return updated, nil
}

// Delete removes a task owned by userID. Cache handling matches Update.
func (s *TaskService) Delete(ctx context.Context, userID, taskID int64) error {
	if err := s.cache.Invalidate(ctx, userID, taskID); err != nil {
		return s.internal(ctx, "task cache invalidation failed", err)
	}
	if err := s.repomanager.Tasks(s.db).Delete(ctx, userID, taskID); err != nil {
		return s.classify(ctx, "delete task failed", err)
	}
	s.reinvalidate(ctx, userID, taskID)
	s.logger.Info(ctx, "task deleted", "user_id", userID, "task_id", taskID)
	return nil
}

func validatePatch(p *models.TaskPatch) error {
	if p.Title.Set {
		if p.Title.Null || strings.TrimSpace(p.Title.Value) == "" {
			return common.NewError(common.ErrValidation, msgTitleRequired)
		}
		p.Title.Value = strings.TrimSpace(p.Title.Value)
	}
	if p.Status.Set && (p.Status.Null || !p.Status.Value.Valid()) {
		return common.NewError(common.ErrValidation, msgInvalidStatus)
	}
	if p.Priority.Set && (p.Priority.Null || !p.Priority.Value.Valid()) {
		return common.NewError(common.ErrValidation, msgInvalidPriority)
	}
	// an empty description clears the column
	if p.Description.Set && !p.Description.Null && p.Description.Value == "" {
		p.Description = models.Null[string]()
	}
	return nil
}

// reinvalidate refreshes the tombstone after a successful write. Failures
// are only logged.
func (s *TaskService) reinvalidate(ctx context.Context, userID, taskID int64) {
	if err := s.cache.Invalidate(ctx, userID, taskID); err != nil {
		s.logger.Warn(ctx, "task cache invalidation failed", "error", err, "task_id", taskID)
	}
}

func (s *TaskService) classify(ctx context.Context, msg string, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.NewError(common.ErrorNotFound, msgTaskNotFound)
	}
	return s.internal(ctx, msg, err)
}

func (s *TaskService) internal(ctx context.Context, msg string, err error) error {
	s.logger.Error(ctx, msg, "error", err)
	return common.NewError(common.ErrorInternal, msgInternal)
}
