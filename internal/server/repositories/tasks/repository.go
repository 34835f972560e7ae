package tasks

import (
	"context"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

// Repository stores tasks. Every method is scoped by the owning user id; a
// row owned by another user behaves exactly like a missing row.
type Repository interface {
	List(ctx context.Context, userID int64) ([]*models.Task, error)
	Get(ctx context.Context, userID, taskID int64) (*models.Task, error)
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	Update(ctx context.Context, userID, taskID int64, patch *models.TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, userID, taskID int64) error
}
