// Package cache holds the optional read-through cache for single task reads.
// Entries are keyed by owner and task id, so a lookup can never return a task
// that belongs to a different user.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = errors.New("cache miss")

// TombstoneTTL is how long an invalidated key refuses new snapshots. It
// must outlast any read that started before the invalidation, which the
// request timeout bounds.
const TombstoneTTL = 30 * time.Second

// TaskCache stores task snapshots. The database stays the source of truth.
//
// Set only fills an empty key: it never replaces a snapshot or a tombstone.
// Invalidate replaces whatever is cached with a tombstone, so a reader that
// fetched the old row before a write cannot put it back afterwards.
type TaskCache interface {
	Get(ctx context.Context, userID, taskID int64) (*models.Task, error)
	Set(ctx context.Context, task *models.Task) error
	Invalidate(ctx context.Context, userID, taskID int64) error
}

func taskKey(userID, taskID int64) string {
	return fmt.Sprintf("task:%d:%d", userID, taskID)
}

// NopCache never stores anything. It is used when no Redis address is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, int64, int64) (*models.Task, error) { return nil, ErrMiss }
func (NopCache) Set(context.Context, *models.Task) error                { return nil }
func (NopCache) Invalidate(context.Context, int64, int64) error          { return nil }
