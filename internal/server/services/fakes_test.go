package services

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server/cache"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func discardLogger() logging.Logger {
	return logging.NewJSONLogger(io.Discard, "ERROR")
}

// --- users ---

type memUsers struct {
	mu     sync.Mutex
	rows   []*models.User
	nextID int64

	// skipLookup makes GetUserByEmail miss, simulating a concurrent insert
	// that the unique index catches.
	skipLookup bool
	err        error
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.rows {
		if r.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	m.nextID++
	cp := *u
	cp.ID = m.nextID
	m.rows = append(m.rows, &cp)
	out := cp
	return &out, nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.skipLookup {
		return nil, common.ErrorNotFound
	}
	for _, r := range m.rows {
		if r.Email == email {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.rows {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- tasks ---

type memTasks struct {
	mu     sync.Mutex
	rows   map[int64]*models.Task
	nextID int64
	err    error

	// now stamps updated_at, standing in for the database clock.
	now func() time.Time

	// afterGet runs once, after Get has read its row and released the
	// lock, to interleave a concurrent write with an in-flight read.
	afterGet func()

	getCalls int
}

func newMemTasks() *memTasks {
	return &memTasks{rows: map[int64]*models.Task{}, now: time.Now}
}

func (m *memTasks) put(t models.Task) *models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		m.nextID++
		t.ID = m.nextID
	} else if t.ID > m.nextID {
		m.nextID = t.ID
	}
	m.rows[t.ID] = &t
	cp := t
	return &cp
}

func (m *memTasks) List(_ context.Context, userID int64) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []*models.Task{}
	for _, t := range m.rows {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memTasks) Get(_ context.Context, userID, taskID int64) (*models.Task, error) {
	out, err := m.get(userID, taskID)

	m.mu.Lock()
	hook := m.afterGet
	m.afterGet = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	return out, err
}

func (m *memTasks) get(userID, taskID int64) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.rows[taskID]
	if !ok || t.UserID != userID {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTasks) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.put(*t), nil
}

func (m *memTasks) Update(_ context.Context, userID, taskID int64, p *models.TaskPatch) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.rows[taskID]
	if !ok || t.UserID != userID {
		return nil, common.ErrorNotFound
	}
	if p.Title.Set {
		t.Title = p.Title.Value
	}
	if p.Description.Set {
		t.Description = p.Description.Ptr()
	}
	if p.Status.Set {
		t.Status = p.Status.Value
	}
	if p.Priority.Set {
		t.Priority = p.Priority.Value
	}
	if p.DueDate.Set {
		t.DueDate = p.DueDate.Ptr()
	}
	t.UpdatedAt = m.now()
	cp := *t
	return &cp, nil
}

func (m *memTasks) Delete(_ context.Context, userID, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	t, ok := m.rows[taskID]
	if !ok || t.UserID != userID {
		return common.ErrorNotFound
	}
	delete(m.rows, taskID)
	return nil
}

func (m *memTasks) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// --- repository manager ---

type fakeManager struct {
	users *memUsers
	tasks *memTasks
}

func newFakeManager() *fakeManager {
	return &fakeManager{users: &memUsers{}, tasks: newMemTasks()}
}

func (f *fakeManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeManager) Users(dbx.DBTX) users.Repository            { return f.users }
func (f *fakeManager) Tasks(dbx.DBTX) tasks.Repository            { return f.tasks }

// --- cache ---

// recordingCache follows the TaskCache contract: Set fills only empty keys
// and Invalidate leaves a tombstone.
type recordingCache struct {
	mu            sync.Mutex
	items         map[[2]int64]models.Task
	tombstones    map[[2]int64]bool
	invalidations int

	invalidateErr error
}

func newRecordingCache() *recordingCache {
	return &recordingCache{items: map[[2]int64]models.Task{}, tombstones: map[[2]int64]bool{}}
}

func (c *recordingCache) Get(_ context.Context, userID, taskID int64) (*models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.items[[2]int64{userID, taskID}]
	if !ok {
		return nil, cache.ErrMiss
	}
	return &t, nil
}

func (c *recordingCache) Set(_ context.Context, t *models.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := [2]int64{t.UserID, t.ID}
	if _, ok := c.items[k]; ok || c.tombstones[k] {
		return nil
	}
	c.items[k] = *t
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, userID, taskID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.invalidations++
	k := [2]int64{userID, taskID}
	delete(c.items, k)
	c.tombstones[k] = true
	return nil
}

// expireTombstones simulates the tombstone TTL running out.
func (c *recordingCache) expireTombstones() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tombstones = map[[2]int64]bool{}
}
