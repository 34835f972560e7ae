// Package models holds the server-side domain types shared by repositories,
// services and the REST layer.
package models

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a row of the tasks table. Description and DueDate are nil when
// the column is NULL.
type Task struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user_id"`
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *Date        `json:"due_date"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TaskInput carries the fields of a new task. Zero Status and Priority mean
// "use the default".
type TaskInput struct {
	Title       string
	Description *string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     *Date
}

// TaskPatch is a partial update. Only fields with Set == true are written;
// a Set field with Null == true stores NULL.
type TaskPatch struct {
	Title       Field[string]
	Description Field[string]
	Status      Field[TaskStatus]
	Priority    Field[TaskPriority]
	DueDate     Field[Date]
}

// Empty reports whether the patch carries no field changes. An empty patch
// still bumps updated_at.
func (p *TaskPatch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set && !p.Priority.Set && !p.DueDate.Set
}
