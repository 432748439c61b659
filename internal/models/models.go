package models

import "time"

// Priority levels supported for tasks. Stored normalized to upper case.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// ValidPriorities enumerates the priorities accepted on create and edit.
var ValidPriorities = map[string]struct{}{
	PriorityLow:    {},
	PriorityMedium: {},
	PriorityHigh:   {},
}

// Project groups the four board collections under a single scope.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Column is a board lane. Its name doubles as the status value of every task
// that sits in it, so renaming or deleting a column has to keep tasks in step.
type Column struct {
	ID           int64   `json:"id"`
	ProjectID    int64   `json:"project_id"`
	Name         string  `json:"name"`
	DisplayOrder float64 `json:"display_order"`
}

// Subtask is a checklist entry owned by a task. Completion state is persisted
// together with the title.
type Subtask struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task represents a single card on the board.
type Task struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"project_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	DisplayOrder   float64    `json:"display_order"`
	AssignedEmails []string   `json:"assigned_emails"`
	BacklogIDs     []int64    `json:"backlog_ids"`
	SprintID       *int64     `json:"sprint_id"`
	RolledOverFrom *int64     `json:"rolled_over_from"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	Subtasks       []Subtask  `json:"subtasks"`
	TotalCost      float64    `json:"total_cost"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasBacklog reports whether the task is linked to the given backlog.
func (t *Task) HasBacklog(backlogID int64) bool {
	for _, id := range t.BacklogIDs {
		if id == backlogID {
			return true
		}
	}
	return false
}

// Backlog is a named grouping of tasks with no time box.
type Backlog struct {
	ID          int64   `json:"id"`
	ProjectID   int64   `json:"project_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	TaskIDs     []int64 `json:"task_ids"`
}

// HasTask reports whether the backlog's task list contains the given task.
func (b *Backlog) HasTask(taskID int64) bool {
	for _, id := range b.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// Sprint is a time-boxed grouping of tasks. A sprint has no status field of
// its own: it is overdue exactly when its end date is in the past.
type Sprint struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	TaskIDs     []int64   `json:"task_ids"`
}

// Overdue reports whether the sprint's end date has passed.
func (s *Sprint) Overdue(now time.Time) bool {
	return s.EndDate.Before(now)
}

// HasTask reports whether the sprint's task list contains the given task.
func (s *Sprint) HasTask(taskID int64) bool {
	for _, id := range s.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// User is an identity record. The core only reads it to resolve assignee
// emails to display names and cost rates.
type User struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	DailyRate float64 `json:"daily_rate"`
}

// Notification types emitted by the core.
const (
	NotifyTaskAssigned   = "task_assigned"
	NotifyTaskUpdated    = "task_updated"
	NotifySprintChanged  = "sprint_changed"
	NotifyTaskRolledOver = "task_rolled_over"
)

// Notification is a persisted message for a single user, pushed best-effort
// over the real-time channel.
type Notification struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	RelatedType string    `json:"related_type"`
	RelatedID   int64     `json:"related_id"`
	CreatedAt   time.Time `json:"created_at"`
}
