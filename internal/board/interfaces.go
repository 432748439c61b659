package board

import (
	"context"

	"taskboard/internal/models"
)

// Store is the persistence contract the engine depends on. The four board
// collections are independent; cross-collection consistency is the engine's
// job, not the store's.
type Store interface {
	ListColumns(ctx context.Context, projectID int64) ([]models.Column, error)
	CreateColumn(ctx context.Context, col models.Column) (models.Column, error)
	UpdateColumn(ctx context.Context, col models.Column) error
	DeleteColumn(ctx context.Context, id int64) error
	// DeleteColumnCascade removes the column and every task whose status
	// matches its name in a single transaction.
	DeleteColumnCascade(ctx context.Context, col models.Column) error
	// RenameColumnCascade writes the renamed column and rewrites the status
	// of every task that carried oldName in a single transaction.
	RenameColumnCascade(ctx context.Context, col models.Column, oldName string) error

	ListTasks(ctx context.Context, projectID int64) ([]models.Task, error)
	CreateTask(ctx context.Context, task models.Task) (models.Task, error)
	UpdateTask(ctx context.Context, task models.Task) error
	DeleteTask(ctx context.Context, id int64) error

	ListBacklogs(ctx context.Context, projectID int64) ([]models.Backlog, error)
	CreateBacklog(ctx context.Context, b models.Backlog) (models.Backlog, error)
	UpdateBacklog(ctx context.Context, b models.Backlog) error
	DeleteBacklog(ctx context.Context, id int64) error

	ListSprints(ctx context.Context, projectID int64) ([]models.Sprint, error)
	CreateSprint(ctx context.Context, s models.Sprint) (models.Sprint, error)
	UpdateSprint(ctx context.Context, s models.Sprint) error
	DeleteSprint(ctx context.Context, id int64) error

	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Notifier delivers a message to one user. Implementations persist and push;
// the engine only decides targets and message text.
type Notifier interface {
	Notify(ctx context.Context, userID int64, typ, message, relatedType string, relatedID int64) error
}
