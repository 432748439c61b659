package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

func getStore(t *testing.T) *sqlite.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedProject(t *testing.T, store *sqlite.Store) models.Project {
	t.Helper()
	p, err := store.CreateProject(context.Background(), "test project", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := sqlite.Open("", nil)
	assert.Error(t, err)
}

func TestProjectCRUD(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	store := getStore(t)
	ctx := context.Background()

	p, err := store.CreateProject(ctx, "  alpha  ", "")
	assert.NoError(err)
	assert.Equal("alpha", p.Name)
	assert.Equal("#2563eb", p.Color, "color defaults")

	got, err := store.GetProject(ctx, p.ID)
	assert.NoError(err)
	assert.Equal(p.Name, got.Name)

	updated, err := store.UpdateProject(ctx, p.ID, "beta", "")
	assert.NoError(err)
	assert.Equal("beta", updated.Name)
	assert.Equal("#2563eb", updated.Color, "empty color keeps the old one")

	updated, err = store.UpdateProject(ctx, p.ID, "beta", "#ff0000")
	assert.NoError(err)
	assert.Equal("#ff0000", updated.Color)

	ids, err := store.ListProjectIDs(ctx)
	assert.NoError(err)
	assert.Equal([]int64{p.ID}, ids)

	assert.NoError(store.DeleteProject(ctx, p.ID))
	_, err = store.GetProject(ctx, p.ID)
	assert.ErrorIs(err, models.ErrNotFound)
	assert.ErrorIs(store.DeleteProject(ctx, p.ID), models.ErrNotFound)
}

func TestTaskRoundTrip(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	store := getStore(t)
	ctx := context.Background()
	p := seedProject(t, store)

	_, err := store.CreateColumn(ctx, models.Column{ProjectID: p.ID, Name: "todo", DisplayOrder: 1})
	assert.NoError(err)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	created, err := store.CreateTask(ctx, models.Task{
		ProjectID:      p.ID,
		Title:          "write docs",
		Description:    "outline first",
		Priority:       models.PriorityHigh,
		Status:         "todo",
		DisplayOrder:   1,
		AssignedEmails: []string{"bob@example.com"},
		StartDate:      &start,
		EndDate:        &end,
		Subtasks:       []models.Subtask{{Title: "outline", Completed: true}, {Title: "draft"}},
		TotalCost:      300,
	})
	assert.NoError(err)
	assert.NotZero(created.ID)
	assert.Nil(created.SprintID)
	assert.Equal([]string{"bob@example.com"}, created.AssignedEmails)
	if assert.Len(created.Subtasks, 2) {
		assert.True(created.Subtasks[0].Completed, "subtask completion survives the round trip")
		assert.False(created.Subtasks[1].Completed)
	}
	if assert.NotNil(created.StartDate) {
		assert.WithinDuration(start, *created.StartDate, time.Second)
	}

	sprintID := int64(99)
	created.SprintID = &sprintID
	created.Subtasks[1].Completed = true
	assert.NoError(store.UpdateTask(ctx, created))

	got, err := store.GetTask(ctx, created.ID)
	assert.NoError(err)
	if assert.NotNil(got.SprintID) {
		assert.Equal(sprintID, *got.SprintID)
	}
	assert.True(got.Subtasks[1].Completed)

	tasks, err := store.ListTasks(ctx, p.ID)
	assert.NoError(err)
	assert.Len(tasks, 1)

	assert.NoError(store.DeleteTask(ctx, created.ID))
	_, err = store.GetTask(ctx, created.ID)
	assert.ErrorIs(err, models.ErrNotFound)
	assert.ErrorIs(store.UpdateTask(ctx, created), models.ErrNotFound)
}

func TestRenameColumnCascade(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	store := getStore(t)
	ctx := context.Background()
	p := seedProject(t, store)

	col, err := store.CreateColumn(ctx, models.Column{ProjectID: p.ID, Name: "todo", DisplayOrder: 1})
	assert.NoError(err)
	task, err := store.CreateTask(ctx, models.Task{ProjectID: p.ID, Title: "x", Priority: models.PriorityMedium, Status: "todo"})
	assert.NoError(err)

	col.Name = "queued"
	assert.NoError(store.RenameColumnCascade(ctx, col, "todo"))

	got, err := store.GetTask(ctx, task.ID)
	assert.NoError(err)
	assert.Equal("queued", got.Status)

	cols, err := store.ListColumns(ctx, p.ID)
	assert.NoError(err)
	if assert.Len(cols, 1) {
		assert.Equal("queued", cols[0].Name)
	}
}

func TestDeleteColumnCascade(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	store := getStore(t)
	ctx := context.Background()
	p := seedProject(t, store)

	doomed, err := store.CreateColumn(ctx, models.Column{ProjectID: p.ID, Name: "todo", DisplayOrder: 1})
	assert.NoError(err)
	_, err = store.CreateColumn(ctx, models.Column{ProjectID: p.ID, Name: "done", DisplayOrder: 2})
	assert.NoError(err)
	_, err = store.CreateTask(ctx, models.Task{ProjectID: p.ID, Title: "a", Priority: models.PriorityMedium, Status: "todo"})
	assert.NoError(err)
	survivor, err := store.CreateTask(ctx, models.Task{ProjectID: p.ID, Title: "b", Priority: models.PriorityMedium, Status: "done"})
	assert.NoError(err)

	assert.NoError(store.DeleteColumnCascade(ctx, doomed))

	tasks, err := store.ListTasks(ctx, p.ID)
	assert.NoError(err)
	if assert.Len(tasks, 1) {
		assert.Equal(survivor.ID, tasks[0].ID)
	}
	cols, err := store.ListColumns(ctx, p.ID)
	assert.NoError(err)
	assert.Len(cols, 1)
}

func TestSprintRoundTrip(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	store := getStore(t)
	ctx := context.Background()
	p := seedProject(t, store)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	sp, err := store.CreateSprint(ctx, models.Sprint{
		ProjectID: p.ID, Name: "sprint 1", StartDate: start, EndDate: start.Add(14 * 24 * time.Hour),
	})
	assert.NoError(err)
	assert.NotZero(sp.ID)

	_, err = store.CreateSprint(ctx, models.Sprint{
		ProjectID: p.ID, Name: "sprint 1", StartDate: start, EndDate: start.Add(14 * 24 * time.Hour),
	})
	assert.Error(err, "sprint names are unique per project")

	sp.TaskIDs = []int64{1, 2}
	assert.NoError(store.UpdateSprint(ctx, sp))

	sprints, err := store.ListSprints(ctx, p.ID)
	assert.NoError(err)
	if assert.Len(sprints, 1) {
		assert.Equal([]int64{1, 2}, sprints[0].TaskIDs)
		assert.WithinDuration(start, sprints[0].StartDate, time.Second)
	}

	assert.NoError(store.DeleteSprint(ctx, sp.ID))
	assert.ErrorIs(store.DeleteSprint(ctx, sp.ID), models.ErrNotFound)
}

func TestBacklogRoundTrip(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	store := getStore(t)
	ctx := context.Background()
	p := seedProject(t, store)

	b, err := store.CreateBacklog(ctx, models.Backlog{ProjectID: p.ID, Name: "ideas", Description: "someday"})
	assert.NoError(err)

	b.TaskIDs = []int64{7}
	assert.NoError(store.UpdateBacklog(ctx, b))

	backlogs, err := store.ListBacklogs(ctx, p.ID)
	assert.NoError(err)
	if assert.Len(backlogs, 1) {
		assert.Equal("ideas", backlogs[0].Name)
		assert.Equal([]int64{7}, backlogs[0].TaskIDs)
	}

	assert.NoError(store.DeleteBacklog(ctx, b.ID))
	assert.ErrorIs(store.UpdateBacklog(ctx, b), models.ErrNotFound)
}

func TestUsersAndNotifications(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	store := getStore(t)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, models.User{Email: "Bob@Example.com", Name: "Bob", DailyRate: 120})
	assert.NoError(err)
	assert.Equal("bob@example.com", u.Email, "emails are stored lowercased")

	got, err := store.GetUserByEmail(ctx, "BOB@example.com")
	assert.NoError(err)
	assert.Equal(u.ID, got.ID)
	assert.Equal(float64(120), got.DailyRate)

	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(err, models.ErrNotFound)

	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	assert.NoError(store.CreateNotification(ctx, models.Notification{
		ID: "n1", UserID: u.ID, Type: models.NotifyTaskAssigned, Message: "first", CreatedAt: base,
	}))
	assert.NoError(store.CreateNotification(ctx, models.Notification{
		ID: "n2", UserID: u.ID, Type: models.NotifyTaskUpdated, Message: "second", CreatedAt: base.Add(time.Minute),
	}))

	list, err := store.ListNotifications(ctx, u.ID)
	assert.NoError(err)
	if assert.Len(list, 2) {
		assert.Equal("n2", list[0].ID, "newest first")
		assert.Equal("n1", list[1].ID)
	}
}
