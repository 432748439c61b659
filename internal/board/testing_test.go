package board_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/board"
	"taskboard/internal/models"
)

const testProject int64 = 1

// fakeStore is an in-memory board.Store that records every call so tests can
// assert on what was (and was not) persisted, and can be told to fail
// specific methods to exercise rollback paths.
type fakeStore struct {
	mu      sync.Mutex
	calls   []string
	updates []models.Task // every task payload handed to UpdateTask
	failOn  map[string]error

	// failAt fails a method from its Nth call (1-based) onwards, returning
	// failAtErr, so tests can let earlier calls of the same method succeed.
	failAt    map[string]int
	failAtErr error

	columns  []models.Column
	tasks    []models.Task
	backlogs []models.Backlog
	sprints  []models.Sprint
	users    map[string]models.User
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		failOn: map[string]error{},
		failAt: map[string]int{},
		users:  map[string]models.User{},
		nextID: 1000,
	}
}

func (f *fakeStore) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if err := f.failOn[method]; err != nil {
		return err
	}
	if at, ok := f.failAt[method]; ok {
		n := 0
		for _, c := range f.calls {
			if c == method {
				n++
			}
		}
		if n >= at {
			return f.failAtErr
		}
	}
	return nil
}

func (f *fakeStore) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeStore) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeStore) ListColumns(ctx context.Context, projectID int64) ([]models.Column, error) {
	if err := f.record("ListColumns"); err != nil {
		return nil, err
	}
	return append([]models.Column(nil), f.columns...), nil
}

func (f *fakeStore) CreateColumn(ctx context.Context, c models.Column) (models.Column, error) {
	if err := f.record("CreateColumn"); err != nil {
		return models.Column{}, err
	}
	f.nextID++
	c.ID = f.nextID
	f.columns = append(f.columns, c)
	return c, nil
}

func (f *fakeStore) UpdateColumn(ctx context.Context, c models.Column) error {
	if err := f.record("UpdateColumn"); err != nil {
		return err
	}
	for i := range f.columns {
		if f.columns[i].ID == c.ID {
			f.columns[i] = c
			return nil
		}
	}
	return fmt.Errorf("column %d: %w", c.ID, models.ErrNotFound)
}

func (f *fakeStore) DeleteColumn(ctx context.Context, id int64) error {
	return f.record("DeleteColumn")
}

func (f *fakeStore) DeleteColumnCascade(ctx context.Context, col models.Column) error {
	if err := f.record("DeleteColumnCascade"); err != nil {
		return err
	}
	var kept []models.Task
	for _, t := range f.tasks {
		if t.Status != col.Name {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
	for i := range f.columns {
		if f.columns[i].ID == col.ID {
			f.columns = append(f.columns[:i], f.columns[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) RenameColumnCascade(ctx context.Context, col models.Column, oldName string) error {
	if err := f.record("RenameColumnCascade"); err != nil {
		return err
	}
	for i := range f.columns {
		if f.columns[i].ID == col.ID {
			f.columns[i] = col
		}
	}
	for i := range f.tasks {
		if f.tasks[i].Status == oldName {
			f.tasks[i].Status = col.Name
		}
	}
	return nil
}

func (f *fakeStore) ListTasks(ctx context.Context, projectID int64) ([]models.Task, error) {
	if err := f.record("ListTasks"); err != nil {
		return nil, err
	}
	return append([]models.Task(nil), f.tasks...), nil
}

func (f *fakeStore) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	if err := f.record("CreateTask"); err != nil {
		return models.Task{}, err
	}
	f.nextID++
	t.ID = f.nextID
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, t models.Task) error {
	if err := f.record("UpdateTask"); err != nil {
		return err
	}
	f.mu.Lock()
	f.updates = append(f.updates, t)
	f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == t.ID {
			f.tasks[i] = t
			return nil
		}
	}
	return fmt.Errorf("task %d: %w", t.ID, models.ErrNotFound)
}

func (f *fakeStore) DeleteTask(ctx context.Context, id int64) error {
	if err := f.record("DeleteTask"); err != nil {
		return err
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("task %d: %w", id, models.ErrNotFound)
}

func (f *fakeStore) ListBacklogs(ctx context.Context, projectID int64) ([]models.Backlog, error) {
	if err := f.record("ListBacklogs"); err != nil {
		return nil, err
	}
	return append([]models.Backlog(nil), f.backlogs...), nil
}

func (f *fakeStore) CreateBacklog(ctx context.Context, b models.Backlog) (models.Backlog, error) {
	if err := f.record("CreateBacklog"); err != nil {
		return models.Backlog{}, err
	}
	f.nextID++
	b.ID = f.nextID
	f.backlogs = append(f.backlogs, b)
	return b, nil
}

func (f *fakeStore) UpdateBacklog(ctx context.Context, b models.Backlog) error {
	if err := f.record("UpdateBacklog"); err != nil {
		return err
	}
	for i := range f.backlogs {
		if f.backlogs[i].ID == b.ID {
			f.backlogs[i] = b
			return nil
		}
	}
	return fmt.Errorf("backlog %d: %w", b.ID, models.ErrNotFound)
}

func (f *fakeStore) DeleteBacklog(ctx context.Context, id int64) error {
	if err := f.record("DeleteBacklog"); err != nil {
		return err
	}
	for i := range f.backlogs {
		if f.backlogs[i].ID == id {
			f.backlogs = append(f.backlogs[:i], f.backlogs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("backlog %d: %w", id, models.ErrNotFound)
}

func (f *fakeStore) ListSprints(ctx context.Context, projectID int64) ([]models.Sprint, error) {
	if err := f.record("ListSprints"); err != nil {
		return nil, err
	}
	return append([]models.Sprint(nil), f.sprints...), nil
}

func (f *fakeStore) CreateSprint(ctx context.Context, s models.Sprint) (models.Sprint, error) {
	if err := f.record("CreateSprint"); err != nil {
		return models.Sprint{}, err
	}
	f.nextID++
	s.ID = f.nextID
	f.sprints = append(f.sprints, s)
	return s, nil
}

func (f *fakeStore) UpdateSprint(ctx context.Context, s models.Sprint) error {
	if err := f.record("UpdateSprint"); err != nil {
		return err
	}
	for i := range f.sprints {
		if f.sprints[i].ID == s.ID {
			f.sprints[i] = s
			return nil
		}
	}
	return fmt.Errorf("sprint %d: %w", s.ID, models.ErrNotFound)
}

func (f *fakeStore) DeleteSprint(ctx context.Context, id int64) error {
	if err := f.record("DeleteSprint"); err != nil {
		return err
	}
	for i := range f.sprints {
		if f.sprints[i].ID == id {
			f.sprints = append(f.sprints[:i], f.sprints[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("sprint %d: %w", id, models.ErrNotFound)
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	if err := f.record("GetUserByEmail"); err != nil {
		return models.User{}, err
	}
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return models.User{}, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
}

// storedTask returns the store's copy of a task.
func (f *fakeStore) storedTask(id int64) (models.Task, bool) {
	for _, t := range f.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

func (f *fakeStore) storedSprint(id int64) (models.Sprint, bool) {
	for _, s := range f.sprints {
		if s.ID == id {
			return s, true
		}
	}
	return models.Sprint{}, false
}

type sentNotification struct {
	userID  int64
	typ     string
	message string
}

// fakeNotifier records deliveries and can fail on demand.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int64, typ, message, relatedType string, relatedID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotification{userID: userID, typ: typ, message: message})
	return nil
}

func (f *fakeNotifier) sentTo(userID int64, typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.userID == userID && s.typ == typ {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// actorCtx returns a context acting as the given user with full board
// management capabilities.
func actorCtx(email string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{
		ID:     999,
		Email:  email,
		Name:   "Actor",
		Claims: auth.NewClaims(auth.ClaimManageColumns, auth.ClaimManageSprints),
	})
}

// seedBoard fills the fake store with the standard three-column board used by
// most tests: tasks A(id 1) and B(id 2) in "todo", C(id 3) in "done".
func seedBoard(fs *fakeStore) {
	fs.columns = []models.Column{
		{ID: 10, ProjectID: testProject, Name: "todo", DisplayOrder: 1},
		{ID: 11, ProjectID: testProject, Name: "doing", DisplayOrder: 2},
		{ID: 12, ProjectID: testProject, Name: "done", DisplayOrder: 3},
	}
	fs.tasks = []models.Task{
		{ID: 1, ProjectID: testProject, Title: "task A", Priority: models.PriorityMedium, Status: "todo", DisplayOrder: 1},
		{ID: 2, ProjectID: testProject, Title: "task B", Priority: models.PriorityMedium, Status: "todo", DisplayOrder: 2},
		{ID: 3, ProjectID: testProject, Title: "task C", Priority: models.PriorityHigh, Status: "done", DisplayOrder: 1},
	}
}

func newTestEngine(fs *fakeStore, fn *fakeNotifier, now time.Time) *board.Engine {
	return board.NewEngine(fs, fn, discardLogger(), board.WithClock(func() time.Time { return now }))
}
