package board

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"taskboard/internal/models"
)

// DefaultDoneColumn is the column name treated as terminal by the rollover
// sweep when no other name is configured.
const DefaultDoneColumn = "done"

// Engine owns the in-memory board state for every project it has touched and
// is the only writer of the four collections. All mutations run under one
// lock, so optimistic apply, persist and reconcile of a single command never
// interleave with another command on the same entity.
type Engine struct {
	mu         sync.Mutex
	store      Store
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
	doneColumn string
	projects   map[int64]*projectState
	observers  []func(Event)
}

type projectState struct {
	loaded   bool
	columns  []models.Column
	tasks    []models.Task
	backlogs []models.Backlog
	sprints  []models.Sprint

	snap      Snapshot
	snapValid bool
}

// markDirty drops the cached snapshot. Every mutation path calls it while
// holding the engine lock, so readers rebuild after a change and the same
// slices are handed out in between.
func (st *projectState) markDirty() { st.snapValid = false }

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock, used by tests and the sweeper.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDoneColumn sets the column name the rollover sweep treats as terminal.
func WithDoneColumn(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.doneColumn = name
		}
	}
}

// NewEngine builds an engine over the given store and notifier.
func NewEngine(store Store, notifier Notifier, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:      store,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
		doneColumn: DefaultDoneColumn,
		projects:   map[int64]*projectState{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invalidate drops the cached state for a project so the next access reloads
// from the store. Called when an external writer signals a change.
func (e *Engine) Invalidate(projectID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.projects, projectID)
}

// Snapshot returns copies of the four collections for a project. The same
// copies are handed out until a mutation replaces them, so successive
// snapshots of an unchanged board compare equal by slice identity and the
// projector's memoization holds across requests. Callers must treat the
// contents as read-only.
func (e *Engine) Snapshot(ctx context.Context, projectID int64) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	if !st.snapValid {
		st.snap = snapshotState(st)
		st.snapValid = true
	}
	return st.snap, nil
}

func snapshotState(st *projectState) Snapshot {
	snap := Snapshot{
		Columns:  make([]models.Column, len(st.columns)),
		Tasks:    make([]models.Task, len(st.tasks)),
		Backlogs: make([]models.Backlog, len(st.backlogs)),
		Sprints:  make([]models.Sprint, len(st.sprints)),
	}
	copy(snap.Columns, st.columns)
	for i := range st.tasks {
		snap.Tasks[i] = cloneTask(st.tasks[i])
	}
	for i := range st.backlogs {
		snap.Backlogs[i] = cloneBacklog(st.backlogs[i])
	}
	for i := range st.sprints {
		snap.Sprints[i] = cloneSprint(st.sprints[i])
	}
	return snap
}

// Snapshot is a point-in-time copy of a project's collections.
type Snapshot struct {
	Columns  []models.Column
	Tasks    []models.Task
	Backlogs []models.Backlog
	Sprints  []models.Sprint
}

// state returns the cached project state, loading it on first access.
// Callers must hold e.mu.
func (e *Engine) state(ctx context.Context, projectID int64) (*projectState, error) {
	st, ok := e.projects[projectID]
	if !ok {
		st = &projectState{}
		e.projects[projectID] = st
	}
	if st.loaded {
		return st, nil
	}

	var err error
	if st.columns, err = e.store.ListColumns(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	if st.tasks, err = e.store.ListTasks(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	if st.backlogs, err = e.store.ListBacklogs(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load backlogs: %w", err)
	}
	if st.sprints, err = e.store.ListSprints(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load sprints: %w", err)
	}
	st.loaded = true
	return st, nil
}

// emit delivers events to observers after the engine lock is released.
func (e *Engine) emit(events []Event) {
	e.mu.Lock()
	observers := make([]func(Event), len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	for _, evt := range events {
		for _, fn := range observers {
			fn(evt)
		}
	}
}

// --- state lookup helpers (callers hold e.mu) ---

func (st *projectState) taskByID(id int64) *models.Task {
	for i := range st.tasks {
		if st.tasks[i].ID == id {
			return &st.tasks[i]
		}
	}
	return nil
}

func (st *projectState) columnByID(id int64) *models.Column {
	for i := range st.columns {
		if st.columns[i].ID == id {
			return &st.columns[i]
		}
	}
	return nil
}

func (st *projectState) columnByName(name string) *models.Column {
	for i := range st.columns {
		if st.columns[i].Name == name {
			return &st.columns[i]
		}
	}
	return nil
}

func (st *projectState) backlogByID(id int64) *models.Backlog {
	for i := range st.backlogs {
		if st.backlogs[i].ID == id {
			return &st.backlogs[i]
		}
	}
	return nil
}

func (st *projectState) sprintByID(id int64) *models.Sprint {
	for i := range st.sprints {
		if st.sprints[i].ID == id {
			return &st.sprints[i]
		}
	}
	return nil
}

// tasksInColumn returns pointers to the column's tasks ordered by display
// order, then id for stability.
func (st *projectState) tasksInColumn(name string) []*models.Task {
	var out []*models.Task
	for i := range st.tasks {
		if st.tasks[i].Status == name {
			out = append(out, &st.tasks[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (st *projectState) removeTask(id int64) {
	for i := range st.tasks {
		if st.tasks[i].ID == id {
			st.tasks = append(st.tasks[:i], st.tasks[i+1:]...)
			return
		}
	}
}

func (st *projectState) removeColumn(id int64) {
	for i := range st.columns {
		if st.columns[i].ID == id {
			st.columns = append(st.columns[:i], st.columns[i+1:]...)
			return
		}
	}
}

func (st *projectState) removeBacklog(id int64) {
	for i := range st.backlogs {
		if st.backlogs[i].ID == id {
			st.backlogs = append(st.backlogs[:i], st.backlogs[i+1:]...)
			return
		}
	}
}

func (st *projectState) removeSprint(id int64) {
	for i := range st.sprints {
		if st.sprints[i].ID == id {
			st.sprints = append(st.sprints[:i], st.sprints[i+1:]...)
			return
		}
	}
}

// --- deep copies ---

func cloneTask(t models.Task) models.Task {
	out := t
	out.AssignedEmails = append([]string(nil), t.AssignedEmails...)
	out.BacklogIDs = append([]int64(nil), t.BacklogIDs...)
	out.Subtasks = append([]models.Subtask(nil), t.Subtasks...)
	if t.SprintID != nil {
		v := *t.SprintID
		out.SprintID = &v
	}
	if t.RolledOverFrom != nil {
		v := *t.RolledOverFrom
		out.RolledOverFrom = &v
	}
	if t.StartDate != nil {
		v := *t.StartDate
		out.StartDate = &v
	}
	if t.EndDate != nil {
		v := *t.EndDate
		out.EndDate = &v
	}
	return out
}

func cloneBacklog(b models.Backlog) models.Backlog {
	out := b
	out.TaskIDs = append([]int64(nil), b.TaskIDs...)
	return out
}

func cloneSprint(s models.Sprint) models.Sprint {
	out := s
	out.TaskIDs = append([]int64(nil), s.TaskIDs...)
	return out
}

// command records pre-mutation snapshots so an optimistic local change can be
// rolled back when the store rejects it. Snapshots are keyed by entity, so an
// out-of-order confirmation only ever restores the entities it touched.
type command struct {
	st      *projectState
	restore []func(st *projectState)
}

func newCommand(st *projectState) *command {
	return &command{st: st}
}

func (c *command) saveTask(id int64) {
	if t := c.st.taskByID(id); t != nil {
		snap := cloneTask(*t)
		c.restore = append(c.restore, func(st *projectState) {
			if cur := st.taskByID(snap.ID); cur != nil {
				*cur = snap
			}
		})
	}
}

func (c *command) saveColumn(id int64) {
	if col := c.st.columnByID(id); col != nil {
		snap := *col
		c.restore = append(c.restore, func(st *projectState) {
			if cur := st.columnByID(snap.ID); cur != nil {
				*cur = snap
			}
		})
	}
}

func (c *command) saveBacklog(id int64) {
	if b := c.st.backlogByID(id); b != nil {
		snap := cloneBacklog(*b)
		c.restore = append(c.restore, func(st *projectState) {
			if cur := st.backlogByID(snap.ID); cur != nil {
				*cur = snap
			}
		})
	}
}

func (c *command) saveSprint(id int64) {
	if s := c.st.sprintByID(id); s != nil {
		snap := cloneSprint(*s)
		c.restore = append(c.restore, func(st *projectState) {
			if cur := st.sprintByID(snap.ID); cur != nil {
				*cur = snap
			}
		})
	}
}

// rollback restores every saved snapshot, newest first.
func (c *command) rollback() {
	for i := len(c.restore) - 1; i >= 0; i-- {
		c.restore[i](c.st)
	}
}

// undoLog collects store-side compensations for writes that already landed,
// so a failed later write in the same paired operation can restore the store
// to its pre-operation shape. Compensations run newest first.
type undoLog struct {
	e   *Engine
	fns []func(context.Context) error
}

func (u *undoLog) add(fn func(context.Context) error) {
	u.fns = append(u.fns, fn)
}

// run executes every compensation and reports whether all of them succeeded.
func (u *undoLog) run(ctx context.Context) bool {
	ok := true
	for i := len(u.fns) - 1; i >= 0; i-- {
		if err := u.fns[i](ctx); err != nil {
			ok = false
			u.e.logger.Error("compensation failed", "error", err.Error())
		}
	}
	return ok
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func appendID(ids []int64, id int64) []int64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
