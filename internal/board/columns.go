package board

import (
	"context"
	"fmt"
	"strings"

	"taskboard/internal/auth"
	"taskboard/internal/models"
)

// requireClaim gates a mutation on a capability of the acting identity. The
// policy granting capabilities lives upstream; only membership is checked
// here.
func requireClaim(ctx context.Context, claim string) error {
	if !auth.FromContext(ctx).Claims.Has(claim) {
		return fmt.Errorf("%w: missing capability %q", models.ErrForbidden, claim)
	}
	return nil
}

// CreateColumn adds a new board lane at the right edge. Requires the
// columns:manage capability.
func (e *Engine) CreateColumn(ctx context.Context, projectID int64, name string) (models.Column, error) {
	if err := requireClaim(ctx, auth.ClaimManageColumns); err != nil {
		return models.Column{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Column{}, models.Invalid("name", "column name must not be empty")
	}

	col, events, err := e.createColumnLocked(ctx, projectID, name)
	if err != nil {
		return models.Column{}, err
	}
	e.emit(events)
	return col, nil
}

func (e *Engine) createColumnLocked(ctx context.Context, projectID int64, name string) (models.Column, []Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return models.Column{}, nil, err
	}
	defer st.markDirty()
	if st.columnByName(name) != nil {
		return models.Column{}, nil, models.Invalid("name", "a column named %q already exists", name)
	}

	order := 1.0
	for _, c := range st.columns {
		if c.DisplayOrder >= order {
			order = c.DisplayOrder + 1
		}
	}

	created, err := e.store.CreateColumn(ctx, models.Column{ProjectID: projectID, Name: name, DisplayOrder: order})
	if err != nil {
		return models.Column{}, nil, fmt.Errorf("create column: %w", err)
	}
	st.columns = append(st.columns, created)

	return created, []Event{{Collection: CollectionColumns, Op: OpCreated, ProjectID: projectID, EntityID: created.ID}}, nil
}

// RenameColumn renames a lane and rewrites the status of every task sitting
// in it in the same store transaction, so no task is ever orphaned on the old
// name. Requires the columns:manage capability.
func (e *Engine) RenameColumn(ctx context.Context, projectID, columnID int64, newName string) (models.Column, error) {
	if err := requireClaim(ctx, auth.ClaimManageColumns); err != nil {
		return models.Column{}, err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return models.Column{}, models.Invalid("name", "column name must not be empty")
	}

	col, events, err := e.renameColumnLocked(ctx, projectID, columnID, newName)
	if err != nil {
		return models.Column{}, err
	}
	e.emit(events)
	return col, nil
}

func (e *Engine) renameColumnLocked(ctx context.Context, projectID, columnID int64, newName string) (models.Column, []Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return models.Column{}, nil, err
	}
	defer st.markDirty()

	col := st.columnByID(columnID)
	if col == nil {
		return models.Column{}, nil, fmt.Errorf("column %d: %w", columnID, models.ErrNotFound)
	}
	if col.Name == newName {
		return *col, nil, nil
	}
	if st.columnByName(newName) != nil {
		return models.Column{}, nil, models.Invalid("name", "a column named %q already exists", newName)
	}

	cmd := newCommand(st)
	cmd.saveColumn(columnID)
	oldName := col.Name
	col.Name = newName
	for i := range st.tasks {
		if st.tasks[i].Status == oldName {
			cmd.saveTask(st.tasks[i].ID)
			st.tasks[i].Status = newName
		}
	}

	if err := e.store.RenameColumnCascade(ctx, *col, oldName); err != nil {
		cmd.rollback()
		return models.Column{}, nil, fmt.Errorf("rename column: %w", err)
	}

	events := []Event{{Collection: CollectionColumns, Op: OpUpdated, ProjectID: projectID, EntityID: columnID}}
	for i := range st.tasks {
		if st.tasks[i].Status == newName {
			events = append(events, Event{Collection: CollectionTasks, Op: OpUpdated, ProjectID: projectID, EntityID: st.tasks[i].ID})
		}
	}
	return *col, events, nil
}

// DeleteColumn removes a lane. A non-empty column is refused unless cascade
// is set, in which case its tasks are deleted with it in one transaction and
// unlinked from every sprint and backlog first. Either way no task is left
// referencing the dead column name. Requires the columns:manage capability.
func (e *Engine) DeleteColumn(ctx context.Context, projectID, columnID int64, cascade bool) error {
	if err := requireClaim(ctx, auth.ClaimManageColumns); err != nil {
		return err
	}

	events, err := e.deleteColumnLocked(ctx, projectID, columnID, cascade)
	if err != nil {
		return err
	}
	e.emit(events)
	return nil
}

func (e *Engine) deleteColumnLocked(ctx context.Context, projectID, columnID int64, cascade bool) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer st.markDirty()

	col := st.columnByID(columnID)
	if col == nil {
		return nil, fmt.Errorf("column %d: %w", columnID, models.ErrNotFound)
	}

	var doomedIDs []int64
	for _, t := range st.tasksInColumn(col.Name) {
		doomedIDs = append(doomedIDs, t.ID)
	}
	if len(doomedIDs) > 0 && !cascade {
		return nil, models.Invalid("column", "column %q still contains %d task(s); delete them first or request a cascade", col.Name, len(doomedIDs))
	}

	cmd := newCommand(st)
	undo := undoLog{e: e}
	var events []Event

	fail := func(op string, err error) error {
		compensated := undo.run(ctx)
		cmd.rollback()
		if !compensated {
			return &models.ConsistencyError{Op: op, Compensated: false, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// Unlink the doomed tasks from sprints and backlogs before the cascade so
	// those collections never reference ids that are about to disappear.
	for _, taskID := range doomedIDs {
		t := st.taskByID(taskID)
		if t.SprintID != nil {
			if s := st.sprintByID(*t.SprintID); s != nil && s.HasTask(taskID) {
				before := cloneSprint(*s)
				cmd.saveSprint(s.ID)
				s.TaskIDs = removeID(append([]int64(nil), s.TaskIDs...), taskID)
				if err := e.store.UpdateSprint(ctx, *s); err != nil {
					return nil, fail(fmt.Sprintf("unlink sprint %d", s.ID), err)
				}
				undo.add(func(ctx context.Context) error { return e.store.UpdateSprint(ctx, before) })
				events = append(events, Event{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: s.ID})
			}
		}
		for _, backlogID := range t.BacklogIDs {
			b := st.backlogByID(backlogID)
			if b == nil || !b.HasTask(taskID) {
				continue
			}
			before := cloneBacklog(*b)
			cmd.saveBacklog(b.ID)
			b.TaskIDs = removeID(append([]int64(nil), b.TaskIDs...), taskID)
			if err := e.store.UpdateBacklog(ctx, *b); err != nil {
				return nil, fail(fmt.Sprintf("unlink backlog %d", b.ID), err)
			}
			undo.add(func(ctx context.Context) error { return e.store.UpdateBacklog(ctx, before) })
			events = append(events, Event{Collection: CollectionBacklogs, Op: OpUpdated, ProjectID: projectID, EntityID: b.ID})
		}
	}

	if err := e.store.DeleteColumnCascade(ctx, *col); err != nil {
		return nil, fail("delete column", err)
	}

	for _, id := range doomedIDs {
		st.removeTask(id)
		events = append(events, Event{Collection: CollectionTasks, Op: OpDeleted, ProjectID: projectID, EntityID: id})
	}
	st.removeColumn(columnID)

	return append(events, Event{Collection: CollectionColumns, Op: OpDeleted, ProjectID: projectID, EntityID: columnID}), nil
}
