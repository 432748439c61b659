package board

import (
	"context"
	"fmt"
	"strings"

	"taskboard/internal/auth"
	"taskboard/internal/models"
)

// CreateBacklog adds an empty backlog to the project.
func (e *Engine) CreateBacklog(ctx context.Context, projectID int64, name, description string) (models.Backlog, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Backlog{}, models.Invalid("name", "backlog name must not be empty")
	}

	e.mu.Lock()
	st, err := e.state(ctx, projectID)
	if err != nil {
		e.mu.Unlock()
		return models.Backlog{}, err
	}

	created, err := e.store.CreateBacklog(ctx, models.Backlog{ProjectID: projectID, Name: name, Description: description})
	if err != nil {
		e.mu.Unlock()
		return models.Backlog{}, fmt.Errorf("create backlog: %w", err)
	}
	st.backlogs = append(st.backlogs, created)
	st.markDirty()
	e.mu.Unlock()

	e.emit([]Event{{Collection: CollectionBacklogs, Op: OpCreated, ProjectID: projectID, EntityID: created.ID}})
	return created, nil
}

// UpdateBacklog edits a backlog's name and description. The task list is
// managed exclusively through the link operations.
func (e *Engine) UpdateBacklog(ctx context.Context, projectID, backlogID int64, name, description string) (models.Backlog, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Backlog{}, models.Invalid("name", "backlog name must not be empty")
	}

	e.mu.Lock()
	st, err := e.state(ctx, projectID)
	if err != nil {
		e.mu.Unlock()
		return models.Backlog{}, err
	}

	b := st.backlogByID(backlogID)
	if b == nil {
		e.mu.Unlock()
		return models.Backlog{}, fmt.Errorf("backlog %d: %w", backlogID, models.ErrNotFound)
	}

	cmd := newCommand(st)
	cmd.saveBacklog(backlogID)
	b.Name = name
	b.Description = description

	if err := e.store.UpdateBacklog(ctx, *b); err != nil {
		cmd.rollback()
		e.mu.Unlock()
		return models.Backlog{}, fmt.Errorf("update backlog: %w", err)
	}
	out := cloneBacklog(*b)
	st.markDirty()
	e.mu.Unlock()

	e.emit([]Event{{Collection: CollectionBacklogs, Op: OpUpdated, ProjectID: projectID, EntityID: backlogID}})
	return out, nil
}

// DeleteBacklog removes a backlog. A non-empty backlog is first drained: the
// backlog id is removed from every linked task, so tasks survive with one
// grouping fewer.
func (e *Engine) DeleteBacklog(ctx context.Context, projectID, backlogID int64) error {
	events, err := e.deleteBacklogLocked(ctx, projectID, backlogID)
	if err != nil {
		return err
	}
	e.emit(events)
	return nil
}

func (e *Engine) deleteBacklogLocked(ctx context.Context, projectID, backlogID int64) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer st.markDirty()

	b := st.backlogByID(backlogID)
	if b == nil {
		return nil, fmt.Errorf("backlog %d: %w", backlogID, models.ErrNotFound)
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

	for _, taskID := range append([]int64(nil), b.TaskIDs...) {
		t := st.taskByID(taskID)
		if t == nil || !t.HasBacklog(backlogID) {
			continue
		}
		before := cloneTask(*t)
		cmd.saveTask(taskID)
		t.BacklogIDs = removeID(append([]int64(nil), t.BacklogIDs...), backlogID)
		if err := e.store.UpdateTask(ctx, *t); err != nil {
			return nil, fail(fmt.Sprintf("detach task %d", taskID), err)
		}
		undo.add(func(ctx context.Context) error { return e.store.UpdateTask(ctx, before) })
		events = append(events, Event{Collection: CollectionTasks, Op: OpUpdated, ProjectID: projectID, EntityID: taskID})
	}

	if err := e.store.DeleteBacklog(ctx, backlogID); err != nil {
		return nil, fail("delete backlog", err)
	}
	st.removeBacklog(backlogID)

	return append(events, Event{Collection: CollectionBacklogs, Op: OpDeleted, ProjectID: projectID, EntityID: backlogID}), nil
}

// CreateSprint adds a sprint after validating its name is unique within the
// project and its end date follows its start date. Requires the
// sprints:manage capability.
func (e *Engine) CreateSprint(ctx context.Context, projectID int64, draft models.Sprint) (models.Sprint, error) {
	if err := requireClaim(ctx, auth.ClaimManageSprints); err != nil {
		return models.Sprint{}, err
	}
	if err := validateSprintFields(&draft); err != nil {
		return models.Sprint{}, err
	}

	e.mu.Lock()
	st, err := e.state(ctx, projectID)
	if err != nil {
		e.mu.Unlock()
		return models.Sprint{}, err
	}

	for i := range st.sprints {
		if st.sprints[i].Name == draft.Name {
			e.mu.Unlock()
			return models.Sprint{}, models.Invalid("name", "a sprint named %q already exists", draft.Name)
		}
	}

	draft.ProjectID = projectID
	draft.TaskIDs = nil
	created, err := e.store.CreateSprint(ctx, draft)
	if err != nil {
		e.mu.Unlock()
		return models.Sprint{}, fmt.Errorf("create sprint: %w", err)
	}
	st.sprints = append(st.sprints, created)
	st.markDirty()
	e.mu.Unlock()

	e.emit([]Event{{Collection: CollectionSprints, Op: OpCreated, ProjectID: projectID, EntityID: created.ID}})
	return created, nil
}

// UpdateSprint edits a sprint's name, description and dates. Task membership
// is managed exclusively through the relationship-integrity layer.
func (e *Engine) UpdateSprint(ctx context.Context, projectID, sprintID int64, draft models.Sprint) (models.Sprint, error) {
	if err := requireClaim(ctx, auth.ClaimManageSprints); err != nil {
		return models.Sprint{}, err
	}
	if err := validateSprintFields(&draft); err != nil {
		return models.Sprint{}, err
	}

	e.mu.Lock()
	st, err := e.state(ctx, projectID)
	if err != nil {
		e.mu.Unlock()
		return models.Sprint{}, err
	}

	s := st.sprintByID(sprintID)
	if s == nil {
		e.mu.Unlock()
		return models.Sprint{}, fmt.Errorf("sprint %d: %w", sprintID, models.ErrNotFound)
	}
	for i := range st.sprints {
		if st.sprints[i].ID != sprintID && st.sprints[i].Name == draft.Name {
			e.mu.Unlock()
			return models.Sprint{}, models.Invalid("name", "a sprint named %q already exists", draft.Name)
		}
	}

	cmd := newCommand(st)
	cmd.saveSprint(sprintID)
	s.Name = draft.Name
	s.Description = draft.Description
	s.StartDate = draft.StartDate
	s.EndDate = draft.EndDate

	if err := e.store.UpdateSprint(ctx, *s); err != nil {
		cmd.rollback()
		e.mu.Unlock()
		return models.Sprint{}, fmt.Errorf("update sprint: %w", err)
	}
	out := cloneSprint(*s)
	st.markDirty()
	e.mu.Unlock()

	e.emit([]Event{{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: sprintID}})
	return out, nil
}

// DeleteSprint removes a sprint, detaching every member task first so no
// task keeps a sprint id that points nowhere. Requires the sprints:manage
// capability.
func (e *Engine) DeleteSprint(ctx context.Context, projectID, sprintID int64) error {
	if err := requireClaim(ctx, auth.ClaimManageSprints); err != nil {
		return err
	}

	events, err := e.deleteSprintLocked(ctx, projectID, sprintID)
	if err != nil {
		return err
	}
	e.emit(events)
	return nil
}

func (e *Engine) deleteSprintLocked(ctx context.Context, projectID, sprintID int64) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer st.markDirty()

	s := st.sprintByID(sprintID)
	if s == nil {
		return nil, fmt.Errorf("sprint %d: %w", sprintID, models.ErrNotFound)
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

	for _, taskID := range append([]int64(nil), s.TaskIDs...) {
		t := st.taskByID(taskID)
		if t == nil || t.SprintID == nil || *t.SprintID != sprintID {
			continue
		}
		before := cloneTask(*t)
		cmd.saveTask(taskID)
		t.SprintID = nil
		if err := e.store.UpdateTask(ctx, *t); err != nil {
			return nil, fail(fmt.Sprintf("detach task %d", taskID), err)
		}
		undo.add(func(ctx context.Context) error { return e.store.UpdateTask(ctx, before) })
		events = append(events, Event{Collection: CollectionTasks, Op: OpUpdated, ProjectID: projectID, EntityID: taskID})
	}

	if err := e.store.DeleteSprint(ctx, sprintID); err != nil {
		return nil, fail("delete sprint", err)
	}
	st.removeSprint(sprintID)

	return append(events, Event{Collection: CollectionSprints, Op: OpDeleted, ProjectID: projectID, EntityID: sprintID}), nil
}

// AssignTaskToSprint moves a task into a sprint (or out of any sprint when
// sprintID is nil), keeping both sides of the relationship in step.
func (e *Engine) AssignTaskToSprint(ctx context.Context, projectID, taskID int64, sprintID *int64) error {
	events, err := e.assignSprintLocked(ctx, projectID, taskID, sprintID)
	if err != nil {
		return err
	}
	e.emit(events)
	return nil
}

func (e *Engine) assignSprintLocked(ctx context.Context, projectID, taskID int64, sprintID *int64) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer st.markDirty()

	task := st.taskByID(taskID)
	if task == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, models.ErrNotFound)
	}
	if sameSprint(task.SprintID, sprintID) {
		return nil, nil
	}

	oldSprint := task.SprintID
	cmd := newCommand(st)
	cmd.saveTask(taskID)
	if err := e.relinkSprint(ctx, st, cmd, task, cloneTask(*task), sprintID); err != nil {
		return nil, err
	}

	events := []Event{{Collection: CollectionTasks, Op: OpUpdated, ProjectID: projectID, EntityID: taskID}}
	if oldSprint != nil {
		events = append(events, Event{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: *oldSprint})
	}
	if sprintID != nil {
		events = append(events, Event{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: *sprintID})
	}
	return events, nil
}

func validateSprintFields(s *models.Sprint) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return models.Invalid("name", "sprint name must not be empty")
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return models.Invalid("dates", "sprint start and end dates are required")
	}
	if !s.EndDate.After(s.StartDate) {
		return models.Invalid("end_date", "end date must be after start date")
	}
	return nil
}
