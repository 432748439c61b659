package board

import (
	"context"
	"fmt"
	"strings"

	"taskboard/internal/auth"
	"taskboard/internal/models"
)

// CreateTask validates the draft, computes its cost, persists it at the end
// of its column and notifies every assignee except the acting user. The
// returned NotifyError, when non-nil, means the task was created but some
// notifications failed.
func (e *Engine) CreateTask(ctx context.Context, projectID int64, draft models.Task) (models.Task, *models.NotifyError, error) {
	if err := validateTaskFields(&draft); err != nil {
		return models.Task{}, nil, err
	}

	created, events, err := e.createTaskLocked(ctx, projectID, draft)
	if err != nil {
		return models.Task{}, nil, err
	}
	e.emit(events)

	notifyErr := e.notifyAssignees(ctx, created, models.NotifyTaskAssigned,
		fmt.Sprintf("You were assigned to task %q", created.Title))
	return created, notifyErr, nil
}

func (e *Engine) createTaskLocked(ctx context.Context, projectID int64, draft models.Task) (models.Task, []Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return models.Task{}, nil, err
	}
	defer st.markDirty()

	if st.columnByName(draft.Status) == nil {
		return models.Task{}, nil, models.Invalid("status", "no column named %q", draft.Status)
	}

	wantSprint := draft.SprintID
	if wantSprint != nil && st.sprintByID(*wantSprint) == nil {
		return models.Task{}, nil, models.Invalid("sprint_id", "sprint %d does not exist", *wantSprint)
	}

	draft.ProjectID = projectID
	draft.SprintID = nil
	draft.BacklogIDs = nil
	draft.RolledOverFrom = nil
	draft.DisplayOrder = nextOrder(st.tasksInColumn(draft.Status))
	draft.TotalCost = e.taskCost(ctx, draft)

	created, err := e.store.CreateTask(ctx, draft)
	if err != nil {
		return models.Task{}, nil, fmt.Errorf("create task: %w", err)
	}
	st.tasks = append(st.tasks, created)
	task := &st.tasks[len(st.tasks)-1]

	events := []Event{{Collection: CollectionTasks, Op: OpCreated, ProjectID: projectID, EntityID: created.ID}}

	if wantSprint != nil {
		cmd := newCommand(st)
		cmd.saveTask(task.ID)
		if err := e.relinkSprint(ctx, st, cmd, task, cloneTask(created), wantSprint); err != nil {
			// The task exists but its sprint pair could not be applied; undo
			// the creation so no half-linked record survives.
			if derr := e.store.DeleteTask(ctx, created.ID); derr != nil {
				e.logger.Error("could not undo task creation after sprint link failure",
					"task", created.ID, "error", derr.Error())
			} else {
				st.removeTask(created.ID)
			}
			return models.Task{}, nil, err
		}
		events = append(events, Event{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: *wantSprint})
	}

	return cloneTask(*task), events, nil
}

// EditTask applies the draft to an existing task. A sprint change goes
// through the relationship-integrity layer and produces its own notification,
// distinct from the plain task-updated one.
func (e *Engine) EditTask(ctx context.Context, projectID, taskID int64, draft models.Task) (models.Task, *models.NotifyError, error) {
	if err := validateTaskFields(&draft); err != nil {
		return models.Task{}, nil, err
	}

	updated, sprintChanged, events, err := e.editTaskLocked(ctx, projectID, taskID, draft)
	if err != nil {
		return models.Task{}, nil, err
	}
	e.emit(events)

	notifyErr := e.notifyAssignees(ctx, updated, models.NotifyTaskUpdated,
		fmt.Sprintf("Task %q was updated", updated.Title))
	if sprintChanged {
		sprintMsg := fmt.Sprintf("Task %q moved to a different sprint", updated.Title)
		if updated.SprintID == nil {
			sprintMsg = fmt.Sprintf("Task %q was removed from its sprint", updated.Title)
		}
		notifyErr = mergeNotifyErrors(notifyErr,
			e.notifyAssignees(ctx, updated, models.NotifySprintChanged, sprintMsg))
	}
	return updated, notifyErr, nil
}

func (e *Engine) editTaskLocked(ctx context.Context, projectID, taskID int64, draft models.Task) (models.Task, bool, []Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return models.Task{}, false, nil, err
	}
	defer st.markDirty()

	task := st.taskByID(taskID)
	if task == nil {
		return models.Task{}, false, nil, fmt.Errorf("task %d: %w", taskID, models.ErrNotFound)
	}

	if st.columnByName(draft.Status) == nil {
		return models.Task{}, false, nil, models.Invalid("status", "no column named %q", draft.Status)
	}
	sprintChanged := !sameSprint(task.SprintID, draft.SprintID)
	if sprintChanged && draft.SprintID != nil && st.sprintByID(*draft.SprintID) == nil {
		return models.Task{}, false, nil, models.Invalid("sprint_id", "sprint %d does not exist", *draft.SprintID)
	}

	cmd := newCommand(st)
	cmd.saveTask(taskID)
	taskBefore := cloneTask(*task)

	statusChanged := task.Status != draft.Status
	task.Title = draft.Title
	task.Description = draft.Description
	task.Priority = draft.Priority
	task.Status = draft.Status
	task.AssignedEmails = append([]string(nil), draft.AssignedEmails...)
	task.StartDate = draft.StartDate
	task.EndDate = draft.EndDate
	task.Subtasks = append([]models.Subtask(nil), draft.Subtasks...)
	if statusChanged {
		task.DisplayOrder = nextOrder(st.tasksInColumn(task.Status))
	}
	task.TotalCost = e.taskCost(ctx, *task)

	events := []Event{{Collection: CollectionTasks, Op: OpUpdated, ProjectID: projectID, EntityID: taskID}}

	if sprintChanged {
		oldSprint := task.SprintID
		if err := e.relinkSprint(ctx, st, cmd, task, taskBefore, draft.SprintID); err != nil {
			return models.Task{}, false, nil, err
		}
		if oldSprint != nil {
			events = append(events, Event{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: *oldSprint})
		}
		if draft.SprintID != nil {
			events = append(events, Event{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: *draft.SprintID})
		}
	} else {
		if err := e.store.UpdateTask(ctx, *task); err != nil {
			cmd.rollback()
			return models.Task{}, false, nil, fmt.Errorf("update task: %w", err)
		}
	}

	return cloneTask(*task), sprintChanged, events, nil
}

// DeleteTask removes a task and unlinks it from every sprint and backlog that
// references it, so no collection is left pointing at a dead id.
func (e *Engine) DeleteTask(ctx context.Context, projectID, taskID int64) error {
	events, err := e.deleteTaskLocked(ctx, projectID, taskID)
	if err != nil {
		return err
	}
	e.emit(events)
	return nil
}

func (e *Engine) deleteTaskLocked(ctx context.Context, projectID, taskID int64) ([]Event, error) {
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

	// Unlink referencing collections first; the task row goes last so a
	// failure leaves a still-consistent (if unchanged) board.
	if task.SprintID != nil {
		if s := st.sprintByID(*task.SprintID); s != nil && s.HasTask(taskID) {
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
	for _, backlogID := range task.BacklogIDs {
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

	if err := e.store.DeleteTask(ctx, taskID); err != nil {
		return nil, fail("delete task", err)
	}
	st.removeTask(taskID)

	return append(events, Event{Collection: CollectionTasks, Op: OpDeleted, ProjectID: projectID, EntityID: taskID}), nil
}

// validateTaskFields normalizes and checks the fields that need no store
// access. It runs before any store call, so invalid input never reaches the
// persistence layer.
func validateTaskFields(t *models.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return models.Invalid("title", "title must not be empty")
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	t.Priority = strings.ToUpper(t.Priority)
	if _, ok := models.ValidPriorities[t.Priority]; !ok {
		return models.Invalid("priority", "unknown priority %q", t.Priority)
	}
	if t.StartDate != nil && t.EndDate != nil && !t.EndDate.After(*t.StartDate) {
		return models.Invalid("end_date", "end date must be after start date")
	}
	return nil
}

// taskCost derives the total cost of a task: each resolvable assignee accrues
// their daily rate for every day of the task's [start, end] range, inclusive.
// No assignees or no dates costs nothing. Unresolvable emails are skipped;
// the figure is derived, never authoritative.
func (e *Engine) taskCost(ctx context.Context, t models.Task) float64 {
	if len(t.AssignedEmails) == 0 || t.StartDate == nil || t.EndDate == nil {
		return 0
	}
	days := int(t.EndDate.Sub(*t.StartDate).Hours()/24) + 1
	if days <= 0 {
		return 0
	}

	var total float64
	for _, email := range t.AssignedEmails {
		user, err := e.store.GetUserByEmail(ctx, email)
		if err != nil {
			continue
		}
		total += user.DailyRate * float64(days)
	}
	return total
}

// notifyAssignees fans a message out to every distinct assignee except the
// acting user. Failures are aggregated and never undo the mutation that
// triggered them.
func (e *Engine) notifyAssignees(ctx context.Context, task models.Task, typ, message string) *models.NotifyError {
	actor := auth.FromContext(ctx)

	var errs []error
	seen := map[string]struct{}{}
	for _, email := range task.AssignedEmails {
		if email == actor.Email {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}

		user, err := e.store.GetUserByEmail(ctx, email)
		if err != nil {
			continue // not a known user, nothing to deliver to
		}
		if err := e.notifier.Notify(ctx, user.ID, typ, message, "task", task.ID); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", email, err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	ne := &models.NotifyError{Failed: len(errs), Errs: errs}
	e.logger.Warn("some notifications failed", "task", task.ID, "error", ne.Error())
	return ne
}

func mergeNotifyErrors(a, b *models.NotifyError) *models.NotifyError {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return &models.NotifyError{Failed: a.Failed + b.Failed, Errs: append(a.Errs, b.Errs...)}
	}
}

func sameSprint(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func nextOrder(ordered []*models.Task) float64 {
	if len(ordered) == 0 {
		return 1
	}
	return ordered[len(ordered)-1].DisplayOrder + 1
}
