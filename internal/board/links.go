package board

import (
	"context"
	"fmt"

	"taskboard/internal/models"
)

// This file is the relationship-integrity layer: every cross-referenced pair
// (task.SprintID <-> sprint.TaskIDs, task.BacklogIDs <-> backlog.TaskIDs) is
// updated through one of these helpers, which persist both sides and
// compensate the first write when the second fails. Call sites never touch
// one side of a pair on its own.

// relinkSprint moves a task's sprint membership from its current sprint to
// newSprintID (nil detaches). The caller provides the pre-mutation image of
// the task (taskBefore) for store-side compensation and must already have
// saved the task on cmd; this helper persists the task and both sprint
// records.
func (e *Engine) relinkSprint(ctx context.Context, st *projectState, cmd *command, task *models.Task, taskBefore models.Task, newSprintID *int64) error {
	oldID := task.SprintID

	var oldSprint, newSprint *models.Sprint
	if oldID != nil {
		oldSprint = st.sprintByID(*oldID)
	}
	if newSprintID != nil {
		newSprint = st.sprintByID(*newSprintID)
		if newSprint == nil {
			return models.Invalid("sprint_id", "sprint %d does not exist", *newSprintID)
		}
	}

	if newSprintID != nil {
		v := *newSprintID
		task.SprintID = &v
	} else {
		task.SprintID = nil
	}

	var persisted []func(context.Context) error // compensations, newest first

	persist := func(op string, apply func(context.Context) error, compensate func(context.Context) error) error {
		if err := apply(ctx); err != nil {
			compensated := true
			for i := len(persisted) - 1; i >= 0; i-- {
				if cerr := persisted[i](ctx); cerr != nil {
					compensated = false
					e.logger.Error("sprint relink compensation failed", "op", op, "error", cerr.Error())
				}
			}
			cmd.rollback()
			return &models.ConsistencyError{Op: op, Compensated: compensated, Err: err}
		}
		persisted = append(persisted, compensate)
		return nil
	}

	if err := persist("update task sprint", func(ctx context.Context) error {
		return e.store.UpdateTask(ctx, *task)
	}, func(ctx context.Context) error {
		return e.store.UpdateTask(ctx, taskBefore)
	}); err != nil {
		return err
	}

	if oldSprint != nil {
		before := cloneSprint(*oldSprint)
		cmd.saveSprint(oldSprint.ID)
		oldSprint.TaskIDs = removeID(append([]int64(nil), oldSprint.TaskIDs...), task.ID)
		if err := persist("unlink old sprint", func(ctx context.Context) error {
			return e.store.UpdateSprint(ctx, *oldSprint)
		}, func(ctx context.Context) error {
			return e.store.UpdateSprint(ctx, before)
		}); err != nil {
			return err
		}
	}

	if newSprint != nil {
		before := cloneSprint(*newSprint)
		cmd.saveSprint(newSprint.ID)
		newSprint.TaskIDs = appendID(append([]int64(nil), newSprint.TaskIDs...), task.ID)
		if err := persist("link new sprint", func(ctx context.Context) error {
			return e.store.UpdateSprint(ctx, *newSprint)
		}, func(ctx context.Context) error {
			return e.store.UpdateSprint(ctx, before)
		}); err != nil {
			return err
		}
	}

	return nil
}

// AttachTaskToBacklog links a task into a backlog, keeping both sides of the
// relationship in step.
func (e *Engine) AttachTaskToBacklog(ctx context.Context, projectID, taskID, backlogID int64) error {
	events, err := e.linkBacklogLocked(ctx, projectID, taskID, backlogID, true)
	if err != nil {
		return err
	}
	e.emit(events)
	return nil
}

// DetachTaskFromBacklog removes the link between a task and a backlog on both
// sides.
func (e *Engine) DetachTaskFromBacklog(ctx context.Context, projectID, taskID, backlogID int64) error {
	events, err := e.linkBacklogLocked(ctx, projectID, taskID, backlogID, false)
	if err != nil {
		return err
	}
	e.emit(events)
	return nil
}

func (e *Engine) linkBacklogLocked(ctx context.Context, projectID, taskID, backlogID int64, attach bool) ([]Event, error) {
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
	backlog := st.backlogByID(backlogID)
	if backlog == nil {
		return nil, fmt.Errorf("backlog %d: %w", backlogID, models.ErrNotFound)
	}

	if attach == task.HasBacklog(backlogID) && attach == backlog.HasTask(taskID) {
		return nil, nil // already in the requested state
	}

	cmd := newCommand(st)
	cmd.saveTask(taskID)
	cmd.saveBacklog(backlogID)

	taskBefore := cloneTask(*task)
	if attach {
		task.BacklogIDs = appendID(append([]int64(nil), task.BacklogIDs...), backlogID)
		backlog.TaskIDs = appendID(append([]int64(nil), backlog.TaskIDs...), taskID)
	} else {
		task.BacklogIDs = removeID(append([]int64(nil), task.BacklogIDs...), backlogID)
		backlog.TaskIDs = removeID(append([]int64(nil), backlog.TaskIDs...), taskID)
	}

	if err := e.store.UpdateTask(ctx, *task); err != nil {
		cmd.rollback()
		return nil, fmt.Errorf("persist task backlog link: %w", err)
	}
	if err := e.store.UpdateBacklog(ctx, *backlog); err != nil {
		compensated := true
		if cerr := e.store.UpdateTask(ctx, taskBefore); cerr != nil {
			compensated = false
			e.logger.Error("backlog link compensation failed", "task", taskID, "error", cerr.Error())
		}
		cmd.rollback()
		return nil, &models.ConsistencyError{Op: "link backlog", Compensated: compensated, Err: err}
	}

	return []Event{
		{Collection: CollectionTasks, Op: OpUpdated, ProjectID: projectID, EntityID: taskID},
		{Collection: CollectionBacklogs, Op: OpUpdated, ProjectID: projectID, EntityID: backlogID},
	}, nil
}
