package board

import (
	"context"
	"fmt"
	"sort"

	"taskboard/internal/models"
)

// Drag endpoint kinds.
const (
	KindTask   = "task"
	KindColumn = "column"
)

// DragItem identifies one endpoint of a drag gesture.
type DragItem struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

type dragKind int

const (
	dragNone dragKind = iota
	dragTaskReorder
	dragTaskMove
	dragColumnReorder
)

// Drag interprets a completed drag gesture and applies the resulting
// transition: reorder within a column, move across columns, or reorder the
// columns themselves. Local state is mutated optimistically and rolled back
// if the store rejects any write. Unresolvable endpoints and active==over
// are no-ops.
func (e *Engine) Drag(ctx context.Context, projectID int64, active, over DragItem) error {
	events, err := e.dragLocked(ctx, projectID, active, over)
	if err != nil {
		return err
	}
	e.emit(events)
	return nil
}

func (e *Engine) dragLocked(ctx context.Context, projectID int64, active, over DragItem) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer st.markDirty()

	kind, dest := classifyDrag(st, active, over)
	switch kind {
	case dragTaskReorder:
		return e.reorderTask(ctx, st, projectID, active.ID, over.ID)
	case dragTaskMove:
		return e.moveTask(ctx, st, projectID, active.ID, over, dest)
	case dragColumnReorder:
		return e.reorderColumn(ctx, st, projectID, active.ID, over.ID)
	default:
		return nil, nil
	}
}

// classifyDrag resolves the gesture endpoints against known entities. dest is
// the destination column for a cross-column move.
func classifyDrag(st *projectState, active, over DragItem) (dragKind, *models.Column) {
	if active == over {
		return dragNone, nil
	}

	switch active.Kind {
	case KindTask:
		task := st.taskByID(active.ID)
		if task == nil {
			return dragNone, nil
		}
		switch over.Kind {
		case KindTask:
			target := st.taskByID(over.ID)
			if target == nil {
				return dragNone, nil
			}
			if target.Status == task.Status {
				return dragTaskReorder, nil
			}
			dest := st.columnByName(target.Status)
			if dest == nil {
				return dragNone, nil
			}
			return dragTaskMove, dest
		case KindColumn:
			dest := st.columnByID(over.ID)
			if dest == nil || dest.Name == task.Status {
				return dragNone, nil
			}
			return dragTaskMove, dest
		}
	case KindColumn:
		if over.Kind != KindColumn {
			return dragNone, nil
		}
		if st.columnByID(active.ID) == nil || st.columnByID(over.ID) == nil {
			return dragNone, nil
		}
		return dragColumnReorder, nil
	}
	return dragNone, nil
}

// reorderTask repositions a task relative to another task in the same column.
// Status and sprint linkage are never touched.
func (e *Engine) reorderTask(ctx context.Context, st *projectState, projectID, activeID, overID int64) ([]Event, error) {
	task := st.taskByID(activeID)
	ordered := st.tasksInColumn(task.Status)

	activeIdx, overIdx := indexOfTask(ordered, activeID), indexOfTask(ordered, overID)
	if activeIdx < 0 || overIdx < 0 {
		return nil, nil
	}

	moved := ordered[activeIdx]
	ordered = append(ordered[:activeIdx], ordered[activeIdx+1:]...)
	ordered = insertTask(ordered, overIdx, moved)

	return e.persistTaskOrder(ctx, st, projectID, ordered, newCommand(st), nil)
}

// moveTask moves a task into another column, placed before the task it was
// dropped on, or at the end when dropped on the column itself.
func (e *Engine) moveTask(ctx context.Context, st *projectState, projectID, activeID int64, over DragItem, dest *models.Column) ([]Event, error) {
	task := st.taskByID(activeID)

	ordered := st.tasksInColumn(dest.Name)
	insertAt := len(ordered)
	if over.Kind == KindTask {
		if i := indexOfTask(ordered, over.ID); i >= 0 {
			insertAt = i
		}
	}

	cmd := newCommand(st)
	cmd.saveTask(task.ID)
	task.Status = dest.Name
	ordered = insertTask(ordered, insertAt, task)

	return e.persistTaskOrder(ctx, st, projectID, ordered, cmd, task)
}

// persistTaskOrder assigns sequential display orders to the column slice and
// persists every task whose record changed. forced is persisted even when its
// order slot did not change (its status did). Any write failure rolls back
// every optimistic change recorded on cmd.
func (e *Engine) persistTaskOrder(ctx context.Context, st *projectState, projectID int64, ordered []*models.Task, cmd *command, forced *models.Task) ([]Event, error) {
	saved := map[int64]bool{}
	if forced != nil {
		saved[forced.ID] = true
	}

	var changed []*models.Task
	for i, t := range ordered {
		want := float64(i + 1)
		switch {
		case t.DisplayOrder != want:
			if !saved[t.ID] {
				cmd.saveTask(t.ID)
				saved[t.ID] = true
			}
			t.DisplayOrder = want
			changed = append(changed, t)
		case t == forced:
			changed = append(changed, t)
		}
	}

	for _, t := range changed {
		if err := e.store.UpdateTask(ctx, *t); err != nil {
			cmd.rollback()
			return nil, fmt.Errorf("persist reorder of task %d: %w", t.ID, err)
		}
	}

	events := make([]Event, 0, len(changed))
	for _, t := range changed {
		events = append(events, Event{Collection: CollectionTasks, Op: OpUpdated, ProjectID: projectID, EntityID: t.ID})
	}
	return events, nil
}

// reorderColumn moves a column to the position of another column and
// renumbers the board left to right.
func (e *Engine) reorderColumn(ctx context.Context, st *projectState, projectID, activeID, overID int64) ([]Event, error) {
	ordered := make([]*models.Column, 0, len(st.columns))
	for i := range st.columns {
		ordered = append(ordered, &st.columns[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].DisplayOrder != ordered[j].DisplayOrder {
			return ordered[i].DisplayOrder < ordered[j].DisplayOrder
		}
		return ordered[i].ID < ordered[j].ID
	})

	activeIdx, overIdx := -1, -1
	for i, c := range ordered {
		if c.ID == activeID {
			activeIdx = i
		}
		if c.ID == overID {
			overIdx = i
		}
	}
	if activeIdx < 0 || overIdx < 0 {
		return nil, nil
	}

	moved := ordered[activeIdx]
	ordered = append(ordered[:activeIdx], ordered[activeIdx+1:]...)
	ordered = append(ordered[:overIdx], append([]*models.Column{moved}, ordered[overIdx:]...)...)

	cmd := newCommand(st)
	var changed []*models.Column
	for i, c := range ordered {
		want := float64(i + 1)
		if c.DisplayOrder != want {
			cmd.saveColumn(c.ID)
			c.DisplayOrder = want
			changed = append(changed, c)
		}
	}

	for _, c := range changed {
		if err := e.store.UpdateColumn(ctx, *c); err != nil {
			cmd.rollback()
			return nil, fmt.Errorf("persist reorder of column %d: %w", c.ID, err)
		}
	}

	events := make([]Event, 0, len(changed))
	for _, c := range changed {
		events = append(events, Event{Collection: CollectionColumns, Op: OpUpdated, ProjectID: projectID, EntityID: c.ID})
	}
	return events, nil
}

func indexOfTask(list []*models.Task, id int64) int {
	for i, t := range list {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func insertTask(list []*models.Task, at int, t *models.Task) []*models.Task {
	if at < 0 || at > len(list) {
		at = len(list)
	}
	list = append(list, nil)
	copy(list[at+1:], list[at:])
	list[at] = t
	return list
}
