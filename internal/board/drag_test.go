package board_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"taskboard/internal/board"
)

func TestDragReorderWithinColumn(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fs := newFakeStore()
	seedBoard(fs)
	engine := newTestEngine(fs, &fakeNotifier{}, time.Now())
	ctx := context.Background()

	err := engine.Drag(ctx, testProject,
		board.DragItem{Kind: board.KindTask, ID: 1},
		board.DragItem{Kind: board.KindTask, ID: 2})
	assert.NoError(err)

	a, _ := fs.storedTask(1)
	b, _ := fs.storedTask(2)
	assert.Equal(float64(2), a.DisplayOrder)
	assert.Equal(float64(1), b.DisplayOrder)
	assert.Equal("todo", a.Status, "reorder never touches status")
	assert.Equal("todo", b.Status)

	for _, u := range fs.updates {
		assert.Equal("todo", u.Status)
		assert.Nil(u.SprintID, "reorder never touches sprint linkage")
	}
}

func TestDragMoveAcrossColumns(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fs := newFakeStore()
	seedBoard(fs)
	engine := newTestEngine(fs, &fakeNotifier{}, time.Now())
	ctx := context.Background()

	// Drop task A onto task C in "done": A lands before C.
	err := engine.Drag(ctx, testProject,
		board.DragItem{Kind: board.KindTask, ID: 1},
		board.DragItem{Kind: board.KindTask, ID: 3})
	assert.NoError(err)

	a, _ := fs.storedTask(1)
	c, _ := fs.storedTask(3)
	assert.Equal("done", a.Status)
	assert.Equal(float64(1), a.DisplayOrder)
	assert.Equal(float64(2), c.DisplayOrder)
}

func TestDragMoveOntoColumnAppends(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fs := newFakeStore()
	seedBoard(fs)
	engine := newTestEngine(fs, &fakeNotifier{}, time.Now())
	ctx := context.Background()

	// Drop task B onto the "done" column itself: B lands after C.
	err := engine.Drag(ctx, testProject,
		board.DragItem{Kind: board.KindTask, ID: 2},
		board.DragItem{Kind: board.KindColumn, ID: 12})
	assert.NoError(err)

	b, _ := fs.storedTask(2)
	assert.Equal("done", b.Status)
	assert.Equal(float64(2), b.DisplayOrder)
}

func TestDragColumnReorder(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fs := newFakeStore()
	seedBoard(fs)
	engine := newTestEngine(fs, &fakeNotifier{}, time.Now())
	ctx := context.Background()

	// Move "todo" to the right edge.
	err := engine.Drag(ctx, testProject,
		board.DragItem{Kind: board.KindColumn, ID: 10},
		board.DragItem{Kind: board.KindColumn, ID: 12})
	assert.NoError(err)

	snap, err := engine.Snapshot(ctx, testProject)
	assert.NoError(err)

	orders := map[string]float64{}
	for _, col := range snap.Columns {
		orders[col.Name] = col.DisplayOrder
	}
	assert.Equal(float64(1), orders["doing"])
	assert.Equal(float64(2), orders["done"])
	assert.Equal(float64(3), orders["todo"])
}

func TestDragNoOps(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fs := newFakeStore()
	seedBoard(fs)
	engine := newTestEngine(fs, &fakeNotifier{}, time.Now())
	ctx := context.Background()

	// Warm the cache so later call counts isolate the drags themselves.
	_, err := engine.Snapshot(ctx, testProject)
	assert.NoError(err)
	loaded := fs.totalCalls()

	// Dropping something on itself.
	assert.NoError(engine.Drag(ctx, testProject,
		board.DragItem{Kind: board.KindTask, ID: 1},
		board.DragItem{Kind: board.KindTask, ID: 1}))

	// Unresolvable endpoints.
	assert.NoError(engine.Drag(ctx, testProject,
		board.DragItem{Kind: board.KindTask, ID: 77},
		board.DragItem{Kind: board.KindTask, ID: 1}))
	assert.NoError(engine.Drag(ctx, testProject,
		board.DragItem{Kind: board.KindTask, ID: 1},
		board.DragItem{Kind: board.KindColumn, ID: 77}))

	// Dropping a column on a task.
	assert.NoError(engine.Drag(ctx, testProject,
		board.DragItem{Kind: board.KindColumn, ID: 10},
		board.DragItem{Kind: board.KindTask, ID: 1}))

	assert.Equal(loaded, fs.totalCalls(), "no-op drags must not write")
}

func TestDragRollbackOnStoreFailure(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fs := newFakeStore()
	seedBoard(fs)
	boom := errors.New("disk full")
	engine := newTestEngine(fs, &fakeNotifier{}, time.Now())
	ctx := context.Background()

	_, err := engine.Snapshot(ctx, testProject)
	assert.NoError(err)
	fs.failOn["UpdateTask"] = boom

	err = engine.Drag(ctx, testProject,
		board.DragItem{Kind: board.KindTask, ID: 1},
		board.DragItem{Kind: board.KindTask, ID: 2})
	assert.ErrorIs(err, boom)

	snap, err := engine.Snapshot(ctx, testProject)
	assert.NoError(err)
	orders := map[int64]float64{}
	statuses := map[int64]string{}
	for _, task := range snap.Tasks {
		orders[task.ID] = task.DisplayOrder
		statuses[task.ID] = task.Status
	}
	assert.Equal(float64(1), orders[1], "local state rolled back")
	assert.Equal(float64(2), orders[2])
	assert.Equal("todo", statuses[1])
}
