package board_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"taskboard/internal/board"
	"taskboard/internal/models"
)

func TestSubscribeReceivesMutationEvents(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fs := newFakeStore()
	seedBoard(fs)
	engine := newTestEngine(fs, &fakeNotifier{}, time.Now())

	var mu sync.Mutex
	var got []board.Event
	engine.Subscribe(func(evt board.Event) {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
	})

	created, _, err := engine.CreateTask(actorCtx("alice@example.com"), testProject,
		models.Task{Title: "observed", Status: "todo"})
	assert.NoError(err)

	mu.Lock()
	defer mu.Unlock()
	if assert.Len(got, 1) {
		assert.Equal(board.CollectionTasks, got[0].Collection)
		assert.Equal(board.OpCreated, got[0].Op)
		assert.Equal(testProject, got[0].ProjectID)
		assert.Equal(created.ID, got[0].EntityID)
	}
}
