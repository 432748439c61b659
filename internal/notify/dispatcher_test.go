package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"taskboard/internal/models"
	"taskboard/internal/notify"
)

type memStore struct {
	mu    sync.Mutex
	saved []models.Notification
	err   error
}

func (m *memStore) CreateNotification(ctx context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, n)
	return nil
}

func (m *memStore) ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.saved {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyPersistsAndPushes(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	store := &memStore{}
	d := notify.New(store, testLogger())

	var pushed []models.Notification
	d.OnPush(func(n models.Notification) { pushed = append(pushed, n) })

	err := d.Notify(context.Background(), 5, models.NotifyTaskAssigned, "hello", "task", 42)
	assert.NoError(err)

	if assert.Len(store.saved, 1) {
		n := store.saved[0]
		assert.NotEmpty(n.ID)
		assert.Equal(int64(5), n.UserID)
		assert.Equal(models.NotifyTaskAssigned, n.Type)
		assert.Equal("hello", n.Message)
		assert.Equal("task", n.RelatedType)
		assert.Equal(int64(42), n.RelatedID)
		assert.False(n.CreatedAt.IsZero())
	}
	if assert.Len(pushed, 1) {
		assert.Equal(store.saved[0].ID, pushed[0].ID)
	}
}

func TestNotifyReturnsPersistenceFailure(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	boom := errors.New("disk full")
	store := &memStore{err: boom}
	d := notify.New(store, testLogger())

	pushes := 0
	d.OnPush(func(models.Notification) { pushes++ })

	err := d.Notify(context.Background(), 5, models.NotifyTaskUpdated, "hello", "task", 42)
	assert.ErrorIs(err, boom)
	assert.Equal(0, pushes, "nothing is pushed when the record was not persisted")
}

func TestNotifyDistinctIDs(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	store := &memStore{}
	d := notify.New(store, testLogger())

	assert.NoError(d.Notify(context.Background(), 1, models.NotifyTaskUpdated, "a", "task", 1))
	assert.NoError(d.Notify(context.Background(), 1, models.NotifyTaskUpdated, "b", "task", 1))

	assert.NotEqual(store.saved[0].ID, store.saved[1].ID)
}
