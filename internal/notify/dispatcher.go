package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/models"
)

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error)
}

// PushFunc delivers a notification over the real-time channel. Delivery is
// best-effort; the persisted record is the source of truth.
type PushFunc func(models.Notification)

// Dispatcher builds, persists and pushes notifications.
type Dispatcher struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time

	mu     sync.Mutex
	pushes []PushFunc
}

// New constructs a dispatcher over the given store.
func New(store Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, logger: logger, clock: time.Now}
}

// OnPush registers a real-time delivery hook.
func (d *Dispatcher) OnPush(fn PushFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushes = append(d.pushes, fn)
}

// Notify persists a notification for one user and pushes it to every
// registered hook. A persistence failure is returned so the caller can report
// a partial-failure warning; push failures are swallowed.
func (d *Dispatcher) Notify(ctx context.Context, userID int64, typ, message, relatedType string, relatedID int64) error {
	n := models.Notification{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        typ,
		Message:     message,
		RelatedType: relatedType,
		RelatedID:   relatedID,
		CreatedAt:   d.clock(),
	}

	if err := d.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	d.mu.Lock()
	pushes := make([]PushFunc, len(d.pushes))
	copy(pushes, d.pushes)
	d.mu.Unlock()

	for _, push := range pushes {
		push(n)
	}
	return nil
}
