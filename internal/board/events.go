package board

// Collections named in change events.
const (
	CollectionTasks    = "tasks"
	CollectionColumns  = "columns"
	CollectionBacklogs = "backlogs"
	CollectionSprints  = "sprints"
)

// Event operations.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// Event signals that a collection changed and dependent views should refetch.
type Event struct {
	Collection string
	Op         string
	ProjectID  int64
	EntityID   int64
}

// Subscribe registers an observer for change events. Observers run
// synchronously after the mutation commits, so they must be fast; anything
// slow should hand off to its own goroutine.
func (e *Engine) Subscribe(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}
