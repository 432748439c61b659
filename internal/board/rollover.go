package board

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taskboard/internal/models"
)

// RunSweep migrates every unfinished task out of overdue sprints into the
// next upcoming sprint. When no future sprint exists there is nowhere to
// migrate to and the sweep is a no-op. The sweep is idempotent: migrated
// tasks land in a sprint that is not overdue, so a second run with no time
// passing finds nothing to do. A failure mid-sweep stops the sweep but
// migrations persisted before it still get their events and notifications;
// the partial count is returned alongside the error.
func (e *Engine) RunSweep(ctx context.Context, projectID int64) (int, *models.NotifyError, error) {
	migrated, events, err := e.sweepLocked(ctx, projectID)
	e.emit(events)

	var notifyErr *models.NotifyError
	for _, m := range migrated {
		msg := fmt.Sprintf("Task %q rolled over from sprint %q to sprint %q", m.task.Title, m.from, m.to)
		notifyErr = mergeNotifyErrors(notifyErr, e.notifyAssignees(ctx, m.task, models.NotifyTaskRolledOver, msg))
	}
	return len(migrated), notifyErr, err
}

type migration struct {
	task models.Task
	from string
	to   string
}

func (e *Engine) sweepLocked(ctx context.Context, projectID int64) ([]migration, []Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.state(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer st.markDirty()

	now := e.now()
	next := nextSprint(st.sprints, now)
	if next == nil {
		return nil, nil, nil
	}
	nextID := next.ID

	var migrated []migration
	var events []Event

	for i := range st.sprints {
		s := &st.sprints[i]
		if !s.Overdue(now) || s.ID == nextID {
			continue
		}

		for _, taskID := range append([]int64(nil), s.TaskIDs...) {
			task := st.taskByID(taskID)
			if task == nil {
				// Stale reference to a deleted task; drop it from the list.
				cmd := newCommand(st)
				cmd.saveSprint(s.ID)
				s.TaskIDs = removeID(append([]int64(nil), s.TaskIDs...), taskID)
				if err := e.store.UpdateSprint(ctx, *s); err != nil {
					cmd.rollback()
					return migrated, events, fmt.Errorf("prune sprint %d: %w", s.ID, err)
				}
				events = append(events, Event{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: s.ID})
				continue
			}
			if task.Status == e.doneColumn {
				continue // finished work stays with the closed sprint
			}

			fromName := s.Name
			cmd := newCommand(st)
			cmd.saveTask(taskID)
			before := cloneTask(*task)
			fromID := s.ID
			task.RolledOverFrom = &fromID
			id := nextID
			if err := e.relinkSprint(ctx, st, cmd, task, before, &id); err != nil {
				return migrated, events, fmt.Errorf("migrate task %d: %w", taskID, err)
			}

			migrated = append(migrated, migration{task: cloneTask(*task), from: fromName, to: next.Name})
			events = append(events,
				Event{Collection: CollectionTasks, Op: OpUpdated, ProjectID: projectID, EntityID: taskID},
				Event{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: s.ID},
				Event{Collection: CollectionSprints, Op: OpUpdated, ProjectID: projectID, EntityID: nextID},
			)
		}
	}

	return migrated, events, nil
}

// nextSprint returns the sprint with the earliest start date that has not
// started yet, or nil when every sprint is already underway or finished.
func nextSprint(sprints []models.Sprint, now time.Time) *models.Sprint {
	var next *models.Sprint
	for i := range sprints {
		s := &sprints[i]
		if s.StartDate.Before(now) {
			continue
		}
		if next == nil || s.StartDate.Before(next.StartDate) {
			next = s
		}
	}
	return next
}

// ProjectLister enumerates the projects the sweeper should cover.
type ProjectLister interface {
	ListProjectIDs(ctx context.Context) ([]int64, error)
}

// Sweeper drives the rollover sweep from a timer and from change events on
// the task and sprint collections.
type Sweeper struct {
	engine   *Engine
	projects ProjectLister
	logger   *slog.Logger
	interval time.Duration
	trigger  chan int64
}

// NewSweeper builds a sweeper and subscribes it to the engine's change feed.
func NewSweeper(engine *Engine, projects ProjectLister, logger *slog.Logger, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	s := &Sweeper{
		engine:   engine,
		projects: projects,
		logger:   logger,
		interval: interval,
		trigger:  make(chan int64, 64),
	}
	engine.Subscribe(func(evt Event) {
		if evt.Collection != CollectionTasks && evt.Collection != CollectionSprints {
			return
		}
		select {
		case s.trigger <- evt.ProjectID:
		default: // a sweep for this burst is already queued
		}
	})
	return s
}

// Run blocks until the context is cancelled, sweeping on every tick and on
// every task/sprint change signal.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAll(ctx)
		case projectID := <-s.trigger:
			s.sweep(ctx, projectID)
		}
	}
}

func (s *Sweeper) sweepAll(ctx context.Context) {
	ids, err := s.projects.ListProjectIDs(ctx)
	if err != nil {
		s.logger.Error("sweep: could not list projects", "error", err.Error())
		return
	}
	for _, id := range ids {
		s.sweep(ctx, id)
	}
}

func (s *Sweeper) sweep(ctx context.Context, projectID int64) {
	migrated, notifyErr, err := s.engine.RunSweep(ctx, projectID)
	if err != nil {
		s.logger.Error("rollover sweep failed", "project", projectID, "error", err.Error())
		return
	}
	if notifyErr != nil {
		s.logger.Warn("rollover sweep: notifications incomplete", "project", projectID, "error", notifyErr.Error())
	}
	if migrated > 0 {
		s.logger.Info("rollover sweep migrated tasks", "project", projectID, "count", migrated)
	}
}
