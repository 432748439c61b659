package board

import (
	"sort"
	"strings"
	"sync"

	"taskboard/internal/models"
)

// Filter modes shared by the backlog and sprint filters: empty means
// inactive, FilterAll matches tasks with at least one link, FilterNone
// matches tasks with no link, and a numeric id string matches one grouping.
const (
	FilterAll  = "all"
	FilterNone = "none"
)

// Filters holds the active filter criteria for a board view. Every active
// filter must match (AND).
type Filters struct {
	Backlog  string // "", "all", "none", or a backlog id
	Sprint   string // "", "all", "none", or a sprint id
	User     string // exact assignee email
	Priority string // case-insensitive priority name
}

func (f Filters) active() bool {
	return f.Backlog != "" || f.Sprint != "" || f.User != "" || f.Priority != ""
}

// BoardView maps column name to the ordered tasks rendered in that column.
type BoardView map[string][]models.Task

// Projector derives per-column task lists from the raw collections. It is
// memoized on its inputs: projecting the same column/task slices with equal
// filters returns the identical view, so downstream renders can compare by
// reference.
type Projector struct {
	mu          sync.Mutex
	lastColumns []models.Column
	lastTasks   []models.Task
	lastFilters Filters
	lastView    BoardView
}

// NewProjector returns an empty projector.
func NewProjector() *Projector {
	return &Projector{}
}

// Project builds the board view. Tasks whose status names no known column are
// dropped. The projection itself has no side effects.
func (p *Projector) Project(columns []models.Column, tasks []models.Task, f Filters) BoardView {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastView != nil && sameColumns(p.lastColumns, columns) && sameTasks(p.lastTasks, tasks) && p.lastFilters == f {
		return p.lastView
	}

	view := project(columns, tasks, f)
	p.lastColumns = columns
	p.lastTasks = tasks
	p.lastFilters = f
	p.lastView = view
	return view
}

// project is the pure projection, exported through Projector.Project.
func project(columns []models.Column, tasks []models.Task, f Filters) BoardView {
	view := make(BoardView, len(columns))
	known := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		known[col.Name] = struct{}{}
		view[col.Name] = nil
	}

	for _, t := range tasks {
		if _, ok := known[t.Status]; !ok {
			continue
		}
		if !matches(t, f) {
			continue
		}
		view[t.Status] = append(view[t.Status], t)
	}

	for name := range view {
		list := view[name]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].DisplayOrder != list[j].DisplayOrder {
				return list[i].DisplayOrder < list[j].DisplayOrder
			}
			return list[i].ID < list[j].ID
		})
		view[name] = list
	}
	return view
}

func matches(t models.Task, f Filters) bool {
	if !f.active() {
		return true
	}
	if !matchGrouping(f.Backlog, len(t.BacklogIDs) > 0, func(id int64) bool { return t.HasBacklog(id) }) {
		return false
	}
	linked := t.SprintID != nil
	if !matchGrouping(f.Sprint, linked, func(id int64) bool { return linked && *t.SprintID == id }) {
		return false
	}
	if f.User != "" && !containsString(t.AssignedEmails, f.User) {
		return false
	}
	if f.Priority != "" && !strings.EqualFold(f.Priority, t.Priority) {
		return false
	}
	return true
}

// matchGrouping implements the shared three-mode semantics of the backlog and
// sprint filters.
func matchGrouping(mode string, linked bool, hasID func(int64) bool) bool {
	switch mode {
	case "":
		return true
	case FilterAll:
		return linked
	case FilterNone:
		return !linked
	default:
		id, ok := parseID64(mode)
		if !ok {
			return false
		}
		return hasID(id)
	}
}

func parseID64(s string) (int64, bool) {
	var id int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		id = id*10 + int64(r-'0')
	}
	return id, s != ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// sameColumns and sameTasks compare by slice identity, the memoization key:
// the engine hands out fresh slices only when something changed.
func sameColumns(a, b []models.Column) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

func sameTasks(a, b []models.Task) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}
