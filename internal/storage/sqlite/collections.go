package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"taskboard/internal/models"
)

// --- columns ---

// ListColumns returns a project's columns ordered left to right.
func (s *Store) ListColumns(ctx context.Context, projectID int64) ([]models.Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, display_order FROM columns WHERE project_id = ? ORDER BY display_order, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var cols []models.Column
	for rows.Next() {
		var c models.Column
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// CreateColumn inserts a board lane.
func (s *Store) CreateColumn(ctx context.Context, c models.Column) (models.Column, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO columns(project_id, name, display_order) VALUES(?, ?, ?)`, c.ProjectID, c.Name, c.DisplayOrder)
	if err != nil {
		return models.Column{}, fmt.Errorf("insert column: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Column{}, fmt.Errorf("column id: %w", err)
	}
	c.ID = id
	return c, nil
}

// UpdateColumn writes a column record back.
func (s *Store) UpdateColumn(ctx context.Context, c models.Column) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE columns SET name = ?, display_order = ? WHERE id = ?`, c.Name, c.DisplayOrder, c.ID)
	if err != nil {
		return fmt.Errorf("update column: %w", err)
	}
	return requireAffected(res, "column", c.ID)
}

// DeleteColumn removes an empty column.
func (s *Store) DeleteColumn(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM columns WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	return requireAffected(res, "column", id)
}

// DeleteColumnCascade removes the column and every task sitting in it in a
// single transaction, so either both disappear or neither does.
func (s *Store) DeleteColumnCascade(ctx context.Context, c models.Column) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cascade delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ? AND status = ?`, c.ProjectID, c.Name); err != nil {
		return fmt.Errorf("cascade delete tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM columns WHERE id = ?`, c.ID); err != nil {
		return fmt.Errorf("cascade delete column: %w", err)
	}
	return tx.Commit()
}

// RenameColumnCascade writes the renamed column and moves its tasks onto the
// new status name in a single transaction.
func (s *Store) RenameColumnCascade(ctx context.Context, c models.Column, oldName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rename: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE columns SET name = ? WHERE id = ?`, c.Name, c.ID); err != nil {
		return fmt.Errorf("rename column: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE project_id = ? AND status = ?`,
		c.Name, c.ProjectID, oldName); err != nil {
		return fmt.Errorf("rename task statuses: %w", err)
	}
	return tx.Commit()
}

// --- tasks ---

const taskColumns = `id, project_id, title, description, priority, status, display_order,
    assigned_emails, backlog_ids, sprint_id, rolled_over_from, start_date, end_date,
    subtasks, total_cost, created_at, updated_at`

// ListTasks returns a project's tasks ordered by status and position.
func (s *Store) ListTasks(ctx context.Context, projectID int64) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY status, display_order, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// CreateTask inserts a task record.
func (s *Store) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	emails, backlogs, subtasks, err := encodeTaskJSON(t)
	if err != nil {
		return models.Task{}, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks(
        project_id, title, description, priority, status, display_order,
        assigned_emails, backlog_ids, sprint_id, rolled_over_from,
        start_date, end_date, subtasks, total_cost
    ) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ProjectID, t.Title, t.Description, t.Priority, t.Status, t.DisplayOrder,
		emails, backlogs, t.SprintID, t.RolledOverFrom,
		t.StartDate, t.EndDate, subtasks, t.TotalCost)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Task{}, fmt.Errorf("task id: %w", err)
	}
	return s.GetTask(ctx, id)
}

// UpdateTask writes a full task record back.
func (s *Store) UpdateTask(ctx context.Context, t models.Task) error {
	emails, backlogs, subtasks, err := encodeTaskJSON(t)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET
        title = ?, description = ?, priority = ?, status = ?, display_order = ?,
        assigned_emails = ?, backlog_ids = ?, sprint_id = ?, rolled_over_from = ?,
        start_date = ?, end_date = ?, subtasks = ?, total_cost = ?,
        updated_at = CURRENT_TIMESTAMP
    WHERE id = ?`,
		t.Title, t.Description, t.Priority, t.Status, t.DisplayOrder,
		emails, backlogs, t.SprintID, t.RolledOverFrom,
		t.StartDate, t.EndDate, subtasks, t.TotalCost, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireAffected(res, "task", t.ID)
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(res, "task", id)
}

// --- backlogs ---

// ListBacklogs returns a project's backlogs.
func (s *Store) ListBacklogs(ctx context.Context, projectID int64) ([]models.Backlog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, description, task_ids FROM backlogs WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list backlogs: %w", err)
	}
	defer rows.Close()

	var out []models.Backlog
	for rows.Next() {
		var b models.Backlog
		var taskIDs string
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.Name, &b.Description, &taskIDs); err != nil {
			return nil, fmt.Errorf("scan backlog: %w", err)
		}
		if err := json.Unmarshal([]byte(taskIDs), &b.TaskIDs); err != nil {
			return nil, fmt.Errorf("decode backlog task ids: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateBacklog inserts a backlog record.
func (s *Store) CreateBacklog(ctx context.Context, b models.Backlog) (models.Backlog, error) {
	taskIDs, err := encodeIDs(b.TaskIDs)
	if err != nil {
		return models.Backlog{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO backlogs(project_id, name, description, task_ids) VALUES(?, ?, ?, ?)`,
		b.ProjectID, b.Name, b.Description, taskIDs)
	if err != nil {
		return models.Backlog{}, fmt.Errorf("insert backlog: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Backlog{}, fmt.Errorf("backlog id: %w", err)
	}
	b.ID = id
	return b, nil
}

// UpdateBacklog writes a backlog record back.
func (s *Store) UpdateBacklog(ctx context.Context, b models.Backlog) error {
	taskIDs, err := encodeIDs(b.TaskIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE backlogs SET name = ?, description = ?, task_ids = ? WHERE id = ?`,
		b.Name, b.Description, taskIDs, b.ID)
	if err != nil {
		return fmt.Errorf("update backlog: %w", err)
	}
	return requireAffected(res, "backlog", b.ID)
}

// DeleteBacklog removes a backlog by id.
func (s *Store) DeleteBacklog(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backlogs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete backlog: %w", err)
	}
	return requireAffected(res, "backlog", id)
}

// --- sprints ---

// ListSprints returns a project's sprints ordered by start date.
func (s *Store) ListSprints(ctx context.Context, projectID int64) ([]models.Sprint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, description, start_date, end_date, task_ids FROM sprints WHERE project_id = ? ORDER BY start_date, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()

	var out []models.Sprint
	for rows.Next() {
		var sp models.Sprint
		var taskIDs string
		if err := rows.Scan(&sp.ID, &sp.ProjectID, &sp.Name, &sp.Description, &sp.StartDate, &sp.EndDate, &taskIDs); err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		if err := json.Unmarshal([]byte(taskIDs), &sp.TaskIDs); err != nil {
			return nil, fmt.Errorf("decode sprint task ids: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// CreateSprint inserts a sprint record.
func (s *Store) CreateSprint(ctx context.Context, sp models.Sprint) (models.Sprint, error) {
	taskIDs, err := encodeIDs(sp.TaskIDs)
	if err != nil {
		return models.Sprint{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sprints(project_id, name, description, start_date, end_date, task_ids) VALUES(?, ?, ?, ?, ?, ?)`,
		sp.ProjectID, sp.Name, sp.Description, sp.StartDate, sp.EndDate, taskIDs)
	if err != nil {
		return models.Sprint{}, fmt.Errorf("insert sprint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Sprint{}, fmt.Errorf("sprint id: %w", err)
	}
	sp.ID = id
	return sp, nil
}

// UpdateSprint writes a sprint record back.
func (s *Store) UpdateSprint(ctx context.Context, sp models.Sprint) error {
	taskIDs, err := encodeIDs(sp.TaskIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sprints SET name = ?, description = ?, start_date = ?, end_date = ?, task_ids = ? WHERE id = ?`,
		sp.Name, sp.Description, sp.StartDate, sp.EndDate, taskIDs, sp.ID)
	if err != nil {
		return fmt.Errorf("update sprint: %w", err)
	}
	return requireAffected(res, "sprint", sp.ID)
}

// DeleteSprint removes a sprint by id.
func (s *Store) DeleteSprint(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sprints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sprint: %w", err)
	}
	return requireAffected(res, "sprint", id)
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	var emails, backlogs, subtasks string
	var sprintID, rolledFrom sql.NullInt64
	var start, end sql.NullTime

	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Priority, &t.Status, &t.DisplayOrder,
		&emails, &backlogs, &sprintID, &rolledFrom, &start, &end,
		&subtasks, &t.TotalCost, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Task{}, err
		}
		return models.Task{}, fmt.Errorf("scan task: %w", err)
	}

	if err := json.Unmarshal([]byte(emails), &t.AssignedEmails); err != nil {
		return models.Task{}, fmt.Errorf("decode assigned emails: %w", err)
	}
	if err := json.Unmarshal([]byte(backlogs), &t.BacklogIDs); err != nil {
		return models.Task{}, fmt.Errorf("decode backlog ids: %w", err)
	}
	if err := json.Unmarshal([]byte(subtasks), &t.Subtasks); err != nil {
		return models.Task{}, fmt.Errorf("decode subtasks: %w", err)
	}
	if sprintID.Valid {
		t.SprintID = &sprintID.Int64
	}
	if rolledFrom.Valid {
		t.RolledOverFrom = &rolledFrom.Int64
	}
	if start.Valid {
		t.StartDate = &start.Time
	}
	if end.Valid {
		t.EndDate = &end.Time
	}
	return t, nil
}

func encodeTaskJSON(t models.Task) (emails, backlogs, subtasks string, err error) {
	e, err := json.Marshal(emptyStrings(t.AssignedEmails))
	if err != nil {
		return "", "", "", fmt.Errorf("encode assigned emails: %w", err)
	}
	b, err := encodeIDs(t.BacklogIDs)
	if err != nil {
		return "", "", "", err
	}
	subs := t.Subtasks
	if subs == nil {
		subs = []models.Subtask{}
	}
	st, err := json.Marshal(subs)
	if err != nil {
		return "", "", "", fmt.Errorf("encode subtasks: %w", err)
	}
	return string(e), b, string(st), nil
}

func encodeIDs(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	out, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode ids: %w", err)
	}
	return string(out), nil
}

func emptyStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func requireAffected(res sql.Result, kind string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, models.ErrNotFound)
	}
	return nil
}
