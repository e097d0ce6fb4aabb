package store

import (
	"database/sql"
	"errors"

	"github.com/televibecode/televibe/internal/errs"
)

const taskSelect = `SELECT id, project_id, title, description, status, priority, assignee, session_id, branch, tags,
	created_at, updated_at FROM tasks`

func (s *Store) CreateTask(t Task) error {
	_, err := s.db.Exec(`INSERT INTO tasks
		(id, project_id, title, description, status, priority, assignee, session_id, branch, tags, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, t.Description, string(t.Status), string(t.Priority), t.Assignee,
		t.SessionID, t.Branch, marshalList(t.Tags), timeStr(t.CreatedAt), timeStr(t.UpdatedAt))
	if err != nil {
		return errs.Fatal("store.CreateTask", "insert", err)
	}
	return nil
}

func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(taskSelect+` WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.GetTask", "task not found: "+id)
	}
	if err != nil {
		return nil, errs.Fatal("store.GetTask", "scan", err)
	}
	return t, nil
}

func (s *Store) UpdateTask(t Task) error {
	res, err := s.db.Exec(`UPDATE tasks SET project_id=?, title=?, description=?, status=?, priority=?, assignee=?,
		session_id=?, branch=?, tags=?, updated_at=? WHERE id = ?`,
		t.ProjectID, t.Title, t.Description, string(t.Status), string(t.Priority), t.Assignee,
		t.SessionID, t.Branch, marshalList(t.Tags), timeStr(t.UpdatedAt), t.ID)
	if err != nil {
		return errs.Fatal("store.UpdateTask", "update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.UpdateTask", "task not found: "+t.ID)
	}
	return nil
}

// PendingTasksByProject returns todo/in-progress/blocked/needs-review tasks
// ordered by (priority rank, created_at ascending), rank(critical) <
// rank(high) < rank(medium) < rank(low). SQLite has no native enum
// ordering, so the rank is computed with a CASE expression.
func (s *Store) PendingTasksByProject(projectID string) ([]Task, error) {
	rows, err := s.db.Query(taskSelect+`
		WHERE project_id = ? AND status != ?
		ORDER BY CASE priority
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			WHEN 'low' THEN 3
			ELSE 4
		END ASC, created_at ASC`, projectID, string(TaskDone))
	if err != nil {
		return nil, errs.Fatal("store.PendingTasksByProject", "query", err)
	}
	return scanTasks(rows)
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	var status, priority, tags, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &status, &priority, &t.Assignee,
		&t.SessionID, &t.Branch, &tags, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Status = TaskStatus(status)
	t.Priority = TaskPriority(priority)
	t.Tags = unmarshalList(tags)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errs.Fatal("store.scanTasks", "scan", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
