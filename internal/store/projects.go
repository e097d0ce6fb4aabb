package store

import (
	"database/sql"
	"errors"

	"github.com/televibecode/televibe/internal/errs"
)

func (s *Store) CreateProject(p Project) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Fatal("store.CreateProject", "begin tx", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, p.ID).Scan(&exists); err == nil {
		return errs.Conflict("store.CreateProject", "project id already exists: "+p.ID)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return errs.Fatal("store.CreateProject", "check existing project", err)
	}

	_, err = tx.Exec(`INSERT INTO projects (id, display_name, path, remote_url, default_branch, tasks_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DisplayName, p.Path, p.RemoteURL, p.DefaultBranch, p.TasksDir, timeStr(p.CreatedAt))
	if err != nil {
		return errs.Fatal("store.CreateProject", "insert project", err)
	}
	return tx.Commit()
}

func (s *Store) GetProject(id string) (*Project, error) {
	row := s.db.QueryRow(`SELECT id, display_name, path, remote_url, default_branch, tasks_dir, created_at
		FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.GetProject", "project not found: "+id)
	}
	if err != nil {
		return nil, errs.Fatal("store.GetProject", "scan project", err)
	}
	return p, nil
}

func (s *Store) ListProjects() ([]Project, error) {
	rows, err := s.db.Query(`SELECT id, display_name, path, remote_url, default_branch, tasks_dir, created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, errs.Fatal("store.ListProjects", "query", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, errs.Fatal("store.ListProjects", "scan", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project. Callers (Component C) must ensure no
// non-terminal sessions reference it first, per the Project entity's
// deletion invariant.
func (s *Store) DeleteProject(id string) error {
	_, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return errs.Fatal("store.DeleteProject", "delete", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*Project, error) {
	var p Project
	var createdAt string
	if err := row.Scan(&p.ID, &p.DisplayName, &p.Path, &p.RemoteURL, &p.DefaultBranch, &p.TasksDir, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}
