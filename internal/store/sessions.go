package store

import (
	"database/sql"
	"errors"
	"regexp"
	"strconv"

	"github.com/televibecode/televibe/internal/errs"
)

var sessionIDPattern = regexp.MustCompile(`^S(\d+)$`)

// NextSessionNumber returns max(n over existing S<n>) + 1, or 1 if none.
func (s *Store) NextSessionNumber() (int, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions`)
	if err != nil {
		return 0, errs.Fatal("store.NextSessionNumber", "query ids", err)
	}
	defer rows.Close()

	max := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, errs.Fatal("store.NextSessionNumber", "scan", err)
		}
		if m := sessionIDPattern.FindStringSubmatch(id); m != nil {
			n, _ := strconv.Atoi(m[1])
			if n > max {
				max = n
			}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, errs.Fatal("store.NextSessionNumber", "iterate", err)
	}
	return max + 1, nil
}

func (s *Store) CreateSession(sess Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Fatal("store.CreateSession", "begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO sessions
		(id, project_id, display_name, workspace_path, branch, state, mode, current_job_id, last_activity_at, last_summary, attached_task_ids, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.ProjectID, sess.DisplayName, sess.WorkspacePath, sess.Branch, string(sess.State),
		string(sess.Mode), sess.CurrentJobID, timeStr(sess.LastActivityAt), sess.LastSummary,
		marshalList(sess.AttachedTaskIDs), timeStr(sess.CreatedAt))
	if err != nil {
		return errs.Fatal("store.CreateSession", "insert", err)
	}
	return tx.Commit()
}

func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(sessionSelect+` WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.GetSession", "session not found: "+id)
	}
	if err != nil {
		return nil, errs.Fatal("store.GetSession", "scan", err)
	}
	return sess, nil
}

// ActiveSessions returns sessions with state != closing, ordered by recency.
func (s *Store) ActiveSessions() ([]Session, error) {
	rows, err := s.db.Query(sessionSelect+` WHERE state != ? ORDER BY last_activity_at DESC`, string(SessionClosing))
	if err != nil {
		return nil, errs.Fatal("store.ActiveSessions", "query", err)
	}
	return scanSessions(rows)
}

func (s *Store) SessionsByProject(projectID string) ([]Session, error) {
	rows, err := s.db.Query(sessionSelect+` WHERE project_id = ? ORDER BY last_activity_at DESC`, projectID)
	if err != nil {
		return nil, errs.Fatal("store.SessionsByProject", "query", err)
	}
	return scanSessions(rows)
}

func (s *Store) AllSessions() ([]Session, error) {
	rows, err := s.db.Query(sessionSelect + ` ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, errs.Fatal("store.AllSessions", "query", err)
	}
	return scanSessions(rows)
}

func (s *Store) UpdateSession(sess Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Fatal("store.UpdateSession", "begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE sessions SET project_id=?, display_name=?, workspace_path=?, branch=?, state=?, mode=?,
		current_job_id=?, last_activity_at=?, last_summary=?, attached_task_ids=? WHERE id = ?`,
		sess.ProjectID, sess.DisplayName, sess.WorkspacePath, sess.Branch, string(sess.State), string(sess.Mode),
		sess.CurrentJobID, timeStr(sess.LastActivityAt), sess.LastSummary, marshalList(sess.AttachedTaskIDs), sess.ID)
	if err != nil {
		return errs.Fatal("store.UpdateSession", "update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.UpdateSession", "session not found: "+sess.ID)
	}
	return tx.Commit()
}

func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return errs.Fatal("store.DeleteSession", "delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.DeleteSession", "session not found: "+id)
	}
	return nil
}

const sessionSelect = `SELECT id, project_id, display_name, workspace_path, branch, state, mode, current_job_id,
	last_activity_at, last_summary, attached_task_ids, created_at FROM sessions`

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var state, mode, lastActivity, attached, createdAt string
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.DisplayName, &sess.WorkspacePath, &sess.Branch,
		&state, &mode, &sess.CurrentJobID, &lastActivity, &sess.LastSummary, &attached, &createdAt); err != nil {
		return nil, err
	}
	sess.State = SessionState(state)
	sess.Mode = ExecutionMode(mode)
	sess.LastActivityAt = parseTime(lastActivity)
	sess.AttachedTaskIDs = unmarshalList(attached)
	sess.CreatedAt = parseTime(createdAt)
	return &sess, nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errs.Fatal("store.scanSessions", "scan", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}
