package store

import (
	"database/sql"
	"errors"

	"github.com/televibecode/televibe/internal/errs"
)

const approvalSelect = `SELECT id, job_id, session_id, project_id, type, description, details, state,
	resolved_by, resolved_at, chat_locator, created_at FROM approvals`

func (s *Store) CreateApproval(a Approval) error {
	if !ValidApprovalType(a.Type) {
		return errs.Validation("store.CreateApproval", "unknown approval type: "+string(a.Type))
	}
	_, err := s.db.Exec(`INSERT INTO approvals
		(id, job_id, session_id, project_id, type, description, details, state, resolved_by, resolved_at, chat_locator, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.JobID, a.SessionID, a.ProjectID, string(a.Type), a.Description, marshalMap(a.Details),
		string(a.State), a.ResolvedBy, timeStr(a.ResolvedAt), a.ChatLocator, timeStr(a.CreatedAt))
	if err != nil {
		return errs.Fatal("store.CreateApproval", "insert", err)
	}
	return nil
}

func (s *Store) GetApproval(id string) (*Approval, error) {
	row := s.db.QueryRow(approvalSelect+` WHERE id = ?`, id)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.GetApproval", "approval not found: "+id)
	}
	if err != nil {
		return nil, errs.Fatal("store.GetApproval", "scan", err)
	}
	return a, nil
}

// PendingApprovalForJob returns the single pending approval for a job, if
// any — the invariant guarantees there is at most one.
func (s *Store) PendingApprovalForJob(jobID string) (*Approval, error) {
	row := s.db.QueryRow(approvalSelect+` WHERE job_id = ? AND state = ?`, jobID, string(ApprovalPending))
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.PendingApprovalForJob", "no pending approval for job: "+jobID)
	}
	if err != nil {
		return nil, errs.Fatal("store.PendingApprovalForJob", "scan", err)
	}
	return a, nil
}

func (s *Store) PendingApprovals() ([]Approval, error) {
	rows, err := s.db.Query(approvalSelect+` WHERE state = ? ORDER BY created_at ASC`, string(ApprovalPending))
	if err != nil {
		return nil, errs.Fatal("store.PendingApprovals", "query", err)
	}
	return scanApprovals(rows)
}

func (s *Store) PendingApprovalsBySession(sessionID string) ([]Approval, error) {
	rows, err := s.db.Query(approvalSelect+` WHERE session_id = ? AND state = ? ORDER BY created_at ASC`,
		sessionID, string(ApprovalPending))
	if err != nil {
		return nil, errs.Fatal("store.PendingApprovalsBySession", "query", err)
	}
	return scanApprovals(rows)
}

// UpdateApproval writes the approval's mutable fields without checking its
// current state. approval.approve and approval.deny enforce the
// pending-only invariant at the Component G layer.
func (s *Store) UpdateApproval(a Approval) error {
	res, err := s.db.Exec(`UPDATE approvals SET description=?, details=?, state=?, resolved_by=?, resolved_at=?,
		chat_locator=? WHERE id = ?`,
		a.Description, marshalMap(a.Details), string(a.State), a.ResolvedBy, timeStr(a.ResolvedAt), a.ChatLocator, a.ID)
	if err != nil {
		return errs.Fatal("store.UpdateApproval", "update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.UpdateApproval", "approval not found: "+a.ID)
	}
	return nil
}

func scanApproval(row scanner) (*Approval, error) {
	var a Approval
	var typ, details, state, resolvedAt, createdAt string
	if err := row.Scan(&a.ID, &a.JobID, &a.SessionID, &a.ProjectID, &typ, &a.Description, &details, &state,
		&a.ResolvedBy, &resolvedAt, &a.ChatLocator, &createdAt); err != nil {
		return nil, err
	}
	a.Type = ApprovalType(typ)
	a.Details = unmarshalMap(details)
	a.State = ApprovalState(state)
	a.ResolvedAt = parseTime(resolvedAt)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func scanApprovals(rows *sql.Rows) ([]Approval, error) {
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, errs.Fatal("store.scanApprovals", "scan", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
