package store

import (
	"database/sql"
	"errors"

	"github.com/televibecode/televibe/internal/errs"
)

const jobSelect = `SELECT id, session_id, project_id, raw_input, instruction, status, approval_scope, log_path,
	result_summary, files_changed, error, created_at, started_at, finished_at FROM jobs`

func (s *Store) CreateJob(j Job) error {
	_, err := s.db.Exec(`INSERT INTO jobs
		(id, session_id, project_id, raw_input, instruction, status, approval_scope, log_path, result_summary,
		 files_changed, error, created_at, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.SessionID, j.ProjectID, j.RawInput, j.Instruction, string(j.Status), j.ApprovalScope, j.LogPath,
		j.ResultSummary, marshalList(j.FilesChanged), j.Error, timeStr(j.CreatedAt), timeStr(j.StartedAt), timeStr(j.FinishedAt))
	if err != nil {
		return errs.Fatal("store.CreateJob", "insert", err)
	}
	return nil
}

func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(jobSelect+` WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.GetJob", "job not found: "+id)
	}
	if err != nil {
		return nil, errs.Fatal("store.GetJob", "scan", err)
	}
	return j, nil
}

// UpdateJob enforces the terminal-status invariant: once a job is in
// {done, failed, canceled}, ordinary updates are refused; a corrective
// administrative path is not modeled here and must bypass this method.
func (s *Store) UpdateJob(j Job) error {
	existing, err := s.GetJob(j.ID)
	if err != nil {
		return err
	}
	if existing.Status.Terminal() {
		return errs.Conflict("store.UpdateJob", "job "+j.ID+" is terminal ("+string(existing.Status)+")")
	}

	res, err := s.db.Exec(`UPDATE jobs SET session_id=?, project_id=?, raw_input=?, instruction=?, status=?,
		approval_scope=?, log_path=?, result_summary=?, files_changed=?, error=?, started_at=?, finished_at=?
		WHERE id = ?`,
		j.SessionID, j.ProjectID, j.RawInput, j.Instruction, string(j.Status), j.ApprovalScope, j.LogPath,
		j.ResultSummary, marshalList(j.FilesChanged), j.Error, timeStr(j.StartedAt), timeStr(j.FinishedAt), j.ID)
	if err != nil {
		return errs.Fatal("store.UpdateJob", "update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.UpdateJob", "job not found: "+j.ID)
	}
	return nil
}

// JobsBySession returns the most recent jobs for a session, newest first,
// bounded by limit.
func (s *Store) JobsBySession(sessionID string, limit int) ([]Job, error) {
	rows, err := s.db.Query(jobSelect+` WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, errs.Fatal("store.JobsBySession", "query", err)
	}
	return scanJobs(rows)
}

// RunningJobs returns every job with status = running, across all sessions.
func (s *Store) RunningJobs() ([]Job, error) {
	rows, err := s.db.Query(jobSelect+` WHERE status = ?`, string(JobRunning))
	if err != nil {
		return nil, errs.Fatal("store.RunningJobs", "query", err)
	}
	return scanJobs(rows)
}

// JobsWaitingApproval returns every job with status = waiting-approval.
func (s *Store) JobsWaitingApproval() ([]Job, error) {
	rows, err := s.db.Query(jobSelect+` WHERE status = ?`, string(JobWaitingApproval))
	if err != nil {
		return nil, errs.Fatal("store.JobsWaitingApproval", "query", err)
	}
	return scanJobs(rows)
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var status, filesChanged, createdAt, startedAt, finishedAt string
	if err := row.Scan(&j.ID, &j.SessionID, &j.ProjectID, &j.RawInput, &j.Instruction, &status, &j.ApprovalScope,
		&j.LogPath, &j.ResultSummary, &filesChanged, &j.Error, &createdAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	j.FilesChanged = unmarshalList(filesChanged)
	j.CreatedAt = parseTime(createdAt)
	j.StartedAt = parseTime(startedAt)
	j.FinishedAt = parseTime(finishedAt)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errs.Fatal("store.scanJobs", "scan", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}
