// Package sessions is the session manager (Component C): a finite state
// machine over idle/running/blocked/closing, bound one-to-one with a
// workspace provisioner working copy.
package sessions

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/televibecode/televibe/internal/errs"
	"github.com/televibecode/televibe/internal/store"
	"github.com/televibecode/televibe/internal/workspace"
)

const branchPrefix = "televibe"

// Manager owns session lifecycle: creation, state transitions, closure, and
// the task/session attachment relation.
type Manager struct {
	store *store.Store
	paths workspaceRoot
}

// workspaceRoot is the subset of paths.Project this package depends on,
// narrowed to keep the dependency explicit and mockable in tests.
type workspaceRoot interface {
	WorkspaceDir(sessionID string) string
}

func NewManager(st *store.Store, paths workspaceRoot) *Manager {
	return &Manager{store: st, paths: paths}
}

// Create assigns the next session id, resolves a branch (caller-supplied or
// generated), provisions the working copy, and inserts the session in idle.
func (m *Manager) Create(project store.Project, branch, displayName string) (*store.Session, error) {
	n, err := m.store.NextSessionNumber()
	if err != nil {
		return nil, err
	}
	sessionID := fmt.Sprintf("S%d", n)

	if branch == "" {
		branch = workspace.GenerateSessionBranch(branchPrefix, n, displayName)
	}

	wsPath := m.paths.WorkspaceDir(sessionID)
	prov := workspace.New(project.Path)
	createBranch := !prov.BranchExists(branch)
	if err := prov.Create(wsPath, branch, createBranch, project.DefaultBranch); err != nil {
		return nil, errs.Subprocess("sessions.Create", "provision working copy", err)
	}

	sess := store.Session{
		ID:             sessionID,
		ProjectID:      project.ID,
		DisplayName:    displayName,
		WorkspacePath:  wsPath,
		Branch:         branch,
		State:          store.SessionIdle,
		Mode:           store.ModeIsolatedWorkingCopy,
		LastActivityAt: time.Now().UTC(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.store.CreateSession(sess); err != nil {
		_ = prov.Remove(wsPath, true)
		return nil, err
	}
	return &sess, nil
}

// Close refuses to close a running session unless force is set; removes the
// working copy (force-removing if required) and deletes the session record.
// Closing a session whose project no longer exists is idempotent: the
// workspace is cleaned up and the session record removed regardless.
func (m *Manager) Close(sessionID string, force bool) error {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return err
	}

	if sess.State == store.SessionRunning && !force {
		return errs.Conflict("sessions.Close", "session "+sessionID+" has a running job; close with force")
	}

	project, err := m.store.GetProject(sess.ProjectID)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return err
	}
	if project != nil {
		prov := workspace.New(project.Path)
		if rmErr := prov.Remove(sess.WorkspacePath, force); rmErr != nil {
			return rmErr
		}
	} else if sess.WorkspacePath != "" {
		if rmErr := os.RemoveAll(sess.WorkspacePath); rmErr != nil {
			return errs.Fatal("sessions.Close", "remove workspace", rmErr)
		}
	}

	return m.store.DeleteSession(sessionID)
}

// SwitchActive updates the per-user active-session preference. Pure
// read-side: it does not touch session or workspace state.
func (m *Manager) SwitchActive(userID, sessionID string) error {
	return m.store.SetActiveSession(userID, sessionID)
}

// Attach maintains the session<->task bidirectional reference. Idempotent:
// attaching an already-attached task is a no-op.
func (m *Manager) Attach(sessionID, taskID string) error {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return err
	}

	for _, t := range sess.AttachedTaskIDs {
		if t == taskID {
			return nil
		}
	}
	sess.AttachedTaskIDs = append(sess.AttachedTaskIDs, taskID)
	if err := m.store.UpdateSession(*sess); err != nil {
		return err
	}

	task.SessionID = sessionID
	task.Branch = sess.Branch
	return m.store.UpdateTask(*task)
}

// Detach removes the session<->task bidirectional reference. Idempotent: a
// task not currently attached is a no-op.
func (m *Manager) Detach(sessionID, taskID string) error {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return err
	}

	idx := -1
	for i, t := range sess.AttachedTaskIDs {
		if t == taskID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	sess.AttachedTaskIDs = append(sess.AttachedTaskIDs[:idx], sess.AttachedTaskIDs[idx+1:]...)
	if err := m.store.UpdateSession(*sess); err != nil {
		return err
	}

	if task, err := m.store.GetTask(taskID); err == nil && task.SessionID == sessionID {
		task.SessionID = ""
		return m.store.UpdateTask(*task)
	}
	return nil
}

// EnrichInstruction prepends a small structured context block to text
// before it is sent to the assistant. The original text is preserved by the
// caller as the job's raw_input; this function only returns the enriched
// form sent as the instruction.
func EnrichInstruction(sess store.Session, project store.Project, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[session %s | project %s | branch %s | mode %s | workspace %s]\n\n",
		sess.ID, project.ID, sess.Branch, sess.Mode, sess.WorkspacePath)
	b.WriteString(text)
	return b.String()
}
