package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectCreateGetDuplicate(t *testing.T) {
	s := openTest(t)
	p := Project{ID: "demo", DisplayName: "Demo", Path: "/repos/demo", DefaultBranch: "main", CreatedAt: time.Now()}
	if err := s.CreateProject(p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	got, err := s.GetProject("demo")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.DisplayName != "Demo" || got.Path != "/repos/demo" {
		t.Fatalf("unexpected project: %+v", got)
	}

	if err := s.CreateProject(p); err == nil {
		t.Fatal("expected conflict creating duplicate project id")
	}
}

func TestNextSessionNumber(t *testing.T) {
	s := openTest(t)
	n, err := s.NextSessionNumber()
	if err != nil {
		t.Fatalf("NextSessionNumber: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 on empty store, got %d", n)
	}

	mustCreateProject(t, s, "demo")
	for _, id := range []string{"S1", "S3", "S2"} {
		mustCreateSession(t, s, id, "demo")
	}

	n, err = s.NextSessionNumber()
	if err != nil {
		t.Fatalf("NextSessionNumber: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 after S1,S2,S3 exist, got %d", n)
	}
}

func TestActiveSessionsExcludesClosing(t *testing.T) {
	s := openTest(t)
	mustCreateProject(t, s, "demo")
	mustCreateSession(t, s, "S1", "demo")
	mustCreateSession(t, s, "S2", "demo")

	sess, err := s.GetSession("S2")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	sess.State = SessionClosing
	if err := s.UpdateSession(*sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	active, err := s.ActiveSessions()
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(active) != 1 || active[0].ID != "S1" {
		t.Fatalf("expected only S1 active, got %+v", active)
	}
}

func TestJobTerminalCannotBeMutated(t *testing.T) {
	s := openTest(t)
	mustCreateProject(t, s, "demo")
	mustCreateSession(t, s, "S1", "demo")

	j := Job{ID: "j1", SessionID: "S1", ProjectID: "demo", RawInput: "do x", Instruction: "do x",
		Status: JobRunning, CreatedAt: time.Now()}
	if err := s.CreateJob(j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	j.Status = JobDone
	j.FinishedAt = time.Now()
	if err := s.UpdateJob(j); err != nil {
		t.Fatalf("terminalizing job: %v", err)
	}

	j.ResultSummary = "changed after terminal"
	if err := s.UpdateJob(j); err == nil {
		t.Fatal("expected error mutating a terminal job's fields while status is re-asserted as terminal")
	}
}

func TestPendingTasksOrderedByPriorityThenCreated(t *testing.T) {
	s := openTest(t)
	mustCreateProject(t, s, "demo")

	base := time.Now()
	tasks := []Task{
		{ID: "t1", ProjectID: "demo", Title: "low-1", Status: TaskTodo, Priority: PriorityLow, CreatedAt: base},
		{ID: "t2", ProjectID: "demo", Title: "crit-1", Status: TaskTodo, Priority: PriorityCritical, CreatedAt: base.Add(time.Second)},
		{ID: "t3", ProjectID: "demo", Title: "high-1", Status: TaskInProgress, Priority: PriorityHigh, CreatedAt: base.Add(2 * time.Second)},
		{ID: "t4", ProjectID: "demo", Title: "crit-2", Status: TaskTodo, Priority: PriorityCritical, CreatedAt: base.Add(3 * time.Second)},
		{ID: "t5", ProjectID: "demo", Title: "done", Status: TaskDone, Priority: PriorityCritical, CreatedAt: base.Add(4 * time.Second)},
	}
	for _, tk := range tasks {
		tk.UpdatedAt = tk.CreatedAt
		if err := s.CreateTask(tk); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	pending, err := s.PendingTasksByProject("demo")
	if err != nil {
		t.Fatalf("PendingTasksByProject: %v", err)
	}
	wantOrder := []string{"t2", "t4", "t3", "t1"}
	if len(pending) != len(wantOrder) {
		t.Fatalf("expected %d pending tasks, got %d", len(wantOrder), len(pending))
	}
	for i, id := range wantOrder {
		if pending[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, pending[i].ID)
		}
	}
}

func TestApprovalRejectsUnknownType(t *testing.T) {
	s := openTest(t)
	mustCreateProject(t, s, "demo")
	mustCreateSession(t, s, "S1", "demo")
	mustCreateJob(t, s, "j1", "S1", "demo")

	a := Approval{ID: "a1", JobID: "j1", SessionID: "S1", ProjectID: "demo",
		Type: "not-a-real-type", State: ApprovalPending, CreatedAt: time.Now()}
	if err := s.CreateApproval(a); err == nil {
		t.Fatal("expected validation error for unknown approval type")
	}
}

func TestPendingApprovalForJob(t *testing.T) {
	s := openTest(t)
	mustCreateProject(t, s, "demo")
	mustCreateSession(t, s, "S1", "demo")
	mustCreateJob(t, s, "j1", "S1", "demo")

	a := Approval{ID: "a1", JobID: "j1", SessionID: "S1", ProjectID: "demo",
		Type: ApprovalShellCommand, Description: "run rm -rf", State: ApprovalPending, CreatedAt: time.Now()}
	if err := s.CreateApproval(a); err != nil {
		t.Fatalf("CreateApproval: %v", err)
	}

	got, err := s.PendingApprovalForJob("j1")
	if err != nil {
		t.Fatalf("PendingApprovalForJob: %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("unexpected approval: %+v", got)
	}
}

func mustCreateProject(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.CreateProject(Project{ID: id, DisplayName: id, Path: "/repos/" + id, DefaultBranch: "main", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateProject(%s): %v", id, err)
	}
}

func mustCreateSession(t *testing.T, s *Store, id, projectID string) {
	t.Helper()
	sess := Session{ID: id, ProjectID: projectID, WorkspacePath: "/ws/" + id, Branch: "televibe/" + id,
		State: SessionIdle, Mode: ModeIsolatedWorkingCopy, LastActivityAt: time.Now(), CreatedAt: time.Now()}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession(%s): %v", id, err)
	}
}

func mustCreateJob(t *testing.T, s *Store, id, sessionID, projectID string) {
	t.Helper()
	j := Job{ID: id, SessionID: sessionID, ProjectID: projectID, RawInput: "x", Instruction: "x",
		Status: JobWaitingApproval, CreatedAt: time.Now()}
	if err := s.CreateJob(j); err != nil {
		t.Fatalf("CreateJob(%s): %v", id, err)
	}
}
