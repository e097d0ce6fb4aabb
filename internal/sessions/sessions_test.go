package sessions

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/televibecode/televibe/internal/store"
)

type testPaths struct{ workspacesDir string }

func (p testPaths) WorkspaceDir(sessionID string) string {
	return filepath.Join(p.workspacesDir, sessionID)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func newTestManager(t *testing.T) (*Manager, *store.Store, store.Project) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	repo := initRepo(t)
	proj := store.Project{ID: "demo", DisplayName: "Demo", Path: repo, DefaultBranch: "main", CreatedAt: time.Now()}
	if err := st.CreateProject(proj); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	paths := testPaths{workspacesDir: t.TempDir()}
	return NewManager(st, paths), st, proj
}

func TestCreateAssignsSequentialIDsAndBranch(t *testing.T) {
	mgr, _, proj := newTestManager(t)

	s1, err := mgr.Create(proj, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s1.ID != "S1" || s1.Branch != "televibe/S1" || s1.State != store.SessionIdle {
		t.Fatalf("unexpected session: %+v", s1)
	}

	s2, err := mgr.Create(proj, "", "fix auth")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s2.ID != "S2" || s2.Branch != "televibe/S2-fix-auth" {
		t.Fatalf("unexpected session: %+v", s2)
	}
}

func TestCloseRemovesWorkspaceAndSession(t *testing.T) {
	mgr, st, proj := newTestManager(t)

	s, err := mgr.Create(proj, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := mgr.Close(s.ID, false); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := st.GetSession(s.ID); err == nil {
		t.Fatal("expected session to be deleted after close")
	}
	if _, err := os.Stat(s.WorkspacePath); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err = %v", err)
	}
}

func TestCloseRefusesRunningWithoutForce(t *testing.T) {
	mgr, st, proj := newTestManager(t)

	s, err := mgr.Create(proj, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.State = store.SessionRunning
	if err := st.UpdateSession(*s); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	if err := mgr.Close(s.ID, false); err == nil {
		t.Fatal("expected Close to refuse a running session without force")
	}
	if err := mgr.Close(s.ID, true); err != nil {
		t.Fatalf("forced Close: %v", err)
	}
}

func TestAttachDetachIsBidirectionalAndIdempotent(t *testing.T) {
	mgr, st, proj := newTestManager(t)

	s, err := mgr.Create(proj, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	task := store.Task{ID: "t1", ProjectID: proj.ID, Title: "do thing", Status: store.TaskTodo,
		Priority: store.PriorityMedium, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := st.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := mgr.Attach(s.ID, "t1"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := mgr.Attach(s.ID, "t1"); err != nil {
		t.Fatalf("Attach (idempotent): %v", err)
	}

	sess, err := st.GetSession(s.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(sess.AttachedTaskIDs) != 1 || sess.AttachedTaskIDs[0] != "t1" {
		t.Fatalf("expected exactly one attached task, got %+v", sess.AttachedTaskIDs)
	}
	got, err := st.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.SessionID != s.ID || got.Branch != s.Branch {
		t.Fatalf("expected task to reference session, got %+v", got)
	}

	if err := mgr.Detach(s.ID, "t1"); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if err := mgr.Detach(s.ID, "t1"); err != nil {
		t.Fatalf("Detach (idempotent): %v", err)
	}
	sess, _ = st.GetSession(s.ID)
	if len(sess.AttachedTaskIDs) != 0 {
		t.Fatalf("expected no attached tasks, got %+v", sess.AttachedTaskIDs)
	}
}

func TestEnrichInstructionPreservesRawText(t *testing.T) {
	sess := store.Session{ID: "S1", Branch: "televibe/S1", Mode: store.ModeIsolatedWorkingCopy, WorkspacePath: "/ws/S1"}
	proj := store.Project{ID: "demo"}

	enriched := EnrichInstruction(sess, proj, "fix the bug")
	if !strings.Contains(enriched, "fix the bug") || !strings.Contains(enriched, "S1") || !strings.Contains(enriched, "demo") {
		t.Fatalf("expected enriched instruction to contain context and raw text, got %q", enriched)
	}
}
