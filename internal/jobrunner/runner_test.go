package jobrunner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/televibecode/televibe/internal/store"
)

type fakeProcess struct {
	lines       chan string
	waitErr     error
	terminated  bool
	killed      bool
	done        chan struct{}
}

func newFakeProcess(lines []string) *fakeProcess {
	p := &fakeProcess{lines: make(chan string, len(lines)+1), done: make(chan struct{})}
	for _, l := range lines {
		p.lines <- l
	}
	close(p.lines)
	close(p.done)
	return p
}

func (p *fakeProcess) Lines() <-chan string { return p.lines }
func (p *fakeProcess) Wait() error           { <-p.done; return p.waitErr }
func (p *fakeProcess) Terminate() error      { p.terminated = true; return nil }
func (p *fakeProcess) Kill() error           { p.killed = true; return nil }

type fakeExecutor struct {
	lines []string
	err   error
}

func (e *fakeExecutor) Start(ctx context.Context, workdir, instruction string) (Process, error) {
	if e.err != nil {
		return nil, e.err
	}
	return newFakeProcess(e.lines), nil
}

type fakePaths struct{ dir string }

func (p fakePaths) JobLogPath(jobID, timestamp string) string {
	return filepath.Join(p.dir, jobID+".log")
}

func newTestStore(t *testing.T) (*store.Store, store.Project, store.Session) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st })

	proj := store.Project{ID: "p1", DisplayName: "demo", Path: t.TempDir(), CreatedAt: time.Now().UTC()}
	if err := st.CreateProject(proj); err != nil {
		t.Fatalf("create project: %v", err)
	}

	sess := store.Session{
		ID: "S1", ProjectID: proj.ID, WorkspacePath: proj.Path, Branch: "televibe/S1",
		State: store.SessionIdle, Mode: store.ModeIsolatedWorkingCopy,
		LastActivityAt: time.Now().UTC(), CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return st, proj, sess
}

func waitForJobDone(t *testing.T, st *store.Store, jobID string) store.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := st.GetJob(jobID)
		if err == nil && j.Status.Terminal() {
			return *j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return store.Job{}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	st, proj, sess := newTestStore(t)
	lines := []string{
		`{"type":"system","subtype":"init","session_id":"abc"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"done with the thing"}]}}`,
		`{"type":"result","subtype":"success","is_error":false}`,
	}
	r := New(st, &fakeExecutor{lines: lines}, fakePaths{dir: t.TempDir()}, nil, 3)

	job, err := r.Submit(sess, proj, "do the thing", "do the thing")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitForJobDone(t, st, job.ID)
	if final.Status != store.JobDone {
		t.Fatalf("expected done, got %s (error=%s)", final.Status, final.Error)
	}

	gotSess, err := st.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if gotSess.State != store.SessionIdle {
		t.Fatalf("expected session idle after completion, got %s", gotSess.State)
	}
	if gotSess.CurrentJobID != "" {
		t.Fatalf("expected current job cleared, got %q", gotSess.CurrentJobID)
	}
}

func TestSubmitRefusesWhenSessionBusy(t *testing.T) {
	st, proj, sess := newTestStore(t)
	sess.State = store.SessionRunning
	r := New(st, &fakeExecutor{}, fakePaths{dir: t.TempDir()}, nil, 3)

	_, err := r.Submit(sess, proj, "x", "x")
	if err == nil {
		t.Fatal("expected conflict error for busy session")
	}
}

func TestSubmitRefusesAtCapacity(t *testing.T) {
	st, proj, sess := newTestStore(t)
	r := New(st, &fakeExecutor{lines: nil}, fakePaths{dir: t.TempDir()}, nil, 1)
	r.running["already-running"] = &jobHandle{done: make(chan struct{})}

	_, err := r.Submit(sess, proj, "x", "x")
	if err == nil {
		t.Fatal("expected capacity error")
	}
}

func TestApprovalInterlockDeniedCancelsJob(t *testing.T) {
	st, proj, sess := newTestStore(t)
	lines := []string{
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"git push origin main"}}]}}`,
	}
	r := New(st, &fakeExecutor{lines: lines}, fakePaths{dir: t.TempDir()}, nil, 3,
		WithRequestApproval(func(ctx context.Context, req ApprovalRequest) (bool, string, error) {
			if req.Type != store.ApprovalGitPush {
				t.Fatalf("expected git-push approval type, got %s", req.Type)
			}
			return false, "not now", nil
		}),
	)

	job, err := r.Submit(sess, proj, "push it", "push it")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitForJobDone(t, st, job.ID)
	if final.Status != store.JobCanceled {
		t.Fatalf("expected canceled after denial, got %s", final.Status)
	}
	if final.Error == "" {
		t.Fatal("expected a denial reason recorded on the job")
	}
}

func TestApprovalInterlockApprovedContinues(t *testing.T) {
	st, proj, sess := newTestStore(t)
	lines := []string{
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Write","input":{"file_path":"foo.go"}}]}}`,
		`{"type":"result","subtype":"success","is_error":false}`,
	}
	approvalCalls := 0
	r := New(st, &fakeExecutor{lines: lines}, fakePaths{dir: t.TempDir()}, nil, 3,
		WithRequestApproval(func(ctx context.Context, req ApprovalRequest) (bool, string, error) {
			approvalCalls++
			return true, "", nil
		}),
	)

	job, err := r.Submit(sess, proj, "edit it", "edit it")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitForJobDone(t, st, job.ID)
	if final.Status != store.JobDone {
		t.Fatalf("expected done after approval, got %s", final.Status)
	}
	if approvalCalls != 1 {
		t.Fatalf("expected exactly one approval call, got %d", approvalCalls)
	}
}

// terminableProcess blocks until Terminate is called, simulating a child
// that exits cleanly once it receives the terminate signal.
type terminableProcess struct {
	lines      chan string
	done       chan struct{}
	terminated bool
	killed     bool
}

func newTerminableProcess() *terminableProcess {
	return &terminableProcess{lines: make(chan string), done: make(chan struct{})}
}

func (p *terminableProcess) Lines() <-chan string { return p.lines }
func (p *terminableProcess) Wait() error           { <-p.done; return nil }
func (p *terminableProcess) Terminate() error {
	p.terminated = true
	close(p.lines)
	close(p.done)
	return nil
}
func (p *terminableProcess) Kill() error { p.killed = true; return nil }

func TestCancelTerminatesRunningProcess(t *testing.T) {
	st, proj, sess := newTestStore(t)
	fp := newTerminableProcess()
	r := New(st, &blockingExecutor{proc: fp}, fakePaths{dir: t.TempDir()}, nil, 3)

	job, err := r.Submit(sess, proj, "long task", "long task")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if err := r.Cancel(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !fp.terminated {
		t.Fatal("expected Terminate to have been called")
	}

	final := waitForJobDone(t, st, job.ID)
	if final.Status != store.JobCanceled {
		t.Fatalf("expected canceled, got %s", final.Status)
	}
}

type blockingExecutor struct{ proc *terminableProcess }

func (e *blockingExecutor) Start(ctx context.Context, workdir, instruction string) (Process, error) {
	return e.proc, nil
}
