package approval

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/televibecode/televibe/internal/store"
)

type fakeNotifier struct {
	mu     sync.Mutex
	opened []store.Approval
	err    error
}

func (n *fakeNotifier) NotifyApprovalOpened(ctx context.Context, a store.Approval) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened = append(n.opened, a)
	return n.err
}

func newTestStore(t *testing.T) (*store.Store, store.Project, store.Session, store.Job) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	proj := store.Project{ID: "p1", DisplayName: "demo", Path: t.TempDir(), CreatedAt: time.Now().UTC()}
	if err := st.CreateProject(proj); err != nil {
		t.Fatalf("create project: %v", err)
	}
	sess := store.Session{
		ID: "S1", ProjectID: proj.ID, WorkspacePath: proj.Path, Branch: "televibe/S1",
		State: store.SessionRunning, Mode: store.ModeIsolatedWorkingCopy,
		LastActivityAt: time.Now().UTC(), CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	job := store.Job{
		ID: "j1", SessionID: sess.ID, ProjectID: proj.ID, RawInput: "do it", Instruction: "do it",
		Status: store.JobWaitingApproval, CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateJob(job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return st, proj, sess, job
}

func TestOpenBlocksUntilApproved(t *testing.T) {
	st, _, _, job := newTestStore(t)
	notifier := &fakeNotifier{}
	g := New(st, notifier, nil)

	var approved bool
	var reason string
	done := make(chan struct{})
	go func() {
		var err error
		approved, reason, err = g.Open(context.Background(), "a1", job.ID, job.SessionID, job.ProjectID,
			store.ApprovalGitPush, "git push origin main", nil)
		if err != nil {
			t.Errorf("Open: %v", err)
		}
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		notifier.mu.Lock()
		n := len(notifier.opened)
		notifier.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("approval was never opened")
		}
		time.Sleep(time.Millisecond)
	}

	if err := g.Approve("a1", "telegram:42"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Open never returned after Approve")
	}
	if !approved {
		t.Fatalf("expected approved=true, got reason=%q", reason)
	}

	a, err := st.GetApproval("a1")
	if err != nil {
		t.Fatalf("GetApproval: %v", err)
	}
	if a.State != store.ApprovalApproved {
		t.Fatalf("expected persisted state approved, got %q", a.State)
	}
	if a.ResolvedBy != "telegram:42" {
		t.Fatalf("expected resolved_by recorded, got %q", a.ResolvedBy)
	}
}

func TestOpenBlocksUntilDenied(t *testing.T) {
	st, _, _, job := newTestStore(t)
	g := New(st, nil, nil)

	type result struct {
		approved bool
		reason   string
	}
	resCh := make(chan result, 1)
	go func() {
		approved, reason, err := g.Open(context.Background(), "a1", job.ID, job.SessionID, job.ProjectID,
			store.ApprovalDeploy, "deploy to prod", nil)
		if err != nil {
			t.Errorf("Open: %v", err)
		}
		resCh <- result{approved, reason}
	}()

	// Give Open a moment to register its waiter before resolving it.
	time.Sleep(10 * time.Millisecond)
	if err := g.Deny("a1", "telegram:42", "not today"); err != nil {
		t.Fatalf("Deny: %v", err)
	}

	select {
	case r := <-resCh:
		if r.approved {
			t.Fatal("expected denied")
		}
		if r.reason != "not today" {
			t.Fatalf("expected denial reason to propagate, got %q", r.reason)
		}
	case <-time.After(time.Second):
		t.Fatal("Open never returned after Deny")
	}
}

func TestApproveNonPendingApprovalIsRejected(t *testing.T) {
	st, _, _, job := newTestStore(t)
	g := New(st, nil, nil)

	if err := st.CreateApproval(store.Approval{
		ID: "a1", JobID: job.ID, SessionID: job.SessionID, ProjectID: job.ProjectID,
		Type: store.ApprovalFileWrite, State: store.ApprovalApproved, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed approval: %v", err)
	}

	if err := g.Approve("a1", "telegram:42"); err == nil {
		t.Fatal("expected approving an already-resolved approval to fail")
	}
	if err := g.Deny("a1", "telegram:42", "too late"); err == nil {
		t.Fatal("expected denying an already-resolved approval to fail")
	}
}

func TestOpenCanceledByContext(t *testing.T) {
	st, _, _, job := newTestStore(t)
	g := New(st, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := g.Open(ctx, "a1", job.ID, job.SessionID, job.ProjectID, store.ApprovalShellCommand, "rm -rf /tmp/x", nil)
	if err == nil {
		t.Fatal("expected context deadline to surface as an error")
	}
}

func TestResolvingUnknownWaiterIsANoop(t *testing.T) {
	// Simulates a restart: the approval row exists and is pending, but no
	// in-process Open call is waiting on it anymore.
	st, _, _, job := newTestStore(t)
	g := New(st, nil, nil)

	if err := st.CreateApproval(store.Approval{
		ID: "a1", JobID: job.ID, SessionID: job.SessionID, ProjectID: job.ProjectID,
		Type: store.ApprovalExternal, State: store.ApprovalPending, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed approval: %v", err)
	}

	if err := g.Approve("a1", "telegram:42"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	a, err := st.GetApproval("a1")
	if err != nil {
		t.Fatalf("GetApproval: %v", err)
	}
	if a.State != store.ApprovalApproved {
		t.Fatalf("expected state to persist even with no waiter, got %q", a.State)
	}
}
