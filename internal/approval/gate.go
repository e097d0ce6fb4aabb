// Package approval implements the approval gate (Component G): opening a
// privileged-action approval for a job, routing it to a chat for a human
// decision, and blocking the caller until it resolves. Only one approval
// may be pending per job at a time; approving or denying a non-pending
// approval is rejected rather than silently accepted.
package approval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/televibecode/televibe/internal/errs"
	"github.com/televibecode/televibe/internal/store"
)

// Notifier delivers an opened approval to wherever a human can act on it
// (a chat message with inline buttons). It must not block — Gate.Open
// already blocks the caller until Approve/Deny resolves the wait.
type Notifier interface {
	NotifyApprovalOpened(ctx context.Context, a store.Approval) error
}

type waiter struct {
	resolved chan struct{}
	approved bool
	reason   string
}

// Gate tracks in-flight approval waits on top of the store's persisted
// approval rows.
type Gate struct {
	store       *store.Store
	notifier    Notifier
	logger      *zap.Logger
	autoApprove func(store.ApprovalType) bool

	mu      sync.Mutex
	waiting map[string]*waiter // approval id -> waiter
}

type Option func(*Gate)

// WithAutoApprove lets configured approval types resolve immediately
// without opening a pending row or notifying a chat, mirroring the
// teacher's auto-approval settings. fn is called on every Open; whether a
// settings change made after startup is seen depends on what fn reads.
func WithAutoApprove(fn func(store.ApprovalType) bool) Option {
	return func(g *Gate) { g.autoApprove = fn }
}

func New(st *store.Store, notifier Notifier, logger *zap.Logger, opts ...Option) *Gate {
	g := &Gate{store: st, notifier: notifier, logger: logger, waiting: make(map[string]*waiter)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open creates a pending approval for a job and blocks until Approve, Deny,
// or ctx resolve it. It matches jobrunner.RequestApprovalFunc's shape so it
// can be wired in as a closure without either package importing the other.
// If the type is configured for auto-approval, it records an
// already-approved row (for audit) and returns immediately.
func (g *Gate) Open(ctx context.Context, id, jobID, sessionID, projectID string, typ store.ApprovalType, description string, details map[string]string) (approved bool, reason string, err error) {
	if g.autoApprove != nil && g.autoApprove(typ) {
		a := store.Approval{
			ID: id, JobID: jobID, SessionID: sessionID, ProjectID: projectID,
			Type: typ, Description: description, Details: details,
			State: store.ApprovalApproved, ResolvedBy: "auto-approval",
		}
		if err := g.store.CreateApproval(a); err != nil {
			return false, "", err
		}
		return true, "", nil
	}

	a := store.Approval{
		ID: id, JobID: jobID, SessionID: sessionID, ProjectID: projectID,
		Type: typ, Description: description, Details: details, State: store.ApprovalPending,
	}
	if err := g.store.CreateApproval(a); err != nil {
		return false, "", err
	}

	w := &waiter{resolved: make(chan struct{})}
	g.mu.Lock()
	g.waiting[id] = w
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.waiting, id)
		g.mu.Unlock()
	}()

	if g.notifier != nil {
		if nerr := g.notifier.NotifyApprovalOpened(ctx, a); nerr != nil && g.logger != nil {
			g.logger.Warn("approval: notify failed", zap.String("approval_id", id), zap.Error(nerr))
		}
	}

	select {
	case <-w.resolved:
		return w.approved, w.reason, nil
	case <-ctx.Done():
		return false, "", ctx.Err()
	}
}

// Approve resolves a pending approval in the caller's favor. resolvedBy
// identifies the chat user (e.g. "telegram:482910") who decided it.
func (g *Gate) Approve(id, resolvedBy string) error {
	return g.resolve(id, resolvedBy, true, "")
}

// Deny resolves a pending approval against the caller, recording reason.
func (g *Gate) Deny(id, resolvedBy, reason string) error {
	return g.resolve(id, resolvedBy, false, reason)
}

func (g *Gate) resolve(id, resolvedBy string, approved bool, reason string) error {
	a, err := g.store.GetApproval(id)
	if err != nil {
		return err
	}
	if a.State != store.ApprovalPending {
		return errs.Conflict("approval.resolve", fmt.Sprintf("approval %s is already %s", id, a.State))
	}

	a.ResolvedBy = resolvedBy
	a.State = store.ApprovalApproved
	if !approved {
		a.State = store.ApprovalDenied
	}
	if err := g.store.UpdateApproval(*a); err != nil {
		return err
	}

	g.mu.Lock()
	w, ok := g.waiting[id]
	g.mu.Unlock()
	if !ok {
		// Resolved out-of-band (e.g. after process restart); the caller
		// that opened it is gone, nothing left to wake.
		return nil
	}

	w.approved = approved
	w.reason = reason
	close(w.resolved)
	return nil
}

// SetChatLocator records where an approval's prompt lives (chat id +
// message id) so a later callback can find it without a new lookup table.
func (g *Gate) SetChatLocator(id, locator string) error {
	a, err := g.store.GetApproval(id)
	if err != nil {
		return err
	}
	a.ChatLocator = locator
	return g.store.UpdateApproval(*a)
}

// Pending returns the single outstanding approval for a job, if any.
func (g *Gate) Pending(jobID string) (*store.Approval, error) {
	return g.store.PendingApprovalForJob(jobID)
}
