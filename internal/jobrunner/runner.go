// Package jobrunner is the job runner (Component E): submits one
// instruction at a time per session, streams the assistant's output
// through the event protocol, and enforces the approval interlock.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/televibecode/televibe/internal/errs"
	"github.com/televibecode/televibe/internal/events"
	"github.com/televibecode/televibe/internal/store"
)

// logPather is the subset of paths.Project the runner depends on.
type logPather interface {
	JobLogPath(jobID, timestamp string) string
}

// ApprovalRequest is handed to the configured RequestApproval hook when the
// runner detects a privileged action mid-stream.
type ApprovalRequest struct {
	Job         store.Job
	Type        store.ApprovalType
	Description string
	Details     map[string]string
}

// RequestApprovalFunc opens an approval and blocks until it is resolved.
// Approved returns (true, "", nil). Denied returns (false, reason, nil).
// An error indicates the approval could not be opened at all.
type RequestApprovalFunc func(ctx context.Context, req ApprovalRequest) (approved bool, reason string, err error)

type jobHandle struct {
	proc Process
	mu   sync.Mutex
	canceled bool
	done chan struct{}
}

// Runner executes at most one job per session concurrently, bounded
// globally by a configured max_concurrent_jobs cap.
type Runner struct {
	store            *store.Store
	exec             Executor
	paths            logPather
	logger           *zap.Logger
	maxConcurrent    int
	requestApproval  RequestApprovalFunc
	onEvent          func(events.Event)
	onProgress       func(Progress)

	mu      sync.Mutex
	running map[string]*jobHandle
}

type Option func(*Runner)

func WithOnEvent(fn func(events.Event)) Option    { return func(r *Runner) { r.onEvent = fn } }
func WithOnProgress(fn func(Progress)) Option     { return func(r *Runner) { r.onProgress = fn } }
func WithRequestApproval(fn RequestApprovalFunc) Option {
	return func(r *Runner) { r.requestApproval = fn }
}

func New(st *store.Store, exec Executor, paths logPather, logger *zap.Logger, maxConcurrent int, opts ...Option) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	r := &Runner{
		store: st, exec: exec, paths: paths, logger: logger,
		maxConcurrent: maxConcurrent, running: make(map[string]*jobHandle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit allocates a job id, opens its log file path, inserts a queued job,
// marks the session running, and launches execution in a background
// goroutine. It refuses with a capacity error if max_concurrent_jobs would
// be exceeded, and with a conflict if the session already has a job in
// flight.
func (r *Runner) Submit(sess store.Session, project store.Project, rawInput, instruction string) (*store.Job, error) {
	if sess.State == store.SessionRunning || sess.State == store.SessionBlocked {
		return nil, errs.Conflict("jobrunner.Submit", "busy-session: "+sess.ID)
	}

	r.mu.Lock()
	if len(r.running) >= r.maxConcurrent {
		r.mu.Unlock()
		return nil, errs.Validation("jobrunner.Submit", "capacity: max_concurrent_jobs reached")
	}
	r.mu.Unlock()

	jobID := uuid.New().String()[:8]
	timestamp := time.Now().UTC().Format("20060102_150405")
	logPath := r.paths.JobLogPath(jobID, timestamp)

	job := store.Job{
		ID: jobID, SessionID: sess.ID, ProjectID: project.ID,
		RawInput: rawInput, Instruction: instruction,
		Status: store.JobQueued, LogPath: logPath, CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateJob(job); err != nil {
		return nil, err
	}

	sess.CurrentJobID = jobID
	sess.State = store.SessionRunning
	sess.LastActivityAt = time.Now().UTC()
	if err := r.store.UpdateSession(sess); err != nil {
		return nil, err
	}

	handle := &jobHandle{done: make(chan struct{})}
	r.mu.Lock()
	r.running[jobID] = handle
	r.mu.Unlock()

	go r.execute(job, sess, handle)

	return &job, nil
}

// Cancel requests termination of an in-flight job: a terminate signal to
// the child, a kill if it has not exited within 5 seconds. The job is
// transitioned to canceled regardless of signal delivery success.
func (r *Runner) Cancel(jobID string) error {
	r.mu.Lock()
	h, ok := r.running[jobID]
	r.mu.Unlock()
	if !ok {
		return errs.NotFound("jobrunner.Cancel", "job not in flight: "+jobID)
	}

	h.mu.Lock()
	h.canceled = true
	proc := h.proc
	h.mu.Unlock()

	if proc != nil {
		_ = proc.Terminate()
	}

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		if proc != nil {
			_ = proc.Kill()
		}
	}
	return nil
}

func (r *Runner) execute(job store.Job, sess store.Session, handle *jobHandle) {
	defer func() {
		r.mu.Lock()
		delete(r.running, job.ID)
		r.mu.Unlock()
		close(handle.done)
	}()

	job.Status = store.JobRunning
	job.StartedAt = time.Now().UTC()
	if err := r.store.UpdateJob(job); err != nil {
		r.logErr("update job to running", err)
	}

	ctx := context.Background()
	proc, err := r.exec.Start(ctx, sess.WorkspacePath, job.Instruction)
	if err != nil {
		r.finish(&job, &sess, store.JobFailed, "", nil, "failed to start assistant: "+err.Error())
		return
	}
	handle.mu.Lock()
	handle.proc = proc
	handle.mu.Unlock()

	logFile, logErr := openLogFile(job.LogPath)
	if logErr != nil {
		r.logErr("open job log file", logErr)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	var summaryLines []string
	var filesChanged []string
	progress := Progress{JobID: job.ID, Status: "running"}
	lastProgressAt := time.Now()
	start := time.Now()
	denied := false
	var denyReason string

eventLoop:
	for line := range proc.Lines() {
		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}

		for _, ev := range events.ParseLine(line, sess.ID, job.ID) {
			if r.onEvent != nil {
				r.onEvent(ev)
			}
			progress.applyEvent(ev)
			if ev.Category == events.AssistantText && ev.Text != "" {
				summaryLines = append(summaryLines, truncate(ev.Text, 200))
			}
			if ev.Category == events.ToolUse {
				if fp, ok := ev.ToolInput["file_path"].(string); ok && fp != "" && !containsStr(filesChanged, fp) {
					filesChanged = append(filesChanged, fp)
				}

				if typ, needs, desc, details := classifyApproval(ev); needs && r.requestApproval != nil {
					job.Status = store.JobWaitingApproval
					_ = r.store.UpdateJob(job)
					sess.State = store.SessionBlocked
					_ = r.store.UpdateSession(sess)

					approved, reason, aerr := r.requestApproval(ctx, ApprovalRequest{
						Job: job, Type: typ, Description: desc, Details: details,
					})

					job.Status = store.JobRunning
					_ = r.store.UpdateJob(job)
					sess.State = store.SessionRunning
					_ = r.store.UpdateSession(sess)

					if aerr != nil || !approved {
						denied = true
						denyReason = reason
						if aerr != nil {
							denyReason = aerr.Error()
						}
						_ = proc.Terminate()
						break eventLoop
					}
				}
			}
		}

		progress.ElapsedSeconds = int(time.Since(start).Seconds())
		if r.onProgress != nil && time.Since(lastProgressAt) >= 3*time.Second {
			r.onProgress(progress)
			lastProgressAt = time.Now()
		}
	}

	waitErr := proc.Wait()

	handle.mu.Lock()
	wasCanceled := handle.canceled
	handle.mu.Unlock()

	switch {
	case denied:
		msg := "denied by user"
		if denyReason != "" {
			msg += ": " + denyReason
		}
		r.finish(&job, &sess, store.JobCanceled, "", filesChanged, msg)
	case wasCanceled:
		r.finish(&job, &sess, store.JobCanceled, "", filesChanged, "job canceled")
	case waitErr == nil:
		r.finish(&job, &sess, store.JobDone, lastSummary(summaryLines), filesChanged, "")
	default:
		var exitErr *exec.ExitError
		msg := waitErr.Error()
		if errors.As(waitErr, &exitErr) {
			msg = fmt.Sprintf("Process exited with code %d", exitErr.ExitCode())
		}
		r.finish(&job, &sess, store.JobFailed, "", filesChanged, msg)
	}

	if r.onProgress != nil {
		progress.Status = string(job.Status)
		r.onProgress(progress)
	}
}

// finish terminalizes the job and returns the session to idle.
func (r *Runner) finish(job *store.Job, sess *store.Session, status store.JobStatus, summary string, filesChanged []string, errMsg string) {
	job.Status = status
	job.ResultSummary = summary
	job.FilesChanged = filesChanged
	job.Error = errMsg
	job.FinishedAt = time.Now().UTC()
	if err := r.store.UpdateJob(*job); err != nil {
		r.logErr("terminalize job", err)
	}

	sess.State = store.SessionIdle
	sess.CurrentJobID = ""
	sess.LastSummary = summary
	sess.LastActivityAt = time.Now().UTC()
	if err := r.store.UpdateSession(*sess); err != nil {
		r.logErr("return session to idle", err)
	}
}

func (r *Runner) logErr(op string, err error) {
	if r.logger != nil {
		r.logger.Warn("jobrunner: "+op, zap.Error(err))
	}
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func lastSummary(lines []string) string {
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	joined := ""
	for i, l := range lines {
		if i > 0 {
			joined += "\n"
		}
		joined += l
	}
	if len(joined) > 500 {
		joined = joined[:500]
	}
	return joined
}
