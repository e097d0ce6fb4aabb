// Package store is the persistent store (Component A): durable state for
// projects, sessions, tasks, jobs, approvals and per-user preferences, with
// transactional CRUD and the indexed queries the rest of the core depends
// on.
package store

import "time"

type SessionState string

const (
	SessionIdle    SessionState = "idle"
	SessionRunning SessionState = "running"
	SessionBlocked SessionState = "blocked"
	SessionClosing SessionState = "closing"
)

type ExecutionMode string

const (
	ModeIsolatedWorkingCopy ExecutionMode = "isolated-working-copy"
	ModeDirectInRepo        ExecutionMode = "direct-in-repo"
)

type TaskStatus string

const (
	TaskTodo        TaskStatus = "todo"
	TaskInProgress  TaskStatus = "in-progress"
	TaskBlocked     TaskStatus = "blocked"
	TaskNeedsReview TaskStatus = "needs-review"
	TaskDone        TaskStatus = "done"
)

type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// priorityRank gives the ordering used by pending-tasks queries: critical
// first, low last.
func priorityRank(p TaskPriority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

type JobStatus string

const (
	JobQueued          JobStatus = "queued"
	JobRunning         JobStatus = "running"
	JobWaitingApproval JobStatus = "waiting-approval"
	JobDone            JobStatus = "done"
	JobFailed          JobStatus = "failed"
	JobCanceled        JobStatus = "canceled"
)

func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCanceled
}

type ApprovalType string

const (
	ApprovalShellCommand  ApprovalType = "shell-command"
	ApprovalFileWrite     ApprovalType = "file-write"
	ApprovalGitPush       ApprovalType = "git-push"
	ApprovalDeploy        ApprovalType = "deploy"
	ApprovalDangerousEdit ApprovalType = "dangerous-edit"
	ApprovalExternal      ApprovalType = "external-request"
)

func ValidApprovalType(t ApprovalType) bool {
	switch t {
	case ApprovalShellCommand, ApprovalFileWrite, ApprovalGitPush, ApprovalDeploy, ApprovalDangerousEdit, ApprovalExternal:
		return true
	}
	return false
}

type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalDenied   ApprovalState = "denied"
)

// Project is a registered repository the core provisions sessions against.
type Project struct {
	ID            string
	DisplayName   string
	Path          string
	RemoteURL     string
	DefaultBranch string
	TasksDir      string
	CreatedAt     time.Time
}

// Session is a bounded piece of work bound to one isolated working copy.
type Session struct {
	ID              string
	ProjectID       string
	DisplayName     string
	WorkspacePath   string
	Branch          string
	State           SessionState
	Mode            ExecutionMode
	CurrentJobID    string // empty when none
	LastActivityAt  time.Time
	LastSummary     string
	AttachedTaskIDs []string
	CreatedAt       time.Time
}

// Task is imported from an external markdown-with-front-matter source.
type Task struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	Assignee    string
	SessionID   string // empty when unattached
	Branch      string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Job is one instruction submitted to the assistant within a session.
type Job struct {
	ID             string
	SessionID      string
	ProjectID      string
	RawInput       string
	Instruction    string
	Status         JobStatus
	ApprovalScope  string // approval id, empty when none
	LogPath        string
	ResultSummary  string
	FilesChanged   []string
	Error          string
	CreatedAt      time.Time
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Approval is a deliberate pause in a job awaiting explicit user consent.
type Approval struct {
	ID           string
	JobID        string
	SessionID    string
	ProjectID    string
	Type         ApprovalType
	Description  string
	Details      map[string]string
	State        ApprovalState
	ResolvedBy   string
	ResolvedAt   time.Time
	ChatLocator  string // e.g. "chatID:messageID", opaque to the store
	CreatedAt    time.Time
}

// UserPreferences is keyed by user identifier.
type UserPreferences struct {
	UserID              string
	PreferredModelID    string
	PreferredProvider   string
	ActiveSessionID     string
	NotificationsOn     bool
	TrackerPresetName   string
	TrackerConfigJSON   string // serialized TrackerConfig overrides
}
