package tracker

import (
	"time"

	"github.com/televibecode/televibe/internal/events"
	"github.com/televibecode/televibe/internal/format"
)

// entryKind is the tracker's own event taxonomy, folded from the six-variant
// wire protocol plus the approval-interlock's own pseudo-event.
type entryKind string

const (
	entrySpeech   entryKind = "speech"
	entryThinking entryKind = "thinking"
	entryToolUse  entryKind = "tool_use"
	entryToolDone entryKind = "tool_done"
	entryApproval entryKind = "approval"
)

// entry is one line of the tracker's scrolling event log.
type entry struct {
	kind      entryKind
	toolUseID string
	toolName  string
	toolInput map[string]any
	text      string
	result    string
	isError   bool
}

// Status is the tracker message's overall lifecycle stage.
type Status string

const (
	StatusStarting        Status = "starting"
	StatusRunning         Status = "running"
	StatusWaitingApproval Status = "waiting_approval"
	StatusDone            Status = "done"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// State is the live view of one job's tracker message.
type State struct {
	JobID       string
	SessionID   string
	ProjectName string
	Instruction string

	ChatID    int64
	MessageID int

	entries []entry

	StartTime     time.Time
	ElapsedSec    int
	FilesTouched  map[string]struct{}
	TurnCount     int
	InputTokens   int
	OutputTokens  int
	CostUSD       float64

	Status      Status
	FinalResult string
	Error       string

	UpdatesPaused  bool
	LastUpdateTime time.Time
}

// NewState starts a tracker in the "starting" stage.
func NewState(jobID, sessionID, projectName, instruction string, chatID int64) *State {
	return &State{
		JobID: jobID, SessionID: sessionID, ProjectName: projectName, Instruction: instruction,
		ChatID: chatID, FilesTouched: make(map[string]struct{}), Status: StatusStarting,
		StartTime: time.Now().UTC(),
	}
}

// pendingTools matches tool_use ids to their start entry so a later
// tool_result can be enriched with the tool's name.
type pendingTools map[string]*entry

// ApplyEvent folds a parsed protocol event into the tracker state, updating
// stats and appending to the entry log if the category maps onto one.
func (s *State) ApplyEvent(ev events.Event, pending pendingTools) {
	switch ev.Category {
	case events.AssistantText:
		if ev.Text == "" {
			return
		}
		s.entries = append(s.entries, entry{kind: entrySpeech, text: ev.Text})

	case events.AssistantThinking:
		if ev.Thinking == "" {
			return
		}
		s.entries = append(s.entries, entry{kind: entryThinking, text: ev.Thinking})

	case events.ToolUse:
		e := entry{kind: entryToolUse, toolUseID: ev.ToolUseID, toolName: ev.ToolName, toolInput: ev.ToolInput}
		s.entries = append(s.entries, e)
		pending[ev.ToolUseID] = &s.entries[len(s.entries)-1]
		if fp, ok := ev.ToolInput["file_path"].(string); ok && fp != "" {
			s.FilesTouched[fp] = struct{}{}
		}

	case events.ToolResult:
		toolName := ""
		if start, ok := pending[ev.ToolUseID]; ok {
			toolName = start.toolName
			delete(pending, ev.ToolUseID)
		}
		s.entries = append(s.entries, entry{
			kind: entryToolDone, toolUseID: ev.ToolUseID, toolName: toolName,
			result: format.ProcessTerminalOutput(ev.Result), isError: ev.IsError,
		})

	case events.SystemResult:
		s.TurnCount = ev.NumTurns
		s.CostUSD = ev.CostUSD
		s.InputTokens = ev.InputTokens
		s.OutputTokens = ev.OutputTokens
	}

	s.ElapsedSec = int(time.Since(s.StartTime).Seconds())
}

// ApplyApproval appends a pseudo tool-use entry recording that the tracker
// is waiting on a user decision for the given tool.
func (s *State) ApplyApproval(toolName string, toolInput map[string]any) {
	s.entries = append(s.entries, entry{kind: entryApproval, toolName: toolName, toolInput: toolInput})
	s.ElapsedSec = int(time.Since(s.StartTime).Seconds())
}
