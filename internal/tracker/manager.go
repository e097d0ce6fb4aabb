package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/televibecode/televibe/internal/events"
)

// ChatCollaborator is the subset of the chat collaborator interface the
// tracker needs: send the initial message, edit it in place as the job
// progresses, and reply to it once with a completion summary.
type ChatCollaborator interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb *Keyboard) (messageID int, err error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *Keyboard) error
	ReplyToMessage(ctx context.Context, chatID int64, parentMessageID int, text string) error
}

// rateLimiter enforces a minimum gap between edits to the same message,
// matching Telegram's ~1 edit/sec ceiling.
type rateLimiter struct {
	minInterval time.Duration

	mu       sync.Mutex
	lastEdit map[int]time.Time
}

func newRateLimiter(minIntervalMS int) *rateLimiter {
	return &rateLimiter{minInterval: time.Duration(minIntervalMS) * time.Millisecond, lastEdit: make(map[int]time.Time)}
}

// wait blocks until enough time has elapsed since the message's last edit.
func (r *rateLimiter) wait(messageID int) {
	r.mu.Lock()
	last, ok := r.lastEdit[messageID]
	r.mu.Unlock()

	if ok {
		if elapsed := time.Since(last); elapsed < r.minInterval {
			time.Sleep(r.minInterval - elapsed)
		}
	}

	r.mu.Lock()
	r.lastEdit[messageID] = time.Now()
	r.mu.Unlock()
}

func (r *rateLimiter) cleanup(messageID int) {
	r.mu.Lock()
	delete(r.lastEdit, messageID)
	r.mu.Unlock()
}

// Manager owns one live tracker message per job, across every chat.
type Manager struct {
	chat          ChatCollaborator
	defaultConfig Config
	logger        *zap.Logger

	limiter *rateLimiter

	mu       sync.Mutex
	trackers map[string]*State
	configs  map[int64]Config
	pending  map[string]pendingTools
}

func NewManager(chat ChatCollaborator, defaultConfig Config, logger *zap.Logger) *Manager {
	return &Manager{
		chat: chat, defaultConfig: defaultConfig, logger: logger,
		limiter:  newRateLimiter(defaultConfig.UpdateIntervalMS),
		trackers: make(map[string]*State),
		configs:  make(map[int64]Config),
		pending:  make(map[string]pendingTools),
	}
}

func (m *Manager) SetChatConfig(chatID int64, c Config) {
	m.mu.Lock()
	m.configs[chatID] = c
	m.mu.Unlock()
}

func (m *Manager) ChatConfig(chatID int64) Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.configs[chatID]; ok {
		return c
	}
	return m.defaultConfig
}

// CreateTracker opens a new tracker message for a job and sends the first
// render of it.
func (m *Manager) CreateTracker(ctx context.Context, chatID int64, jobID, sessionID, projectName, instruction string) (*State, error) {
	state := NewState(jobID, sessionID, projectName, instruction, chatID)
	renderer := NewRenderer(m.ChatConfig(chatID))
	text, kb := renderer.Render(state)

	msgID, err := m.chat.SendMessage(ctx, chatID, text, kb)
	if err != nil {
		return nil, err
	}
	state.MessageID = msgID

	m.mu.Lock()
	m.trackers[jobID] = state
	m.pending[jobID] = make(pendingTools)
	m.mu.Unlock()

	return state, nil
}

// AddEvent folds one parsed event into a job's tracker and refreshes its
// message, subject to the configured filter and the edit rate limiter.
func (m *Manager) AddEvent(ctx context.Context, jobID string, ev events.Event) {
	m.mu.Lock()
	state, ok := m.trackers[jobID]
	pend := m.pending[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}

	if state.UpdatesPaused && ev.Category != events.SystemInit && ev.Category != events.SystemResult {
		return
	}

	config := m.ChatConfig(state.ChatID)
	if !shouldInclude(ev, config) {
		return
	}

	state.ApplyEvent(ev, pend)
	m.updateMessage(ctx, state)
}

// AddApproval records that the tracker is waiting on a privileged-action
// decision and refreshes its message.
func (m *Manager) AddApproval(ctx context.Context, jobID, toolName string, toolInput map[string]any) {
	m.mu.Lock()
	state, ok := m.trackers[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}
	state.Status = StatusWaitingApproval
	state.ApplyApproval(toolName, toolInput)
	m.updateMessage(ctx, state)
}

// ResumeAfterApproval returns a tracker to the running stage.
func (m *Manager) ResumeAfterApproval(ctx context.Context, jobID string) {
	m.mu.Lock()
	state, ok := m.trackers[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}
	state.Status = StatusRunning
	m.updateMessage(ctx, state)
}

func shouldInclude(ev events.Event, c Config) bool {
	switch ev.Category {
	case events.AssistantText:
		return c.ShowAISpeech
	case events.AssistantThinking:
		return c.ShowAIThinking
	case events.ToolUse:
		if !c.ShowToolStart {
			return false
		}
		if len(c.ToolWhitelist) > 0 && !containsStr(c.ToolWhitelist, ev.ToolName) {
			return false
		}
		return !containsStr(c.ToolBlacklist, ev.ToolName)
	case events.ToolResult:
		if ev.IsError {
			return c.ShowToolErrors
		}
		return true // tool-name based show_result_for_tools filter applies at render time
	default:
		return true
	}
}

func (m *Manager) updateMessage(ctx context.Context, state *State) {
	if state.MessageID == 0 {
		return
	}
	m.limiter.wait(state.MessageID)

	renderer := NewRenderer(m.ChatConfig(state.ChatID))
	text, kb := renderer.Render(state)

	err := m.chat.EditMessage(ctx, state.ChatID, state.MessageID, text, kb)
	state.LastUpdateTime = time.Now().UTC()
	if err != nil && !isNotModified(err) && m.logger != nil {
		m.logger.Warn("tracker: edit message failed", zap.String("job_id", state.JobID), zap.Error(err))
	}
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

// SetStatus updates a tracker's lifecycle stage and refreshes its message.
func (m *Manager) SetStatus(ctx context.Context, jobID string, status Status) {
	m.mu.Lock()
	state, ok := m.trackers[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}
	state.Status = status
	m.updateMessage(ctx, state)
}

// PauseUpdates/ResumeUpdates implement the tracker's pause button: while
// paused, only system events still reach the message.
func (m *Manager) PauseUpdates(ctx context.Context, jobID string) {
	m.setPaused(ctx, jobID, true)
}

func (m *Manager) ResumeUpdates(ctx context.Context, jobID string) {
	m.setPaused(ctx, jobID, false)
}

func (m *Manager) setPaused(ctx context.Context, jobID string, paused bool) {
	m.mu.Lock()
	state, ok := m.trackers[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}
	state.UpdatesPaused = paused
	m.updateMessage(ctx, state)
}

// CompleteTracker forces a final render, sends a sibling completion reply,
// and retires the tracker's rate-limiter entry.
func (m *Manager) CompleteTracker(ctx context.Context, jobID string, status Status, result, errMsg string, filesChanged []string) {
	m.mu.Lock()
	state, ok := m.trackers[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}

	state.Status = status
	state.FinalResult = result
	state.Error = errMsg

	if state.MessageID != 0 {
		m.limiter.wait(state.MessageID)
		renderer := NewRenderer(m.ChatConfig(state.ChatID))
		text, kb := renderer.Render(state)
		_ = m.chat.EditMessage(ctx, state.ChatID, state.MessageID, text, kb)

		m.sendCompletionReply(ctx, state, status, result, errMsg, filesChanged)
		m.limiter.cleanup(state.MessageID)
	}

	if m.logger != nil {
		m.logger.Info("tracker: job completed", zap.String("job_id", jobID), zap.String("status", string(status)))
	}
}

func (m *Manager) sendCompletionReply(ctx context.Context, state *State, status Status, result, errMsg string, filesChanged []string) {
	var icon, title, body string

	switch status {
	case StatusDone:
		icon, title = "✅", "Job Completed"
		var b []string
		if len(filesChanged) > 0 {
			count := len(filesChanged)
			plural := ""
			if count != 1 {
				plural = "s"
			}
			b = append(b, fmt.Sprintf("📝 Modified %d file%s", count, plural))
			limit := filesChanged
			if len(limit) > 3 {
				limit = limit[:3]
			}
			for _, f := range limit {
				b = append(b, "   • `"+shortenPath(f)+"`")
			}
			if len(filesChanged) > 3 {
				b = append(b, fmt.Sprintf("   _...and %d more_", len(filesChanged)-3))
			}
		}
		if result != "" {
			b = append(b, "\n💬 _"+truncate(result, 200)+"_")
		}
		if len(b) == 0 {
			body = "Task completed successfully."
		} else {
			body = strings.Join(b, "\n")
		}

	case StatusFailed:
		icon, title = "❌", "Job Failed"
		msg := errMsg
		if msg == "" {
			msg = "Unknown error"
		}
		body = "_" + truncate(msg, 200) + "_"

	default:
		icon, title = "⏹️", "Job Cancelled"
		body = "The job was cancelled."
	}

	var statsParts []string
	if state.ElapsedSec > 0 {
		mins, secs := state.ElapsedSec/60, state.ElapsedSec%60
		if mins > 0 {
			statsParts = append(statsParts, fmt.Sprintf("⏱️ %dm %ds", mins, secs))
		} else {
			statsParts = append(statsParts, fmt.Sprintf("⏱️ %ds", secs))
		}
	}
	if state.TurnCount > 0 {
		statsParts = append(statsParts, fmt.Sprintf("🔄 %d turns", state.TurnCount))
	}
	config := m.ChatConfig(state.ChatID)
	if config.ShowCost && state.CostUSD > 0 {
		statsParts = append(statsParts, fmt.Sprintf("💰 $%.3f", state.CostUSD))
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", icon, title, body)
	if len(statsParts) > 0 {
		text += "\n\n" + strings.Join(statsParts, " • ")
	}
	text += fmt.Sprintf("\n\n`/summary %s` • `/tail %s`", state.JobID, state.JobID)

	if err := m.chat.ReplyToMessage(ctx, state.ChatID, state.MessageID, text); err != nil && m.logger != nil {
		m.logger.Warn("tracker: completion reply failed", zap.String("job_id", state.JobID), zap.Error(err))
	}
}

// GetTracker returns a job's tracker state, if any.
func (m *Manager) GetTracker(jobID string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.trackers[jobID]
	return s, ok
}

// RemoveTracker discards a job's tracker state and its rate-limiter entry.
func (m *Manager) RemoveTracker(jobID string) {
	m.mu.Lock()
	state, ok := m.trackers[jobID]
	delete(m.trackers, jobID)
	delete(m.pending, jobID)
	m.mu.Unlock()
	if ok && state.MessageID != 0 {
		m.limiter.cleanup(state.MessageID)
	}
}

func shortenPath(p string) string {
	if len(p) <= 40 {
		return p
	}
	return "..." + p[len(p)-37:]
}

