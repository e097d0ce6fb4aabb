package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/televibecode/televibe/internal/approval"
	"github.com/televibecode/televibe/internal/backlog"
	"github.com/televibecode/televibe/internal/config"
	"github.com/televibecode/televibe/internal/discord"
	"github.com/televibecode/televibe/internal/events"
	"github.com/televibecode/televibe/internal/jobrunner"
	"github.com/televibecode/televibe/internal/paths"
	"github.com/televibecode/televibe/internal/sessions"
	"github.com/televibecode/televibe/internal/store"
	"github.com/televibecode/televibe/internal/telegram"
	"github.com/televibecode/televibe/internal/tracker"
	"github.com/televibecode/televibe/internal/workspace"
)

// engine wires every component together for one project root: the store,
// session/job/approval/tracker managers, and whichever chat collaborators
// are configured.
type engine struct {
	logger  *zap.Logger
	paths   paths.Project
	st      *store.Store
	cfg     *config.Store
	sess    *sessions.Manager
	runner  *jobrunner.Runner
	gate    *approval.Gate
	track   *tracker.Manager
	tg      *telegram.Bot
	dc      *discord.Bot
	project store.Project

	mu          sync.Mutex
	sessionChat map[string]int64 // session id -> originating chat id, for routing replies
}

func newEngine(ctx context.Context, root, cfgPath string) (*engine, error) {
	p := paths.ForProject(root)
	if err := p.EnsureLayout(); err != nil {
		return nil, fmt.Errorf("televibe: ensure project layout: %w", err)
	}

	cfgStore, err := config.Open(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("televibe: open config: %w", err)
	}
	settings := cfgStore.Get()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("televibe: invalid configuration: %w", err)
	}

	logger, err := telemetryLogger(settings.LogLevel)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(p.StateDB())
	if err != nil {
		return nil, err
	}

	project, err := ensureProject(st, root)
	if err != nil {
		return nil, err
	}

	e := &engine{
		logger: logger, paths: p, st: st, cfg: cfgStore, project: *project,
		sessionChat: make(map[string]int64),
	}

	e.sess = sessions.NewManager(st, p)

	var exec jobrunner.Executor
	switch {
	case settings.ExecutorType == config.ExecutorSDK:
		exec = &jobrunner.SDKExecutor{}
	case settings.PtyMode:
		exec = jobrunner.NewPtyExecutor("claude")
	default:
		exec = jobrunner.NewSubprocessExecutor("claude")
	}

	e.gate = approval.New(st, e, logger, approval.WithAutoApprove(settings.AutoApproval.Allows))

	e.runner = jobrunner.New(st, exec, p, logger, settings.MaxConcurrentJobs,
		jobrunner.WithRequestApproval(e.gate.RequestApprovalFunc()),
		jobrunner.WithOnEvent(e.onEvent),
		jobrunner.WithOnProgress(e.onProgress),
	)

	if settings.TelegramBotToken != "" {
		tg, err := telegram.New(settings.TelegramBotToken, settings.TelegramAllowedChatIDs, p.Dir())
		if err != nil {
			return nil, fmt.Errorf("televibe: init telegram: %w", err)
		}
		tg.SetMessageHandler(e.onChatMessage)
		e.tg = tg
	}
	if settings.DiscordBotToken != "" {
		dc, err := discord.New(settings.DiscordBotToken, "", settings.DiscordAllowedChannelIDs)
		if err != nil {
			return nil, fmt.Errorf("televibe: init discord: %w", err)
		}
		dc.SetMessageHandler(e.onChatMessage)
		e.dc = dc
	}

	chat := e.chatCollaborator()
	if chat == nil {
		return nil, fmt.Errorf("televibe: no chat collaborator configured (set telegram_bot_token or discord_bot_token)")
	}
	e.track = tracker.NewManager(chat, tracker.DefaultConfig(), logger)
	if e.tg != nil {
		e.tg.SetTrackerManager(e.track)
	}

	return e, nil
}

// chatCollaborator returns whichever collaborator is configured, preferring
// Telegram when both are (a deployment normally runs one).
func (e *engine) chatCollaborator() tracker.ChatCollaborator {
	if e.tg != nil {
		return e.tg
	}
	if e.dc != nil {
		return e.dc
	}
	return nil
}

// NotifyApprovalOpened implements approval.Notifier: it tries the Telegram
// collaborator first and falls back to Discord when Telegram is absent or
// its notification fails.
func (e *engine) NotifyApprovalOpened(ctx context.Context, a store.Approval) error {
	if e.tg != nil {
		if err := e.tg.NotifyApprovalOpened(ctx, a); err == nil {
			return nil
		}
	}
	if e.dc != nil {
		return e.dc.NotifyApprovalOpened(ctx, a)
	}
	return fmt.Errorf("televibe: no collaborator available to notify approval %s", a.ID)
}

func (e *engine) start(ctx context.Context) error {
	if e.tg != nil {
		if err := e.tg.Start(ctx); err != nil {
			return err
		}
	}
	if e.dc != nil {
		if err := e.dc.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// onChatMessage parses an incoming chat line into one of: "/preset [name]"
// (list the tracker presets, or set one for the chat), "/new [branch]"
// (create a session against the engine's project), or "<sessionID> <text>"
// (submit an instruction to an existing session). Approval replies are not
// handled here.
func (e *engine) onChatMessage(ctx context.Context, chatID int64, username, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/preset") {
		name := strings.TrimSpace(strings.TrimPrefix(text, "/preset"))
		if name == "" {
			if _, err := e.chatCollaborator().SendMessage(ctx, chatID, "available presets: "+strings.Join(tracker.ListPresets(), ", "), nil); err != nil {
				e.logger.Warn("televibe: list presets", zap.Error(err))
			}
			return
		}
		e.track.SetChatConfig(chatID, tracker.GetPreset(name))
		if _, err := e.chatCollaborator().SendMessage(ctx, chatID, fmt.Sprintf("display preset set to %q", name), nil); err != nil {
			e.logger.Warn("televibe: ack preset change", zap.Error(err))
		}
		return
	}

	if strings.HasPrefix(text, "/new") {
		branch := strings.TrimSpace(strings.TrimPrefix(text, "/new"))
		sess, err := e.sess.Create(e.project, branch, username)
		if err != nil {
			e.logger.Warn("televibe: create session", zap.Error(err))
			return
		}
		e.mu.Lock()
		e.sessionChat[sess.ID] = chatID
		e.mu.Unlock()
		if _, err := e.chatCollaborator().SendMessage(ctx, chatID, fmt.Sprintf("session %s created on branch %s", sess.ID, sess.Branch), nil); err != nil {
			e.logger.Warn("televibe: ack session creation", zap.Error(err))
		}
		return
	}

	sessionID, instruction, ok := splitSessionCommand(text)
	if !ok {
		e.logger.Info("televibe: ignoring message with no session prefix", zap.Int64("chat_id", chatID))
		return
	}

	sess, err := e.st.GetSession(sessionID)
	if err != nil {
		e.logger.Warn("televibe: unknown session in chat message", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	enriched := sessions.EnrichInstruction(*sess, e.project, instruction)
	job, err := e.runner.Submit(*sess, e.project, instruction, enriched)
	if err != nil {
		e.logger.Warn("televibe: submit job", zap.Error(err))
		return
	}

	e.mu.Lock()
	e.sessionChat[sess.ID] = chatID
	e.mu.Unlock()

	if _, err := e.track.CreateTracker(ctx, chatID, job.ID, sess.ID, e.project.DisplayName, instruction); err != nil {
		e.logger.Warn("televibe: create tracker", zap.Error(err))
	}
}

// onEvent is wired into the job runner and forwards every parsed event to
// the tracker, which owns the live-message render/edit cadence.
func (e *engine) onEvent(ev events.Event) {
	e.track.AddEvent(context.Background(), ev.JobID, ev)
}

// onProgress is wired into the job runner; on a terminal status it
// completes the job's tracker message with the store's final record.
func (e *engine) onProgress(p jobrunner.Progress) {
	if !store.JobStatus(p.Status).Terminal() {
		return
	}
	job, err := e.st.GetJob(p.JobID)
	if err != nil {
		e.logger.Warn("televibe: load finished job", zap.Error(err))
		return
	}
	status := tracker.StatusDone
	switch job.Status {
	case store.JobFailed:
		status = tracker.StatusFailed
	case store.JobCanceled:
		status = tracker.StatusCancelled
	}
	e.track.CompleteTracker(context.Background(), job.ID, status, job.ResultSummary, job.Error, job.FilesChanged)
}

// splitSessionCommand recognizes "S<n> <instruction>" chat text.
func splitSessionCommand(text string) (sessionID, instruction string, ok bool) {
	parts := strings.SplitN(text, " ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	if !strings.HasPrefix(parts[0], "S") {
		return "", "", false
	}
	return parts[0], strings.TrimSpace(parts[1]), true
}

// ensureProject registers root as a project (slug "root") the first time
// the engine runs against it, and reuses the existing row thereafter.
func ensureProject(st *store.Store, root string) (*store.Project, error) {
	const id = "root"
	if existing, err := st.GetProject(id); err == nil {
		return existing, nil
	}

	branch := "main"
	if b, err := workspace.New(root).DefaultBranch(); err == nil && b != "" {
		branch = b
	}

	p := store.Project{
		ID: id, DisplayName: id, Path: root, DefaultBranch: branch,
		TasksDir: filepath.Join(root, "backlog"),
	}
	if err := st.CreateProject(p); err != nil {
		return nil, err
	}
	return &p, nil
}

// backlogSync scans a project's task directory and upserts every parsed
// task into the store; used by the tasks subcommand and callable from
// serve on a timer in a future iteration.
func backlogSync(st *store.Store, project store.Project) (int, error) {
	if project.TasksDir == "" {
		return 0, nil
	}
	tasks, err := backlog.ScanDirectory(project.TasksDir, project.ID)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		if _, err := st.GetTask(t.ID); err != nil {
			if err := st.CreateTask(t); err != nil {
				return 0, err
			}
			continue
		}
		if err := st.UpdateTask(t); err != nil {
			return 0, err
		}
	}
	return len(tasks), nil
}
