// Package telegram implements a chat collaborator (spec §6) over
// Telegram: sendMessage/editMessage/replyToMessage, inline-keyboard
// approval prompts, and routing of incoming text/callback updates back
// into the core.
package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gofrs/flock"

	"github.com/televibecode/televibe/internal/format"
	"github.com/televibecode/televibe/internal/store"
	"github.com/televibecode/televibe/internal/tracker"
)

// MessageHandler is invoked for every incoming text message not consumed
// as a pending approval/callback response — normally the chat's next
// instruction to submit as a job.
type MessageHandler func(ctx context.Context, chatID int64, username, text string)

// CallbackHandler is invoked for inline-button presses whose callback
// data isn't one of the tracker's own "tracker:*" actions (those are
// handled internally by wiring a *tracker.Manager in).
type CallbackHandler func(ctx context.Context, chatID int64, messageID int, data string)

// Bot wraps go-telegram/bot with the chat-collaborator contract and a
// cross-process single-instance guard keyed by token hash.
type Bot struct {
	bot            *bot.Bot
	token          string
	allowedChatIDs map[int64]bool

	onMessage  MessageHandler
	onCallback CallbackHandler
	tracker    *tracker.Manager

	pendingMu sync.Mutex
	pending   map[int64]chan string // chat id -> waiting AskYesNo caller

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	lockDir string
}

// New creates a Telegram-backed chat collaborator. lockDir is the
// directory the single-instance lock file is written under (normally
// the project's .televibe root).
func New(token string, allowedChatIDs []int64, lockDir string) (*Bot, error) {
	allowed := make(map[int64]bool, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		allowed[id] = true
	}

	b := &Bot{
		token: token, allowedChatIDs: allowed, lockDir: lockDir,
		pending: make(map[int64]chan string),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.handleUpdate),
		bot.WithErrorsHandler(func(err error) {
			if err == nil {
				return
			}
			msg := err.Error()
			if strings.Contains(msg, "onflict") {
				log.Printf("telegram: conflicting getUpdates poller detected, stopping: %v", err)
				b.cancelMu.Lock()
				if b.cancel != nil {
					b.cancel()
				}
				b.cancelMu.Unlock()
				return
			}
			log.Printf("telegram: error: %v", err)
		}),
	}

	tgBot, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	b.bot = tgBot
	return b, nil
}

// SetMessageHandler registers the callback for non-pending incoming text.
func (b *Bot) SetMessageHandler(fn MessageHandler) { b.onMessage = fn }

// SetCallbackHandler registers the callback for non-tracker button presses
// (e.g. approval decisions, session selection).
func (b *Bot) SetCallbackHandler(fn CallbackHandler) { b.onCallback = fn }

// SetTrackerManager wires in the manager whose "tracker:*" callback data
// (pause/resume/cancel/summary/logs) the bot handles without forwarding.
func (b *Bot) SetTrackerManager(m *tracker.Manager) { b.tracker = m }

// Start begins long polling, guarded by a per-token-hash flock so only one
// process holds the getUpdates stream for a given bot token.
func (b *Bot) Start(ctx context.Context) error {
	tokenHash := sha256.Sum256([]byte(b.token))
	lockPath := filepath.Join(b.lockDir, fmt.Sprintf("telegram-%s.lock", hex.EncodeToString(tokenHash[:8])))
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("telegram: create lock dir: %w", err)
	}

	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil {
		return fmt.Errorf("telegram: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("telegram: bot token already in use by another process (lock %s held)", lockPath)
	}
	defer fileLock.Unlock()

	b.cancelMu.Lock()
	ctx, b.cancel = context.WithCancel(ctx)
	b.cancelMu.Unlock()

	if _, err := b.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "sessions", Description: "List active sessions"},
			{Command: "tasks", Description: "List backlog tasks"},
			{Command: "summary", Description: "Show a job's final summary"},
			{Command: "tail", Description: "Show a job's raw log tail"},
		},
	}); err != nil {
		log.Printf("telegram: set commands: %v", err)
	}

	b.bot.Start(ctx)
	return nil
}

func (b *Bot) allowed(chatID int64) bool {
	if len(b.allowedChatIDs) == 0 {
		return true
	}
	return b.allowedChatIDs[chatID]
}

func (b *Bot) handleUpdate(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, tgBot, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *models.Message) {
	chatID := message.Chat.ID
	if !b.allowed(chatID) {
		log.Printf("telegram: rejected message from unlisted chat %d", chatID)
		return
	}

	b.pendingMu.Lock()
	ch, ok := b.pending[chatID]
	if ok {
		delete(b.pending, chatID)
	}
	b.pendingMu.Unlock()
	if ok {
		ch <- message.Text
		return
	}

	if b.onMessage != nil {
		username := ""
		if message.From != nil {
			username = message.From.Username
		}
		b.onMessage(ctx, chatID, username, message.Text)
	}
}

func (b *Bot) handleCallback(ctx context.Context, tgBot *bot.Bot, cb *models.CallbackQuery) {
	chatID := cb.Message.Message.Chat.ID
	if !b.allowed(chatID) {
		return
	}

	_, _ = tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cb.ID})

	b.pendingMu.Lock()
	ch, ok := b.pending[chatID]
	if ok {
		delete(b.pending, chatID)
	}
	b.pendingMu.Unlock()
	if ok {
		ch <- cb.Data
		return
	}

	messageID := cb.Message.Message.ID

	if b.tracker != nil && strings.HasPrefix(cb.Data, "tracker:") {
		b.handleTrackerCallback(ctx, cb.Data)
		return
	}

	if b.onCallback != nil {
		b.onCallback(ctx, chatID, messageID, cb.Data)
	}
}

// handleTrackerCallback dispatches tracker:<action>:<jobID> callback data
// onto the tracker manager, matching Renderer.renderKeyboard's encoding.
func (b *Bot) handleTrackerCallback(ctx context.Context, data string) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return
	}
	action, jobID := parts[1], parts[2]
	switch action {
	case "pause":
		b.tracker.PauseUpdates(ctx, jobID)
	case "resume":
		b.tracker.ResumeUpdates(ctx, jobID)
	case "cancel", "summary", "logs":
		// cancel/summary/logs require runner/store access the tracker
		// manager doesn't hold; with a tracker manager wired, these presses
		// stop here and are not passed on to the CallbackHandler.
	}
}

// AskYesNo sends a yes/no/always-allow prompt and blocks until the chat's
// next text message or button press, or until ctx is done.
// NotifyApprovalOpened does not use it.
func (b *Bot) AskYesNo(ctx context.Context, chatID int64, question string) (string, error) {
	respCh := make(chan string, 1)
	b.pendingMu.Lock()
	b.pending[chatID] = respCh
	b.pendingMu.Unlock()

	kb := &tracker.Keyboard{Rows: [][]tracker.Button{
		{{Label: "✅ Yes", Callback: "yes"}, {Label: "❌ No", Callback: "no"}},
		{{Label: "🛡️ Always Allow", Callback: "always allow"}},
	}}
	if _, err := b.SendMessage(ctx, chatID, question, kb); err != nil {
		b.pendingMu.Lock()
		delete(b.pending, chatID)
		b.pendingMu.Unlock()
		return "", err
	}

	select {
	case <-ctx.Done():
		b.pendingMu.Lock()
		delete(b.pending, chatID)
		b.pendingMu.Unlock()
		return "", ctx.Err()
	case resp := <-respCh:
		return resp, nil
	}
}

// NotifyApprovalOpened implements approval.Notifier.
func (b *Bot) NotifyApprovalOpened(ctx context.Context, a store.Approval) error {
	chatID, err := chatIDFromLocator(a.ChatLocator)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("⏸️ *Approval needed*: %s\n\n%s", a.Type, a.Description)
	kb := &tracker.Keyboard{Rows: [][]tracker.Button{
		{
			{Label: "✅ Approve", Callback: "approval:" + a.ID + ":yes"},
			{Label: "❌ Deny", Callback: "approval:" + a.ID + ":no"},
		},
	}}
	_, err = b.SendMessage(ctx, chatID, text, kb)
	return err
}

func chatIDFromLocator(locator string) (int64, error) {
	parts := strings.SplitN(locator, ":", 2)
	if len(parts) == 0 || parts[0] == "" {
		return 0, fmt.Errorf("telegram: empty chat locator")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat locator %q: %w", locator, err)
	}
	return id, nil
}

// SendMessage implements tracker.ChatCollaborator.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, kb *tracker.Keyboard) (int, error) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	}
	if kb != nil {
		params.ReplyMarkup = toInlineKeyboard(kb)
	}
	msg, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// EditMessage implements tracker.ChatCollaborator.
func (b *Bot) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *tracker.Keyboard) error {
	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	}
	if kb != nil {
		params.ReplyMarkup = toInlineKeyboard(kb)
	}
	_, err := b.bot.EditMessageText(ctx, params)
	return err
}

// ReplyToMessage implements tracker.ChatCollaborator.
func (b *Bot) ReplyToMessage(ctx context.Context, chatID int64, parentMessageID int, text string) error {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          chatID,
		Text:            format.ToTelegramHTML(text),
		ParseMode:       models.ParseModeHTML,
		ReplyParameters: &models.ReplyParameters{MessageID: parentMessageID},
	})
	return err
}

func toInlineKeyboard(kb *tracker.Keyboard) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, len(kb.Rows))
	for i, row := range kb.Rows {
		buttons := make([]models.InlineKeyboardButton, len(row))
		for j, btn := range row {
			buttons[j] = models.InlineKeyboardButton{Text: btn.Label, CallbackData: btn.Callback}
		}
		rows[i] = buttons
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
