// Package config holds the core's configuration surface: the options a
// deployer sets once (bot tokens, allowed chats, concurrency cap, executor
// choice, log level), plus the provider and auto-approval settings carried
// over from the teacher, loaded from and persisted back to a flat JSON
// file guarded the way the teacher's settings store is.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/televibecode/televibe/internal/store"
)

// ExecutorType selects how the assistant child process is invoked.
type ExecutorType string

const (
	ExecutorSubprocess ExecutorType = "subprocess"
	ExecutorSDK        ExecutorType = "sdk"
)

// LogLevel mirrors the configuration surface's enumerated levels; it is
// translated to a zap level by internal/telemetry.
type LogLevel string

const (
	LogDebug   LogLevel = "DEBUG"
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// AutoApprovalSettings controls which approval types the gate resolves
// without prompting a chat. A category left false still opens a pending
// approval and blocks the job, same as if auto-approval were disabled.
type AutoApprovalSettings struct {
	Enabled           bool `json:"enabled"`
	ShellCommand      bool `json:"shell_command"`
	FileWrite         bool `json:"file_write"`
	GitPush           bool `json:"git_push"`
	Deploy            bool `json:"deploy"`
	DangerousEdit     bool `json:"dangerous_edit"`
	ExternalRequest   bool `json:"external_request"`
}

// ProviderSettings names the AI provider/model backing the sdk executor
// path; the subprocess executor ignores it (it shells out to a fixed
// assistant binary instead).
type ProviderSettings struct {
	Provider string `json:"provider"` // "anthropic", "openai", "openrouter"
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
}

// Settings is the configuration surface.
type Settings struct {
	TelegramBotToken         string   `json:"telegram_bot_token"`
	TelegramAllowedChatIDs   []int64  `json:"telegram_allowed_chat_ids"`
	DiscordBotToken          string   `json:"discord_bot_token,omitempty"`
	DiscordAllowedChannelIDs []string `json:"discord_allowed_channel_ids,omitempty"`

	MaxConcurrentJobs int          `json:"max_concurrent_jobs"`
	ExecutorType      ExecutorType `json:"executor_type"`
	PtyMode           bool         `json:"pty_mode"`
	LogLevel          LogLevel     `json:"log_level"`

	Provider     ProviderSettings     `json:"provider"`
	AutoApproval AutoApprovalSettings `json:"auto_approval"`
}

// Default matches the teacher's "ship safe defaults, no hardcoded
// secrets" posture: empty tokens force explicit configuration, an empty
// allowed-chat set is permissive but ChatAllowed's caller must log that.
func Default() Settings {
	return Settings{
		MaxConcurrentJobs: 3,
		ExecutorType:      ExecutorSubprocess,
		LogLevel:          LogInfo,
		AutoApproval: AutoApprovalSettings{
			Enabled:      true,
			ShellCommand: true, // matches the teacher's ExecuteSafeCommands default
		},
	}
}

func (s Settings) Validate() error {
	if s.TelegramBotToken == "" && s.DiscordBotToken == "" {
		return fmt.Errorf("config: at least one of telegram_bot_token or discord_bot_token must be set")
	}
	if s.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("config: max_concurrent_jobs must be positive, got %d", s.MaxConcurrentJobs)
	}
	switch s.ExecutorType {
	case ExecutorSubprocess, ExecutorSDK:
	default:
		return fmt.Errorf("config: unknown executor_type %q", s.ExecutorType)
	}
	switch s.LogLevel {
	case LogDebug, LogInfo, LogWarning, LogError:
	default:
		return fmt.Errorf("config: unknown log_level %q", s.LogLevel)
	}
	return nil
}

// Allows reports whether typ is configured for auto-approval. Wired into
// the approval gate via approval.WithAutoApprove(settings.Allows).
func (a AutoApprovalSettings) Allows(typ store.ApprovalType) bool {
	if !a.Enabled {
		return false
	}
	switch typ {
	case store.ApprovalShellCommand:
		return a.ShellCommand
	case store.ApprovalFileWrite:
		return a.FileWrite
	case store.ApprovalGitPush:
		return a.GitPush
	case store.ApprovalDeploy:
		return a.Deploy
	case store.ApprovalDangerousEdit:
		return a.DangerousEdit
	case store.ApprovalExternal:
		return a.ExternalRequest
	default:
		return false
	}
}

// ChatAllowed reports whether a Telegram chat id may drive the core. An
// empty allow-list means "allow any" — callers must log this as insecure
// at startup, the configuration surface does not hide that choice.
func (s Settings) ChatAllowed(chatID int64) bool {
	if len(s.TelegramAllowedChatIDs) == 0 {
		return true
	}
	for _, id := range s.TelegramAllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// Store is an RWMutex-guarded flat-file settings store: Load/Save/Get/
// Update(fn), matching the teacher's pattern.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings Settings
}

// Open loads settings.json at path, creating it with defaults if absent.
func Open(path string) (*Store, error) {
	s := &Store{path: path, settings: Default()}

	if err := s.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("config: create config dir: %w", err)
		}
		if err := s.Save(); err != nil {
			return nil, fmt.Errorf("config: save defaults: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("config: parse %s: %w", s.path, err)
	}
	s.settings = settings
	return nil
}

func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update mutates settings under the write lock and persists the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	fn(&s.settings)
	s.mu.Unlock()
	return s.Save()
}
