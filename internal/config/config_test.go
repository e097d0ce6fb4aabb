package config

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/televibecode/televibe/internal/store"
)

func TestOpenCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got := s.Get()
	if got.MaxConcurrentJobs != 3 || got.ExecutorType != ExecutorSubprocess || got.LogLevel != LogInfo {
		t.Fatalf("expected defaults, got %+v", got)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reflect.DeepEqual(reopened.Get(), got) {
		t.Fatalf("expected persisted defaults to round-trip, got %+v", reopened.Get())
	}
}

func TestUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Update(func(c *Settings) {
		c.TelegramBotToken = "token123"
		c.MaxConcurrentJobs = 5
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reopened.Get()
	if got.TelegramBotToken != "token123" || got.MaxConcurrentJobs != 5 {
		t.Fatalf("expected updates to persist, got %+v", got)
	}
}

func TestValidateRequiresAtLeastOneBotToken(t *testing.T) {
	s := Default()
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation to fail with no bot token configured")
	}
	s.TelegramBotToken = "abc"
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsUnknownExecutorType(t *testing.T) {
	s := Default()
	s.TelegramBotToken = "abc"
	s.ExecutorType = "bogus"
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation to reject unknown executor_type")
	}
}

func TestChatAllowedEmptyListAllowsAny(t *testing.T) {
	s := Default()
	if !s.ChatAllowed(999) {
		t.Fatal("expected empty allow-list to permit any chat")
	}
}

func TestChatAllowedRestrictsToList(t *testing.T) {
	s := Default()
	s.TelegramAllowedChatIDs = []int64{42}
	if !s.ChatAllowed(42) {
		t.Fatal("expected listed chat to be allowed")
	}
	if s.ChatAllowed(43) {
		t.Fatal("expected unlisted chat to be rejected")
	}
}

func TestAutoApprovalAllowsConfiguredTypesOnly(t *testing.T) {
	a := AutoApprovalSettings{Enabled: true, ShellCommand: true, GitPush: false}
	if !a.Allows(store.ApprovalShellCommand) {
		t.Fatal("expected shell-command to be auto-approved")
	}
	if a.Allows(store.ApprovalGitPush) {
		t.Fatal("expected git-push to still require approval")
	}
}

func TestAutoApprovalDisabledMasterSwitchAllowsNothing(t *testing.T) {
	a := AutoApprovalSettings{Enabled: false, ShellCommand: true}
	if a.Allows(store.ApprovalShellCommand) {
		t.Fatal("expected master switch off to override per-type settings")
	}
}
