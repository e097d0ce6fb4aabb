package backlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/televibecode/televibe/internal/store"
)

func TestParseFileWithFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "T-001-add-auth.md")
	content := "---\nstatus: in_progress\npriority: high\ntags: [feature, auth]\n---\n\n# Add OAuth login\n\nWire up the login flow.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	task, err := ParseFile(path, "proj1")
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if task.ID != "T-001" {
		t.Fatalf("expected id from frontmatter-less filename fallback T-001, got %q", task.ID)
	}
	if task.Title != "Add OAuth login" {
		t.Fatalf("expected title from H1, got %q", task.Title)
	}
	if task.Status != store.TaskInProgress {
		t.Fatalf("expected in-progress, got %q", task.Status)
	}
	if task.Priority != store.PriorityHigh {
		t.Fatalf("expected high priority, got %q", task.Priority)
	}
	if len(task.Tags) != 2 || task.Tags[0] != "feature" || task.Tags[1] != "auth" {
		t.Fatalf("expected [feature auth] tags, got %v", task.Tags)
	}
	if task.Description != "Wire up the login flow." {
		t.Fatalf("unexpected description %q", task.Description)
	}
}

func TestParseFileIDFromExplicitFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anything.md")
	content := "---\nid: T-777\ntitle: Custom Title\n---\n\nBody text.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	task, err := ParseFile(path, "proj1")
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if task.ID != "T-777" {
		t.Fatalf("expected frontmatter id T-777, got %q", task.ID)
	}
	if task.Title != "Custom Title" {
		t.Fatalf("expected frontmatter title, got %q", task.Title)
	}
}

func TestParseFileNumericPrefixFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "042-refactor-store.md")
	if err := os.WriteFile(path, []byte("No frontmatter here.\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	task, err := ParseFile(path, "proj1")
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if task.ID != "T-042" {
		t.Fatalf("expected numeric-prefix id T-042, got %q", task.ID)
	}
	if task.Title != "Refactor Store" {
		t.Fatalf("expected title-cased filename fallback, got %q", task.Title)
	}
	if task.Status != store.TaskTodo {
		t.Fatalf("expected default status todo, got %q", task.Status)
	}
	if task.Priority != store.PriorityMedium {
		t.Fatalf("expected default priority medium, got %q", task.Priority)
	}
}

func TestScanDirectorySkipsReadmeAndIndex(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"T-001-one.md": "# One\n",
		"T-002-two.md": "# Two\n",
		"README.md":    "# Backlog\n",
		"index.md":     "# Index\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	tasks, err := ScanDirectory(dir, "proj1")
	if err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks (README/index skipped), got %d", len(tasks))
	}
}

func TestScanDirectoryMissingDirReturnsEmpty(t *testing.T) {
	tasks, err := ScanDirectory(filepath.Join(t.TempDir(), "nope"), "proj1")
	if err != nil {
		t.Fatalf("expected nil error for missing dir, got %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
}

func TestToMarkdownRoundTrips(t *testing.T) {
	original := store.Task{
		ID: "T-009", Title: "Ship backlog sync", Description: "Wire the parser into the job runner.",
		Status: store.TaskInProgress, Priority: store.PriorityCritical, Tags: []string{"backlog", "sync"},
	}

	md, err := ToMarkdown(original)
	if err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "T-009-ship-backlog-sync.md")
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		t.Fatalf("write round-trip fixture: %v", err)
	}

	parsed, err := ParseFile(path, "proj1")
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if parsed.ID != original.ID || parsed.Title != original.Title || parsed.Status != original.Status ||
		parsed.Priority != original.Priority || parsed.Description != original.Description {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", parsed, original)
	}
}
