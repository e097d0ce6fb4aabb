// Package backlog parses a project's backlog markdown files — one task
// per file, YAML front-matter plus a free-text body — into store.Task
// rows, mirroring the Backlog.md convention the collaborator's external
// task tracker is expected to write to.
package backlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/televibecode/televibe/internal/store"
)

type frontmatter struct {
	ID        string      `yaml:"id"`
	Title     string      `yaml:"title"`
	Status    string      `yaml:"status"`
	Priority  string      `yaml:"priority"`
	Assignee  string      `yaml:"assignee"`
	Branch    string      `yaml:"branch"`
	SessionID string      `yaml:"session_id"`
	Tags      interface{} `yaml:"tags"`
}

var (
	idWithPrefix = regexp.MustCompile(`^(T-?\d+)`)
	idNumeric    = regexp.MustCompile(`^(\d+)`)
	idStrip      = regexp.MustCompile(`^T?-?\d+-?`)
)

// ParseFile parses a single backlog markdown file into a Task for
// projectID. Every readable file yields a task: a file with no
// recognisable id gets a "T-NNNN" id derived from a hash.
func ParseFile(path, projectID string) (*store.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backlog: read %s: %w", path, err)
	}

	fm, body := splitFrontmatter(string(data))
	name := filepath.Base(path)

	id := fm.ID
	if id == "" {
		id = extractID(name)
	}
	if id == "" {
		id = fmt.Sprintf("T-%04d", hashName(name)%10000)
	}

	title := fm.Title
	if title == "" {
		title = extractTitle(name, body)
	}

	return &store.Task{
		ID:          id,
		ProjectID:   projectID,
		Title:       title,
		Description: extractDescription(body),
		Status:      parseStatus(fm.Status),
		Priority:    parsePriority(fm.Priority),
		Assignee:    fm.Assignee,
		SessionID:   fm.SessionID,
		Branch:      fm.Branch,
		Tags:        parseTags(fm.Tags),
	}, nil
}

// ScanDirectory walks a backlog directory (recursively) for *.md files,
// skipping README/index files, and parses each into a Task.
func ScanDirectory(dir, projectID string) ([]store.Task, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var tasks []store.Task
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		lower := strings.ToLower(d.Name())
		if lower == "readme.md" || lower == "index.md" {
			return nil
		}

		t, err := ParseFile(path, projectID)
		if err != nil {
			return err
		}
		if t != nil {
			tasks = append(tasks, *t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backlog: scan %s: %w", dir, err)
	}
	return tasks, nil
}

// ToMarkdown renders a Task back to front-matter + body, the inverse of
// ParseFile, so a collaborator edit can be written back to disk.
func ToMarkdown(t store.Task) (string, error) {
	fm := frontmatter{
		ID:        t.ID,
		Status:    string(t.Status),
		Priority:  string(t.Priority),
		Assignee:  t.Assignee,
		Branch:    t.Branch,
		SessionID: t.SessionID,
	}
	if len(t.Tags) > 0 {
		fm.Tags = t.Tags
	}

	yamlBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("backlog: marshal frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(yamlBytes)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func splitFrontmatter(content string) (frontmatter, string) {
	var fm frontmatter
	if !strings.HasPrefix(content, "---") {
		return fm, content
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return fm, content
	}
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return frontmatter{}, content
	}
	return fm, strings.TrimSpace(parts[2])
}

func extractID(filename string) string {
	if m := idWithPrefix.FindStringSubmatch(filename); m != nil {
		return m[1]
	}
	if m := idNumeric.FindStringSubmatch(filename); m != nil {
		return "T-" + m[1]
	}
	return ""
}

func extractTitle(filename, body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}

	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	name = idStrip.ReplaceAllString(name, "")
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return titleCase(name)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func extractDescription(body string) string {
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" && !strings.HasPrefix(para, "#") {
			if len(para) > 500 {
				para = para[:500]
			}
			return para
		}
	}
	return ""
}

func parseStatus(v string) store.TaskStatus {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "todo", "to-do", "pending", "open", "":
		return store.TaskTodo
	case "in_progress", "in-progress", "inprogress", "wip", "working":
		return store.TaskInProgress
	case "blocked", "on-hold", "waiting":
		return store.TaskBlocked
	case "review", "needs_review", "needs-review":
		return store.TaskNeedsReview
	case "done", "completed", "closed", "finished":
		return store.TaskDone
	default:
		return store.TaskTodo
	}
}

func parsePriority(v string) store.TaskPriority {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low", "p3", "minor":
		return store.PriorityLow
	case "medium", "normal", "p2", "":
		return store.PriorityMedium
	case "high", "important", "p1":
		return store.PriorityHigh
	case "critical", "urgent", "p0", "blocker":
		return store.PriorityCritical
	default:
		return store.PriorityMedium
	}
}

func parseTags(v interface{}) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []interface{}:
		tags := make([]string, 0, len(val))
		for _, t := range val {
			if s := strings.TrimSpace(fmt.Sprint(t)); s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	case string:
		sep := " "
		if strings.Contains(val, ",") {
			sep = ","
		}
		var tags []string
		for _, t := range strings.Split(val, sep) {
			if s := strings.TrimSpace(t); s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}

func hashName(name string) int {
	h := 0
	for _, r := range name {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	return h
}
