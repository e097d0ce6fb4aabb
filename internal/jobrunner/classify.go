package jobrunner

import (
	"regexp"
	"strings"

	"github.com/televibecode/televibe/internal/events"
	"github.com/televibecode/televibe/internal/store"
)

var (
	gitPushPattern = regexp.MustCompile(`\bgit\s+push\b`)
	deployPattern  = regexp.MustCompile(`\bdeploy\b`)
	dangerousPattern = regexp.MustCompile(`\brm\s+-rf\b|\bdrop\s+table\b`)
)

// classifyApproval decides whether a tool-use event is a privileged action
// requiring explicit user consent before the runner lets the child proceed,
// and if so which approval type and description to open it under.
//
// Read-only and low-risk tools (Read, Grep, Glob, TodoWrite/Read,
// NotebookRead, Task) never require approval. File-mutating tools require
// file-write approval. Bash commands are inspected for git push, deploy and
// destructive patterns before falling back to a plain shell-command
// approval; network-fetching tools require external-request approval.
func classifyApproval(ev events.Event) (typ store.ApprovalType, needed bool, description string, details map[string]string) {
	if ev.Category != events.ToolUse {
		return "", false, "", nil
	}

	switch ev.ToolName {
	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		fp, _ := ev.ToolInput["file_path"].(string)
		return store.ApprovalFileWrite, true, "write to " + fp, map[string]string{"file_path": fp}

	case "Bash":
		cmd, _ := ev.ToolInput["command"].(string)
		switch {
		case gitPushPattern.MatchString(cmd):
			return store.ApprovalGitPush, true, "run: " + cmd, map[string]string{"command": cmd}
		case dangerousPattern.MatchString(strings.ToLower(cmd)):
			return store.ApprovalDangerousEdit, true, "run: " + cmd, map[string]string{"command": cmd}
		case deployPattern.MatchString(strings.ToLower(cmd)):
			return store.ApprovalDeploy, true, "run: " + cmd, map[string]string{"command": cmd}
		default:
			return store.ApprovalShellCommand, true, "run: " + cmd, map[string]string{"command": cmd}
		}

	case "WebFetch", "WebSearch":
		url, _ := ev.ToolInput["url"].(string)
		query, _ := ev.ToolInput["query"].(string)
		desc := url
		if desc == "" {
			desc = query
		}
		return store.ApprovalExternal, true, "external request: " + desc, map[string]string{"url": url, "query": query}

	default:
		return "", false, "", nil
	}
}
