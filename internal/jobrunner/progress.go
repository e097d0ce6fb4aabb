package jobrunner

import "github.com/televibecode/televibe/internal/events"

// Progress is the aggregate view of a running job, updated as events
// stream in. Rendering it for a chat audience is the tracker's job.
type Progress struct {
	JobID          string
	Status         string
	ElapsedSeconds int
	FilesTouched   []string
	CurrentTool    string
	ToolCount      int
	MessageCount   int
	LastMessage    string
	Error          string
}

var fileToolNames = map[string]bool{
	"Write": true, "Edit": true, "MultiEdit": true, "NotebookEdit": true,
}

// applyEvent folds one parsed event into the running progress snapshot.
func (p *Progress) applyEvent(ev events.Event) {
	switch ev.Category {
	case events.AssistantText:
		if ev.Text == "" {
			return
		}
		p.MessageCount++
		p.LastMessage = truncate(ev.Text, 100)

	case events.ToolUse:
		p.ToolCount++
		p.CurrentTool = ev.ToolName
		if fileToolNames[ev.ToolName] {
			if fp, ok := ev.ToolInput["file_path"].(string); ok && fp != "" {
				if !containsStr(p.FilesTouched, fp) {
					p.FilesTouched = append(p.FilesTouched, fp)
				}
			}
		}

	case events.ToolResult:
		p.CurrentTool = ""
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
