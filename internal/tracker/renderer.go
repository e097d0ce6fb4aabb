package tracker

import (
	"fmt"
	"regexp"
	"strings"
)

const telegramMessageLimit = 4000

// Renderer turns a State into chat message text under one Config.
type Renderer struct {
	config Config
}

func NewRenderer(config Config) *Renderer {
	return &Renderer{config: config}
}

// Keyboard is a rendered set of inline buttons, one row per slice entry.
type Keyboard struct {
	Rows [][]Button
}

type Button struct {
	Label    string
	Callback string
}

// Render produces the full message text and, if any, its inline keyboard.
func (r *Renderer) Render(s *State) (string, *Keyboard) {
	var parts []string

	parts = append(parts, r.renderHeader(s))
	parts = append(parts, "")

	if log := r.renderEvents(s.entries); log != "" {
		parts = append(parts, log, "")
	}

	if s.Status == StatusRunning && r.config.ShowProgressBar {
		parts = append(parts, r.renderProgressBar(s))
	}

	if stats := r.renderStats(s); stats != "" {
		parts = append(parts, stats)
	}

	if s.Status == StatusDone || s.Status == StatusFailed || s.Status == StatusCancelled {
		parts = append(parts, r.renderCompletion(s))
	}

	text := strings.Join(parts, "\n")
	if len(text) > telegramMessageLimit {
		text = text[:telegramMessageLimit-50] + "\n\n_...truncated_"
	}

	return text, r.renderKeyboard(s)
}

func (r *Renderer) renderHeader(s *State) string {
	icons := map[Status]string{
		StatusStarting: "🔄", StatusRunning: "🔧", StatusWaitingApproval: "⏸️",
		StatusDone: "✅", StatusFailed: "❌", StatusCancelled: "⏹️",
	}
	icon, ok := icons[s.Status]
	if !ok {
		icon = "❓"
	}

	instr := truncate(s.Instruction, 40)
	return fmt.Sprintf("%s *Job* `%s` • `%s` (%s)\n📝 _%s_", icon, s.JobID, s.SessionID, s.ProjectName, instr)
}

func (r *Renderer) renderEvents(entries []entry) string {
	if len(entries) == 0 {
		return ""
	}

	max := r.config.MaxEventsDisplayed
	display := entries
	var lines []string
	if len(entries) > max {
		lines = append(lines, fmt.Sprintf("_...%d earlier_", len(entries)-max))
		display = entries[len(entries)-max:]
	}

	if r.config.CollapseRepeatedTools {
		display = collapseRepeated(display)
	}

	for _, e := range display {
		if line := r.renderEntry(e); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// collapsed marks a run of ≥2 collapsible same-tool entries folded into one.
type collapsed struct {
	toolName string
	count    int
}

func collapseRepeated(entries []entry) []entry {
	var result []entry
	var run []entry

	flush := func() {
		if len(run) > 1 {
			result = append(result, entry{
				kind: entryToolUse, toolName: run[0].toolName,
				toolInput: map[string]any{"__collapsed_count": len(run)},
			})
		} else if len(run) == 1 {
			result = append(result, run[0])
		}
		run = nil
	}

	for _, e := range entries {
		if e.kind == entryToolUse && collapsibleTool(e.toolName) {
			if len(run) > 0 && run[0].toolName == e.toolName {
				run = append(run, e)
				continue
			}
			flush()
			run = []entry{e}
			continue
		}
		flush()
		result = append(result, e)
	}
	flush()
	return result
}

func (r *Renderer) renderEntry(e entry) string {
	if count, ok := e.toolInput["__collapsed_count"]; ok {
		return fmt.Sprintf("%s %s ×%v", toolIcon(e.toolName), e.toolName, count)
	}

	switch e.kind {
	case entrySpeech:
		if !r.config.ShowAISpeech {
			return ""
		}
		text := e.text
		if r.config.AISpeechMaxLength > 0 {
			text = truncate(text, r.config.AISpeechMaxLength)
		}
		text = strings.ReplaceAll(text, "_", "\\_")
		text = strings.ReplaceAll(text, "*", "\\*")
		return fmt.Sprintf("💬 _%s_", text)

	case entryThinking:
		if !r.config.ShowAIThinking {
			return ""
		}
		return fmt.Sprintf("🧠 _%s_", truncate(e.text, 80))

	case entryToolUse:
		if !r.config.ShowToolStart {
			return ""
		}
		return r.renderToolStart(e)

	case entryToolDone:
		if e.isError {
			if !r.config.ShowToolErrors {
				return ""
			}
			return fmt.Sprintf("   └─ ❌ %s", truncate(e.result, 80))
		}
		showForTool := containsStr(r.config.ShowResultForTools, e.toolName)
		if !r.config.ShowToolResult && !showForTool {
			return ""
		}
		return r.renderToolResult(e)

	case entryApproval:
		if !r.config.ShowApprovals {
			return ""
		}
		return fmt.Sprintf("⏸️ *Waiting*: %s %s", toolIcon(e.toolName), e.toolName)
	}
	return ""
}

func (r *Renderer) renderToolStart(e entry) string {
	icon := toolIcon(e.toolName)
	if r.config.ToolDisplayMode == DisplayMinimal {
		return icon
	}

	parts := []string{icon, toolVerb(e.toolName)}

	if fp, _ := e.toolInput["file_path"].(string); fp != "" && r.config.ShowFilePaths {
		parts = append(parts, fmt.Sprintf("`%s`", r.truncatePath(fp)))
	} else if cmd, _ := e.toolInput["command"].(string); cmd != "" && r.config.ShowBashCommands {
		parts = append(parts, fmt.Sprintf("`%s`", truncate(cmd, r.config.BashCommandMaxLen)))
	} else if pattern, _ := e.toolInput["pattern"].(string); pattern != "" {
		parts = append(parts, fmt.Sprintf("`%s`", truncate(pattern, 30)))
	} else if url, _ := e.toolInput["url"].(string); url != "" {
		parts = append(parts, truncate(url, 40))
	} else if query, _ := e.toolInput["query"].(string); query != "" {
		parts = append(parts, fmt.Sprintf("%q", truncate(query, 30)))
	} else if desc, _ := e.toolInput["description"].(string); desc != "" {
		parts = append(parts, truncate(desc, 40))
	}

	return strings.Join(parts, " ")
}

var pytestPassed = regexp.MustCompile(`(\d+) passed`)
var pytestFailed = regexp.MustCompile(`(\d+) failed`)
var jestPassed = regexp.MustCompile(`Tests:\s*(\d+) passed`)

func (r *Renderer) renderToolResult(e entry) string {
	result := e.result

	if r.config.ParseTestOutput && e.toolName == "Bash" {
		if parsed := parseTestOutput(result); parsed != "" {
			return "   └─ " + parsed
		}
	}

	result = truncate(result, r.config.ResultMaxLength)
	if strings.TrimSpace(result) == "" {
		return ""
	}
	return "   └─ " + result
}

func parseTestOutput(output string) string {
	if m := pytestPassed.FindStringSubmatch(output); m != nil {
		if f := pytestFailed.FindStringSubmatch(output); f != nil {
			return fmt.Sprintf("❌ %s passed, %s failed", m[1], f[1])
		}
		return fmt.Sprintf("✅ %s passed", m[1])
	}
	if m := jestPassed.FindStringSubmatch(output); m != nil {
		return fmt.Sprintf("✅ %s passed", m[1])
	}
	lower := strings.ToLower(output)
	if strings.Contains(lower, "error") {
		return "❌ Error"
	}
	if strings.Contains(lower, "success") || strings.Contains(lower, "passed") {
		return "✅ Success"
	}
	return ""
}

func (r *Renderer) truncatePath(path string) string {
	if !r.config.TruncatePaths || len(path) <= r.config.PathMaxLength {
		return path
	}
	keep := r.config.PathMaxLength - 3
	if keep < 0 {
		keep = 0
	}
	return "..." + path[len(path)-keep:]
}

// renderProgressBar uses the same min(events+turns, 20) activity estimate.
func (r *Renderer) renderProgressBar(s *State) string {
	activity := len(s.entries) + s.TurnCount
	if activity > 20 {
		activity = 20
	}
	return fmt.Sprintf("[%s%s]", strings.Repeat("█", activity), strings.Repeat("░", 20-activity))
}

func (r *Renderer) renderStats(s *State) string {
	var parts []string

	if r.config.ShowElapsedTime {
		mins, secs := s.ElapsedSec/60, s.ElapsedSec%60
		if mins > 0 {
			parts = append(parts, fmt.Sprintf("⏱️ %dm %ds", mins, secs))
		} else {
			parts = append(parts, fmt.Sprintf("⏱️ %ds", secs))
		}
	}

	if r.config.ShowFileCount && len(s.FilesTouched) > 0 {
		count := len(s.FilesTouched)
		plural := ""
		if count != 1 {
			plural = "s"
		}
		parts = append(parts, fmt.Sprintf("📝 %d file%s", count, plural))
	}

	if r.config.ShowTurnCount && s.TurnCount > 0 {
		parts = append(parts, fmt.Sprintf("🔄 %d", s.TurnCount))
	}

	if r.config.ShowTokenCount {
		tokens := s.InputTokens + s.OutputTokens
		if tokens > 1000 {
			parts = append(parts, fmt.Sprintf("🔤 %dk", tokens/1000))
		} else if tokens > 0 {
			parts = append(parts, fmt.Sprintf("🔤 %d", tokens))
		}
	}

	if r.config.ShowCost && s.CostUSD > 0 {
		parts = append(parts, fmt.Sprintf("💰 $%.3f", s.CostUSD))
	}

	return strings.Join(parts, " • ")
}

func (r *Renderer) renderCompletion(s *State) string {
	switch s.Status {
	case StatusDone:
		result := s.FinalResult
		if result == "" {
			result = "Completed"
		}
		return fmt.Sprintf("\n✅ *Done*\n_%s_", truncate(result, 150))
	case StatusFailed:
		errMsg := s.Error
		if errMsg == "" {
			errMsg = "Unknown error"
		}
		return fmt.Sprintf("\n❌ *Failed*\n_%s_", truncate(errMsg, 150))
	case StatusCancelled:
		return "\n⏹️ *Cancelled*"
	}
	return ""
}

func (r *Renderer) renderKeyboard(s *State) *Keyboard {
	if s.Status == StatusDone || s.Status == StatusFailed || s.Status == StatusCancelled {
		return &Keyboard{Rows: [][]Button{{
			{Label: "📋 Summary", Callback: "tracker:summary:" + s.JobID},
			{Label: "📜 Logs", Callback: "tracker:logs:" + s.JobID},
		}}}
	}

	var buttons []Button
	if s.UpdatesPaused {
		buttons = append(buttons, Button{Label: "▶️ Resume", Callback: "tracker:resume:" + s.JobID})
	} else {
		buttons = append(buttons, Button{Label: "⏸️ Pause", Callback: "tracker:pause:" + s.JobID})
	}
	buttons = append(buttons, Button{Label: "⏹️ Cancel", Callback: "tracker:cancel:" + s.JobID})
	return &Keyboard{Rows: [][]Button{buttons}}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
