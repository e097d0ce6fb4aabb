// Package events is the event protocol (Component D): a total parser from
// the assistant's line-delimited stream-JSON output into a closed set of
// typed events.
package events

import "encoding/json"

type Category string

const (
	SystemInit        Category = "system-init"
	SystemResult      Category = "system-result"
	AssistantText     Category = "assistant-text"
	AssistantThinking Category = "assistant-thinking"
	ToolUse           Category = "tool-use"
	ToolResult        Category = "tool-result"
)

// Event is the tagged union of everything the parser can emit. Only the
// fields relevant to Category are populated; the rest are zero values.
type Event struct {
	Category  Category
	SessionID string
	JobID     string

	// system-init
	Tools []string
	Cwd   string

	// system-result
	ResultSubtype string
	IsError       bool
	ErrorMessage  string
	CostUSD       float64
	NumTurns      int
	DurationMS    int
	InputTokens   int
	OutputTokens  int

	// assistant-text
	Text string

	// assistant-thinking
	Thinking string

	// tool-use
	ToolUseID string
	ToolName  string
	ToolInput map[string]any

	// tool-result
	Result string
}

type wireLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	IsError   bool            `json:"is_error"`
	Message   wireMessage     `json:"message"`
	Usage     wireUsage       `json:"usage"`
	Tools     []string        `json:"tools"`
	Cwd       string          `json:"cwd"`
	CostUSD   *float64        `json:"cost_usd"`
	NumTurns  int             `json:"num_turns"`
	DurationMS int            `json:"duration_ms"`
	ErrorMessage *string      `json:"error_message"`
	Raw       json.RawMessage `json:"-"`
}

type wireMessage struct {
	Content []wireContent `json:"content"`
}

type wireContent struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Thinking  string         `json:"thinking"`
	Name      string         `json:"name"`
	ID        string         `json:"id"`
	Input     map[string]any `json:"input"`
	ToolUseID string         `json:"tool_use_id"`
	Content   any            `json:"content"`
	IsError   bool           `json:"is_error"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ParseLine parses one line of assistant stdout into zero or more events.
// It is total: any unparseable or unrecognized line yields an empty slice,
// never an error. jobID is stamped onto every emitted event; sessionID is
// used only when the line carries no session_id of its own.
func ParseLine(line, sessionID, jobID string) []Event {
	var w wireLine
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return nil
	}

	sid := sessionID
	if w.SessionID != "" {
		sid = w.SessionID
	}

	var out []Event

	switch w.Type {
	case "system":
		if w.Subtype == "init" {
			out = append(out, Event{
				Category: SystemInit, SessionID: sid, JobID: jobID,
				Tools: w.Tools, Cwd: w.Cwd,
			})
		}

	case "result":
		subtype := w.Subtype
		if subtype == "" {
			subtype = "success"
		}
		ev := Event{
			Category: SystemResult, SessionID: sid, JobID: jobID,
			ResultSubtype: subtype, IsError: w.IsError,
			NumTurns: w.NumTurns, DurationMS: w.DurationMS,
			InputTokens: w.Usage.InputTokens, OutputTokens: w.Usage.OutputTokens,
		}
		if w.CostUSD != nil {
			ev.CostUSD = *w.CostUSD
		}
		if w.ErrorMessage != nil {
			ev.ErrorMessage = *w.ErrorMessage
		}
		out = append(out, ev)

	case "assistant":
		for _, c := range w.Message.Content {
			switch c.Type {
			case "text":
				out = append(out, Event{Category: AssistantText, SessionID: sid, JobID: jobID, Text: c.Text})
			case "thinking":
				out = append(out, Event{Category: AssistantThinking, SessionID: sid, JobID: jobID, Thinking: c.Thinking})
			case "tool_use":
				out = append(out, Event{
					Category: ToolUse, SessionID: sid, JobID: jobID,
					ToolName: c.Name, ToolUseID: c.ID, ToolInput: c.Input,
				})
			}
		}

	case "user":
		for _, c := range w.Message.Content {
			if c.Type != "tool_result" {
				continue
			}
			out = append(out, Event{
				Category: ToolResult, SessionID: sid, JobID: jobID,
				ToolUseID: c.ToolUseID, Result: stringifyContent(c.Content), IsError: c.IsError,
			})
		}
	}

	return out
}

// stringifyContent normalizes the tool_result content field, which may be
// either a plain string or a list of content blocks, into one string.
func stringifyContent(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var parts []string
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
					continue
				}
			}
		}
		joined := ""
		for i, p := range parts {
			if i > 0 {
				joined += "\n"
			}
			joined += p
		}
		return joined
	default:
		return ""
	}
}
