package events

import "testing"

func TestParseLineUnparseableYieldsEmpty(t *testing.T) {
	if got := ParseLine("not json", "S1", "j1"); got != nil {
		t.Fatalf("expected nil for garbage line, got %+v", got)
	}
	if got := ParseLine(`{"type":"unknown-family"}`, "S1", "j1"); got != nil {
		t.Fatalf("expected nil for unrecognized family, got %+v", got)
	}
}

func TestParseLineSystemInit(t *testing.T) {
	line := `{"type":"system","subtype":"init","session_id":"abc","tools":["Read","Bash"],"cwd":"/ws"}`
	got := ParseLine(line, "S1", "j1")
	if len(got) != 1 || got[0].Category != SystemInit {
		t.Fatalf("expected one system-init event, got %+v", got)
	}
	ev := got[0]
	if ev.SessionID != "abc" || ev.JobID != "j1" || ev.Cwd != "/ws" || len(ev.Tools) != 2 {
		t.Fatalf("unexpected event fields: %+v", ev)
	}
}

func TestParseLineResultWithUsage(t *testing.T) {
	line := `{"type":"result","subtype":"success","is_error":false,"cost_usd":0.42,"num_turns":3,
		"duration_ms":1500,"usage":{"input_tokens":100,"output_tokens":50}}`
	got := ParseLine(line, "S1", "j1")
	if len(got) != 1 || got[0].Category != SystemResult {
		t.Fatalf("expected one system-result event, got %+v", got)
	}
	ev := got[0]
	if ev.CostUSD != 0.42 || ev.NumTurns != 3 || ev.InputTokens != 100 || ev.OutputTokens != 50 {
		t.Fatalf("unexpected event fields: %+v", ev)
	}
}

func TestParseLineAssistantTextAndToolUseInOneLine(t *testing.T) {
	line := `{"type":"assistant","session_id":"S1","message":{"content":[
		{"type":"text","text":"let me check that"},
		{"type":"tool_use","id":"tu_1","name":"Bash","input":{"command":"ls"}}
	]}}`
	got := ParseLine(line, "S1", "j1")
	if len(got) != 2 {
		t.Fatalf("expected two events from one line, got %d: %+v", len(got), got)
	}
	if got[0].Category != AssistantText || got[0].Text != "let me check that" {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].Category != ToolUse || got[1].ToolName != "Bash" || got[1].ToolUseID != "tu_1" {
		t.Fatalf("unexpected second event: %+v", got[1])
	}
	if got[1].ToolInput["command"] != "ls" {
		t.Fatalf("expected tool input to carry command, got %+v", got[1].ToolInput)
	}
}

func TestParseLineAssistantThinking(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"hmm"}]}}`
	got := ParseLine(line, "S1", "j1")
	if len(got) != 1 || got[0].Category != AssistantThinking || got[0].Thinking != "hmm" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestParseLineToolResultStringContent(t *testing.T) {
	line := `{"type":"user","message":{"content":[
		{"type":"tool_result","tool_use_id":"tu_1","content":"file contents here","is_error":false}
	]}}`
	got := ParseLine(line, "S1", "j1")
	if len(got) != 1 || got[0].Category != ToolResult {
		t.Fatalf("expected one tool-result event, got %+v", got)
	}
	if got[0].ToolUseID != "tu_1" || got[0].Result != "file contents here" {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestParseLineToolResultBlockContent(t *testing.T) {
	line := `{"type":"user","message":{"content":[
		{"type":"tool_result","tool_use_id":"tu_2","content":[{"type":"text","text":"line one"}],"is_error":true}
	]}}`
	got := ParseLine(line, "S1", "j1")
	if len(got) != 1 || got[0].Category != ToolResult {
		t.Fatalf("expected one tool-result event, got %+v", got)
	}
	if got[0].Result != "line one" || !got[0].IsError {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestParseLineSessionIDStampedWhenAbsent(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`
	got := ParseLine(line, "S7", "j9")
	if len(got) != 1 || got[0].SessionID != "S7" || got[0].JobID != "j9" {
		t.Fatalf("expected caller session/job stamped, got %+v", got)
	}
}
