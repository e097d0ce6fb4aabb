// Package tracker renders a job's event stream into a live chat message
// (Component F): category/tool filtering, bounded rendering, repeated-tool
// collapse, edit-rate limiting, and a sibling completion reply.
package tracker

import "encoding/json"

// DisplayMode controls how much detail a tool-start line carries.
type DisplayMode string

const (
	DisplayMinimal  DisplayMode = "minimal"
	DisplayNormal   DisplayMode = "normal"
	DisplayDetailed DisplayMode = "detailed"
)

// Config is which events a tracker message shows and how verbosely.
type Config struct {
	ShowAISpeech   bool `json:"show_ai_speech"`
	ShowAIThinking bool `json:"show_ai_thinking"`
	ShowToolStart  bool `json:"show_tool_start"`
	ShowToolResult bool `json:"show_tool_result"`
	ShowToolErrors bool `json:"show_tool_errors"`
	ShowApprovals  bool `json:"show_approvals"`

	ToolWhitelist      []string `json:"tool_whitelist,omitempty"`
	ToolBlacklist      []string `json:"tool_blacklist"`
	ShowResultForTools []string `json:"show_result_for_tools"`

	AISpeechMaxLength int         `json:"ai_speech_max_length"`
	ToolDisplayMode   DisplayMode `json:"tool_display_mode"`
	ShowFilePaths     bool        `json:"show_file_paths"`
	TruncatePaths     bool        `json:"truncate_paths"`
	PathMaxLength     int         `json:"path_max_length"`
	ShowBashCommands  bool        `json:"show_bash_commands"`
	BashCommandMaxLen int         `json:"bash_command_max_length"`

	ParseTestOutput bool `json:"parse_test_output"`
	ResultMaxLength int  `json:"result_max_length"`

	ShowProgressBar bool `json:"show_progress_bar"`
	ShowElapsedTime bool `json:"show_elapsed_time"`
	ShowFileCount   bool `json:"show_file_count"`
	ShowTurnCount   bool `json:"show_turn_count"`
	ShowTokenCount  bool `json:"show_token_count"`
	ShowCost        bool `json:"show_cost"`

	MaxEventsDisplayed    int  `json:"max_events_displayed"`
	CollapseRepeatedTools bool `json:"collapse_repeated_tools"`

	UpdateIntervalMS int `json:"update_interval_ms"`
}

// DefaultConfig is the field-level base every preset starts from. The
// "normal" preset differs from it in AISpeechMaxLength, ShowResultForTools
// and MaxEventsDisplayed.
func DefaultConfig() Config {
	return Config{
		ShowAISpeech:          true,
		ShowAIThinking:        false,
		ShowToolStart:         true,
		ShowToolResult:        false,
		ShowToolErrors:        true,
		ShowApprovals:         true,
		ToolBlacklist:         []string{},
		ShowResultForTools:    []string{"Bash", "Edit"},
		AISpeechMaxLength:     150,
		ToolDisplayMode:       DisplayNormal,
		ShowFilePaths:         true,
		TruncatePaths:         true,
		PathMaxLength:         40,
		ShowBashCommands:      true,
		BashCommandMaxLen:     50,
		ParseTestOutput:       true,
		ResultMaxLength:       100,
		ShowProgressBar:       true,
		ShowElapsedTime:       true,
		ShowFileCount:         true,
		ShowTurnCount:         true,
		ShowTokenCount:        false,
		ShowCost:              false,
		MaxEventsDisplayed:    10,
		CollapseRepeatedTools: true,
		UpdateIntervalMS:      1500,
	}
}

// Presets named after the source tool's tracker presets.
var Presets = map[string]Config{
	"minimal": func() Config {
		c := DefaultConfig()
		c.ShowAISpeech = false
		c.ShowToolResult = false
		c.ToolDisplayMode = DisplayMinimal
		c.MaxEventsDisplayed = 5
		c.ShowTurnCount = false
		return c
	}(),
	"normal": func() Config {
		c := DefaultConfig()
		c.AISpeechMaxLength = 100
		c.ShowResultForTools = []string{"Bash"}
		c.MaxEventsDisplayed = 8
		return c
	}(),
	"verbose": func() Config {
		c := DefaultConfig()
		c.AISpeechMaxLength = 200
		c.ShowToolResult = true
		c.ToolDisplayMode = DisplayDetailed
		c.MaxEventsDisplayed = 15
		c.ShowTokenCount = true
		return c
	}(),
	"debug": func() Config {
		c := DefaultConfig()
		c.ShowAIThinking = true
		c.AISpeechMaxLength = 0
		c.ShowToolResult = true
		c.ToolDisplayMode = DisplayDetailed
		c.MaxEventsDisplayed = 20
		c.ShowTokenCount = true
		c.ShowCost = true
		return c
	}(),
	"speech": func() Config {
		c := DefaultConfig()
		c.AISpeechMaxLength = 0
		c.ShowToolStart = false
		c.ShowToolResult = false
		c.MaxEventsDisplayed = 5
		c.ShowProgressBar = false
		return c
	}(),
	"tools": func() Config {
		c := DefaultConfig()
		c.ShowAISpeech = false
		c.ShowToolResult = true
		c.ToolDisplayMode = DisplayDetailed
		c.MaxEventsDisplayed = 12
		return c
	}(),
}

// GetPreset returns a named preset, or DefaultConfig if the name is unknown.
func GetPreset(name string) Config {
	if c, ok := Presets[name]; ok {
		return c
	}
	return DefaultConfig()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for n := range Presets {
		names = append(names, n)
	}
	return names
}

// ToggleableSettings maps short chat-command names onto Config fields,
// for a `/tracker <name> on|off` style toggle surface.
var ToggleableSettings = map[string]string{
	"ai":        "show_ai_speech",
	"speech":    "show_ai_speech",
	"thinking":  "show_ai_thinking",
	"tools":     "show_tool_start",
	"results":   "show_tool_result",
	"errors":    "show_tool_errors",
	"approvals": "show_approvals",
	"progress":  "show_progress_bar",
	"time":      "show_elapsed_time",
	"files":     "show_file_count",
	"turns":     "show_turn_count",
	"tokens":    "show_token_count",
	"cost":      "show_cost",
	"paths":     "show_file_paths",
	"commands":  "show_bash_commands",
	"tests":     "parse_test_output",
}

// Marshal/Unmarshal round-trip a Config through the store's
// TrackerConfigJSON override column.
func (c Config) Marshal() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func Unmarshal(data string) (Config, error) {
	c := DefaultConfig()
	if data == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
