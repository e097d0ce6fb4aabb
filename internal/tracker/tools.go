package tracker

var toolIcons = map[string]string{
	"Read":         "📖",
	"Write":        "📝",
	"Edit":         "✏️",
	"MultiEdit":    "✏️",
	"Bash":         "🔨",
	"Grep":         "🔍",
	"Glob":         "📂",
	"WebFetch":     "🌐",
	"WebSearch":    "🔎",
	"TodoWrite":    "📋",
	"TodoRead":     "📋",
	"Task":         "🤖",
	"NotebookEdit": "📓",
	"NotebookRead": "📓",
}

var toolVerbs = map[string]string{
	"Read":         "Reading",
	"Write":        "Creating",
	"Edit":         "Editing",
	"MultiEdit":    "Editing",
	"Bash":         "Running",
	"Grep":         "Searching",
	"Glob":         "Finding",
	"WebFetch":     "Fetching",
	"WebSearch":    "Searching",
	"TodoWrite":    "Updating tasks",
	"TodoRead":     "Checking tasks",
	"Task":         "Spawning agent",
	"NotebookEdit": "Editing notebook",
	"NotebookRead": "Reading notebook",
}

func toolIcon(name string) string {
	if icon, ok := toolIcons[name]; ok {
		return icon
	}
	return "🔧"
}

func toolVerb(name string) string {
	if verb, ok := toolVerbs[name]; ok {
		return verb
	}
	return name
}

// collapsibleTool reports whether repeated invocations of this tool collapse
// into a single "×N" line — reserved for read-only lookups where individual
// invocations rarely matter on their own.
func collapsibleTool(name string) bool {
	return name == "Read" || name == "Glob" || name == "Grep"
}
