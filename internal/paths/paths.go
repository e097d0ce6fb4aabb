// Package paths resolves the `.televibe/` filesystem layout for a project.
//
// The layout is rooted at the project's repository path, not a global home
// directory, per the external interfaces section of the spec:
//
//	<root>/.televibe/state.db
//	<root>/.televibe/logs/<job-id>_<timestamp>.log
//	<root>/.televibe/workspaces/<session-id>/
//	<root>/.televibe/restart_state.json
//	<root>/.televibe/health.flag
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

const dotDir = ".televibe"

// Project resolves every `.televibe/` path for one project root.
type Project struct {
	root string
}

// ForProject returns a Project rooted at the given repository path.
func ForProject(root string) Project {
	return Project{root: root}
}

func (p Project) Dir() string           { return filepath.Join(p.root, dotDir) }
func (p Project) StateDB() string       { return filepath.Join(p.Dir(), "state.db") }
func (p Project) LogsDir() string       { return filepath.Join(p.Dir(), "logs") }
func (p Project) WorkspacesDir() string { return filepath.Join(p.Dir(), "workspaces") }
func (p Project) RestartState() string { return filepath.Join(p.Dir(), "restart_state.json") }
func (p Project) HealthFlag() string   { return filepath.Join(p.Dir(), "health.flag") }

// WorkspaceDir returns the isolated working-copy path for a session id.
func (p Project) WorkspaceDir(sessionID string) string {
	return filepath.Join(p.WorkspacesDir(), sessionID)
}

// JobLogPath returns the per-job raw event log path.
func (p Project) JobLogPath(jobID, timestamp string) string {
	return filepath.Join(p.LogsDir(), jobID+"_"+timestamp+".log")
}

// EnsureLayout creates .televibe/, logs/, and workspaces/ if missing.
func (p Project) EnsureLayout() error {
	for _, d := range []string{p.Dir(), p.LogsDir(), p.WorkspacesDir()} {
		if err := EnsureDir(d); err != nil {
			return err
		}
	}
	return nil
}

// EnsureDir creates the directory and all parents if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// GetWorkspaceHash returns a short SHA256 hash of an absolute path; GetLogDir,
// GetSessionDir and GetShadowGitDir use it to key per-path scratch
// directories under a single global root rather than a project root.
func GetWorkspaceHash(workspaceRoot string) string {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		abs = workspaceRoot
	}
	hash := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(hash[:8])
}

// GetGlobalDir returns a process-wide scratch directory in the user's home,
// the root of the GetLogDir, GetSessionDir and GetShadowGitDir layouts.
func GetGlobalDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".televibe")
}

// GetLogDir returns a global log directory keyed by workspace path hash, for
// callers that have not been migrated to the per-project Project.LogsDir.
func GetLogDir(workspaceRoot string) string {
	return filepath.Join(GetGlobalDir(), "logs", GetWorkspaceHash(workspaceRoot))
}

// GetSessionDir and GetShadowGitDir retain the teacher's global, hash-keyed
// scratch layout for agent session data and shadow-git copies. No package
// in this module calls them, nor GetLogDir.
func GetSessionDir(workspaceRoot string) string {
	return filepath.Join(GetGlobalDir(), "sessions", GetWorkspaceHash(workspaceRoot))
}

func GetShadowGitDir(workspaceRoot string) string {
	return filepath.Join(GetGlobalDir(), "shadow-git", GetWorkspaceHash(workspaceRoot))
}
