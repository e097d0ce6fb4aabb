package store

import "database/sql"

// schema creates every table if it does not already exist. Grounded on the
// stringwork sqlite store's schema-constant style.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	path TEXT NOT NULL,
	remote_url TEXT NOT NULL DEFAULT '',
	default_branch TEXT NOT NULL DEFAULT 'main',
	tasks_dir TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	display_name TEXT NOT NULL DEFAULT '',
	workspace_path TEXT NOT NULL,
	branch TEXT NOT NULL,
	state TEXT NOT NULL,
	mode TEXT NOT NULL DEFAULT 'isolated-working-copy',
	current_job_id TEXT NOT NULL DEFAULT '',
	last_activity_at TEXT NOT NULL,
	last_summary TEXT NOT NULL DEFAULT '',
	attached_task_ids TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT 'medium',
	assignee TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	branch TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	project_id TEXT NOT NULL REFERENCES projects(id),
	raw_input TEXT NOT NULL,
	instruction TEXT NOT NULL,
	status TEXT NOT NULL,
	approval_scope TEXT NOT NULL DEFAULT '',
	log_path TEXT NOT NULL DEFAULT '',
	result_summary TEXT NOT NULL DEFAULT '',
	files_changed TEXT NOT NULL DEFAULT '[]',
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	started_at TEXT NOT NULL DEFAULT '',
	finished_at TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS approvals (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES jobs(id),
	session_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	type TEXT NOT NULL,
	description TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '{}',
	state TEXT NOT NULL,
	resolved_by TEXT NOT NULL DEFAULT '',
	resolved_at TEXT NOT NULL DEFAULT '',
	chat_locator TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_preferences (
	user_id TEXT PRIMARY KEY,
	preferred_model_id TEXT NOT NULL DEFAULT '',
	preferred_provider TEXT NOT NULL DEFAULT '',
	active_session_id TEXT NOT NULL DEFAULT '',
	notifications_on INTEGER NOT NULL DEFAULT 1,
	tracker_preset_name TEXT NOT NULL DEFAULT 'normal',
	tracker_config_json TEXT NOT NULL DEFAULT ''
);
`

const indexes = `
CREATE INDEX IF NOT EXISTS idx_sessions_project_id ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_session_id ON tasks(session_id);
CREATE INDEX IF NOT EXISTS idx_jobs_session_id ON jobs(session_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_approvals_job_id ON approvals(job_id);
CREATE INDEX IF NOT EXISTS idx_approvals_state ON approvals(state);
`

// runMigrations applies additive schema changes for databases created by an
// older version of this package. Each ALTER is idempotent by ignoring the
// "duplicate column" error SQLite returns on a column that already exists,
// matching the stringwork store's migration idiom.
//
//	_, _ = db.Exec("ALTER TABLE sessions ADD COLUMN ...")
//
// No columns have been added since the initial schema; this is the hook
// future additive migrations append to, one ALTER per line, errors
// discarded.
func runMigrations(db *sql.DB) {}
