package journal

// Schema contains SQL schema definitions for the journal.
// Timestamps are stored as RFC 3339 text.
const Schema = `
CREATE TABLE IF NOT EXISTS apply_runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    planned INTEGER NOT NULL DEFAULT 0,
    applied INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS apply_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    stored_id TEXT NOT NULL,
    remote_id TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    operation TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    FOREIGN KEY (run_id) REFERENCES apply_runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_apply_entries_run_id ON apply_entries(run_id);
CREATE INDEX IF NOT EXISTS idx_apply_entries_stored_id ON apply_entries(stored_id);
CREATE INDEX IF NOT EXISTS idx_apply_entries_created_at ON apply_entries(created_at);
`
