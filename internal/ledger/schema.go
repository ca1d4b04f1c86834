package ledger

// schemaVersion is bumped whenever schema changes incompatibly.
const schemaVersion = "1"

const schema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- One row per finished plan run.
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    plan_id TEXT NOT NULL,
    root TEXT NOT NULL,
    state TEXT NOT NULL,
    reason TEXT,
    steps INTEGER NOT NULL,       -- steps in the plan
    succeeded INTEGER NOT NULL,
    waves INTEGER NOT NULL,
    snapshot_id TEXT,
    restored_snapshot_id TEXT,
    started_at INTEGER NOT NULL,  -- unix nanoseconds
    finished_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_plan_id ON runs(plan_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

-- One row per step attempt, in ledger order.
CREATE TABLE IF NOT EXISTS corrections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    plan_id TEXT NOT NULL,
    step_index INTEGER NOT NULL,
    attempt INTEGER NOT NULL,
    original_action TEXT NOT NULL,  -- JSON action spec
    corrected_action TEXT,
    category TEXT,
    message TEXT,
    exit_code INTEGER,
    pattern TEXT,
    confidence REAL,
    note TEXT,
    outcome TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    at INTEGER NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_corrections_run_id ON corrections(run_id);
CREATE INDEX IF NOT EXISTS idx_corrections_plan_id ON corrections(plan_id);
`
