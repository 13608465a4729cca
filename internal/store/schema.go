package store

const schema = `
CREATE TABLE IF NOT EXISTS capabilities (
    name TEXT PRIMARY KEY,
    state_name TEXT NOT NULL,
    change_stamp INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    session_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS current_usage (
    capability TEXT NOT NULL,
    app_id TEXT NOT NULL,
    packaged BOOLEAN NOT NULL,
    in_use BOOLEAN NOT NULL,
    last_used_stop TIMESTAMP,
    PRIMARY KEY (capability, app_id),
    FOREIGN KEY (capability) REFERENCES capabilities(name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_usage_in_use ON current_usage(in_use);
`
