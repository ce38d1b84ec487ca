package db

const Schema = `
CREATE TABLE IF NOT EXISTS collection_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_hash TEXT NOT NULL,
    time INTEGER NOT NULL,
    semesters INTEGER NOT NULL,
    courses INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_collection_runs_user
    ON collection_runs (user_hash, time);
`
