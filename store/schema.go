package store

// Schema contains the complete DDL for the configuration store.
const Schema = `
-- Key-value blobs: settings, query caches, prompt template, sealed credentials.
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_updated ON kv(updated_at);
`
