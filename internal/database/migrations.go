package database

// migrationsSQL contains all database migrations.
// Migrations are applied in order by version number.
// Each migration should be idempotent (safe to run multiple times).
var migrationsSQL = map[int]string{
	1: migrationV1HymnSchema,
}

// migrationV1HymnSchema creates the hymn collection and its search index.
//
// Key design decisions:
//
// 1. ONE TABLE, JSON VERSES
//   - A hymn is a small self-contained document; its verses are stored as a
//     JSON array column rather than a child table. Verses are never queried
//     individually - they are only ever read and written with their hymn.
//
// 2. OPAQUE TEXT IDS
//   - id is a UUID assigned by the store at insert time and never changes.
//     number is the client-facing lookup key; id exists for identity-based
//     deletion.
//
// 3. UNIQUE NUMBER AT THE STORAGE LAYER
//   - The unique index on number is the enforcement point for the "no two
//     hymns share a number" invariant. Concurrent creates race here and the
//     loser gets a constraint error, never a silent overwrite.
//
// 4. SEPARATE FTS5 TABLE
//   - hymns_fts indexes title plus the flattened verse text. It is maintained
//     by the query layer inside the same transaction as every mutation, so the
//     index never drifts from the base table. Triggers would also work, but
//     the verse text lives inside a JSON column, so flattening happens in Go.
//   - FTS5 is only available when the driver is built with the sqlite_fts5
//     tag (see fts5_check.go and the Makefile).
const migrationV1HymnSchema = `
-- Migration 001: Hymn schema

-- ============================================================================
-- Table: hymns
-- ============================================================================
-- One row per hymn. Verses are stored as a JSON array of
-- {order, subTitle, content} objects, rendered in order sequence.
-- ============================================================================
CREATE TABLE IF NOT EXISTS hymns (
    id TEXT PRIMARY KEY,

    -- Client-facing hymn number, unique across the collection
    number INTEGER NOT NULL UNIQUE,

    title TEXT NOT NULL,

    -- Ordered verses as a JSON array
    -- Example: '[{"order":1,"subTitle":"Verse 1","content":"Amazing grace..."}]'
    verses TEXT NOT NULL DEFAULT '[]',

    -- Timestamps for auditing
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Primary lookup: find hymn by number
CREATE INDEX IF NOT EXISTS idx_hymns_number ON hymns(number);

-- ============================================================================
-- Table: hymns_fts
-- ============================================================================
-- Full-text index over title and flattened verse content.
-- hymn_id links back to hymns.id and is excluded from the index itself.
-- ============================================================================
CREATE VIRTUAL TABLE IF NOT EXISTS hymns_fts USING fts5(
    hymn_id UNINDEXED,
    title,
    content,
    tokenize = "porter unicode61"
);
`
