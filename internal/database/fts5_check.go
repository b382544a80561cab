//go:build !sqlite_fts5

package database

// The hymn search index is an FTS5 virtual table, and mattn/go-sqlite3 only
// compiles the FTS5 extension in when the sqlite_fts5 build tag is set:
//
//	go build -tags sqlite_fts5 ./...
//	go test -tags sqlite_fts5 ./...
//
// (or use the Makefile targets, which set the tag). Without the tag the
// failure would otherwise surface at migration time as "no such module:
// fts5"; this file turns it into a compile error that names the tag.
var _ = buildRequiresTheSqliteFts5Tag
