// Package store is the result database: an embedded relational sink for
// one diff's fixed points, using github.com/mattn/go-sqlite3 through
// database/sql. The schema is a single metadata row plus one
// function-match row per fixed point, each carrying the per-match metadata
// (step name, similarity, confidence, change flags, comments-ported) a
// later session needs to reconstruct the match without re-running the
// differ.
package store
