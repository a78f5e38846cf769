package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
)

// ErrNotOpen is returned by any operation attempted after Close.
var ErrNotOpen = errors.New("store: database not open")

const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	primary_filename TEXT NOT NULL,
	secondary_filename TEXT NOT NULL,
	primary_md_index REAL NOT NULL,
	secondary_md_index REAL NOT NULL,
	similarity REAL NOT NULL,
	confidence REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS function_matches (
	primary_address INTEGER NOT NULL,
	secondary_address INTEGER NOT NULL,
	primary_name TEXT NOT NULL,
	secondary_name TEXT NOT NULL,
	similarity REAL NOT NULL,
	confidence REAL NOT NULL,
	primary_md_index REAL NOT NULL,
	secondary_md_index REAL NOT NULL,
	primary_library INTEGER NOT NULL,
	secondary_library INTEGER NOT NULL,
	algorithm TEXT NOT NULL,
	change_flags INTEGER NOT NULL,
	comments_ported INTEGER NOT NULL,
	basic_blocks_matched INTEGER NOT NULL,
	primary_basic_blocks INTEGER NOT NULL,
	secondary_basic_blocks INTEGER NOT NULL,
	PRIMARY KEY (primary_address, secondary_address)
);
`

// DB is a single diff's result sink. It is not safe for concurrent use by
// more than one goroutine, matching the per-worker, single-owner ownership
// model of the fixed-point store and call graphs. The batch driver does not
// open a DB; a caller that writes results from several goroutines opens
// one DB per goroutine.
type DB struct {
	conn *sql.DB
}

// Open creates (or replaces, if recreate is true) a SQLite database at path
// and installs the schema.
func Open(path string, recreate bool) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if recreate {
		if _, err := conn.Exec(`DROP TABLE IF EXISTS metadata; DROP TABLE IF EXISTS function_matches;`); err != nil {
			conn.Close()
			return nil, fmt.Errorf("store: recreate %q: %w", path, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}

// WriteMetadata records the one-row diff summary: both filenames, both
// call-graph MD-indices, and the whole-diff similarity/confidence.
func (db *DB) WriteMetadata(ctx context.Context, primary, secondary *model.CallGraph, similarity, confidence float64) error {
	if db.conn == nil {
		return ErrNotOpen
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO metadata (id, primary_filename, secondary_filename, primary_md_index, secondary_md_index, similarity, confidence)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		primary.ExeFilename(), secondary.ExeFilename(), primary.MdIndex(), secondary.MdIndex(), similarity, confidence)
	if err != nil {
		return fmt.Errorf("store: write metadata: %w", err)
	}
	return nil
}

// WriteFixedPoints persists every fixed point in store as one
// function_matches row, inside a single transaction.
func (db *DB) WriteFixedPoints(ctx context.Context, store *fixedpoint.Store) error {
	if db.conn == nil {
		return ErrNotOpen
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO function_matches (
			primary_address, secondary_address, primary_name, secondary_name,
			similarity, confidence, primary_md_index, secondary_md_index,
			primary_library, secondary_library, algorithm,
			change_flags, comments_ported,
			basic_blocks_matched, primary_basic_blocks, secondary_basic_blocks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, fp := range store.All() {
		p, s := fp.Primary, fp.Secondary
		pCG, sCG := p.CallGraph(), s.CallGraph()
		_, err := stmt.ExecContext(ctx,
			uint64(p.EntryAddress()), uint64(s.EntryAddress()), p.Name(), s.Name(),
			fp.Similarity(), fp.Confidence(),
			pCG.FunctionMDTopDown(p.CallGraphVertex()), sCG.FunctionMDTopDown(s.CallGraphVertex()),
			p.IsLibrary(), s.IsLibrary(), fp.MatchingStep(),
			int(fp.Flags()), fp.CommentsPorted(),
			len(fp.BasicBlockFixedPoints()), p.BasicBlockCount(), s.BasicBlockCount(),
		)
		if err != nil {
			return fmt.Errorf("store: insert function match %s: %w", p.Name(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// FunctionMatch is one persisted function_matches row as read back by
// ReadFunctionMatches: the metadata a later session (or the UI layer) needs
// to reconstruct a match without re-running the differ.
type FunctionMatch struct {
	PrimaryAddress   model.Address
	SecondaryAddress model.Address
	PrimaryName      string
	SecondaryName    string
	Similarity       float64
	Confidence       float64
	Algorithm        string
	ChangeFlags      fixedpoint.ChangeFlag
	CommentsPorted   bool
}

// ReadFunctionMatches returns every persisted function match, ordered by
// (primary address, secondary address) — the same canonical order the
// fixed-point store iterates in.
func (db *DB) ReadFunctionMatches(ctx context.Context) ([]FunctionMatch, error) {
	if db.conn == nil {
		return nil, ErrNotOpen
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT primary_address, secondary_address, primary_name, secondary_name,
		       similarity, confidence, algorithm, change_flags, comments_ported
		FROM function_matches
		ORDER BY primary_address, secondary_address`)
	if err != nil {
		return nil, fmt.Errorf("store: read function matches: %w", err)
	}
	defer rows.Close()

	var out []FunctionMatch
	for rows.Next() {
		var m FunctionMatch
		var pAddr, sAddr uint64
		var flags int
		if err := rows.Scan(&pAddr, &sAddr, &m.PrimaryName, &m.SecondaryName,
			&m.Similarity, &m.Confidence, &m.Algorithm, &flags, &m.CommentsPorted); err != nil {
			return nil, fmt.Errorf("store: scan function match: %w", err)
		}
		m.PrimaryAddress = model.Address(pAddr)
		m.SecondaryAddress = model.Address(sAddr)
		m.ChangeFlags = fixedpoint.ChangeFlag(flags)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read function matches: %w", err)
	}
	return out, nil
}

// FunctionMatchCount returns the number of rows currently in
// function_matches, mainly for tests and sanity-checking a written result.
func (db *DB) FunctionMatchCount(ctx context.Context) (int, error) {
	if db.conn == nil {
		return 0, ErrNotOpen
	}
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM function_matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count function matches: %w", err)
	}
	return n, nil
}
