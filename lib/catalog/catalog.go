// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/scr-hpc/scrfetch/lib/sqlitepool"
)

// Unbounded is the "no upper bound" sentinel for
// GetMostRecentComplete, matching the Attempt Driver's initial
// previous-candidate value (spec §4.7: "initialised to -1, meaning
// 'unbounded'").
const Unbounded int64 = -1

// schema creates the single checkpoints table backing the catalog.
// One row per checkpoint discovered under the prefix directory.
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	checkpoint_id INTEGER PRIMARY KEY,
	directory     TEXT NOT NULL,
	dataset_id    INTEGER NOT NULL DEFAULT 0,
	name          TEXT NOT NULL DEFAULT '',
	complete      INTEGER NOT NULL DEFAULT 0,
	fetched       INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_directory ON checkpoints(directory);
`

// Entry is one catalog row (spec §3's "Checkpoint index entry:
// {dataset_id, subdirectory_name, flags {complete, fetched, failed},
// user-visible checkpoint name}").
type Entry struct {
	CheckpointID int64
	Directory    string
	DatasetID    int64
	Name         string
	Complete     bool
	Fetched      bool
	Failed       bool
}

// Index is the index catalog over a PFS prefix directory. It wraps a
// SQLite-backed connection pool and the prefix's "current" symlink.
//
// Index is safe for concurrent use; SQLite serializes writers and the
// current-pointer operations are individually atomic, but a caller
// driving concurrent fetches of the same prefix must still serialize
// at a higher level (spec's Non-goals already exclude that case).
type Index struct {
	pool   *sqlitepool.Pool
	prefix string
}

// Open opens (or creates) the index catalog database at
// filepath.Join(prefixDir, dbName) and ensures its schema exists.
// prefixDir is the PFS prefix directory that also hosts the "current"
// symlink.
func Open(ctx context.Context, prefixDir, dbName string) (*Index, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(prefixDir, dbName),
		PoolSize: 4,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: opening index: %w", err)
	}
	return &Index{pool: pool, prefix: prefixDir}, nil
}

// Close closes the underlying connection pool.
func (idx *Index) Close() error {
	return idx.pool.Close()
}

// Put inserts or replaces a catalog entry (spec §6's "read, write"
// operations). The Attempt Driver does not call it; entries are
// written by whoever populates the catalog.
func (idx *Index) Put(ctx context.Context, e Entry) error {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: put: %w", err)
	}
	defer idx.pool.Put(conn)

	return sqlitex.Execute(conn,
		`INSERT INTO checkpoints (checkpoint_id, directory, dataset_id, name, complete, fetched, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(checkpoint_id) DO UPDATE SET
			directory  = excluded.directory,
			dataset_id = excluded.dataset_id,
			name       = excluded.name,
			complete   = excluded.complete,
			fetched    = excluded.fetched,
			failed     = excluded.failed`,
		&sqlitex.ExecOptions{
			Args: []any{e.CheckpointID, e.Directory, e.DatasetID, e.Name, boolToInt(e.Complete), boolToInt(e.Fetched), boolToInt(e.Failed)},
		})
}

// GetIDByDir returns the checkpoint id registered for directory dir
// (spec §6: "get_id_by_dir(dir) → id").
func (idx *Index) GetIDByDir(ctx context.Context, dir string) (int64, error) {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: get id by dir: %w", err)
	}
	defer idx.pool.Put(conn)

	var id int64
	found := false
	err = sqlitex.Execute(conn,
		"SELECT checkpoint_id FROM checkpoints WHERE directory = ?",
		&sqlitex.ExecOptions{
			Args: []any{dir},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				id = stmt.ColumnInt64(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("catalog: get id by dir %s: %w", dir, err)
	}
	if !found {
		return 0, fmt.Errorf("catalog: no checkpoint registered for directory %s", dir)
	}
	return id, nil
}

// GetMostRecentComplete returns the id and directory of the
// highest-numbered complete checkpoint strictly less than
// strictlyLessThanID, or Unbounded for no upper bound (spec §6:
// "get_most_recent_complete(strictly_less_than_id) → (id, dir)").
// found is false if no complete checkpoint satisfies the bound.
func (idx *Index) GetMostRecentComplete(ctx context.Context, strictlyLessThanID int64) (id int64, dir string, found bool, err error) {
	conn, takeErr := idx.pool.Take(ctx)
	if takeErr != nil {
		return 0, "", false, fmt.Errorf("catalog: get most recent complete: %w", takeErr)
	}
	defer idx.pool.Put(conn)

	query := "SELECT checkpoint_id, directory FROM checkpoints WHERE complete = 1"
	args := []any{}
	if strictlyLessThanID != Unbounded {
		query += " AND checkpoint_id < ?"
		args = append(args, strictlyLessThanID)
	}
	query += " ORDER BY checkpoint_id DESC LIMIT 1"

	execErr := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id = stmt.ColumnInt64(0)
			dir = stmt.ColumnText(1)
			found = true
			return nil
		},
	})
	if execErr != nil {
		return 0, "", false, fmt.Errorf("catalog: get most recent complete: %w", execErr)
	}
	return id, dir, found, nil
}

// MarkFetched marks the checkpoint at id/dir as fetched (spec §6:
// "mark_fetched(id, dir)").
func (idx *Index) MarkFetched(ctx context.Context, id int64, dir string) error {
	return idx.setFlag(ctx, id, dir, "fetched", true)
}

// MarkFailed marks the checkpoint at id/dir as failed (spec §6:
// "mark_failed(id, dir)").
func (idx *Index) MarkFailed(ctx context.Context, id int64, dir string) error {
	return idx.setFlag(ctx, id, dir, "failed", true)
}

func (idx *Index) setFlag(ctx context.Context, id int64, dir, column string, value bool) error {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: mark %s: %w", column, err)
	}
	defer idx.pool.Put(conn)

	query := fmt.Sprintf("UPDATE checkpoints SET %s = ? WHERE checkpoint_id = ? AND directory = ?", column)
	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{boolToInt(value), id, dir},
	})
}

// currentLinkName is the symlink name within the prefix directory
// (spec §6: "<prefix>/current → <subdirectory>").
const currentLinkName = "current"

// SetCurrent points the "current" symlink at subdirectory, replacing
// any existing link (spec §6: "Created on successful fetch").
// subdirectory must be relative to idx's prefix directory.
func (idx *Index) SetCurrent(subdirectory string) error {
	link := filepath.Join(idx.prefix, currentLinkName)
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("catalog: removing stale current pointer: %w", err)
	}
	if err := os.Symlink(subdirectory, link); err != nil {
		return fmt.Errorf("catalog: setting current pointer to %s: %w", subdirectory, err)
	}
	return nil
}

// ClearCurrent unlinks the "current" pointer, if present (spec §6:
// "unlinked on failure").
func (idx *Index) ClearCurrent() error {
	link := filepath.Join(idx.prefix, currentLinkName)
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("catalog: clearing current pointer: %w", err)
	}
	return nil
}

// ReadCurrent resolves the "current" pointer to its target
// subdirectory. ok is false if the pointer does not exist.
func (idx *Index) ReadCurrent() (subdirectory string, ok bool, err error) {
	link := filepath.Join(idx.prefix, currentLinkName)
	target, err := os.Readlink(link)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("catalog: reading current pointer: %w", err)
	}
	return target, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
