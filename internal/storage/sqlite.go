// Package storage implements domain.Storage over an embedded SQLite
// database, the C7 "Storage adapter" component from spec.md §4.7: the only
// package in docdb that knows it is talking to SQLite.
//
// Grounded on stevemurr-simple-sync-server/store/sqlite.go for the
// plain database/sql + mattn/go-sqlite3 shape (PRAGMA journal_mode=WAL,
// CREATE TABLE IF NOT EXISTS) and on other_examples/a-h-sqlitekv's
// Query/Mutation split for the adapter's parameterized-statement surface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/opendocdb/docdb/domain"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	collection_name TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	data            TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_name);
`

// SQLite implements domain.Storage over a single *sql.DB handle shared by
// every Collection the owning Store hands out (spec.md §5: "a single
// shared database handle is used process-wide").
type SQLite struct {
	db *sql.DB
}

var _ domain.Storage = (*SQLite)(nil)

// Open opens (creating if absent) the SQLite file at path, enables WAL
// journaling and foreign-key enforcement, and ensures the documents/
// collections schema exists, per spec.md §3 and §6.
func Open(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("docdb: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("docdb: %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("docdb: ensure schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting every write
// helper below run either against the shared handle or, when called from
// inside Transaction, against the active tx stashed in ctx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) execerFor(ctx context.Context) execer {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

// Execute implements domain.Storage.
func (s *SQLite) Execute(ctx context.Context, sqlStmt string, args ...any) error {
	_, err := s.execerFor(ctx).ExecContext(ctx, sqlStmt, args...)
	return err
}

// Query implements domain.Storage. The statement is expected to project
// id, data, created_at, updated_at in that order, matching every read path
// in the root docdb package.
func (s *SQLite) Query(ctx context.Context, sqlStmt string, args ...any) ([]domain.Row, error) {
	rows, err := s.db.QueryContext(ctx, sqlStmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Row
	for rows.Next() {
		var (
			id                   string
			raw                  string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&id, &raw, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		var doc domain.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("docdb: decode document %s: %w", id, err)
		}
		out = append(out, domain.Row{ID: id, Data: doc, CreatedAt: createdAt, UpdatedAt: updatedAt})
	}
	return out, rows.Err()
}

// RawQuery implements domain.Storage, used for scalar aggregates such as
// SELECT COUNT(*).
func (s *SQLite) RawQuery(ctx context.Context, sqlStmt string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, sqlStmt, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Insert implements domain.Storage.
func (s *SQLite) Insert(ctx context.Context, collection string, row domain.Row) error {
	raw, err := json.Marshal(row.Data)
	if err != nil {
		return err
	}
	_, err = s.execerFor(ctx).ExecContext(ctx,
		`INSERT INTO documents (id, collection_name, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		row.ID, collection, string(raw), row.CreatedAt, row.UpdatedAt,
	)
	return err
}

// Update implements domain.Storage.
func (s *SQLite) Update(ctx context.Context, collection, id string, data domain.Document, updatedAt int64) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.execerFor(ctx).ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE id = ? AND collection_name = ?`,
		string(raw), updatedAt, id, collection,
	)
	return err
}

// Delete implements domain.Storage.
func (s *SQLite) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := s.execerFor(ctx).ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND collection_name = ?`, id, collection)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Transaction implements domain.Storage by running f with a context.Context
// carrying the active *sql.Tx, so an implementation detail (the driver's
// transaction handle) never leaks into the Collection layer.
func (s *SQLite) Transaction(ctx context.Context, f func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txCtx := withTx(ctx, tx)
	if err := f(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Batch implements domain.Storage. Mutations queued on the batch are
// flushed inside one *sql.Tx on Commit, giving InsertMany/UpdateMany/
// DeleteMany the single-transaction atomicity spec.md §5 requires.
func (s *SQLite) Batch() domain.Batch {
	return &batch{db: s.db}
}

// EnsureCollection implements domain.Storage.
func (s *SQLite) EnsureCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name) VALUES (?)`, name)
	return err
}

// DropCollection implements domain.Storage. The documents row cascade is
// handled by the foreign key (spec.md I1); this only needs to remove the
// collections row.
func (s *SQLite) DropCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	return err
}

// ListCollections implements domain.Storage.
func (s *SQLite) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close implements domain.Storage.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// batch implements domain.Batch by accumulating domain.Mutation values and
// running every one of them inside a single transaction on Commit.
type batch struct {
	db *sql.DB
	ms []domain.Mutation
}

func (b *batch) Queue(m domain.Mutation) {
	b.ms = append(b.ms, m)
}

func (b *batch) Commit(ctx context.Context) error {
	if len(b.ms) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, m := range b.ms {
		if _, err := tx.ExecContext(ctx, m.SQL, m.Args...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

type txKey struct{}

func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the active transaction stashed by Transaction, if
// any, for adapter-internal callers that need to participate in it.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}
