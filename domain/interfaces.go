// Package domain contains the interfaces shared between docdb's public
// surface and its internal adapters: the document shape, the storage
// adapter contract, and the errors callers may see.
package domain

import "context"

// Document is a schemaless record. Every persisted document carries a
// string "_id" field. Values are JSON-compatible: nil, bool, int64,
// float64, string, []any, or map[string]any.
type Document = map[string]any

// Row is one persisted document as stored by the adapter: the decoded
// payload alongside the bookkeeping columns the schema mandates.
type Row struct {
	ID        string
	Data      Document
	CreatedAt int64
	UpdatedAt int64
}

// Mutation is one parameterized INSERT/UPDATE/DELETE statement queued for
// atomic execution inside a Batch.
type Mutation struct {
	SQL  string
	Args []any
}

// Batch accumulates mutations for a single collection write (insertMany,
// updateMany, deleteMany) and commits them together.
type Batch interface {
	Queue(m Mutation)
	Commit(ctx context.Context) error
}

// Storage is the narrow KV-with-transactions adapter the core depends on.
// It is the only component that knows it is talking to SQLite.
type Storage interface {
	// Execute runs DDL or a single statement with no result rows.
	Execute(ctx context.Context, sql string, args ...any) error
	// Query runs a read returning decoded document rows for a collection.
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
	// RawQuery runs a scalar aggregate query (e.g. COUNT(*)).
	RawQuery(ctx context.Context, sql string, args ...any) (int64, error)
	// Insert writes one document row.
	Insert(ctx context.Context, collection string, row Row) error
	// Update rewrites one document row.
	Update(ctx context.Context, collection, id string, data Document, updatedAt int64) error
	// Delete removes one document row by id.
	Delete(ctx context.Context, collection, id string) (bool, error)
	// Transaction runs f inside a single ACID transaction.
	Transaction(ctx context.Context, f func(ctx context.Context) error) error
	// Batch returns an object that accumulates statements for atomic commit.
	Batch() Batch
	// EnsureCollection creates the collection row if absent.
	EnsureCollection(ctx context.Context, name string) error
	// DropCollection removes a collection row and cascades its documents.
	DropCollection(ctx context.Context, name string) error
	// ListCollections returns every known collection name.
	ListCollections(ctx context.Context) ([]string, error)
	// Close releases the underlying database handle.
	Close() error
}
