// Package docdb is an embeddable, single-process document database:
// schemaless documents grouped into named collections, queried with a
// MongoDB-flavored predicate matcher and aggregation pipeline, persisted
// durably on an embedded SQLite database (see spec.md / SPEC_FULL.md for
// the full design).
//
// A typical caller opens one Store per datafile, asks it for named
// Collections, and operates on those:
//
//	store, err := docdb.Open(ctx, "./data/docdb.db")
//	coll, err := store.Collection(ctx, "people")
//	id, err := coll.Insert(ctx, map[string]any{"name": "Alice", "age": 25})
package docdb

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"

	"github.com/opendocdb/docdb/domain"
	"github.com/opendocdb/docdb/internal/id"
	"github.com/opendocdb/docdb/internal/storage"
)

// Store owns the shared database handle for one datafile and hands out
// Collection handles bound to it (spec.md §4.6, component C6).
//
// Grounded on the teacher's top-level Datastore/nedb.go split between a
// database-wide object and the collections it serves, adapted to the
// single-database-per-file model spec.md §6 mandates.
type Store struct {
	path    string
	storage domain.Storage
	ids     *id.Generator
	lock    *flock.Flock
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	ids *id.Generator
}

// WithIDGenerator overrides the id.Generator used to mint new document
// ids, primarily for deterministic tests.
func WithIDGenerator(g *id.Generator) Option {
	return func(o *openOptions) { o.ids = g }
}

// Open opens (creating on first use) the SQLite datafile at path and
// acquires an advisory exclusive lock on "<path>.lock", per SPEC_FULL.md
// §4.6: catching the common mistake of pointing two Stores at the same
// datafile from one process. Grounded on
// arthur-debert-nanostore/nanostore/store/filelock.go's FileLock wrapper
// around github.com/gofrs/flock.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := &openOptions{ids: id.New()}
	for _, opt := range opts {
		opt(o)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("docdb: acquire lock on %s: %w", path, err)
	}
	if !locked {
		return nil, domain.ErrLocked
	}

	st, err := storage.Open(ctx, path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	return &Store{path: path, storage: st, ids: o.ids, lock: lock}, nil
}

// Path returns the datafile path this Store was opened with.
func (s *Store) Path() string { return s.path }

// Collection ensures a row exists for name in the collections table and
// returns a handle bound to the Store's shared adapter (spec.md §4.6).
func (s *Store) Collection(ctx context.Context, name string) (*Collection, error) {
	if err := s.storage.EnsureCollection(ctx, name); err != nil {
		return nil, err
	}
	return &Collection{name: name, storage: s.storage, ids: s.ids, lookup: s.loadAll}, nil
}

// DropCollection deletes the collections row for name and, via the
// documents table's cascading foreign key, every document in it. Adapter
// errors are swallowed and reported as false, exactly as spec.md §4.6 and
// §7 specify.
func (s *Store) DropCollection(ctx context.Context, name string) bool {
	return s.storage.DropCollection(ctx, name) == nil
}

// ListCollections returns every known collection name.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	return s.storage.ListCollections(ctx)
}

// Close releases the underlying database handle and the advisory file
// lock acquired by Open.
func (s *Store) Close() error {
	err := s.storage.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

// loadAll fetches every document in collection as a bare
// map[string]any slice, the shape internal/pipeline.LookupFunc needs for
// $lookup and the shape Collection.find/Aggregate build on internally.
func (s *Store) loadAll(ctx context.Context, collection string) ([]map[string]any, error) {
	rows, err := s.storage.Query(ctx,
		`SELECT id, data, created_at, updated_at FROM documents WHERE collection_name = ? ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, err
	}
	docs := make([]map[string]any, len(rows))
	for i, r := range rows {
		docs[i] = r.Data
	}
	return docs, nil
}
