package docdb

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/dolmen-go/contextio"
)

// Dump streams every document in collection to w as newline-delimited
// JSON, one document per line, in the adapter's natural row order
// (approximately insertion order, per spec.md §3).
//
// This is the [DOMAIN/supplement] export companion to the mandatory SQL
// persistence (SPEC_FULL.md §4.6): it does not replace the durable
// on-disk format, it is a portable backup/migration format layered on
// top of it. Grounded on the teacher's adapter/persistence
// PersistCachedDatabase, repurposed here as an explicit, caller-invoked
// export now that the mandatory substrate is SQL rather than an
// append-only file.
func (s *Store) Dump(ctx context.Context, collection string, w io.Writer) error {
	docs, err := s.loadAll(ctx, collection)
	if err != nil {
		return err
	}

	cw := contextio.NewWriter(ctx, w)
	for _, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := cw.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Load reads newline-delimited JSON documents from r and inserts them
// into collection (auto-created if absent), preserving each document's
// _id if present. The inverse of Dump. Ids are the documents table's
// primary key across all collections, so if any loaded _id already exists
// anywhere in the Store the insert fails and nothing from r is kept.
func (s *Store) Load(ctx context.Context, collection string, r io.Reader) error {
	coll, err := s.Collection(ctx, collection)
	if err != nil {
		return err
	}

	cr := contextio.NewReader(ctx, r)
	scanner := bufio.NewScanner(cr)
	var docs []any
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(line, &doc); err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	_, err = coll.InsertMany(ctx, docs)
	return err
}
