package docdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opendocdb/docdb/domain"
	"github.com/opendocdb/docdb/internal/decode"
	"github.com/opendocdb/docdb/internal/id"
	"github.com/opendocdb/docdb/internal/matcher"
	"github.com/opendocdb/docdb/internal/pipeline"
)

// Collection is a named bag of schemaless documents (spec.md §4.5,
// component C5). Collections are obtained from a Store and share its
// storage adapter; a Collection does not own the adapter and outlives
// nothing: the Store outlives all Collections it hands out.
type Collection struct {
	name    string
	storage domain.Storage
	ids     *id.Generator
	lookup  pipeline.LookupFunc
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Insert assigns an _id if doc doesn't carry one, writes one row, and
// returns the id. doc may be a map[string]any or a struct (folded via
// internal/decode using the "docdb" tag).
func (c *Collection) Insert(ctx context.Context, doc any) (string, error) {
	d, err := decode.ToDocument(doc)
	if err != nil {
		return "", err
	}
	if err := c.assignID(&d); err != nil {
		return "", err
	}

	now := nowMillis()
	row := domain.Row{ID: d["_id"].(string), Data: d, CreatedAt: now, UpdatedAt: now}
	if err := c.storage.Insert(ctx, c.name, row); err != nil {
		return "", err
	}
	return row.ID, nil
}

// InsertMany inserts every doc in one transaction, via the adapter's
// Batch primitive, and returns the assigned ids in input order
// (spec.md §4.5).
func (c *Collection) InsertMany(ctx context.Context, docs []any) ([]string, error) {
	ids := make([]string, len(docs))
	rows := make([]domain.Row, len(docs))
	now := nowMillis()

	for i, doc := range docs {
		d, err := decode.ToDocument(doc)
		if err != nil {
			return nil, err
		}
		if err := c.assignID(&d); err != nil {
			return nil, err
		}
		rows[i] = domain.Row{ID: d["_id"].(string), Data: d, CreatedAt: now, UpdatedAt: now}
		ids[i] = rows[i].ID
	}

	batch := c.storage.Batch()
	for _, row := range rows {
		raw, err := marshalDoc(row.Data)
		if err != nil {
			return nil, err
		}
		batch.Queue(domain.Mutation{
			SQL:  `INSERT INTO documents (id, collection_name, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			Args: []any{row.ID, c.name, raw, row.CreatedAt, row.UpdatedAt},
		})
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// Find loads every document in the collection and keeps those the
// Matcher accepts for query. An empty or nil query matches everything.
func (c *Collection) Find(ctx context.Context, query map[string]any) ([]map[string]any, error) {
	all, err := c.lookup(ctx, c.name)
	if err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return all, nil
	}
	out := make([]map[string]any, 0, len(all))
	for _, d := range all {
		if matcher.Matches(d, query) {
			out = append(out, d)
		}
	}
	return out, nil
}

// FindOne returns the first document matching query, decoded into target
// (a pointer to a struct or to map[string]any), or domain.ErrNotFound if
// none matches.
func (c *Collection) FindOne(ctx context.Context, query map[string]any, target any) error {
	docs, err := c.Find(ctx, query)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return domain.ErrNotFound
	}
	return decode.Into(docs[0], target)
}

// FindById looks up a document by primary key within the collection's
// scope. Returns nil, nil if no such document exists.
func (c *Collection) FindById(ctx context.Context, docID string) (map[string]any, error) {
	rows, err := c.storage.Query(ctx,
		`SELECT id, data, created_at, updated_at FROM documents WHERE id = ? AND collection_name = ?`,
		docID, c.name,
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Data, nil
}

// UpdateById shallow-merges patch's top-level keys into the stored
// document, forcibly restores the original _id, and rewrites the row with
// a fresh updated_at. Returns false if id does not exist.
func (c *Collection) UpdateById(ctx context.Context, docID string, patch map[string]any) (bool, error) {
	existing, err := c.FindById(ctx, docID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	merged := mergeShallow(existing, patch, docID)
	if err := c.storage.Update(ctx, c.name, docID, merged, nowMillis()); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateMany Matcher-selects by query and applies the same shallow-merge
// rewrite to every match, all inside a single batched transaction.
// Returns the number matched.
func (c *Collection) UpdateMany(ctx context.Context, query, patch map[string]any) (int, error) {
	matches, err := c.Find(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}

	now := nowMillis()
	batch := c.storage.Batch()
	for _, d := range matches {
		docID, _ := d["_id"].(string)
		merged := mergeShallow(d, patch, docID)
		raw, err := marshalDoc(merged)
		if err != nil {
			return 0, err
		}
		batch.Queue(domain.Mutation{
			SQL:  `UPDATE documents SET data = ?, updated_at = ? WHERE id = ? AND collection_name = ?`,
			Args: []any{raw, now, docID, c.name},
		})
	}
	if err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(matches), nil
}

// DeleteById deletes the document with the given id, returning whether
// one row went away.
func (c *Collection) DeleteById(ctx context.Context, docID string) (bool, error) {
	return c.storage.Delete(ctx, c.name, docID)
}

// DeleteMany Matcher-selects by query, then deletes each match by id in
// one batched transaction, returning the count deleted.
func (c *Collection) DeleteMany(ctx context.Context, query map[string]any) (int, error) {
	matches, err := c.Find(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}

	batch := c.storage.Batch()
	for _, d := range matches {
		docID, _ := d["_id"].(string)
		batch.Queue(domain.Mutation{
			SQL:  `DELETE FROM documents WHERE id = ? AND collection_name = ?`,
			Args: []any{docID, c.name},
		})
	}
	if err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(matches), nil
}

// Count returns the number of documents matching query. An empty/nil
// query is answered by a SELECT COUNT(*); otherwise it is equivalent to
// len(Find(query)) (spec.md §4.5).
func (c *Collection) Count(ctx context.Context, query map[string]any) (int64, error) {
	if len(query) == 0 {
		return c.storage.RawQuery(ctx,
			`SELECT COUNT(*) FROM documents WHERE collection_name = ?`, c.name)
	}
	docs, err := c.Find(ctx, query)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Aggregate runs stages over the entire collection in order
// (spec.md §4.4). $lookup stages resolve other collections through the
// same Store this Collection was obtained from.
func (c *Collection) Aggregate(ctx context.Context, stages []map[string]any) ([]map[string]any, error) {
	all, err := c.lookup(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return pipeline.Aggregate(ctx, all, stages, c.lookup)
}

// assignID supplies d["_id"] via the Store's id.Generator if the caller
// didn't set one.
func (c *Collection) assignID(d *domain.Document) error {
	if existing, ok := (*d)["_id"].(string); ok && existing != "" {
		return nil
	}
	newID, err := c.ids.NewID()
	if err != nil {
		return err
	}
	(*d)["_id"] = newID
	return nil
}

// mergeShallow overwrites existing's top-level keys with patch's, then
// forcibly restores _id to docID, per spec.md §3's lifecycle rule.
func mergeShallow(existing, patch map[string]any, docID string) map[string]any {
	merged := make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	merged["_id"] = docID
	return merged
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func marshalDoc(d map[string]any) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
