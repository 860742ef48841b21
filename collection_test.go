package docdb

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPeople(t *testing.T, coll *Collection) {
	t.Helper()
	ctx := context.Background()
	_, err := coll.InsertMany(ctx, []any{
		map[string]any{"name": "Alice", "age": int64(25), "city": "New York"},
		map[string]any{"name": "Bob", "age": int64(30), "city": "LA"},
		map[string]any{"name": "Charlie", "age": int64(35), "city": "New York"},
		map[string]any{"name": "Diana", "age": int64(28), "city": "Chicago"},
	})
	require.NoError(t, err)
}

func names(docs []map[string]any) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d["name"].(string)
	}
	sort.Strings(out)
	return out
}

// spec.md §8 scenario 1.
func TestFindAgeGreaterThan(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)
	seedPeople(t, coll)

	docs, err := coll.Find(ctx, map[string]any{"age": map[string]any{"$gt": int64(26)}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Bob", "Charlie", "Diana"}, names(docs))
}

// spec.md §8 scenario 2.
func TestAggregateGroupByCity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)
	seedPeople(t, coll)

	out, err := coll.Aggregate(ctx, []map[string]any{
		{"$group": map[string]any{
			"_id":   "$city",
			"count": map[string]any{"$sum": int64(1)},
		}},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	counts := map[string]float64{}
	for _, d := range out {
		city, _ := d["_id"].(string)
		counts[city] = d["count"].(float64)
	}
	assert.Equal(t, float64(2), counts["New York"])
	assert.Equal(t, float64(1), counts["LA"])
	assert.Equal(t, float64(1), counts["Chicago"])
}

// spec.md §8 scenario 3.
func TestAggregateSortLimitProject(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)
	seedPeople(t, coll)

	out, err := coll.Aggregate(ctx, []map[string]any{
		{"$sort": map[string]any{"_id": int64(1)}},
		{"$limit": int64(10)},
		{"$project": map[string]any{"name": int64(1), "age": int64(1), "city": int64(1), "_id": int64(0)}},
	})
	require.NoError(t, err)
	require.Len(t, out, 4)
	for _, d := range out {
		assert.ElementsMatch(t, []string{"name", "age", "city"}, keysOf(d))
	}
}

// spec.md §8 scenario 4 and 5.
func TestUpdateManyThenOrQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)
	seedPeople(t, coll)

	n, err := coll.UpdateMany(ctx, map[string]any{"city": "New York"}, map[string]any{"status": "NY Resident"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	withStatus, err := coll.Find(ctx, map[string]any{"status": map[string]any{"$exists": true}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alice", "Charlie"}, names(withStatus))

	orResult, err := coll.Find(ctx, map[string]any{"$or": []any{
		map[string]any{"age": map[string]any{"$lt": int64(28)}},
		map[string]any{"status": map[string]any{"$exists": true}},
	}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alice", "Charlie"}, names(orResult))
}

// spec.md §8 scenario 6.
func TestFindInAgainstArrayField(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "tagged")
	require.NoError(t, err)

	_, err = coll.InsertMany(ctx, []any{
		map[string]any{"name": "a", "tags": []any{"developer", "flutter"}},
		map[string]any{"name": "b", "tags": []any{"developer", "backend"}},
	})
	require.NoError(t, err)

	docs, err := coll.Find(ctx, map[string]any{"tags": map[string]any{"$in": []any{"developer"}}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestInsertAssignsIDAndFindById(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)

	docID, err := coll.Insert(ctx, map[string]any{"name": "Eve", "age": int64(40)})
	require.NoError(t, err)
	assert.Len(t, docID, 24)

	got, err := coll.FindById(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Eve", got["name"])
	assert.Equal(t, docID, got["_id"])
}

func TestUpdateByIdPreservesID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)

	docID, err := coll.Insert(ctx, map[string]any{"name": "Frank", "age": int64(50)})
	require.NoError(t, err)

	ok, err := coll.UpdateById(ctx, docID, map[string]any{"_id": "should-be-ignored", "age": int64(51)})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := coll.FindById(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, docID, got["_id"])
	assert.Equal(t, float64(51), got["age"])

	ok, err = coll.UpdateById(ctx, "does-not-exist", map[string]any{"age": int64(1)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteManyReducesCount(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)
	seedPeople(t, coll)

	before, err := coll.Count(ctx, nil)
	require.NoError(t, err)

	n, err := coll.DeleteMany(ctx, map[string]any{"city": "New York"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	after, err := coll.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, before-int64(n), after)

	remaining, err := coll.Find(ctx, map[string]any{"city": "New York"})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestCountMatchesFindLength(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)
	seedPeople(t, coll)

	all, err := coll.Count(ctx, nil)
	require.NoError(t, err)
	docs, err := coll.Find(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(docs)), all)
}

func TestAggregateMatchCountMatchesCollectionCount(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)
	seedPeople(t, coll)

	query := map[string]any{"city": "New York"}
	direct, err := coll.Count(ctx, query)
	require.NoError(t, err)

	out, err := coll.Aggregate(ctx, []map[string]any{
		{"$match": query},
		{"$count": "total"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, direct, out[0]["total"])
}

func TestLookupJoinsAcrossCollections(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	authors, err := s.Collection(ctx, "authors")
	require.NoError(t, err)
	authorID, err := authors.Insert(ctx, map[string]any{"name": "Alice"})
	require.NoError(t, err)

	books, err := s.Collection(ctx, "books")
	require.NoError(t, err)
	_, err = books.Insert(ctx, map[string]any{"title": "Go in Practice", "authorId": authorID})
	require.NoError(t, err)

	out, err := books.Aggregate(ctx, []map[string]any{
		{"$lookup": map[string]any{
			"from":         "authors",
			"localField":   "authorId",
			"foreignField": "_id",
			"as":           "author",
		}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	joined, ok := out[0]["author"].([]any)
	require.True(t, ok)
	require.Len(t, joined, 1)
	assert.Equal(t, "Alice", joined[0].(map[string]any)["name"])
}

// Caller-supplied _id values are honored verbatim, per spec.md §3: "if
// the caller omits it, the engine supplies one". Uses a UUID rather than
// the engine's own 24-hex format to make it obvious the id wasn't
// generated internally.
func TestInsertHonorsCallerSuppliedID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	coll, err := s.Collection(ctx, "people")
	require.NoError(t, err)

	wantID := uuid.New().String()
	gotID, err := coll.Insert(ctx, map[string]any{"_id": wantID, "name": "Grace"})
	require.NoError(t, err)
	assert.Equal(t, wantID, gotID)

	got, err := coll.FindById(ctx, wantID)
	require.NoError(t, err)
	assert.Equal(t, "Grace", got["name"])
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
