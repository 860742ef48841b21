package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func doc(age int64, city string) map[string]any {
	return map[string]any{"name": "x", "age": age, "city": city}
}

func TestScalarEquality(t *testing.T) {
	assert.True(t, Matches(doc(25, "NY"), map[string]any{"city": "NY"}))
	assert.False(t, Matches(doc(25, "NY"), map[string]any{"city": "LA"}))
}

func TestComparisonOperators(t *testing.T) {
	d := doc(30, "LA")
	assert.True(t, Matches(d, map[string]any{"age": map[string]any{"$gt": int64(26)}}))
	assert.False(t, Matches(d, map[string]any{"age": map[string]any{"$gt": int64(30)}}))
	assert.True(t, Matches(d, map[string]any{"age": map[string]any{"$gte": int64(30)}}))
	assert.True(t, Matches(d, map[string]any{"age": map[string]any{"$lte": int64(30)}}))
	assert.True(t, Matches(d, map[string]any{"age": map[string]any{"$ne": int64(1)}}))
}

func TestIncomparableTypesNeverOrder(t *testing.T) {
	d := doc(30, "LA")
	assert.False(t, Matches(d, map[string]any{"city": map[string]any{"$gt": int64(1)}}))
}

func TestLogicalCombinators(t *testing.T) {
	d := doc(25, "NY")
	assert.True(t, Matches(d, map[string]any{"$and": []any{
		map[string]any{"city": "NY"},
		map[string]any{"age": map[string]any{"$lt": int64(30)}},
	}}))
	assert.True(t, Matches(d, map[string]any{"$or": []any{
		map[string]any{"city": "LA"},
		map[string]any{"age": int64(25)},
	}}))
	assert.False(t, Matches(d, map[string]any{"$nor": []any{
		map[string]any{"city": "NY"},
	}}))
}

func TestUnknownTopLevelOperatorFailsWholeDocument(t *testing.T) {
	assert.False(t, Matches(doc(25, "NY"), map[string]any{"$xor": []any{}}))
}

func TestUnknownFieldOperatorFails(t *testing.T) {
	assert.False(t, Matches(doc(25, "NY"), map[string]any{"age": map[string]any{"$bogus": 1}}))
}

func TestExistsIsPresentInMapping(t *testing.T) {
	d := map[string]any{"status": nil}
	assert.True(t, Matches(d, map[string]any{"status": map[string]any{"$exists": true}}))
	assert.False(t, Matches(d, map[string]any{"missing": map[string]any{"$exists": true}}))
	assert.True(t, Matches(d, map[string]any{"missing": map[string]any{"$exists": false}}))
}

func TestInAndNin(t *testing.T) {
	d := map[string]any{"tags": []any{"developer", "flutter"}}
	assert.True(t, Matches(d, map[string]any{"tags": map[string]any{"$in": []any{"developer"}}}))
	assert.False(t, Matches(d, map[string]any{"tags": map[string]any{"$in": []any{"designer"}}}))
	assert.True(t, Matches(d, map[string]any{"tags": map[string]any{"$nin": []any{"designer"}}}))
}

func TestRegexAndLike(t *testing.T) {
	d := map[string]any{"name": "Alice"}
	assert.True(t, Matches(d, map[string]any{"name": map[string]any{"$regex": "^Ali"}}))
	assert.False(t, Matches(d, map[string]any{"name": map[string]any{"$regex": "^Bob"}}))
	assert.True(t, Matches(d, map[string]any{"name": map[string]any{"$like": "lic"}}))
	assert.False(t, Matches(d, map[string]any{"name": map[string]any{"$regex": 5}}))
}

func TestMissingFieldComparatorsFalse(t *testing.T) {
	d := map[string]any{}
	assert.False(t, Matches(d, map[string]any{"age": map[string]any{"$gt": int64(1)}}))
	assert.True(t, Matches(d, map[string]any{"age": map[string]any{"$ne": int64(1)}}))
}

func TestImplicitTopLevelAnd(t *testing.T) {
	d := doc(25, "NY")
	assert.True(t, Matches(d, map[string]any{"city": "NY", "age": int64(25)}))
	assert.False(t, Matches(d, map[string]any{"city": "NY", "age": int64(99)}))
}
