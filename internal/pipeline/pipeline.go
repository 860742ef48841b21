// Package pipeline implements the aggregation pipeline interpreter
// described in spec.md §4.4 (component C4): an ordered list of stages,
// each identified by a single "$"-keyed operator, applied in sequence
// over a document set.
//
// Grounded on the teacher's adapter/querier (which fixes the
// filter -> sort -> skip/limit -> project ordering for a single query)
// and adapter/projector (inclusion/exclusion projection with implicit
// "_id" handling), generalized here from one query into an arbitrary
// stage list, and extended with $group/$count/$unwind/$lookup/$geoNear,
// which the spec requires but the teacher's query layer does not have.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/opendocdb/docdb/internal/matcher"
	"github.com/opendocdb/docdb/internal/value"
)

// LookupFunc resolves the full document set of another collection for the
// $lookup stage. The pipeline package stays ignorant of Store/Collection —
// the caller supplies whatever closure already has a Store reference, the
// same separation the teacher keeps between querier and datastore.
type LookupFunc func(ctx context.Context, collection string) ([]map[string]any, error)

// Aggregate runs stages over docs in order, the output of one stage
// feeding the next, per spec.md §4.4. An unrecognized stage is a no-op.
// Errors are only possible from a $lookup's collection fetch; every other
// stage's malformed arguments are absorbed silently (documents pass
// through unaffected or are dropped), matching spec.md §7's policy.
func Aggregate(ctx context.Context, docs []map[string]any, stages []map[string]any, lookup LookupFunc) ([]map[string]any, error) {
	cur := docs
	for _, stage := range stages {
		for op, arg := range stage {
			var err error
			cur, err = applyStage(ctx, cur, op, arg, lookup)
			if err != nil {
				return nil, err
			}
			break // each stage has exactly one "$"-key, per spec.md §4.4
		}
	}
	return cur, nil
}

func applyStage(ctx context.Context, docs []map[string]any, op string, arg any, lookup LookupFunc) ([]map[string]any, error) {
	switch op {
	case "$match":
		return stageMatch(docs, arg), nil
	case "$sort":
		return stageSort(docs, arg), nil
	case "$limit":
		return stageLimit(docs, arg), nil
	case "$skip":
		return stageSkip(docs, arg), nil
	case "$project":
		return stageProject(docs, arg), nil
	case "$group":
		return stageGroup(docs, arg), nil
	case "$count":
		return stageCount(docs, arg), nil
	case "$unwind":
		return stageUnwind(docs, arg), nil
	case "$lookup":
		return stageLookup(ctx, docs, arg, lookup)
	case "$geoNear":
		return stageGeoNear(docs, arg), nil
	default:
		return docs, nil
	}
}

func stageMatch(docs []map[string]any, arg any) []map[string]any {
	query, ok := arg.(map[string]any)
	if !ok {
		return docs
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		if matcher.Matches(d, query) {
			out = append(out, d)
		}
	}
	return out
}

type sortCrit struct {
	field string
	dir   int
}

// stageSort accepts either form: a map[string]any (field -> direction),
// whose Go map iteration order is not guaranteed — fine for the common
// single-field case — or a []any of single-key maps, which preserves
// declaration order for the multi-field tie-break rule spec.md §4.4
// requires ("remaining fields break ties in declaration order").
func stageSort(docs []map[string]any, arg any) []map[string]any {
	crits := sortCriteria(arg)
	if len(crits) == 0 {
		return docs
	}

	out := make([]map[string]any, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool {
		return compareByCriteria(out[i], out[j], crits) < 0
	})
	return out
}

func sortCriteria(arg any) []sortCrit {
	switch spec := arg.(type) {
	case []any:
		crits := make([]sortCrit, 0, len(spec))
		for _, item := range spec {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for field, dirAny := range m {
				if dir, ok := value.AsInt64(dirAny); ok {
					crits = append(crits, sortCrit{field: field, dir: sign(dir)})
				}
			}
		}
		return crits
	case map[string]any:
		crits := make([]sortCrit, 0, len(spec))
		for field, dirAny := range spec {
			if dir, ok := value.AsInt64(dirAny); ok {
				crits = append(crits, sortCrit{field: field, dir: sign(dir)})
			}
		}
		return crits
	default:
		return nil
	}
}

func sign(n int64) int {
	if n < 0 {
		return -1
	}
	return 1
}

func compareByCriteria(a, b map[string]any, crits []sortCrit) int {
	for _, crit := range crits {
		av := value.GetNested(a, crit.field)
		bv := value.GetNested(b, crit.field)
		c := compareWithMissing(av, bv)
		if c != 0 {
			return c * crit.dir
		}
	}
	return 0
}

// compareWithMissing implements the $sort tie rule from spec.md §4.4:
// both missing -> equal; one missing -> missing sorts less; both present
// and comparable -> by value.Compare; otherwise equal.
func compareWithMissing(a, b any) int {
	aMissing, bMissing := value.IsMissing(a), value.IsMissing(b)
	switch {
	case aMissing && bMissing:
		return 0
	case aMissing:
		return -1
	case bMissing:
		return 1
	}
	if c, ok := value.Compare(a, b); ok {
		return c
	}
	return 0
}

func stageLimit(docs []map[string]any, arg any) []map[string]any {
	n, ok := value.AsInt64(arg)
	if !ok || n < 0 {
		return docs
	}
	if n >= int64(len(docs)) {
		return docs
	}
	return docs[:n]
}

func stageSkip(docs []map[string]any, arg any) []map[string]any {
	n, ok := value.AsInt64(arg)
	if !ok || n <= 0 {
		return docs
	}
	if n >= int64(len(docs)) {
		return []map[string]any{}
	}
	return docs[n:]
}

func stageProject(docs []map[string]any, arg any) []map[string]any {
	spec, ok := arg.(map[string]any)
	if !ok {
		return docs
	}

	include := make(map[string]bool)
	anyOne := false
	for field, v := range spec {
		n, _ := value.AsInt64(v)
		if n != 0 {
			anyOne = true
			include[field] = true
		}
	}

	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		projected := make(map[string]any)
		for field, v := range d {
			n, hasSpec := specValue(spec, field)
			switch {
			case anyOne:
				if include[field] {
					projected[field] = v
				}
			case hasSpec && n == 0:
				// excluded explicitly
			default:
				projected[field] = v
			}
		}
		out[i] = projected
	}
	return out
}

func specValue(spec map[string]any, field string) (int64, bool) {
	v, ok := spec[field]
	if !ok {
		return 0, false
	}
	n, _ := value.AsInt64(v)
	return n, true
}

// groupEntry accumulates one partition's running accumulator state.
type groupEntry struct {
	id       any
	members  []map[string]any
	sums     map[string]float64
	counts   map[string]int64
	maxes    map[string]float64
	mins     map[string]float64
	firsts   map[string]any
	firstSet map[string]bool
	lasts    map[string]any
	pushes   map[string][]any
	sets     map[string][]any
}

func newGroupEntry(id any) *groupEntry {
	return &groupEntry{
		id:       id,
		sums:     make(map[string]float64),
		counts:   make(map[string]int64),
		maxes:    make(map[string]float64),
		mins:     make(map[string]float64),
		firsts:   make(map[string]any),
		firstSet: make(map[string]bool),
		lasts:    make(map[string]any),
		pushes:   make(map[string][]any),
		sets:     make(map[string][]any),
	}
}

func stageGroup(docs []map[string]any, arg any) []map[string]any {
	spec, ok := arg.(map[string]any)
	if !ok {
		return docs
	}
	idExpr, hasID := spec["_id"]
	if !hasID {
		return docs
	}

	accumulators := make(map[string]map[string]any, len(spec)-1)
	for field, accSpec := range spec {
		if field == "_id" {
			continue
		}
		if m, ok := accSpec.(map[string]any); ok {
			accumulators[field] = m
		}
	}

	order := make([]string, 0)
	entries := make(map[string]*groupEntry)

	for _, d := range docs {
		key := value.Deref(idExpr, d)
		canon := canonicalKey(key)
		entry, exists := entries[canon]
		if !exists {
			entry = newGroupEntry(key)
			entries[canon] = entry
			order = append(order, canon)
		}
		entry.members = append(entry.members, d)

		for field, accSpec := range accumulators {
			for op, accExpr := range accSpec {
				applyAccumulator(entry, field, op, accExpr, d)
				break // one operator per accumulator field, per spec.md §4.4
			}
		}
	}

	out := make([]map[string]any, 0, len(order))
	for _, canon := range order {
		entry := entries[canon]
		result := map[string]any{"_id": entry.id}
		for field, accSpec := range accumulators {
			for op := range accSpec {
				result[field] = finalizeAccumulator(entry, field, op)
				break
			}
		}
		out = append(out, result)
	}
	return out
}

func applyAccumulator(entry *groupEntry, field, op string, expr any, doc map[string]any) {
	switch op {
	case "$sum":
		if n, ok := asFloat(value.Deref(expr, doc)); ok {
			entry.sums[field] += n
		} else if n, ok := asFloat(expr); ok {
			// A literal numeric expression (e.g. {$sum: 1}) counts
			// documents rather than dereferencing a field.
			entry.sums[field] += n
		}
	case "$avg":
		if n, ok := asFloat(value.Deref(expr, doc)); ok {
			entry.sums[field] += n
			entry.counts[field]++
		}
	case "$max":
		if n, ok := asFloat(value.Deref(expr, doc)); ok {
			if _, seen := entry.firstSet[field+":max"]; !seen || n > entry.maxes[field] {
				entry.maxes[field] = n
				entry.firstSet[field+":max"] = true
			}
		}
	case "$min":
		if n, ok := asFloat(value.Deref(expr, doc)); ok {
			if _, seen := entry.firstSet[field+":min"]; !seen || n < entry.mins[field] {
				entry.mins[field] = n
				entry.firstSet[field+":min"] = true
			}
		}
	case "$first":
		if !entry.firstSet[field] {
			entry.firsts[field] = value.Deref(expr, doc)
			entry.firstSet[field] = true
		}
	case "$last":
		entry.lasts[field] = value.Deref(expr, doc)
	case "$push":
		entry.pushes[field] = append(entry.pushes[field], value.Deref(expr, doc))
	case "$addToSet":
		v := value.Deref(expr, doc)
		if !value.Contains(entry.sets[field], v) {
			entry.sets[field] = append(entry.sets[field], v)
		}
	}
}

func finalizeAccumulator(entry *groupEntry, field, op string) any {
	switch op {
	case "$sum":
		return entry.sums[field]
	case "$avg":
		if entry.counts[field] == 0 {
			return float64(0)
		}
		return entry.sums[field] / float64(entry.counts[field])
	case "$max":
		if !entry.firstSet[field+":max"] {
			return math.Inf(-1)
		}
		return entry.maxes[field]
	case "$min":
		if !entry.firstSet[field+":min"] {
			return math.Inf(1)
		}
		return entry.mins[field]
	case "$first":
		return entry.firsts[field]
	case "$last":
		return entry.lasts[field]
	case "$push":
		if entry.pushes[field] == nil {
			return []any{}
		}
		return entry.pushes[field]
	case "$addToSet":
		if entry.sets[field] == nil {
			return []any{}
		}
		return entry.sets[field]
	default:
		return nil
	}
}

func canonicalKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}

func stageCount(docs []map[string]any, arg any) []map[string]any {
	name, ok := arg.(string)
	if !ok || name == "" {
		return docs
	}
	return []map[string]any{{name: int64(len(docs))}}
}

func stageUnwind(docs []map[string]any, arg any) []map[string]any {
	path, ok := arg.(string)
	if !ok || len(path) == 0 || path[0] != '$' {
		return docs
	}
	field := path[1:]

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		v := value.GetNested(d, field)
		list, ok := v.([]any)
		if !ok {
			// Non-list path: the document is dropped, per spec.md §9's
			// resolution of the canonical-vs-source Open Question.
			continue
		}
		for _, elem := range list {
			clone := cloneShallow(d)
			clone[field] = elem
			out = append(out, clone)
		}
	}
	return out
}

func stageLookup(ctx context.Context, docs []map[string]any, arg any, lookup LookupFunc) ([]map[string]any, error) {
	spec, ok := arg.(map[string]any)
	if !ok || lookup == nil {
		return docs, nil
	}
	from, _ := spec["from"].(string)
	localField, _ := spec["localField"].(string)
	foreignField, _ := spec["foreignField"].(string)
	as, _ := spec["as"].(string)
	if from == "" || localField == "" || foreignField == "" || as == "" {
		return docs, nil
	}

	foreign, err := lookup(ctx, from)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		localVal := value.GetNested(d, localField)
		matches := make([]any, 0)
		for _, fd := range foreign {
			foreignVal := value.GetNested(fd, foreignField)
			if value.Equals(localVal, foreignVal) {
				matches = append(matches, fd)
			}
		}
		clone := cloneShallow(d)
		clone[as] = matches
		out[i] = clone
	}
	return out, nil
}

func stageGeoNear(docs []map[string]any, arg any) []map[string]any {
	spec, ok := arg.(map[string]any)
	if !ok {
		return docs
	}
	near, ok := spec["near"].([]any)
	if !ok || len(near) != 2 {
		return docs
	}
	nxf, ok1f := asFloat(near[0])
	nyf, ok2f := asFloat(near[1])
	if !ok1f || !ok2f {
		return docs
	}

	distanceField, _ := spec["distanceField"].(string)
	if distanceField == "" {
		return docs
	}
	hasMax := false
	var maxDistance float64
	if m, ok := spec["maxDistance"]; ok {
		if f, ok := asFloat(m); ok {
			hasMax = true
			maxDistance = f
		}
	}

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		v := value.GetNested(d, distanceField)
		pt, ok := v.([]any)
		if !ok || len(pt) != 2 {
			continue
		}
		px, ok1 := asFloat(pt[0])
		py, ok2 := asFloat(pt[1])
		if !ok1 || !ok2 {
			continue
		}
		dist := math.Hypot(px-nxf, py-nyf)
		if hasMax && dist > maxDistance {
			continue
		}
		clone := cloneShallow(d)
		clone[distanceField] = dist
		out = append(out, clone)
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func cloneShallow(d map[string]any) map[string]any {
	clone := make(map[string]any, len(d))
	for k, v := range d {
		clone[k] = v
	}
	return clone
}
