// Package matcher implements the predicate-matching interpreter described
// in spec.md §4.3 (component C3): evaluating a query document against a
// single stored document.
//
// Grounded on the teacher's adapter/matcher package, which splits query
// parsing from query evaluation; this implementation collapses that split
// back into a single direct-evaluation pass because the spec's operator
// set is small enough that pre-compiling a typed query tree buys nothing,
// while its "never raise, just fail to match" error policy (spec.md §7)
// removes the teacher's main reason for a validating parse step.
package matcher

import (
	"regexp"
	"strings"

	"github.com/opendocdb/docdb/internal/value"
)

// Matches reports whether doc satisfies query, per the operator table in
// spec.md §4.3. A malformed query (unknown top-level "$"-operator,
// unrecognized field operator, wrong argument type) makes the document
// fail to match; it never panics and never returns an error, matching
// spec.md §7's policy that the engine never throws for bad query shape.
func Matches(doc map[string]any, query map[string]any) bool {
	for key, val := range query {
		if strings.HasPrefix(key, "$") {
			if !matchLogical(doc, key, val) {
				return false
			}
			continue
		}
		if !matchField(doc, key, val) {
			return false
		}
	}
	return true
}

func matchLogical(doc map[string]any, op string, arg any) bool {
	switch op {
	case "$and":
		subs, ok := asQueryList(arg)
		if !ok {
			return false
		}
		for _, sub := range subs {
			if !Matches(doc, sub) {
				return false
			}
		}
		return true
	case "$or":
		subs, ok := asQueryList(arg)
		if !ok {
			return false
		}
		for _, sub := range subs {
			if Matches(doc, sub) {
				return true
			}
		}
		return false
	case "$nor":
		subs, ok := asQueryList(arg)
		if !ok {
			return false
		}
		for _, sub := range subs {
			if Matches(doc, sub) {
				return false
			}
		}
		return true
	default:
		// Unrecognized top-level $-operator: query structural error,
		// the whole document fails to match (spec.md §9).
		return false
	}
}

func asQueryList(arg any) ([]map[string]any, bool) {
	list, ok := arg.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

func matchField(doc map[string]any, key string, want any) bool {
	dv := value.GetNested(doc, key)

	opMap, ok := want.(map[string]any)
	if !ok {
		return value.Equals(dv, want)
	}

	for op, arg := range opMap {
		if !matchOp(dv, op, arg) {
			return false
		}
	}
	return true
}

func matchOp(dv any, op string, arg any) bool {
	switch op {
	case "$eq":
		return value.Equals(dv, arg)
	case "$ne":
		return !value.Equals(dv, arg)
	case "$gt":
		c, ok := value.Compare(dv, arg)
		return ok && c > 0
	case "$gte":
		c, ok := value.Compare(dv, arg)
		return ok && c >= 0
	case "$lt":
		c, ok := value.Compare(dv, arg)
		return ok && c < 0
	case "$lte":
		c, ok := value.Compare(dv, arg)
		return ok && c <= 0
	case "$in":
		list, ok := arg.([]any)
		if !ok {
			return false
		}
		return containsEqual(list, dv)
	case "$nin":
		list, ok := arg.([]any)
		if !ok {
			return false
		}
		return !containsEqual(list, dv)
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return false
		}
		// "present in the mapping" reading (spec.md §9 Open Question):
		// a key explicitly set to nil still counts as existing.
		exists := !value.IsMissing(dv)
		return exists == want
	case "$regex":
		dvs, ok := dv.(string)
		if !ok {
			return false
		}
		switch pattern := arg.(type) {
		case string:
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false
			}
			return re.MatchString(dvs)
		case *regexp.Regexp:
			return pattern.MatchString(dvs)
		default:
			return false
		}
	case "$like":
		dvs, ok := dv.(string)
		if !ok {
			return false
		}
		needle, ok := arg.(string)
		if !ok {
			return false
		}
		return strings.Contains(dvs, needle)
	default:
		// Unrecognized field operator: fail the document, per spec.md §7.
		return false
	}
}

// containsEqual reports whether dv equals any element of list, honoring
// the "$in against an array field means any overlap" resolution in
// spec.md §9.
func containsEqual(list []any, dv any) bool {
	if arr, ok := dv.([]any); ok {
		for _, want := range list {
			if value.Contains(arr, want) {
				return true
			}
		}
	}
	for _, want := range list {
		if value.Equals(dv, want) {
			return true
		}
	}
	return false
}
