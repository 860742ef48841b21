// Package value implements the nested-field access, heterogeneous value
// comparison, and "$field" expression dereferencing that the matcher and
// pipeline packages build on (spec.md §4.2, component C2).
//
// Grounded on the teacher's internal/adapter/comparer numeric ladder
// (comparing every numeric type through a common float64 representation,
// so int64 values beyond 2^53 are rounded before comparison) and on its
// "dissimilar types sort
// apart" rule, cut down to the two comparable families — numbers and
// strings — the spec's Matcher and $sort actually need.
package value

import (
	"strconv"
	"strings"
)

// Missing is returned by GetNested when a path cannot be fully resolved.
// It is a distinct sentinel, not nil, so callers can tell "the field is
// explicitly null" apart from "the field does not exist".
type missingType struct{}

// Missing is the sentinel value representing an absent field.
var Missing any = missingType{}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingType)
	return ok
}

// GetNested resolves a dotted path against doc, descending only into
// map[string]any nodes. A step through any other value type (including
// []any — array-index traversal is not supported, per spec.md §4.2)
// returns Missing.
func GetNested(doc map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return Missing
		}
		v, present := m[part]
		if !present {
			return Missing
		}
		cur = v
	}
	return cur
}

// Deref resolves an expression against doc: if expr is a string beginning
// with "$", the remainder is treated as a dotted field path and resolved
// via GetNested; any other value (including a non-"$"-prefixed string)
// is returned verbatim.
func Deref(expr any, doc map[string]any) any {
	s, ok := expr.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return expr
	}
	return GetNested(doc, s[1:])
}

// numeric attempts to view v as a float64, accepting any of the JSON
// numeric representations that can reach a document: int, int64, and
// float64 (the decoder never produces the other integer widths, but they
// are accepted too for values built programmatically).
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		// Numeric strings are not silently coerced to numbers: the spec's
		// numeric family is scalar number types only. Kept as a distinct
		// branch so future numeric-string coercion has one call site.
		return 0, false
	default:
		return 0, false
	}
}

// Comparable reports whether a and b belong to the same comparable family
// (both numeric, or both strings) per spec.md §4.2.
func Comparable(a, b any) bool {
	if IsMissing(a) || IsMissing(b) {
		return false
	}
	if _, ok := numeric(a); ok {
		_, ok := numeric(b)
		return ok
	}
	if _, ok := a.(string); ok {
		_, ok := b.(string)
		return ok
	}
	return false
}

// Compare orders a against b. Both numeric: numeric compare. Both string:
// lexicographic. Otherwise the pair is incomparable and ok is false; the
// returned int is meaningless in that case.
func Compare(a, b any) (cmp int, ok bool) {
	if an, aok := numeric(a); aok {
		bn, bok := numeric(b)
		if !bok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		if !bok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// Equals reports structural deep equality for scalars (including the
// Missing sentinel and nil) and element-wise equality for []any. For
// map[string]any values equality is unspecified per spec.md §4.2 and is
// not exercised by any operator; it falls through to false here.
func Equals(a, b any) bool {
	if IsMissing(a) || IsMissing(b) {
		return IsMissing(a) && IsMissing(b)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, aok := numeric(a); aok {
		bn, bok := numeric(b)
		return bok && an == bn
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		return bok && as == bs
	}
	if ab, aok := a.(bool); aok {
		bb, bok := b.(bool)
		return bok && ab == bb
	}
	if aa, aok := a.([]any); aok {
		ba, bok := b.([]any)
		if !bok || len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !Equals(aa[i], ba[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Contains reports whether needle deep-equals any element of arr, or, when
// an element is itself a []any, whether needle deep-equals any element of
// that nested array — the "any overlap" reading of $in against an array
// field (spec.md §9, Open Question resolved).
func Contains(arr []any, needle any) bool {
	for _, item := range arr {
		if Equals(item, needle) {
			return true
		}
		if nested, ok := item.([]any); ok && Contains(nested, needle) {
			return true
		}
	}
	return false
}

// AsInt64 attempts to read v as an int64, used by pipeline stages that
// take integer arguments ($limit, $skip).
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
