// Package decode folds struct values into documents and back, the
// [AMBIENT] struct-decoding component (C8) SPEC_FULL.md §6 adds so
// Insert/InsertMany/FindOne can take an ergonomic Go struct in addition to
// a raw map[string]any.
//
// Grounded on the teacher's internal/adapter/decoder package, which wraps
// mitchellh/mapstructure with a struct tag naming convention; renamed here
// from the teacher's "gedb" tag to "docdb".
package decode

import (
	"fmt"

	"github.com/goccy/go-reflect"
	"github.com/mitchellh/mapstructure"

	"github.com/opendocdb/docdb/domain"
)

// TagName is the struct tag docdb reads when folding a struct to or from a
// document, mirroring the teacher's "gedb" tag under a module-specific name.
const TagName = "docdb"

// ToDocument folds v into a document. If v is already a map[string]any it
// is returned as-is (after a shallow copy, so callers never alias the
// caller's map); if v is a struct or pointer to struct, it is decoded via
// mapstructure using the docdb tag.
func ToDocument(v any) (domain.Document, error) {
	if m, ok := v.(domain.Document); ok {
		out := make(domain.Document, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("docdb: nil pointer cannot be inserted")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("docdb: %T is neither a map[string]any nor a struct", v)
	}

	var out domain.Document
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: TagName,
		Result:  &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(rv.Interface()); err != nil {
		return nil, err
	}
	if out == nil {
		out = domain.Document{}
	}
	return out, nil
}

// Into decodes src (a document) into target, a non-nil pointer to a struct
// or to map[string]any. Used by Collection.FindOne-style decode helpers.
func Into(src domain.Document, target any) error {
	if target == nil {
		return domain.ErrTargetNil
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return domain.ErrNonPointer
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: TagName,
		Result:  target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}
