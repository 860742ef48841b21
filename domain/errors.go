package domain

import "errors"

// ErrTargetNil is returned when a caller passes a nil target to a decode
// operation such as FindOne.
var ErrTargetNil = errors.New("docdb: target is nil")

// ErrNonPointer is returned when a caller passes a non-pointer target to a
// decode operation such as FindOne.
var ErrNonPointer = errors.New("docdb: target must be a pointer")

// ErrNotFound is returned by FindOne when no document matches the query.
var ErrNotFound = errors.New("docdb: no document matches query")

// ErrLocked is returned by Open when another Store already holds the
// advisory lock on the datafile.
var ErrLocked = errors.New("docdb: database file is locked by another store")
