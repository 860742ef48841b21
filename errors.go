package docdb

import "github.com/opendocdb/docdb/domain"

// Errors callers of this package may see, re-exported from the domain
// package so callers never need to import docdb/domain directly.
var (
	ErrNotFound   = domain.ErrNotFound
	ErrTargetNil  = domain.ErrTargetNil
	ErrNonPointer = domain.ErrNonPointer
	ErrLocked     = domain.ErrLocked
)
