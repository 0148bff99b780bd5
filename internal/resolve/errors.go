package resolve

import (
	"errors"
	"fmt"
)

// ConsistencyError reports a broken invariant in identity resolution. These
// are not transient conditions: a duplicate cache write means the knowledge
// graph returned inconsistent identity claims, and the run must stop rather
// than publish content adapted from a corrupt mapping.
type ConsistencyError struct {
	Code    ConsistencyErrorCode
	Message string
	Name    string // the canonical dependency name involved
}

// ConsistencyErrorCode categorizes consistency errors.
type ConsistencyErrorCode string

const (
	// ErrCodeDuplicateEntry indicates a second write to an already-resolved
	// cache key.
	ErrCodeDuplicateEntry ConsistencyErrorCode = "DUPLICATE_ENTRY"

	// ErrCodeChainConflict indicates a normalization/redirect chain whose
	// source name was already independently resolved.
	ErrCodeChainConflict ConsistencyErrorCode = "CHAIN_CONFLICT"
)

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: %s (name=%s)", e.Code, e.Message, e.Name)
}

// IsConsistencyError reports whether err carries a ConsistencyError,
// unwrapping as needed.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
