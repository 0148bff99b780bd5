package mwapi

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested page does not exist.
var ErrNotFound = errors.New("page not found")

// APIError is a structured error returned by the MediaWiki API.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mediawiki api error %s: %s", e.Code, e.Info)
}

// IsConflict reports whether err is an edit conflict: someone modified the
// target after its base timestamp was captured.
func IsConflict(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == "editconflict"
}
