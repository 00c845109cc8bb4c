package storage

import "errors"

// ErrNotFound reports that a requested run does not exist in the archive,
// or was already finished where a running one was required.
var ErrNotFound = errors.New("storage: not found")
