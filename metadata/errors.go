package metadata

import "errors"

// Error kinds returned by Store methods. Callers translate these into
// HTTP status codes at the API boundary (spec §7).
var (
	ErrNotFound          = errors.New("metadata: not found")
	ErrDuplicateDocument = errors.New("metadata: duplicate document")
	ErrStorageUnavailable = errors.New("metadata: storage unavailable")
)
