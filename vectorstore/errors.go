package vectorstore

import "errors"

var (
	// ErrIndexCorrupt is returned when a per-user index fails to load,
	// or its stamped embedder version does not match the caller's.
	ErrIndexCorrupt = errors.New("vectorstore: index corrupt or embedder version mismatch")

	// ErrTooManyResults is returned when Search is asked for more than
	// the 256-result ceiling of spec §4.2.
	ErrTooManyResults = errors.New("vectorstore: k exceeds maximum of 256")
)

const maxSearchK = 256
