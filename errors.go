package newsbase

import "errors"

// Sentinel errors returned by the engine's public API. Callers use
// errors.Is to map them onto HTTP status codes at the transport boundary.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("newsbase: not found")

	// ErrCrossUserForbidden is returned when a request attempts to read
	// or mutate another user's data.
	ErrCrossUserForbidden = errors.New("newsbase: cross-user access forbidden")

	// ErrDuplicateDocument is returned when ingestion would violate the
	// (user, source_url) or (user, content_hash) uniqueness invariant.
	ErrDuplicateDocument = errors.New("newsbase: duplicate document")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("newsbase: validation failed")

	// ErrStorageUnavailable is returned when the metadata store or
	// vector store cannot be read from or written to.
	ErrStorageUnavailable = errors.New("newsbase: storage unavailable")

	// ErrBackpressure is returned when the background executor's queue
	// is full and cannot accept new work.
	ErrBackpressure = errors.New("newsbase: backpressure, queue full")

	// ErrIndexCorrupt is returned when a per-user vector index fails to
	// load or its embedder version does not match the current model.
	ErrIndexCorrupt = errors.New("newsbase: vector index corrupt or stale")

	// ErrDependencyUnavailable is returned when an external collaborator
	// (fetcher, web search, LLM) fails after its retry budget.
	ErrDependencyUnavailable = errors.New("newsbase: dependency unavailable")

	// ErrTimeout is returned when a request or task exceeds its budget.
	ErrTimeout = errors.New("newsbase: timeout")

	// ErrUnsupportedFormat is returned for uploads with an unrecognized
	// file extension.
	ErrUnsupportedFormat = errors.New("newsbase: unsupported import format")

	// ErrPayloadTooLarge is returned when an upload exceeds the
	// configured maximum size.
	ErrPayloadTooLarge = errors.New("newsbase: payload too large")
)
