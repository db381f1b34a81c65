package domain

import "errors"

var (
	// ErrInvalidQuery is returned for empty or non UTF-8 query text.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrIndexUnavailable means the vector index has not been built or loaded.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrGenerationUnavailable covers both an unconfigured backend and a failed call.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrRetrievalEmpty means both retrieval channels returned nothing.
	ErrRetrievalEmpty = errors.New("retrieval returned no evidence")
	// ErrTimeout is returned when an embedding or generation call exceeds its deadline.
	ErrTimeout = errors.New("timeout")
)
