package types

import "errors"

// Sentinel errors for the nsbundle library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Metadata errors - classification of metadata-store failures.
var (
	// ErrTransientMetadata indicates a metadata operation failed in a way
	// that is expected to heal (timeout, connection loss). The bundle
	// cache retries these with backoff inside its load deadline.
	ErrTransientMetadata = errors.New("transient metadata failure")

	// ErrPermanentMetadata indicates a metadata operation failed in a way
	// retrying cannot fix (malformed persisted data, authorization
	// failure). Surfaced immediately without retry.
	ErrPermanentMetadata = errors.New("permanent metadata failure")
)

// Engine errors - returned by engine operations.
var (
	// ErrConflict is returned when a split target no longer matches the
	// namespace's current bundle table. The caller must re-read the table
	// and retry the whole split, not just the write.
	ErrConflict = errors.New("bundle table changed concurrently")

	// ErrInvalidOperation is returned on precondition violations, such as
	// splitting an indivisible bundle or supplying out-of-range split
	// boundaries.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNotFound is returned when a namespace has no resolvable bundle
	// table after load attempts are exhausted, or a selection operation
	// has no candidate bundle.
	ErrNotFound = errors.New("not found")
)

// Lifecycle errors - returned by engine lifecycle methods.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMetadataGatewayRequired is returned when the metadata gateway is nil.
	ErrMetadataGatewayRequired = errors.New("metadata gateway is required")

	// ErrAlreadyStarted is returned when Start is called on a running engine.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrNotStarted is returned when operations require a started engine.
	ErrNotStarted = errors.New("engine not started")
)
