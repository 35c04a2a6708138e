package nsbundle

import "github.com/arloliu/nsbundle/types"

// Sentinel errors returned by the Engine. Aliased from the types package
// so callers can match with errors.Is against either import path.
var (
	// ErrTransientMetadata indicates a retryable metadata-store failure.
	ErrTransientMetadata = types.ErrTransientMetadata

	// ErrPermanentMetadata indicates a non-retryable metadata-store failure.
	ErrPermanentMetadata = types.ErrPermanentMetadata

	// ErrConflict is returned when a split target no longer matches the
	// namespace's current bundle table.
	ErrConflict = types.ErrConflict

	// ErrInvalidOperation is returned on precondition violations.
	ErrInvalidOperation = types.ErrInvalidOperation

	// ErrNotFound is returned when a namespace or candidate bundle
	// cannot be resolved.
	ErrNotFound = types.ErrNotFound

	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrMetadataGatewayRequired is returned when the metadata gateway is nil.
	ErrMetadataGatewayRequired = types.ErrMetadataGatewayRequired

	// ErrAlreadyStarted is returned when Start is called on a running engine.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when operations require a started engine.
	ErrNotStarted = types.ErrNotStarted
)
