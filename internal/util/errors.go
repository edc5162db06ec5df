package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrValidation indicates a tool precondition is not met; nothing was mutated
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrPartialWrite indicates a row update affected an unexpected number of rows
	ErrPartialWrite = errors.New("unexpected affected row count")

	// ErrRemoteFetch indicates a remote resource could not be downloaded
	ErrRemoteFetch = errors.New("remote fetch failed")

	// ErrUnknownType indicates a record or grid type that no catalog entry describes
	ErrUnknownType = errors.New("unknown type")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
