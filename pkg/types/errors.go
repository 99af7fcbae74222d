package types

import "errors"

// Domain errors shared across packages
var (
	// Request validation errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")

	// Index lifecycle errors
	ErrNotInitialized    = errors.New("search index not initialized")
	ErrRebuildInProgress = errors.New("index rebuild already in progress")

	// Vector errors
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// Backend errors
	ErrBackendUnavailable = errors.New("search backend unavailable")
)
