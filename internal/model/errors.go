package model

import "errors"

// Failure taxonomy. All of these are recoverable at symbol granularity:
// no single symbol's failure may affect another symbol or kill a loop.
var (
	// ErrValidation marks a malformed bar rejected at the ingestion boundary.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientData marks a signal or retrain request below the
	// minimum history window.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrModelNotLoaded marks a model-based signal request before any
	// trained or loaded model exists for the symbol.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrPersistence marks a disk write failure during backup or archival.
	// In-memory state is never rolled back on this error.
	ErrPersistence = errors.New("persistence error")
)
