// Package models defines data structures and domain types.
package models

import "errors"

// Sentinel errors shared by the metrics packages. Callers wrap them with %w
// and match with errors.Is.
var (
	// ErrEstimation is returned for quantities the estimator cannot clamp, such as negative token counts.
	ErrEstimation = errors.New("estimation error")
	// ErrStorageWrite is returned when a record could not be persisted.
	ErrStorageWrite = errors.New("storage write failure")
	// ErrStorageRead is returned when stored records could not be read back.
	ErrStorageRead = errors.New("storage read failure")
	// ErrInvalidWindow is returned when a window's start is not before its end.
	ErrInvalidWindow = errors.New("invalid window")
)
