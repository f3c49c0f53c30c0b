package native

import "errors"

// Package errors for the HAL graphics backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrUnknownBackend is returned by Open for a backend name it does not know.
	ErrUnknownBackend = errors.New("native: unknown HAL backend")

	// ErrNoHAL is returned by NewFromProvider when the provider does not
	// expose a HAL device and queue.
	ErrNoHAL = errors.New("native: provider does not expose HAL device and queue")

	// ErrClosed is returned when the backend has been closed.
	ErrClosed = errors.New("native: graphics closed")

	// ErrNotFound is returned for unknown texture, buffer or fence IDs.
	ErrNotFound = errors.New("native: resource not found")

	// ErrInvalidDimensions is returned when width or height is invalid.
	ErrInvalidDimensions = errors.New("native: invalid dimensions")

	// ErrOutOfRange is returned when a write or copy exceeds a resource.
	ErrOutOfRange = errors.New("native: region out of range")
)
