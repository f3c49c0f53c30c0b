package capture

import "errors"

// Errors returned by capture.
var (
	// ErrInvalidFormat is returned by ParseFormat for malformed format strings.
	ErrInvalidFormat = errors.New("capture: invalid format")

	// ErrUnknownBuffer reports a buffer handle the allocator never issued or
	// already finalized. The device is an external component, so this is
	// logged and the call becomes a no-op.
	ErrUnknownBuffer = errors.New("capture: unknown buffer handle")

	// ErrAlreadyStarted is returned by Source.Start on a running source.
	ErrAlreadyStarted = errors.New("capture: source already started")

	// ErrClosed is returned when using a closed source or allocator.
	ErrClosed = errors.New("capture: closed")

	// ErrGeometryMismatch is returned by Source.Refresh when a frame's size
	// does not match the negotiated format. The frame is skipped.
	ErrGeometryMismatch = errors.New("capture: frame geometry does not match format")
)
