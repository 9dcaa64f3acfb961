package verify

import "errors"

// Terminal session errors. None of these are retryable within a session; the
// user must restart the flow.
var (
	// ErrDeviceUnavailable wraps camera acquisition or mid-capture device
	// failures.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrAssetLoad wraps vision model asset loading failures.
	ErrAssetLoad = errors.New("vision assets failed to load")
	// ErrNoEnrollment is surfaced before any frame is scored when a verify
	// session starts for an identity with nothing enrolled.
	ErrNoEnrollment = errors.New("no enrollment for identity")
	// ErrLockedOut ends the session after the configured number of
	// consecutive rejects.
	ErrLockedOut = errors.New("too many failed verification attempts")
	// ErrCancelled reports cooperative cancellation.
	ErrCancelled = errors.New("session cancelled")
)
