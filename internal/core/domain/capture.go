package domain

import "fmt"

// CaptureProfile is one rung of the capture fallback ladder: a concrete
// set of constraints to try against the local device.
type CaptureProfile struct {
	Name      string
	Audio     bool
	Video     bool
	Width     int
	Height    int
	FrameRate int
}

// CaptureError wraps a device failure with its classified kind so the
// caller can pick a user-facing message after the ladder is exhausted.
type CaptureError struct {
	Kind CaptureErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

func NewCaptureError(kind CaptureErrorKind, err error) *CaptureError {
	return &CaptureError{Kind: kind, Err: err}
}
