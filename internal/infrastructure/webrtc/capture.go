package webrtc

import (
	"context"
	"errors"
	"fmt"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"go.uber.org/zap"
)

// FallbackLadder is the ordered sequence of capture constraints, tried
// strictest first. Each failed rung falls through to the next; the user
// only hears about a failure once the whole ladder is exhausted.
var FallbackLadder = []domain.CaptureProfile{
	{Name: "hd", Audio: true, Video: true, Width: 1280, Height: 720, FrameRate: 30},
	{Name: "sd", Audio: true, Video: true, Width: 640, Height: 480, FrameRate: 15},
	{Name: "minimal", Audio: true, Video: true, Width: 320, Height: 240},
	{Name: "basic-video", Audio: true, Video: true},
	{Name: "audio-only", Audio: true, Video: false},
}

// AcquireUserMedia walks the fallback ladder against the device and
// returns the first stream acquired along with the profile that worked.
func AcquireUserMedia(ctx context.Context, dev ports.MediaDevice, logger *zap.SugaredLogger) (ports.CaptureStream, domain.CaptureProfile, error) {
	var lastErr error

	for _, profile := range FallbackLadder {
		if err := ctx.Err(); err != nil {
			return nil, domain.CaptureProfile{}, err
		}

		stream, err := dev.Capture(ctx, profile)
		if err == nil {
			logger.Infow("capture acquired", "profile", profile.Name)
			return stream, profile, nil
		}
		lastErr = err
		logger.Warnw("capture attempt failed", "profile", profile.Name, "error", err)
	}

	kind := ClassifyCaptureError(lastErr)
	return nil, domain.CaptureProfile{}, fmt.Errorf("%w (%s): %v", domain.ErrCaptureFailed, kind, lastErr)
}

// ClassifyCaptureError extracts the device-error kind from any error in
// the chain, defaulting to "other".
func ClassifyCaptureError(err error) domain.CaptureErrorKind {
	var capErr *domain.CaptureError
	if errors.As(err, &capErr) {
		return capErr.Kind
	}
	return domain.CaptureOther
}

// CaptureUserMessage maps a classified capture failure to the message
// shown to the user after all fallback attempts failed.
func CaptureUserMessage(kind domain.CaptureErrorKind) string {
	switch kind {
	case domain.CapturePermissionDenied:
		return "Access to the camera or microphone is blocked. Allow access in your system settings."
	case domain.CaptureNotFound:
		return "No camera or microphone was found. Check that your devices are connected."
	case domain.CaptureDeviceBusy:
		return "The camera or microphone is in use by another application. Close the other application and retry."
	case domain.CaptureOverconstrained:
		return "Your camera does not support the requested settings."
	default:
		return "Could not access the camera or microphone."
	}
}
