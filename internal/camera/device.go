// Package camera owns the live video stream and turns its latest frame into a
// still image on demand.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/assetcam/internal/types"
)

// Constraints describe the stream we ask the device for.
type Constraints struct {
	// FacingMode is the preferred camera direction. "environment" is the
	// rear-facing camera on devices that have one.
	FacingMode string
	Audio      bool
	Device     string // device path or name; empty selects the platform default
	Format     string // capture input format override (v4l2, avfoundation, dshow)
	Width      int
	Height     int
	FrameRate  int
}

// DefaultConstraints asks for a rear-facing, video-only stream.
func DefaultConstraints() Constraints {
	return Constraints{FacingMode: "environment", Audio: false}
}

// Reason is the device-level failure code.
type Reason string

const (
	ReasonPermissionDenied Reason = "permission-denied"
	ReasonNotFound         Reason = "not-found"
	ReasonOverconstrained  Reason = "overconstrained"
	ReasonOther            Reason = "other"
)

// DeviceError is returned by Device.Open when the stream cannot be acquired.
type DeviceError struct {
	Reason Reason
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Reason, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Device is the host camera capability.
type Device interface {
	// Supported reports whether the host can capture video at all.
	Supported() bool
	// Open acquires a live stream of concatenated JPEG frames.
	Open(ctx context.Context, c Constraints) (io.ReadCloser, error)
}

var (
	ErrUnsupported = &types.UserError{
		Kind:    "camera-unsupported",
		Message: "Camera access is not supported on this system (ffmpeg with a capture device is required).",
	}
	ErrPermissionDenied = &types.UserError{
		Kind:    "camera-permission-denied",
		Message: "Camera permission denied. Allow access to the video device and restart.",
	}
	ErrNoDevice = &types.UserError{
		Kind:    "camera-no-device",
		Message: "No camera found, or the camera cannot provide the requested settings.",
	}
	ErrCameraFailed = &types.UserError{
		Kind:    "camera-failed",
		Message: "Unable to start the camera.",
	}
	ErrNotReady = &types.UserError{
		Kind:    "camera-not-ready",
		Message: "Camera is not ready yet. Wait a moment and try again.",
	}
)

// userError maps a device failure onto the three user-facing categories.
func userError(err error) *types.UserError {
	var de *DeviceError
	if !errors.As(err, &de) {
		return ErrCameraFailed.With(err)
	}
	switch de.Reason {
	case ReasonPermissionDenied:
		return ErrPermissionDenied.With(err)
	case ReasonNotFound, ReasonOverconstrained:
		return ErrNoDevice.With(err)
	default:
		return ErrCameraFailed.With(err)
	}
}
