// Package capture sequences a single capture: snapshot, recognition, extraction,
// and the status and output updates around them.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/andresmejia3/assetcam/internal/assetid"
	"github.com/andresmejia3/assetcam/internal/camera"
	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/andresmejia3/assetcam/internal/utils"
)

// Camera is the part of camera.Session the orchestrator drives.
type Camera interface {
	Init(ctx context.Context) error
	Ready() bool
	Snapshot() (*types.CapturedImage, error)
}

// Recognizer is the part of ocr.Recognizer the orchestrator drives.
type Recognizer interface {
	RunOCR(ctx context.Context, img *types.CapturedImage, onProgress func(percent int)) (string, error)
}

// StatusSink renders what the orchestrator reports.
type StatusSink interface {
	SetStatus(s types.Status)
	SetEnabled(enabled bool)
	SetOutput(text string)
}

// Outcome is how a HandleCapture call ended.
type Outcome int

const (
	// OutcomeBusy means another capture held the guard; nothing happened.
	OutcomeBusy Outcome = iota
	// OutcomeDisabled means the camera failed at startup; nothing happened.
	OutcomeDisabled
	// OutcomeRejected means the camera had no frame yet.
	OutcomeRejected
	OutcomeFound
	OutcomeNotFound
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBusy:
		return "busy"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

const (
	statusStarting    = "Starting camera..."
	statusReady       = "Camera ready. Press Enter to capture."
	statusCapturing   = "Capturing frame..."
	statusRecognizing = "Recognizing text..."
	statusFailed      = "Something went wrong while processing the image. Please try again."
)

// Orchestrator owns the capture lifecycle. At most one capture runs at a time.
type Orchestrator struct {
	camera     Camera
	recognizer Recognizer
	sink       StatusSink
	policy     Policy
	logger     *slog.Logger

	mu     sync.Mutex
	state  State
	output OutputBuffer
}

func New(cam Camera, rec Recognizer, sink StatusSink, policy Policy, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Orchestrator{camera: cam, recognizer: rec, sink: sink, policy: policy, logger: logger}
}

// Start brings the camera up. On failure capture stays disabled for the
// lifetime of the orchestrator.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.sink.SetEnabled(false)
	o.sink.SetStatus(types.Info(statusStarting))

	if err := o.camera.Init(ctx); err != nil {
		o.logger.Error("camera init failed", "err", err)
		o.mu.Lock()
		if isAllowedTransition(o.state, Disabled) {
			o.state = Disabled
		}
		o.mu.Unlock()
		o.sink.SetStatus(types.Failure(types.UserMessage(err, camera.ErrCameraFailed.Message)))
		return err
	}

	o.sink.SetStatus(types.Info(statusReady))
	o.sink.SetEnabled(true)
	return nil
}

// HandleCapture runs one capture. Calls made while another capture is in
// flight return OutcomeBusy without side effects. The returned error is the
// pipeline failure, already reported to the sink.
func (o *Orchestrator) HandleCapture(ctx context.Context) (Outcome, error) {
	o.mu.Lock()
	switch o.state {
	case Idle:
		o.state = Guarding
	case Disabled:
		o.mu.Unlock()
		return OutcomeDisabled, nil
	default:
		o.mu.Unlock()
		o.logger.Debug("capture already in progress, ignoring trigger")
		return OutcomeBusy, nil
	}
	o.mu.Unlock()

	if !o.camera.Ready() {
		o.sink.SetStatus(types.Warning(camera.ErrNotReady.Message))
		o.step(Guarding, Idle)
		return OutcomeRejected, nil
	}

	o.step(Guarding, Busy)
	o.sink.SetEnabled(false)
	defer o.finish()

	if o.policy.ClearOnStart {
		o.updateOutput(func(b *OutputBuffer) { b.Clear() })
	}

	o.step(Busy, Capturing)
	o.sink.SetStatus(types.Info(statusCapturing))
	img, err := o.camera.Snapshot()
	if errors.Is(err, camera.ErrNotReady) {
		// The stream dropped after the readiness check.
		o.sink.SetStatus(types.Warning(camera.ErrNotReady.Message))
		return OutcomeRejected, nil
	}
	if err != nil {
		return o.fail(o.logger, err)
	}
	log := o.logger.With("capture", img.ID)
	log.Debug("frame captured", "width", img.Width, "height", img.Height)

	o.step(Capturing, Recognizing)
	o.sink.SetStatus(types.Info(statusRecognizing))
	text, err := o.recognizer.RunOCR(ctx, img, func(percent int) {
		o.sink.SetStatus(types.Status{
			Severity: types.SeverityInfo,
			Message:  fmt.Sprintf("%s %d%%", statusRecognizing, percent),
			Progress: percent,
		})
	})
	if err != nil {
		return o.fail(log, err)
	}

	o.step(Recognizing, Extracting)
	id, ok := assetid.Extract(text)
	if !ok {
		log.Info("no asset ID in recognized text", "text", text)
		o.sink.SetStatus(types.Warning("No Asset ID found. Expected format: " + assetid.Format))
		if raw := strings.TrimSpace(text); o.policy.NotFound == RawOnNotFound && raw != "" {
			o.updateOutput(func(b *OutputBuffer) { b.Write(o.policy.Output, raw) })
		}
		return OutcomeNotFound, nil
	}

	log.Info("asset ID captured", "asset_id", id)
	o.updateOutput(func(b *OutputBuffer) { b.Write(o.policy.Output, id) })
	o.sink.SetStatus(types.Info("Asset ID found: " + id))
	return OutcomeFound, nil
}

func (o *Orchestrator) fail(log *slog.Logger, err error) (Outcome, error) {
	log.Error("capture failed", "err", err)
	o.sink.SetStatus(types.Failure(types.UserMessage(err, statusFailed)))
	if o.policy.OnFailure == ClearOnFailure {
		o.updateOutput(func(b *OutputBuffer) { b.Clear() })
	}
	return OutcomeFailed, err
}

// finish releases the guard on every exit path of a started capture.
func (o *Orchestrator) finish() {
	o.mu.Lock()
	from := o.state
	o.mu.Unlock()
	o.step(from, Done)
	o.step(Done, Idle)
	o.sink.SetEnabled(true)
}

// step moves from -> to. A disallowed or stale transition is a bug in this package.
func (o *Orchestrator) step(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != from {
		panic(fmt.Sprintf("capture: expected state %s, got %s", from, o.state))
	}
	if !isAllowedTransition(from, to) {
		panic(fmt.Sprintf("capture: disallowed transition %s -> %s", from, to))
	}
	o.state = to
}

func (o *Orchestrator) updateOutput(fn func(b *OutputBuffer)) {
	o.mu.Lock()
	fn(&o.output)
	text := o.output.String()
	o.mu.Unlock()
	o.sink.SetOutput(text)
}

func (o *Orchestrator) current() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
