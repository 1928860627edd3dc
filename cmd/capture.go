package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/assetcam/internal/assetid"
	"github.com/andresmejia3/assetcam/internal/camera"
	"github.com/andresmejia3/assetcam/internal/capture"
	"github.com/andresmejia3/assetcam/internal/console"
	"github.com/andresmejia3/assetcam/internal/ocr"
	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/andresmejia3/assetcam/internal/utils"
	"github.com/spf13/cobra"
)

// errNoAssetID makes one-shot commands exit non-zero when nothing matched.
var errNoAssetID = fmt.Errorf("no asset ID found (expected %s)", assetid.Format)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture asset IDs from the live camera feed",
	Long: `Opens the camera and reads an asset ID from the current frame every time Enter is pressed.
Found IDs are written to stdout, one per line. Type 'q' or send EOF to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCapture(cmd.Context(), opts, cmd.InOrStdin(), cmd.ErrOrStderr(), cmd.OutOrStdout())
	},
}

func init() {
	addCameraFlags(captureCmd)
	captureCmd.Flags().StringVar(&opts.OutputMode, "output-mode", "append", "How found IDs land in the output: 'append' or 'replace'")
	captureCmd.Flags().StringVar(&opts.NotFound, "not-found", "keep", "When no ID is found: 'keep' the output or write the 'raw' recognized text")
	captureCmd.Flags().StringVar(&opts.OnFailure, "on-failure", "keep", "When a capture fails: 'keep' or 'clear' the output")
	captureCmd.Flags().BoolVar(&opts.ClearOnStart, "clear-on-start", false, "Clear the output at the start of every capture")
	captureCmd.Flags().BoolVar(&opts.Once, "once", false, "Capture a single frame as soon as the camera is ready, then exit")
	rootCmd.AddCommand(captureCmd)
}

const statusBusy = "Capture in progress. Press Enter again once it finishes."

// captureHandler is the part of the orchestrator the input loop drives.
type captureHandler interface {
	HandleCapture(ctx context.Context) (capture.Outcome, error)
}

// triggerSink is the console side of the capture trigger.
type triggerSink interface {
	Enabled() bool
	SetStatus(s types.Status)
}

// newCameraDevice is the capture device used by the capture command.
var newCameraDevice = func() camera.Device { return &camera.FFmpegDevice{} }

func runCapture(ctx context.Context, opts Options, in io.Reader, stderr, stdout io.Writer) error {
	policy, constraints, err := validateCaptureFlags(&opts)
	if err != nil {
		utils.ShowError("Invalid capture flags", err, nil)
		return reported(err)
	}

	loader, err := newLoader(opts)
	if err != nil {
		utils.ShowError("Invalid OCR engine flags", err, nil)
		return reported(err)
	}

	session := camera.NewSession(newCameraDevice(), constraints, logger)
	defer session.Close()

	con := console.New(stderr, stdout)
	orch := capture.New(session, ocr.NewRecognizer(loader, logger), con, policy, logger)

	// Every outcome below has already been reported on the status line.
	if err := orch.Start(ctx); err != nil {
		return reported(err)
	}

	if opts.Once {
		if err := waitReady(ctx, session); err != nil {
			return err
		}
		outcome, err := orch.HandleCapture(ctx)
		switch {
		case err != nil:
			return reported(err)
		case outcome != capture.OutcomeFound:
			return reported(errNoAssetID)
		}
		return nil
	}

	return captureLoop(ctx, orch, con, in)
}

// captureLoop triggers one capture per input line until 'q', EOF, or
// cancellation. A trigger while capture is disabled is dropped with a warning;
// each accepted trigger runs on its own goroutine.
func captureLoop(ctx context.Context, h captureHandler, sink triggerSink, in io.Reader) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, stopping capture loop")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "q", "quit", "exit":
				return nil
			}
			if !sink.Enabled() {
				sink.SetStatus(types.Warning(statusBusy))
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcome, err := h.HandleCapture(ctx)
				if outcome == capture.OutcomeBusy {
					sink.SetStatus(types.Warning(statusBusy))
				}
				logger.Debug("capture finished", "outcome", outcome, "err", err)
			}()
		}
	}
}

// waitReady blocks until the camera has produced a frame.
func waitReady(ctx context.Context, session *camera.Session) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !session.Ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-session.Done():
			return errors.New("camera stream ended before the first frame")
		case <-ticker.C:
		}
	}
	return nil
}

func validateCaptureFlags(opts *Options) (capture.Policy, camera.Constraints, error) {
	var policy capture.Policy
	var err error

	if policy.Output, err = capture.ParseOutputMode(opts.OutputMode); err != nil {
		return policy, camera.Constraints{}, err
	}
	if policy.NotFound, err = capture.ParseNotFoundAction(opts.NotFound); err != nil {
		return policy, camera.Constraints{}, err
	}
	if policy.OnFailure, err = capture.ParseFailureAction(opts.OnFailure); err != nil {
		return policy, camera.Constraints{}, err
	}
	policy.ClearOnStart = opts.ClearOnStart

	c, err := cameraConstraints(opts)
	return policy, c, err
}

func cameraConstraints(opts *Options) (camera.Constraints, error) {
	c := camera.DefaultConstraints()
	c.Device = opts.Device
	c.Format = opts.InputFormat

	if opts.Size != "" {
		w, h, err := parseSize(opts.Size)
		if err != nil {
			return c, err
		}
		c.Width, c.Height = w, h
	}
	if opts.FrameRate < 0 {
		return c, fmt.Errorf("invalid framerate: must be >= 0, got %d", opts.FrameRate)
	}
	c.FrameRate = opts.FrameRate
	return c, nil
}

// parseSize parses "WxH".
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size '%s': expected WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid size '%s': bad width", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size '%s': bad height", s)
	}
	return w, h, nil
}
