package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/andresmejia3/assetcam/internal/utils"
)

const megabyte = 1024 * 1024

// FFmpegDevice captures from the platform's video input through an ffmpeg child process.
type FFmpegDevice struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg" on PATH.
	Binary string
	// GOOS selects the capture input format. Defaults to runtime.GOOS.
	GOOS string
}

func (d *FFmpegDevice) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "ffmpeg"
}

func (d *FFmpegDevice) goos() string {
	if d.GOOS != "" {
		return d.GOOS
	}
	return runtime.GOOS
}

// Supported reports whether ffmpeg is installed and the OS has a known capture format.
func (d *FFmpegDevice) Supported() bool {
	if _, err := exec.LookPath(d.binary()); err != nil {
		return false
	}
	_, err := inputArgs(d.goos(), Constraints{Device: "probe"})
	return err == nil
}

// Open starts ffmpeg and waits until it either produces output or exits.
// An early exit is classified from ffmpeg's stderr into a DeviceError.
func (d *FFmpegDevice) Open(ctx context.Context, c Constraints) (io.ReadCloser, error) {
	in, err := inputArgs(d.goos(), c)
	if err != nil {
		return nil, &DeviceError{Reason: ReasonOther, Err: err}
	}

	cmd := utils.NewFFmpegCaptureCmd(ctx, d.binary(), in)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DeviceError{Reason: ReasonOther, Err: fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &DeviceError{Reason: ReasonOther, Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}

	br := bufio.NewReaderSize(stdout, megabyte)
	if _, err := br.Peek(len(utils.JpegSOI)); err != nil {
		waitErr := cmd.Wait()
		detail := cmd.LastLine()
		if detail == "" {
			detail = fmt.Sprint(errors.Join(err, waitErr))
		}
		return nil, &DeviceError{Reason: classifyFailure(cmd.Stderr.String()), Err: errors.New(detail)}
	}

	return &ffmpegStream{r: br, cmd: cmd}, nil
}

// inputArgs builds the ffmpeg input section for goos.
// Desktop capture APIs have no notion of facing mode, so FacingMode only
// matters through the device the user selects.
func inputArgs(goos string, c Constraints) ([]string, error) {
	var args []string
	format := c.Format
	device := c.Device

	switch goos {
	case "linux":
		if format == "" {
			format = "v4l2"
		}
		if device == "" {
			device = "/dev/video0"
		}
	case "darwin":
		if format == "" {
			format = "avfoundation"
		}
		if device == "" {
			device = "0"
		}
		if !c.Audio && !strings.Contains(device, ":") {
			device += ":none"
		}
	case "windows":
		if format == "" {
			format = "dshow"
		}
		if device == "" {
			return nil, fmt.Errorf("dshow capture requires an explicit --device name")
		}
		if !strings.HasPrefix(device, "video=") {
			device = "video=" + device
		}
	default:
		if format == "" {
			return nil, fmt.Errorf("no camera capture format known for %s", goos)
		}
	}

	args = append(args, "-f", format)
	if c.Width > 0 && c.Height > 0 {
		args = append(args, "-video_size", strconv.Itoa(c.Width)+"x"+strconv.Itoa(c.Height))
	}
	if c.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(c.FrameRate))
	}
	args = append(args, "-i", device)
	return args, nil
}

// classifyFailure maps ffmpeg's complaint about the input device to a Reason.
func classifyFailure(stderr string) Reason {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "permission denied"),
		strings.Contains(s, "not authorized"),
		strings.Contains(s, "operation not permitted"):
		return ReasonPermissionDenied
	case strings.Contains(s, "no such file or directory"),
		strings.Contains(s, "no such device"),
		strings.Contains(s, "could not find video device"),
		strings.Contains(s, "video device not found"),
		strings.Contains(s, "cannot open video device"):
		return ReasonNotFound
	case strings.Contains(s, "invalid argument"),
		strings.Contains(s, "not supported by the device"),
		strings.Contains(s, "selected framerate"),
		strings.Contains(s, "selected video size"),
		strings.Contains(s, "could not set video options"),
		strings.Contains(s, "cannot find a proper format"):
		return ReasonOverconstrained
	default:
		return ReasonOther
	}
}

// ffmpegStream reaps ffmpeg once its stdout has been read to the end, so Wait
// never runs while a reader is still using the pipe.
type ffmpegStream struct {
	r        *bufio.Reader
	cmd      *utils.SafeCommand
	waitOnce sync.Once
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil {
		s.waitOnce.Do(func() { _ = s.cmd.Wait() })
	}
	return n, err
}

// Close kills ffmpeg. The reader then sees EOF and the process is reaped there.
func (s *ffmpegStream) Close() error {
	if s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
