package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"

	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/andresmejia3/assetcam/internal/utils"
)

// Buffer pool to reduce GC pressure while the stream keeps replacing the latest frame
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

// Session is the process-lifetime camera stream.
type Session struct {
	device      Device
	constraints Constraints
	logger      *slog.Logger

	initOnce sync.Once
	initErr  error

	mu     sync.RWMutex
	latest []byte
	width  int
	height int
	stream io.ReadCloser
	done   chan struct{}
}

// NewSession creates an unopened session. A nil logger discards logs.
func NewSession(device Device, c Constraints, logger *slog.Logger) *Session {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Session{
		device:      device,
		constraints: c,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Init acquires the stream. It runs once; later calls return the first outcome.
// The returned error is always a *types.UserError from this package.
func (s *Session) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.open(ctx)
	})
	return s.initErr
}

func (s *Session) open(ctx context.Context) error {
	if s.device == nil || !s.device.Supported() {
		close(s.done)
		return ErrUnsupported
	}

	stream, err := s.device.Open(ctx, s.constraints)
	if err != nil {
		s.logger.Error("camera open failed", "err", err, "device", s.constraints.Device)
		close(s.done)
		return userError(err)
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	go s.pump(stream)
	return nil
}

// pump keeps the newest decodable frame until the stream ends.
func (s *Session) pump(stream io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	frames := 0
	for scanner.Scan() {
		frame := scanner.Bytes()
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
		if err != nil || cfg.Width == 0 || cfg.Height == 0 {
			s.logger.Debug("skipping undecodable frame", "err", err, "bytes", len(frame))
			continue
		}

		buf := frameBufferPool.Get().([]byte)
		if cap(buf) < len(frame) {
			buf = make([]byte, len(frame))
		}
		buf = buf[:len(frame)]
		copy(buf, frame)

		s.mu.Lock()
		old := s.latest
		s.latest, s.width, s.height = buf, cfg.Width, cfg.Height
		s.mu.Unlock()
		if old != nil {
			frameBufferPool.Put(old[:0])
		}

		frames++
		if frames == 1 {
			s.logger.Info("camera stream ready", "width", cfg.Width, "height", cfg.Height)
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Warn("camera stream failed", "err", err, "frames", frames)
	} else {
		s.logger.Warn("camera stream ended", "frames", frames)
	}

	s.mu.Lock()
	s.width, s.height = 0, 0
	s.mu.Unlock()
}

// Ready reports whether a frame with known dimensions is available.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width > 0 && s.height > 0
}

// Snapshot encodes the latest frame at its true pixel size.
// It returns ErrNotReady, without touching any state, until a frame has been decoded.
func (s *Session) Snapshot() (*types.CapturedImage, error) {
	s.mu.RLock()
	if s.width == 0 || s.height == 0 || len(s.latest) == 0 {
		s.mu.RUnlock()
		return nil, ErrNotReady
	}
	frame := make([]byte, len(s.latest))
	copy(frame, s.latest)
	s.mu.RUnlock()

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode camera frame: %w", err)
	}
	return EncodeImage(img)
}

// Done is closed once the stream has ended (or never started).
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the stream and waits for the frame reader to finish.
// Safe to call on an unopened session.
func (s *Session) Close() error {
	s.mu.RLock()
	stream := s.stream
	s.mu.RUnlock()
	if stream == nil {
		return nil
	}
	err := stream.Close()
	<-s.done
	return err
}
