package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/assetcam/internal/utils"
	"golang.org/x/sync/singleflight"
)

// FailurePolicy decides what a failed load means for later calls.
type FailurePolicy int

const (
	// RetryOnFailure lets the next Ensure start a fresh load.
	RetryOnFailure FailurePolicy = iota
	// PinFailure remembers the failure for the rest of the process.
	PinFailure
)

// ParseFailurePolicy maps the --engine-failure flag value.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "retry", "":
		return RetryOnFailure, nil
	case "pin":
		return PinFailure, nil
	default:
		return 0, fmt.Errorf("invalid engine failure policy '%s'. Must be 'retry' or 'pin'", s)
	}
}

// LoaderState is the externally visible state of a Loader.
type LoaderState int

const (
	Unloaded LoaderState = iota
	Loading
	Loaded
	Failed
)

func (s LoaderState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Loader memoizes a single Engine for the process. Concurrent callers during
// a load share its outcome instead of starting their own.
type Loader struct {
	load   LoadFunc
	policy FailurePolicy
	logger *slog.Logger

	group    singleflight.Group
	attempts atomic.Int64

	mu      sync.Mutex
	engine  Engine
	pinned  error
	loading bool
}

// NewLoader wraps load. A nil logger discards logs.
func NewLoader(load LoadFunc, policy FailurePolicy, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Loader{load: load, policy: policy, logger: logger}
}

// Ensure returns the loaded engine, loading it first if needed.
// Load failures are reported as ErrEngineLoad; the cause only goes to the log.
// Cancelling ctx stops the wait, not the shared load.
func (l *Loader) Ensure(ctx context.Context) (Engine, error) {
	if done, eng, err := l.settled(); done {
		return eng, err
	}

	ch := l.group.DoChan("engine", func() (interface{}, error) {
		// A load may have finished between settled() and here.
		if done, eng, err := l.settled(); done {
			return eng, err
		}

		l.mu.Lock()
		l.loading = true
		l.mu.Unlock()

		n := l.attempts.Add(1)
		l.logger.Debug("loading OCR engine", "attempt", n)
		eng, err := l.load(context.WithoutCancel(ctx))

		l.mu.Lock()
		defer l.mu.Unlock()
		l.loading = false

		if err == nil && eng == nil {
			err = fmt.Errorf("loader returned no engine")
		}
		if err != nil {
			l.logger.Error("OCR engine load failed", "attempt", n, "err", err)
			uerr := ErrEngineLoad.With(err)
			if l.policy == PinFailure {
				l.pinned = uerr
			}
			return nil, uerr
		}

		l.logger.Info("OCR engine loaded", "attempt", n)
		l.engine = eng
		return eng, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Engine), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loader) settled() (bool, Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != nil {
		return true, l.engine, nil
	}
	if l.pinned != nil {
		return true, nil, l.pinned
	}
	return false, nil, nil
}

// State reports where the loader is in its lifecycle.
func (l *Loader) State() LoaderState {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.engine != nil:
		return Loaded
	case l.loading:
		return Loading
	case l.pinned != nil:
		return Failed
	default:
		return Unloaded
	}
}
