package ocr

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/andresmejia3/assetcam/internal/utils"
)

// EngineProvider hands out a ready Engine. *Loader is the production provider.
type EngineProvider interface {
	Ensure(ctx context.Context) (Engine, error)
}

// Recognizer turns a captured image into raw text.
type Recognizer struct {
	provider EngineProvider
	logger   *slog.Logger
}

func NewRecognizer(provider EngineProvider, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Recognizer{provider: provider, logger: logger}
}

// RunOCR recognizes img. onProgress receives whole percentages for the
// recognition phase only, never decreasing. Errors are always *types.UserError.
func (r *Recognizer) RunOCR(ctx context.Context, img *types.CapturedImage, onProgress func(percent int)) (string, error) {
	engine, err := r.provider.Ensure(ctx)
	if err != nil {
		return "", r.userError(err)
	}

	var mu sync.Mutex
	last := -1
	forward := func(p types.Progress) {
		if onProgress == nil || p.Status != StatusRecognizing {
			return
		}
		pct := Percent(p.Ratio)
		mu.Lock()
		if pct < last {
			mu.Unlock()
			return
		}
		last = pct
		mu.Unlock()
		onProgress(pct)
	}

	text, err := engine.Recognize(ctx, img, forward)
	if err != nil {
		return "", r.userError(err)
	}
	return text, nil
}

func (r *Recognizer) userError(err error) error {
	var ue *types.UserError
	if errors.As(err, &ue) {
		return err
	}
	r.logger.Error("OCR failed", "err", err)
	return ErrRecognition.With(err)
}

// Percent converts an engine ratio to a whole percentage in [0,100].
func Percent(ratio float64) int {
	if math.IsNaN(ratio) {
		return 0
	}
	pct := int(math.Round(ratio * 100))
	return max(0, min(100, pct))
}
