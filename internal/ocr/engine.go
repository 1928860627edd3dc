// Package ocr loads the text recognition engine once per process and runs it over captured images.
package ocr

import (
	"context"

	"github.com/andresmejia3/assetcam/internal/types"
)

// DefaultLanguage is the recognition language model.
const DefaultLanguage = "eng"

// StatusRecognizing is the progress status of the text recognition phase.
const StatusRecognizing = "recognizing text"

// Engine is a loaded recognition capability.
type Engine interface {
	// Recognize returns the text found in img. onProgress may be nil.
	Recognize(ctx context.Context, img *types.CapturedImage, onProgress func(types.Progress)) (string, error)
}

// LoadFunc installs and verifies an Engine.
type LoadFunc func(ctx context.Context) (Engine, error)

var (
	ErrEngineLoad = &types.UserError{
		Kind:    "engine-load",
		Message: "Unable to load the OCR engine. Check the Tesseract installation and try again.",
	}
	ErrRecognition = &types.UserError{
		Kind:    "recognition",
		Message: "OCR processing failed. Please try again.",
	}
)
