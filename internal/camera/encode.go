package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"time"

	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/google/uuid"
)

// EncodeImage rasterizes img onto a canvas of its own pixel size and encodes it as PNG.
func EncodeImage(img image.Image) (*types.CapturedImage, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels (%dx%d)", b.Dx(), b.Dy())
	}

	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return &types.CapturedImage{
		ID:       uuid.NewString(),
		Data:     buf.Bytes(),
		MIMEType: "image/png",
		Width:    b.Dx(),
		Height:   b.Dy(),
		TakenAt:  time.Now(),
	}, nil
}
