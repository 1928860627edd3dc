package cmd

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/andresmejia3/assetcam/internal/assetid"
	"github.com/andresmejia3/assetcam/internal/camera"
	"github.com/andresmejia3/assetcam/internal/ocr"
	"github.com/andresmejia3/assetcam/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <image_path>",
	Short: "Read an asset ID from a still image (PNG or JPEG)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runExtract(cmd.Context(), args[0], opts)
	},
}

var extractShowText bool

func init() {
	extractCmd.Flags().BoolVarP(&extractShowText, "text", "t", false, "Also print the raw recognized text to stderr")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(ctx context.Context, imagePath string, opts Options) error {
	f, err := os.Open(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			utils.ShowError("Input file does not exist", err, nil)
		} else {
			utils.ShowError("Unable to access input file", err, nil)
		}
		return reported(err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		utils.ShowError("Failed to decode image", err, nil)
		return reported(err)
	}
	captured, err := camera.EncodeImage(img)
	if err != nil {
		utils.ShowError("Failed to prepare image", err, nil)
		return reported(err)
	}

	loader, err := newLoader(opts)
	if err != nil {
		utils.ShowError("Invalid OCR engine flags", err, nil)
		return reported(err)
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting OCR engine...")
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("🔎 Recognizing"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)

	text, err := ocr.NewRecognizer(loader, logger).RunOCR(ctx, captured, func(percent int) {
		bar.Set(percent)
	})
	bar.Finish()
	if err != nil {
		utils.ShowError("Recognition failed", err, nil)
		return reported(err)
	}

	if extractShowText {
		fmt.Fprintf(os.Stderr, "📝 Recognized text:\n%s\n", text)
	}

	id, ok := assetid.Extract(text)
	if !ok {
		fmt.Fprintf(os.Stderr, "⚠️  No asset ID found in %s\n", imagePath)
		return reported(errNoAssetID)
	}
	fmt.Println(id)
	return nil
}
