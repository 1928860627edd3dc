package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/andresmejia3/assetcam/internal/camera"
	"github.com/andresmejia3/assetcam/internal/ocr"
	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the camera tooling and the OCR engine are usable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCheck(cmd.Context(), opts)
	},
}

func init() {
	addCameraFlags(checkCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheck(ctx context.Context, opts Options) error {
	var failed bool
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAILS")
	fmt.Fprintln(w, "---------\t------\t-------")

	device := &camera.FFmpegDevice{}
	if path, err := exec.LookPath("ffmpeg"); err != nil {
		failed = true
		fmt.Fprintf(w, "ffmpeg\tmissing\t%v\n", err)
	} else if !device.Supported() {
		failed = true
		fmt.Fprintf(w, "ffmpeg\tunsupported\t%s\n", camera.ErrUnsupported.Message)
	} else {
		fmt.Fprintf(w, "ffmpeg\tok\t%s\n", path)
	}

	if c, err := cameraConstraints(&opts); err != nil {
		failed = true
		fmt.Fprintf(w, "camera flags\tinvalid\t%v\n", err)
	} else {
		dev := c.Device
		if dev == "" {
			dev = "(platform default)"
		}
		fmt.Fprintf(w, "camera\tconfigured\t%s\n", dev)
	}

	loader, err := newLoader(opts)
	if err != nil {
		failed = true
		fmt.Fprintf(w, "tesseract\tinvalid\t%v\n", err)
	} else if engine, err := loader.Ensure(ctx); err != nil {
		failed = true
		var cause error = err
		if inner := errors.Unwrap(err); inner != nil {
			cause = inner
		}
		fmt.Fprintf(w, "tesseract\t%s\t%s (%v)\n", loader.State(), types.UserMessage(err, "load failed"), cause)
	} else if t, ok := engine.(*ocr.Tesseract); ok {
		tessdata := t.TessdataDir
		if tessdata == "" {
			tessdata = "(default)"
		}
		fmt.Fprintf(w, "tesseract\t%s\t%s v%s, lang %s, tessdata %s\n", loader.State(), t.Path, t.Version, t.Language, tessdata)
	}
	w.Flush()

	if failed {
		return errors.New("one or more components are not usable")
	}
	return nil
}
