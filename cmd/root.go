package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/assetcam/internal/ocr"
	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/andresmejia3/assetcam/internal/utils"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for capture, extract, and check commands
type Options struct {
	// Camera
	Device      string
	InputFormat string
	Size        string
	FrameRate   int

	// OCR engine
	Tesseract     string
	Tessdata      string
	Lang          string
	PSM           int
	EngineFailure string

	// Output
	OutputMode   string
	NotFound     string
	OnFailure    string
	ClearOnStart bool
	Once         bool
}

var (
	opts     Options
	logLevel string
	// logger is the developer log, configured in PersistentPreRunE
	logger = utils.DiscardLogger()
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "assetcam",
	Short:   "Read asset IDs off equipment labels with a camera and OCR",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := utils.NewLogger(os.Stderr, logLevel)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)

		applyEnvDefaults(&opts)
		return nil
	},
}

// applyEnvDefaults fills flags the user left empty from the environment.
func applyEnvDefaults(o *Options) {
	if o.Device == "" {
		o.Device = os.Getenv("ASSETCAM_DEVICE")
	}
	if o.Tesseract == "" {
		o.Tesseract = os.Getenv("ASSETCAM_TESSERACT")
	}
	if o.Tessdata == "" {
		o.Tessdata = os.Getenv("ASSETCAM_TESSDATA")
	}
}

// newLoader builds the memoized OCR engine loader described by o.
func newLoader(o Options) (*ocr.Loader, error) {
	policy, err := ocr.ParseFailurePolicy(o.EngineFailure)
	if err != nil {
		return nil, err
	}
	if o.PSM < 0 || o.PSM > 13 {
		return nil, fmt.Errorf("invalid page segmentation mode %d. Must be between 0 and 13", o.PSM)
	}
	cfg := ocr.TesseractConfig{
		CorePath: o.Tesseract,
		LangPath: o.Tessdata,
		Language: o.Lang,
		PSM:      o.PSM,
	}
	return ocr.NewLoader(ocr.LoadTesseract(cfg, logger), policy, logger), nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if msg := errorMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}

// reportedError marks an error the user has already been shown, either as a
// status line or in the error box.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func reported(err error) error { return reportedError{err} }

// errorMessage is what Execute prints for err: nothing when it was already
// shown, the user-facing message when it has one, the error text otherwise.
func errorMessage(err error) string {
	var r reportedError
	if errors.As(err, &r) {
		return ""
	}
	return types.UserMessage(err, err.Error())
}

func init() {
	// Errors are printed once by Execute, without their technical cause
	rootCmd.SilenceErrors = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "warn", "Developer log level (debug, info, warn, error)")
	pf.StringVar(&opts.Tesseract, "tesseract", "", "Path to the tesseract binary (env ASSETCAM_TESSERACT, default: tesseract on PATH)")
	pf.StringVar(&opts.Tessdata, "tessdata", "", "Language data directory, or an http(s) base URL to download it from (env ASSETCAM_TESSDATA)")
	pf.StringVar(&opts.Lang, "lang", ocr.DefaultLanguage, "Recognition language")
	pf.IntVar(&opts.PSM, "psm", 0, "Tesseract page segmentation mode (0 keeps tesseract's default)")
	pf.StringVar(&opts.EngineFailure, "engine-failure", "retry", "What a failed engine load means for later captures: 'retry' or 'pin'")
}

// addCameraFlags registers the flags describing the capture device.
func addCameraFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&opts.Device, "device", "d", "", "Camera device (/dev/video0, avfoundation index, dshow name; env ASSETCAM_DEVICE)")
	cmd.Flags().StringVarP(&opts.InputFormat, "input-format", "f", "", "ffmpeg capture input format (default: v4l2, avfoundation, or dshow for the OS)")
	cmd.Flags().StringVarP(&opts.Size, "size", "s", "", "Requested frame size as WxH (e.g. 1280x720)")
	cmd.Flags().IntVarP(&opts.FrameRate, "framerate", "r", 0, "Requested frame rate")
}
