package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/andresmejia3/assetcam/internal/utils"
)

// TesseractConfig locates the engine's resources. The same contract covers a
// local install and language data served from a remote base URL.
type TesseractConfig struct {
	CorePath string // tesseract binary; empty means PATH lookup
	LangPath string // tessdata directory or http(s) base URL; empty means tesseract's default
	Language string
	PSM      int // page segmentation mode; 0 keeps tesseract's default
	CacheDir string
	Client   *http.Client
}

// Tesseract runs the tesseract CLI once per image, image on stdin and text on stdout.
type Tesseract struct {
	Path        string
	TessdataDir string
	Language    string
	PSM         int
	Version     string
}

// LoadTesseract returns a LoadFunc that resolves the binary and language data
// and checks that the engine actually answers before handing it out.
func LoadTesseract(cfg TesseractConfig, logger *slog.Logger) LoadFunc {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return func(ctx context.Context) (Engine, error) {
		path, err := resolveBinary(cfg.CorePath)
		if err != nil {
			return nil, err
		}

		lang := cfg.Language
		if lang == "" {
			lang = DefaultLanguage
		}

		tessdata, err := resolveTessdata(ctx, cfg, lang, logger)
		if err != nil {
			return nil, err
		}

		t := &Tesseract{Path: path, TessdataDir: tessdata, Language: lang, PSM: cfg.PSM}
		if err := t.verify(ctx); err != nil {
			return nil, err
		}
		logger.Debug("tesseract ready", "path", path, "version", t.Version, "tessdata", tessdata, "lang", lang)
		return t, nil
	}
}

func resolveBinary(corePath string) (string, error) {
	if corePath == "" {
		p, err := exec.LookPath("tesseract")
		if err != nil {
			return "", fmt.Errorf("tesseract not found on PATH: %w", err)
		}
		return p, nil
	}
	info, err := os.Stat(corePath)
	if err != nil {
		return "", fmt.Errorf("tesseract binary: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("tesseract binary '%s' is a directory", corePath)
	}
	return corePath, nil
}

func resolveTessdata(ctx context.Context, cfg TesseractConfig, lang string, logger *slog.Logger) (string, error) {
	switch {
	case cfg.LangPath == "":
		return "", nil
	case strings.HasPrefix(cfg.LangPath, "http://"), strings.HasPrefix(cfg.LangPath, "https://"):
		dir := cfg.CacheDir
		if dir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return "", fmt.Errorf("no cache directory for language data: %w", err)
			}
			dir = filepath.Join(base, "assetcam", "tessdata")
		}
		client := cfg.Client
		if client == nil {
			client = http.DefaultClient
		}
		if err := fetchLanguage(ctx, client, cfg.LangPath, lang, dir, logger); err != nil {
			return "", err
		}
		return dir, nil
	default:
		info, err := os.Stat(cfg.LangPath)
		if err != nil {
			return "", fmt.Errorf("tessdata directory: %w", err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("tessdata path '%s' is not a directory", cfg.LangPath)
		}
		return cfg.LangPath, nil
	}
}

// fetchLanguage downloads <lang>.traineddata from baseURL into dir unless it is already cached.
func fetchLanguage(ctx context.Context, client *http.Client, baseURL, lang, dir string, logger *slog.Logger) error {
	dest := filepath.Join(dir, lang+".traineddata")
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		logger.Debug("using cached language data", "path", dest)
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create language cache '%s': %w", dir, err)
	}

	url := strings.TrimSuffix(baseURL, "/") + "/" + lang + ".traineddata"
	logger.Info("downloading language data", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch language data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch language data: %s returned %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, lang+".traineddata.*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	// Reject error pages served with a 200
	head := make([]byte, 1)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil || n == 0 {
		tmp.Close()
		return fmt.Errorf("language data from %s is empty", url)
	}
	if head[0] == '<' {
		tmp.Close()
		return fmt.Errorf("language data from %s looks like markup, not traineddata", url)
	}
	if _, err := tmp.Write(head); err != nil {
		tmp.Close()
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download language data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// verify checks the binary is really tesseract and knows the language.
func (t *Tesseract) verify(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, t.Path, "--version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("'%s --version' failed: %w", t.Path, err)
	}
	version, err := parseVersion(string(out))
	if err != nil {
		return err
	}
	t.Version = version

	args := []string{"--list-langs"}
	if t.TessdataDir != "" {
		args = append([]string{"--tessdata-dir", t.TessdataDir}, args...)
	}
	out, err = exec.CommandContext(ctx, t.Path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("'%s --list-langs' failed: %w", t.Path, err)
	}
	if !hasLanguage(string(out), t.Language) {
		return fmt.Errorf("tesseract has no '%s' language data", t.Language)
	}
	return nil
}

func parseVersion(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.EqualFold(fields[0], "tesseract") {
			return strings.TrimPrefix(fields[1], "v"), nil
		}
	}
	return "", fmt.Errorf("binary did not identify itself as tesseract")
}

func hasLanguage(out, lang string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == lang {
			return true
		}
	}
	return false
}

// Args is the command line used for one recognition.
func (t *Tesseract) Args() []string {
	args := []string{"stdin", "stdout", "-l", t.Language}
	if t.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.TessdataDir)
	}
	if t.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.PSM))
	}
	return args
}

// Recognize feeds img to tesseract. The CLI reports no intermediate progress,
// so the recognition phase is reported at its start and end.
func (t *Tesseract) Recognize(ctx context.Context, img *types.CapturedImage, onProgress func(types.Progress)) (string, error) {
	emit := func(status string, ratio float64) {
		if onProgress != nil {
			onProgress(types.Progress{Status: status, Ratio: ratio})
		}
	}

	emit("initializing api", 1)
	emit(StatusRecognizing, 0)

	cmd := utils.NewSafeCommand(ctx, t.Path, t.Args()...)
	cmd.Stdin = bytes.NewReader(img.Data)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if line := cmd.LastLine(); line != "" {
			return "", fmt.Errorf("tesseract failed: %w: %s", err, line)
		}
		return "", fmt.Errorf("tesseract failed: %w", err)
	}

	emit(StatusRecognizing, 1)
	return stdout.String(), nil
}
