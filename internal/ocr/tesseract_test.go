package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/andresmejia3/assetcam/internal/utils"
)

const fakeTesseract = `#!/bin/sh
for a in "$@"; do
  case "$a" in
    --version) echo "tesseract 5.3.0"; echo " leptonica-1.82.0"; exit 0 ;;
    --list-langs) echo 'List of available languages in "/usr/share/tessdata/" (2):'; echo LANGS | tr ' ' '\n'; exit 0 ;;
  esac
done
echo "$@" > "$0.args"
cat > /dev/null
RECOGNIZE
`

// writeFakeTesseract drops a shell script that answers like the tesseract CLI.
func writeFakeTesseract(t *testing.T, langs, recognize string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tesseract is a shell script")
	}
	script := strings.NewReplacer("LANGS", langs, "RECOGNIZE", recognize).Replace(fakeTesseract)
	path := filepath.Join(t.TempDir(), "tesseract")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake tesseract: %v", err)
	}
	return path
}

func TestLoadTesseract_Recognize(t *testing.T) {
	bin := writeFakeTesseract(t, "eng osd", `printf '7 1 0 8 0-2024\n-0001\n'`)
	tessdata := t.TempDir()

	engine, err := LoadTesseract(TesseractConfig{CorePath: bin, LangPath: tessdata, PSM: 6}, nil)(context.Background())
	if err != nil {
		t.Fatalf("LoadTesseract: %v", err)
	}
	tess := engine.(*Tesseract)
	if tess.Version != "5.3.0" {
		t.Errorf("Expected version 5.3.0, got %q", tess.Version)
	}

	var events []types.Progress
	text, err := engine.Recognize(context.Background(), &types.CapturedImage{Data: []byte("png")}, func(p types.Progress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if text != "7 1 0 8 0-2024\n-0001\n" {
		t.Errorf("Unexpected text %q", text)
	}

	want := []types.Progress{
		{Status: "initializing api", Ratio: 1},
		{Status: StatusRecognizing, Ratio: 0},
		{Status: StatusRecognizing, Ratio: 1},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("Expected events %v, got %v", want, events)
	}

	args, err := os.ReadFile(bin + ".args")
	if err != nil {
		t.Fatalf("fake tesseract did not record its args: %v", err)
	}
	wantArgs := "stdin stdout -l eng --tessdata-dir " + tessdata + " --psm 6"
	if got := strings.TrimSpace(string(args)); got != wantArgs {
		t.Errorf("Expected args %q, got %q", wantArgs, got)
	}
}

func TestLoadTesseract_Failures(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(t *testing.T) TesseractConfig
		wantErr string
	}{
		{
			name: "missing binary",
			cfg: func(t *testing.T) TesseractConfig {
				return TesseractConfig{CorePath: filepath.Join(t.TempDir(), "nope")}
			},
			wantErr: "tesseract binary",
		},
		{
			name: "language not installed",
			cfg: func(t *testing.T) TesseractConfig {
				return TesseractConfig{CorePath: writeFakeTesseract(t, "osd", "true")}
			},
			wantErr: "no 'eng' language data",
		},
		{
			name: "tessdata is a file",
			cfg: func(t *testing.T) TesseractConfig {
				f := filepath.Join(t.TempDir(), "eng.traineddata")
				os.WriteFile(f, []byte("x"), 0644)
				return TesseractConfig{CorePath: writeFakeTesseract(t, "eng", "true"), LangPath: f}
			},
			wantErr: "is not a directory",
		},
		{
			name: "not tesseract",
			cfg: func(t *testing.T) TesseractConfig {
				if runtime.GOOS == "windows" {
					t.Skip("uses /bin/sh")
				}
				path := filepath.Join(t.TempDir(), "impostor")
				os.WriteFile(path, []byte("#!/bin/sh\necho hello\n"), 0755)
				return TesseractConfig{CorePath: path}
			},
			wantErr: "did not identify itself as tesseract",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTesseract(tt.cfg(t), nil)(context.Background())
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRecognize_ReportsStderr(t *testing.T) {
	bin := writeFakeTesseract(t, "eng", `echo "Error in pixReadStream: Unknown format" >&2; exit 1`)
	engine, err := LoadTesseract(TesseractConfig{CorePath: bin}, nil)(context.Background())
	if err != nil {
		t.Fatalf("LoadTesseract: %v", err)
	}
	_, err = engine.Recognize(context.Background(), &types.CapturedImage{Data: []byte("png")}, nil)
	if err == nil || !strings.Contains(err.Error(), "Unknown format") {
		t.Errorf("Expected stderr in error, got %v", err)
	}
}

func TestLoadTesseract_RemoteLanguageData(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/tessdata/eng.traineddata" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte{0x00, 0x01, 0x02, 0x03})
	}))
	defer srv.Close()

	bin := writeFakeTesseract(t, "eng", "true")
	cache := t.TempDir()
	load := LoadTesseract(TesseractConfig{CorePath: bin, LangPath: srv.URL + "/tessdata/", CacheDir: cache}, nil)

	for i := 0; i < 2; i++ {
		engine, err := load(context.Background())
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if dir := engine.(*Tesseract).TessdataDir; dir != cache {
			t.Errorf("Expected tessdata dir %q, got %q", cache, dir)
		}
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("Expected language data to be downloaded once, got %d requests", got)
	}
	data, err := os.ReadFile(filepath.Join(cache, "eng.traineddata"))
	if err != nil || len(data) != 4 {
		t.Errorf("Expected cached traineddata, got %v (%d bytes)", err, len(data))
	}
}

func TestFetchLanguage_BadResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/html/eng.traineddata":
			w.Write([]byte("<html>captive portal</html>"))
		case "/empty/eng.traineddata":
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	for _, base := range []string{"/missing", "/html", "/empty"} {
		t.Run(base, func(t *testing.T) {
			dir := t.TempDir()
			err := fetchLanguage(context.Background(), srv.Client(), srv.URL+base, "eng", dir, utils.DiscardLogger())
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if _, statErr := os.Stat(filepath.Join(dir, "eng.traineddata")); statErr == nil {
				t.Error("A bad download must not leave language data behind")
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		out     string
		want    string
		wantErr bool
	}{
		{"tesseract 5.3.0\n leptonica-1.82.0\n", "5.3.0", false},
		{"tesseract v4.1.1\n", "4.1.1", false},
		{"Warning: no locale\ntesseract 3.05.02\n", "3.05.02", false},
		{"ffmpeg version 6.0\n", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseVersion(tt.out)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseVersion(%q) error = %v, wantErr %v", tt.out, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseVersion(%q) = %q, want %q", tt.out, got, tt.want)
		}
	}
}

func TestTesseractArgs(t *testing.T) {
	got := (&Tesseract{Language: "eng"}).Args()
	want := []string{"stdin", "stdout", "-l", "eng"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
