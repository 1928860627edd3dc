// Package console renders capture status, progress and output on a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andresmejia3/assetcam/internal/types"
	"github.com/schollz/progressbar/v3"
)

// Console writes status lines and the recognition progress bar to one writer
// (stderr) and output lines to another (stdout), so output stays pipeable.
type Console struct {
	mu      sync.Mutex
	status  io.Writer
	out     io.Writer
	bar     *progressbar.ProgressBar
	enabled bool
	printed string
}

func New(status, out io.Writer) *Console {
	return &Console{status: status, out: out}
}

// SetStatus replaces the status line. Progress ticks drive the bar instead of
// printing a line each.
func (c *Console) SetStatus(st types.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st.Progress >= 0 {
		if c.bar == nil {
			c.bar = progressbar.NewOptions(100,
				progressbar.OptionSetDescription("🔎 Recognizing"),
				progressbar.OptionSetWriter(c.status),
				progressbar.OptionSetPredictTime(false),
				progressbar.OptionClearOnFinish(),
			)
		}
		c.bar.Set(st.Progress)
		return
	}

	c.closeBar()
	fmt.Fprintf(c.status, "%-7s %s\n", tag(st.Severity), st.Message)
}

func (c *Console) closeBar() {
	if c.bar == nil {
		return
	}
	c.bar.Finish()
	c.bar = nil
}

func tag(s types.Severity) string {
	switch s {
	case types.SeverityWarning:
		return "WARN"
	case types.SeverityError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (c *Console) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// SetOutput prints whatever text adds to what was already printed. A
// replacement or a clear starts over; a clear prints nothing.
func (c *Console) SetOutput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var added string
	switch {
	case text == c.printed:
	case c.printed != "" && strings.HasPrefix(text, c.printed+"\n"):
		added = text[len(c.printed)+1:]
	default:
		added = text
	}
	c.printed = text
	if added != "" {
		fmt.Fprintln(c.out, added)
	}
}

// Enabled reports whether the capture trigger is currently active.
func (c *Console) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}
