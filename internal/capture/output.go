package capture

import "strings"

// OutputMode controls how a found identifier lands in the output.
type OutputMode int

const (
	AppendOutput OutputMode = iota
	ReplaceOutput
)

// OutputBuffer is the ordered list of lines shown in the output area.
// It is not safe for concurrent use; the orchestrator serializes access.
type OutputBuffer struct {
	lines []string
}

func (b *OutputBuffer) Append(line string) {
	b.lines = append(b.lines, line)
}

// Replace drops everything and keeps line as the only content.
func (b *OutputBuffer) Replace(line string) {
	b.lines = append(b.lines[:0], line)
}

func (b *OutputBuffer) Clear() {
	b.lines = b.lines[:0]
}

// Write adds line according to mode.
func (b *OutputBuffer) Write(mode OutputMode, line string) {
	if mode == ReplaceOutput {
		b.Replace(line)
		return
	}
	b.Append(line)
}

// String joins the lines with newlines.
func (b *OutputBuffer) String() string {
	return strings.Join(b.lines, "\n")
}
