package types

import (
	"errors"
	"time"
)

// CapturedImage is an encoded still taken from the camera (or read from disk).
// It is never mutated after creation.
type CapturedImage struct {
	ID       string
	Data     []byte
	MIMEType string
	Width    int // true pixel width, not the display size
	Height   int
	TakenAt  time.Time
}

// Progress is a single event emitted by the recognition engine while it works.
type Progress struct {
	Status string  `json:"status"`
	Ratio  float64 `json:"progress"` // 0..1
}

// Severity tags a status message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Status is the user-visible status line. Each new Status replaces the last.
type Status struct {
	Severity Severity
	Message  string
	// Progress is the rounded recognition percentage, or -1 when the status
	// is not a progress tick.
	Progress int
}

func Info(msg string) Status    { return Status{Severity: SeverityInfo, Message: msg, Progress: -1} }
func Warning(msg string) Status { return Status{Severity: SeverityWarning, Message: msg, Progress: -1} }
func Failure(msg string) Status { return Status{Severity: SeverityError, Message: msg, Progress: -1} }

// UserError carries a message that is safe to show to the user, plus the
// underlying cause for the developer log.
type UserError struct {
	Kind    string
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UserError) Unwrap() error { return e.Err }

// Is matches any UserError of the same kind, so sentinels compare by kind
// regardless of the attached cause.
func (e *UserError) Is(target error) bool {
	t, ok := target.(*UserError)
	return ok && t.Kind == e.Kind
}

// With returns a copy of e wrapping cause.
func (e *UserError) With(cause error) *UserError {
	return &UserError{Kind: e.Kind, Message: e.Message, Err: cause}
}

// UserMessage returns the user-facing message carried by err, or fallback when
// err has none.
func UserMessage(err error, fallback string) string {
	var ue *UserError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	return fallback
}
