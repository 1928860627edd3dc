package capture

import "fmt"

// NotFoundAction is what happens to the output when no identifier is found.
type NotFoundAction int

const (
	KeepOnNotFound NotFoundAction = iota
	// RawOnNotFound writes the trimmed recognized text so the user can read it.
	RawOnNotFound
)

// FailureAction is what happens to the output when the pipeline fails.
type FailureAction int

const (
	KeepOnFailure FailureAction = iota
	ClearOnFailure
)

// Policy groups the output behaviours that differ between deployments.
type Policy struct {
	Output       OutputMode
	NotFound     NotFoundAction
	OnFailure    FailureAction
	ClearOnStart bool
}

// DefaultPolicy appends found identifiers and never discards output.
func DefaultPolicy() Policy {
	return Policy{Output: AppendOutput, NotFound: KeepOnNotFound, OnFailure: KeepOnFailure}
}

func ParseOutputMode(s string) (OutputMode, error) {
	switch s {
	case "append", "":
		return AppendOutput, nil
	case "replace":
		return ReplaceOutput, nil
	default:
		return 0, fmt.Errorf("invalid output mode '%s'. Must be 'append' or 'replace'", s)
	}
}

func ParseNotFoundAction(s string) (NotFoundAction, error) {
	switch s {
	case "keep", "":
		return KeepOnNotFound, nil
	case "raw":
		return RawOnNotFound, nil
	default:
		return 0, fmt.Errorf("invalid not-found action '%s'. Must be 'keep' or 'raw'", s)
	}
}

func ParseFailureAction(s string) (FailureAction, error) {
	switch s {
	case "keep", "":
		return KeepOnFailure, nil
	case "clear":
		return ClearOnFailure, nil
	default:
		return 0, fmt.Errorf("invalid failure action '%s'. Must be 'keep' or 'clear'", s)
	}
}
