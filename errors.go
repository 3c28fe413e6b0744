package tftp

import (
	"errors"
	"fmt"
)

// Status is the protocol-level outcome of a transfer, delivered through the
// Status channel of the error taxonomy (spec §7/§9). The zero value {0, ""}
// means success.
type Status struct {
	Code    uint16
	Message string
}

// Success reports whether this Status represents a completed transfer.
func (s Status) Success() bool { return s.Code == 0 && s.Message == "" }

func (s Status) String() string {
	if s.Success() {
		return "success"
	}
	return fmt.Sprintf("%d: %s", s.Code, s.Message)
}

// Sentinel errors surfaced outside the Status channel, for callers using
// errors.Is.
var (
	// ErrInvalidMode is returned by Get when MAIL mode is requested: the
	// source accepts MAIL on uploads but rejects it on downloads, an
	// asymmetry preserved per SPEC_FULL.md §11 note 3.
	ErrInvalidMode = errors.New("tftp: mail mode is not valid for downloads")

	// ErrOutOfMemory and ErrStateNotRecoverable classify a panic recovered
	// from within a transfer handler (spec §4.5.4).
	ErrOutOfMemory         = errors.New("tftp: out of memory")
	ErrStateNotRecoverable = errors.New("tftp: state not recoverable")
)
