// Package errs defines the stable error taxonomy for tabdiff.
// Every user-visible failure carries a Kind so that JSON output modes
// and exit handling can classify errors without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind string

const (
	WorkspaceMissing             Kind = "WorkspaceMissing"
	WorkspaceCorrupt             Kind = "WorkspaceCorrupt"
	NameExists                   Kind = "NameExists"
	NameNotFound                 Kind = "NameNotFound"
	SourceNotFound               Kind = "SourceNotFound"
	SourceUnreadable             Kind = "SourceUnreadable"
	SchemaEmpty                  Kind = "SchemaEmpty"
	UnsupportedSourceForRollback Kind = "UnsupportedSourceForRollback"
	ChainBroken                  Kind = "ChainBroken"
	BaselineMissingFullData      Kind = "BaselineMissingFullData"
	ArchiveCorrupt               Kind = "ArchiveCorrupt"
	RollbackVerificationFailed   Kind = "RollbackVerificationFailed"
	Cancelled                    Kind = "Cancelled"
	IOError                      Kind = "IOError"
)

// Error is a classified tabdiff error. Context carries structured
// detail (path, snapshot name) for JSON output.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches errors by Kind, so errors.Is(err, errs.New(errs.ChainBroken, ""))
// and the more common errs.IsKind work through wrap chains.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// New creates a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// With attaches a context key/value pair and returns the error.
func (e *Error) With(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// KindOf extracts the Kind from an error chain, or "" when the error
// carries no classification.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) carries kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
