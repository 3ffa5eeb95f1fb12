// Package verr defines the error kinds shared by the version store.
//
// Every error returned by the store carries one kind so callers can branch
// with errors.Is and the CLI can pick an exit status. The underlying cause,
// when there is one, stays reachable through errors.Is / errors.As as well.
package verr

import (
	"strings"

	"github.com/pkg/errors"
)

// Error kinds.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStorage       = errors.New("storage error")
	ErrCorruption    = errors.New("corruption")
	ErrValidation    = errors.New("validation error")
)

var kinds = []error{
	ErrInvalidInput,
	ErrNotFound,
	ErrAlreadyExists,
	ErrStorage,
	ErrCorruption,
	ErrValidation,
}

// Error is a kinded error with the operation and path that produced it.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

// E builds an *Error. cause may be nil.
func E(kind error, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(kind error, op, path, format string, args ...interface{}) *Error {
	return E(kind, op, path, errors.Errorf(format, args...))
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(e.Path)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind sentinel carried by err, or nil. The outermost
// *Error wins when kinds are nested.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Exit statuses, one per kind. AlreadyExists is a successful no-op.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
	ExitNotFound     = 3
	ExitStorage      = 4
	ExitCorruption   = 5
	ExitValidation   = 6
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case ErrAlreadyExists:
		return ExitOK
	case ErrInvalidInput:
		return ExitInvalidInput
	case ErrNotFound:
		return ExitNotFound
	case ErrStorage:
		return ExitStorage
	case ErrCorruption:
		return ExitCorruption
	case ErrValidation:
		return ExitValidation
	default:
		return ExitFailure
	}
}
