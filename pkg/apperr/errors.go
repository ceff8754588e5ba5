// Package apperr defines the error kinds shared by the store, the synthesis
// client and the controllers.
package apperr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind string

const (
	KindTransport       Kind = "transport"
	KindStorageCapacity Kind = "storage_capacity"
	KindParse           Kind = "parse"
	KindValidation      Kind = "validation"
	KindSynthesis       Kind = "synthesis"
)

// Error carries a Kind, the operation that failed and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrTransport) holds
// for every transport error regardless of op or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrTransport       = &Error{Kind: KindTransport}
	ErrStorageCapacity = &Error{Kind: KindStorageCapacity}
	ErrParse           = &Error{Kind: KindParse}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrSynthesis       = &Error{Kind: KindSynthesis}
)

// Transport wraps a failure of the completion service. The cause keeps a stack trace.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransport, Op: op, Err: pkgerrors.WithStack(err)}
}

// Synthesis wraps a streaming failure. The cause is usually a transport error.
func Synthesis(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindSynthesis, Op: op, Err: err}
}

func StorageCapacity(op, msg string, err error) error {
	return &Error{Kind: KindStorageCapacity, Op: op, Msg: msg, Err: err}
}

func Parse(op, msg string, err error) error {
	return &Error{Kind: KindParse, Op: op, Msg: msg, Err: err}
}

func Validation(op string, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Stack returns the stack trace recorded for err by Transport, formatted one
// frame per line, or "" when err carries none.
func Stack(err error) string {
	var st interface{ StackTrace() pkgerrors.StackTrace }
	if !errors.As(err, &st) {
		return ""
	}
	return fmt.Sprintf("%+v", st.StackTrace())
}
