package lifecycle

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy of spec.md §7, stringly rendered for the UI.
type Kind string

const (
	KindAlreadyExists      Kind = "AlreadyExists"
	KindNotFound           Kind = "NotFound"
	KindNotRunning         Kind = "NotRunning"
	KindInvalidConfig      Kind = "InvalidConfig"
	KindRuntimeUnavailable Kind = "RuntimeUnavailable"
	KindSpawnFailed        Kind = "SpawnFailed"
	KindWriteFailed        Kind = "WriteFailed"
)

// Error is the error type every Controller operation returns. Op and Name
// identify which command and process were involved; Err, when present, is
// the wrapped underlying cause (an OS error, a resolver error, ...).
type Error struct {
	Kind Kind
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %q: %v", e.Kind, e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %s %q", e.Kind, e.Op, e.Name)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, lifecycle.ErrNotFound) work against the sentinel
// values below, by comparing on Kind rather than identity.
func (e *Error) Is(target error) bool {
	k, ok := target.(*kindSentinel)
	return ok && e.Kind == k.kind
}

// kindSentinel is a comparable placeholder that *Error.Is matches by Kind,
// so callers can write errors.Is(err, lifecycle.ErrNotFound) without a type
// switch on *Error.
type kindSentinel struct{ kind Kind }

func (k *kindSentinel) Error() string { return string(k.kind) }

var (
	ErrAlreadyExists      error = &kindSentinel{KindAlreadyExists}
	ErrNotFound           error = &kindSentinel{KindNotFound}
	ErrNotRunning         error = &kindSentinel{KindNotRunning}
	ErrInvalidConfig      error = &kindSentinel{KindInvalidConfig}
	ErrRuntimeUnavailable error = &kindSentinel{KindRuntimeUnavailable}
	ErrSpawnFailed        error = &kindSentinel{KindSpawnFailed}
	ErrWriteFailed        error = &kindSentinel{KindWriteFailed}
)

func newErr(kind Kind, op, name string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Name: name, Err: cause}
}

// asKind reports the Kind of err if it is (or wraps) a *Error.
func asKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
