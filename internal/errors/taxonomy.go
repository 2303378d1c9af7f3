// internal/errors/taxonomy.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure for retry and exit-code decisions
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: page loaded but the target field is absent
	KindNotFound
	// KindTransient: navigation timeout, detached frame, script failure
	KindTransient
	// KindBlocked: rate limit or challenge page
	KindBlocked
	// KindRowResolution: the item's URL vanished from the store before write
	KindRowResolution
	KindConfig
	KindStore
	// KindHandOff: session stopped on purpose and handed off to a successor
	KindHandOff
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindBlocked:
		return "blocked"
	case KindRowResolution:
		return "row_resolution"
	case KindConfig:
		return "config"
	case KindStore:
		return "store"
	case KindHandOff:
		return "hand_off"
	}
	return "unknown"
}

// Error is a classified error
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so sentinels compare across wrapping
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// New creates a classified error
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err stays nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the outermost classification found in the chain
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Sentinels
var (
	ErrBlocked           = &Error{Kind: KindHandOff, Msg: "blocked by target"}
	ErrSessionBudget     = &Error{Kind: KindHandOff, Msg: "session time budget exhausted"}
	ErrNavigationTimeout = &Error{Kind: KindTransient, Msg: "navigation timeout"}
)

// Is and As re-export the standard helpers so callers need one import
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }
