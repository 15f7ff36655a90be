package reactor

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// ErrorKind classifies what went wrong, independent of which backend or
// socket op produced it.
type ErrorKind = interfaces.ErrorKind

const (
	KindRange             = interfaces.KindRange
	KindAlreadyRegistered = interfaces.KindAlreadyRegistered
	KindNotRegistered     = interfaces.KindNotRegistered
	KindWouldBlock        = interfaces.KindWouldBlock
	KindClosed            = interfaces.KindClosed
	KindIOUnknown         = interfaces.KindIOUnknown
	KindMockMismatch      = interfaces.KindMockMismatch
	KindInvalidAddress    = interfaces.KindInvalidAddress
)

// Error represents a structured reactor error with context and errno mapping.
type Error struct {
	Op    string        // Operation that failed (e.g. "Connect", "Read")
	Kind  ErrorKind      // High-level error category
	Errno syscall.Errno // Kernel errno (0 if not applicable)
	Msg   string        // Human-readable message
	Inner error         // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("reactor: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("reactor: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support for comparing by Kind.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

// kindCarrier is implemented by internal/backend's kindError so its errors
// fold into a structured *Error without that package importing this one.
type kindCarrier interface {
	error
	Kind() ErrorKind
}

// NewError creates a new structured error.
func NewError(op string, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// NewErrorWithErrno creates a new structured error from a raw errno.
func NewErrorWithErrno(op string, errno syscall.Errno) *Error {
	return &Error{Op: op, Kind: mapErrnoToKind(errno), Errno: errno, Msg: errno.Error()}
}

// WrapError wraps an existing error with reactor context, recognizing
// *Error, internal/backend's kindError (via kindCarrier), and raw errnos.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if re, ok := inner.(*Error); ok {
		return &Error{Op: op, Kind: re.Kind, Errno: re.Errno, Msg: re.Msg, Inner: re.Inner}
	}

	if kc, ok := inner.(kindCarrier); ok {
		return &Error{Op: op, Kind: kc.Kind(), Msg: kc.Error(), Inner: inner}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Kind: mapErrnoToKind(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}

	return &Error{Op: op, Kind: KindIOUnknown, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToKind maps syscall errno to the reactor's error taxonomy.
func mapErrnoToKind(errno syscall.Errno) ErrorKind {
	switch errno {
	case syscall.EAGAIN, syscall.EWOULDBLOCK:
		return KindWouldBlock
	case syscall.EPIPE, syscall.ECONNRESET:
		return KindClosed
	case syscall.EINVAL, syscall.EADDRNOTAVAIL:
		return KindInvalidAddress
	default:
		return KindIOUnknown
	}
}

// wrapOrNil is WrapError, except a nil input yields a true nil error
// interface rather than a non-nil interface wrapping a nil *Error.
func wrapOrNil(op string, err error) error {
	if err == nil {
		return nil
	}
	return WrapError(op, err)
}

// IsKind checks if an error matches a specific error kind, unwrapping
// through both *Error and internal/backend's kindError.
func IsKind(err error, kind ErrorKind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	var kc kindCarrier
	if errors.As(err, &kc) {
		return kc.Kind() == kind
	}
	return false
}
