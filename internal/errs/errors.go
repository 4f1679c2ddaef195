// Package errs defines the structured error type shared by every
// component boundary named in spec §7 (codec, channel, device, points,
// mcu). It lives under internal/ so the root package can re-export a
// stable public alias (see /errors.go) without creating an import cycle
// between the facade and its component packages.
package errs

import (
	"errors"
	"fmt"
)

// Code is the high-level error category, matching the kinds spec §7
// enumerates at each component boundary.
type Code string

const (
	// CodeTimedOut is routine: a deadline expired and the caller may retry.
	CodeTimedOut Code = "timed out"
	// CodeUnexpectedEOF means a partial message; wait for more bytes or give up.
	CodeUnexpectedEOF Code = "unexpected eof"
	// CodeParseError means a malformed message; the channel is poisoned.
	CodeParseError Code = "parse error"
	// CodeOutOfBounds means the caller tried to send a message longer than
	// the channel's maximum.
	CodeOutOfBounds Code = "out of bounds"
	// CodeInvalidData means a CRC mismatch on the SPI frame (MCU only) or
	// a value outside its wire-representable range.
	CodeInvalidData Code = "invalid data"
	// CodeFatal means an unrecoverable I/O failure on the transport.
	CodeFatal Code = "fatal"
)

// Error is the structured error type returned at every component boundary.
type Error struct {
	Op    string // component operation that failed, e.g. "channel.Receive"
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("ferritecore: %s: %s (%s)", e.Op, e.Msg, e.Code)
	}
	return fmt.Sprintf("ferritecore: %s (%s)", e.Msg, e.Code)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is allows errors.Is(err, someCode)-style checks against a bare Code, in
// addition to comparing two *Error values by Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if code, ok := target.(Code); ok {
		return e.Code == code
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// Error lets a bare Code itself satisfy the error interface, so sentinel
// comparisons (errors.Is(err, errs.CodeTimedOut)) work without
// constructing an *Error.
func (c Code) Error() string { return string(c) }

// NewError constructs a structured error for the named operation.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps inner with context, inheriting inner's Code if it is
// already a *Error, otherwise classifying it with the given fallback code.
func WrapError(op string, fallback Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	if fe, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: fe.Code, Msg: fe.Msg, Inner: fe}
	}
	return &Error{Op: op, Code: fallback, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err carries the given Code.
func IsCode(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return errors.Is(err, code)
}
