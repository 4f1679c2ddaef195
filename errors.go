// Package ferritecore is the top-level facade: it re-exports the pieces an
// embedding application needs (errors, metrics, constants) and leaves the
// component packages (codec, channel, device, points, mcu) under internal/
// for the reasons spec §1 gives — this is a core, not a product.
package ferritecore

import "github.com/binp-dev/ferrite-core/internal/errs"

// Code and Error are aliases of the internal/errs types every component
// package constructs, so callers can match on them without reaching into
// internal/ themselves.
type (
	Code  = errs.Code
	Error = errs.Error
)

// Error categories named in spec §7.
const (
	CodeTimedOut      = errs.CodeTimedOut
	CodeUnexpectedEOF = errs.CodeUnexpectedEOF
	CodeParseError    = errs.CodeParseError
	CodeOutOfBounds   = errs.CodeOutOfBounds
	CodeInvalidData   = errs.CodeInvalidData
	CodeFatal         = errs.CodeFatal
)

// NewError constructs a structured error for the named operation.
func NewError(op string, code Code, msg string) *Error {
	return errs.NewError(op, code, msg)
}

// WrapError wraps inner with context, inheriting inner's Code if it is
// already a *Error, otherwise classifying it with fallback.
func WrapError(op string, fallback Code, inner error) *Error {
	return errs.WrapError(op, fallback, inner)
}

// IsCode reports whether err carries the given Code.
func IsCode(err error, code Code) bool {
	return errs.IsCode(err, code)
}
