// Package transport defines the narrow contract the core depends on from
// the underlying shared-memory mailbox (spec §1, §6.2) and ships one
// in-process implementation standing in for it.
package transport

import (
	"context"

	"github.com/binp-dev/ferrite-core/internal/errs"
)

// Transport is the three-call surface MessageChannel depends on: send at
// most N bytes, receive at most N bytes, and report the maximum buffer
// size. Both calls accept a context.Context in place of the spec's
// "forever" timeout sentinel — ctx == context.Background() blocks
// indefinitely, a context with a deadline bounds the call, per spec §6.2.
type Transport interface {
	// Send transports exactly len(p) bytes as one opaque buffer, or fails.
	Send(ctx context.Context, p []byte) error
	// Receive reads into p, returning the number of bytes actually
	// delivered; it may return fewer bytes than len(p) (spec §6.2).
	Receive(ctx context.Context, p []byte) (int, error)
	// MaxBufferSize is the largest single buffer this transport accepts.
	MaxBufferSize() int
}

// errTimedOut classifies ctx.Err() as the routine, silent CodeTimedOut
// spec §7 describes ("it's how the recv loop polls for shutdown").
func errTimedOut(op string) error {
	return errs.NewError(op, errs.CodeTimedOut, "deadline exceeded")
}
