// Package channel implements MessageChannel (spec §4.2): it turns a raw
// Transport's "read/write at most N bytes with timeout" surface into
// message-granular Send/Receive, de-aggregating transport deliveries that
// coalesce more than one encoded message and re-assembling messages that
// arrive split across several deliveries.
package channel

import (
	"context"
	"sync"

	"github.com/binp-dev/ferrite-core/internal/codec"
	"github.com/binp-dev/ferrite-core/internal/errs"
	"github.com/binp-dev/ferrite-core/internal/logging"
	"github.com/binp-dev/ferrite-core/internal/proto"
	"github.com/binp-dev/ferrite-core/internal/queue"
	"github.com/binp-dev/ferrite-core/internal/transport"
)

// MetricsRecorder receives channel-level event counts. A session wires
// one in via SetMetrics; a nil metrics field (the default) simply means
// events go unrecorded. *ferritecore.Metrics satisfies this interface
// structurally, without this package importing the root package.
type MetricsRecorder interface {
	RecordSend()
	RecordReceive()
	RecordParseError()
	RecordTimeout()
}

// Channel owns a send scratch buffer and a receive ring buffer over one
// Transport (spec §4.2 "State"). FromMcu selects which message alphabet
// Receive decodes: true for the app-side channel receiving MCU→App
// traffic, false for the MCU-side channel receiving App→MCU traffic.
type Channel struct {
	transport transport.Transport
	maxLen    int
	fromMcu   bool
	logger    *logging.Logger
	metrics   MetricsRecorder

	sendMu  sync.Mutex
	sendBuf []byte

	recvMu   sync.Mutex
	ring     []byte // pooled backing store, length 8*maxLen
	data     int    // number of valid bytes at the front of ring
	poisoned bool
}

// SetMetrics wires m in to record Send/Receive/parse-error/timeout
// counts. Safe to call before Start; not safe to call concurrently with
// Send/Receive.
func (c *Channel) SetMetrics(m MetricsRecorder) { c.metrics = m }

// New creates a Channel over t, with a send scratch buffer and receive
// ring sized from maxMessageLength (spec §4.2 "State": ring is
// 8×max_message_length).
func New(t transport.Transport, maxMessageLength int, fromMcu bool, logger *logging.Logger) *Channel {
	if logger == nil {
		logger = logging.Default()
	}
	ringCap := 8 * maxMessageLength
	return &Channel{
		transport: t,
		maxLen:    maxMessageLength,
		fromMcu:   fromMcu,
		logger:    logger,
		sendBuf:   queue.GetBuffer(maxMessageLength),
		ring:      queue.GetBuffer(ringCap),
	}
}

// Close returns the channel's pooled buffers. The channel must not be used
// after Close.
func (c *Channel) Close() {
	c.sendMu.Lock()
	queue.PutBuffer(c.sendBuf)
	c.sendBuf = nil
	c.sendMu.Unlock()

	c.recvMu.Lock()
	queue.PutBuffer(c.ring)
	c.ring = nil
	c.recvMu.Unlock()
}

// Send serializes msg and issues one transport write (spec §4.2 "Send
// contract"). A message that doesn't fit the scratch buffer fails with
// CodeOutOfBounds before the transport is touched. At-most-once: a
// timeout or I/O error mid-write leaves the channel usable but the
// message is not considered delivered; Send performs no retransmission.
func (c *Channel) Send(ctx context.Context, msg proto.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	n := codec.PackedSize(msg)
	if n > c.maxLen {
		return errs.NewError("channel.Send", errs.CodeOutOfBounds, "message longer than max_message_length")
	}
	if _, err := codec.Store(msg, c.sendBuf[:n]); err != nil {
		return errs.WrapError("channel.Send", errs.CodeFatal, err)
	}
	if err := c.transport.Send(ctx, c.sendBuf[:n]); err != nil {
		return errs.WrapError("channel.Send", errs.CodeFatal, err)
	}
	if c.metrics != nil {
		c.metrics.RecordSend()
	}
	return nil
}

// Receive returns the next complete message, decoding it from the ring
// buffer if one is already fully buffered, otherwise reading from the
// transport until a complete message is available or ctx's deadline
// passes (spec §4.2 "Receive contract").
func (c *Channel) Receive(ctx context.Context) (proto.Message, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.poisoned {
		c.data = 0
	}

	for {
		if msg, n, err := codec.Load(c.ring[:c.data], c.fromMcu); err == nil {
			c.advance(n)
			c.poisoned = false
			if c.metrics != nil {
				c.metrics.RecordReceive()
			}
			return msg, nil
		} else if err != codec.ErrNeedMoreData {
			c.poisoned = true
			c.data = 0
			c.logger.Warnf("channel: parse error, draining ring: %v", err)
			if c.metrics != nil {
				c.metrics.RecordParseError()
			}
			return nil, errs.WrapError("channel.Receive", errs.CodeParseError, err)
		}

		if c.data == len(c.ring) {
			// Ring is full of an unparseable partial message; this can
			// only happen if the peer sent something longer than
			// max_message_length, which Send would have rejected on
			// the sending side. Treat as poisoned and drain.
			c.poisoned = true
			c.data = 0
			if c.metrics != nil {
				c.metrics.RecordParseError()
			}
			return nil, errs.NewError("channel.Receive", errs.CodeParseError, "ring buffer full without a complete message")
		}

		n, err := c.transport.Receive(ctx, c.ring[c.data:])
		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordTimeout()
			}
			return nil, errs.WrapError("channel.Receive", errs.CodeTimedOut, err)
		}
		c.data += n
	}
}

// advance discards the first n bytes of buffered data, sliding the
// remainder to the front of the ring (spec §4.2's ring buffer holds "a
// partial-plus-complete sequence of encoded messages").
func (c *Channel) advance(n int) {
	remaining := c.data - n
	copy(c.ring, c.ring[n:c.data])
	c.data = remaining
}
