package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binp-dev/ferrite-core/internal/proto"
	"github.com/binp-dev/ferrite-core/internal/transport"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	mb := transport.NewMailbox(64, 64*8)
	sender := New(mb, 64, false, nil)
	receiver := New(mb, 64, false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, sender.Send(ctx, proto.DacSet{Value: 42}))
	msg, err := receiver.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, proto.DacSet{Value: 42}, msg)
}

func TestDeaggregatesCoalescedMessages(t *testing.T) {
	mb := transport.NewMailbox(64, 64*8)
	sender := New(mb, 64, true, nil)
	receiver := New(mb, 64, true, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Both messages land before any Receive call is made, forcing the
	// transport to coalesce them into one or more deliveries that the
	// channel must de-aggregate (spec §4.2, §8 property 2).
	require.NoError(t, sender.Send(ctx, proto.DinVal{Bits: 0x0A}))
	require.NoError(t, sender.Send(ctx, proto.DacWfReq{}))

	first, err := receiver.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, proto.DinVal{Bits: 0x0A}, first)

	second, err := receiver.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, proto.DacWfReq{}, second)
}

func TestSendOversizeMessageRejected(t *testing.T) {
	mb := transport.NewMailbox(16, 128)
	sender := New(mb, 16, false, nil)

	ctx := context.Background()
	err := sender.Send(ctx, proto.DacWf{Elements: make([]int32, 100)})
	require.Error(t, err)
}

func TestReceiveTimeoutIsRoutine(t *testing.T) {
	mb := transport.NewMailbox(64, 512)
	receiver := New(mb, 64, false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := receiver.Receive(ctx)
	require.Error(t, err)
}

func TestParseErrorPoisonsThenResyncs(t *testing.T) {
	mb := transport.NewMailbox(64, 512)
	receiver := New(mb, 64, true, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// An unknown tag is a parse error; channel must drain and then accept
	// the next well-formed message (spec §4.2 "re-synchronization policy").
	require.NoError(t, mb.Send(ctx, []byte{0xFF}))
	_, err := receiver.Receive(ctx)
	require.Error(t, err)

	sender := New(mb, 64, true, nil)
	require.NoError(t, sender.Send(ctx, proto.DacWfReq{}))
	msg, err := receiver.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, proto.DacWfReq{}, msg)
}
