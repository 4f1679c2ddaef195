package mcu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/binp-dev/ferrite-core/internal/channel"
	"github.com/binp-dev/ferrite-core/internal/proto"
	"github.com/binp-dev/ferrite-core/internal/transport"
)

// loopDuplex wires two Mailboxes into one full-duplex transport.Transport
// so the app-side and MCU-side channel.Channel instances can exchange
// messages without a real shared-memory transport.
type loopDuplex struct {
	out *transport.Mailbox
	in  *transport.Mailbox
}

func (d loopDuplex) Send(ctx context.Context, p []byte) error           { return d.out.Send(ctx, p) }
func (d loopDuplex) Receive(ctx context.Context, p []byte) (int, error) { return d.in.Receive(ctx, p) }
func (d loopDuplex) MaxBufferSize() int                                 { return d.out.MaxBufferSize() }

func newTransferHarness(t *testing.T) (*TransferLoop, *channel.Channel, *State, *Stats) {
	const maxMsg = 64
	appToMcu := transport.NewMailbox(maxMsg, 8*maxMsg)
	mcuToApp := transport.NewMailbox(maxMsg, 8*maxMsg)

	appCh := channel.New(loopDuplex{out: appToMcu, in: mcuToApp}, maxMsg, true, nil)
	mcuCh := channel.New(loopDuplex{out: mcuToApp, in: appToMcu}, maxMsg, false, nil)

	state := &State{}
	stats := NewStats()
	cfg := DefaultConfig()
	cfg.RecvTickTimeout = 10 * time.Millisecond
	cfg.DacWfLowWaterMark = 2

	loop := NewTransferLoop(mcuCh, state, stats, cfg, nil)
	return loop, appCh, state, stats
}

func recvWithin(t *testing.T, ch *channel.Channel, within time.Duration) proto.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	msg, err := ch.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func TestTransferLoopRepliesDebugOnStart(t *testing.T) {
	loop, appCh, _, _ := newTransferHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	defer loop.Stop()

	require.NoError(t, appCh.Send(context.Background(), proto.Start{}))
	msg := recvWithin(t, appCh, time.Second)
	require.Equal(t, proto.Debug{Message: "hello world!"}, msg)
}

func TestTransferLoopAppliesDacAndDoutSet(t *testing.T) {
	loop, appCh, state, _ := newTransferHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	defer loop.Stop()

	require.NoError(t, appCh.Send(context.Background(), proto.DacSet{Value: 123}))
	require.NoError(t, appCh.Send(context.Background(), proto.DoutSet{Bits: 0x0A}))

	require.Eventually(t, func() bool { return state.Dac() == 123 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return state.Dout() == 0x0A }, time.Second, time.Millisecond)
}

func TestTransferLoopAnswersAdcReqWithLastRecorded(t *testing.T) {
	loop, appCh, _, stats := newTransferHarness(t)
	stats.Observe(0, 100)
	stats.Observe(1, -100)
	stats.Observe(3, 12345)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	defer loop.Stop()

	require.NoError(t, appCh.Send(context.Background(), proto.AdcReq{}))
	msg := recvWithin(t, appCh, time.Second)
	adc, ok := msg.(proto.AdcVal)
	require.True(t, ok)
	require.Equal(t, int32(100), adc.Values[0])
	require.Equal(t, int32(-100), adc.Values[1])
	require.Equal(t, int32(12345), adc.Values[3])
}

func TestTransferLoopRequestsMoreDacWfBelowLowWaterMark(t *testing.T) {
	loop, appCh, _, _ := newTransferHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	defer loop.Stop()

	// Draining an empty ring immediately falls below the 2-element
	// low-water mark, so TransferLoop should emit exactly one DacWfReq.
	v, ok := loop.NextDacValue()
	require.False(t, ok)
	require.Equal(t, int32(0), v)

	msg := recvWithin(t, appCh, time.Second)
	require.Equal(t, proto.DacWfReq{}, msg)

	require.NoError(t, appCh.Send(context.Background(), proto.DacWf{Elements: []int32{1, 2, 3}}))

	require.Eventually(t, func() bool {
		v, ok := loop.NextDacValue()
		return ok && v == 1
	}, time.Second, time.Millisecond)
}

func TestTransferLoopStopIsIdempotent(t *testing.T) {
	loop, _, _, _ := newTransferHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	loop.Stop()
	loop.Stop()
}
