package mcu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSamplingLoopPublishesSample(t *testing.T) {
	hal := NewSimHAL()
	state := &State{}
	stats := NewStats()
	cfg := DefaultConfig()
	cfg.SampleSettleDelay = 0

	loop := NewSamplingLoop(hal, state, stats, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	hal.SetAdcValues([NAdc]int32{100, -100, 0, 12345, -12345, 1})
	hal.Trigger()

	require.Eventually(t, func() bool {
		return stats.Last(3) == 12345
	}, time.Second, time.Millisecond)

	require.Equal(t, int32(100), stats.Last(0))
	require.Equal(t, int32(1), stats.Last(5))
	require.EqualValues(t, 0, stats.CRCFailures())
	require.EqualValues(t, 1, hal.Pulses())
}

func TestSamplingLoopBuildsOutFrameFromDacSetpoint(t *testing.T) {
	hal := NewSimHAL()
	state := &State{}
	state.SetDac(4096)
	stats := NewStats()
	cfg := DefaultConfig()
	cfg.SampleSettleDelay = 0

	loop := NewSamplingLoop(hal, state, stats, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	hal.Trigger()
	require.Eventually(t, func() bool {
		return len(hal.LastOut()) == 26
	}, time.Second, time.Millisecond)

	out := hal.LastOut()
	require.Equal(t, byte(0x55), out[0])
	require.Equal(t, byte(0xAA), out[1])
	require.Equal(t, []byte{0x00, 0x10}, out[2:4]) // 4096, little-endian
	crc := CRC16(out[:4])
	require.Equal(t, crc, uint16(out[4])|uint16(out[5])<<8)
}

// TestSamplingLoopAppliesCorruptedSamplePermissively verifies a CRC-mismatched sample still updates
// last/min/max but is counted as a failure (DESIGN.md #2).
func TestSamplingLoopAppliesCorruptedSamplePermissively(t *testing.T) {
	hal := NewSimHAL()
	state := &State{}
	stats := NewStats()
	cfg := DefaultConfig()
	cfg.SampleSettleDelay = 0

	loop := NewSamplingLoop(hal, state, stats, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	hal.SetAdcValues([NAdc]int32{7, 0, 0, 0, 0, 0})
	hal.CorruptNextFrame()
	hal.Trigger()

	require.Eventually(t, func() bool {
		return stats.CRCFailures() == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, int32(7), stats.Last(0))

	avg, ok := state.Average(0)
	require.False(t, ok)
	require.Equal(t, int32(0), avg)
}

// stubWfSource lets the test assert SamplingLoop consults a wired
// dacWfSource after each sample without needing a full TransferLoop.
type stubWfSource struct{ values chan int32 }

func (s *stubWfSource) NextDacValue() (int32, bool) {
	select {
	case v := <-s.values:
		return v, true
	default:
		return 0, false
	}
}

func TestSamplingLoopStepsDacWaveformAfterEachSample(t *testing.T) {
	hal := NewSimHAL()
	state := &State{}
	stats := NewStats()
	cfg := DefaultConfig()
	cfg.SampleSettleDelay = 0

	loop := NewSamplingLoop(hal, state, stats, cfg, nil)
	src := &stubWfSource{values: make(chan int32, 1)}
	src.values <- 999
	loop.SetDacWfSource(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	hal.Trigger()
	require.Eventually(t, func() bool {
		return state.Dac() == 999
	}, time.Second, time.Millisecond)
}
