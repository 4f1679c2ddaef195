package mcu

import (
	"context"
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/binp-dev/ferrite-core/internal/constants"
	"github.com/binp-dev/ferrite-core/internal/logging"
)

// Config holds the MCU side's tunable knobs (spec §4.4, §9 open question).
type Config struct {
	// MaxMessageSize bounds AdcWf chunking on the way out (spec §4.1 edge
	// case), mirroring internal/device.Config.MaxMessageSize.
	MaxMessageSize int
	// SampleSettleDelay is the busy-wait before each SPI transfer.
	SampleSettleDelay time.Duration
	// ReadyPulseWidth is how long the read-ready line is held high.
	ReadyPulseWidth time.Duration
	// DacWfLowWaterMark is the ring-buffer fill level, in elements, below
	// which TransferLoop emits a DacWfReq (spec §4.4 "DAC waveform request
	// cadence"). DESIGN.md #3: defaults to half the ring capacity.
	DacWfLowWaterMark int
	// DacWfRingCapacity is the nominal size of the MCU-local outgoing DAC
	// waveform ring; DefaultConfig derives DacWfLowWaterMark from it.
	// TransferLoop does not cap the ring at this size.
	DacWfRingCapacity int
	// AdcWfWindowSamples is the number of raw SPI samples averaged per
	// channel before one AdcWf element is emitted (spec §4.5/§6.4 "aaiN").
	AdcWfWindowSamples int
	// RecvTickTimeout bounds how long TransferLoop's recv goroutine
	// blocks before re-checking for shutdown (mirrors internal/device's
	// Config.RecvTickTimeout, spec §4.3/§4.4, §5 "Suspension points").
	RecvTickTimeout time.Duration
}

// DefaultConfig returns the spec's stated timing defaults plus a ring
// capacity and low-water mark sized per DESIGN.md #3.
func DefaultConfig() Config {
	capacity := 256
	return Config{
		MaxMessageSize:     constants.DefaultMaxMessageSize,
		SampleSettleDelay:  constants.SampleSettleDelay,
		ReadyPulseWidth:    constants.ReadyPulseWidth,
		DacWfRingCapacity:  capacity,
		DacWfLowWaterMark:  capacity / 2,
		AdcWfWindowSamples: constants.DefaultAdcWfWindowSamples,
		RecvTickTimeout:    constants.RecvTickTimeout,
	}
}

// MetricsRecorder receives sampling-level event counts. *ferritecore.Metrics
// satisfies this interface structurally, without this package importing
// the root package.
type MetricsRecorder interface {
	RecordAdcSample()
	RecordCRCFailure()
}

// adcWfSink receives one averaged ADC sample per channel per window (spec
// §4.4 step 5, §4.5/§6.4 "aaiN"). *TransferLoop implements it; nil means
// no AdcWf production path is wired in and accumulated windows are
// silently dropped on reset.
type adcWfSink interface {
	PushAdcWfSample(i int, v int32)
}

// dacWfSource advances the MCU-local outgoing DAC waveform ring by one
// element (spec §4.4 "DAC waveform request cadence"). *TransferLoop
// implements it; nil means no waveform is wired in and the sampling loop
// always plays out State.Dac() as-is.
type dacWfSource interface {
	NextDacValue() (int32, bool)
}

// SamplingLoop is the MCU's sole SPI initiator (spec §4.4 "Concurrency").
// It is not goroutine-safe to call Run from more than one goroutine, and
// nothing else may call HAL.Transfer while Run is active.
type SamplingLoop struct {
	hal     HAL
	state   *State
	stats   *Stats
	cfg     Config
	logger  *logging.Logger
	dacWf   dacWfSource
	adcWf   adcWfSink
	metrics MetricsRecorder
}

// NewSamplingLoop constructs a SamplingLoop over hal, publishing readings
// into state and stats.
func NewSamplingLoop(hal HAL, state *State, stats *Stats, cfg Config, logger *logging.Logger) *SamplingLoop {
	if logger == nil {
		logger = logging.Default()
	}
	return &SamplingLoop{hal: hal, state: state, stats: stats, cfg: cfg, logger: logger}
}

// SetDacWfSource wires in the DAC waveform ring (typically the same
// *TransferLoop instance the RPMSG task owns). Spec §4.4 "Concurrency"
// names the RPMSG task the sole mutator of dac_setpoint; this is the one
// deliberate exception (DESIGN.md "DAC waveform stepping"), justified by
// avoiding a synchronous cross-goroutine handoff on the sampling hot
// path, which would defeat the pre-fetch the ring exists to provide.
func (l *SamplingLoop) SetDacWfSource(src dacWfSource) { l.dacWf = src }

// SetAdcWfSink wires in the AdcWf production path (typically the same
// *TransferLoop instance the RPMSG task owns). Each time cfg.AdcWfWindowSamples
// raw samples have accumulated for a channel, Run pushes that channel's
// average into sink and resets the accumulator.
func (l *SamplingLoop) SetAdcWfSink(sink adcWfSink) { l.adcWf = sink }

// SetMetrics wires m in to record per-sample and CRC-failure counts. Safe
// to call before Run.
func (l *SamplingLoop) SetMetrics(m MetricsRecorder) { l.metrics = m }

// Run executes spec §4.4 steps 1-6 once per sample-ready edge, until ctx
// is done. Each iteration:
//
//  1. waits for the sample-ready edge (with a 1s watchdog via ctx),
//  2. busy-settles for cfg.SampleSettleDelay,
//  3. builds and exchanges the 26-byte SPI frame,
//  4. verifies the reply's CRC16 over its ADC-data prefix, permissively
//     (DESIGN.md #2: a mismatch is counted and logged but the sample is
//     still applied to last/min/max; only the running accumulator, used
//     for AdcWf aggregation upstream of the RPMSG task, is skipped),
//  5. publishes each channel's reading,
//  6. pulses the read-ready line.
func (l *SamplingLoop) Run(ctx context.Context) error {
	out := make([]byte, constants.SPIFrameSize)
	in := make([]byte, constants.SPIFrameSize)

	for {
		watchCtx, cancel := context.WithTimeout(ctx, constants.SampleWatchdog)
		err := l.hal.WaitSampleReady(watchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warnf("mcu: sample-ready watchdog expired: %v", err)
			continue
		}
		l.stats.IncInterrupt()

		busyWait(l.cfg.SampleSettleDelay)

		l.buildOutFrame(out)
		if err := l.hal.Transfer(out, in); err != nil {
			l.logger.Errorf("mcu: SPI transfer failed: %v", err)
			continue
		}

		l.applySample(in)
		l.hal.PulseReady()

		if l.dacWf != nil {
			if v, ok := l.dacWf.NextDacValue(); ok {
				l.state.SetDac(v)
			}
		}
	}
}

// buildOutFrame writes the sync bytes, the current DAC setpoint truncated
// to the 16-bit analog-board word, and the CRC16 of those four bytes into
// out, zero-padding the remainder (spec §4.4 step 3, §6.3).
func (l *SamplingLoop) buildOutFrame(out []byte) {
	for i := range out {
		out[i] = 0
	}
	out[0] = constants.SPISyncLo
	out[1] = constants.SPISyncHi
	binary.LittleEndian.PutUint16(out[2:4], uint16(int16(l.state.Dac())))
	crc := CRC16(out[:4])
	binary.LittleEndian.PutUint16(out[4:6], crc)
}

// applySample verifies in's CRC and publishes its ADC values (spec §4.4
// steps 4-5). in's layout is NAdc little-endian int32 samples followed by
// their CRC16 (§6.3). Once cfg.AdcWfWindowSamples good samples have
// accumulated, each channel's running average is pushed to the wired
// adcWfSink and the accumulator resets (spec §4.5/§6.4 "aaiN").
func (l *SamplingLoop) applySample(in []byte) {
	adcBytes := 4 * NAdc
	want := CRC16(in[:adcBytes])
	got := binary.LittleEndian.Uint16(in[adcBytes : adcBytes+2])
	ok := want == got
	if !ok {
		l.stats.IncCRCFailure()
		l.logger.Warnf("mcu: CRC mismatch on sample frame (want %04x, got %04x)", want, got)
		if l.metrics != nil {
			l.metrics.RecordCRCFailure()
		}
	}

	for i := 0; i < NAdc; i++ {
		v := int32(binary.LittleEndian.Uint32(in[4*i : 4*i+4]))
		l.stats.Observe(i, v)
		if ok {
			l.state.accumulate(i, v)
		}
	}
	if l.metrics != nil {
		l.metrics.RecordAdcSample()
	}
	if !ok {
		return
	}
	l.state.sampleCount++

	window := l.cfg.AdcWfWindowSamples
	if window <= 0 {
		window = constants.DefaultAdcWfWindowSamples
	}
	if l.state.sampleCount < window {
		return
	}
	if l.adcWf != nil {
		for i := 0; i < NAdc; i++ {
			if avg, ok := l.state.Average(i); ok {
				l.adcWf.PushAdcWfSample(i, avg)
			}
		}
	}
	l.state.ResetAccumulator()
}

// busyWait settles for d using a raw nanosleep (spec §4.4 step 2),
// grounded on internal/queue/runner.go's use of a syscall.Timespec sleep
// for its retry backoff: at the microsecond scale this delay operates at,
// time.Sleep's goroutine-park-and-timer machinery adds more jitter than
// the delay itself, so this calls unix.Nanosleep directly instead.
func busyWait(d time.Duration) {
	if d <= 0 {
		return
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())
	_ = unix.Nanosleep(&ts, nil)
}
