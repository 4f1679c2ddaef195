package mcu

import (
	"math"
	"sync/atomic"

	"github.com/binp-dev/ferrite-core/internal/constants"
)

// NAdc is the number of ADC channels sampled on every SPI transfer.
const NAdc = constants.NAdc

// State holds the scalars shared between the RPMSG task (which applies
// DacSet/DoutSet to dacSetpoint/doutBits) and the sampling task (the sole
// mutator of the accumulator, the sole reader of dacSetpoint/doutBits, and
// also a writer of dacSetpoint while a DAC waveform source is wired in)
// (spec §4.4 "Concurrency"). dacSetpoint and doutBits are cross-task and
// therefore atomic; the accumulator and sampleCount are touched only by
// the sampling task and are plain fields.
type State struct {
	dacSetpoint atomic.Int32
	doutBits    atomic.Uint32

	adcAccum    [NAdc]int64
	sampleCount int
}

// SetDac is called by the RPMSG task to apply a new DacSet value, and by
// the sampling task to step a wired DAC waveform.
func (s *State) SetDac(v int32) { s.dacSetpoint.Store(v) }

// Dac is called by the sampling task to read the current setpoint.
func (s *State) Dac() int32 { return s.dacSetpoint.Load() }

// SetDout is called by the RPMSG task to apply a new DoutSet value.
func (s *State) SetDout(bits uint8) { s.doutBits.Store(uint32(bits)) }

// Dout is called by the sampling task to read the current output word.
func (s *State) Dout() uint8 { return uint8(s.doutBits.Load()) }

// accumulate adds one ADC reading to channel i's running sum, overwriting
// rather than adding on the first sample after a reset (spec §4.4 step 5).
func (s *State) accumulate(i int, v int32) {
	if s.sampleCount == 0 {
		s.adcAccum[i] = int64(v)
	} else {
		s.adcAccum[i] += int64(v)
	}
}

// ResetAccumulator clears the running sums and sample count.
func (s *State) ResetAccumulator() {
	for i := range s.adcAccum {
		s.adcAccum[i] = 0
	}
	s.sampleCount = 0
}

// Average returns channel i's accumulated mean since the last reset, or
// (0, false) if no samples have been accumulated.
func (s *State) Average(i int) (int32, bool) {
	if s.sampleCount == 0 {
		return 0, false
	}
	return int32(s.adcAccum[i] / int64(s.sampleCount)), true
}

// Stats are the sampling task's published counters, read by the (simulated)
// statistics-print task. All fields are atomic since they cross tasks
// (spec §4.4 "Concurrency": "cross-task reads use platform-atomic... loads
// /stores; no mutex is required").
type Stats struct {
	last, min, max      [NAdc]atomic.Int32
	interruptsPerSample atomic.Uint64
	crcFailures         atomic.Uint64
}

// NewStats returns a Stats with Min/Max sentinels set so the first
// Observe call on each channel always wins the compare-and-swap.
func NewStats() *Stats {
	st := &Stats{}
	for i := 0; i < NAdc; i++ {
		st.min[i].Store(math.MaxInt32)
		st.max[i].Store(math.MinInt32)
	}
	return st
}

// Observe records one ADC channel's reading into Last/Min/Max (spec §4.4
// step 4: a CRC-failed sample is still applied here).
func (st *Stats) Observe(i int, v int32) {
	st.last[i].Store(v)
	for {
		cur := st.min[i].Load()
		if cur <= v {
			break
		}
		if st.min[i].CompareAndSwap(cur, v) {
			break
		}
	}
	for {
		cur := st.max[i].Load()
		if cur >= v {
			break
		}
		if st.max[i].CompareAndSwap(cur, v) {
			break
		}
	}
}

func (st *Stats) Last(i int) int32 { return st.last[i].Load() }
func (st *Stats) Min(i int) int32  { return st.min[i].Load() }
func (st *Stats) Max(i int) int32  { return st.max[i].Load() }

func (st *Stats) IncInterrupt()  { st.interruptsPerSample.Add(1) }
func (st *Stats) IncCRCFailure() { st.crcFailures.Add(1) }

func (st *Stats) InterruptsPerSample() uint64 { return st.interruptsPerSample.Load() }
func (st *Stats) CRCFailures() uint64         { return st.crcFailures.Load() }
