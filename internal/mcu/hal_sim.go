package mcu

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/binp-dev/ferrite-core/internal/constants"
	"github.com/binp-dev/ferrite-core/internal/errs"
)

// SimHAL is an in-memory HAL used by tests and by cmd/pscmcu's simulation
// mode: Trigger stands in for the sample-ready GPIO edge, and Transfer
// synthesizes the analog board's reply from whatever ADC values the test
// last set, instead of driving real SPI hardware.
type SimHAL struct {
	ready chan struct{}

	mu          sync.Mutex
	adcValues   [constants.NAdc]int32
	corruptNext bool
	pulses      int
	lastOut     []byte
}

// NewSimHAL creates a SimHAL with all ADC channels reading zero.
func NewSimHAL() *SimHAL {
	return &SimHAL{ready: make(chan struct{}, 1)}
}

// Trigger simulates one sample-ready edge, waking a blocked
// WaitSampleReady call.
func (h *SimHAL) Trigger() {
	select {
	case h.ready <- struct{}{}:
	default:
	}
}

// WaitSampleReady blocks until Trigger is called or ctx is done.
func (h *SimHAL) WaitSampleReady(ctx context.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-ctx.Done():
		return errs.WrapError("mcu.SimHAL.WaitSampleReady", errs.CodeTimedOut, ctx.Err())
	}
}

// SetAdcValues sets the values Transfer will report on its next call.
func (h *SimHAL) SetAdcValues(values [constants.NAdc]int32) {
	h.mu.Lock()
	h.adcValues = values
	h.mu.Unlock()
}

// CorruptNextFrame flips the CRC of the next Transfer reply, simulating a
// single corrupted sample (spec §4.4 step 4, §9 open question #2).
func (h *SimHAL) CorruptNextFrame() {
	h.mu.Lock()
	h.corruptNext = true
	h.mu.Unlock()
}

// Pulses returns how many times PulseReady has been called.
func (h *SimHAL) Pulses() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pulses
}

// LastOut returns the bytes most recently passed to Transfer's out
// parameter, letting tests assert on the outgoing sync/dac/crc header.
func (h *SimHAL) LastOut() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.lastOut...)
}

// Transfer fills in with NAdc little-endian ADC samples followed by their
// CRC16, matching the incoming frame layout spec §4.4 step 3 describes.
func (h *SimHAL) Transfer(out, in []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastOut = append([]byte(nil), out...)

	off := 0
	for _, v := range h.adcValues {
		binary.LittleEndian.PutUint32(in[off:off+4], uint32(v))
		off += 4
	}
	crc := CRC16(in[:off])
	if h.corruptNext {
		crc ^= 0xFFFF
		h.corruptNext = false
	}
	binary.LittleEndian.PutUint16(in[off:off+2], crc)
	return nil
}
