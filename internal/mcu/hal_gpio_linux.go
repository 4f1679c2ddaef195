//go:build linux

package mcu

import (
	"context"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/binp-dev/ferrite-core/internal/errs"
)

// GPIOConfig names the two lines the analog board toggles: the
// sample-ready input (an edge per SPI-frame opportunity) and the
// read-ready output (pulsed after each transfer completes).
type GPIOConfig struct {
	Chip           string // e.g. "gpiochip0"
	SampleReadyPin int
	ReadyPulsePin  int
}

// GPIOHAL backs SampleEdgeWaiter and ReadyPulser with real GPIO lines via
// go-gpiocdev (grounded on doismellburning-samoyed's ptt.go, which wraps
// the same library for PTT keying on Linux). Its Transfer method is a
// stub: the pack has no portable pure-Go SPI master, so a real
// deployment must supply its own (see NewGPIOHAL's doc).
type GPIOHAL struct {
	sampleReady *gpiocdev.Line
	readyPulse  *gpiocdev.Line

	mu      sync.Mutex
	edge    chan struct{}
	pulseMs time.Duration
}

// NewGPIOHAL opens the two GPIO lines named by cfg. The returned HAL's
// Transfer always fails with errs.CodeFatal("mcu: SPI transceiver not
// implemented") — callers on real hardware must wrap a real SPI driver
// around it (none of the example pack's dependencies provide one); the
// simulated HAL (hal_sim.go) is what this repo's tests and cmd/pscmcu's
// simulation mode exercise instead.
func NewGPIOHAL(cfg GPIOConfig, pulseWidth time.Duration) (*GPIOHAL, error) {
	h := &GPIOHAL{edge: make(chan struct{}, 1), pulseMs: pulseWidth}

	sr, err := gpiocdev.RequestLine(cfg.Chip, cfg.SampleReadyPin,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(h.onSampleReadyEdge),
	)
	if err != nil {
		return nil, errs.WrapError("mcu.NewGPIOHAL", errs.CodeFatal, err)
	}
	h.sampleReady = sr

	rp, err := gpiocdev.RequestLine(cfg.Chip, cfg.ReadyPulsePin, gpiocdev.AsOutput(0))
	if err != nil {
		sr.Close()
		return nil, errs.WrapError("mcu.NewGPIOHAL", errs.CodeFatal, err)
	}
	h.readyPulse = rp

	return h, nil
}

func (h *GPIOHAL) onSampleReadyEdge(gpiocdev.LineEvent) {
	select {
	case h.edge <- struct{}{}:
	default:
	}
}

// WaitSampleReady implements SampleEdgeWaiter.
func (h *GPIOHAL) WaitSampleReady(ctx context.Context) error {
	select {
	case <-h.edge:
		return nil
	case <-ctx.Done():
		return errs.WrapError("mcu.GPIOHAL.WaitSampleReady", errs.CodeTimedOut, ctx.Err())
	}
}

// Transfer implements SPITransceiver. See NewGPIOHAL's doc: not
// implemented on top of this pack's dependencies.
func (h *GPIOHAL) Transfer(out, in []byte) error {
	return errs.NewError("mcu.GPIOHAL.Transfer", errs.CodeFatal, "SPI transceiver not implemented")
}

// PulseReady implements ReadyPulser: drives the line high then low after
// pulseMs, matching spec §4.4 step 6.
func (h *GPIOHAL) PulseReady() {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.readyPulse.SetValue(1)
	time.Sleep(h.pulseMs)
	_ = h.readyPulse.SetValue(0)
}

// Close releases both GPIO lines.
func (h *GPIOHAL) Close() error {
	err1 := h.sampleReady.Close()
	err2 := h.readyPulse.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
