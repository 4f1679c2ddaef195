// Package mcu implements the MCU-side sampling loop and RPMSG transfer
// task (spec §4.4): the ISR-simulated sample-ready wait, the 26-byte SPI
// frame exchange and its CRC, and the channel-facing task that answers the
// app's DacSet/DoutSet/AdcReq/DacWf traffic.
package mcu

import "context"

// SampleEdgeWaiter is the ISR-to-task handoff: it blocks until the
// sample-ready edge fires or ctx's deadline passes, standing in for the
// interrupt-to-semaphore signal (spec §4.4 "ISR contract" steps 1-2) plus
// the sampling task's 1s watchdog (spec §5 "Suspension points").
type SampleEdgeWaiter interface {
	WaitSampleReady(ctx context.Context) error
}

// SPITransceiver performs one full-duplex exchange: out is written to the
// analog board while in is filled with its reply, both exactly
// constants.SPIFrameSize bytes (spec §4.4 step 3, §6.3).
type SPITransceiver interface {
	Transfer(out, in []byte) error
}

// ReadyPulser drives the read-ready GPIO high then low for
// constants.ReadyPulseWidth (spec §4.4 step 6).
type ReadyPulser interface {
	PulseReady()
}

// HAL is the hardware boundary the sampling task depends on (spec §4.4
// "ISR contract", "Sampling task"). A real implementation backs
// SampleEdgeWaiter/ReadyPulser with GPIO lines (see hal_gpio_linux.go) and
// SPITransceiver with an SPI driver; hal_sim.go backs all three entirely
// in memory for tests and non-Linux development.
type HAL interface {
	SampleEdgeWaiter
	SPITransceiver
	ReadyPulser
}
