// Package constants holds compile-time sizing and timing knobs shared
// across the codec, channel, device and mcu packages.
package constants

import "time"

// NAdc is the number of ADC channels sampled on every SPI transfer (spec §3.1).
const NAdc = 6

// Default configuration constants
const (
	// DefaultMaxMessageSize is the maximum single-message payload, and
	// also the default transport buffer size (spec §3.2).
	DefaultMaxMessageSize = 512

	// RingBufferMultiple is the ratio between the channel's receive ring
	// and the max message size (spec §4.2 "State").
	RingBufferMultiple = 8

	// DefaultAdcReqHz is the default ADC-request poll frequency.
	DefaultAdcReqHz = 10

	// MinScanFreqHz / MaxScanFreqHz clamp the scan_freq point (spec §4.5, §8).
	MinScanFreqHz = 1
	MaxScanFreqHz = 10

	// DoutBitMask keeps only the low four bits of a digital-output word
	// (spec §3.3, §8 "dout input masked to four bits").
	DoutBitMask = 0x0F

	// DefaultAdcWfWindowSamples is the default number of raw SPI samples
	// the sampling task averages per channel before emitting one AdcWf
	// element (spec §4.5/§6.4 "aaiN"; spec is silent on cadence, see
	// DESIGN.md).
	DefaultAdcWfWindowSamples = 16
)

// Timing constants for the device proxy and MCU sampling loop.
const (
	// RecvTickTimeout is how long recvLoop blocks on channel.Receive
	// before re-checking for shutdown (spec §4.3, §5).
	RecvTickTimeout = 10 * time.Millisecond

	// SampleSettleDelay is the busy-wait before the SPI transfer to let
	// analog noise settle (spec §4.4 step 2, design parameter default).
	SampleSettleDelay = 20 * time.Microsecond

	// ReadyPulseWidth is the on-duration of the read-ready GPIO pulse
	// after each SPI transfer (spec §4.4 step 6).
	ReadyPulseWidth = 10 * time.Microsecond

	// SampleWatchdog is the MCU sampling task's semaphore wait timeout
	// (spec §5 "Suspension points").
	SampleWatchdog = 1 * time.Second
)

// SPI frame constants (spec §4.4 step 3, §6.3).
const (
	SPIFrameSize  = 26
	SPISyncLo     = 0x55
	SPISyncHi     = 0xAA
	SPIFrameMode  = "CPOL=0,CPHA=1"
	SPINominalHz  = 25_000_000
)
