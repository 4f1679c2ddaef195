// Package proto defines the tagged-variant message alphabet exchanged
// between the application and the MCU (spec §3.1) and the wire tags that
// identify each variant (spec §6.1). It holds no framing or I/O logic —
// that lives in internal/codec and internal/channel.
package proto

import "github.com/binp-dev/ferrite-core/internal/constants"

// NAdc is the number of ADC channels carried in AdcVal (spec §3.1).
const NAdc = constants.NAdc

// Tag identifies a message variant on the wire. App→MCU and MCU→App tags
// share one byte-sized namespace but are only ever compared within their
// own direction; nothing stops a Tag value from aliasing across
// directions because the two alphabets are never decoded by the same
// Load call (internal/codec picks the table by direction).
type Tag byte

// App→MCU tags (spec §6.1).
const (
	TagNone    Tag = 0x00
	TagStart   Tag = 0x01
	TagStop    Tag = 0x02
	TagDacSet  Tag = 0x10
	TagDacWf   Tag = 0x11
	TagDoutSet Tag = 0x12
	TagAdcReq  Tag = 0x20
)

// MCU→App tags (spec §6.1). TagNone (0x00) is shared with the app→mcu
// alphabet; None{} decodes identically in either direction.
const (
	TagDacWfReq     Tag = 0x10
	TagAdcVal       Tag = 0x20
	TagDinVal       Tag = 0x21
	TagAdcWf        Tag = 0x22
	TagErrorFromMcu Tag = 0xE0
	TagDebug        Tag = 0xE1
)

// Message is implemented by every variant in both alphabets. Tag reports
// the wire tag used to identify this variant when stored.
type Message interface {
	Tag() Tag
}

// --- App→MCU variants ---

// None is the empty, otherwise-unused placeholder variant.
type None struct{}

func (None) Tag() Tag { return TagNone }

// Start is sent exactly once by the app at the start of the handshake
// (spec §4.3 "Handshake").
type Start struct{}

func (Start) Tag() Tag { return TagStart }

// Stop is a valid app→MCU wire variant (spec §6.1's wire table lists it).
// The codec encodes and decodes it and the MCU's TransferLoop accepts it
// without acting on it; Device.Stop does not send it.
type Stop struct{}

func (Stop) Tag() Tag { return TagStop }

// DacSet carries one new DAC setpoint. Value is a 24-bit signed quantity
// sign-extended into an int32 (spec §3.1, §4.1).
type DacSet struct {
	Value int32
}

func (DacSet) Tag() Tag { return TagDacSet }

// DacWf carries one chunk of an outgoing DAC waveform. An empty Elements
// slice is legal and means "no waveform data this burst" (spec §4.1).
type DacWf struct {
	Elements []int32
}

func (DacWf) Tag() Tag { return TagDacWf }

// DoutSet carries the full digital-output word; only the low 4 bits are
// meaningful (spec §3.3, §8).
type DoutSet struct {
	Bits uint8
}

func (DoutSet) Tag() Tag { return TagDoutSet }

// AdcReq asks the MCU for a fresh AdcVal.
type AdcReq struct{}

func (AdcReq) Tag() Tag { return TagAdcReq }

// --- MCU→App variants ---

// AdcVal carries the latest reading for every ADC channel (spec §3.1).
type AdcVal struct {
	Values [NAdc]int32
}

func (AdcVal) Tag() Tag { return TagAdcVal }

// DinVal carries the digital-input word.
type DinVal struct {
	Bits uint8
}

func (DinVal) Tag() Tag { return TagDinVal }

// AdcWf carries one chunk of an accumulating ADC waveform for channel
// Index (spec §3.1, §4.3 "ADC waveform aggregation").
type AdcWf struct {
	Index    uint8
	Elements []int32
}

func (AdcWf) Tag() Tag { return TagAdcWf }

// DacWfReq asks the app for more DAC waveform data; emitted when the
// MCU's outgoing ring falls below its low-water mark (spec §4.4).
type DacWfReq struct{}

func (DacWfReq) Tag() Tag { return TagDacWfReq }

// ErrorMsg reports an MCU-side error condition (named ErrorMsg, not
// Error, so it does not collide with the Go error interface).
type ErrorMsg struct {
	Code    uint8
	Message string
}

func (ErrorMsg) Tag() Tag { return TagErrorFromMcu }

// Debug carries a free-text diagnostic line, used for the boot handshake
// reply (spec §8 "Boot handshake").
type Debug struct {
	Message string
}

func (Debug) Tag() Tag { return TagDebug }
