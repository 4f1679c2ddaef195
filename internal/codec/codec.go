// Package codec packs and unpacks the inter-processor message alphabet
// defined in internal/proto to and from byte sequences (spec §4.1).
//
// Store/Load operate on plain byte slices rather than an io.Reader/Writer
// pair: the channel package already owns fixed scratch and ring buffers,
// so the codec's job is purely the in-memory encode/decode step, kept
// separate from the I/O that owns those buffers.
package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/binp-dev/ferrite-core/internal/errs"
	"github.com/binp-dev/ferrite-core/internal/proto"
)

// headerSize is the one-byte type tag every message starts with (spec §3.1).
const headerSize = 1

// maxWfElements bounds AdcWf/DacWf element counts so senders must split
// longer waveforms across multiple messages (spec §4.1 edge case).
func maxWfElements(maxMessageSize int) int {
	const elemSize = 4 // int32, little-endian (spec §6.1)
	const lenSize = 2  // u16 len prefix
	n := (maxMessageSize - headerSize - lenSize) / elemSize
	if n < 0 {
		return 0
	}
	return n
}

// dac24Min/dac24Max bound the 24-bit signed DAC value spec §3.1 specifies.
const (
	dac24Min = -(1 << 23)
	dac24Max = (1 << 23) - 1
)

// ErrNeedMoreData is returned by Load when buf does not yet contain a
// complete message. It is distinct from a parse error: the caller's
// stream position must not advance (spec §4.1 "load contract").
var ErrNeedMoreData = errs.NewError("codec.Load", errs.CodeUnexpectedEOF, "buffer does not contain a complete message")

func parseErr(format string, args ...any) error {
	return errs.NewError("codec.Load", errs.CodeParseError, fmt.Sprintf(format, args...))
}

// PackedSize returns the exact number of bytes Store will emit for msg.
func PackedSize(msg proto.Message) int {
	switch m := msg.(type) {
	case proto.None:
		return headerSize
	case proto.Start:
		return headerSize
	case proto.Stop:
		return headerSize
	case proto.DacSet:
		return headerSize + 4
	case proto.DacWf:
		return headerSize + 2 + 4*len(m.Elements)
	case proto.DoutSet:
		return headerSize + 1
	case proto.AdcReq:
		return headerSize
	case proto.AdcVal:
		return headerSize + 4*proto.NAdc
	case proto.DinVal:
		return headerSize + 1
	case proto.AdcWf:
		return headerSize + 1 + 2 + 4*len(m.Elements)
	case proto.DacWfReq:
		return headerSize
	case proto.ErrorMsg:
		return headerSize + 1 + 1 + len(m.Message)
	case proto.Debug:
		return headerSize + 1 + len(m.Message)
	default:
		return 0
	}
}

// Store serializes msg into dst, which must be at least PackedSize(msg)
// bytes. It writes exactly that many bytes on success, or returns
// CodeOutOfBounds without touching dst if dst is too small.
func Store(msg proto.Message, dst []byte) (int, error) {
	n := PackedSize(msg)
	if len(dst) < n {
		return 0, errs.NewError("codec.Store", errs.CodeOutOfBounds, "destination buffer shorter than packed size")
	}

	dst[0] = byte(msg.Tag())
	body := dst[headerSize:n]

	switch m := msg.(type) {
	case proto.None, proto.Start, proto.Stop, proto.AdcReq, proto.DacWfReq:
		// empty payload

	case proto.DacSet:
		if err := putDac24(body, m.Value); err != nil {
			return 0, err
		}

	case proto.DacWf:
		binary.LittleEndian.PutUint16(body[0:2], uint16(len(m.Elements)))
		off := 2
		for _, v := range m.Elements {
			binary.LittleEndian.PutUint32(body[off:off+4], uint32(v))
			off += 4
		}

	case proto.DoutSet:
		body[0] = m.Bits

	case proto.AdcVal:
		off := 0
		for _, v := range m.Values {
			binary.LittleEndian.PutUint32(body[off:off+4], uint32(v))
			off += 4
		}

	case proto.DinVal:
		body[0] = m.Bits

	case proto.AdcWf:
		body[0] = m.Index
		binary.LittleEndian.PutUint16(body[1:3], uint16(len(m.Elements)))
		off := 3
		for _, v := range m.Elements {
			binary.LittleEndian.PutUint32(body[off:off+4], uint32(v))
			off += 4
		}

	case proto.ErrorMsg:
		if len(m.Message) > 255 {
			return 0, errs.NewError("codec.Store", errs.CodeOutOfBounds, "error message longer than 255 bytes")
		}
		body[0] = m.Code
		body[1] = byte(len(m.Message))
		copy(body[2:], m.Message)

	case proto.Debug:
		if len(m.Message) > 255 {
			return 0, errs.NewError("codec.Store", errs.CodeOutOfBounds, "debug message longer than 255 bytes")
		}
		body[0] = byte(len(m.Message))
		copy(body[1:], m.Message)

	default:
		return 0, errs.NewError("codec.Store", errs.CodeParseError, "unknown message type")
	}

	return n, nil
}

func putDac24(dst []byte, v int32) error {
	if v < dac24Min || v > dac24Max {
		return errs.NewError("codec.Store", errs.CodeInvalidData, "dac value out of 24-bit signed range")
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(v))
	return nil
}

// Load decodes one message from the front of buf, by direction: fromMcu
// selects the MCU→App alphabet, otherwise the App→MCU alphabet is used.
// On success it returns the message and the number of bytes consumed. If
// buf does not yet hold a complete message it returns ErrNeedMoreData and
// the caller must not advance past buf. On a malformed message it returns
// a CodeParseError error and the stream must be treated as poisoned.
func Load(buf []byte, fromMcu bool) (proto.Message, int, error) {
	if len(buf) < headerSize {
		return nil, 0, ErrNeedMoreData
	}
	tag := proto.Tag(buf[0])
	body := buf[headerSize:]

	if fromMcu {
		return loadFromMcu(tag, body)
	}
	return loadFromApp(tag, body)
}

func loadFromApp(tag proto.Tag, body []byte) (proto.Message, int, error) {
	switch tag {
	case proto.TagNone:
		return proto.None{}, headerSize, nil
	case proto.TagStart:
		return proto.Start{}, headerSize, nil
	case proto.TagStop:
		return proto.Stop{}, headerSize, nil
	case proto.TagDacSet:
		if len(body) < 4 {
			return nil, 0, ErrNeedMoreData
		}
		v := int32(binary.LittleEndian.Uint32(body[0:4]))
		return proto.DacSet{Value: v}, headerSize + 4, nil
	case proto.TagDacWf:
		return loadElementSeq(body, headerSize, func(elems []int32) proto.Message {
			return proto.DacWf{Elements: elems}
		})
	case proto.TagDoutSet:
		if len(body) < 1 {
			return nil, 0, ErrNeedMoreData
		}
		return proto.DoutSet{Bits: body[0]}, headerSize + 1, nil
	case proto.TagAdcReq:
		return proto.AdcReq{}, headerSize, nil
	default:
		return nil, 0, parseErr("unknown app->mcu tag 0x%02x", byte(tag))
	}
}

func loadFromMcu(tag proto.Tag, body []byte) (proto.Message, int, error) {
	switch tag {
	case proto.TagNone:
		return proto.None{}, headerSize, nil
	case proto.TagDacWfReq:
		return proto.DacWfReq{}, headerSize, nil
	case proto.TagAdcVal:
		need := 4 * proto.NAdc
		if len(body) < need {
			return nil, 0, ErrNeedMoreData
		}
		var vals [proto.NAdc]int32
		off := 0
		for i := range vals {
			vals[i] = int32(binary.LittleEndian.Uint32(body[off : off+4]))
			off += 4
		}
		return proto.AdcVal{Values: vals}, headerSize + need, nil
	case proto.TagDinVal:
		if len(body) < 1 {
			return nil, 0, ErrNeedMoreData
		}
		return proto.DinVal{Bits: body[0]}, headerSize + 1, nil
	case proto.TagAdcWf:
		if len(body) < 1 {
			return nil, 0, ErrNeedMoreData
		}
		index := body[0]
		msg, n, err := loadElementSeq(body[1:], headerSize+1, func(elems []int32) proto.Message {
			return proto.AdcWf{Index: index, Elements: elems}
		})
		return msg, n, err
	case proto.TagErrorFromMcu:
		return loadLengthPrefixedString(body, headerSize, true, func(code uint8, s string) proto.Message {
			return proto.ErrorMsg{Code: code, Message: s}
		})
	case proto.TagDebug:
		return loadLengthPrefixedString(body, headerSize, false, func(_ uint8, s string) proto.Message {
			return proto.Debug{Message: s}
		})
	default:
		return nil, 0, parseErr("unknown mcu->app tag 0x%02x", byte(tag))
	}
}

// loadElementSeq decodes a u16 length followed by that many little-endian
// int32 elements (DacWf/AdcWf payload shape, spec §6.1).
func loadElementSeq(body []byte, consumedBefore int, build func([]int32) proto.Message) (proto.Message, int, error) {
	if len(body) < 2 {
		return nil, 0, ErrNeedMoreData
	}
	count := int(binary.LittleEndian.Uint16(body[0:2]))
	need := 2 + 4*count
	if len(body) < need {
		return nil, 0, ErrNeedMoreData
	}
	elems := make([]int32, count)
	off := 2
	for i := range elems {
		elems[i] = int32(binary.LittleEndian.Uint32(body[off : off+4]))
		off += 4
	}
	return build(elems), consumedBefore + need, nil
}

// loadLengthPrefixedString decodes the string wire shape this rewrite
// picked for both Error and Debug (spec §9 open question #1): an optional
// one-byte error code, then a one-byte length, then that many UTF-8
// bytes, no NUL terminator.
func loadLengthPrefixedString(body []byte, consumedBefore int, hasCode bool, build func(uint8, string) proto.Message) (proto.Message, int, error) {
	var code uint8
	rest := body
	headerLen := 1
	if hasCode {
		if len(rest) < 1 {
			return nil, 0, ErrNeedMoreData
		}
		code = rest[0]
		rest = rest[1:]
		headerLen++
	}
	if len(rest) < 1 {
		return nil, 0, ErrNeedMoreData
	}
	n := int(rest[0])
	if len(rest) < 1+n {
		return nil, 0, ErrNeedMoreData
	}
	strBytes := rest[1 : 1+n]
	if !utf8.Valid(strBytes) {
		return nil, 0, parseErr("string payload is not valid utf-8")
	}
	return build(code, string(strBytes)), consumedBefore + headerLen + n, nil
}

// MaxWfElements returns the largest element count that fits a DacWf
// message within maxMessageSize bytes (spec §4.1 edge case).
func MaxWfElements(maxMessageSize int) int {
	return maxWfElements(maxMessageSize)
}

// MaxAdcWfElements is the AdcWf equivalent of MaxWfElements, accounting
// for the extra channel-index byte AdcWf carries.
func MaxAdcWfElements(maxMessageSize int) int {
	n := maxWfElements(maxMessageSize - 1)
	if n < 0 {
		return 0
	}
	return n
}
