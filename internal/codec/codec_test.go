package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/binp-dev/ferrite-core/internal/proto"
)

// genAppMessage and genMcuMessage draw an arbitrary well-formed message
// from each direction's alphabet (spec §6.1), for the round-trip property
// below (spec §8 property 1: "for every well-formed message m,
// Load(Store(m)) reproduces m").
func genAppMessage(t *rapid.T) proto.Message {
	switch rapid.IntRange(0, 6).Draw(t, "appKind") {
	case 0:
		return proto.None{}
	case 1:
		return proto.Start{}
	case 2:
		return proto.Stop{}
	case 3:
		return proto.DacSet{Value: rapid.Int32Range(dac24Min, dac24Max).Draw(t, "dacValue")}
	case 4:
		return proto.DacWf{Elements: rapid.SliceOfN(rapid.Int32(), 0, 64).Draw(t, "dacWfElements")}
	case 5:
		return proto.DoutSet{Bits: rapid.Byte().Draw(t, "doutBits")}
	default:
		return proto.AdcReq{}
	}
}

func genMcuMessage(t *rapid.T) proto.Message {
	switch rapid.IntRange(0, 5).Draw(t, "mcuKind") {
	case 0:
		return proto.DacWfReq{}
	case 1:
		var vals [proto.NAdc]int32
		for i := range vals {
			vals[i] = rapid.Int32().Draw(t, "adcVal")
		}
		return proto.AdcVal{Values: vals}
	case 2:
		return proto.DinVal{Bits: rapid.Byte().Draw(t, "dinBits")}
	case 3:
		return proto.AdcWf{
			Index:    rapid.Byte().Draw(t, "adcWfIndex"),
			Elements: rapid.SliceOfN(rapid.Int32(), 0, 64).Draw(t, "adcWfElements"),
		}
	case 4:
		return proto.ErrorMsg{
			Code:    rapid.Byte().Draw(t, "errCode"),
			Message: rapid.StringN(0, 32, -1).Draw(t, "errMessage"),
		}
	default:
		return proto.Debug{Message: rapid.StringN(0, 32, -1).Draw(t, "debugMessage")}
	}
}

// TestRoundTripAppToMcu checks that every well-formed app->mcu message
// survives a Store/Load round trip unchanged.
func TestRoundTripAppToMcu(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msg := genAppMessage(t)
		roundTrip(t, msg, false)
	})
}

// TestRoundTripMcuToApp is the MCU->App equivalent of
// TestRoundTripAppToMcu.
func TestRoundTripMcuToApp(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msg := genMcuMessage(t)
		roundTrip(t, msg, true)
	})
}

func roundTrip(t *rapid.T, msg proto.Message, fromMcu bool) {
	buf := make([]byte, PackedSize(msg))
	n, err := Store(msg, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	got, consumed, err := Load(buf, fromMcu)
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, msg, got)
}

// TestLoadNeedsMoreDataOnTruncation checks the load contract's other half:
// a truncated buffer never yields a parse error, only ErrNeedMoreData, so
// the caller knows it is safe to wait for more bytes rather than poison
// the stream (spec §4.1 "load contract").
func TestLoadNeedsMoreDataOnTruncation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fromMcu := rapid.Bool().Draw(t, "fromMcu")
		var msg proto.Message
		if fromMcu {
			msg = genMcuMessage(t)
		} else {
			msg = genAppMessage(t)
		}

		full := make([]byte, PackedSize(msg))
		_, err := Store(msg, full)
		require.NoError(t, err)

		cut := rapid.IntRange(0, len(full)-1).Draw(t, "cut")
		_, _, err = Load(full[:cut], fromMcu)
		require.ErrorIs(t, err, ErrNeedMoreData)
	})
}
