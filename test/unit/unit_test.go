//go:build !integration

// Package unit holds pure in-memory cross-package tests: wiring checks
// that span more than one package but need no real transport, goroutine
// lifecycle, or kernel/hardware support, split from test/integration.
package unit

import (
	"testing"
	"time"

	ferritecore "github.com/binp-dev/ferrite-core"
	"github.com/binp-dev/ferrite-core/internal/channel"
	"github.com/binp-dev/ferrite-core/internal/codec"
	"github.com/binp-dev/ferrite-core/internal/device"
	"github.com/binp-dev/ferrite-core/internal/points"
	"github.com/binp-dev/ferrite-core/internal/proto"
	"github.com/binp-dev/ferrite-core/internal/transport"
)

// newTestDevice builds a Device over an unstarted loopback Mailbox, just
// enough plumbing for points.NewHandler's resolution table to bind
// against a real *device.Device.
func newTestDevice(t *testing.T) *device.Device {
	t.Helper()
	mbox := transport.NewMailbox(ferritecore.DefaultMaxMessageSize, 8*ferritecore.DefaultMaxMessageSize)
	ch := channel.New(mbox, ferritecore.DefaultMaxMessageSize, true, nil)
	return device.New(ch, device.DefaultConfig(), nil)
}

// TestPointNameResolution checks points.NewHandler's full prefix table
// (spec §4.5, §6.4) against a live Device, and that an unrecognized name
// is rejected rather than silently accepted.
func TestPointNameResolution(t *testing.T) {
	dev := newTestDevice(t)

	valid := []string{"ao0", "do0", "di0", "scan_freq", "ai0", "ai5", "aai0", "aao0"}
	for _, name := range valid {
		if _, err := points.NewHandler(name, dev); err != nil {
			t.Errorf("NewHandler(%q) = %v, want no error", name, err)
		}
	}

	if _, err := points.NewHandler("ai6", dev); err == nil {
		t.Error("NewHandler(\"ai6\") should fail: channel index out of range")
	}
	if _, err := points.NewHandler("not_a_point", dev); err == nil {
		t.Error("NewHandler(\"not_a_point\") should fail: unrecognized name")
	}
}

// TestCodecPackedSizeMatchesStore checks that PackedSize's prediction and
// Store's actual write length agree for one representative message of
// every variant carrying a dynamic length (spec §4.1).
func TestCodecPackedSizeMatchesStore(t *testing.T) {
	msgs := []proto.Message{
		proto.DacSet{Value: 12345},
		proto.DacWf{Elements: []int32{1, 2, 3}},
		proto.DoutSet{Bits: 0x0a},
		proto.AdcVal{Values: [proto.NAdc]int32{1, 2, 3, 4, 5, 6}},
		proto.AdcWf{Index: 2, Elements: []int32{-1, -2}},
		proto.ErrorMsg{Code: 1, Message: "boom"},
		proto.Debug{Message: "hello"},
	}
	for _, m := range msgs {
		want := codec.PackedSize(m)
		buf := make([]byte, want)
		n, err := codec.Store(m, buf)
		if err != nil {
			t.Errorf("Store(%#v) error: %v", m, err)
			continue
		}
		if n != want {
			t.Errorf("Store(%#v) wrote %d bytes, PackedSize said %d", m, n, want)
		}
	}
}

// TestConstantsReexport checks the root package's re-exported constants
// stay in lockstep with internal/constants (spec §3, §6).
func TestConstantsReexport(t *testing.T) {
	if ferritecore.NAdc != 6 {
		t.Errorf("NAdc = %d, want 6", ferritecore.NAdc)
	}
	if ferritecore.DefaultAdcReqHz <= 0 {
		t.Error("DefaultAdcReqHz should be positive")
	}
	if ferritecore.MinScanFreqHz <= 0 || ferritecore.MaxScanFreqHz < ferritecore.MinScanFreqHz {
		t.Errorf("scan freq bounds are inconsistent: [%v, %v]", ferritecore.MinScanFreqHz, ferritecore.MaxScanFreqHz)
	}
}

// TestErrorCodeMatching checks the root package's Error/Code aliases
// round-trip through IsCode the same way internal/errs.Error does (spec
// §7).
func TestErrorCodeMatching(t *testing.T) {
	err := ferritecore.NewError("unit.Test", ferritecore.CodeInvalidData, "example")
	if !ferritecore.IsCode(err, ferritecore.CodeInvalidData) {
		t.Error("IsCode should match the error's own code")
	}
	if ferritecore.IsCode(err, ferritecore.CodeTimedOut) {
		t.Error("IsCode should not match an unrelated code")
	}
}

// TestDeviceDefaultConfig sanity-checks the defaults DefaultConfig
// documents (spec §4.3): 10 Hz ADC polling and a bounded recv tick.
func TestDeviceDefaultConfig(t *testing.T) {
	cfg := device.DefaultConfig()
	if cfg.AdcReqPeriod <= 0 || cfg.AdcReqPeriod > time.Second {
		t.Errorf("AdcReqPeriod = %v, want a sub-second positive period", cfg.AdcReqPeriod)
	}
	if cfg.RecvTickTimeout <= 0 {
		t.Error("RecvTickTimeout should be positive")
	}
}
