package points

import (
	"strconv"
	"strings"
	"time"

	"github.com/binp-dev/ferrite-core/internal/constants"
	"github.com/binp-dev/ferrite-core/internal/device"
	"github.com/binp-dev/ferrite-core/internal/errs"
)

// Handler bridges one named supervisory point to the device (spec §4.5
// "Contract"). Output points implement Write; input points implement Read
// and SetReadRequest. A point that doesn't support a given direction
// returns a CodeInvalidData error from an unsupported Write or Read rather
// than panicking, and treats SetReadRequest as a no-op, since the
// supervisory framework calls all three methods uniformly regardless of
// direction.
type Handler interface {
	// Write reads the record's value and applies it to the device
	// (output points only).
	Write(v Value) error
	// Read copies the device's current value into the record (input
	// points only).
	Read() (Value, error)
	// SetReadRequest arms the device's per-point notify so a new device
	// value re-triggers record processing (input points only). notify
	// takes no argument and carries no payload: the record framework
	// re-reads via Read once triggered.
	SetReadRequest(notify func())
}

func errUnsupported(op, reason string) error {
	return errs.NewError(op, errs.CodeInvalidData, reason)
}

// NewHandler resolves name against the canonical prefix table (spec §4.5,
// §6.4) and returns the Handler bound to dev. An unrecognized name is a
// CodeInvalidData error: the framework should fail record initialization
// loudly rather than silently skip a misconfigured point.
func NewHandler(name string, dev *device.Device) (Handler, error) {
	switch {
	case name == "ao0":
		return &dacOutHandler{dev: dev}, nil
	case name == "do0":
		return &doutOutHandler{dev: dev}, nil
	case name == "di0":
		return &dinInHandler{dev: dev}, nil
	case name == "scan_freq":
		return &scanFreqHandler{dev: dev}, nil
	case strings.HasPrefix(name, "aai"):
		idx, err := adcIndex(name, "aai")
		if err != nil {
			return nil, err
		}
		return &adcWfInHandler{dev: dev, index: idx}, nil
	case strings.HasPrefix(name, "ai"):
		idx, err := adcIndex(name, "ai")
		if err != nil {
			return nil, err
		}
		return &adcInHandler{dev: dev, index: idx}, nil
	case strings.HasPrefix(name, "aao"):
		return &dacWfOutHandler{dev: dev, exec: NewExecutor()}, nil
	default:
		return nil, errs.NewError("points.NewHandler", errs.CodeInvalidData, "unrecognized point name: "+name)
	}
}

func adcIndex(name, prefix string) (int, error) {
	suffix := name[len(prefix):]
	idx, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, errs.NewError("points.NewHandler", errs.CodeInvalidData, "bad adc point index in "+name)
	}
	if idx < 0 || idx >= constants.NAdc {
		return 0, errs.NewError("points.NewHandler", errs.CodeInvalidData, "adc point index out of range in "+name)
	}
	return idx, nil
}

// --- ao0: scalar out, dac ---

type dacOutHandler struct{ dev *device.Device }

func (h *dacOutHandler) Write(v Value) error {
	s, ok := v.(ScalarI32)
	if !ok {
		return errUnsupported("points.Write", "ao0 expects ScalarI32")
	}
	h.dev.SetDac(s.V)
	return nil
}

func (h *dacOutHandler) Read() (Value, error) {
	return nil, errUnsupported("points.Read", "ao0 is output-only")
}

func (h *dacOutHandler) SetReadRequest(func()) {}

// --- aiN: scalar in, adcs[N] ---

type adcInHandler struct {
	dev   *device.Device
	index int
}

func (h *adcInHandler) Write(Value) error {
	return errUnsupported("points.Write", "aiN is input-only")
}

func (h *adcInHandler) Read() (Value, error) {
	return ScalarI32{V: h.dev.ReadAdc(h.index)}, nil
}

func (h *adcInHandler) SetReadRequest(notify func()) {
	h.dev.OnAdcChange(h.index, func(int32) { notify() })
}

// --- do0: scalar out, dout (low 4 bits) ---

type doutOutHandler struct{ dev *device.Device }

func (h *doutOutHandler) Write(v Value) error {
	s, ok := v.(ScalarU8)
	if !ok {
		return errUnsupported("points.Write", "do0 expects ScalarU8")
	}
	h.dev.SetDout(s.V)
	return nil
}

func (h *doutOutHandler) Read() (Value, error) {
	return nil, errUnsupported("points.Read", "do0 is output-only")
}

func (h *doutOutHandler) SetReadRequest(func()) {}

// --- di0: scalar in, din ---

type dinInHandler struct{ dev *device.Device }

func (h *dinInHandler) Write(Value) error {
	return errUnsupported("points.Write", "di0 is input-only")
}

func (h *dinInHandler) Read() (Value, error) {
	return ScalarU8{V: h.dev.ReadDin()}, nil
}

func (h *dinInHandler) SetReadRequest(notify func()) {
	h.dev.OnDinChange(func(uint8) { notify() })
}

// --- scan_freq: scalar out, adc_req_period, clamped 1-10 Hz, synchronous ---

// scanFreqHandler is deliberately synchronous (spec §9: "the scan-frequency
// handler... is trivial"): it is a clamp-and-store, with no waveform
// copying or blocking device call worth offloading to an Executor.
type scanFreqHandler struct{ dev *device.Device }

func (h *scanFreqHandler) Write(v Value) error {
	s, ok := v.(ScalarF64)
	if !ok {
		return errUnsupported("points.Write", "scan_freq expects ScalarF64")
	}
	h.dev.SetAdcReqPeriod(s.V)
	return nil
}

func (h *scanFreqHandler) Read() (Value, error) {
	return ScalarF64{V: freqFromPeriod(h.dev.AdcReqPeriod())}, nil
}

func (h *scanFreqHandler) SetReadRequest(func()) {}

func freqFromPeriod(d time.Duration) float64 {
	sec := d.Seconds()
	if sec <= 0 {
		return 0
	}
	return 1 / sec
}

// --- aao*: array out, dac_wf ---

// dacWfOutHandler offloads the waveform copy onto its Executor: per spec
// §9 "Async record processing", Write enqueues the device call on a
// dedicated goroutine and returns immediately once the job is queued,
// rather than waiting for that goroutine to run. WriteDacWf cannot itself
// fail, so there is no completion result to report back through the
// Handler interface (which has no write-side notify slot). Besides a
// Value that is not ArrayI32, a queue-full Submit is the only error Write
// can return.
type dacWfOutHandler struct {
	dev  *device.Device
	exec *Executor
}

func (h *dacWfOutHandler) Write(v Value) error {
	a, ok := v.(ArrayI32)
	if !ok {
		return errUnsupported("points.Write", "aao* expects ArrayI32")
	}
	elems := make([]int32, len(a.V))
	copy(elems, a.V)
	submitted := h.exec.Submit(func() (Value, error) {
		h.dev.WriteDacWf(elems)
		return nil, nil
	}, func(Value, error) {})
	if !submitted {
		return errs.NewError("points.Write", errs.CodeFatal, "aao* executor queue full")
	}
	return nil
}

func (h *dacWfOutHandler) Read() (Value, error) {
	return nil, errUnsupported("points.Read", "aao* is output-only")
}

func (h *dacWfOutHandler) SetReadRequest(func()) {}

// --- aaiN: array in, adc_wfs[N] ---

// adcWfInHandler reads directly off the device rather than through an
// Executor: ReadAdcWf only ever drains an already-accumulated buffer under
// a short-lived mutex, so there is no blocking device call worth offloading
// to a worker goroutine (unlike dacWfOutHandler's WriteDacWf, which mutates
// a double-buffer the send thread also touches). Completion of a given
// window is instead signalled the async way, via SetReadRequest's notify
// once OnAdcWfWindow fires (spec §9 "Async record processing").
type adcWfInHandler struct {
	dev   *device.Device
	index int
}

func (h *adcWfInHandler) Write(Value) error {
	return errUnsupported("points.Write", "aaiN is input-only")
}

func (h *adcWfInHandler) Read() (Value, error) {
	elems, ok := h.dev.ReadAdcWf(h.index)
	if !ok {
		return nil, errs.NewError("points.Read", errs.CodeUnexpectedEOF, "window not yet filled")
	}
	return ArrayI32{V: elems}, nil
}

func (h *adcWfInHandler) SetReadRequest(notify func()) {
	h.dev.OnAdcWfWindow(h.index, func([]int32) { notify() })
}
