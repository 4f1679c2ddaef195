// Package device implements the application-side Device proxy (spec §4.3,
// §5): it owns one MessageChannel and runs exactly two goroutines, recvLoop
// and sendLoop, translating between the supervisory layer's imperative
// calls and inter-processor message traffic.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/binp-dev/ferrite-core/internal/channel"
	"github.com/binp-dev/ferrite-core/internal/codec"
	"github.com/binp-dev/ferrite-core/internal/constants"
	"github.com/binp-dev/ferrite-core/internal/errs"
	"github.com/binp-dev/ferrite-core/internal/logging"
	"github.com/binp-dev/ferrite-core/internal/proto"
)

// NAdc is the number of ADC channels the device tracks (spec §3.1).
const NAdc = constants.NAdc

// MetricsRecorder receives device-level event counts. *ferritecore.Metrics
// satisfies this interface structurally, without this package importing
// the root package.
type MetricsRecorder interface {
	RecordDacCoalesce()
}

// Config holds the tunable knobs for a Device (spec §3.3, §4.3, §6.4).
type Config struct {
	// MaxMessageSize bounds DacWf/AdcWf chunking (spec §4.1 edge case).
	MaxMessageSize int
	// AdcReqPeriod is the wall-clock cadence at which the send thread
	// polls for a fresh ADC sample (spec §4.3 "Scheduling and ordering").
	AdcReqPeriod time.Duration
	// RecvTickTimeout bounds how long recvLoop blocks before re-checking
	// for shutdown (spec §4.3, §5 "Suspension points").
	RecvTickTimeout time.Duration
	// Cyclic, if true, replays the front DAC waveform when exhausted
	// instead of disarming it (spec §3.3 cyclic_dac_wf).
	Cyclic bool
}

// DefaultConfig returns the spec's stated defaults: 10 Hz ADC polling
// (spec §4.3 "1-10 Hz range... defaulting to 10 Hz"), 512-byte messages
// (spec §3.2), and the 10ms recv tick (spec §4.3, §5).
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:  constants.DefaultMaxMessageSize,
		AdcReqPeriod:    time.Second / constants.DefaultAdcReqHz,
		RecvTickTimeout: constants.RecvTickTimeout,
		Cyclic:          false,
	}
}

// adcChannel is the per-ADC state: the latest atomically-mirrored value
// plus its optional notify callback (spec §3.3 "adcs[N_ADC]").
type adcChannel struct {
	mu    sync.Mutex // guards value+hasValue so "changed" comparisons are race-free
	value int32
	has   bool
	notify func(int32)
}

// adcWaveform is the per-channel accumulating buffer for incoming AdcWf
// chunks (spec §3.3 "adc_wfs[N_ADC]", §4.3 "ADC waveform aggregation").
type adcWaveform struct {
	mu         sync.Mutex
	data       []int32
	windowSize int
	notify     func([]int32)
}

// dacWaveform is the double-buffered outgoing DAC waveform (spec §3.3
// "dac_wf", §4.3 "dac_wf double-buffering"), grounded on
// original_source/app/src/device.hpp's fill/try_swap/set_waveform,
// generalized from that file's 3-slot triple buffer to front/back.
type dacWaveform struct {
	mu        sync.Mutex
	front     []int32
	back      []int32
	pos       int
	backReady bool
	armed     bool
}

// Device is the application-side proxy for the MCU (spec §4.3).
type Device struct {
	ch      *channel.Channel
	cfg     Config
	logger  *logging.Logger
	metrics MetricsRecorder

	adcs [NAdc]adcChannel
	din  struct {
		mu     sync.Mutex
		value  uint8
		has    bool
		notify func(uint8)
	}
	adcWfs [NAdc]adcWaveform
	dacWf  dacWaveform

	periodMu sync.Mutex
	period   time.Duration

	sendMu      sync.Mutex
	dacValue    int32
	dacPending  int // count of SetDac calls folded into dacValue since last send
	doutBits    uint8
	doutDirty   bool
	hasDacWfReq bool
	wake        chan struct{}

	onFatal func(error)

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	coalesceMu sync.Mutex
	// dacCoalesceCount counts SetDac calls folded into an already-pending
	// DacSet rather than starting a fresh one (spec §8 property 3).
	dacCoalesceCount int
}

// DacCoalesceCount returns how many SetDac calls have been folded into an
// already-pending DacSet rather than emitting a separate message, since
// the device was created (spec §8 property 3).
func (d *Device) DacCoalesceCount() int {
	d.coalesceMu.Lock()
	defer d.coalesceMu.Unlock()
	return d.dacCoalesceCount
}

// New constructs a Device over ch. The device does not start its
// goroutines until Start is called (spec §3.5 "constructed... started
// once, stopped once, and never reused").
func New(ch *channel.Channel, cfg Config, logger *logging.Logger) *Device {
	if logger == nil {
		logger = logging.Default()
	}
	period := cfg.AdcReqPeriod
	if period <= 0 {
		period = time.Second / constants.DefaultAdcReqHz
	}
	return &Device{
		ch:     ch,
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		period: period,
	}
}

// SetAdcReqPeriod sets the ADC-request poll frequency, clamped to the
// 1-10 Hz range (spec §4.5 "scan_freq", §8). It takes effect the next
// time the send thread recomputes its wake deadline.
func (d *Device) SetAdcReqPeriod(hz float64) {
	if hz < constants.MinScanFreqHz {
		hz = constants.MinScanFreqHz
	}
	if hz > constants.MaxScanFreqHz {
		hz = constants.MaxScanFreqHz
	}
	d.periodMu.Lock()
	d.period = time.Duration(float64(time.Second) / hz)
	d.periodMu.Unlock()
}

// AdcReqPeriod returns the current ADC-request poll period.
func (d *Device) AdcReqPeriod() time.Duration {
	d.periodMu.Lock()
	defer d.periodMu.Unlock()
	return d.period
}

// SetMetrics wires m in to record DAC setpoint coalescing. Safe to call
// before Start.
func (d *Device) SetMetrics(m MetricsRecorder) { d.metrics = m }

// OnFatal registers the hook invoked when a non-timeout channel error
// terminates the device (spec §4.3 "Failure": "surface the failure to the
// embedding process and terminate cleanly", not a panic).
func (d *Device) OnFatal(fn func(error)) { d.onFatal = fn }

// OnAdcChange arms the notify callback for adcs[i] (spec §4.5, §8 property
// 5: fires at most once per received AdcVal that changes the value).
func (d *Device) OnAdcChange(i int, cb func(int32)) {
	d.adcs[i].mu.Lock()
	d.adcs[i].notify = cb
	d.adcs[i].mu.Unlock()
}

// OnDinChange arms the notify callback for din.
func (d *Device) OnDinChange(cb func(uint8)) {
	d.din.mu.Lock()
	d.din.notify = cb
	d.din.mu.Unlock()
}

// OnAdcWfWindow arms the notify callback fired when channel i's
// accumulated AdcWf buffer reaches its configured window size (spec §4.3
// "ADC waveform aggregation").
func (d *Device) OnAdcWfWindow(i int, cb func([]int32)) {
	d.adcWfs[i].mu.Lock()
	d.adcWfs[i].notify = cb
	d.adcWfs[i].mu.Unlock()
}

// SetAdcWfWindow sets the number of samples channel i must accumulate
// before the notify callback fires and a Read drains a full window (spec
// §3.3, §8 "Window drain").
func (d *Device) SetAdcWfWindow(i int, n int) {
	d.adcWfs[i].mu.Lock()
	d.adcWfs[i].windowSize = n
	d.adcWfs[i].mu.Unlock()
}

// ReadAdcWf drains exactly windowSize elements from channel i's
// accumulator, or returns false if fewer than windowSize are buffered
// (spec §8 "Window drain": reads leave no partial window, excess samples
// remain for the next read).
func (d *Device) ReadAdcWf(i int) ([]int32, bool) {
	wf := &d.adcWfs[i]
	wf.mu.Lock()
	defer wf.mu.Unlock()
	if wf.windowSize <= 0 || len(wf.data) < wf.windowSize {
		return nil, false
	}
	out := make([]int32, wf.windowSize)
	copy(out, wf.data[:wf.windowSize])
	wf.data = wf.data[wf.windowSize:]
	return out, true
}

// ReadAdc returns the most recently received value for channel i.
func (d *Device) ReadAdc(i int) int32 {
	d.adcs[i].mu.Lock()
	defer d.adcs[i].mu.Unlock()
	return d.adcs[i].value
}

// ReadDin returns the most recently received digital-input word.
func (d *Device) ReadDin() uint8 {
	d.din.mu.Lock()
	defer d.din.mu.Unlock()
	return d.din.value
}

// SetDac records a new pending DAC setpoint. Rapid successive calls
// before the send thread next wakes are coalesced: only the latest value
// is ever sent (spec §4.3 "Scheduling and ordering", §8 property 3).
func (d *Device) SetDac(v int32) {
	d.sendMu.Lock()
	d.dacValue = v
	if d.dacPending > 0 {
		d.coalesceMu.Lock()
		d.dacCoalesceCount++
		d.coalesceMu.Unlock()
		if d.metrics != nil {
			d.metrics.RecordDacCoalesce()
		}
	}
	d.dacPending++
	d.sendMu.Unlock()
	d.signalSend()
}

// SetDout records a new pending digital-output word, masked to the low
// four bits (spec §3.3, §8 "dout input masked to four bits"). Bits 4..7
// are dropped and a warning is logged when any of them were set.
func (d *Device) SetDout(bits uint8) {
	masked := bits & constants.DoutBitMask
	if masked != bits {
		d.logger.Warn("device: dout bits above nibble dropped", "raw", bits, "masked", masked)
	}
	d.sendMu.Lock()
	d.doutBits = masked
	d.doutDirty = true
	d.sendMu.Unlock()
	d.signalSend()
}

// WriteDacWf installs a new outgoing DAC waveform. If no waveform is
// currently armed, elements becomes the front buffer immediately
// (armed transitions false->true, spec §4.3 invariant). Otherwise it is
// staged as the back buffer and swapped in once the front buffer is
// exhausted.
func (d *Device) WriteDacWf(elements []int32) {
	buf := make([]int32, len(elements))
	copy(buf, elements)

	wf := &d.dacWf
	wf.mu.Lock()
	if !wf.armed {
		wf.front = buf
		wf.pos = 0
		wf.armed = true
	} else {
		wf.back = buf
		wf.backReady = true
	}
	wf.mu.Unlock()
	d.signalSend()
}

func (d *Device) signalSend() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start launches recvLoop and sendLoop (spec §4.3 "Threads": exactly
// two). It must be called at most once.
func (d *Device) Start(ctx context.Context) {
	d.wg.Add(2)
	go d.recvLoop(ctx)
	go d.sendLoop(ctx)
}

// Stop signals both loops to exit and waits for them to return. It is
// idempotent (spec §4.3 "Cancellation").
func (d *Device) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.signalSend()
	})
	d.wg.Wait()
}

// recvLoop blocks on channel.Receive with a tick timeout so it notices
// shutdown promptly (spec §4.3, §5). Received messages update in-process
// state and fire notify callbacks without holding any device lock.
func (d *Device) recvLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		default:
		}

		tickCtx, cancel := context.WithTimeout(ctx, d.cfg.RecvTickTimeout)
		msg, err := d.ch.Receive(tickCtx)
		cancel()
		if err != nil {
			if errs.IsCode(err, errs.CodeTimedOut) {
				continue
			}
			d.logger.Errorf("device: recv loop fatal error: %v", err)
			if d.onFatal != nil {
				d.onFatal(err)
			}
			return
		}

		d.handleMessage(msg)
	}
}

func (d *Device) handleMessage(msg proto.Message) {
	switch m := msg.(type) {
	case proto.AdcVal:
		for i, v := range m.Values {
			d.updateAdc(i, v)
		}
	case proto.DinVal:
		d.updateDin(m.Bits)
	case proto.AdcWf:
		d.appendAdcWf(int(m.Index), m.Elements)
	case proto.DacWfReq:
		d.sendMu.Lock()
		d.hasDacWfReq = true
		d.sendMu.Unlock()
		d.signalSend()
	case proto.Debug:
		d.logger.Debugf("mcu debug: %s", m.Message)
	case proto.ErrorMsg:
		d.logger.Errorf("mcu error %d: %s", m.Code, m.Message)
	case proto.None:
	default:
		d.logger.Warnf("device: unexpected message on recv loop: %T", msg)
	}
}

func (d *Device) updateAdc(i int, v int32) {
	ch := &d.adcs[i]
	ch.mu.Lock()
	changed := !ch.has || ch.value != v
	ch.value = v
	ch.has = true
	cb := ch.notify
	ch.mu.Unlock()
	if changed && cb != nil {
		cb(v)
	}
}

func (d *Device) updateDin(bits uint8) {
	d.din.mu.Lock()
	changed := !d.din.has || d.din.value != bits
	d.din.value = bits
	d.din.has = true
	cb := d.din.notify
	d.din.mu.Unlock()
	if changed && cb != nil {
		cb(bits)
	}
}

func (d *Device) appendAdcWf(i int, elements []int32) {
	if i < 0 || i >= NAdc {
		return
	}
	wf := &d.adcWfs[i]
	wf.mu.Lock()
	wf.data = append(wf.data, elements...)
	var drained []int32
	var cb func([]int32)
	if wf.windowSize > 0 && len(wf.data) >= wf.windowSize {
		drained = make([]int32, wf.windowSize)
		copy(drained, wf.data[:wf.windowSize])
		cb = wf.notify
	}
	wf.mu.Unlock()
	if drained != nil && cb != nil {
		cb(drained)
	}
}

// sendLoop is the condition-variable-style wake-with-deadline scheduler
// (spec §4.3 "Threads"). It emits exactly one Start, then wakes either on
// its AdcReq deadline or when signalSend is called, never accumulating
// drift across missed deadlines (spec §4.3 "Scheduling and ordering").
func (d *Device) sendLoop(ctx context.Context) {
	defer d.wg.Done()

	startCtx, cancel := context.WithTimeout(ctx, d.cfg.RecvTickTimeout)
	err := d.ch.Send(startCtx, proto.Start{})
	cancel()
	if err != nil {
		d.logger.Errorf("device: failed to send Start: %v", err)
		if d.onFatal != nil {
			d.onFatal(err)
		}
		return
	}

	nextWake := time.Now().Add(d.AdcReqPeriod())
	timer := time.NewTimer(time.Until(nextWake))
	defer timer.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-timer.C:
			d.onWake(ctx, true)
			nextWake = nextWake.Add(d.AdcReqPeriod())
			resetTimer(timer, time.Until(nextWake))
		case <-d.wake:
			d.onWake(ctx, false)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(time.Until(nextWake))
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

// onWake performs one send-thread wake cycle: coalesced DacSet/DoutSet,
// at most one DacWf per DacWfReq, and (on a periodic wake) AdcReq.
func (d *Device) onWake(ctx context.Context, periodic bool) {
	d.sendMu.Lock()
	dacValue, dacDirty := d.dacValue, d.dacPending > 0
	doutBits, doutDirty := d.doutBits, d.doutDirty
	hasReq := d.hasDacWfReq
	d.dacPending = 0
	d.doutDirty = false
	d.hasDacWfReq = false
	d.sendMu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.RecvTickTimeout)
	defer cancel()

	if dacDirty {
		if err := d.ch.Send(sendCtx, proto.DacSet{Value: dacValue}); err != nil {
			d.fail(err)
			return
		}
	}
	if doutDirty {
		if err := d.ch.Send(sendCtx, proto.DoutSet{Bits: doutBits}); err != nil {
			d.fail(err)
			return
		}
	}
	if hasReq {
		if chunk, ok := d.nextDacWfChunk(); ok {
			if err := d.ch.Send(sendCtx, proto.DacWf{Elements: chunk}); err != nil {
				d.fail(err)
				return
			}
		}
	}
	if periodic {
		if err := d.ch.Send(sendCtx, proto.AdcReq{}); err != nil {
			d.fail(err)
			return
		}
	}
}

func (d *Device) fail(err error) {
	if errs.IsCode(err, errs.CodeTimedOut) {
		return
	}
	d.logger.Errorf("device: send loop fatal error: %v", err)
	if d.onFatal != nil {
		d.onFatal(err)
	}
}

// nextDacWfChunk pulls up to one message's worth of elements from the
// front of the armed DAC waveform, swapping in the back buffer once the
// front is exhausted (spec §4.3 invariant). Returns ok=false if no
// waveform is armed (legal: an empty DacWf means "no waveform data this
// burst", spec §4.1).
func (d *Device) nextDacWfChunk() ([]int32, bool) {
	wf := &d.dacWf
	wf.mu.Lock()
	defer wf.mu.Unlock()

	if !wf.armed {
		return nil, false
	}

	maxElems := codec.MaxWfElements(d.cfg.MaxMessageSize)
	if wf.pos >= len(wf.front) {
		if wf.backReady {
			wf.front = wf.back
			wf.back = nil
			wf.backReady = false
			wf.pos = 0
		} else if d.cfg.Cyclic {
			wf.pos = 0
		} else {
			wf.armed = false
			return []int32{}, true
		}
	}

	end := wf.pos + maxElems
	if end > len(wf.front) {
		end = len(wf.front)
	}
	chunk := make([]int32, end-wf.pos)
	copy(chunk, wf.front[wf.pos:end])
	wf.pos = end
	return chunk, true
}
