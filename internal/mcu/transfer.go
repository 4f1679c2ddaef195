package mcu

import (
	"context"
	"sync"

	"github.com/binp-dev/ferrite-core/internal/channel"
	"github.com/binp-dev/ferrite-core/internal/codec"
	"github.com/binp-dev/ferrite-core/internal/errs"
	"github.com/binp-dev/ferrite-core/internal/logging"
	"github.com/binp-dev/ferrite-core/internal/proto"
)

// TransferLoop is the MCU's RPMSG task (spec §4.4 "Three tasks"): it owns
// the MCU-side end of the message channel, applies DacSet/DoutSet to
// State's dac_setpoint/dout_bits (SamplingLoop also writes dac_setpoint
// while a DAC waveform source is wired in, see SetDacWfSource), and
// maintains the local outgoing DAC waveform ring fed by the app's DacWf
// messages.
type TransferLoop struct {
	ch     *channel.Channel
	state  *State
	stats  *Stats
	cfg    Config
	logger *logging.Logger

	onFatal func(error)

	ringMu     sync.Mutex
	ring       []int32
	reqPending bool // sticky: a DacWfReq is outstanding, don't send another

	adcWfMu   sync.Mutex
	adcWfRing [NAdc][]int32 // per-channel outgoing AdcWf elements awaiting flush

	wake chan struct{}
	done chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTransferLoop constructs a TransferLoop over ch, publishing DAC/dout
// mutations into state and answering AdcReq from stats.
func NewTransferLoop(ch *channel.Channel, state *State, stats *Stats, cfg Config, logger *logging.Logger) *TransferLoop {
	if logger == nil {
		logger = logging.Default()
	}
	return &TransferLoop{
		ch:     ch,
		state:  state,
		stats:  stats,
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// OnFatal registers the hook invoked when a non-timeout channel error
// terminates the loop (spec §4.3/§4.4 "Failure": surface, don't panic).
func (t *TransferLoop) OnFatal(fn func(error)) { t.onFatal = fn }

// Start launches the recv/send goroutines. It must be called at most once.
func (t *TransferLoop) Start(ctx context.Context) {
	t.wg.Add(2)
	go t.recvLoop(ctx)
	go t.sendLoop(ctx)
}

// Stop signals both loops to exit and waits for them to return. Idempotent.
func (t *TransferLoop) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.signalSend()
	})
	t.wg.Wait()
}

func (t *TransferLoop) signalSend() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// recvLoop answers Start with the boot handshake Debug reply (spec §8
// "Boot handshake"), applies DacSet/DoutSet/DacWf to local state, and
// answers AdcReq inline with the latest recorded AdcVal.
func (t *TransferLoop) recvLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		default:
		}

		tickCtx, cancel := context.WithTimeout(ctx, t.cfg.RecvTickTimeout)
		msg, err := t.ch.Receive(tickCtx)
		cancel()
		if err != nil {
			if errs.IsCode(err, errs.CodeTimedOut) {
				continue
			}
			t.logger.Errorf("mcu: recv loop fatal error: %v", err)
			if t.onFatal != nil {
				t.onFatal(err)
			}
			return
		}

		t.handleMessage(ctx, msg)
	}
}

func (t *TransferLoop) handleMessage(ctx context.Context, msg proto.Message) {
	switch m := msg.(type) {
	case proto.Start:
		t.reply(ctx, proto.Debug{Message: "hello world!"})
	case proto.Stop:
	case proto.DacSet:
		t.state.SetDac(m.Value)
	case proto.DoutSet:
		t.state.SetDout(m.Bits)
	case proto.DacWf:
		t.appendDacWf(m.Elements)
	case proto.AdcReq:
		var vals [NAdc]int32
		for i := range vals {
			vals[i] = t.stats.Last(i)
		}
		t.reply(ctx, proto.AdcVal{Values: vals})
	case proto.None:
	default:
		t.logger.Warnf("mcu: unexpected message on recv loop: %T", msg)
	}
}

// reply sends msg with its own bounded deadline, independent of the
// caller's (possibly long-lived) ctx, matching internal/device's
// per-send timeout idiom.
func (t *TransferLoop) reply(ctx context.Context, msg proto.Message) {
	sendCtx, cancel := context.WithTimeout(ctx, t.cfg.RecvTickTimeout)
	defer cancel()
	if err := t.ch.Send(sendCtx, msg); err != nil {
		t.fail(err)
	}
}

// appendDacWf appends elements to the local outgoing ring (spec §4.4 "DAC
// waveform request cadence": "the MCU appends received elements to its
// local ring"), clearing reqPending once the ring has refilled past its
// low-water mark.
func (t *TransferLoop) appendDacWf(elements []int32) {
	if len(elements) == 0 {
		return
	}
	t.ringMu.Lock()
	t.ring = append(t.ring, elements...)
	if len(t.ring) >= t.cfg.DacWfLowWaterMark {
		t.reqPending = false
	}
	t.ringMu.Unlock()
}

// NextDacValue is called once per sample by SamplingLoop.Run to
// advance the DAC waveform ring by one element, if one is armed and
// available; the caller is responsible for pushing the result into
// State via SetDac. If the ring underflows, the last DAC value holds
// (spec §4.4 "DAC waveform request cadence": "if the ring underflows, it
// holds the last DAC value") and a DacWfReq is scheduled if one is not
// already outstanding.
func (t *TransferLoop) NextDacValue() (int32, bool) {
	t.ringMu.Lock()
	var v int32
	var ok bool
	if len(t.ring) > 0 {
		v = t.ring[0]
		t.ring = t.ring[1:]
		ok = true
	}
	needsReq := len(t.ring) < t.cfg.DacWfLowWaterMark && !t.reqPending
	if needsReq {
		t.reqPending = true
	}
	t.ringMu.Unlock()

	if needsReq {
		t.signalSend()
	}
	return v, ok
}

// PushAdcWfSample queues one averaged ADC reading for channel i to be
// flushed out as (part of) an AdcWf message (spec §4.5/§6.4 "aaiN"). Called
// by SamplingLoop.Run once per accumulation window; SamplingLoop is the
// sole caller, so this is the RPMSG task's only other mutation source
// besides its own handleMessage (spec §4.4 "Concurrency" exception,
// symmetric to SetDacWfSource's dac_setpoint exception).
func (t *TransferLoop) PushAdcWfSample(i int, v int32) {
	if i < 0 || i >= NAdc {
		return
	}
	t.adcWfMu.Lock()
	t.adcWfRing[i] = append(t.adcWfRing[i], v)
	t.adcWfMu.Unlock()
	t.signalSend()
}

// flushAdcWf sends one AdcWf message per channel with queued samples,
// chunked to fit cfg.MaxMessageSize (spec §4.1 edge case).
func (t *TransferLoop) flushAdcWf(ctx context.Context) error {
	maxElems := codec.MaxAdcWfElements(t.cfg.MaxMessageSize)
	for i := 0; i < NAdc; i++ {
		t.adcWfMu.Lock()
		n := len(t.adcWfRing[i])
		if n > maxElems {
			n = maxElems
		}
		var chunk []int32
		if n > 0 {
			chunk = make([]int32, n)
			copy(chunk, t.adcWfRing[i][:n])
			t.adcWfRing[i] = t.adcWfRing[i][n:]
		}
		t.adcWfMu.Unlock()
		if chunk == nil {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, t.cfg.RecvTickTimeout)
		err := t.ch.Send(sendCtx, proto.AdcWf{Index: uint8(i), Elements: chunk})
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// sendLoop emits DacWfReq whenever NextDacValue has marked one pending
// (spec §4.4 "DAC waveform request cadence"), coalescing bursts of
// ring-underflow signals the same way the app's send_loop coalesces
// DacSet/DoutSet (spec §4.3 "Scheduling and ordering"), and flushes any
// queued outgoing AdcWf samples (spec §4.5/§6.4 "aaiN").
func (t *TransferLoop) sendLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case <-t.wake:
			t.ringMu.Lock()
			pending := t.reqPending
			t.ringMu.Unlock()
			if pending {
				sendCtx, cancel := context.WithTimeout(ctx, t.cfg.RecvTickTimeout)
				err := t.ch.Send(sendCtx, proto.DacWfReq{})
				cancel()
				if err != nil {
					t.fail(err)
					return
				}
			}
			if err := t.flushAdcWf(ctx); err != nil {
				t.fail(err)
				return
			}
		}
	}
}

func (t *TransferLoop) fail(err error) {
	if errs.IsCode(err, errs.CodeTimedOut) {
		return
	}
	t.logger.Errorf("mcu: send loop fatal error: %v", err)
	if t.onFatal != nil {
		t.onFatal(err)
	}
}
