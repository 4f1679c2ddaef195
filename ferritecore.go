// Package ferritecore provides the top-level API for wiring a power-supply
// controller's two sides together: the application-side Device proxy and
// the MCU-side sampling/transfer loop pair, each over one MessageChannel.
// It is a thin facade that assembles internal packages into a runnable
// session and hands back a value whose lifecycle is Start-once/Stop-once.
package ferritecore

import (
	"context"

	"github.com/binp-dev/ferrite-core/internal/channel"
	"github.com/binp-dev/ferrite-core/internal/device"
	"github.com/binp-dev/ferrite-core/internal/logging"
	"github.com/binp-dev/ferrite-core/internal/mcu"
	"github.com/binp-dev/ferrite-core/internal/transport"
)

// AppConfig holds the knobs for an application-side Session.
type AppConfig struct {
	Transport      transport.Transport
	MaxMessageSize int
	Device         device.Config
	Logger         *logging.Logger
}

// DefaultAppConfig returns the spec's stated defaults layered over t.
func DefaultAppConfig(t transport.Transport) AppConfig {
	return AppConfig{
		Transport:      t,
		MaxMessageSize: DefaultMaxMessageSize,
		Device:         device.DefaultConfig(),
	}
}

// AppSession bundles the application-side channel, device proxy, and
// metrics for one controller connection (spec §4.3).
type AppSession struct {
	Channel *channel.Channel
	Device  *device.Device
	Metrics *Metrics
}

// NewAppSession constructs an AppSession over cfg.Transport. The session's
// goroutines do not start until Start is called. Every Send/Receive,
// coalesced SetDac, and parse/timeout event on this session feeds the
// returned Metrics, and the session's logger is tagged with a fresh run ID
// so its lines can be correlated with one Device lifetime.
func NewAppSession(cfg AppConfig) *AppSession {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithRunID(logging.NewRunID())

	cfg.Device.MaxMessageSize = cfg.MaxMessageSize

	metrics := NewMetrics()
	ch := channel.New(cfg.Transport, cfg.MaxMessageSize, true, logger)
	ch.SetMetrics(metrics)
	dev := device.New(ch, cfg.Device, logger)
	dev.SetMetrics(metrics)
	return &AppSession{Channel: ch, Device: dev, Metrics: metrics}
}

// Start launches the Device's recv/send goroutines.
func (s *AppSession) Start(ctx context.Context) { s.Device.Start(ctx) }

// Stop waits for the Device's goroutines to exit and marks the session's
// metrics stopped.
func (s *AppSession) Stop() {
	s.Device.Stop()
	s.Metrics.Stop()
}

// McuConfig holds the knobs for an MCU-side Session.
type McuConfig struct {
	Transport      transport.Transport
	MaxMessageSize int
	HAL            mcu.HAL
	Mcu            mcu.Config
	Logger         *logging.Logger
}

// DefaultMcuConfig returns the spec's stated defaults layered over t and
// hal.
func DefaultMcuConfig(t transport.Transport, hal mcu.HAL) McuConfig {
	return McuConfig{
		Transport:      t,
		MaxMessageSize: DefaultMaxMessageSize,
		HAL:            hal,
		Mcu:            mcu.DefaultConfig(),
	}
}

// McuSession bundles the MCU-side channel, state, stats, sampling loop,
// transfer loop, and metrics for one controller connection (spec §4.4).
// SamplingLoop is wired to consult TransferLoop's outgoing DAC waveform
// ring every sample (see mcu.SetDacWfSource's doc, DESIGN.md "DAC
// waveform stepping").
type McuSession struct {
	Channel      *channel.Channel
	State        *mcu.State
	Stats        *mcu.Stats
	SamplingLoop *mcu.SamplingLoop
	TransferLoop *mcu.TransferLoop
	Metrics      *Metrics
}

// NewMcuSession constructs an McuSession over cfg.Transport and cfg.HAL.
// Every Send/Receive, CRC failure, and raw ADC sample on this session feeds
// the returned Metrics, and the session's logger is tagged with a fresh run
// ID so its lines can be correlated with one MCU simulation run.
func NewMcuSession(cfg McuConfig) *McuSession {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithRunID(logging.NewRunID())

	cfg.Mcu.MaxMessageSize = cfg.MaxMessageSize

	metrics := NewMetrics()
	ch := channel.New(cfg.Transport, cfg.MaxMessageSize, false, logger)
	ch.SetMetrics(metrics)
	state := &mcu.State{}
	stats := mcu.NewStats()
	sampling := mcu.NewSamplingLoop(cfg.HAL, state, stats, cfg.Mcu, logger)
	sampling.SetMetrics(metrics)
	transfer := mcu.NewTransferLoop(ch, state, stats, cfg.Mcu, logger)
	sampling.SetDacWfSource(transfer)
	sampling.SetAdcWfSink(transfer)
	return &McuSession{
		Channel:      ch,
		State:        state,
		Stats:        stats,
		SamplingLoop: sampling,
		TransferLoop: transfer,
		Metrics:      metrics,
	}
}

// Start launches the transfer loop's recv/send goroutines and the
// sampling loop's Run, returning once both goroutines are spawned.
// SamplingLoop.Run's own error return is reported to onFatal, matching
// TransferLoop's onFatal convention, rather than returned here: both
// loops are meant to run for the session's lifetime, not be awaited.
func (s *McuSession) Start(ctx context.Context, onFatal func(error)) {
	s.TransferLoop.OnFatal(onFatal)
	s.TransferLoop.Start(ctx)
	go func() {
		if err := s.SamplingLoop.Run(ctx); err != nil && onFatal != nil {
			onFatal(err)
		}
	}()
}

// Stop waits for the transfer loop's goroutines to exit and marks the
// session's metrics stopped. The sampling loop's Run exits on its own
// once ctx is done; callers cancel ctx before calling Stop.
func (s *McuSession) Stop() {
	s.TransferLoop.Stop()
	s.Metrics.Stop()
}
