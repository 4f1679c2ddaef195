// Command pscmcu is the MCU-side simulation entrypoint: it wires a
// SimHAL-backed sampling loop and transfer loop over a transport, ticking
// the simulated sample-ready edge at a configurable rate, standing in for
// the real GPIO/SPI hardware path (internal/mcu/hal_gpio_linux.go).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	ferritecore "github.com/binp-dev/ferrite-core"
	"github.com/binp-dev/ferrite-core/internal/logging"
	"github.com/binp-dev/ferrite-core/internal/mcu"
	"github.com/binp-dev/ferrite-core/internal/transport"
)

func main() {
	var (
		maxMsg     = pflag.IntP("max-message-size", "m", ferritecore.DefaultMaxMessageSize, "Maximum wire message size in bytes.")
		sampleHz   = pflag.Float64P("sample-hz", "s", 1000, "Simulated sample-ready edge rate in Hz.")
		verbose    = pflag.BoolP("verbose", "v", false, "Verbose (debug-level) logging.")
		metricsBnd = pflag.StringP("metrics-addr", "a", "", "If set, serve Prometheus metrics at this address (e.g. :9101).")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pscmcu [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logCfg)
	logging.SetDefault(logger)

	// Like pscapp, this entrypoint's own transport is a single in-process
	// Mailbox with no peer attached.
	mailbox := transport.NewMailbox(*maxMsg, 8*(*maxMsg))
	hal := mcu.NewSimHAL()

	cfg := ferritecore.DefaultMcuConfig(mailbox, hal)
	cfg.MaxMessageSize = *maxMsg
	cfg.Logger = logger

	session := ferritecore.NewMcuSession(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session.Start(ctx, func(err error) {
		logger.Errorf("pscmcu: fatal error: %v", err)
	})
	defer session.Stop()

	stopTicker := driveSampleClock(ctx, hal, *sampleHz)
	defer stopTicker()

	var metricsServer *metricsServerHandle
	if *metricsBnd != "" {
		metricsServer = startMetrics(*metricsBnd, session.Metrics, logger)
		defer metricsServer.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("pscmcu: received shutdown signal")
}

// driveSampleClock fires hal.Trigger at hz until ctx is done, simulating
// the analog board's periodic sample-ready edge (spec §4.4 "ISR
// contract"). Returns a func that stops the ticker early.
func driveSampleClock(ctx context.Context, hal *mcu.SimHAL, hz float64) func() {
	if hz <= 0 {
		hz = 1000
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / hz))
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				hal.Trigger()
			}
		}
	}()
	return func() { close(done) }
}
