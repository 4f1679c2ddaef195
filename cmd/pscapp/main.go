// Command pscapp is the application-side process entrypoint: it wires a
// Device proxy over a transport, resolves a handful of supervisory points
// against it, and optionally serves Prometheus metrics.
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
	"github.com/binp-dev/ferrite-core/internal/points"
	"github.com/binp-dev/ferrite-core/internal/transport"
)

func main() {
	var (
		maxMsg     = pflag.IntP("max-message-size", "m", ferritecore.DefaultMaxMessageSize, "Maximum wire message size in bytes.")
		adcReqHz   = pflag.Float64P("adc-req-hz", "f", ferritecore.DefaultAdcReqHz, "ADC request poll frequency (1-10 Hz).")
		verbose    = pflag.BoolP("verbose", "v", false, "Verbose (debug-level) logging.")
		metricsBnd = pflag.StringP("metrics-addr", "a", "", "If set, serve Prometheus metrics at this address (e.g. :9100).")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pscapp [flags]\n\n")
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

	// A real deployment supplies a shared-memory transport.Transport; this
	// entrypoint's own transport is a single in-process Mailbox with no MCU
	// peer attached. An embedding process that dials the real transport
	// calls ferritecore.NewAppSession directly instead.
	mailbox := transport.NewMailbox(*maxMsg, 8*(*maxMsg))

	cfg := ferritecore.DefaultAppConfig(mailbox)
	cfg.MaxMessageSize = *maxMsg
	cfg.Device.AdcReqPeriod = time.Duration(float64(time.Second) / *adcReqHz)
	cfg.Logger = logger

	session := ferritecore.NewAppSession(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session.Device.OnFatal(func(err error) {
		logger.Errorf("pscapp: device fatal error: %v", err)
		os.Exit(1)
	})

	resolvedPoints := resolvePoints(session, logger)
	logger.Infof("pscapp: resolved %d supervisory points", len(resolvedPoints))

	session.Start(ctx)
	defer session.Stop()

	var metricsServer *metricsServerHandle
	if *metricsBnd != "" {
		metricsServer = startMetrics(*metricsBnd, session.Metrics, logger)
		defer metricsServer.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("pscapp: received shutdown signal")
}

// resolvePoints resolves the fixed set of named supervisory points spec
// §4.5/§6.4 describes against the session's device. A real deployment
// would instead resolve whatever set its supervisory framework configures;
// this entrypoint resolves all of them unconditionally as a smoke test.
func resolvePoints(session *ferritecore.AppSession, logger *logging.Logger) []points.Handler {
	names := []string{"ao0", "do0", "di0", "scan_freq", "ai0", "ai1", "ai2", "ai3", "ai4", "ai5", "aai0", "aao0"}
	handlers := make([]points.Handler, 0, len(names))
	for _, name := range names {
		h, err := points.NewHandler(name, session.Device)
		if err != nil {
			logger.Warnf("pscapp: skipping point %q: %v", name, err)
			continue
		}
		handlers = append(handlers, h)
	}
	return handlers
}
