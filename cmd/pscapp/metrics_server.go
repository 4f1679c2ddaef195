package main

import (
	"context"
	"net/http"
	"time"

	ferritecore "github.com/binp-dev/ferrite-core"
	"github.com/binp-dev/ferrite-core/internal/exporter"
	"github.com/binp-dev/ferrite-core/internal/logging"
)

// metricsServerHandle owns the lifecycle of the optional /metrics HTTP
// server (internal/exporter is additive-only per SPEC_FULL.md, so its
// failure modes are logged rather than treated as fatal).
type metricsServerHandle struct {
	server *http.Server
	logger *logging.Logger
}

func startMetrics(addr string, m *ferritecore.Metrics, logger *logging.Logger) *metricsServerHandle {
	collector := ferritecore.NewCollector("ferrite_core_app", m)
	server := exporter.Serve(addr, collector)
	h := &metricsServerHandle{server: server, logger: logger}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("pscapp: metrics server stopped: %v", err)
		}
	}()
	logger.Infof("pscapp: serving metrics at http://%s/metrics", addr)
	return h
}

func (h *metricsServerHandle) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = h.server.Shutdown(ctx)
}
