package ferritecore

import "github.com/binp-dev/ferrite-core/internal/exporter"

// exporterAdapter satisfies exporter.Snapshotter without internal/exporter
// needing to import this package.
type exporterAdapter struct{ m *Metrics }

func (a exporterAdapter) Snapshot() exporter.Snapshot {
	s := a.m.Snapshot()
	return exporter.Snapshot{
		MessagesSent:     s.MessagesSent,
		MessagesReceived: s.MessagesReceived,
		ParseErrors:      s.ParseErrors,
		ChannelTimeouts:  s.ChannelTimeouts,
		CRCFailures:      s.CRCFailures,
		AdcSamples:       s.AdcSamples,
		DacCoalesceCount: s.DacCoalesceCount,
		AvgRoundTripNs:   s.AvgRoundTripNs,
		UptimeNs:         s.UptimeNs,
	}
}

// NewCollector wraps m as a Prometheus collector under the given metric
// name prefix (e.g. "ferrite_core_app" or "ferrite_core_mcu").
func NewCollector(prefix string, m *Metrics) *exporter.Collector {
	return exporter.NewCollector(prefix, exporterAdapter{m: m})
}
