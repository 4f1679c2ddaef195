// Package exporter wraps the top-level Metrics counters as a Prometheus
// collector, grounded on runZeroInc-sockstats's pkg/exporter: a Collector
// that pulls a live snapshot on every Collect rather than pushing updates
// into prometheus.Counter/Gauge values as they happen.
package exporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshotter is the subset of *ferritecore.Metrics the collector needs.
// Declared as an interface so this package doesn't import the root module,
// which itself imports this package (metrics_exporter.go).
type Snapshotter interface {
	Snapshot() Snapshot
}

// Snapshot mirrors ferritecore.MetricsSnapshot's field set. Kept as a
// separate type (rather than importing the root package) so this package
// has no import cycle risk; the root package's NewCollector adapts
// *ferritecore.Metrics to Snapshotter (metrics_exporter.go).
type Snapshot struct {
	MessagesSent     uint64
	MessagesReceived uint64
	ParseErrors      uint64
	ChannelTimeouts  uint64
	CRCFailures      uint64
	AdcSamples       uint64
	DacCoalesceCount uint64
	AvgRoundTripNs   uint64
	UptimeNs         uint64
}

// Collector implements prometheus.Collector over a Snapshotter, matching
// sockstats exporter.TCPInfoCollector's Describe/Collect split: Describe
// emits static descriptors, Collect re-derives every metric.Metric from a
// fresh snapshot pulled at scrape time.
type Collector struct {
	src    Snapshotter
	prefix string

	messagesSent     *prometheus.Desc
	messagesReceived *prometheus.Desc
	parseErrors      *prometheus.Desc
	channelTimeouts  *prometheus.Desc
	crcFailures      *prometheus.Desc
	adcSamples       *prometheus.Desc
	dacCoalesceCount *prometheus.Desc
	avgRoundTripNs   *prometheus.Desc
	uptimeNs         *prometheus.Desc
}

// NewCollector builds a Collector named with the given metric name prefix
// (e.g. "ferrite_core").
func NewCollector(prefix string, src Snapshotter) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prefix+"_"+name, help, nil, nil)
	}
	return &Collector{
		src:              src,
		prefix:           prefix,
		messagesSent:     desc("messages_sent_total", "Messages handed to the transport."),
		messagesReceived: desc("messages_received_total", "Messages successfully decoded off the wire."),
		parseErrors:      desc("parse_errors_total", "Frames dropped during poison-and-drain resync."),
		channelTimeouts:  desc("channel_timeouts_total", "Per-tick receive/send timeouts."),
		crcFailures:      desc("crc_failures_total", "Sample frames with a mismatched trailing CRC16."),
		adcSamples:       desc("adc_samples_total", "Completed 26-byte SPI transfers."),
		dacCoalesceCount: desc("dac_coalesce_total", "SetDac calls folded into a pending DacSet."),
		avgRoundTripNs:   desc("round_trip_avg_nanoseconds", "Average AdcReq->AdcVal round-trip latency."),
		uptimeNs:         desc("uptime_nanoseconds", "Process uptime."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.messagesSent
	descs <- c.messagesReceived
	descs <- c.parseErrors
	descs <- c.channelTimeouts
	descs <- c.crcFailures
	descs <- c.adcSamples
	descs <- c.dacCoalesceCount
	descs <- c.avgRoundTripNs
	descs <- c.uptimeNs
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	snap := c.src.Snapshot()
	metrics <- prometheus.MustNewConstMetric(c.messagesSent, prometheus.CounterValue, float64(snap.MessagesSent))
	metrics <- prometheus.MustNewConstMetric(c.messagesReceived, prometheus.CounterValue, float64(snap.MessagesReceived))
	metrics <- prometheus.MustNewConstMetric(c.parseErrors, prometheus.CounterValue, float64(snap.ParseErrors))
	metrics <- prometheus.MustNewConstMetric(c.channelTimeouts, prometheus.CounterValue, float64(snap.ChannelTimeouts))
	metrics <- prometheus.MustNewConstMetric(c.crcFailures, prometheus.CounterValue, float64(snap.CRCFailures))
	metrics <- prometheus.MustNewConstMetric(c.adcSamples, prometheus.CounterValue, float64(snap.AdcSamples))
	metrics <- prometheus.MustNewConstMetric(c.dacCoalesceCount, prometheus.CounterValue, float64(snap.DacCoalesceCount))
	metrics <- prometheus.MustNewConstMetric(c.avgRoundTripNs, prometheus.GaugeValue, float64(snap.AvgRoundTripNs))
	metrics <- prometheus.MustNewConstMetric(c.uptimeNs, prometheus.GaugeValue, float64(snap.UptimeNs))
}

var _ prometheus.Collector = (*Collector)(nil)

// Serve registers c against a fresh registry and serves it over HTTP at
// addr until ctx-independent Shutdown is called by the caller (it returns
// the *http.Server so the caller owns its lifecycle, matching spec §4's
// "optional, not on any spec-mandated call path" framing for this
// component).
func Serve(addr string, c *Collector) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux}
}
