package ferritecore

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the AdcReq->AdcVal round-trip latency histogram
// buckets in nanoseconds. Buckets cover from 1us to 10s with logarithmic
// spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks countable protocol and device events for a running
// app-side or MCU-side process. Fields are atomic so any number of
// goroutines (recv/send loops, sampling loop) can update them without a
// mutex.
type Metrics struct {
	// Message-level counters (internal/channel, internal/device, internal/mcu).
	MessagesSent     atomic.Uint64 // Messages handed to transport.Send
	MessagesReceived atomic.Uint64 // Messages successfully decoded by Receive
	ParseErrors      atomic.Uint64 // Frames dropped during poison-and-drain resync
	ChannelTimeouts  atomic.Uint64 // Per-tick Receive/Send timeouts (not fatal)

	// MCU sampling counters (internal/mcu).
	CRCFailures atomic.Uint64 // Sample frames whose trailing CRC16 didn't match
	AdcSamples  atomic.Uint64 // Completed 26-byte SPI transfers

	// App-side coalescing counter (internal/device), per spec §8 property 3.
	DacCoalesceCount atomic.Uint64 // SetDac calls folded into the last pending DacSet

	// Round-trip latency tracking (AdcReq send to AdcVal receive).
	TotalLatencyNs atomic.Uint64
	LatencyOpCount atomic.Uint64

	// Latency histogram buckets (cumulative): bucket[i] counts round trips
	// with latency <= LatencyBuckets[i].
	LatencyHistogramBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // Process start timestamp (UnixNano)
	StopTime  atomic.Int64 // Process stop timestamp (UnixNano), 0 while running
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSend records a message handed to the transport.
func (m *Metrics) RecordSend() { m.MessagesSent.Add(1) }

// RecordReceive records a message successfully decoded off the wire.
func (m *Metrics) RecordReceive() { m.MessagesReceived.Add(1) }

// RecordParseError records a frame dropped during resync.
func (m *Metrics) RecordParseError() { m.ParseErrors.Add(1) }

// RecordTimeout records a per-tick Receive/Send timeout.
func (m *Metrics) RecordTimeout() { m.ChannelTimeouts.Add(1) }

// RecordCRCFailure records a sample frame with a mismatched trailing CRC16.
func (m *Metrics) RecordCRCFailure() { m.CRCFailures.Add(1) }

// RecordAdcSample records one completed SPI transfer.
func (m *Metrics) RecordAdcSample() { m.AdcSamples.Add(1) }

// RecordDacCoalesce records one SetDac call folded into a pending DacSet
// instead of producing its own wire message.
func (m *Metrics) RecordDacCoalesce() { m.DacCoalesceCount.Add(1) }

// RecordRoundTrip records the latency of one AdcReq->AdcVal round trip and
// updates the cumulative histogram buckets.
func (m *Metrics) RecordRoundTrip(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.LatencyOpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHistogramBuckets[i].Add(1)
		}
	}
}

// Stop marks the process as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics for
// reporting (logging, /metrics scraping via internal/exporter).
type MetricsSnapshot struct {
	MessagesSent     uint64
	MessagesReceived uint64
	ParseErrors      uint64
	ChannelTimeouts  uint64
	CRCFailures      uint64
	AdcSamples       uint64
	DacCoalesceCount uint64

	AvgRoundTripNs uint64
	UptimeNs       uint64

	RoundTripP50Ns  uint64
	RoundTripP99Ns  uint64
	RoundTripP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		MessagesSent:     m.MessagesSent.Load(),
		MessagesReceived: m.MessagesReceived.Load(),
		ParseErrors:      m.ParseErrors.Load(),
		ChannelTimeouts:  m.ChannelTimeouts.Load(),
		CRCFailures:      m.CRCFailures.Load(),
		AdcSamples:       m.AdcSamples.Load(),
		DacCoalesceCount: m.DacCoalesceCount.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.LatencyOpCount.Load()
	if opCount > 0 {
		snap.AvgRoundTripNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHistogramBuckets[i].Load()
	}

	if opCount > 0 {
		snap.RoundTripP50Ns = m.calculatePercentile(0.50)
		snap.RoundTripP99Ns = m.calculatePercentile(0.99)
		snap.RoundTripP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the round-trip latency at the given
// percentile (0.0-1.0) using linear interpolation between histogram
// buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.LatencyOpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyHistogramBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHistogramBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters. Useful for testing.
func (m *Metrics) Reset() {
	m.MessagesSent.Store(0)
	m.MessagesReceived.Store(0)
	m.ParseErrors.Store(0)
	m.ChannelTimeouts.Store(0)
	m.CRCFailures.Store(0)
	m.AdcSamples.Store(0)
	m.DacCoalesceCount.Store(0)
	m.TotalLatencyNs.Store(0)
	m.LatencyOpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyHistogramBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}
