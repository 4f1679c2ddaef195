package ferritecore

import (
	"testing"
	"time"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.MessagesSent != 0 || snap.MessagesReceived != 0 {
		t.Fatalf("expected zero initial counters, got %+v", snap)
	}

	m.RecordSend()
	m.RecordSend()
	m.RecordReceive()
	m.RecordParseError()
	m.RecordTimeout()
	m.RecordCRCFailure()
	m.RecordAdcSample()
	m.RecordDacCoalesce()
	m.RecordDacCoalesce()
	m.RecordDacCoalesce()

	snap = m.Snapshot()
	if snap.MessagesSent != 2 {
		t.Errorf("expected 2 messages sent, got %d", snap.MessagesSent)
	}
	if snap.MessagesReceived != 1 {
		t.Errorf("expected 1 message received, got %d", snap.MessagesReceived)
	}
	if snap.ParseErrors != 1 {
		t.Errorf("expected 1 parse error, got %d", snap.ParseErrors)
	}
	if snap.ChannelTimeouts != 1 {
		t.Errorf("expected 1 channel timeout, got %d", snap.ChannelTimeouts)
	}
	if snap.CRCFailures != 1 {
		t.Errorf("expected 1 CRC failure, got %d", snap.CRCFailures)
	}
	if snap.AdcSamples != 1 {
		t.Errorf("expected 1 ADC sample, got %d", snap.AdcSamples)
	}
	if snap.DacCoalesceCount != 3 {
		t.Errorf("expected 3 DAC coalesces, got %d", snap.DacCoalesceCount)
	}
}

func TestMetricsRoundTripLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordRoundTrip(1_000_000) // 1ms
	m.RecordRoundTrip(2_000_000) // 2ms

	snap := m.Snapshot()
	expectedAvgNs := uint64(1_500_000)
	if snap.AvgRoundTripNs != expectedAvgNs {
		t.Errorf("expected avg round trip %d ns, got %d ns", expectedAvgNs, snap.AvgRoundTripNs)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1_000_000 {
		t.Errorf("expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1_000_000 {
		t.Errorf("uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordSend()
	m.RecordReceive()
	m.RecordRoundTrip(1_000_000)

	snap := m.Snapshot()
	if snap.MessagesSent == 0 {
		t.Fatal("expected some counters before reset")
	}

	m.Reset()

	snap = m.Snapshot()
	if snap.MessagesSent != 0 || snap.MessagesReceived != 0 || snap.AvgRoundTripNs != 0 {
		t.Errorf("expected all counters zero after reset, got %+v", snap)
	}
}

func TestMetricsHistogramPercentiles(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordRoundTrip(500_000) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordRoundTrip(5_000_000) // 5ms
	}
	m.RecordRoundTrip(50_000_000) // 50ms, the single slowest sample

	snap := m.Snapshot()

	if snap.RoundTripP50Ns < 100_000 || snap.RoundTripP50Ns > 1_000_000 {
		t.Errorf("expected P50 in 100us-1ms range, got %d ns", snap.RoundTripP50Ns)
	}
	if snap.RoundTripP99Ns < 5_000_000 || snap.RoundTripP99Ns > 100_000_000 {
		t.Errorf("expected P99 in 5ms-100ms range, got %d ns", snap.RoundTripP99Ns)
	}

	var totalInBuckets uint64
	for _, c := range snap.LatencyHistogram {
		totalInBuckets += c
	}
	if totalInBuckets == 0 {
		t.Error("expected histogram buckets to be populated")
	}
}
