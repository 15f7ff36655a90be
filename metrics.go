package reactor

import (
	"sync/atomic"
	"time"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// LatencyBuckets defines the Wait/Dispatch latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
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

// Metrics tracks performance and operational statistics for a Reactor.
type Metrics struct {
	WaitCalls     atomic.Uint64
	DispatchCalls atomic.Uint64
	ReadyTotal    atomic.Uint64 // sum of readiness counts returned by Wait

	Accepts  atomic.Uint64
	Connects atomic.Uint64
	Listens  atomic.Uint64
	Closes   atomic.Uint64

	ReadOps  atomic.Uint64
	WriteOps atomic.Uint64

	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	ReadErrors    atomic.Uint64
	WriteErrors   atomic.Uint64
	AcceptErrors  atomic.Uint64
	ConnectErrors atomic.Uint64
	ListenErrors  atomic.Uint64
	CloseErrors   atomic.Uint64

	// ErrorCount counts ObserveError calls of every kind in one counter;
	// the kind itself is not recorded.
	ErrorCount atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

func (m *Metrics) RecordWait(readyCount int, latencyNs uint64) {
	m.WaitCalls.Add(1)
	m.ReadyTotal.Add(uint64(readyCount))
	m.recordLatency(latencyNs)
}

func (m *Metrics) RecordDispatch(callbacksDelivered int, latencyNs uint64) {
	m.DispatchCalls.Add(1)
	_ = callbacksDelivered
	m.recordLatency(latencyNs)
}

func (m *Metrics) RecordRead(bytes uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
}

func (m *Metrics) RecordWrite(bytes uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
}

func (m *Metrics) RecordAccept(success bool) {
	m.Accepts.Add(1)
	if !success {
		m.AcceptErrors.Add(1)
	}
}

func (m *Metrics) RecordConnect(success bool) {
	m.Connects.Add(1)
	if !success {
		m.ConnectErrors.Add(1)
	}
}

func (m *Metrics) RecordListen(success bool) {
	m.Listens.Add(1)
	if !success {
		m.ListenErrors.Add(1)
	}
}

func (m *Metrics) RecordClose(success bool) {
	m.Closes.Add(1)
	if !success {
		m.CloseErrors.Add(1)
	}
}

func (m *Metrics) RecordError(kind ErrorKind) {
	_ = kind
	m.ErrorCount.Add(1)
}

// Stop marks the reactor as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	WaitCalls     uint64
	DispatchCalls uint64
	ReadyTotal    uint64

	Accepts  uint64
	Connects uint64
	Listens  uint64
	Closes   uint64

	ReadOps    uint64
	WriteOps   uint64
	ReadBytes  uint64
	WriteBytes uint64

	ReadErrors    uint64
	WriteErrors   uint64
	AcceptErrors  uint64
	ConnectErrors uint64
	ListenErrors  uint64
	CloseErrors   uint64
	ErrorCount    uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		WaitCalls:     m.WaitCalls.Load(),
		DispatchCalls: m.DispatchCalls.Load(),
		ReadyTotal:    m.ReadyTotal.Load(),
		Accepts:       m.Accepts.Load(),
		Connects:      m.Connects.Load(),
		Listens:       m.Listens.Load(),
		Closes:        m.Closes.Load(),
		ReadOps:       m.ReadOps.Load(),
		WriteOps:      m.WriteOps.Load(),
		ReadBytes:     m.ReadBytes.Load(),
		WriteBytes:    m.WriteBytes.Load(),
		ReadErrors:    m.ReadErrors.Load(),
		WriteErrors:   m.WriteErrors.Load(),
		AcceptErrors:  m.AcceptErrors.Load(),
		ConnectErrors: m.ConnectErrors.Load(),
		ListenErrors:  m.ListenErrors.Load(),
		CloseErrors:   m.CloseErrors.Load(),
		ErrorCount:    m.ErrorCount.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
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

// Reset resets all metrics counters.
func (m *Metrics) Reset() {
	m.WaitCalls.Store(0)
	m.DispatchCalls.Store(0)
	m.ReadyTotal.Store(0)
	m.Accepts.Store(0)
	m.Connects.Store(0)
	m.Listens.Store(0)
	m.Closes.Store(0)
	m.ReadOps.Store(0)
	m.WriteOps.Store(0)
	m.ReadBytes.Store(0)
	m.WriteBytes.Store(0)
	m.ReadErrors.Store(0)
	m.WriteErrors.Store(0)
	m.AcceptErrors.Store(0)
	m.ConnectErrors.Store(0)
	m.ListenErrors.Store(0)
	m.CloseErrors.Store(0)
	m.ErrorCount.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer is the pluggable metrics-collection contract a Reactor reports
// activity to.
type Observer = interfaces.Observer

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveWait(int, uint64)     {}
func (NoOpObserver) ObserveDispatch(int, uint64) {}
func (NoOpObserver) ObserveRead(uint64, bool)    {}
func (NoOpObserver) ObserveWrite(uint64, bool)   {}
func (NoOpObserver) ObserveAccept(bool)          {}
func (NoOpObserver) ObserveConnect(bool)         {}
func (NoOpObserver) ObserveListen(bool)          {}
func (NoOpObserver) ObserveClose(bool)           {}
func (NoOpObserver) ObserveError(ErrorKind)      {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveWait(readyCount int, latencyNs uint64) {
	o.metrics.RecordWait(readyCount, latencyNs)
}

func (o *MetricsObserver) ObserveDispatch(callbacksDelivered int, latencyNs uint64) {
	o.metrics.RecordDispatch(callbacksDelivered, latencyNs)
}

func (o *MetricsObserver) ObserveRead(bytes uint64, success bool) {
	o.metrics.RecordRead(bytes, success)
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, success bool) {
	o.metrics.RecordWrite(bytes, success)
}

func (o *MetricsObserver) ObserveAccept(success bool) {
	o.metrics.RecordAccept(success)
}

func (o *MetricsObserver) ObserveConnect(success bool) {
	o.metrics.RecordConnect(success)
}

func (o *MetricsObserver) ObserveListen(success bool) {
	o.metrics.RecordListen(success)
}

func (o *MetricsObserver) ObserveClose(success bool) {
	o.metrics.RecordClose(success)
}

func (o *MetricsObserver) ObserveError(kind ErrorKind) {
	o.metrics.RecordError(kind)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
