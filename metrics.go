package arenaski

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nrobinson/arenaski/internal/interfaces"
)

// LatencyBuckets defines the completion-latency histogram buckets in
// nanoseconds, covering from 1us to 10s with logarithmic spacing.
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

// Metrics tracks performance and operational statistics for a driver
// run: step counts, yields by reason, resubmits, completions, and a
// latency histogram keyed on request completion latency.
type Metrics struct {
	StepsExecuted atomic.Uint64 // total reduction steps across all workers
	Yields        atomic.Uint64 // total YIELD_IO + YIELD_BUDGET completions
	YieldIO       atomic.Uint64
	YieldBudget   atomic.Uint64
	Resubmits     atomic.Uint64
	Completed     atomic.Uint64 // requests resolved DONE
	Diverged      atomic.Uint64 // requests finalized DIVERGED
	Errored       atomic.Uint64 // requests finalized with any other error

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a fresh metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordStep records one reduction step performed by a worker.
func (m *Metrics) RecordStep() { m.StepsExecuted.Add(1) }

// RecordSteps records a batch of reduction steps from one Reduce call.
func (m *Metrics) RecordSteps(n uint64) { m.StepsExecuted.Add(n) }

// RecordYield records a worker-published suspension.
func (m *Metrics) RecordYield(reason interfaces.YieldReason) {
	m.Yields.Add(1)
	switch reason {
	case interfaces.YieldIO:
		m.YieldIO.Add(1)
	case interfaces.YieldBudget:
		m.YieldBudget.Add(1)
	}
}

// RecordResubmit records a successful resubmission of a yielded request.
func (m *Metrics) RecordResubmit() { m.Resubmits.Add(1) }

// RecordCompletion records a request's final outcome and its
// end-to-end latency (creation to resolution) in nanoseconds.
func (m *Metrics) RecordCompletion(status CompletionStatus, latencyNs uint64) {
	switch status {
	case StatusDone:
		m.Completed.Add(1)
	case StatusDiverged:
		m.Diverged.Add(1)
	case StatusError:
		m.Errored.Add(1)
	}
	m.recordLatency(latencyNs)
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

// Stop marks the driver run as finished.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read
// without further synchronization.
type MetricsSnapshot struct {
	StepsExecuted uint64
	Yields        uint64
	YieldIO       uint64
	YieldBudget   uint64
	Resubmits     uint64
	Completed     uint64
	Diverged      uint64
	Errored       uint64

	AvgLatencyNs  uint64
	UptimeNs      uint64
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalRequests uint64
	ErrorRate     float64 // percentage of requests that ended Diverged or Errored
}

// Snapshot captures the current state of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		StepsExecuted: m.StepsExecuted.Load(),
		Yields:        m.Yields.Load(),
		YieldIO:       m.YieldIO.Load(),
		YieldBudget:   m.YieldBudget.Load(),
		Resubmits:     m.Resubmits.Load(),
		Completed:     m.Completed.Load(),
		Diverged:      m.Diverged.Load(),
		Errored:       m.Errored.Load(),
	}

	snap.TotalRequests = snap.Completed + snap.Diverged + snap.Errored
	if snap.TotalRequests > 0 {
		snap.ErrorRate = float64(snap.Diverged+snap.Errored) / float64(snap.TotalRequests) * 100.0
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
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

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) via linear interpolation between histogram buckets.
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

// Reset zeroes every counter, useful between test cases.
func (m *Metrics) Reset() {
	m.StepsExecuted.Store(0)
	m.Yields.Store(0)
	m.YieldIO.Store(0)
	m.YieldBudget.Store(0)
	m.Resubmits.Store(0)
	m.Completed.Store(0)
	m.Diverged.Store(0)
	m.Errored.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsObserver adapts interfaces.Observer onto a Metrics instance,
// so the tracker and driver can fire instrumentation hooks without
// depending on the concrete Metrics type.
type MetricsObserver struct {
	metrics *Metrics

	mu        sync.Mutex
	createdAt map[uint64]int64
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m, createdAt: make(map[uint64]int64)}
}

func (o *MetricsObserver) ObserveRequestCreated(reqID uint64, workerSlot int) {
	o.mu.Lock()
	o.createdAt[reqID] = time.Now().UnixNano()
	o.mu.Unlock()
}

// ObserveYield only bumps the yield counters; the steps a yielding
// Reduce call took are already counted at completion-publication time
// by the worker side, so adding stepCount here would double-count.
func (o *MetricsObserver) ObserveYield(reqID uint64, reason interfaces.YieldReason, stepCount uint32) {
	o.metrics.RecordYield(reason)
}

func (o *MetricsObserver) ObserveResubmit(reqID uint64, count int) {
	o.metrics.RecordResubmit()
}

func (o *MetricsObserver) ObserveCompleted(reqID uint64, resultNodeID uint32) {
	o.metrics.RecordCompletion(StatusDone, o.latencySince(reqID))
}

func (o *MetricsObserver) ObserveError(reqID uint64, err error) {
	status := StatusError
	if IsCode(err, CodeResubmissionLimitExceeded) || IsCode(err, CodeStepBudgetExhausted) {
		status = StatusDiverged
	}
	o.metrics.RecordCompletion(status, o.latencySince(reqID))
}

func (o *MetricsObserver) latencySince(reqID uint64) uint64 {
	o.mu.Lock()
	created, ok := o.createdAt[reqID]
	if ok {
		delete(o.createdAt, reqID)
	}
	o.mu.Unlock()
	if !ok {
		return 0
	}
	elapsed := time.Now().UnixNano() - created
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed)
}

var _ interfaces.Observer = (*MetricsObserver)(nil)
