package arenaski

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nrobinson/arenaski/internal/interfaces"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	assert.Zero(t, snap.TotalRequests)

	m.RecordStep()
	m.RecordStep()
	m.RecordYield(interfaces.YieldIO)
	m.RecordYield(interfaces.YieldBudget)
	m.RecordResubmit()
	m.RecordCompletion(StatusDone, 1_000_000)
	m.RecordCompletion(StatusDiverged, 2_000_000)

	snap = m.Snapshot()
	assert.Equal(t, uint64(2), snap.StepsExecuted)
	assert.Equal(t, uint64(2), snap.Yields)
	assert.Equal(t, uint64(1), snap.YieldIO)
	assert.Equal(t, uint64(1), snap.YieldBudget)
	assert.Equal(t, uint64(1), snap.Resubmits)
	assert.Equal(t, uint64(1), snap.Completed)
	assert.Equal(t, uint64(1), snap.Diverged)
	assert.Equal(t, uint64(2), snap.TotalRequests)
	assert.InDelta(t, 50.0, snap.ErrorRate, 0.1)
}

func TestMetricsLatencyPercentiles(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordCompletion(StatusDone, 500_000) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordCompletion(StatusDone, 5_000_000) // 5ms
	}
	m.RecordCompletion(StatusDone, 50_000_000) // 50ms, the slowest 1%

	snap := m.Snapshot()
	assert.Equal(t, uint64(100), snap.TotalRequests)
	assert.GreaterOrEqual(t, snap.LatencyP50Ns, uint64(100_000))
	assert.LessOrEqual(t, snap.LatencyP50Ns, uint64(1_000_000))
	assert.GreaterOrEqual(t, snap.LatencyP99Ns, uint64(5_000_000))
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordStep()
	m.RecordCompletion(StatusDone, 1000)

	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.StepsExecuted)
	assert.Zero(t, snap.TotalRequests)
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(5 * time.Millisecond)

	snap := m.Snapshot()
	assert.GreaterOrEqual(t, snap.UptimeNs, uint64(5*time.Millisecond))

	m.Stop()
	time.Sleep(5 * time.Millisecond)
	snap2 := m.Snapshot()
	assert.LessOrEqual(t, snap2.UptimeNs, snap.UptimeNs+uint64(2*time.Millisecond))
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveRequestCreated(1, 0)
	obs.ObserveYield(1, interfaces.YieldBudget, 42)
	obs.ObserveResubmit(1, 1)
	obs.ObserveCompleted(1, 99)

	snap := m.Snapshot()
	assert.Zero(t, snap.StepsExecuted) // steps are counted at publication time, not here
	assert.Equal(t, uint64(1), snap.YieldBudget)
	assert.Equal(t, uint64(1), snap.Resubmits)
	assert.Equal(t, uint64(1), snap.Completed)

	obs.ObserveRequestCreated(2, 1)
	obs.ObserveError(2, NewRequestError("tracker", 2, CodeResubmissionLimitExceeded, "too many resubmits"))

	snap = m.Snapshot()
	assert.Equal(t, uint64(1), snap.Diverged)
}

func TestNoOpObserverDoesNotPanic(t *testing.T) {
	var obs interfaces.Observer = interfaces.NoOpObserver{}
	obs.ObserveRequestCreated(1, 0)
	obs.ObserveYield(1, interfaces.YieldIO, 1)
	obs.ObserveResubmit(1, 1)
	obs.ObserveCompleted(1, 1)
	obs.ObserveError(1, nil)
}
