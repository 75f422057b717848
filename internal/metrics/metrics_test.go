package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.jobsQueued, "jobsQueued counter should be initialized")
	assert.NotNil(t, collector.jobsDispatchedLocal, "jobsDispatchedLocal counter should be initialized")
	assert.NotNil(t, collector.jobsDispatchedRemote, "jobsDispatchedRemote counter should be initialized")
	assert.NotNil(t, collector.jobsCompletedLocal, "jobsCompletedLocal counter should be initialized")
	assert.NotNil(t, collector.jobsCompletedRemote, "jobsCompletedRemote counter should be initialized")
	assert.NotNil(t, collector.jobsCrashed, "jobsCrashed counter should be initialized")
	assert.NotNil(t, collector.jobsRescheduled, "jobsRescheduled counter should be initialized")
	assert.NotNil(t, collector.walAppendErrors, "walAppendErrors counter should be initialized")
	assert.NotNil(t, collector.jobDurationLocal, "jobDurationLocal histogram should be initialized")
	assert.NotNil(t, collector.jobDurationRemote, "jobDurationRemote histogram should be initialized")
	assert.NotNil(t, collector.preprocessDuration, "preprocessDuration histogram should be initialized")
	assert.NotNil(t, collector.snapshotWriteDuration, "snapshotWriteDuration histogram should be initialized")
	assert.NotNil(t, collector.pendingQueueDepth, "pendingQueueDepth gauge should be initialized")
	assert.NotNil(t, collector.inFlightJobs, "inFlightJobs gauge should be initialized")
	assert.NotNil(t, collector.knownPeers, "knownPeers gauge should be initialized")
}

func TestRecordEnqueue(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordEnqueue()
	}, "RecordEnqueue should not panic")

	for i := 0; i < 5; i++ {
		collector.RecordEnqueue()
	}
}

func TestRecordDispatch(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordDispatch()
		collector.RecordDispatchRemote()
	}, "RecordDispatch/RecordDispatchRemote should not panic")

	for i := 0; i < 10; i++ {
		collector.RecordDispatch()
	}
}

func TestRecordCompleted(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	latencies := []float64{0.001, 0.01, 0.1, 1.0, 5.0}

	for _, latency := range latencies {
		assert.NotPanics(t, func() {
			collector.RecordCompleted(latency)
			collector.RecordCompletedRemote(latency)
		}, "RecordCompleted should not panic with latency %f", latency)
	}
}

func TestRecordFailed(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordFailed()
	}, "RecordFailed should not panic")

	for i := 0; i < 3; i++ {
		collector.RecordFailed()
	}
}

func TestRecordRescheduled(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordRescheduled()
	}, "RecordRescheduled should not panic")

	for i := 0; i < 2; i++ {
		collector.RecordRescheduled()
	}
}

func TestRecordWALAppendError(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordWALAppendError()
	}, "RecordWALAppendError should not panic")
}

func TestObserveDurations(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	durations := []float64{0.001, 0.5, 1.5, 3.0}

	for _, d := range durations {
		dur := time.Duration(d * float64(time.Second))
		assert.NotPanics(t, func() {
			collector.ObservePreprocessDuration(dur)
			collector.ObserveSnapshotWriteDuration(dur)
		}, "observe methods should not panic with duration %f", d)
	}
}

func TestUpdateQueueStats(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	testCases := []struct {
		name     string
		pending  int
		inFlight int
	}{
		{"zero values", 0, 0},
		{"normal values", 10, 5},
		{"high pending", 100, 8},
		{"high in-flight", 5, 50},
		{"equal values", 20, 20},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				collector.UpdateQueueStats(tc.pending, tc.inFlight)
			}, "UpdateQueueStats should not panic")
		})
	}
}

func TestSetKnownPeers(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.SetKnownPeers(3)
	}, "SetKnownPeers should not panic")
}

func TestConcurrentMetricUpdates(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	done := make(chan bool, 100)

	for i := 0; i < 100; i++ {
		go func() {
			collector.RecordEnqueue()
			collector.RecordDispatch()
			collector.RecordCompleted(0.1)
			collector.UpdateQueueStats(10, 5)
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestCollectorIsolation(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector1 := NewCollector()
	require.NotNil(t, collector1)

	// Second collector will panic due to duplicate registration: a
	// process should have only one collector.
	assert.Panics(t, func() {
		NewCollector()
	}, "Creating a second collector should panic due to duplicate registration")
}

func TestMetricOperationSequence(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordEnqueue()
		collector.UpdateQueueStats(1, 0)

		collector.RecordDispatch()
		collector.UpdateQueueStats(0, 1)

		collector.RecordCompleted(0.5)
		collector.UpdateQueueStats(0, 0)
	}, "complete job lifecycle should not panic")
}

func TestMetricOperationWithCrash(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordEnqueue()
		collector.RecordDispatch()
		collector.RecordFailed()
		collector.RecordRescheduled()
	}, "crash-then-reschedule sequence should not panic")
}

func TestZeroAndNegativeValues(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordCompleted(0.0)
		collector.UpdateQueueStats(0, 0)
		collector.UpdateQueueStats(-1, -1) // negative values shouldn't happen
	}, "edge case values should not panic")
}
