package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{200 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{2 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.latency))
		})
	}
}

func TestMetricsRecordCountsQueries(t *testing.T) {
	m := NewMetrics()

	m.Record("street food hanoi", 5, 8*time.Millisecond)
	m.Record("surf lisbon", 3, 60*time.Millisecond)
	m.Record("ghost town", 0, 12*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(1), snap.Latency[BucketP10])
	assert.Equal(t, int64(1), snap.Latency[BucketP100])
	assert.Equal(t, int64(1), snap.Latency[BucketP50])
	assert.Equal(t, []string{"ghost town"}, snap.RecentZeroResults)
	assert.False(t, snap.Since.IsZero())
}

func TestMetricsDetectsRepeats(t *testing.T) {
	m := NewMetrics()

	m.Record("pho broth", 4, time.Millisecond)
	m.Record("pho broth", 4, time.Millisecond)
	// Normalization makes case and spacing differences the same query.
	m.Record("  PHO   Broth ", 4, time.Millisecond)
	m.Record("something else", 2, time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(4), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.RepeatedQueries)
}

func TestMetricsZeroResultRingEvictsOldest(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < recentZeroSize+5; i++ {
		m.Record(fmt.Sprintf("query %02d", i), 0, time.Millisecond)
	}

	snap := m.Snapshot()
	require.Len(t, snap.RecentZeroResults, recentZeroSize)
	assert.Equal(t, "query 05", snap.RecentZeroResults[0])
	assert.Equal(t, fmt.Sprintf("query %02d", recentZeroSize+4),
		snap.RecentZeroResults[len(snap.RecentZeroResults)-1])
}

func TestSnapshotZeroResultRate(t *testing.T) {
	m := NewMetrics()
	assert.Zero(t, m.Snapshot().ZeroResultRate())

	m.Record("hit", 3, time.Millisecond)
	m.Record("miss", 0, time.Millisecond)

	assert.InDelta(t, 0.5, m.Snapshot().ZeroResultRate(), 1e-9)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.Record("one", 1, time.Millisecond)

	snap := m.Snapshot()
	snap.Latency[BucketP10] = 99

	assert.Equal(t, int64(1), m.Snapshot().Latency[BucketP10])
}

func TestMetricsConcurrentRecord(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record(fmt.Sprintf("query %d", n), j%3, time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Snapshot().TotalQueries)
}
