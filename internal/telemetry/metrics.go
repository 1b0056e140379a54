// Package telemetry aggregates query metrics for the stats endpoint.
// Everything stays in process memory - nothing is reported externally and
// the counters reset on restart.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is one bin of the query latency histogram.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

const (
	// seenCacheSize bounds the repeat-detection cache.
	seenCacheSize = 512

	// recentZeroSize is how many zero-result query texts are kept.
	recentZeroSize = 20
)

// Metrics collects per-query counters. All methods are safe for concurrent
// use by request handlers.
type Metrics struct {
	mu         sync.Mutex
	total      int64
	zeroCount  int64
	repeats    int64
	latency    map[LatencyBucket]int64
	seen       *lru.Cache[string, int]
	recentZero *ring[string]
	since      time.Time
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	seen, _ := lru.New[string, int](seenCacheSize)
	return &Metrics{
		latency:    make(map[LatencyBucket]int64),
		seen:       seen,
		recentZero: newRing[string](recentZeroSize),
		since:      time.Now().UTC(),
	}
}

// Record notes one served query. Zero-result queries are kept verbatim so
// operators can see what the collection failed to answer.
func (m *Metrics) Record(query string, resultCount int, latency time.Duration) {
	key := queryKey(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latency[LatencyToBucket(latency)]++

	if n, ok := m.seen.Get(key); ok {
		m.repeats++
		m.seen.Add(key, n+1)
	} else {
		m.seen.Add(key, 1)
	}

	if resultCount == 0 {
		m.zeroCount++
		m.recentZero.add(query)
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	RepeatedQueries   int64                   `json:"repeated_queries"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	RecentZeroResults []string                `json:"recent_zero_results,omitempty"`
	Since             time.Time               `json:"since"`
}

// ZeroResultRate returns the share of queries that found nothing, 0..1.
func (s Snapshot) ZeroResultRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries)
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	latency := make(map[LatencyBucket]int64, len(m.latency))
	for bucket, count := range m.latency {
		latency[bucket] = count
	}
	return Snapshot{
		TotalQueries:      m.total,
		ZeroResultCount:   m.zeroCount,
		RepeatedQueries:   m.repeats,
		Latency:           latency,
		RecentZeroResults: m.recentZero.items(),
		Since:             m.since,
	}
}

// queryKey normalizes a query for repeat detection. Hashing keeps full
// query texts out of the cache.
func queryKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}

// ring is a fixed-capacity FIFO buffer; once full, adds evict the oldest
// entry.
type ring[T any] struct {
	entries []T
	head    int
	size    int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{entries: make([]T, capacity)}
}

func (r *ring[T]) add(item T) {
	r.entries[r.head] = item
	r.head = (r.head + 1) % len(r.entries)
	if r.size < len(r.entries) {
		r.size++
	}
}

// items returns the buffered entries oldest first.
func (r *ring[T]) items() []T {
	if r.size == 0 {
		return nil
	}
	out := make([]T, 0, r.size)
	start := 0
	if r.size == len(r.entries) {
		start = r.head
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}
