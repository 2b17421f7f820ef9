package bench

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/bytefmt"
)

// maxLatencySamples bounds the memory held by a latency recorder. Once the
// window is full, new samples overwrite the oldest ones.
const maxLatencySamples = 65536

// latencyRecorder keeps a sliding sample window of observed durations.
type latencyRecorder struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
}

func (r *latencyRecorder) record(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) < maxLatencySamples {
		r.samples = append(r.samples, d)
		return
	}
	r.samples[r.next] = d
	r.next = (r.next + 1) % maxLatencySamples
	r.full = true
}

// LatencySummary holds percentile figures over the recorded window.
type LatencySummary struct {
	Count int
	Min   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

func (r *latencyRecorder) summarize() LatencySummary {
	r.mu.Lock()
	sorted := make([]time.Duration, len(r.samples))
	copy(sorted, r.samples)
	r.mu.Unlock()

	if len(sorted) == 0 {
		return LatencySummary{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	pct := func(p float64) time.Duration {
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}
	return LatencySummary{
		Count: len(sorted),
		Min:   sorted[0],
		Mean:  sum / time.Duration(len(sorted)),
		P50:   pct(0.50),
		P95:   pct(0.95),
		P99:   pct(0.99),
		Max:   sorted[len(sorted)-1],
	}
}

// Stats accumulates counters and latencies for one benchmark run. All
// methods are safe for concurrent use.
type Stats struct {
	published    atomic.Uint64
	consumed     atomic.Uint64
	errors       atomic.Uint64
	bytesOut     atomic.Uint64
	bytesIn      atomic.Uint64
	publishDelay latencyRecorder
	endToEnd     latencyRecorder
	start        time.Time
}

// NewStats returns a Stats anchored at the current time.
func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

// RecordPublish counts one published message of n payload bytes that took d
// from record construction to append acknowledgement.
func (s *Stats) RecordPublish(d time.Duration, n int) {
	s.published.Add(1)
	s.bytesOut.Add(uint64(n))
	s.publishDelay.record(d)
}

// RecordConsume counts one delivered message of n payload bytes with an
// end-to-end latency of d.
func (s *Stats) RecordConsume(d time.Duration, n int) {
	s.consumed.Add(1)
	s.bytesIn.Add(uint64(n))
	s.endToEnd.record(d)
}

// RecordError counts one failed publish.
func (s *Stats) RecordError() {
	s.errors.Add(1)
}

// Snapshot is a point-in-time view of the run's counters.
type Snapshot struct {
	Elapsed   time.Duration
	Published uint64
	Consumed  uint64
	Errors    uint64
	BytesOut  uint64
	BytesIn   uint64
	Publish   LatencySummary
	EndToEnd  LatencySummary
}

// Snapshot captures the counters and latency summaries as of now.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Elapsed:   time.Since(s.start),
		Published: s.published.Load(),
		Consumed:  s.consumed.Load(),
		Errors:    s.errors.Load(),
		BytesOut:  s.bytesOut.Load(),
		BytesIn:   s.bytesIn.Load(),
		Publish:   s.publishDelay.summarize(),
		EndToEnd:  s.endToEnd.summarize(),
	}
}

// Report renders the snapshot as a multi-line human-readable summary.
func (snap Snapshot) Report() string {
	secs := snap.Elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}
	lines := fmt.Sprintf(
		"elapsed            %s\n"+
			"published          %d (%.0f msg/s, %s/s)\n"+
			"consumed           %d (%.0f msg/s, %s/s)\n"+
			"errors             %d\n",
		snap.Elapsed.Round(time.Millisecond),
		snap.Published, float64(snap.Published)/secs, bytefmt.ByteSize(uint64(float64(snap.BytesOut)/secs)),
		snap.Consumed, float64(snap.Consumed)/secs, bytefmt.ByteSize(uint64(float64(snap.BytesIn)/secs)),
		snap.Errors,
	)
	lines += formatLatency("publish latency", snap.Publish)
	lines += formatLatency("end-to-end latency", snap.EndToEnd)
	return lines
}

func formatLatency(name string, l LatencySummary) string {
	if l.Count == 0 {
		return fmt.Sprintf("%-18s no samples\n", name)
	}
	return fmt.Sprintf("%-18s min=%s mean=%s p50=%s p95=%s p99=%s max=%s\n",
		name,
		l.Min.Round(time.Microsecond), l.Mean.Round(time.Microsecond),
		l.P50.Round(time.Microsecond), l.P95.Round(time.Microsecond),
		l.P99.Round(time.Microsecond), l.Max.Round(time.Microsecond))
}
