package fdloop

import "sync"

// Metrics tracks dispatch-latency percentiles for a Loop, using the
// streaming P-Square estimator so recording stays O(1) per dispatch and
// allocation-free. Enabled via WithMetrics and read through Loop.Metrics,
// which may be called concurrently with the Loop running (e.g. from a
// separate monitoring goroutine), hence the mutex despite the Loop itself
// being single-threaded.
type Metrics struct {
	mu       sync.Mutex
	dispatch *pSquareMultiQuantile
}

func newMetrics() *Metrics {
	return &Metrics{
		dispatch: newPSquareMultiQuantile(0.5, 0.9, 0.99),
	}
}

func (m *Metrics) recordDispatchSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatch.Update(seconds)
}

// LatencySnapshot is a point-in-time read of the dispatch-latency
// distribution, in seconds.
type LatencySnapshot struct {
	Count int
	Mean  float64
	Max   float64
	P50   float64
	P90   float64
	P99   float64
}

// DispatchLatency returns the current dispatch-latency distribution. Safe
// to call whether or not the Loop is running.
func (m *Metrics) DispatchLatency() LatencySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return LatencySnapshot{
		Count: m.dispatch.Count(),
		Mean:  m.dispatch.Mean(),
		Max:   m.dispatch.Max(),
		P50:   m.dispatch.Quantile(0),
		P90:   m.dispatch.Quantile(1),
		P99:   m.dispatch.Quantile(2),
	}
}

// Metrics returns the Loop's metrics collector, or nil if WithMetrics was
// never enabled.
func (l *Loop) Metrics() *Metrics {
	return l.metrics
}
