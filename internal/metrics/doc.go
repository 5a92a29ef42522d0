// Package metrics collects job and request statistics.
//
// Metrics tracks totals, success/failure counts, throughput and latency
// (average and a sample based P99). It backs both the worker pool (one
// record per executed job) and the HTTP layer (one record per request).
//
// # Basic Usage
//
//	m := metrics.New()
//
//	start := time.Now()
//	// ... run a job ...
//	m.RecordSuccess(time.Since(start))
//
//	snap := m.Snapshot()
//	fmt.Printf("Total: %d, P99: %v\n", snap.Total, snap.P99Latency)
//
// # Prometheus
//
// Collector owns the Prometheus series for a pool and registers them on the
// given registerer. All Collector methods are safe on a nil receiver, so
// callers can leave it unset.
//
//	reg := prometheus.NewRegistry()
//	c := metrics.NewCollector(reg, "webpool")
//	c.JobSubmitted()
package metrics
