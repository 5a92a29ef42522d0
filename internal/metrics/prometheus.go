package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector はワーカープールのPrometheusメトリクスを保持する
type Collector struct {
	jobsSubmitted  prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsPanicked   prometheus.Counter
	workersRunning prometheus.Gauge
	queueDepth     prometheus.Gauge
	jobDuration    prometheus.Histogram
	requests       *prometheus.CounterVec
}

// NewCollector はメトリクスを作成し reg に登録する
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted by Submit.",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_completed_total",
			Help:      "Jobs that ran to completion without panicking.",
		}),
		jobsPanicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_panicked_total",
			Help:      "Jobs whose panic was recovered by a worker.",
		}),
		workersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers_running",
			Help:      "Workers currently in the Running state.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Messages waiting in the dispatch queue.",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "job_duration_seconds",
			Help:      "Wall time spent executing a job.",
			Buckets:   prometheus.DefBuckets,
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served, by status code.",
		}, []string{"code"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.jobsSubmitted,
			c.jobsCompleted,
			c.jobsPanicked,
			c.workersRunning,
			c.queueDepth,
			c.jobDuration,
			c.requests,
		)
	}
	return c
}

// JobSubmitted はジョブ受付を記録する
func (c *Collector) JobSubmitted() {
	if c == nil {
		return
	}
	c.jobsSubmitted.Inc()
}

// JobFinished はジョブ終了を記録する
func (c *Collector) JobFinished(d time.Duration, panicked bool) {
	if c == nil {
		return
	}
	c.jobDuration.Observe(d.Seconds())
	if panicked {
		c.jobsPanicked.Inc()
		return
	}
	c.jobsCompleted.Inc()
}

// QueueDepth はキュー長を更新する
func (c *Collector) QueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// WorkerStarted はワーカー起動を記録する
func (c *Collector) WorkerStarted() {
	if c == nil {
		return
	}
	c.workersRunning.Inc()
}

// WorkerStopped はワーカー終了を記録する
func (c *Collector) WorkerStopped() {
	if c == nil {
		return
	}
	c.workersRunning.Dec()
}

// Request はHTTPリクエストをステータスコード別に記録する
func (c *Collector) Request(code string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(code).Inc()
}
