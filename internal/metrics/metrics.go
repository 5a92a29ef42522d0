package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxLatencySamples = 1000

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // P99計算用に保持するサンプル数
}

// Metrics はジョブ/リクエストのメトリクスを収集する
type Metrics struct {
	total          atomic.Uint64
	succeeded      atomic.Uint64
	failed         atomic.Uint64
	totalLatencyNs atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	lastResetTime     time.Time
	windowCount       uint64
	latencies         []time.Duration
	maxLatencySamples int
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(Config{MaxLatencySamples: defaultMaxLatencySamples})
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	samples := config.MaxLatencySamples
	if samples <= 0 {
		samples = defaultMaxLatencySamples
	}
	now := time.Now()
	return &Metrics{
		startTime:         now,
		lastResetTime:     now,
		latencies:         make([]time.Duration, 0, samples),
		maxLatencySamples: samples,
	}
}

// RecordSuccess は成功した処理を記録する
func (m *Metrics) RecordSuccess(latency time.Duration) {
	m.record(latency)
	m.succeeded.Add(1)
}

// RecordFailure は失敗した処理を記録する
func (m *Metrics) RecordFailure(latency time.Duration) {
	m.record(latency)
	m.failed.Add(1)
}

func (m *Metrics) record(latency time.Duration) {
	m.total.Add(1)
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.windowCount++
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	}
	m.mu.Unlock()
}

// Total は総処理数を返す
func (m *Metrics) Total() uint64 {
	return m.total.Load()
}

// Succeeded は成功数を返す
func (m *Metrics) Succeeded() uint64 {
	return m.succeeded.Load()
}

// Failed は失敗数を返す
func (m *Metrics) Failed() uint64 {
	return m.failed.Load()
}

// Throughput は直近ウィンドウの毎秒処理数を返す
func (m *Metrics) Throughput() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.lastResetTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.windowCount) / elapsed
}

// OverallThroughput は開始からの平均毎秒処理数を返す
func (m *Metrics) OverallThroughput() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.total.Load()) / elapsed
}

// AverageLatency は平均レイテンシを返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.total.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// P99Latency はP99レイテンシを返す（サンプルベース）
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	sorted := slices.Clone(m.latencies)
	m.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ErrorRate は失敗率を返す（0.0〜1.0）
func (m *Metrics) ErrorRate() float64 {
	total := m.total.Load()
	if total == 0 {
		return 0
	}
	return float64(m.failed.Load()) / float64(total)
}

// Reset はウィンドウメトリクスをリセットする
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windowCount = 0
	m.lastResetTime = time.Now()
	m.latencies = m.latencies[:0]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Total             uint64        `json:"total"`
	Succeeded         uint64        `json:"succeeded"`
	Failed            uint64        `json:"failed"`
	Throughput        float64       `json:"throughput"`
	OverallThroughput float64       `json:"overall_throughput"`
	AverageLatency    time.Duration `json:"average_latency_ns"`
	P99Latency        time.Duration `json:"p99_latency_ns"`
	ErrorRate         float64       `json:"error_rate"`
	Elapsed           time.Duration `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Total:             m.Total(),
		Succeeded:         m.Succeeded(),
		Failed:            m.Failed(),
		Throughput:        m.Throughput(),
		OverallThroughput: m.OverallThroughput(),
		AverageLatency:    m.AverageLatency(),
		P99Latency:        m.P99Latency(),
		ErrorRate:         m.ErrorRate(),
		Elapsed:           time.Since(m.startTime),
	}
}
