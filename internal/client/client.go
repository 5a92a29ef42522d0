package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"webpool/internal/logger"
	"webpool/internal/metrics"
	"webpool/internal/worker"
)

const scope = "client"

// Config はClientの設定
type Config struct {
	Addr           string        // 接続先
	Path           string        // リクエストパス
	NumWorkers     int           // ワーカー数（0でCPU数）
	InFlightFactor int           // 同時実行上限 = NumWorkers * InFlightFactor
	Timeout        time.Duration // 1リクエストのタイムアウト
	RequestsLimit  uint64        // リクエスト上限（0で無制限）
	Logger         *logger.Logger
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:7878",
		Path:           "/",
		NumWorkers:     0,
		InFlightFactor: 4,
		Timeout:        10 * time.Second,
	}
}

// Client は負荷生成器
type Client struct {
	config  Config
	log     *logger.Logger
	pool    *worker.Pool
	metrics *metrics.Metrics

	running  atomic.Bool
	issued   atomic.Uint64
	inflight chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New は新しいClientを作成する
func New(config Config) *Client {
	if config.NumWorkers <= 0 {
		config.NumWorkers = runtime.NumCPU()
	}
	if config.InFlightFactor <= 0 {
		config.InFlightFactor = DefaultConfig().InFlightFactor
	}
	if config.Path == "" {
		config.Path = "/"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	log := config.Logger
	if log == nil {
		log = logger.Default
	}

	return &Client{
		config:  config,
		log:     log,
		metrics: metrics.New(),
	}
}

// Start は負荷生成を開始する
func (c *Client) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return nil
	}

	pool, err := worker.NewPoolWithConfig(worker.PoolConfig{
		Size:   c.config.NumWorkers,
		Logger: c.log,
	})
	if err != nil {
		c.running.Store(false)
		return fmt.Errorf("failed to create client pool: %w", err)
	}

	c.pool = pool
	c.inflight = make(chan struct{}, c.config.NumWorkers*c.config.InFlightFactor)
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.log.Info(scope, "Client started (workers: %d, target: %s%s)",
		c.config.NumWorkers, c.config.Addr, c.config.Path)

	c.wg.Add(1)
	go c.generateRequests()
	return nil
}

// generateRequests は上限かキャンセルまでリクエストを投入し続ける
func (c *Client) generateRequests() {
	defer c.wg.Done()

	for {
		if c.config.RequestsLimit > 0 && c.issued.Load() >= c.config.RequestsLimit {
			return
		}

		// 同時実行数を制限する
		select {
		case <-c.ctx.Done():
			return
		case c.inflight <- struct{}{}:
		}

		c.issued.Add(1)
		if err := c.pool.Submit(c.createJob()); err != nil {
			<-c.inflight
			c.log.Warn(scope, "Submit failed: %v", err)
			return
		}
	}
}

// createJob は1リクエスト分のジョブを作成する
func (c *Client) createJob() worker.Job {
	return func() {
		defer func() { <-c.inflight }()

		start := time.Now()
		err := c.request()
		latency := time.Since(start)

		if err != nil {
			c.log.Debug(scope, "Request failed: %v", err)
			c.metrics.RecordFailure(latency)
			return
		}
		c.metrics.RecordSuccess(latency)
	}
}

func (c *Client) request() error {
	conn, err := net.DialTimeout("tcp", c.config.Addr, c.config.Timeout)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(c.config.Timeout))

	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\n\r\n", c.config.Path, c.config.Addr)
	if _, err := io.WriteString(conn, req); err != nil {
		return err
	}

	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read status line: %w", err)
	}
	status = strings.TrimRight(status, "\r\n")
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	if status != "HTTP/1.1 200 OK" {
		return fmt.Errorf("unexpected status: %q", status)
	}
	return nil
}

// Stop は負荷生成を停止し、投入済みのリクエストの完了を待つ
func (c *Client) Stop() {
	if !c.running.Swap(false) {
		return
	}

	c.cancel()
	c.wg.Wait()
	c.pool.Shutdown()

	c.log.Info(scope, "Client stopped (%d requests)", c.metrics.Total())
}

// Metrics はメトリクスを返す
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// IsRunning は実行中かどうかを返す
func (c *Client) IsRunning() bool {
	return c.running.Load()
}

// RunFor は指定時間だけ負荷生成を実行する
func (c *Client) RunFor(ctx context.Context, duration time.Duration) (*metrics.Snapshot, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}

	c.Stop()

	snapshot := c.metrics.Snapshot()
	return &snapshot, nil
}

// RunRequests は指定数のリクエストを実行する。
// count が 0 の場合は何も送らずに空のスナップショットを返す
func (c *Client) RunRequests(ctx context.Context, count uint64) (*metrics.Snapshot, error) {
	if count == 0 {
		snapshot := c.metrics.Snapshot()
		return &snapshot, nil
	}
	c.config.RequestsLimit = count
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	c.wg.Wait()
	c.Stop()

	snapshot := c.metrics.Snapshot()
	return &snapshot, nil
}

// Report はスナップショットを人間向けの文字列にする
func Report(snap *metrics.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Requests:   %d (ok: %d, failed: %d)\n", snap.Total, snap.Succeeded, snap.Failed)
	fmt.Fprintf(&b, "Throughput: %.2f req/s\n", snap.OverallThroughput)
	fmt.Fprintf(&b, "Latency:    avg %v, p99 %v\n", snap.AverageLatency, snap.P99Latency)
	fmt.Fprintf(&b, "Error rate: %.2f%%\n", snap.ErrorRate*100)
	fmt.Fprintf(&b, "Elapsed:    %v", snap.Elapsed.Round(time.Millisecond))
	return b.String()
}
