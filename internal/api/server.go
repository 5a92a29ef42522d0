// Package api serves the admin surface of a running pool: JSON status,
// Prometheus metrics and a websocket stream of pool events.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"webpool/internal/events"
	"webpool/internal/logger"
	"webpool/internal/metrics"
	"webpool/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
)

const scope = "api"

// Server は管理APIサーバー
type Server struct {
	addr     string
	pool     *worker.Pool
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	eventBus *events.Bus

	statusInterval time.Duration

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(addr string, pool *worker.Pool) *Server {
	return &Server{
		addr:           addr,
		pool:           pool,
		statusInterval: time.Second,
		wsClients:      make(map[*websocket.Conn]bool),
	}
}

// SetMetrics はメトリクスの取得元を設定する
func (s *Server) SetMetrics(m *metrics.Metrics, g prometheus.Gatherer) {
	s.metrics = m
	s.gatherer = g
}

// SetEventBus はWebSocketへ転送するイベントバスを設定する
func (s *Server) SetEventBus(bus *events.Bus) {
	s.eventBus = bus
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/workers", s.handleWorkers)
	mux.HandleFunc("/api/metrics", s.handleMetrics)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))
	return mux
}

// Start はサーバーを開始し、ctx がキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.broadcastLoop(ctx)
	if s.eventBus != nil {
		go s.forwardEvents(ctx, s.eventBus.Subscribe())
	}

	logger.Info(scope, "Admin server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Workers        int  `json:"workers"`
	RunningWorkers int  `json:"running_workers"`
	QueueLength    int  `json:"queue_length"`
	Closed         bool `json:"closed"`
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		Workers:     s.pool.NumWorkers(),
		QueueLength: s.pool.QueueLen(),
		Closed:      s.pool.Closed(),
	}
	for _, w := range s.pool.Workers() {
		if w.State == worker.StateRunning.String() {
			resp.RunningWorkers++
		}
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.pool.Workers())
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	TotalJobs     uint64  `json:"total_jobs"`
	SucceededJobs uint64  `json:"succeeded_jobs"`
	FailedJobs    uint64  `json:"failed_jobs"`
	Throughput    float64 `json:"throughput"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	ErrorRate     float64 `json:"error_rate"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := MetricsResponse{}
	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		resp = MetricsResponse{
			TotalJobs:     snap.Total,
			SucceededJobs: snap.Succeeded,
			FailedJobs:    snap.Failed,
			Throughput:    snap.Throughput,
			AvgLatencyMs:  float64(snap.AverageLatency) / float64(time.Millisecond),
			P99LatencyMs:  float64(snap.P99Latency) / float64(time.Millisecond),
			ErrorRate:     snap.ErrorRate,
		}
	}

	s.writeJSON(w, resp)
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// クライアントが切断するまで保持
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

// ClientCount は接続中のWebSocketクライアント数を返す
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// forwardEvents はプールのイベントをWebSocketクライアントへ転送する
func (s *Server) forwardEvents(ctx context.Context, ch <-chan events.Event) {
	defer s.eventBus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": ev,
			})
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.ClientCount() == 0 {
				continue
			}
			s.broadcast(map[string]any{
				"type":   "status",
				"status": s.status(),
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error(scope, "Failed to encode JSON: %v", err)
	}
}
