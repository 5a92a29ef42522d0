package httpd

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"webpool/internal/logger"
	"webpool/internal/metrics"
	"webpool/internal/worker"

	"golang.org/x/net/netutil"
)

//go:embed pages/*
var embeddedPages embed.FS

const scope = "httpd"

const (
	statusOK            = "HTTP/1.1 200 OK"
	statusNotFound      = "HTTP/1.1 404 NOT FOUND"
	statusInternalError = "HTTP/1.1 500 INTERNAL SERVER ERROR"

	pageIndex    = "index.html"
	pageNotFound = "404.html"
)

var (
	requestIndex = []byte("GET / HTTP/1.1\r\n")
	requestSleep = []byte("GET /sleep HTTP/1.1\r\n")
)

// Config はサーバーの設定
type Config struct {
	Addr           string        // 待ち受けアドレス
	Workers        int           // ワーカープールのサイズ
	StaticDir      string        // 空なら埋め込みページを使う
	SleepDelay     time.Duration // /sleep の待ち時間
	ReadBufferSize int           // リクエスト読み込みバッファ（バイト）
	ReadTimeout    time.Duration // リクエスト読み込みのタイムアウト（0で無制限）
	MaxConns       int           // 同時接続数の上限（0で無制限）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:7878",
		Workers:        4,
		SleepDelay:     5 * time.Second,
		ReadBufferSize: 1024,
		ReadTimeout:    30 * time.Second,
	}
}

// Server は接続ごとにワーカープールへジョブを投入するサーバー
type Server struct {
	config    Config
	pool      *worker.Pool
	pages     fs.FS
	metrics   *metrics.Metrics
	collector *metrics.Collector

	mu       sync.Mutex
	listener net.Listener
}

// New は新しいサーバーを作成する
func New(config Config, pool *worker.Pool) *Server {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultConfig().ReadBufferSize
	}

	var pages fs.FS
	if config.StaticDir != "" {
		pages = os.DirFS(config.StaticDir)
	} else {
		sub, err := fs.Sub(embeddedPages, "pages")
		if err != nil {
			panic(fmt.Errorf("httpd: embedded pages: %w", err))
		}
		pages = sub
	}

	return &Server{
		config: config,
		pool:   pool,
		pages:  pages,
	}
}

// SetMetrics はリクエストの記録先を設定する
func (s *Server) SetMetrics(m *metrics.Metrics, c *metrics.Collector) {
	s.metrics = m
	s.collector = c
}

// ListenAndServe は Config.Addr で待ち受けて Serve を呼ぶ
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve は ctx がキャンセルされるまで接続を受け付ける。
// キャンセルによる終了では nil を返す
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConns)
	}

	defer func() { _ = ln.Close() }()

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-done:
		}
	}()

	logger.Info(scope, "Listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(scope, "Shutting down.")
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		if err := s.pool.Submit(func() { s.handleConnection(conn) }); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to dispatch connection: %w", err)
		}
	}
}

// Addr はリスナーのアドレスを返す（Serve前はnil）
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConnection は1つの接続を処理する。ワーカー上で実行される
func (s *Server) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	start := time.Now()

	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(start.Add(s.config.ReadTimeout))
	}

	buf := make([]byte, s.config.ReadBufferSize)
	n, err := conn.Read(buf)
	if n == 0 {
		logger.Warn(scope, "Failed to read request from %s: %v", conn.RemoteAddr(), err)
		s.record("", time.Since(start), false)
		return
	}
	request := buf[:n]
	logger.Debug(scope, "Received request: %q", firstLine(request))

	status, page, sleep := route(request)
	if sleep {
		time.Sleep(s.config.SleepDelay)
	}

	contents, err := fs.ReadFile(s.pages, page)
	if err != nil {
		logger.Error(scope, "Failed to read %s: %v", page, err)
		status, contents = statusInternalError, nil
	}

	if _, err := conn.Write(formatResponse(status, contents)); err != nil {
		logger.Warn(scope, "Failed to write response to %s: %v", conn.RemoteAddr(), err)
		s.record(status, time.Since(start), false)
		return
	}
	s.record(status, time.Since(start), status != statusInternalError)
}

func (s *Server) record(status string, latency time.Duration, ok bool) {
	if s.metrics != nil {
		if ok {
			s.metrics.RecordSuccess(latency)
		} else {
			s.metrics.RecordFailure(latency)
		}
	}
	code := statusCode(status)
	if code == "" {
		code = "error"
	}
	s.collector.Request(code)
}

// route はリクエストの先頭からステータス行とページを決める
func route(request []byte) (status, page string, sleep bool) {
	switch {
	case bytes.HasPrefix(request, requestIndex):
		return statusOK, pageIndex, false
	case bytes.HasPrefix(request, requestSleep):
		return statusOK, pageIndex, true
	default:
		return statusNotFound, pageNotFound, false
	}
}

func formatResponse(status string, contents []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\r\nContent-Length: %d\r\n\r\n", status, len(contents))
	b.Write(contents)
	return b.Bytes()
}

// statusCode は "HTTP/1.1 200 OK" から "200" を取り出す
func statusCode(status string) string {
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func firstLine(request []byte) string {
	if i := bytes.Index(request, []byte("\r\n")); i >= 0 {
		return string(request[:i])
	}
	return string(request)
}
