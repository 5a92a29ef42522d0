package httpd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"webpool/internal/logger"
	"webpool/internal/metrics"
	"webpool/internal/worker"
)

func newTestPool(t *testing.T, size int) *worker.Pool {
	t.Helper()
	p, err := worker.NewPoolWithConfig(worker.PoolConfig{
		Size:   size,
		Logger: logger.New(io.Discard, logger.LevelError),
	})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

// exchange はnet.Pipe越しにhandleConnectionへリクエストを送り、応答を返す
func exchange(t *testing.T, s *Server, request string) string {
	t.Helper()
	client, server := net.Pipe()
	go s.handleConnection(server)

	if _, err := client.Write([]byte(request)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	resp, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	_ = client.Close()
	return string(resp)
}

// startServer はループバックで待ち受けるサーバーを起動する
func startServer(t *testing.T, config Config, pool *worker.Pool) (*Server, string, func() error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	s := New(config, pool)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	stop := func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(2 * time.Second):
			return fmt.Errorf("timeout waiting for Serve to return")
		}
	}
	return s, ln.Addr().String(), stop
}

func get(addr, requestLine string) (string, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(requestLine + "\r\nHost: localhost\r\n\r\n")); err != nil {
		return "", err
	}
	resp, err := io.ReadAll(conn)
	return string(resp), err
}

func TestRoute(t *testing.T) {
	tests := []struct {
		request string
		status  string
		page    string
		sleep   bool
	}{
		{"GET / HTTP/1.1\r\nHost: x\r\n\r\n", statusOK, pageIndex, false},
		{"GET /sleep HTTP/1.1\r\n", statusOK, pageIndex, true},
		{"GET /other HTTP/1.1\r\n", statusNotFound, pageNotFound, false},
		{"POST / HTTP/1.1\r\n", statusNotFound, pageNotFound, false},
		{"GET / HTTP/1.0\r\n", statusNotFound, pageNotFound, false},
		{"", statusNotFound, pageNotFound, false},
	}

	for _, tt := range tests {
		status, page, sleep := route([]byte(tt.request))
		if status != tt.status || page != tt.page || sleep != tt.sleep {
			t.Errorf("route(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.request, status, page, sleep, tt.status, tt.page, tt.sleep)
		}
	}
}

func TestFormatResponse(t *testing.T) {
	got := string(formatResponse(statusOK, []byte("hello")))
	want := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	if got != want {
		t.Errorf("formatResponse = %q, want %q", got, want)
	}

	empty := string(formatResponse(statusInternalError, nil))
	if empty != "HTTP/1.1 500 INTERNAL SERVER ERROR\r\nContent-Length: 0\r\n\r\n" {
		t.Errorf("unexpected empty response: %q", empty)
	}
}

func TestStatusCode(t *testing.T) {
	if got := statusCode(statusNotFound); got != "404" {
		t.Errorf("expected 404, got %q", got)
	}
	if got := statusCode(""); got != "" {
		t.Errorf("expected empty code, got %q", got)
	}
}

func TestHandleConnectionIndex(t *testing.T) {
	s := New(DefaultConfig(), nil)

	resp := exchange(t, s, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")

	index, _ := embeddedPages.ReadFile("pages/index.html")
	want := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(index), index)
	if resp != want {
		t.Errorf("unexpected response:\n%s", resp)
	}
}

func TestHandleConnectionNotFound(t *testing.T) {
	s := New(DefaultConfig(), nil)

	resp := exchange(t, s, "GET /missing HTTP/1.1\r\n\r\n")

	if !strings.HasPrefix(resp, "HTTP/1.1 404 NOT FOUND\r\n") {
		t.Errorf("expected 404, got:\n%s", resp)
	}
	if !strings.Contains(resp, "Oops!") {
		t.Error("expected 404 page body")
	}
}

func TestHandleConnectionSleep(t *testing.T) {
	config := DefaultConfig()
	config.SleepDelay = 50 * time.Millisecond
	s := New(config, nil)

	start := time.Now()
	resp := exchange(t, s, "GET /sleep HTTP/1.1\r\n\r\n")

	if elapsed := time.Since(start); elapsed < config.SleepDelay {
		t.Errorf("expected response after at least %v, got %v", config.SleepDelay, elapsed)
	}
	if !strings.HasPrefix(resp, statusOK) {
		t.Errorf("expected 200, got:\n%s", resp)
	}
}

func TestHandleConnectionStaticDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("custom"), 0644); err != nil {
		t.Fatalf("failed to write page: %v", err)
	}

	config := DefaultConfig()
	config.StaticDir = dir
	s := New(config, nil)

	resp := exchange(t, s, "GET / HTTP/1.1\r\n\r\n")
	if resp != "HTTP/1.1 200 OK\r\nContent-Length: 6\r\n\r\ncustom" {
		t.Errorf("unexpected response: %q", resp)
	}

	// 404.html が存在しない場合は500
	resp = exchange(t, s, "GET /nope HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(resp, statusInternalError) {
		t.Errorf("expected 500 for missing page, got %q", resp)
	}
}

func TestHandleConnectionRecordsMetrics(t *testing.T) {
	m := metrics.New()
	s := New(DefaultConfig(), nil)
	s.SetMetrics(m, nil)

	_ = exchange(t, s, "GET / HTTP/1.1\r\n\r\n")
	_ = exchange(t, s, "GET /x HTTP/1.1\r\n\r\n")

	if m.Total() != 2 || m.Succeeded() != 2 {
		t.Errorf("expected 2 successful requests, got %d/%d", m.Succeeded(), m.Total())
	}
}

func TestServeThroughPool(t *testing.T) {
	pool := newTestPool(t, 4)
	s, addr, stop := startServer(t, DefaultConfig(), pool)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var bad []string
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			line := "GET / HTTP/1.1"
			want := statusOK
			if i%2 == 1 {
				line, want = "GET /unknown HTTP/1.1", statusNotFound
			}
			resp, err := get(addr, line)
			if err != nil || !strings.HasPrefix(resp, want) {
				mu.Lock()
				bad = append(bad, resp)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(bad) > 0 {
		t.Errorf("%d unexpected responses, first: %q", len(bad), bad[0])
	}
	if err := stop(); err != nil {
		t.Errorf("Serve returned %v", err)
	}
	if s.Addr() == nil {
		t.Error("expected listener address")
	}
}

func TestServeSleepDoesNotBlockOtherWorkers(t *testing.T) {
	pool := newTestPool(t, 2)

	config := DefaultConfig()
	config.SleepDelay = 300 * time.Millisecond
	_, addr, stop := startServer(t, config, pool)
	defer func() { _ = stop() }()

	go func() { _, _ = get(addr, "GET /sleep HTTP/1.1") }()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	resp, err := get(addr, "GET / HTTP/1.1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= config.SleepDelay {
		t.Errorf("index request waited for the sleeping request (%v)", elapsed)
	}
	if !strings.HasPrefix(resp, statusOK) {
		t.Errorf("expected 200, got %q", resp)
	}
}

func TestServeWithMaxConns(t *testing.T) {
	pool := newTestPool(t, 2)

	config := DefaultConfig()
	config.MaxConns = 1
	_, addr, stop := startServer(t, config, pool)

	for i := 0; i < 3; i++ {
		resp, err := get(addr, "GET / HTTP/1.1")
		if err != nil || !strings.HasPrefix(resp, statusOK) {
			t.Errorf("expected 200, got %q (%v)", resp, err)
		}
	}
	if err := stop(); err != nil {
		t.Errorf("Serve returned %v", err)
	}
}

func TestServeStopsWhenPoolClosed(t *testing.T) {
	pool, err := worker.NewPoolWithConfig(worker.PoolConfig{
		Size:   1,
		Logger: logger.New(io.Discard, logger.LevelError),
	})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	pool.Shutdown()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	s := New(DefaultConfig(), pool)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(context.Background(), ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case err := <-errCh:
		if err == nil || !bytes.Contains([]byte(err.Error()), []byte("pool is shut down")) {
			t.Errorf("expected dispatch error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Serve to fail")
	}
}
