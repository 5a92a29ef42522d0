// Package main is the entry point for webpool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"webpool/internal/api"
	"webpool/internal/client"
	"webpool/internal/config"
	"webpool/internal/events"
	"webpool/internal/httpd"
	"webpool/internal/logger"
	"webpool/internal/metrics"
	"webpool/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	version = "dev"
)

// options はコマンドラインで指定された値
type options struct {
	configFile string
	addr       string
	workers    int
	staticDir  string
	admin      bool
	adminAddr  string
	logLevel   string
	bench      uint64
	benchPath  string
}

func main() {
	var opts options
	showVersion := flag.Bool("version", false, "バージョンを表示")
	flag.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	flag.StringVar(&opts.addr, "addr", "", "待ち受けアドレス (デフォルト: 127.0.0.1:7878)")
	flag.IntVar(&opts.workers, "workers", 0, "ワーカー数 (デフォルト: 4)")
	flag.StringVar(&opts.staticDir, "static", "", "index.html / 404.html のディレクトリ (空なら埋め込み)")
	flag.BoolVar(&opts.admin, "admin", false, "管理API (/api, /metrics, /ws) を有効化")
	flag.StringVar(&opts.adminAddr, "admin-addr", "", "管理APIのアドレス (デフォルト: "+config.DefaultAdminAddr+")")
	flag.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	flag.Uint64Var(&opts.bench, "bench", 0, "サーバーを起動せず、-addr へ指定数のリクエストを送る")
	flag.StringVar(&opts.benchPath, "bench-path", "/", "-bench で使うリクエストパス")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `webpool - HTTP hello server backed by a fixed-size worker pool

Usage:
  webpool [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # 4ワーカーで起動
  webpool --workers 4

  # 設定ファイルから起動
  webpool --config webpool.yaml

  # 管理APIを有効化
  webpool --admin --admin-addr :9090

  # 起動中のサーバーへ1000リクエスト
  webpool --bench 1000 --addr 127.0.0.1:7878
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("webpool version %s\n", version)
		return
	}

	fileConfig, err := loadConfig(opts)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}

	level, err := fileConfig.LogLevel()
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(level)

	serverConfig, err := fileConfig.ToServerConfig()
	if err != nil {
		logger.Error("", "設定変換エラー: %v", err)
		os.Exit(1)
	}

	if opts.bench > 0 {
		if err := runBench(serverConfig, opts); err != nil {
			logger.Error("", "ベンチマークエラー: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(serverConfig, fileConfig.AdminAddr()); err != nil {
		logger.Error("", "サーバーエラー: %v", err)
		os.Exit(1)
	}
}

// loadConfig は設定ファイルを読み込み、フラグで上書きする
func loadConfig(opts options) (*config.FileConfig, error) {
	fileConfig := &config.FileConfig{}
	if opts.configFile != "" {
		loaded, err := config.LoadFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		fileConfig = loaded
	}

	// フラグでオーバーライド
	if opts.addr != "" {
		fileConfig.Server.Addr = opts.addr
	}
	if opts.workers > 0 {
		fileConfig.Server.Workers = opts.workers
	}
	if opts.staticDir != "" {
		fileConfig.Server.StaticDir = opts.staticDir
	}
	if opts.admin {
		fileConfig.Admin.Enabled = true
	}
	if opts.adminAddr != "" {
		fileConfig.Admin.Addr = opts.adminAddr
	}
	if opts.logLevel != "" {
		fileConfig.Log.Level = opts.logLevel
	}

	if err := fileConfig.Validate(); err != nil {
		return nil, fmt.Errorf("設定検証エラー: %w", err)
	}
	return fileConfig, nil
}

// signalContext はSIGINT/SIGTERMでキャンセルされるコンテキストを返す
func signalContext(msg string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n" + msg)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// runServer はHTTPサーバーを起動する。
// 戻る時点でプールのShutdownが完了している
func runServer(cfg httpd.Config, adminAddr string) error {
	fmt.Println("webpool - HTTP hello server")
	fmt.Println("===========================")
	fmt.Printf("Listening: http://%s\n", cfg.Addr)
	fmt.Printf("Workers:   %d\n", cfg.Workers)
	if adminAddr != "" {
		fmt.Printf("Admin:     http://%s\n", adminAddr)
	}
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg, "webpool")
	jobMetrics := metrics.New()
	requestMetrics := metrics.New()

	bus := events.NewBus()
	defer bus.Close()

	pool, err := worker.NewPoolWithConfig(worker.PoolConfig{
		Size:      cfg.Workers,
		Metrics:   jobMetrics,
		Collector: collector,
		Events:    bus,
	})
	if err != nil {
		return err
	}
	defer pool.Shutdown()

	ctx, cancel := signalContext("中断シグナルを受信、サーバーを終了中...")
	defer cancel()

	if adminAddr != "" {
		admin := api.NewServer(adminAddr, pool)
		admin.SetMetrics(jobMetrics, reg)
		admin.SetEventBus(bus)
		go func() {
			if err := admin.Start(ctx); err != nil {
				logger.Error("api", "管理APIエラー: %v", err)
			}
		}()
	}

	srv := httpd.New(cfg, pool)
	srv.SetMetrics(requestMetrics, collector)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}

	snap := requestMetrics.Snapshot()
	logger.Info("", "Served %d requests (%d failed)", snap.Total, snap.Failed)
	return nil
}

// runBench は起動中のサーバーへ負荷をかけ、結果を表示する
func runBench(cfg httpd.Config, opts options) error {
	ctx, cancel := signalContext("中断シグナルを受信、ベンチマークを終了中...")
	defer cancel()

	benchConfig := client.DefaultConfig()
	benchConfig.Addr = cfg.Addr
	benchConfig.Path = opts.benchPath
	benchConfig.NumWorkers = opts.workers

	c := client.New(benchConfig)
	snap, err := c.RunRequests(ctx, opts.bench)
	if err != nil {
		return err
	}

	fmt.Println(client.Report(snap))
	return nil
}
