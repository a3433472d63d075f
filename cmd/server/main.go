package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/batchauction/internal/api"
	"github.com/betbot/batchauction/internal/metrics"
	"github.com/betbot/batchauction/internal/solver"
	"github.com/betbot/batchauction/pkg/config"
	"github.com/betbot/batchauction/pkg/logger"
	"github.com/betbot/batchauction/pkg/persistence"
	"github.com/betbot/batchauction/pkg/shutdown"
	"github.com/betbot/batchauction/pkg/syncgroup"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("PRICEFINDER_CONFIG"), "配置文件路径（支持 .yaml, .yml, .json）")
		listenAddr = flag.String("listen", "", "HTTP listen address（覆盖配置 api.listen）")
		dbPath     = flag.String("db", "", "SQLite db file path（覆盖配置 api.db）")
	)
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if *listenAddr != "" {
		cfg.API.Listen = *listenAddr
	}
	if *dbPath != "" {
		cfg.API.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("配置无效: %v", err)
	}
	if err := logger.Init(cfg.Logger()); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	sm := shutdown.NewManager()

	store, err := persistence.Open(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		logrus.Fatalf("打开存储失败: %v", err)
	}
	sm.OnShutdown("store", func(context.Context) error { return store.Close() })

	srv, err := api.New(api.Config{DBPath: cfg.API.DBPath, Tokens: cfg, SolveRate: cfg.API.SolveRate}, solver.NewService(cfg.Solver, store))
	if err != nil {
		_ = store.Close()
		logrus.Fatalf("init server failed: %v", err)
	}
	sm.OnShutdown("sqlite", func(context.Context) error { return srv.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsListen != "" {
		if _, err := metrics.StartAsync(ctx, cfg.MetricsListen); err != nil {
			logrus.Fatalf("启动 metrics 失败: %v", err)
		}
		logrus.Infof("metrics listening on %s", cfg.MetricsListen)
	}

	httpSrv := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	sm.OnShutdown("http", httpSrv.Shutdown)

	sg := syncgroup.NewSyncGroup()
	sg.Add(func() error {
		logrus.Infof("batch auction api listening on %s", cfg.API.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	sg.Run()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case sig := <-stopCh:
		logrus.Infof("收到信号 %s，开始关闭", sig)
	case <-sg.Failed():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = sm.Shutdown(shutdownCtx)

	if err := sg.Wait(); err != nil {
		logrus.Errorf("server stopped with error: %v", err)
		return
	}
	logrus.Info("server stopped")
}
