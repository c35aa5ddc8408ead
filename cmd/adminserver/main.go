// Command adminserver runs the connection pool's admin HTTP surface: health,
// Prometheus metrics, and live pool tuning, backed by a real MySQL primary
// and replica set.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tasksql/taskdb/internal/adminapi"
	"github.com/tasksql/taskdb/internal/config"
	"github.com/tasksql/taskdb/internal/logger"
	"github.com/tasksql/taskdb/internal/pool"
	"github.com/tasksql/taskdb/internal/tlsprofile"
)

var configPath = flag.String("config", "config.yaml", "path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level)
	logger.Info("admin server starting", "config", *configPath)

	if err := tlsprofile.Register(cfg.TLS); err != nil {
		logger.Error("failed to register tls profiles", "error", err)
		os.Exit(1)
	}

	builder := cfg.ClusterBuilder()
	p := pool.New(builder, cfg.PoolConfig())

	var redisStore *config.RedisStore
	if cfg.Redis.Host != "" {
		redisStore, err = config.NewRedisStore(cfg.Redis)
		if err != nil {
			logger.Warn("redis connection failed, tuning hot-reload disabled", "error", err)
		} else {
			logger.Info("redis connection established")
		}
	}

	server := adminapi.NewServer(cfg.Admin, p, redisStore)

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if err := server.WatchTuning(watchCtx); err != nil {
		logger.Warn("failed to subscribe to tuning reloads", "error", err)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("admin server error", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("shutdown signal received, gracefully stopping...")
	cancelWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	if err := p.Close(); err != nil {
		logger.Error("error closing pool", "error", err)
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Error("error closing redis", "error", err)
		}
	}
	logger.Info("admin server stopped cleanly")
}
