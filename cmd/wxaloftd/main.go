// Command wxaloftd accepts ACARS messages from receivers, records the
// weather observations they carry and serves them back per area.
//
// Usage:
//
//	wxaloftd [--config wxaloft.toml]
//
// Endpoints:
//
//	POST /acars (server.ingest_path)
//	    Ingest one receiver envelope: {"auth","time","channel","message"}.
//
//	GET /obs?area=NAME[&zone=TZ][&since=PT2H]
//	    Observations linked to an area, oldest first.
//
//	GET /health
//	    Liveness check.
//
//	GET /metrics
//	    Prometheus metrics.
//
// When [nats] is enabled the same envelopes are also consumed from a NATS
// subject, and when [clickhouse] is enabled accepted messages are archived.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"wxaloft/internal/api"
	"wxaloft/internal/config"
	"wxaloft/internal/ingest"
	"wxaloft/internal/logging"
	"wxaloft/internal/natsfeed"
	"wxaloft/internal/storage"
	"wxaloft/internal/wxdecoder"
)

func main() {
	configPath := flag.StringP("config", "c", envOrDefault("WXALOFT_CONFIG", ""), "path to wxaloft.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("wxaloftd exiting", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	st, err := cfg.Database.OpenStore(ctx, log.Named("storage"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	decoders := wxdecoder.Default()
	if err := cfg.Decoders.Apply(decoders); err != nil {
		return fmt.Errorf("decoders: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := ingest.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	opts := ingest.Options{
		Store:    st,
		Decoders: decoders,
		Logger:   log.Named("ingest"),
		Metrics:  metrics,
	}
	if cfg.ClickHouse.Enabled {
		archive, err := openArchive(ctx, cfg.ClickHouse)
		if err != nil {
			return err
		}
		defer archive.Close()
		opts.Archive = archive
		log.Info("archiving accepted messages to clickhouse",
			zap.String("host", cfg.ClickHouse.Host), zap.String("database", cfg.ClickHouse.Database))
	}
	svc := ingest.NewService(opts)

	if cfg.NATS.Enabled {
		feed, err := natsfeed.Connect(cfg.NATS, svc, log.Named("nats"))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer feed.Close()
	}

	server := api.NewServer(api.Config{
		Addr:           cfg.Server.Bind,
		IngestPath:     cfg.Server.IngestPath,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
	}, svc, st, metrics.Handler(), log.Named("http"))
	return server.Run(ctx)
}

func openArchive(ctx context.Context, cfg storage.ClickHouseConfig) (*storage.ClickHouseArchive, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	archive, err := storage.OpenClickHouse(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := archive.CreateSchema(ctx); err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return archive, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
