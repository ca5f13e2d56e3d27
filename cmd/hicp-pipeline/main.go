package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andre-dussing/european-public-data-pipeline/blobstore"
	"github.com/andre-dussing/european-public-data-pipeline/capture"
	"github.com/andre-dussing/european-public-data-pipeline/config"
	"github.com/andre-dussing/european-public-data-pipeline/metrics"
	"github.com/andre-dussing/european-public-data-pipeline/pipeline"
	"github.com/andre-dussing/european-public-data-pipeline/warehouse"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		stage      = flag.String("stage", "run", "Stage to execute: capture, decode, validate, load, or run")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *stage, logger); err != nil {
		var gateErr *pipeline.QualityGateError
		if errors.As(err, &gateErr) {
			logger.Error("Load blocked by quality gate",
				zap.Strings("failed_checks", gateErr.Failed),
				zap.String("report", gateErr.ReportPath))
		} else {
			logger.Error("Pipeline failed", zap.String("stage", *stage), zap.Error(err))
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config, stage string, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	store, err := blobstore.NewStore(cfg)
	if err != nil {
		return err
	}

	m := metrics.New("hicp_pipeline")
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Address, m, logger)
	}

	var sink pipeline.FactSink
	if stage == "load" || stage == "run" {
		loader, err := warehouse.NewLoader(cfg.WarehouseConnectionString(), cfg.Warehouse.Table, logger)
		if err != nil {
			return err
		}
		defer loader.Close()
		sink = loader
	}

	source := capture.NewCapturer(cfg, store, logger)
	runner := pipeline.NewRunner(cfg, store, source, sink, m, logger)

	health := NewHealthServer(cfg.Service.HealthPort, runner.Stats(), m, logger)
	health.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		health.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting pipeline",
		zap.String("service", cfg.Service.Name),
		zap.String("stage", stage),
		zap.String("dataset", cfg.Eurostat.Dataset),
		zap.String("geo", cfg.Eurostat.Geo),
		zap.String("coicop", cfg.Eurostat.Coicop))

	switch stage {
	case "capture":
		_, err = runner.Capture(ctx)
	case "decode":
		_, err = runner.Decode(ctx, "")
	case "validate":
		_, _, err = runner.Validate(ctx, "")
	case "load":
		err = runner.Load(ctx)
	case "run":
		err = runner.Run(ctx)
	default:
		err = fmt.Errorf("unknown stage %q, want capture, decode, validate, load, or run", stage)
	}
	if err != nil {
		return err
	}

	logger.Info("Stage complete", zap.String("stage", stage))
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	logger.Info("Metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Logging.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
