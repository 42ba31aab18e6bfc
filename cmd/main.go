package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/loomery/matchd/internal/adapters/http/api"
	app "github.com/loomery/matchd/internal/app"
	"github.com/loomery/matchd/internal/config"
	"github.com/loomery/matchd/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// The service registry carries its own collectors; drop the default
	// Go runtime ones to avoid duplicates.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithDimension(cfg.Dimension),
		app.WithModelVersion(cfg.ModelVersion),
		app.WithIndexShape(cfg.IndexCells, cfg.IndexProbes),
		app.WithCandidateK(cfg.CandidateK),
		app.WithResultLimits(cfg.DefaultLimit, cfg.MaxLimit),
		app.WithMinScore(cfg.MinScore),
		app.WithSignalWeights(cfg.SignalWeights),
		app.WithPartialCredit(cfg.PartialCredit),
		app.WithFuzzyMatching(cfg.FuzzyMaxDistance, cfg.OverlapThreshold),
		app.WithKeepUnresolved(cfg.KeepUnresolved),
		app.WithHalfLife(time.Duration(cfg.HalfLifeHours)*time.Hour),
		app.WithHistoryWindow(cfg.HistoryWindow),
		app.WithDiversityCap(cfg.DiversityCap),
		app.WithCache(cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second),
		app.WithQueueSize(cfg.ReembedQueueSize),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithIndexRetry(cfg.IndexRetryAttempts, time.Duration(cfg.IndexRetryBackoffMS)*time.Millisecond),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Periodic gauge refresh (queue depth, index size, entity counts).
	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	apiServer := api.NewServer(svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// startServiceMetricsUpdater refreshes service gauges on a fixed cadence.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.Stats(ctx)
		}
	}
}
