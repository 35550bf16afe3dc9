// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"booking-scraper-service/internal/config"
	"booking-scraper-service/internal/infra/api"
	"booking-scraper-service/internal/infra/browser"
	"booking-scraper-service/internal/infra/logging"
	"booking-scraper-service/internal/infra/metrics"
	"booking-scraper-service/internal/infra/provider"
	"booking-scraper-service/internal/infra/proxy"
	red "booking-scraper-service/internal/infra/redis"
	"booking-scraper-service/internal/infra/scheduler"
	"booking-scraper-service/internal/infra/security"
	"booking-scraper-service/internal/infra/worker"
	"booking-scraper-service/internal/usecase"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (unredacted logs, console output)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Error().Err(err).Msg("redis unavailable")
		return 1
	}
	defer redisClient.Close()

	queue := red.NewJobQueue(redisClient, red.JobQueueConfig{
		Prefix:       cfg.Queue.Prefix,
		ReceiptTTL:   cfg.Queue.ReceiptTTL,
		AbandonAfter: cfg.Queue.AbandonAfter,
	})
	var sealer red.Sealer
	if cfg.Cache.EncryptionKey != "" {
		s, err := security.NewSealer(cfg.Cache.EncryptionKey)
		if err != nil {
			logger.Error().Err(err).Msg("cache encryption")
			return 1
		}
		sealer = s
	} else if !cfg.Runtime.Dev {
		logger.Warn().Msg("cache.encryption_key not set; booking records are cached in plaintext")
	}
	cache := red.NewResultCache(redisClient, sealer)

	// ---- Strategies ----
	registry, err := provider.NewDefaultRegistry(cfg.Providers, logger)
	if err != nil {
		logger.Error().Err(err).Msg("provider registry")
		return 1
	}

	// ---- Use case + HTTP ----
	uc := usecase.NewScrapeUseCase(queue, cache, registry, logger, cfg.Runtime.Dev)
	apiServer := api.NewServer(uc, api.Throttle{
		Limiter: red.NewRateLimiter(redisClient),
		Limit:   cfg.API.SubmitLimit,
		Window:  cfg.API.SubmitWindow,
	}, cfg.Server.RequestTimeout, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ---- Worker ----
	var pool *worker.Pool
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.Worker.Enabled {
		if !cfg.Proxy.Enabled {
			logger.Warn().Msg("proxy disabled; portals will see this host's address")
		}
		processor := worker.NewScrapeJobProcessor(
			queue, cache, registry,
			proxy.NewAllocator(cfg.Proxy, nil),
			browser.NewPool(cfg.Browser, cfg.Worker.Concurrency, logger),
			worker.ProcessorConfig{
				CacheTTL:     cfg.Cache.TTL,
				JobTimeout:   cfg.Worker.JobTimeout,
				DequeueBlock: cfg.Queue.DequeueBlock,
				Dev:          cfg.Runtime.Dev,
			}, logger)
		limiter := rate.NewLimiter(rate.Limit(cfg.Worker.RatePerSecond), cfg.Worker.Burst)
		pool = worker.NewPool(cfg.Worker.Concurrency, limiter, logger)
		processor.Start(workerCtx, pool)
	} else {
		metrics.SetWorkerConcurrency(0)
		logger.Info().Msg("worker disabled; running API only")
	}

	depthSampler := scheduler.NewScheduler("queue-depth", cfg.Queue.SampleEvery, func(ctx context.Context) error {
		n, err := queue.Depth(ctx)
		if err != nil {
			return err
		}
		metrics.SetQueueDepth(n)
		return nil
	}, logger)
	depthSampler.Start(ctx)
	defer depthSampler.Stop()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	exit := 0
	select {
	case sig := <-sigc:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case err := <-serveErr:
		logger.Error().Err(err).Msg("http server failed")
		exit = 1
	}

	if pool == nil {
		return drain(stopWorker, server, nil, cfg.Server.ShutdownTimeout, exit, logger)
	}
	return drain(stopWorker, server, pool, cfg.Server.ShutdownTimeout, exit, logger)
}

type httpShutdowner interface {
	Shutdown(ctx context.Context) error
}

type jobDrainer interface {
	Wait(timeout time.Duration) error
}

// drain stops job intake first so nothing new is pulled while HTTP closes,
// then waits for the in-flight job. A job already running keeps its own
// deadline. jobs is nil when the worker is disabled.
func drain(stopIntake context.CancelFunc, server httpShutdowner, jobs jobDrainer, timeout time.Duration, exit int, logger *zerolog.Logger) int {
	stopIntake()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
		exit = 1
	}

	if jobs != nil {
		if err := jobs.Wait(timeout); err != nil {
			logger.Error().Err(err).Msg("in-flight job abandoned")
			return 1
		}
	}
	logger.Info().Msg("shutdown complete")
	return exit
}
