package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"cuzdan/internal/cache"
	"cuzdan/internal/cli"
	"cuzdan/internal/core"
	apphttp "cuzdan/internal/http"
	"cuzdan/internal/log"
	"cuzdan/internal/metrics"
	"cuzdan/internal/middleware/ratelimit"
	"cuzdan/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	backendResult := cli.InitStore(context.Background(), logger, cfg)

	m := metrics.New()

	highlightCache := cache.NewLRUCache[[]core.HighlightedDate](cfg.HighlightCacheSize, cfg.HighlightCacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(highlightCache)
	cacheManager.StartCleanup(time.Minute)

	calendar := services.NewCalendarService(backendResult.Store, highlightCache, m, logger, services.CalendarConfig{
		Debounce: cfg.RecomputeDebounce,
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:    backendResult.Store,
		Calendar: calendar,
		Metrics:  m,
		Logger:   logger,
		Defaults: cli.HighlightOptions(cfg),
		RateLimit: ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitRPM,
			Burst:             cfg.RateLimitBurst,
		},
	})

	// Configure server timeouts and limits. The highlight stream lifts the
	// write deadline for itself.
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if backendResult.Cleanup != nil {
			if err := backendResult.Cleanup(); err != nil {
				logger.Error("Store cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting cuzdan server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		log.FieldPastMonths, cfg.HighlightPastMonths,
		log.FieldFutureMonths, cfg.HighlightFutureMonths)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
