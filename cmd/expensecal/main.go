package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"expensecal/internal/cache"
	"expensecal/internal/cli"
	apphttp "expensecal/internal/http"
	applog "expensecal/internal/log"
	"expensecal/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig(applog.ComponentApp)

	res := cli.InitBackend(context.Background(), logger, cfg)

	calendarSvc := services.NewCalendarService(res.Store, cfg.CalendarCacheSize, cfg.CalendarCacheTTL)
	txSvc := services.NewTransactionService(res.Store, res.Publisher, calendarSvc.Invalidate)

	caches := cache.NewManager()
	caches.Register(calendarSvc.Cache())

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Transactions:       txSvc,
		Calendar:           calendarSvc,
		Store:              res.Store,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})
	caches.StartCleanup(ctx, time.Minute)

	logger.Info("Starting expensecal server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"sync_enabled", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
