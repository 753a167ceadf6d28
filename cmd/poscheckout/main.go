// Package main запускает HTTP-сервер кассового сервиса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/pos-checkout/internal/catalog"
	"github.com/mmeshcher/pos-checkout/internal/checkout"
	"github.com/mmeshcher/pos-checkout/internal/config"
	"github.com/mmeshcher/pos-checkout/internal/handler"
	"github.com/mmeshcher/pos-checkout/internal/metrics"
	"github.com/mmeshcher/pos-checkout/internal/middleware"
	"github.com/mmeshcher/pos-checkout/internal/publisher"
	"github.com/mmeshcher/pos-checkout/internal/register"
	"github.com/mmeshcher/pos-checkout/internal/repository"
	"github.com/mmeshcher/pos-checkout/internal/service"
)

const catalogCacheTTL = 30 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	svc := service.NewService(repo)
	defer svc.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckout(reg)

	var cache catalog.Cache
	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer client.Close()
		cache = catalog.NewRedisCache(client, catalogCacheTTL)
	}
	cat := catalog.New(repo, cache, logger)

	orchestrator := checkout.New(cat, repo, logger,
		checkout.WithMetrics(checkoutMetrics),
		checkout.WithCommitTimeout(cfg.CommitTimeout),
		checkout.WithCurrencyScale(int32(cfg.CurrencyScale)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	pool := register.NewPool(cfg.CheckoutWorkers, cfg.CheckoutWorkers*16, logger)
	registers := register.NewRegistry(ctx, cat, orchestrator, pool, checkoutMetrics, logger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.SecretKey)
	h := handler.NewHandler(svc, cat, registers, logger, authMiddleware,
		handler.WithMetrics(metrics.Handler(reg)),
		handler.WithCurrencyScale(int32(cfg.CurrencyScale)),
	)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	// Воркеры оформления продаж
	g.Go(func() error {
		return pool.Run(ctx)
	})

	// Публикация событий о заказах
	if cfg.KafkaBrokers != "" {
		writer := publisher.NewKafkaWriter(cfg.KafkaBrokers)
		defer writer.Close()

		poller := publisher.New(repo, writer, time.Second, 100, checkoutMetrics, logger)
		g.Go(func() error {
			sugar.Infow("starting outbox publisher", "brokers", cfg.KafkaBrokers)
			return poller.Run(ctx)
		})
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting pos checkout server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		registers.Close()
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
