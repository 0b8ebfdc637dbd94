package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/charge-gateway/internal/application/charge"
	"github.com/cassiomorais/charge-gateway/internal/bootstrap"
	"github.com/cassiomorais/charge-gateway/internal/controller"
	infraRedis "github.com/cassiomorais/charge-gateway/internal/infrastructure/redis"
	"github.com/cassiomorais/charge-gateway/internal/repository/postgres"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "charge-gateway-api", "gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	locker := postgres.NewAdvisoryLocker(app.Pool)
	responseCache := infraRedis.NewResponseCache(app.Redis, app.Config.Redis.ResponseCacheTTL)

	// --- Application services ---
	processor := charge.NewBreakerProcessor("stub", charge.NewStubProcessor())
	chargeUC := charge.NewUseCase(
		txManager,
		locker,
		idempotencyRepo,
		paymentRepo,
		outboxRepo,
		processor,
		responseCache,
		app.Metrics,
		app.Logger,
		app.Config.Idempotency.Scope,
		app.Config.Idempotency.StaleInProgressAfter,
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:        app.Pool,
		RedisClient: app.Redis,
		ChargeUC:    chargeUC,
		PaymentRepo: paymentRepo,
		Metrics:     app.Metrics,
		CORSConfig:  app.Config.Server.CORS,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
