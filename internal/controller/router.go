package controller

import (
	"time"

	"github.com/cassiomorais/charge-gateway/internal/application/charge"
	"github.com/cassiomorais/charge-gateway/internal/domain/payment"
	"github.com/cassiomorais/charge-gateway/internal/infrastructure/config"
	"github.com/cassiomorais/charge-gateway/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/charge-gateway/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	ChargeUC    *charge.UseCase
	PaymentRepo payment.Repository
	Metrics     *observability.Metrics
	CORSConfig  config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", IdempotencyKeyHeader},
		ExposedHeaders:   []string{"Location", IdempotencyReplayedHeader, IdempotencyRequestHashHeader},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	paymentH := NewPaymentController(deps.ChargeUC, deps.PaymentRepo)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/charges", paymentH.Charge)
		r.Get("/", paymentH.ListPayments)
		r.Get("/{id}", paymentH.GetPayment)
	})

	return r
}
