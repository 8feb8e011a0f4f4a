package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/vhorak/payflow/internal/application/orchestrator"
	app "github.com/vhorak/payflow/internal/application/payment"
	"github.com/vhorak/payflow/internal/infrastructure/config"
	"github.com/vhorak/payflow/internal/infrastructure/observability"
	customMW "github.com/vhorak/payflow/internal/middleware"
)

type RouterDeps struct {
	Pool         *pgxpool.Pool
	RedisClient  *redis.Client
	Orchestrator *orchestrator.Orchestrator
	Payments     *app.GetPaymentQuery
	Metrics      *observability.Metrics
	CORSConfig   config.CORSConfig
	RateLimit    int
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	paymentH := NewPaymentController(deps.Orchestrator, deps.Payments)
	sagaH := NewSagaController(deps.Orchestrator)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		rateLimit := deps.RateLimit
		if rateLimit <= 0 {
			rateLimit = 300
		}
		r.Use(customMW.RateLimit(rateLimit))

		// Payments
		r.Post("/payments", paymentH.CreatePayment)
		r.Get("/payments/{id}", paymentH.GetPayment)
		r.Post("/payments/{id}/cancel", paymentH.CancelPayment)

		// Workflows
		r.Get("/sagas/{correlationID}", sagaH.GetStatus)
		r.Post("/sagas/{correlationID}/review", sagaH.ReviewDecision)
	})

	return r
}
