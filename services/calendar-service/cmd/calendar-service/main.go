package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/salonflow/calendar-sync/libs/auth"
	"github.com/salonflow/calendar-sync/libs/config"
	"github.com/salonflow/calendar-sync/libs/db"
	"github.com/salonflow/calendar-sync/libs/httpx"
	"github.com/salonflow/calendar-sync/libs/kafkax"
	otelx "github.com/salonflow/calendar-sync/libs/otel"
	"github.com/salonflow/calendar-sync/libs/redisx"
	"github.com/salonflow/calendar-sync/libs/runtime"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/handlers"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/notify"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/outbox"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/payments"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/session"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "calendar-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	// Redis carries the tenant change feed. Without it the service still
	// serves reads and writes, just without live updates.
	var rdb *redis.Client
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		rdb, err = redisx.Open(ctx, redisURL)
		if err != nil {
			logger.Error("redis connection failed, live updates disabled", "err", err)
			rdb = nil
		} else {
			defer func() { _ = rdb.Close() }()
		}
	} else {
		logger.Warn("REDIS_URL not set, live updates disabled")
	}

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	repo := storage.NewAppointmentRepository(pool, outboxRepo, logger)
	catalog := storage.NewCatalogRepository(pool)

	var notifier session.Notifier
	if rdb != nil {
		notifier = notify.NewPublisher(rdb, logger)
	}
	sessions := session.NewManager(session.ManagerConfig{
		Repo:           repo,
		Catalog:        catalog,
		Notifier:       notifier,
		Redis:          rdb,
		Logger:         logger,
		CooldownWindow: config.Duration("REFRESH_COOLDOWN", 300*time.Millisecond),
		BaseContext:    ctx,
	})
	defer sessions.Close()

	paymentsService := payments.NewService(
		config.String("STRIPE_SECRET_KEY", ""),
		config.String("PAYMENTS_CURRENCY", "eur"),
		logger,
	)

	jwtSecret := config.String("JWT_SECRET", "")
	jwksURL := config.String("JWKS_URL", "")
	var jwksClient *auth.JWKSClient
	if jwksURL != "" {
		jwksClient = auth.NewJWKSClient(jwksURL, config.Duration("JWKS_CACHE_TTL", 5*time.Minute))
	}
	if jwtSecret == "" && jwksClient == nil {
		panic("either JWT_SECRET or JWKS_URL must be set")
	}

	calendarHandler := handlers.NewCalendarHandler(sessions, logger)
	paymentsHandler := handlers.NewPaymentsHandler(sessions, paymentsService, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	protect := func(h http.HandlerFunc) http.Handler {
		return handlers.RequireSalon(h, jwtSecret, jwksClient)
	}
	mux.Handle("/api/v1/calendar", protect(calendarHandler.Calendar))
	mux.Handle("/api/v1/appointments", protect(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			calendarHandler.Update(w, r)
			return
		}
		calendarHandler.Create(w, r)
	}))
	mux.Handle("/api/v1/appointments/update", protect(calendarHandler.Update))
	mux.Handle("/api/v1/appointments/delete", protect(calendarHandler.Delete))
	mux.Handle("/api/v1/line-items/delete", protect(calendarHandler.DeleteLineItem))
	mux.Handle("/api/v1/refresh", protect(calendarHandler.Refresh))
	mux.Handle("/api/v1/team-members", protect(calendarHandler.TeamMembers))
	mux.Handle("/api/v1/statuses", protect(calendarHandler.Statuses))
	mux.Handle("/api/v1/feed-status", protect(calendarHandler.FeedStatus))
	mux.Handle("/api/v1/payments/intent", protect(paymentsHandler.CreateIntent))

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitOrigins(config.String("CORS_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
	}
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 600)
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, "rl:calendar")
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		limiter := httpx.NewRateLimiter(rateLimit, time.Minute)
		middlewares = append(middlewares, limiter.Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "calendar")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}
