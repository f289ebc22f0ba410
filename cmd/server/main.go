package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	jwttoken "credtrust/internal/jwt_token"
	"credtrust/internal/ledger"
	ledgermetrics "credtrust/internal/ledger/metrics"
	ledgermodels "credtrust/internal/ledger/models"
	ledgerstore "credtrust/internal/ledger/store"
	"credtrust/internal/platform/config"
	"credtrust/internal/platform/database"
	"credtrust/internal/platform/httpserver"
	"credtrust/internal/platform/logger"
	"credtrust/internal/platform/metrics"
	"credtrust/internal/platform/redis"
	"credtrust/internal/ratelimit"
	"credtrust/internal/trust"
	trusthandler "credtrust/internal/trust/handler"
	"credtrust/internal/verification/engine"
	"credtrust/internal/verification/issuer"
	"credtrust/internal/verification/methods"
	verificationmetrics "credtrust/internal/verification/metrics"
	"credtrust/internal/verification/signature"
	"credtrust/pkg/platform/audit"
	"credtrust/pkg/platform/audit/publisher"
	auditkafka "credtrust/pkg/platform/audit/publishers/kafka"
	auditmemory "credtrust/pkg/platform/audit/store/memory"
	auditpostgres "credtrust/pkg/platform/audit/store/postgres"
	"credtrust/pkg/platform/circuit"
	"credtrust/pkg/platform/httputil"
	"credtrust/pkg/platform/middleware/metadata"
	"credtrust/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		var err error
		db, err = database.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	blocks, err := ledgerstore.Open(ctx, cfg.Ledger, db)
	if err != nil {
		return err
	}
	l := ledger.New(blocks,
		ledger.WithLogger(log),
		ledger.WithMetrics(ledgermetrics.New(m.Registry)),
	)

	auditor, closeAudit, err := buildAuditor(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	eng, err := buildEngine(cfg, l, redisClient, verificationmetrics.New(m.Registry), log)
	if err != nil {
		return err
	}

	svc := trust.New(l, eng, trust.WithLogger(log), trust.WithAuditor(auditor))
	if err := svc.Open(ctx); err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	var limitStore ratelimit.Store = ratelimit.NewInMemoryStore()
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient.Client)
	}
	limiter := ratelimit.NewMiddleware(limitStore, log, ratelimit.WithDisabled(cfg.RateLimit.VerifyLimit <= 0))
	h := trusthandler.New(svc, log, jwttoken.NewJWTServiceAdapter(jwtService),
		trusthandler.WithVerifyMiddleware(limiter.PerIP("verify", cfg.RateLimit.VerifyLimit, cfg.RateLimit.Window)),
	)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(m.Middleware)
	r.Get("/healthz", healthHandler(l, redisClient))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	h.Register(r)

	srv := httpserver.New(cfg.Server.Addr, r)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting credtrust", "addr", cfg.Server.Addr, "ledger_backend", cfg.Ledger.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	closeAudit()
	return l.Shutdown(shutdownCtx)
}

// buildAuditor picks Postgres as the system of record when a database is
// configured and adds Kafka as a fan-out sink when brokers are set.
func buildAuditor(ctx context.Context, cfg config.Config, db *sql.DB, log *slog.Logger) (*publisher.Publisher, func(), error) {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if db != nil {
		pg := auditpostgres.New(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		store = pg
	}

	opts := []publisher.Option{publisher.WithLogger(log), publisher.WithAsyncBuffer(1024)}
	var producer *auditkafka.Producer
	if cfg.Kafka.Enabled() {
		var err error
		producer, err = auditkafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return nil, nil, err
		}
		if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("audit topic bootstrap failed", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		opts = append(opts, publisher.WithSinks(producer))
	}

	pub := publisher.NewPublisher(store, opts...)
	closed := false
	return pub, func() {
		if closed {
			return
		}
		closed = true
		pub.Close()
		if producer != nil {
			producer.Close()
		}
	}, nil
}

func buildEngine(cfg config.Config, l *ledger.Ledger, redisClient *redis.Client, vm *verificationmetrics.Metrics, log *slog.Logger) (*engine.Engine, error) {
	keyring, err := signature.NewStaticKeyring(cfg.Signing.PublicKeys)
	if err != nil {
		return nil, err
	}

	registry := issuer.NewHTTPRegistry(cfg.Issuer.Endpoints,
		issuer.WithHTTPClient(&http.Client{Timeout: cfg.Issuer.Timeout}),
		issuer.WithRateLimit(cfg.Issuer.RatePerSecond, cfg.Issuer.Burst),
		issuer.WithBreakerOptions(
			circuit.WithFailureThreshold(cfg.Issuer.FailureThreshold),
			circuit.WithCooldown(cfg.Issuer.Cooldown),
		),
		issuer.WithHTTPLogger(log),
		issuer.WithHTTPMetrics(vm),
	)
	var cache issuer.Cache = issuer.NewInMemoryCache(cfg.Issuer.CacheTTL)
	if redisClient != nil {
		cache = issuer.NewRedisCache(redisClient.Client, cfg.Issuer.CacheTTL, vm)
	}

	qr, err := methods.NewQRPresence()
	if err != nil {
		return nil, err
	}
	ms := []methods.Method{
		methods.NewFileIntegrity(),
		methods.NewSignaturePresence(keyring),
		qr,
		methods.NewIssuerAPILookup(issuer.NewCachedRegistry(registry, cache, log, vm)),
		methods.NewLedgerMembership(l),
	}
	return engine.New(ms, engine.FromScoring(cfg.Scoring),
		engine.WithLogger(log),
		engine.WithMetrics(vm),
	)
}

func healthHandler(l *ledger.Ledger, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"ledger": string(l.State())}
		code := http.StatusOK
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := redisClient.Health(ctx); err != nil {
				status["redis"] = "unavailable"
				code = http.StatusServiceUnavailable
			} else {
				status["redis"] = "ok"
			}
		}
		if l.State() != ledgermodels.StateActive {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, status)
	}
}
