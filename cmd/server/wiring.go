package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	"attestor/internal/admin"
	attestationhandler "attestor/internal/attestation/handler"
	"attestor/internal/attestation/lock"
	attestationmetrics "attestor/internal/attestation/metrics"
	"attestor/internal/attestation/service"
	"attestor/internal/attestation/signer"
	"attestor/internal/attestation/store"
	"attestor/internal/audit"
	auditkafka "attestor/internal/audit/store/kafka"
	auditmemory "attestor/internal/audit/store/memory"
	auditpostgres "attestor/internal/audit/store/postgres"
	httpapi "attestor/internal/http"
	jwttoken "attestor/internal/jwt_token"
	"attestor/internal/platform/config"
	"attestor/internal/platform/kafka"
	"attestor/internal/platform/metrics"
	"attestor/internal/platform/middleware"
	"attestor/internal/platform/postgres"
	"attestor/internal/platform/redis"
	"attestor/internal/ratelimit"
)

const auditBufferSize = 1024

// application owns every long-lived resource built at startup.
type application struct {
	Router http.Handler
	Signer *signer.Signer

	db        *sql.DB
	redis     *redis.Client
	kafka     *kgo.Client
	publisher *audit.Publisher
	log       *slog.Logger
}

func build(ctx context.Context, cfg *config.Server, log *slog.Logger) (*application, error) {
	app := &application{log: log}

	// A missing or malformed authority key is fatal: never serve unsigned.
	sgn, err := signer.Load(cfg.AuthorityKeyHex)
	if err != nil {
		return nil, fmt.Errorf("load authority key: %w", err)
	}
	app.Signer = sgn
	log.Info("authority signer loaded", "authority_address", sgn.Address().Hex())

	clientIP, err := middleware.NewClientIPResolver(cfg.TrustedProxies)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	if cfg.Admin.DevSigningKey {
		log.Warn("ADMIN_JWT_SIGNING_KEY not set, admin tokens use the public development key",
			"environment", cfg.Environment)
	}

	identities, err := app.identityStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	locker, err := app.locker(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	auditStore, auditTrail, err := app.auditSinks(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.publisher = audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(auditBufferSize),
		audit.WithLogger(log),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := service.New(identities, locker, sgn,
		service.WithLogger(log),
		service.WithAuditPublisher(app.publisher),
		service.WithMetrics(attestationmetrics.New(reg)),
		service.WithLockWait(cfg.Lock.WaitTimeout),
	)
	jwtService := jwttoken.NewJWTService(cfg.Admin.JWTSigningKey, cfg.Admin.JWTIssuer)

	app.Router = httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		ClientIP:       clientIP,
		Modules: []httpapi.Registrar{
			attestationhandler.New(svc, log, app.issuanceLimiter(ctx, cfg, reg, clientIP)...),
			admin.New(svc, jwttoken.NewMiddlewareAdapter(jwtService), log, admin.WithHistory(auditTrail)),
		},
	})
	return app, nil
}

func (a *application) identityStore(ctx context.Context, cfg *config.Server) (service.IdentityStore, error) {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db == nil {
		a.log.Warn("DATABASE_URL not set, identity records are kept in memory")
		return store.NewInMemoryStore(), nil
	}
	a.db = db
	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

func (a *application) locker(ctx context.Context, cfg *config.Server) (service.Locker, error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		a.log.Warn("REDIS_URL not set, issuance locks are process-local")
		return lock.NewSharded(), nil
	}
	a.redis = client
	return lock.NewRedis(client.Client, cfg.Lock.TTL), nil
}

// issuanceLimiter shares the budget through Redis when it is configured.
func (a *application) issuanceLimiter(ctx context.Context, cfg *config.Server, reg prometheus.Registerer, clientIP *middleware.ClientIPResolver) []attestationhandler.Option {
	if cfg.Limit.PerWindow == 0 {
		a.log.Info("issuance rate limiting disabled")
		return nil
	}
	var store ratelimit.Store
	if a.redis != nil {
		store = ratelimit.NewRedisStore(a.redis.Client)
	} else {
		mem := ratelimit.NewMemoryStore()
		go sweep(ctx, mem, cfg.Limit.Window)
		store = mem
	}
	limiter := ratelimit.New(store, "issue", cfg.Limit.PerWindow, cfg.Limit.Window, a.log,
		ratelimit.WithRegisterer(reg),
		ratelimit.WithClientIPResolver(clientIP),
	)
	return []attestationhandler.Option{attestationhandler.WithIssuanceLimiter(limiter.Handler)}
}

func sweep(ctx context.Context, store *ratelimit.MemoryStore, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep(window)
		}
	}
}

// auditSinks returns the queryable trail (Postgres or memory) and, when
// brokers are configured, tees every event to Kafka as well.
func (a *application) auditSinks(ctx context.Context, cfg *config.Server) (audit.Store, audit.Reader, error) {
	var trail interface {
		audit.Store
		audit.Reader
	}
	if a.db != nil {
		pg := auditpostgres.New(a.db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		trail = pg
	} else {
		trail = auditmemory.NewInMemoryStore()
	}

	client, err := kafka.New(cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		a.log.Info("KAFKA_BROKERS not set, audit events are not streamed")
		return trail, trail, nil
	}
	a.kafka = client
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, cfg.Kafka.Partitions); err != nil {
		return nil, nil, err
	}
	return audit.FanOut{trail, auditkafka.New(client, cfg.Kafka.AuditTopic)}, trail, nil
}

// Close releases resources in reverse order of construction. The audit
// buffer is drained before its sink goes away.
func (a *application) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.Signer != nil {
		_ = a.Signer.Close()
	}
}
