package main

import (
	"context"
	"expvar"
	"log"
	"runtime"
	"time"

	"github.com/hilthontt/haven/internal/application/games"
	"github.com/hilthontt/haven/internal/application/usecases/circle"
	"github.com/hilthontt/haven/internal/application/usecases/game"
	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/audio"
	"github.com/hilthontt/haven/internal/infrastructure/auth"
	"github.com/hilthontt/haven/internal/infrastructure/configs"
	"github.com/hilthontt/haven/internal/infrastructure/env"
	"github.com/hilthontt/haven/internal/infrastructure/events"
	"github.com/hilthontt/haven/internal/infrastructure/jobs"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/messaging"
	"github.com/hilthontt/haven/internal/infrastructure/metrics"
	"github.com/hilthontt/haven/internal/infrastructure/profanity"
	"github.com/hilthontt/haven/internal/infrastructure/ratelimiter"
	memrepo "github.com/hilthontt/haven/internal/infrastructure/repository"
	"github.com/hilthontt/haven/internal/infrastructure/tracing"
	"github.com/hilthontt/haven/internal/infrastructure/ws"
	"github.com/hilthontt/haven/internal/persistence/db"
	mongorepo "github.com/hilthontt/haven/internal/persistence/repository"
	"github.com/hilthontt/haven/internal/presentation/api"
	"github.com/hilthontt/haven/internal/presentation/handler/circles"
	gamesHandler "github.com/hilthontt/haven/internal/presentation/handler/games"
	"github.com/hilthontt/haven/internal/presentation/handler/health"
	"github.com/hilthontt/haven/internal/presentation/handler/signal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	auditLogCapacity = 1000
	auditSweepPeriod = 24 * time.Hour
)

type stores struct {
	circles  domain.CircleRepository
	sessions domain.GameSessionRepository
	audit    domain.CircleAuditRepository
	checks   map[string]health.Check
	close    func()
}

// @title          Haven API
// @version        1.0
// @description    Support circles with voice signaling and in-circle games.
// @BasePath       /api
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
func main() {
	env.Load()

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(&cfg.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		sh, err := tracing.InitTracer(tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
			Exporter:    cfg.Tracing.Exporter,
			Endpoint:    cfg.Tracing.Endpoint,
		})
		if err != nil {
			logger.Fatal(logging.General, logging.Startup, "Failed to initialize the tracer", logging.WithError(err, nil))
		}
		defer func() { _ = sh(context.Background()) }()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	st := openStores(ctx, cfg, logger)
	defer st.close()

	var publisher domain.CircleEventPublisher = events.NewDirectPublisher(st.audit)
	if cfg.RabbitMQ.Enabled {
		rabbitmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URI)
		if err != nil {
			logger.Fatal(logging.RabbitMQ, logging.Startup, "Failed to connect to RabbitMQ", logging.WithError(err, nil))
		}
		defer rabbitmq.Close()

		publisher = events.NewCirclePublisher(rabbitmq)

		consumer := events.NewCircleConsumer(rabbitmq, st.audit, logger)
		go func() {
			if err := consumer.Listen(ctx); err != nil {
				logger.Error(logging.RabbitMQ, logging.Consume, "Circle consumer stopped", logging.WithError(err, nil))
			}
		}()
	}

	rlCache := ratelimiter.NewInMemory()
	if cfg.RateLimiter.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal(logging.Redis, logging.Startup, "Failed to connect to Redis", logging.WithError(err, nil))
		}
		rlCache = ratelimiter.NewRedis(client, "haven:")
		st.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	defer rlCache.Close()

	rl := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		Cache:            rlCache,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	})
	joinLimiter := ratelimiter.NewFixedWindowRateLimiter(cfg.RateLimiter.JoinCodeAttempts, cfg.RateLimiter.JoinCodeWindow)
	defer joinLimiter.Close()

	wsCore := ws.NewCore(rl, m, logger)
	go wsCore.Run(ctx)

	moderator, err := profanity.Default()
	if err != nil {
		logger.Fatal(logging.General, logging.Startup, "Failed to load the profanity filter", logging.WithError(err, nil))
	}

	circleUseCase := circle.NewCircleUseCase(circle.Dependencies{
		Circles:   st.circles,
		Sessions:  st.sessions,
		Publisher: publisher,
		Signaler:  wsCore,
		Audio:     audio.NewTokenProvider(cfg.Audio.AppID, cfg.Audio.Certificate, cfg.Audio.TokenTTL),
		Moderator: moderator,
		Metrics:   m,
		Logger:    logger,
	}, circle.Config{
		DefaultMaxParticipants: cfg.Circles.DefaultMaxParticipants,
		JoinCodeAttempts:       cfg.Circles.JoinCodeAttempts,
		ListLimit:              cfg.Circles.ListLimit,
		PrivilegedListLimit:    cfg.Circles.PrivilegedListLimit,
	})

	gameUseCase := game.NewGameUseCase(game.Dependencies{
		Circles:   st.circles,
		Sessions:  st.sessions,
		Publisher: publisher,
		Signaler:  wsCore,
		Rules:     games.NewRegistry(games.NewImposter(cfg.Games.DiscussionDuration)),
		Metrics:   m,
		Logger:    logger,
	})

	expiryJob := jobs.NewCircleExpiryJob(circleUseCase, m, logger, cfg.Circles.SweepInterval)
	go expiryJob.Start(ctx)
	defer expiryJob.Stop()

	retentionJob := jobs.NewAuditRetentionJob(st.audit, logger, mongorepo.AuditLogRetention, auditSweepPeriod)
	go retentionJob.Start(ctx)
	defer retentionJob.Stop()

	tokens := auth.NewJWTManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	app := api.NewApplication(
		*cfg,
		circles.NewHandler(circleUseCase, joinLimiter, logger),
		gamesHandler.NewHandler(gameUseCase, logger),
		signal.NewHandler(circleUseCase, wsCore, cfg.HTTP.AllowedOrigins, logger),
		health.NewHandler(st.checks),
		tokens,
		logger,
		rl,
		m,
	)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	if err := app.Run(mux); err != nil {
		logger.Error(logging.General, logging.Shutdown, "Server stopped with error", logging.WithError(err, nil))
	}
}

func openStores(ctx context.Context, cfg *configs.Config, logger logging.Logger) stores {
	if cfg.Store.Backend != configs.StoreMongo {
		logger.Info(logging.General, logging.Startup, "Using in-memory store", nil)
		return stores{
			circles:  memrepo.NewCircleRepository(),
			sessions: memrepo.NewGameSessionRepository(),
			audit:    memrepo.NewCircleAuditLogRepository(auditLogCapacity),
			checks:   map[string]health.Check{},
			close:    func() {},
		}
	}

	client, err := db.NewMongoClient(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Fatal(logging.MongoDB, logging.Startup, "Failed to connect to MongoDB", logging.WithError(err, nil))
	}
	database := db.GetDatabase(client, cfg.Mongo)

	audit := mongorepo.NewCircleAuditLogRepository(database)
	if err := mongorepo.EnsureIndexes(ctx, database); err != nil {
		logger.Fatal(logging.MongoDB, logging.Startup, "Failed to create indexes", logging.WithError(err, nil))
	}
	if err := audit.EnsureIndexes(ctx); err != nil {
		logger.Fatal(logging.MongoDB, logging.Startup, "Failed to create audit log indexes", logging.WithError(err, nil))
	}

	return stores{
		circles:  mongorepo.NewCircleRepository(database),
		sessions: mongorepo.NewGameSessionRepository(database),
		audit:    audit,
		checks: map[string]health.Check{
			"mongo": func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
		},
		close: func() {
			if err := db.DisconnectMongo(context.Background(), client, logger); err != nil {
				logger.Error(logging.MongoDB, logging.Shutdown, "Failed to disconnect", logging.WithError(err, nil))
			}
		},
	}
}
