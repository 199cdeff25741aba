package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/hilthontt/haven/docs"
	"github.com/hilthontt/haven/internal/infrastructure/auth"
	"github.com/hilthontt/haven/internal/infrastructure/configs"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/metrics"
	"github.com/hilthontt/haven/internal/infrastructure/ratelimiter"
	circlesHandler "github.com/hilthontt/haven/internal/presentation/handler/circles"
	gamesHandler "github.com/hilthontt/haven/internal/presentation/handler/games"
	healthHandler "github.com/hilthontt/haven/internal/presentation/handler/health"
	signalHandler "github.com/hilthontt/haven/internal/presentation/handler/signal"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const requestTimeout = 60 * time.Second

type Application struct {
	config         configs.Config
	circlesHandler *circlesHandler.Handler
	gamesHandler   *gamesHandler.Handler
	signalHandler  *signalHandler.Handler
	healthHandler  *healthHandler.Handler
	tokens         *auth.JWTManager
	logger         logging.Logger
	ratelimiter    ratelimiter.Limiter
	metrics        *metrics.Metrics
}

func NewApplication(
	config configs.Config,
	circlesHandler *circlesHandler.Handler,
	gamesHandler *gamesHandler.Handler,
	signalHandler *signalHandler.Handler,
	healthHandler *healthHandler.Handler,
	tokens *auth.JWTManager,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
	metrics *metrics.Metrics,
) *Application {
	return &Application{
		config:         config,
		circlesHandler: circlesHandler,
		gamesHandler:   gamesHandler,
		signalHandler:  signalHandler,
		healthHandler:  healthHandler,
		tokens:         tokens,
		logger:         logger,
		ratelimiter:    ratelimiter,
		metrics:        metrics,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(app.prometheusMiddleware)

	r.Use(app.enableCors)
	r.Use(app.rateLimiterMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(app.authMiddleware)

			// The signaling socket outlives any request timeout.
			r.Get("/circles/{circleId}/signal", app.signalHandler.ConnectHandler)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(requestTimeout))

				r.Route("/circles", func(r chi.Router) {
					r.Post("/", app.circlesHandler.CreateCircleHandler)
					r.Get("/", app.circlesHandler.ListCirclesHandler)
					r.Post("/join", app.circlesHandler.JoinByCodeHandler)

					r.Route("/{circleId}", func(r chi.Router) {
						r.Get("/", app.circlesHandler.GetCircleHandler)
						r.Post("/join", app.circlesHandler.JoinCircleHandler)
						r.Post("/leave", app.circlesHandler.LeaveCircleHandler)
						r.Post("/end", app.circlesHandler.EndCircleHandler)
						r.Post("/cancel", app.circlesHandler.CancelCircleHandler)
						r.Post("/flag", app.circlesHandler.FlagCircleHandler)
						r.Post("/audio-token", app.circlesHandler.AudioTokenHandler)
						r.Post("/game", app.gamesHandler.OpenSessionHandler)
					})
				})

				r.Route("/games/{sessionId}", func(r chi.Router) {
					r.Get("/", app.gamesHandler.GetSessionHandler)
					r.Post("/start", app.gamesHandler.StartHandler)
					r.Post("/roles", app.gamesHandler.AssignRolesHandler)
					r.Post("/roles/random", app.gamesHandler.AssignRandomRolesHandler)
					r.Post("/vote", app.gamesHandler.VoteHandler)
					r.Patch("/phase", app.gamesHandler.UpdatePhaseHandler)
					r.Post("/pause", app.gamesHandler.PauseHandler)
					r.Post("/resume", app.gamesHandler.ResumeHandler)
					r.Post("/rounds", app.gamesHandler.NewRoundHandler)
					r.Post("/end", app.gamesHandler.EndHandler)
					r.Post("/resolve", app.gamesHandler.ResolveHandler)
				})
			})
		})

		r.Get("/health", app.healthHandler.GetHealth)
		r.Get("/healthz", app.healthHandler.GetHealth)
		r.Get("/ready", app.healthHandler.GetReady)
		r.Get("/live", app.healthHandler.GetHealth)
	})

	if app.metrics != nil {
		r.Handle("/metrics", app.metrics.Handler())
	}
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	return r
}

func (app *Application) Run(mux http.Handler) error {
	readTimeout := app.config.HTTP.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := app.config.HTTP.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      otelhttp.NewHandler(mux, "haven-api"),
		WriteTimeout: writeTimeout,
		ReadTimeout:  readTimeout,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.healthHandler.SetHealthy(false)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Info(logging.General, logging.Shutdown, "signal caught", map[logging.ExtraKey]any{
			"Signal": s.String(),
		})

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
		"Addr": srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		"Addr": srv.Addr,
	})

	return nil
}
