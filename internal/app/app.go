// Package app assembles the HTTP service and the outbox relay from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"smartcampus/internal/cache"
	"smartcampus/internal/config"
	"smartcampus/internal/database"
	"smartcampus/internal/events"
	"smartcampus/internal/events/kafka"
	"smartcampus/internal/events/rabbitmq"
	"smartcampus/internal/metrics"
	"smartcampus/internal/middleware"
	"smartcampus/internal/modules/reservation"
	"smartcampus/internal/modules/resource"
	"smartcampus/internal/pkg/jwt"
	"smartcampus/internal/pkg/logger/sl"
	"smartcampus/internal/pkg/response"
	"smartcampus/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

type publisher interface {
	events.Publisher
	io.Closer
}

type App struct {
	log       *slog.Logger
	cfg       *config.Config
	db        *gorm.DB
	server    *http.Server
	sender    *events.Sender
	publisher publisher
	cache     *cache.AvailabilityCache

	relayCtx     context.Context
	stopRelay    context.CancelFunc
	relayStarted atomic.Bool
}

func New(log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.DBAutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("%s: auto migrate: %w", op, err)
		}
		log.Info("schema migrated")
	}
	return newApp(log, cfg, db)
}

func newApp(log *slog.Logger, cfg *config.Config, db *gorm.DB) (*App, error) {
	const op = "app.newApp"

	m := metrics.New()
	schedule := resource.NewSchedule(cfg.Location)

	resourceRepo := repository.NewResourceRepository(db)
	reservationRepo := repository.NewReservationRepository(db)

	a := &App{log: log, cfg: cfg, db: db}

	// keep the interfaces nil rather than holding a nil *AvailabilityCache
	var (
		resourceCache    resource.CacheInvalidator
		reservationCache reservation.AvailabilityCache
	)
	if cfg.Redis.Enabled() {
		a.cache = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := a.cache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, availability reads will hit the database", sl.Err(err))
		}
		cancel()
		resourceCache = a.cache
		reservationCache = a.cache
	}

	resourceService := resource.NewService(log, resourceRepo, schedule, resourceCache)
	reservationService := reservation.NewService(log, reservationRepo, resourceService, schedule, reservationCache, m,
		reservation.Config{
			CreateAttempts: cfg.Reservations.CreateAttempts,
			StatusAttempts: cfg.Reservations.StatusAttempts,
		})

	tokens := jwt.New(cfg.JWTSecret, cfg.JWTAccessTTL)
	router := newRouter(log, cfg, m, tokens, resource.NewHandler(resourceService), reservation.NewHandler(reservationService))
	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	store, err := repository.NewOutboxStore(db)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.publisher = newPublisher(log, cfg.Events)
	a.sender = events.NewSender(log, a.publisher, store, m)
	a.relayCtx, a.stopRelay = context.WithCancel(context.Background())

	return a, nil
}

func newRouter(
	log *slog.Logger,
	cfg *config.Config,
	m *metrics.Metrics,
	tokens *jwt.Service,
	resources *resource.Handler,
	reservations *reservation.Handler,
) *gin.Engine {
	if cfg.AppEnv != "local" && cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorLogger(log))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(m.Middleware())

	r.GET("/healthz", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(tokens))
	v1.Use(middleware.Timeout(cfg.RequestTimeout))
	{
		resources.RegisterRoutes(v1)
		reservations.RegisterRoutes(v1)
	}
	return r
}

func newPublisher(log *slog.Logger, cfg config.EventsConfig) publisher {
	switch cfg.Transport {
	case config.TransportKafka:
		log.Info("publishing reservation events to kafka", slog.String("topic", cfg.KafkaTopic))
		return kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	case config.TransportRabbitMQ:
		log.Info("publishing reservation events to rabbitmq", slog.String("exchange", cfg.AMQPExchange))
		return rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return events.NewLogPublisher(log)
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

// Run starts the outbox relay and blocks serving HTTP until Stop is called.
func (a *App) Run() error {
	const op = "app.Run"

	a.relayStarted.Store(true)
	a.sender.StartProducing(a.relayCtx, a.cfg.Events.BatchSize, a.cfg.Events.PollInterval)

	a.log.Info("http server is running", slog.String("addr", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop drains HTTP requests, waits for the relay to finish its tick, then closes the connections.
func (a *App) Stop() error {
	const op = "app.Stop"

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	a.stopRelay()
	if a.relayStarted.Load() {
		select {
		case <-a.sender.Done():
		case <-ctx.Done():
			errs = append(errs, errors.New("outbox relay did not stop in time"))
		}
	}

	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("publisher close: %w", err))
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db close: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
