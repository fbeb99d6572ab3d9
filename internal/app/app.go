package app

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs-lzh/training-booking/config"
	"github.com/qs-lzh/training-booking/internal/cache"
	"github.com/qs-lzh/training-booking/internal/clock"
	"github.com/qs-lzh/training-booking/internal/guard"
	"github.com/qs-lzh/training-booking/internal/mq"
	"github.com/qs-lzh/training-booking/internal/repository"
	"github.com/qs-lzh/training-booking/internal/service/domain"
	"github.com/qs-lzh/training-booking/internal/service/workflow"
)

type App struct {
	Config *config.Config

	DB     *gorm.DB
	Cache  *cache.RedisCache
	Logger *zap.Logger
	MQConn *amqp.Connection
	Clock  clock.Clock

	Store     repository.Store
	Guard     guard.CapacityGuard
	Publisher mq.Publisher

	SessionService      domain.SessionService
	ScheduleService     domain.ScheduleQueryService
	SubscriptionService domain.SubscriptionService
	ReservationEngine   domain.ReservationEngine

	ReservationWorkflow  *workflow.ReservationWorkflow
	NotificationWorkflow *workflow.NotificationWorkflow
}

type Option func(*App)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(a *App) {
		a.Clock = c
	}
}

// New wires the service. A nil db selects the in-memory store, a nil cache
// keeps slot counters in process and a nil mqConn disables event publishing.
func New(cfg *config.Config, db *gorm.DB, redisCache *cache.RedisCache, mqConn *amqp.Connection, logger *zap.Logger, opts ...Option) *App {
	app := &App{
		Config: cfg,
		DB:     db,
		Cache:  redisCache,
		Logger: logger,
		MQConn: mqConn,
		Clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(app)
	}

	if db != nil {
		app.Store = repository.NewGormStore(db)
	} else {
		app.Store = repository.NewMemoryStore()
	}

	load := app.Store.Reservations().CountActive
	if cfg.GuardBackend == config.GuardRedis && redisCache != nil {
		app.Guard = cache.NewRedisGuard(redisCache, load, logger)
	} else {
		app.Guard = guard.NewMemoryGuard(load, logger)
	}

	if mqConn != nil {
		app.Publisher = mq.NewAMQPPublisher(mqConn)
	} else {
		app.Publisher = mq.NoopPublisher()
	}

	var entitlement domain.EntitlementChecker
	if cfg.EntitlementMode == config.EntitlementAllowAll {
		entitlement = domain.AllowAll()
	} else {
		entitlement = domain.NewSubscriptionEntitlement(app.Store.Subscriptions(), app.Clock)
	}

	app.ReservationEngine = domain.NewReservationEngine(app.Store, app.Guard, entitlement, app.Clock, logger)
	app.SessionService = domain.NewSessionService(app.Store, app.Guard, logger)
	app.ScheduleService = domain.NewScheduleQueryService(app.Store, cfg.Location)
	app.SubscriptionService = domain.NewSubscriptionService(app.Store.Subscriptions(), app.Clock)

	app.ReservationWorkflow = workflow.NewReservationWorkflow(app.ReservationEngine, app.Publisher, logger)
	app.NotificationWorkflow = workflow.NewNotificationWorkflow(logger)

	return app
}

func (app *App) Init(ctx context.Context) error {
	// rebuild slot counters from the committed reservations
	counts, err := app.Store.Reservations().CountActiveBySessions(ctx, nil)
	if err != nil {
		return err
	}
	if err := app.Guard.Reset(ctx, counts); err != nil {
		return err
	}
	app.Logger.Info("capacity guard rebuilt", zap.Int("sessions", len(counts)))

	// init rabbit mq
	if app.MQConn == nil {
		app.Logger.Warn("RABBIT_MQ_URL not set, events will not be published")
		return nil
	}
	if err := mq.InitQueues(app.MQConn); err != nil {
		return err
	}
	return app.NotificationWorkflow.Start(app.MQConn)
}

func (app *App) Close() error {
	var errs []error
	if p, ok := app.Publisher.(*mq.AMQPPublisher); ok {
		errs = append(errs, p.Close())
	}
	if app.MQConn != nil {
		errs = append(errs, app.MQConn.Close())
	}
	if app.Cache != nil {
		errs = append(errs, app.Cache.Close())
	}
	if app.DB != nil {
		sqlDB, err := app.DB.DB()
		if err != nil {
			errs = append(errs, err)
		} else {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
