package main // Entry point package

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/movaght/cinema-booking/internal/broker"
	"github.com/movaght/cinema-booking/internal/config"
	"github.com/movaght/cinema-booking/internal/database"
	"github.com/movaght/cinema-booking/internal/handler"
	"github.com/movaght/cinema-booking/internal/ledger"
	"github.com/movaght/cinema-booking/internal/middleware"
	"github.com/movaght/cinema-booking/internal/repository"
	"github.com/movaght/cinema-booking/internal/router"
	"github.com/movaght/cinema-booking/internal/scheduler"
	"github.com/movaght/cinema-booking/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()

	log, err := newLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()

	// Redis backs the booking rate limiter; absence degrades to no limiting.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting disabled")
	}

	store := repository.NewStore(db)
	users := repository.NewUserRepo(db)
	rooms := repository.NewRoomRepo(db)
	showings := repository.NewShowingRepo(db)
	bookings := repository.NewBookingRepo(db)

	ldg := ledger.New(store, cfg.HoldTTL, log)

	// Broker adapter: the notifier publishes through it and the
	// listener's routes consume from it.  It reconnects on its own;
	// publishes while disconnected fail fast and are logged.
	var adapter *broker.Adapter
	notifier := service.NewNotifier(publisherFunc(func(ctx context.Context, topic string, payload any) error {
		return adapter.Publish(ctx, topic, payload)
	}), log)
	listener := service.NewListener(ldg, notifier, log)
	adapter = broker.New(cfg.AMQPURL, listener.Routes(), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go adapter.Run(ctx)

	sched := scheduler.New(store, notifier, cfg.SchedulerInterval, log)
	go sched.Start(ctx)

	e := echo.New()
	e.HideBanner = true

	var rateLimit echo.MiddlewareFunc
	if rdb != nil {
		rateLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	}
	router.Register(e, router.Deps{
		Auth:      handler.NewAuthHandler(cfg, users),
		Showings:  handler.NewShowingHandler(showings, ldg),
		Bookings:  handler.NewBookingHandler(ldg, bookings, notifier),
		Manage:    handler.NewManageHandler(rooms, showings),
		JWTSecret: cfg.JWTSecret,
		RateLimit: rateLimit,
	})

	addr := ":" + cfg.Port
	log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	go func() {
		if err := e.Start(addr); err != nil {
			log.Info("http server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	adapter.Close()
}

// publisherFunc adapts a closure to the service.Publisher interface so
// the notifier can be constructed before the broker adapter exists.
type publisherFunc func(ctx context.Context, topic string, payload any) error

func (f publisherFunc) Publish(ctx context.Context, topic string, payload any) error {
	return f(ctx, topic, payload)
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
