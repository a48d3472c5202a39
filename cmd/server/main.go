package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                       // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"     // request id + panic recovery
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/config" // Internal config loader
	"github.com/iliyamo/movieflex/internal/database"
	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/handler"
	"github.com/iliyamo/movieflex/internal/logging"
	"github.com/iliyamo/movieflex/internal/middleware"
	"github.com/iliyamo/movieflex/internal/notify"
	"github.com/iliyamo/movieflex/internal/payment"
	"github.com/iliyamo/movieflex/internal/queue"
	"github.com/iliyamo/movieflex/internal/repository"
	"github.com/iliyamo/movieflex/internal/router" // Internal router setup
	"github.com/iliyamo/movieflex/internal/service"
	"github.com/iliyamo/movieflex/internal/worker"
)

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.Load() // Load environment config

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

type stores struct {
	catalog  repository.CatalogStore
	bookings repository.BookingStore
	users    repository.UserStore
	tokens   repository.TokenStore
}

// redisPinger lets the readiness probe ping Redis like a *sql.DB.
type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready := map[string]handler.Pinger{}

	var st stores
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		st = stores{
			catalog:  repository.NewMemoryCatalog(),
			bookings: repository.NewMemoryBookings(),
			users:    repository.NewMemoryUsers(),
			tokens:   repository.NewMemoryTokens(),
		}
	default:
		db, err := database.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
		}
		ready["mysql"] = db
		st = stores{
			catalog:  repository.NewMovieRepo(db),
			bookings: repository.NewBookingRepo(db),
			users:    repository.NewUserRepo(db),
			tokens:   repository.NewTokenRepo(db),
		}
	}
	if err := bootstrapAdmin(ctx, cfg, st.users); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	// Redis is optional: without it the limiter and cache pass through.
	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		logger.Warn("redis unavailable; rate limiting and response cache disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		ready["redis"] = redisPinger{rdb}
	}
	cacheCfg := config.LoadCacheConfig()
	var invalidator service.Invalidator
	if inv := middleware.NewCacheInvalidator(cacheCfg, rdb); inv != nil {
		invalidator = inv
	}

	// Ticket delivery runs behind RabbitMQ when configured, in process
	// otherwise.
	delivery := service.NewTicketDelivery(notify.New(config.LoadMailConfig(), logger), logger)
	broker := config.LoadBrokerConfig()
	var (
		events queue.Publisher
		local  *queue.LocalPublisher
	)
	if broker.URL != "" {
		events = &queue.AMQPPublisher{URL: broker.URL, Queue: broker.Queue, Log: logger}
		consumer := &queue.Consumer{URL: broker.URL, Queue: broker.Queue, Handler: delivery, Log: logger}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Info("RABBITMQ_URL not set; delivering tickets in process")
		local = &queue.LocalPublisher{Handler: delivery, Log: logger}
		events = local
	}

	payCfg := config.LoadPaymentConfig()
	gateway, err := payment.New(payCfg)
	if err != nil {
		return err
	}

	bookingCfg := config.LoadBookingConfig()
	catalogSvc := service.NewCatalogService(st.catalog, invalidator, logger)
	bookingSvc := service.NewBookingService(service.BookingDeps{
		Catalog:   st.catalog,
		Bookings:  st.bookings,
		Users:     st.users,
		Events:    events,
		Cache:     invalidator,
		Checkouts: gateway,
		Config:    bookingCfg,
		Log:       logger,
	})
	checkoutSvc := service.NewCheckoutService(bookingSvc, gateway, payCfg.PublicBaseURL, logger)

	var sweeper *worker.ExpiryWorker
	if bookingCfg.SweepInterval > 0 {
		sweeper = worker.NewExpiryWorker(bookingSvc, bookingCfg.SweepInterval, logger)
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.RequestID(), echomw.Recover(), middleware.RequestLogger(logger))

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	cache := middleware.NewRedisCache(cacheCfg, rdb)
	movies := handler.NewMovieHandler(catalogSvc)
	bookings := handler.NewBookingHandler(bookingSvc, checkoutSvc)

	router.RegisterRoutes(e, ready) // Register application routes
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, st.users, st.tokens), cfg.JWTSecret, limit)
	router.RegisterPublic(e, movies, limit, cache)
	router.RegisterUser(e, bookings, cfg.JWTSecret, limit)
	router.RegisterAdmin(e, movies, bookings, cfg.JWTSecret, limit)
	router.RegisterWebhooks(e, bookings)

	addr := ":" + cfg.Port // Address string with port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
		zap.String("store", cfg.Store), zap.String("payment", gateway.Name()))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if local != nil {
		local.Wait()
	}
	return nil
}

// bootstrapAdmin makes sure the administrator named by ADMIN_USERNAME
// exists.  Without it a fresh in-memory store has nobody who can add
// movies.
func bootstrapAdmin(ctx context.Context, cfg config.Config, users repository.UserStore) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	_, err := users.GetByLogin(ctx, cfg.AdminUsername)
	switch {
	case err == nil:
		return users.SetStaff(ctx, cfg.AdminUsername, true)
	case !domain.IsNotFound(err):
		return err
	}
	email := cfg.AdminEmail
	if email == "" {
		email = cfg.AdminUsername + "@movieflex.local"
	}
	_, err = users.Create(ctx, cfg.AdminUsername, email, cfg.AdminPassword, true, cfg.BcryptCost)
	return err
}
