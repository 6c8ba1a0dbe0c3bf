package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/cafeteria-prebooking/internal/config"
	"github.com/iliyamo/cafeteria-prebooking/internal/database"
	"github.com/iliyamo/cafeteria-prebooking/internal/handler"
	"github.com/iliyamo/cafeteria-prebooking/internal/middleware"
	"github.com/iliyamo/cafeteria-prebooking/internal/queue"
	"github.com/iliyamo/cafeteria-prebooking/internal/repository"
	"github.com/iliyamo/cafeteria-prebooking/internal/router"
	"github.com/iliyamo/cafeteria-prebooking/internal/service"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
	"github.com/iliyamo/cafeteria-prebooking/internal/telemetry"
)

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()
	cfg := config.Load()
	loc := cfg.Location()

	e := echo.New()
	e.HideBanner = true
	if cfg.Env == "prod" {
		e.Logger.SetLevel(log.INFO)
	} else {
		e.Logger.SetLevel(log.DEBUG)
	}
	log.SetLevel(e.Logger.Level())

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		e.Logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := database.Migrate(ctx, db); err != nil {
			e.Logger.Fatalf("migrate: %v", err)
		}
		e.Logger.Info("migrations applied")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(cfg.OTelEnabled, "cafeteria-prebooking", cfg.Env, os.Stdout)
	if err != nil {
		e.Logger.Fatalf("tracing: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		e.Logger.Warn("redis unreachable: rate limiting and slot cache disabled")
	} else {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()

	ledger := repository.NewSQLLedger(db)
	opts := []settlement.Option{settlement.WithLocation(loc)}
	if cfg.EventsEnabled {
		pub := service.NewPublisher(cfg.AMQPURL)
		defer pub.Close()
		opts = append(opts, settlement.WithEvents(pub))
		go func() {
			if err := queue.StartPaymentConsumer(ctx, cfg.AMQPURL, cfg.PaymentLogDir); err != nil && !errors.Is(err, context.Canceled) {
				e.Logger.Errorf("payment consumer: %v", err)
			}
		}()
	}
	engine := settlement.NewEngine(ledger, opts...)
	bookings := repository.NewBookingRepo(db)
	wallets := repository.NewWalletRepo(db)

	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.CORSOrigins}))
	e.Use(middleware.Tracing())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				c.Logger().Errorf("%s %s %d %s id=%s err=%v", v.Method, v.URI, v.Status, v.Latency, v.RequestID, v.Error)
				return nil
			}
			c.Logger().Infof("%s %s %d %s id=%s", v.Method, v.URI, v.Status, v.Latency, v.RequestID)
			return nil
		},
	}))

	router.RegisterRoutes(e)
	router.RegisterAPI(e, router.Handlers{
		Auth: &handler.AuthHandler{
			Cfg:     cfg,
			Users:   repository.NewUserRepo(db),
			Tokens:  repository.NewTokenRepo(db),
			Wallets: ledger,
		},
		Slots: &handler.SlotHandler{
			Slots: repository.NewSlotRepo(db),
			Loc:   loc,
			OnChange: func(ctx context.Context) error {
				return middleware.InvalidateCache(ctx, rdb, cacheCfg.Prefix)
			},
		},
		Bookings: &handler.BookingHandler{Engine: engine, Bookings: bookings, Slots: ledger},
		Payments: &handler.PaymentHandler{Engine: engine, Wallets: ledger, History: wallets},
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		Cache:     cacheCfg,
		RateLimit: config.LoadRateLimitConfig(),
	})

	// echo's StartServer would replace the handler, so the traced server
	// is run directly
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           telemetry.HTTPHandler(e, "cafeteria-prebooking"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		e.Logger.Infof("listening on %s (env=%s, tz=%s)", srv.Addr, cfg.Env, loc)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	e.Logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		e.Logger.Errorf("shutdown: %v", err)
	}
	if err := shutdownTracer(sctx); err != nil {
		e.Logger.Errorf("tracer shutdown: %v", err)
	}
}
