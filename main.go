package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/api"
	"taskboard-api/auth"
	"taskboard-api/config"
	"taskboard-api/domain"
	"taskboard-api/storage"
	"taskboard-api/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// store is what a storage backend provides to the services.
type store interface {
	domain.UserStore
	domain.TaskStore
	api.HealthChecker
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer closeStore()

	var publisher domain.EventPublisher
	if cfg.DomainEventsQueue != "" {
		q, err := storage.NewEventQueue(cfg.StorageConnectionString, cfg.DomainEventsQueue)
		if err != nil {
			logger.Fatalf("event queue: %v", err)
		}
		publisher = q
	}

	hasher, err := auth.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		logger.Fatalf("hasher: %v", err)
	}
	tokenOpts := auth.Options{
		Secret:      []byte(cfg.JWTSecret),
		TTL:         cfg.JWTTTL,
		Issuer:      cfg.JWTIssuer,
		KeyCacheTTL: cfg.JWKSCacheTTL,
	}
	if cfg.JWKSURL != "" {
		jwks, err := auth.FetchJWKS(cfg.JWKSURL, time.Hour)
		if err != nil {
			logger.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		tokenOpts.JWKS = jwks
	}
	tokens, err := auth.NewTokens(tokenOpts)
	if err != nil {
		logger.Fatalf("tokens: %v", err)
	}

	svc := api.Services{
		Auth:   domain.NewAuthService(st, hasher, tokens, publisher),
		Users:  domain.NewUserService(st, hasher, publisher),
		Tasks:  domain.NewTaskService(st, publisher),
		Tokens: tokens,
	}
	probes := api.Probes{st}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	if redisOpts != nil {
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		deduper := api.NewRedisDeduper(rc, cfg.IdempotencyTTL)
		svc.Deduper = deduper
		probes = append(probes, deduper)
	} else {
		logger.Info("REDIS_CONNECTION_STRING not set; Idempotency-Key headers are ignored")
	}
	svc.Health = probes

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
		ExposeHeaders: []string{"X-Total-Count"},
	}))
	e.Use(echoprometheus.NewMiddleware("taskboard"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithFields(log.Fields{"addr": cfg.ListenAddr(), "storage": cfg.StorageDriver}).Info("taskboard-api listening")
		if err := e.Start(cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

func newLogger(cfg config.Config) *log.Logger {
	logger := log.StandardLogger()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}

func openStore(cfg config.Config) (store, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverAzureTables:
		st, err := storage.New(cfg.StorageConnectionString, cfg.UsersTable, cfg.TasksTable)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	default:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, closeLogged(st, "sqlite"), nil
	}
}

func closeLogged(c io.Closer, name string) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.WithField("store", name).Warnf("close: %v", err)
		}
	}
}
