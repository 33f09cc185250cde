package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"asistencia/internal/api"
	"asistencia/internal/challenge"
	"asistencia/internal/config"
	"asistencia/internal/directory"
	"asistencia/internal/history"
	"asistencia/internal/httpmiddleware"
	"asistencia/internal/schedule"
	"asistencia/internal/session"
	"asistencia/internal/store"
)

func main() {
	cfg := config.Load()

	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if env == "production" || env == "prod" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(log)
	return log
}

func run(cfg config.App, log *zap.Logger) error {
	table, err := schedule.Parse(cfg.Schedule)
	if err != nil {
		return err
	}

	var (
		sessions    session.Store
		redisClient *store.Redis
	)
	if cfg.SessionBackend == "memory" {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
		log.Info("using in-memory session store")
	} else {
		redisClient = store.NewRedis(cfg.RedisAddr)
		sessions = session.NewRedisStore(redisClient.Client, cfg.SessionTTL)
	}

	dir := directory.New(cfg.UpstreamURL)

	monitor := history.NewMonitor(func(ctx context.Context, recordID int64) ([]schedule.Decorated, error) {
		rows, err := dir.ListAttendance(ctx, recordID)
		if err != nil {
			return nil, err
		}
		out := make([]schedule.Decorated, 0, len(rows))
		for _, r := range rows {
			out = append(out, schedule.Decorate(r, table))
		}
		return out, nil
	}, cfg.RefreshInterval, 3*cfg.RefreshInterval, log)
	defer monitor.Close()

	server := api.NewServer(api.Options{
		Directory:     dir,
		Sessions:      sessions,
		Generator:     challenge.NewGenerator(),
		Monitor:       monitor,
		Logger:        log,
		JWTIssuer:     cfg.JWTIssuer,
		JWTSigningKey: cfg.JWTSigningKey,
		TokenTTL:      cfg.TokenTTL,
		PageSize:      cfg.PageSize,
	})

	router := api.NewRouter(api.RouterOptions{
		Server:        server,
		Logger:        log,
		JWTIssuer:     cfg.JWTIssuer,
		JWTSigningKey: cfg.JWTSigningKey,
		RateLimit:     httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Healthy: func() bool {
			if redisClient == nil {
				return true
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Healthy(ctx)
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("gateway listening", zap.String("port", cfg.HTTPPort), zap.String("upstream", cfg.UpstreamURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}

	log.Info("gateway exited")
	return nil
}
