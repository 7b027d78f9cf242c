// Command server runs the direct-chat HTTP API.
//
// Startup order: environment (.env overrides), configuration, logging,
// tracing, database, notification sink, router. Shutdown is graceful on
// SIGINT/SIGTERM with a bounded drain window.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"direct-chat/internal/config"
	httpapi "direct-chat/internal/http"
	"direct-chat/internal/notify"
	"direct-chat/internal/observability"
	"direct-chat/internal/repo"
	"direct-chat/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Best effort: a missing .env is fine, the environment wins anyway.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting direct-chat")

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin not installed")
		}
	}

	var sink notify.Sink = notify.NopSink{}
	var redisSink *notify.RedisSink
	if cfg.Notify.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Notify.RedisAddr,
			Password:     cfg.Notify.RedisPassword,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			// Notifications are fire-and-forget; a down Redis must not block
			// message persistence, so startup proceeds and Publish errors are
			// logged and counted instead.
			log.Warn().Err(err).Str("addr", cfg.Notify.RedisAddr).Msg("redis unreachable at startup")
		}
		redisSink = notify.NewRedisSinkFromClient(client, cfg.Notify.ChannelPrefix)
		sink = redisSink
		log.Info().Str("addr", cfg.Notify.RedisAddr).Str("prefix", cfg.Notify.ChannelPrefix).Msg("redis notifications enabled")
	} else {
		log.Info().Msg("notifications disabled")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, sink, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if redisSink != nil {
		_ = redisSink.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("shutdown complete")
}
