// Command server runs the rewards HTTP API.
//
//	@title          Rewards Backend API
//	@version        1.0
//	@description    Companies, coupons and bulk coupon ingestion.
//	@BasePath       /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/config"
	httpapi "github.com/tbourn/go-rewards-backend/internal/http"
	"github.com/tbourn/go-rewards-backend/internal/observability"
	"github.com/tbourn/go-rewards-backend/internal/repo"
	"github.com/tbourn/go-rewards-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const purgeEvery = time.Hour

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()
	sysutil.ConfigureLogging(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	go purgeIdempotency(ctx, db)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

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
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// purgeIdempotency deletes expired idempotency keys until ctx ends.
func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("purge idempotency keys")
		} else if n > 0 {
			log.Debug().Int64("deleted", n).Msg("purged idempotency keys")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
