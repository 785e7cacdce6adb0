package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "postcodejp/docs"
	"postcodejp/internal/app"
	"postcodejp/internal/handler"
	"postcodejp/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// @title        postcodejp API
// @version      1.0
// @description  Japanese postal-code lookup and sync administration.
// @BasePath     /api
// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = godotenv.Load(".env")

	cfg, err := app.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}
	if cfg.LogFormat == "json" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot initialize application")
	}
	defer a.Close()

	if cfg.AdminAPIKey == "" {
		log.Warn().Msg("ADMIN_API_KEY is empty, admin endpoints are unprotected")
	}

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = scheduler.New(cfg.SyncHour, cfg.SyncMinute, cfg.Location(), func(ctx context.Context) {
			a.Sync.CheckAndSync(ctx)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("cannot create scheduler")
		}
		sched.Start()
	}

	r := handler.NewRouter(handler.RouterConfig{
		Lookup:      handler.NewLookupHandler(a.Lookup),
		Admin:       handler.NewAdminHandler(a.Sync),
		AdminAPIKey: cfg.AdminAPIKey,
		DB:          a.Repo,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ServerAddress).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	// a sync in flight is abandoned; its run is failed as stale on the next start
	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}
