package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rkrumins/file-processing-service/internal/api"
	"github.com/rkrumins/file-processing-service/internal/config"
	fileutil "github.com/rkrumins/file-processing-service/internal/file"
	"github.com/rkrumins/file-processing-service/internal/janitor"
	"github.com/rkrumins/file-processing-service/internal/task"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load("config.yml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := fileutil.EnsureDir(cfg.UploadDir); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("ensure upload dir")
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("storage", cfg.TaskStorageType).Msg("init task store")
	}

	manager := task.NewManager(task.Options{
		Store:    store,
		Steps:    cfg.ProcessingSteps,
		Duration: cfg.ProcessingDuration(),
		Timeout:  cfg.ProcessingTimeout(),
	})

	router := setupRouter(cfg)
	wireAPI(router, manager, cfg)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	manager.SetBaseContext(baseCtx)

	var sweeper *janitor.Janitor
	if cfg.Retention.Enabled {
		sweeper = janitor.New(store, cfg.RetentionMaxAge())
		if err := sweeper.Start(cfg.Retention.Schedule); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Retention.Schedule).Msg("start retention janitor")
		}
	}

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)

	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, manager, sweeper, store, shutdownTimeout)
}

func setupRouter(cfg config.Config) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
	}))
	return r
}

func buildStore(cfg config.Config) (task.Store, error) { //nolint:ireturn
	switch cfg.TaskStorageType {
	case config.StorageSQLite:
		return task.NewGormStore(cfg.SQLitePath)
	default:
		return task.NewMemoryStore(), nil
	}
}

func wireAPI(router *gin.Engine, manager *task.Manager, cfg config.Config) {
	apiHandler := api.NewAPI(manager, cfg.UploadDir, cfg.TaskStorageType)
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, manager *task.Manager, sweeper *janitor.Janitor, store task.Store, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if done := manager.WaitAll(ctx); !done {
		log.Warn().Msg("background simulators did not finish before timeout")
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("store close warning")
	}
	log.Info().Msg("server exited cleanly")
}
