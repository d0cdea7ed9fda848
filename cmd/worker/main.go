package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/cache"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/database"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/images"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/jobs"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/logging"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/queue"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/storage"
	syncengine "github.com/therealutkarshpriyadarshi/tvdbproxy/internal/sync"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tracing"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if _, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logging")
	}

	if cfg.Tracing.Enabled {
		_, closer, err := tracing.Init(cfg.Tracing.ServiceName+"-worker", cfg.Tracing.Endpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize tracing")
		}
		defer closer.Close()
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	repo := database.NewRepository(db)

	cacheStore, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to cache")
	}
	defer cacheStore.Close()

	client := tvdb.NewClient(cfg.TVDB, cfg.Cache, cacheStore, tvdb.DefaultRetryPolicy())

	tracker := jobs.NewTracker(cacheStore.Client())

	q, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to queue")
	}
	defer q.Close()

	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	imageSvc := images.NewService(store, repo, cfg.Server.BaseURL, cfg.Sync.ImageFanout)

	engine := syncengine.NewEngine(client, repo, imageSvc, tracker, q, cacheStore, cfg.Sync)

	sched := scheduler.New(tracker, q, cfg.Sync)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down worker")
		cancel()
	}()

	log.Info().Msg("worker started, consuming sync jobs")

	if err := q.Consume(ctx, func(msg *models.SyncMessage) error {
		span, spanCtx := tracing.StartSpan(ctx, "sync."+msg.Type)
		tracing.SetTag(span, "job_id", msg.JobID)
		err := engine.Handle(spanCtx, msg)
		tracing.FinishSpan(span, err)
		return err
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to consume queue")
	}

	<-ctx.Done()
	log.Info().Msg("worker stopped")
}
