package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/auth"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/cache"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/database"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/images"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/jobs"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/logging"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/middleware"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/queue"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/storage"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tracing"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

type API struct {
	cfg     *config.Config
	db      *database.DB
	repo    *database.Repository
	cache   *cache.Cache
	client  *tvdb.Client
	auth    *auth.Service
	tracker *jobs.Tracker
	queue   *queue.Queue
	images  *images.Service
}

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
		_, closer, err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
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

	ctx := context.Background()
	if err := repo.SeedCredentials(ctx, cfg.Auth.SeedKeys); err != nil {
		log.Fatal().Err(err).Msg("failed to seed credentials")
	}

	cacheStore, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to cache")
	}
	defer cacheStore.Close()

	client := tvdb.NewClient(cfg.TVDB, cfg.Cache, cacheStore, tvdb.DefaultRetryPolicy())

	authSvc := auth.NewService(repo, cfg.Auth)

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

	api := &API{
		cfg:     cfg,
		db:      db,
		repo:    repo,
		cache:   cacheStore,
		client:  client,
		auth:    authSvc,
		tracker: tracker,
		queue:   q,
		images:  imageSvc,
	}

	router := setupRouter(api)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setupRouter(api *API) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(), middleware.Metrics(), middleware.Tracing())

	rl := middleware.NewRateLimiter(api.cfg.Auth.DefaultRateLimit)

	router.GET("/health", api.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/login", api.login)

	v1 := router.Group("/api", middleware.Auth(api.auth), middleware.RateLimit(rl))
	{
		// Upstream passthrough, cache-first
		v1.GET("/series/:id", api.getSeries)
		v1.GET("/series/:id/extended", api.getSeriesExtended)
		v1.GET("/series/:id/episodes", api.getSeriesEpisodes)
		v1.GET("/seasons/:id/extended", api.getSeasonExtended)
		v1.GET("/episodes/:id", api.getEpisode)
		v1.GET("/movies/:id", api.getMovie)
		v1.GET("/movies/:id/extended", api.getMovieExtended)
		v1.GET("/people/:id/extended", api.getPersonExtended)
		v1.GET("/search", api.search)

		// Mirrored catalog reads
		v1.GET("/db/series/:id", api.getMirroredSeries)
		v1.GET("/db/series/:id/artworks", api.getMirroredSeriesArtworks)
		v1.GET("/db/seasons/:id", api.getMirroredSeason)
		v1.GET("/db/episodes/:id", api.getMirroredEpisode)
		v1.GET("/db/movies/:id", api.getMirroredMovie)
		v1.GET("/db/people/:id", api.getMirroredPerson)

		// Locally mirrored images
		v1.GET("/images/:type/:id/:slot", api.getImage)

		// Job status
		v1.GET("/jobs/:id", api.getJob)

		admin := v1.Group("", middleware.RequireAdmin(api.auth))
		{
			admin.POST("/invalidate", api.invalidate)
			admin.POST("/series/:id/invalidate", api.invalidateSeries)
			admin.GET("/stats", api.getStats)

			admin.POST("/keys", api.createKey)
			admin.GET("/keys", api.listKeys)
			admin.GET("/keys/:id", api.getKey)
			admin.PUT("/keys/:id", api.updateKey)
			admin.DELETE("/keys/:id", api.deleteKey)
			admin.POST("/keys/:id/rotate", api.rotateKey)

			admin.POST("/sync/full", api.triggerJob(models.JobFullSync))
			admin.POST("/sync/incremental", api.triggerJob(models.JobIncrementalSync))
			admin.POST("/sync/static", api.triggerJob(models.JobSyncStaticData))
			admin.POST("/sync/series/:id", api.triggerSeriesSync)
			admin.POST("/sync/images/:type/:id", api.triggerImageSync)
			admin.POST("/sync/missing-images", api.triggerMissingImages)
			admin.POST("/cleanup/orphans", api.triggerJob(models.JobCleanupOrphans))
			admin.POST("/cleanup/cache", api.triggerJob(models.JobCleanupExpiredCache))
			admin.POST("/prefetch", api.triggerJob(models.JobPrefetchPopular))
		}
	}

	return router
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.db.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	if err := api.cache.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}
