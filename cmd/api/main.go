package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/internal/handlers"
	"github.com/feed-system/photo-feed/internal/middleware"
	"github.com/feed-system/photo-feed/internal/repository"
	"github.com/feed-system/photo-feed/internal/services"
	"github.com/feed-system/photo-feed/pkg/cache"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/feed-system/photo-feed/pkg/queue"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.NewLoggerWithLevel(cfg.Log.Level)
	logger.Info("Starting photo feed API server...")

	db, err := repository.NewDatabase(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	redisClient := cache.NewRedisClient(
		cfg.Redis.Addr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		cfg.Redis.MinIdleConns,
	)
	defer redisClient.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := redisClient.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}

	feedEventsProducer := queue.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.FeedEvents)
	defer feedEventsProducer.Close()

	userEventsProducer := queue.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.UserEvents)
	defer userEventsProducer.Close()

	followStore, closeGraph, err := repository.OpenFollowGraph(ctx, cfg, db, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open follow graph")
	}
	defer closeGraph()

	accountRepo := repository.NewAccountRepository(db.DB)
	handleRepo := repository.NewHandleRepository(db.DB)
	postRepo := repository.NewPostRepository(db.DB)
	feedRepo := repository.NewFeedRepository(db.DB)
	fanoutRepo := repository.NewFanoutRepository(db.DB)

	postCache := services.NewRedisPostCache(redisClient, cfg.Feed.PostCacheTTL, logger)
	engine := services.NewFanoutEngine(fanoutRepo, followStore, feedRepo, &cfg.Fanout, logger)

	var dispatcher services.Dispatcher
	if cfg.Fanout.Inline {
		dispatcher = engine
	}

	identityService := services.NewIdentityService(handleRepo, logger)
	graphService := services.NewGraphService(followStore, accountRepo, userEventsProducer, logger)
	postService := services.NewPostService(postRepo, postCache, feedEventsProducer, dispatcher, &cfg.Fanout, logger)
	feedService := services.NewFeedService(feedRepo, postService, engine, logger)
	accountService := services.NewAccountService(accountRepo, identityService, graphService, postService, userEventsProducer, logger)
	retryService := services.NewRetryService(fanoutRepo, engine, &cfg.Fanout, logger)

	// with inline fan-out the API owns retries; otherwise cmd/worker does
	if cfg.Fanout.Inline {
		go retryService.StartRetryJob(ctx, cfg.Fanout.RetryInterval)
	}

	userHandler := handlers.NewUserHandler(accountService, identityService, graphService, cfg.JWT.Secret, cfg.JWT.ExpireTime, cfg.Feed.SearchLimit)
	feedHandler := handlers.NewFeedHandler(postService, feedService, retryService, &cfg.Feed)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(corsConfig(cfg.Server.AllowOrigins)))

	handlers.RegisterRoutes(router, userHandler, feedHandler, &middleware.JWTConfig{Secret: cfg.JWT.Secret}, cfg.Server.OpsToken)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// let in-flight fan-outs finish; anything cut short is resumed by the sweeper
	waited := make(chan struct{})
	go func() {
		engine.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-shutdownCtx.Done():
		logger.Warn("Fan-outs still running at shutdown")
	}

	logger.Info("Server exited")
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func init() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	if err := os.MkdirAll("configs", 0755); err != nil {
		log.Printf("Failed to create configs directory: %v", err)
		return
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := createDefaultConfig(configPath); err != nil {
			log.Printf("Failed to create default config: %v", err)
		}
	}
}

func createDefaultConfig(path string) error {
	defaultConfig := `server:
  port: ":8080"
  mode: "debug"
  read_timeout: 30s
  write_timeout: 30s
  allow_origins: ["*"]
  ops_token: ""

database:
  host: "localhost"
  port: 5432
  user: "feeduser"
  password: "feedpass"
  dbname: "photofeed"
  sslmode: "disable"
  max_open_conns: 50
  max_idle_conns: 10

redis:
  host: "localhost"
  port: 6379
  password: ""
  db: 0
  pool_size: 50
  min_idle_conns: 5

kafka:
  brokers:
    - "localhost:9092"
  topics:
    user_events: "user-events"
    feed_events: "feed-events"
  group_id: "fanout-worker-group"

jwt:
  secret: "change-me-in-production"
  expire_time: 24h

feed:
  default_page_size: 12
  max_page_size: 100
  post_cache_ttl: 1h
  search_limit: 20

fanout:
  inline: true
  concurrency: 16
  write_attempts: 3
  initial_backoff: 50ms
  max_backoff: 5m
  max_job_attempts: 10
  retry_interval: 30s
  retry_batch_size: 100
  stale_after: 5m

graph:
  driver: "postgres"   # postgres | neo4j

neo4j:
  uri: "neo4j://localhost:7687"
  user: "neo4j"
  password: "password"

log:
  level: "info"`

	return os.WriteFile(path, []byte(defaultConfig), 0644)
}
