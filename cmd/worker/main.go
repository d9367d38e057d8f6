package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/internal/repository"
	"github.com/feed-system/photo-feed/internal/services"
	"github.com/feed-system/photo-feed/internal/workers"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/feed-system/photo-feed/pkg/queue"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.NewLoggerWithLevel(cfg.Log.Level)
	logger.Info("Starting photo feed worker...")

	db, err := repository.NewDatabase(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	followStore, closeGraph, err := repository.OpenFollowGraph(ctx, cfg, db, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open follow graph")
	}
	defer closeGraph()

	feedEventsConsumer := queue.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.FeedEvents, cfg.Kafka.GroupID, logger)
	userEventsConsumer := queue.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.UserEvents, cfg.Kafka.GroupID+"-users", logger)

	fanoutRepo := repository.NewFanoutRepository(db.DB)
	feedRepo := repository.NewFeedRepository(db.DB)

	engine := services.NewFanoutEngine(fanoutRepo, followStore, feedRepo, &cfg.Fanout, logger)
	retryService := services.NewRetryService(fanoutRepo, engine, &cfg.Fanout, logger)

	// with inline fan-out the API drives new posts and runs the sweeper itself
	workerCfg := workers.FeedWorkerConfig{FanoutOnEvent: !cfg.Fanout.Inline}
	if !cfg.Fanout.Inline {
		workerCfg.RetryInterval = cfg.Fanout.RetryInterval
	}

	feedWorker := workers.NewFeedWorker(engine, retryService, workerCfg, logger, feedEventsConsumer, userEventsConsumer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := feedWorker.Start(ctx); err != nil {
			logger.WithError(err).Error("Feed worker stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-done:
	}

	logger.Info("Shutting down worker...")
	cancel()
	<-done

	if err := feedWorker.Stop(); err != nil {
		logger.WithError(err).Error("Failed to stop feed worker")
	}

	logger.Info("Worker exited")
}
