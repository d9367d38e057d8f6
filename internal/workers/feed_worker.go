package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feed-system/photo-feed/internal/services"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/feed-system/photo-feed/pkg/queue"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Subscriber is satisfied by queue.KafkaConsumer.
type Subscriber interface {
	Subscribe(ctx context.Context, handler func(context.Context, queue.Message) error) error
	Close() error
}

type Fanouter interface {
	Fanout(ctx context.Context, postID uuid.UUID) (*services.FanoutReport, error)
}

type Sweeper interface {
	StartRetryJob(ctx context.Context, interval time.Duration)
}

type FeedWorkerConfig struct {
	// FanoutOnEvent makes post_shared events drive fan-out. Leave it off when
	// the API already fans out inline.
	FanoutOnEvent bool
	// RetryInterval enables the retry sweeper when positive.
	RetryInterval time.Duration
}

// FeedWorker consumes feed and user events and keeps unfinished fan-out jobs moving.
type FeedWorker struct {
	consumers []Subscriber
	engine    Fanouter
	sweeper   Sweeper
	cfg       FeedWorkerConfig
	logger    *logger.Logger
}

func NewFeedWorker(engine Fanouter, sweeper Sweeper, cfg FeedWorkerConfig, logger *logger.Logger, consumers ...Subscriber) *FeedWorker {
	return &FeedWorker{
		consumers: consumers,
		engine:    engine,
		sweeper:   sweeper,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start blocks until ctx is cancelled or a consumer fails.
func (w *FeedWorker) Start(ctx context.Context) error {
	w.logger.WithField("consumers", len(w.consumers)).Info("Starting feed worker...")

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range w.consumers {
		c := c
		g.Go(func() error {
			return c.Subscribe(gctx, w.HandleMessage)
		})
	}
	if w.sweeper != nil && w.cfg.RetryInterval > 0 {
		g.Go(func() error {
			w.sweeper.StartRetryJob(gctx, w.cfg.RetryInterval)
			return nil
		})
	}
	return g.Wait()
}

func (w *FeedWorker) Stop() error {
	var errs []error
	for _, c := range w.consumers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.logger.Info("Feed worker stopped")
	return errors.Join(errs...)
}

func (w *FeedWorker) HandleMessage(ctx context.Context, msg queue.Message) error {
	event, err := queue.DecodeEvent(msg)
	if err != nil {
		return err
	}

	w.logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"timestamp":  event.Timestamp,
		"topic":      msg.Topic,
	}).Debug("Processing event")

	switch event.Type {
	case queue.EventPostShared:
		return w.handlePostShared(ctx, event)
	case queue.EventUserFollowed, queue.EventUserUnfollowed:
		return w.handleFollowChange(event)
	case queue.EventAccountCreated:
		return w.handleAccountCreated(event)
	default:
		w.logger.WithField("event_type", event.Type).Warn("Unknown event type")
		return nil
	}
}

func (w *FeedWorker) handlePostShared(ctx context.Context, event queue.Event) error {
	if !w.cfg.FanoutOnEvent {
		return nil
	}

	var data queue.PostEventData
	if err := event.DecodeData(&data); err != nil {
		return err
	}
	postID, err := uuid.Parse(data.PostID)
	if err != nil {
		return fmt.Errorf("invalid post_id %q: %w", data.PostID, err)
	}

	report, err := w.engine.Fanout(ctx, postID)
	switch {
	case errors.Is(err, services.ErrPartialFanout):
		// already logged and scheduled by the engine
		return nil
	case errors.Is(err, services.ErrNotFound):
		w.logger.WithField("post_id", postID).Warn("post_shared for unknown post")
		return nil
	case err != nil:
		return fmt.Errorf("fan-out of post %s: %w", postID, err)
	}

	w.logger.WithFields(map[string]interface{}{
		"post_id":   postID,
		"owner_id":  data.OwnerID,
		"delivered": report.Delivered,
		"state":     report.State,
	}).Info("Handled post_shared event")
	return nil
}

// Follow changes never touch existing feeds: no backfill on follow, no removal on unfollow.
func (w *FeedWorker) handleFollowChange(event queue.Event) error {
	var data queue.FollowEventData
	if err := event.DecodeData(&data); err != nil {
		return err
	}
	w.logger.WithFields(map[string]interface{}{
		"event_type":  event.Type,
		"follower_id": data.FollowerID,
		"followee_id": data.FolloweeID,
	}).Info("Follow graph changed")
	return nil
}

func (w *FeedWorker) handleAccountCreated(event queue.Event) error {
	var data queue.AccountEventData
	if err := event.DecodeData(&data); err != nil {
		return err
	}
	w.logger.WithFields(map[string]interface{}{
		"account_id": data.AccountID,
		"handle":     data.Handle,
	}).Info("Account created")
	return nil
}
