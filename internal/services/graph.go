package services

import (
	"context"
	"time"

	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/feed-system/photo-feed/pkg/queue"
	"github.com/google/uuid"
)

// GraphService maintains directed follow edges. Every account follows itself
// so its own posts reach its feed through the normal fan-out path.
type GraphService struct {
	follows  FollowStore
	accounts AccountStore
	producer EventPublisher
	logger   *logger.Logger
}

func NewGraphService(follows FollowStore, accounts AccountStore, producer EventPublisher, logger *logger.Logger) *GraphService {
	return &GraphService{
		follows:  follows,
		accounts: accounts,
		producer: producer,
		logger:   logger,
	}
}

// Follow adds follower -> followee. It reports whether the edge already existed.
// Only future posts of the followee reach the follower's feed.
func (s *GraphService) Follow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	if err := s.requireAccount(ctx, followeeID); err != nil {
		return false, err
	}

	created, err := s.follows.Create(ctx, followerID, followeeID)
	if err != nil {
		return false, transient("follow", err)
	}
	if !created {
		return true, nil
	}

	s.publish(ctx, queue.EventUserFollowed, followerID, followeeID)
	s.logger.WithFields(map[string]interface{}{
		"follower_id": followerID,
		"followee_id": followeeID,
	}).Info("User followed")
	return false, nil
}

// Unfollow removes follower -> followee. Removing a missing edge is a no-op.
// Posts already delivered to the follower's feed stay there.
func (s *GraphService) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error {
	if followerID == followeeID {
		return invalid("accounts cannot unfollow themselves")
	}

	removed, err := s.follows.Delete(ctx, followerID, followeeID)
	if err != nil {
		return transient("unfollow", err)
	}
	if !removed {
		return nil
	}

	s.publish(ctx, queue.EventUserUnfollowed, followerID, followeeID)
	s.logger.WithFields(map[string]interface{}{
		"follower_id": followerID,
		"followee_id": followeeID,
	}).Info("User unfollowed")
	return nil
}

// Bootstrap creates the self edge for a new account.
func (s *GraphService) Bootstrap(ctx context.Context, accountID uuid.UUID) error {
	if _, err := s.follows.Create(ctx, accountID, accountID); err != nil {
		return transient("create self follow", err)
	}
	return nil
}

func (s *GraphService) IsFollowing(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	ok, err := s.follows.Exists(ctx, followerID, followeeID)
	if err != nil {
		return false, transient("check follow", err)
	}
	return ok, nil
}

// ListFollowers returns follower ids, including the account itself.
func (s *GraphService) ListFollowers(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.follows.ListFollowers(ctx, accountID)
	if err != nil {
		return nil, transient("list followers", err)
	}
	return ids, nil
}

func (s *GraphService) ListFollowing(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.follows.ListFollowing(ctx, accountID)
	if err != nil {
		return nil, transient("list following", err)
	}
	return ids, nil
}

func (s *GraphService) CountFollowers(ctx context.Context, accountID uuid.UUID) (int64, error) {
	n, err := s.follows.CountFollowers(ctx, accountID)
	if err != nil {
		return 0, transient("count followers", err)
	}
	return n, nil
}

func (s *GraphService) CountFollowing(ctx context.Context, accountID uuid.UUID) (int64, error) {
	n, err := s.follows.CountFollowing(ctx, accountID)
	if err != nil {
		return 0, transient("count following", err)
	}
	return n, nil
}

func (s *GraphService) requireAccount(ctx context.Context, id uuid.UUID) error {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return transient("get account", err)
	}
	if account == nil {
		return ErrNotFound
	}
	return nil
}

func (s *GraphService) publish(ctx context.Context, eventType queue.EventType, followerID, followeeID uuid.UUID) {
	if s.producer == nil {
		return
	}
	event, err := queue.NewEvent(eventType, time.Now(), queue.FollowEventData{
		FollowerID: followerID.String(),
		FolloweeID: followeeID.String(),
	})
	if err == nil {
		err = s.producer.Publish(ctx, followeeID.String(), event)
	}
	if err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("Failed to publish follow event")
	}
}
