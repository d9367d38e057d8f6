package services

import (
	"context"

	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/google/uuid"
)

// FeedService reads the per-recipient feed index written by FanoutEngine.
type FeedService struct {
	feeds  FeedStore
	posts  *PostService
	engine *FanoutEngine
	logger *logger.Logger
}

func NewFeedService(feeds FeedStore, posts *PostService, engine *FanoutEngine, logger *logger.Logger) *FeedService {
	return &FeedService{
		feeds:  feeds,
		posts:  posts,
		engine: engine,
		logger: logger,
	}
}

// PaginateFeed pages the recipient's feed newest first. Consecutive pages
// never overlap and, once NextCursor is empty, every delivered post has been
// returned exactly once.
func (s *FeedService) PaginateFeed(ctx context.Context, recipientID uuid.UUID, cursor string, pageSize int) (*PostPage, error) {
	if pageSize < 1 {
		return nil, invalid("page size must be positive")
	}
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}

	ids, err := s.feeds.List(ctx, recipientID, before, pageSize+1)
	if err != nil {
		return nil, transient("list feed", err)
	}

	page, err := s.posts.page(ctx, ids, pageSize)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"recipient_id": recipientID,
		"returned":     len(page.Posts),
		"has_more":     page.HasMore,
	}).Debug("Feed page served")
	return page, nil
}

// FanoutStatus exposes delivery progress of a post to its owner.
func (s *FeedService) FanoutStatus(ctx context.Context, requesterID, postID uuid.UUID) (*FanoutStatus, error) {
	status, err := s.engine.Status(ctx, postID)
	if err != nil {
		return nil, err
	}
	if status.Job.OwnerID != requesterID {
		return nil, ErrNotFound
	}
	return status, nil
}
