package services

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/feed-system/photo-feed/pkg/queue"
	"github.com/google/uuid"
)

const maxCaptionLength = 2200

type CreatePostRequest struct {
	Caption  string `json:"caption"`
	ImageURL string `json:"image_url" binding:"required"`
}

type PostService struct {
	posts      PostStore
	cache      PostCache
	producer   EventPublisher
	dispatcher Dispatcher
	logger     *logger.Logger
	staleAfter time.Duration
	now        func() time.Time
}

// NewPostService wires the post store. cache, producer and dispatcher are optional;
// without a dispatcher new posts wait for the fan-out worker or the retry sweeper.
func NewPostService(
	posts PostStore,
	cache PostCache,
	producer EventPublisher,
	dispatcher Dispatcher,
	cfg *config.FanoutConfig,
	logger *logger.Logger,
) *PostService {
	return &PostService{
		posts:      posts,
		cache:      cache,
		producer:   producer,
		dispatcher: dispatcher,
		logger:     logger,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
	}
}

// CreatePost persists the post, its owner index entry and a fan-out job in
// one transaction, then returns. Fan-out never fails the call.
func (s *PostService) CreatePost(ctx context.Context, ownerID uuid.UUID, req *CreatePostRequest) (*models.Post, error) {
	if req.ImageURL == "" {
		return nil, invalid("image_url is required")
	}
	if utf8.RuneCountInString(req.Caption) > maxCaptionLength {
		return nil, invalid("caption exceeds %d characters", maxCaptionLength)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	now := s.now()
	post := &models.Post{
		ID:           id,
		OwnerID:      ownerID,
		Caption:      req.Caption,
		ImageURL:     req.ImageURL,
		CreationDate: float64(now.UnixMicro()) / 1e6,
		CreatedAt:    now,
	}
	job := &models.FanoutJob{
		PostID:        id,
		OwnerID:       ownerID,
		State:         models.FanoutPersisted,
		NextAttemptAt: now.Add(s.staleAfter),
	}

	if err := s.posts.Publish(ctx, post, job); err != nil {
		return nil, transient("publish post", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"post_id":  post.ID,
		"owner_id": ownerID,
	}).Info("Post created")

	s.publishShared(ctx, post)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, post.ID)
	}
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	posts, err := s.resolve(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrNotFound
	}
	return posts[0], nil
}

// PaginateOwnerPosts pages an owner's posts newest first. cursor is the
// NextCursor of the previous page, or "" for the first page.
func (s *PostService) PaginateOwnerPosts(ctx context.Context, ownerID uuid.UUID, cursor string, pageSize int) (*PostPage, error) {
	if pageSize < 1 {
		return nil, invalid("page size must be positive")
	}
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}

	ids, err := s.posts.ListOwnerIndex(ctx, ownerID, before, pageSize+1)
	if err != nil {
		return nil, transient("list owner posts", err)
	}
	return s.page(ctx, ids, pageSize)
}

func (s *PostService) CountPosts(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	n, err := s.posts.CountByOwner(ctx, ownerID)
	if err != nil {
		return 0, transient("count posts", err)
	}
	return n, nil
}

func (s *PostService) page(ctx context.Context, ids []uuid.UUID, pageSize int) (*PostPage, error) {
	ids, next := splitPage(ids, pageSize)
	posts, err := s.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &PostPage{
		Posts:      posts,
		NextCursor: next,
		HasMore:    next != "",
	}, nil
}

// resolve loads posts in the order of ids, from the cache first and the store
// for the rest. Ids with no post row are skipped.
func (s *PostService) resolve(ctx context.Context, ids []uuid.UUID) ([]*models.Post, error) {
	if len(ids) == 0 {
		return []*models.Post{}, nil
	}

	found := map[uuid.UUID]*models.Post{}
	if s.cache != nil {
		cached, err := s.cache.GetMany(ctx, ids)
		if err != nil {
			s.logger.WithError(err).Warn("Post cache unavailable, reading from store")
		} else {
			found = cached
		}
	}

	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		loaded, err := s.posts.GetByIDs(ctx, missing)
		if err != nil {
			return nil, transient("load posts", err)
		}
		for _, p := range loaded {
			found[p.ID] = p
		}
		if s.cache != nil && len(loaded) > 0 {
			if err := s.cache.SetMany(ctx, loaded); err != nil {
				s.logger.WithError(err).Warn("Failed to cache posts")
			}
		}
	}

	posts := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		p, ok := found[id]
		if !ok {
			s.logger.WithField("post_id", id).Warn("Indexed post has no record")
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func (s *PostService) publishShared(ctx context.Context, post *models.Post) {
	if s.producer == nil {
		return
	}
	event, err := queue.NewEvent(queue.EventPostShared, post.CreatedAt, queue.PostEventData{
		PostID:    post.ID.String(),
		OwnerID:   post.OwnerID.String(),
		CreatedAt: post.CreationDate,
	})
	if err == nil {
		err = s.producer.Publish(ctx, post.OwnerID.String(), event)
	}
	if err != nil {
		// the persisted job still gets picked up by the retry sweeper
		s.logger.WithError(err).WithField("post_id", post.ID).Error("Failed to publish post_shared event")
	}
}
