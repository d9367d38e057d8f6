package handlers

import (
	"net/http"

	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/internal/middleware"
	"github.com/feed-system/photo-feed/internal/services"
	"github.com/gin-gonic/gin"
)

type FeedHandler struct {
	posts *services.PostService
	feed  *services.FeedService
	retry *services.RetryService
	cfg   *config.FeedConfig
}

func NewFeedHandler(posts *services.PostService, feed *services.FeedService, retry *services.RetryService, cfg *config.FeedConfig) *FeedHandler {
	return &FeedHandler{
		posts: posts,
		feed:  feed,
		retry: retry,
		cfg:   cfg,
	}
}

// CreatePost answers as soon as the post is stored; fan-out continues in the background.
func (h *FeedHandler) CreatePost(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req services.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	post, err := h.posts.CreatePost(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Post created successfully",
		"post":    post,
	})
}

func (h *FeedHandler) GetPost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	post, err := h.posts.GetPost(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

func (h *FeedHandler) GetFeed(c *gin.Context) {
	userID := middleware.GetUserID(c)
	cursor, size, ok := pageParams(c, h.cfg)
	if !ok {
		return
	}

	page, err := h.feed.PaginateFeed(c.Request.Context(), userID, cursor, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *FeedHandler) GetUserPosts(c *gin.Context) {
	ownerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	cursor, size, ok := pageParams(c, h.cfg)
	if !ok {
		return
	}

	page, err := h.posts.PaginateOwnerPosts(c.Request.Context(), ownerID, cursor, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetFanoutStatus shows delivery progress of one of the caller's posts.
func (h *FeedHandler) GetFanoutStatus(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	status, err := h.feed.FanoutStatus(c.Request.Context(), middleware.GetUserID(c), postID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *FeedHandler) GetFanoutStats(c *gin.Context) {
	stats, err := h.retry.GetFanoutStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": stats})
}
