package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/feed-system/photo-feed/internal/middleware"
	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserHandler struct {
	accounts    *services.AccountService
	identity    *services.IdentityService
	graph       *services.GraphService
	jwtSecret   string
	tokenTTL    time.Duration
	searchLimit int
}

func NewUserHandler(
	accounts *services.AccountService,
	identity *services.IdentityService,
	graph *services.GraphService,
	jwtSecret string,
	tokenTTL time.Duration,
	searchLimit int,
) *UserHandler {
	return &UserHandler{
		accounts:    accounts,
		identity:    identity,
		graph:       graph,
		jwtSecret:   jwtSecret,
		tokenTTL:    tokenTTL,
		searchLimit: searchLimit,
	}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.token(account)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Account registered successfully",
		"account": account,
		"token":   token,
	})
}

func (h *UserHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	account, err := h.accounts.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.token(account)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"account": account,
		"token":   token,
	})
}

func (h *UserHandler) token(account *models.Account) (string, error) {
	return middleware.GenerateToken(account.ID.String(), account.Handle, h.jwtSecret, h.tokenTTL)
}

// GetHandle reports which account owns a handle; 404 means it is free.
func (h *UserHandler) GetHandle(c *gin.Context) {
	entry, err := h.identity.Lookup(c.Request.Context(), c.Param("handle"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"handle":     entry.Handle,
		"account_id": entry.AccountID,
	})
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	profile, err := h.accounts.GetProfile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) GetStats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if _, err := h.accounts.GetByID(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	stats, err := h.accounts.Stats(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *UserHandler) GetFollowers(c *gin.Context) {
	h.listEdges(c, "followers", h.graph.ListFollowers)
}

func (h *UserHandler) GetFollowing(c *gin.Context) {
	h.listEdges(c, "following", h.graph.ListFollowing)
}

func (h *UserHandler) listEdges(c *gin.Context, key string, list func(context.Context, uuid.UUID) ([]uuid.UUID, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.accounts.GetByID(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	ids, err := list(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	accounts, err := h.accounts.GetMany(ctx, ids)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		key:     accounts,
		"count": len(accounts),
	})
}

func (h *UserHandler) Follow(c *gin.Context) {
	followerID := middleware.GetUserID(c)
	followeeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	already, err := h.graph.Follow(c.Request.Context(), followerID, followeeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":           "Followed successfully",
		"already_following": already,
	})
}

func (h *UserHandler) Unfollow(c *gin.Context) {
	followerID := middleware.GetUserID(c)
	followeeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.graph.Unfollow(c.Request.Context(), followerID, followeeID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unfollowed successfully"})
}

func (h *UserHandler) FollowStatus(c *gin.Context) {
	followerID := middleware.GetUserID(c)
	followeeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	following, err := h.graph.IsFollowing(c.Request.Context(), followerID, followeeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

// SearchUsers matches handle prefixes. Authenticated callers never see themselves.
func (h *UserHandler) SearchUsers(c *gin.Context) {
	query := c.Query("q")

	users, err := h.accounts.Search(c.Request.Context(), query, middleware.GetUserID(c), h.searchLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"query": query,
	})
}
