package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrHandleTaken), errors.Is(err, services.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrTransientIO):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Server-side failures are recorded
// on the context for the request logger and hidden from the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg = http.StatusText(status)
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads ?cursor= and ?limit=; limit defaults to DefaultPageSize and is capped at MaxPageSize.
func pageParams(c *gin.Context, cfg *config.FeedConfig) (string, int, bool) {
	size := cfg.DefaultPageSize
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			badRequest(c, "limit must be a positive integer")
			return "", 0, false
		}
		size = parsed
	}
	if size > cfg.MaxPageSize {
		size = cfg.MaxPageSize
	}
	return c.Query("cursor"), size, true
}
