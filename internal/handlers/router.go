package handlers

import (
	"net/http"
	"time"

	"github.com/feed-system/photo-feed/internal/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the /api/v1 surface, the /ops routes and the health check on router.
func RegisterRoutes(router *gin.Engine, users *UserHandler, feed *FeedHandler, jwtConfig *middleware.JWTConfig, opsToken string) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api := router.Group("/api/v1")
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("/register", users.Register)
			accounts.POST("/login", users.Login)
		}

		api.GET("/handles/:handle", users.GetHandle)
		api.GET("/users/search", middleware.NewOptionalJWTAuth(jwtConfig), users.SearchUsers)
		api.GET("/users/:id", users.GetProfile)
		api.GET("/users/:id/stats", users.GetStats)
		api.GET("/users/:id/followers", users.GetFollowers)
		api.GET("/users/:id/following", users.GetFollowing)
		api.GET("/users/:id/posts", feed.GetUserPosts)
		api.GET("/posts/:id", feed.GetPost)

		protected := api.Group("")
		protected.Use(middleware.NewJWTAuth(jwtConfig))
		{
			protected.POST("/users/:id/follow", users.Follow)
			protected.DELETE("/users/:id/follow", users.Unfollow)
			protected.GET("/users/:id/follow", users.FollowStatus)

			protected.POST("/posts", feed.CreatePost)
			protected.GET("/posts/:id/fanout", feed.GetFanoutStatus)
			protected.GET("/feed", feed.GetFeed)
		}
	}

	ops := router.Group("/ops", middleware.NewOpsAuth(opsToken))
	{
		ops.GET("/fanout/stats", feed.GetFanoutStats)
	}
}
