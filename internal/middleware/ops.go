package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const OpsTokenHeader = "X-Ops-Token"

// NewOpsAuth guards operational routes with a shared token sent in
// X-Ops-Token. An empty token disables the routes entirely.
func NewOpsAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		got := c.GetHeader(OpsTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator token required"})
			return
		}
		c.Next()
	}
}
