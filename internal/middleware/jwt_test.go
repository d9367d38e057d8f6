package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", NewJWTAuth(&JWTConfig{Secret: secret}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c).String(), "handle": GetHandle(c)})
	})
	return r
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	id := uuid.New()
	token, err := GenerateToken(id.String(), "alice", "secret", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newRouter("secret").ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), id.String())
	require.Contains(t, w.Body.String(), "alice")
}

func TestJWTAuthRejects(t *testing.T) {
	id := uuid.New().String()
	wrongKey, err := GenerateToken(id, "alice", "other", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(id, "alice", "secret", -time.Minute)
	require.NoError(t, err)
	noUser, err := GenerateToken("not-a-uuid", "alice", "secret", time.Hour)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":   "",
		"no bearer": "Token abc",
		"garbage":   "Bearer abc.def.ghi",
		"wrong key": "Bearer " + wrongKey,
		"expired":   "Bearer " + expired,
		"bad user":  "Bearer " + noUser,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		newRouter("secret").ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, name)
	}
}

func TestGetUserIDWithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Equal(t, uuid.Nil, GetUserID(c))
}

func TestOptionalJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/who", NewOptionalJWTAuth(&JWTConfig{Secret: "secret"}), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c).String())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uuid.Nil.String(), w.Body.String())

	id := uuid.New()
	token, err := GenerateToken(id.String(), "bob", "secret", time.Hour)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, id.String(), w.Body.String())
}
