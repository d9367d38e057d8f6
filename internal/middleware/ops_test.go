package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func opsStatus(t *testing.T, configured, sent string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ops", NewOpsAuth(configured), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ops", nil)
	if sent != "" {
		req.Header.Set(OpsTokenHeader, sent)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestOpsAuth(t *testing.T) {
	require.Equal(t, http.StatusOK, opsStatus(t, "ops-secret", "ops-secret"))
	require.Equal(t, http.StatusForbidden, opsStatus(t, "ops-secret", ""))
	require.Equal(t, http.StatusForbidden, opsStatus(t, "ops-secret", "guess"))
	require.Equal(t, http.StatusNotFound, opsStatus(t, "", "anything"))
}
