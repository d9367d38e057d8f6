package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/internal/middleware"
	"github.com/feed-system/photo-feed/internal/services"
	"github.com/feed-system/photo-feed/internal/testutil"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret"
	testOpsToken = "test-ops-token"
)

type apiFixture struct {
	router *gin.Engine
	stores *testutil.Stores
	engine *services.FanoutEngine
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewDiscardLogger()
	stores := testutil.NewStores()
	events := &testutil.Publisher{}

	fanoutCfg := &config.FanoutConfig{
		Inline:         true,
		Concurrency:    4,
		WriteAttempts:  2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		MaxJobAttempts: 3,
		RetryInterval:  time.Second,
		RetryBatchSize: 10,
		StaleAfter:     time.Minute,
	}
	feedCfg := &config.FeedConfig{DefaultPageSize: 12, MaxPageSize: 50, SearchLimit: 20}

	identity := services.NewIdentityService(stores.Handles, log)
	graph := services.NewGraphService(stores.Follows, stores.Accounts, events, log)
	engine := services.NewFanoutEngine(stores.Fanouts, stores.Follows, stores.Feeds, fanoutCfg, log)
	posts := services.NewPostService(stores.Posts, nil, events, engine, fanoutCfg, log)
	feed := services.NewFeedService(stores.Feeds, posts, engine, log)
	accounts := services.NewAccountService(stores.Accounts, identity, graph, posts, events, log)
	retry := services.NewRetryService(stores.Fanouts, engine, fanoutCfg, log)

	router := gin.New()
	RegisterRoutes(router,
		NewUserHandler(accounts, identity, graph, testSecret, time.Hour, feedCfg.SearchLimit),
		NewFeedHandler(posts, feed, retry, feedCfg),
		&middleware.JWTConfig{Secret: testSecret},
		testOpsToken,
	)
	t.Cleanup(engine.Wait)
	return &apiFixture{router: router, stores: stores, engine: engine}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

type session struct {
	id    string
	token string
}

func (f *apiFixture) signUp(t *testing.T, handle string) session {
	t.Helper()
	w, out := f.do(t, http.MethodPost, "/api/v1/accounts/register", "", gin.H{
		"handle":   handle,
		"email":    handle + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	account := out["account"].(map[string]interface{})
	return session{id: account["id"].(string), token: out["token"].(string)}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAPI(t)
	f.signUp(t, "alice")

	w, _ := f.do(t, http.MethodPost, "/api/v1/accounts/register", "", gin.H{
		"handle": "ALICE", "email": "other@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/accounts/register", "", gin.H{"handle": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, out := f.do(t, http.MethodPost, "/api/v1/accounts/login", "", gin.H{"login": "Alice", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, out["token"])

	w, _ = f.do(t, http.MethodPost, "/api/v1/accounts/login", "", gin.H{"login": "alice", "password": "nope-nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, out = f.do(t, http.MethodGet, "/api/v1/handles/Alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", out["handle"])

	w, _ = f.do(t, http.MethodGet, "/api/v1/handles/nobody", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestFollowPostAndReadFeed(t *testing.T) {
	f := newAPI(t)
	author := f.signUp(t, "author")
	reader := f.signUp(t, "reader")

	w, out := f.do(t, http.MethodPost, "/api/v1/users/"+author.id+"/follow", reader.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, out["already_following"])

	w, out = f.do(t, http.MethodGet, "/api/v1/users/"+author.id+"/follow", reader.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, out["following"])

	var postIDs []string
	for i := 0; i < 3; i++ {
		w, out = f.do(t, http.MethodPost, "/api/v1/posts", author.token, gin.H{
			"caption":   fmt.Sprintf("photo %d", i),
			"image_url": fmt.Sprintf("https://img.example.com/%d.jpg", i),
		})
		require.Equal(t, http.StatusCreated, w.Code)
		postIDs = append(postIDs, out["post"].(map[string]interface{})["id"].(string))
	}
	f.engine.Wait()

	w, out = f.do(t, http.MethodGet, "/api/v1/feed?limit=2", reader.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	posts := out["posts"].([]interface{})
	require.Len(t, posts, 2)
	require.Equal(t, postIDs[2], posts[0].(map[string]interface{})["id"])
	require.Equal(t, true, out["has_more"])

	w, out = f.do(t, http.MethodGet, "/api/v1/feed?limit=2&cursor="+out["next_cursor"].(string), reader.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, out["posts"].([]interface{}), 1)
	require.Equal(t, false, out["has_more"])
	require.Equal(t, "", out["next_cursor"])

	w, out = f.do(t, http.MethodGet, "/api/v1/users/"+author.id+"/posts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, out["posts"].([]interface{}), 3)

	w, out = f.do(t, http.MethodGet, "/api/v1/posts/"+postIDs[0]+"/fanout", author.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, out["delivered"])

	w, _ = f.do(t, http.MethodGet, "/api/v1/posts/"+postIDs[0]+"/fanout", reader.token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, out = f.do(t, http.MethodGet, "/api/v1/users/"+author.id+"/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 3, out["posts"])
	require.EqualValues(t, 2, out["followers"])

	w, out = f.do(t, http.MethodGet, "/api/v1/users/"+author.id+"/followers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, out["count"])

	w, _ = f.do(t, http.MethodDelete, "/api/v1/users/"+author.id+"/follow", reader.token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, out = f.ops(t, "/ops/fanout/stats", testOpsToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 3, out["jobs"].(map[string]interface{})["fanned_out"])
}

func (f *apiFixture) ops(t *testing.T, path, opsToken string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if opsToken != "" {
		req.Header.Set(middleware.OpsTokenHeader, opsToken)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestFanoutStatsNeedsOpsToken(t *testing.T) {
	f := newAPI(t)
	s := f.signUp(t, "sam")

	w, _ := f.do(t, http.MethodGet, "/ops/fanout/stats", s.token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/v1/fanout/stats", s.token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.ops(t, "/ops/fanout/stats", "wrong")
	require.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.ops(t, "/ops/fanout/stats", testOpsToken)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPI(t)
	w, _ := f.do(t, http.MethodGet, "/api/v1/feed", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/posts", "", gin.H{"image_url": "https://img.example.com/x.jpg"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBadParameters(t *testing.T) {
	f := newAPI(t)
	s := f.signUp(t, "sam")

	w, _ := f.do(t, http.MethodGet, "/api/v1/feed?cursor=bogus", s.token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/v1/feed?limit=-1", s.token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/v1/users/not-a-uuid", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/posts", s.token, gin.H{"caption": "no image"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/api/v1/users/"+s.id+"/follow", s.token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchExcludesAuthenticatedCaller(t *testing.T) {
	f := newAPI(t)
	anna := f.signUp(t, "anna")
	f.signUp(t, "annie")

	w, out := f.do(t, http.MethodGet, "/api/v1/users/search?q=ann", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, out["users"].([]interface{}), 2)

	w, out = f.do(t, http.MethodGet, "/api/v1/users/search?q=ann", anna.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	users := out["users"].([]interface{})
	require.Len(t, users, 1)
	require.Equal(t, "annie", users[0].(map[string]interface{})["handle"])
}

func TestStoreOutageMapsTo503(t *testing.T) {
	f := newAPI(t)
	s := f.signUp(t, "sam")
	f.stores.Posts.Err = testutil.ErrInjected

	w, out := f.do(t, http.MethodGet, "/api/v1/users/"+s.id+"/posts", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, http.StatusText(http.StatusServiceUnavailable), out["error"])
}

func TestHealth(t *testing.T) {
	f := newAPI(t)
	w, out := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "healthy", out["status"])
}
