package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/internal/testutil"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	stores   *testutil.Stores
	events   *testutil.Publisher
	cfg      *config.FanoutConfig
	clock    *fakeClock
	identity *IdentityService
	graph    *GraphService
	engine   *FanoutEngine
	posts    *PostService
	feed     *FeedService
	accounts *AccountService
	retry    *RetryService
}

type harnessOption func(*harnessOptions)

type harnessOptions struct {
	inline bool
	cache  PostCache
}

// withoutInline leaves new posts to the retry sweeper or to explicit Fanout calls.
func withoutInline() harnessOption {
	return func(o *harnessOptions) { o.inline = false }
}

func withPostCache(c PostCache) harnessOption {
	return func(o *harnessOptions) { o.cache = c }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	o := harnessOptions{inline: true}
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.NewDiscardLogger()
	cfg := &config.FanoutConfig{
		Inline:         o.inline,
		Concurrency:    4,
		WriteAttempts:  3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		MaxJobAttempts: 5,
		RetryInterval:  time.Second,
		RetryBatchSize: 100,
		StaleAfter:     time.Minute,
	}
	clock := &fakeClock{now: time.Now()}

	h := &harness{
		stores: testutil.NewStores(),
		events: &testutil.Publisher{},
		cfg:    cfg,
		clock:  clock,
	}
	h.identity = NewIdentityService(h.stores.Handles, log)
	h.graph = NewGraphService(h.stores.Follows, h.stores.Accounts, h.events, log)
	h.engine = NewFanoutEngine(h.stores.Fanouts, h.stores.Follows, h.stores.Feeds, cfg, log)
	h.engine.now = clock.Now

	var dispatcher Dispatcher
	if o.inline {
		dispatcher = h.engine
	}
	h.posts = NewPostService(h.stores.Posts, o.cache, h.events, dispatcher, cfg, log)
	h.posts.now = clock.Now
	h.feed = NewFeedService(h.stores.Feeds, h.posts, h.engine, log)
	h.accounts = NewAccountService(h.stores.Accounts, h.identity, h.graph, h.posts, h.events, log)
	h.retry = NewRetryService(h.stores.Fanouts, h.engine, cfg, log)
	h.retry.now = clock.Now

	t.Cleanup(h.engine.Wait)
	return h
}

func (h *harness) register(t *testing.T, handle string) *models.Account {
	t.Helper()
	account, err := h.accounts.Register(context.Background(), &RegisterRequest{
		Handle:   handle,
		Email:    gofakeit.Email(),
		Password: "secret123",
	})
	require.NoError(t, err)
	return account
}

// share creates a post and waits for inline fan-out to finish.
func (h *harness) share(t *testing.T, owner *models.Account) *models.Post {
	t.Helper()
	post, err := h.posts.CreatePost(context.Background(), owner.ID, &CreatePostRequest{
		Caption:  gofakeit.Sentence(6),
		ImageURL: gofakeit.URL(),
	})
	require.NoError(t, err)
	h.engine.Wait()
	return post
}
