package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/internal/testutil"
	"github.com/feed-system/photo-feed/pkg/cache"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPaginateFeedThirteenPosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u1 := h.register(t, "u1")
	u2 := h.register(t, "u2")
	_, err := h.graph.Follow(ctx, u2.ID, u1.ID)
	require.NoError(t, err)

	var shared []uuid.UUID
	for i := 0; i < 13; i++ {
		shared = append(shared, h.share(t, u1).ID)
	}

	first, err := h.feed.PaginateFeed(ctx, u2.ID, "", 12)
	require.NoError(t, err)
	require.Len(t, first.Posts, 12)
	require.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)
	// newest first
	require.Equal(t, shared[12], first.Posts[0].ID)
	require.Equal(t, shared[1], first.Posts[11].ID)

	second, err := h.feed.PaginateFeed(ctx, u2.ID, first.NextCursor, 12)
	require.NoError(t, err)
	require.Len(t, second.Posts, 1)
	require.False(t, second.HasMore)
	require.Empty(t, second.NextCursor)
	require.Equal(t, shared[0], second.Posts[0].ID)
}

func TestPaginateFeedExhaustsWithoutOverlap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	reader := h.register(t, "reader")
	for _, id := range []uuid.UUID{alice.ID, bob.ID} {
		_, err := h.graph.Follow(ctx, reader.ID, id)
		require.NoError(t, err)
	}

	total := gofakeit.IntRange(20, 40)
	for i := 0; i < total; i++ {
		owner := alice
		if gofakeit.Bool() {
			owner = bob
		}
		h.share(t, owner)
	}

	seen := map[uuid.UUID]bool{}
	var last *models.Post
	cursor := ""
	for {
		page, err := h.feed.PaginateFeed(ctx, reader.ID, cursor, gofakeit.IntRange(1, 7))
		require.NoError(t, err)
		for _, p := range page.Posts {
			require.False(t, seen[p.ID], "post returned twice")
			seen[p.ID] = true
			if last != nil {
				require.Less(t, p.ID.String(), last.ID.String())
			}
			last = p
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	require.Len(t, seen, total)
}

func TestPaginateFeedEmptyAndInvalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u1 := h.register(t, "u1")

	page, err := h.feed.PaginateFeed(ctx, u1.ID, "", 12)
	require.NoError(t, err)
	require.Empty(t, page.Posts)
	require.False(t, page.HasMore)

	_, err = h.feed.PaginateFeed(ctx, u1.ID, "not-a-cursor", 12)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.feed.PaginateFeed(ctx, u1.ID, "", 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUnfollowKeepsDeliveredPosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u1 := h.register(t, "u1")
	u2 := h.register(t, "u2")
	_, err := h.graph.Follow(ctx, u2.ID, u1.ID)
	require.NoError(t, err)

	before := h.share(t, u1)
	require.NoError(t, h.graph.Unfollow(ctx, u2.ID, u1.ID))
	h.share(t, u1)

	page, err := h.feed.PaginateFeed(ctx, u2.ID, "", 12)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	require.Equal(t, before.ID, page.Posts[0].ID)
}

func TestFanoutStatusOwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u1 := h.register(t, "u1")
	u2 := h.register(t, "u2")
	post := h.share(t, u1)

	status, err := h.feed.FanoutStatus(ctx, u1.ID, post.ID)
	require.NoError(t, err)
	require.Equal(t, models.FanoutFannedOut, status.Job.State)

	_, err = h.feed.FanoutStatus(ctx, u2.ID, post.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostsResolveThroughRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0, 4, 0)
	t.Cleanup(func() { client.Close() })
	postCache := NewRedisPostCache(client, time.Hour, logger.NewDiscardLogger())

	h := newHarness(t, withPostCache(postCache))
	ctx := context.Background()
	u1 := h.register(t, "u1")
	post := h.share(t, u1)

	got, err := h.posts.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, post.Caption, got.Caption)
	require.True(t, mr.Exists(postKey(post.ID)))

	// served from the cache once the store is down
	h.stores.Posts.Err = testutil.ErrInjected
	got, err = h.posts.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, post.ImageURL, got.ImageURL)

	_, err = h.posts.GetPost(ctx, uuid.New())
	require.ErrorIs(t, err, ErrTransientIO)
}

func TestPostsFallBackWhenCacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0, 4, 0)
	t.Cleanup(func() { client.Close() })
	h := newHarness(t, withPostCache(NewRedisPostCache(client, time.Hour, logger.NewDiscardLogger())))

	u1 := h.register(t, "u1")
	post := h.share(t, u1)
	mr.Close()

	page, err := h.feed.PaginateFeed(context.Background(), u1.ID, "", 12)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	require.Equal(t, post.ID, page.Posts[0].ID)
}

func TestGetPostNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.posts.GetPost(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
