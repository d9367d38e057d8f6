package services

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPaginateOwnerPostsThirteenPosts(t *testing.T) {
	h := newHarness(t, withoutInline())
	ctx := context.Background()
	owner := h.register(t, "owner")
	other := h.register(t, "other")
	h.share(t, other)

	var shared []uuid.UUID
	for i := 0; i < 13; i++ {
		shared = append(shared, h.share(t, owner).ID)
	}

	first, err := h.posts.PaginateOwnerPosts(ctx, owner.ID, "", 12)
	require.NoError(t, err)
	require.Len(t, first.Posts, 12)
	require.True(t, first.HasMore)
	require.Equal(t, shared[1].String(), first.NextCursor)
	for i, p := range first.Posts {
		require.Equal(t, shared[12-i], p.ID)
		require.Equal(t, owner.ID, p.OwnerID)
	}

	second, err := h.posts.PaginateOwnerPosts(ctx, owner.ID, first.NextCursor, 12)
	require.NoError(t, err)
	require.Len(t, second.Posts, 1)
	require.False(t, second.HasMore)
	require.Empty(t, second.NextCursor)
	require.Equal(t, shared[0], second.Posts[0].ID)

	count, err := h.posts.CountPosts(ctx, owner.ID)
	require.NoError(t, err)
	require.EqualValues(t, 13, count)
}

func TestPaginateOwnerPostsExhaustsWithoutOverlap(t *testing.T) {
	h := newHarness(t, withoutInline())
	ctx := context.Background()
	owner := h.register(t, "owner")

	total := gofakeit.IntRange(15, 35)
	for i := 0; i < total; i++ {
		h.share(t, owner)
	}

	seen := map[uuid.UUID]bool{}
	var last uuid.UUID
	cursor := ""
	for {
		page, err := h.posts.PaginateOwnerPosts(ctx, owner.ID, cursor, gofakeit.IntRange(1, 6))
		require.NoError(t, err)
		for _, p := range page.Posts {
			require.False(t, seen[p.ID], "post returned twice")
			seen[p.ID] = true
			if last != uuid.Nil {
				require.Less(t, p.ID.String(), last.String())
			}
			last = p.ID
		}
		if !page.HasMore {
			require.Empty(t, page.NextCursor)
			break
		}
		cursor = page.NextCursor
	}
	require.Len(t, seen, total)
}
