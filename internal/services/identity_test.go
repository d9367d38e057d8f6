package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHandle(t *testing.T) {
	cases := map[string]string{
		"Alice":         "alice",
		"alice smith":   "alice_smith",
		"Dr.Who#1":      "dr_who_1",
		"a$b[c]d/e":     "a_b_c_d_e",
		"already_clean": "already_clean",
		"":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHandle(in), in)
	}
}

func TestNormalizeHandleIdempotent(t *testing.T) {
	for i := 0; i < 200; i++ {
		raw := gofakeit.Username() + gofakeit.RandomString([]string{" ", ".", "#", "$", "[", "]", "/"}) + gofakeit.LetterN(3)
		once := NormalizeHandle(raw)
		assert.Equal(t, once, NormalizeHandle(once), raw)
	}
}

func TestReserveHandleConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	variants := []string{"Alice.Smith", "alice smith", "ALICE#SMITH", "alice/smith", "alice_smith"}
	const workers = 25

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
		taken   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := uuid.New()
			_, err := h.identity.ReserveHandle(ctx, variants[i%len(variants)], id, gofakeit.Email())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, id)
			case errors.Is(err, ErrHandleTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Equal(t, workers-1, taken)

	entry, err := h.identity.Lookup(ctx, "ALICE.smith")
	require.NoError(t, err)
	require.Equal(t, winners[0], entry.AccountID)
}

func TestResolveHandleToEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.identity.ReserveHandle(ctx, "Bob", uuid.New(), "bob@example.com")
	require.NoError(t, err)

	email, err := h.identity.ResolveHandleToEmail(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", email)

	_, err = h.identity.ResolveHandleToEmail(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)

	free, err := h.identity.HandleAvailable(ctx, "BOB")
	require.NoError(t, err)
	require.False(t, free)

	free, err = h.identity.HandleAvailable(ctx, "carol")
	require.NoError(t, err)
	require.True(t, free)
}

func TestReserveHandleRejectsEmpty(t *testing.T) {
	h := newHarness(t)
	_, err := h.identity.ReserveHandle(context.Background(), "", uuid.New(), "x@example.com")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReleaseHandleOnlyByOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := h.identity.ReserveHandle(ctx, "dana", owner, "dana@example.com")
	require.NoError(t, err)

	require.NoError(t, h.identity.ReleaseHandle(ctx, "dana", uuid.New()))
	_, err = h.identity.Lookup(ctx, "dana")
	require.NoError(t, err)

	require.NoError(t, h.identity.ReleaseHandle(ctx, "Dana", owner))
	_, err = h.identity.Lookup(ctx, "dana")
	require.ErrorIs(t, err, ErrNotFound)
}
