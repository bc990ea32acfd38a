package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipebox/internal/model"
)

func newTestCache(t *testing.T) (*RecipeCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRecipeCache(client, time.Minute), mr
}

func TestRecipeCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	_, version, hit, err := c.GetList(ctx, 7, "main|title")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(0), version)

	recipes := []model.Recipe{{ID: 1, AccountID: 7, Title: "Soup", Labels: []model.Label{{ID: 3, Title: "dinner"}}}}
	require.NoError(t, c.SetList(ctx, 7, version, "main|title", recipes))

	got, _, hit, err := c.GetList(ctx, 7, "main|title")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 1)
	assert.Equal(t, "Soup", got[0].Title)
	assert.Equal(t, "dinner", got[0].Labels[0].Title)
}

func TestRecipeCache_InvalidateHidesOldEntries(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.SetList(ctx, 7, 0, "|title", []model.Recipe{{ID: 1}}))
	require.NoError(t, c.Invalidate(ctx, 7))

	_, version, hit, err := c.GetList(ctx, 7, "|title")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(1), version)
	assert.True(t, mr.TTL("recipes:ver:7") > 0)

	// a fill that started before the bump writes under the old version
	require.NoError(t, c.SetList(ctx, 7, 0, "|title", []model.Recipe{{ID: 99}}))
	_, _, hit, err = c.GetList(ctx, 7, "|title")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRecipeCache_OtherAccountUnaffected(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	require.NoError(t, c.SetList(ctx, 8, 0, "|title", []model.Recipe{{ID: 2}}))
	require.NoError(t, c.Invalidate(ctx, 7))

	_, _, hit, err := c.GetList(ctx, 8, "|title")
	require.NoError(t, err)
	assert.True(t, hit)
}
