package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "patients", time.Minute), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	var out []entry
	assert.ErrorIs(t, c.Get(ctx, "custom_fields", &out), ErrMiss)

	require.NoError(t, c.Set(ctx, "custom_fields", []entry{{ID: 1, Name: "Allergies"}}))
	assert.True(t, mr.Exists("patients:custom_fields"))
	assert.Equal(t, time.Minute, mr.TTL("patients:custom_fields"))

	require.NoError(t, c.Get(ctx, "custom_fields", &out))
	assert.Equal(t, []entry{{ID: 1, Name: "Allergies"}}, out)

}

func TestRedisCacheVersion(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	v, err := c.Version(ctx, "custom_fields:version")
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = c.Bump(ctx, "custom_fields:version")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	_, err = c.Bump(ctx, "custom_fields:version")
	require.NoError(t, err)

	v, err = c.Version(ctx, "custom_fields:version")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Zero(t, mr.TTL("patients:custom_fields:version"))

	require.NoError(t, mr.Set("patients:custom_fields:version", "many"))
	_, err = c.Version(ctx, "custom_fields:version")
	assert.Error(t, err)
}

func TestRedisCacheExpires(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "custom_fields", []entry{{ID: 2, Name: "Sleep aid"}}))
	mr.FastForward(2 * time.Minute)

	var out []entry
	assert.ErrorIs(t, c.Get(ctx, "custom_fields", &out), ErrMiss)
}

func TestRedisCacheCorruptValue(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, mr.Set("patients:custom_fields", "not-json"))

	var out []entry
	err := c.Get(context.Background(), "custom_fields", &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}
