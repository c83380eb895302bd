package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name     string `json:"name"`
	Revision int    `json:"revision"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Minute), mr
}

func TestGetJSONCachesLoads(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (payload, error) {
		loads++
		return payload{Name: "Fridge", Revision: 2}, nil
	}

	got, err := GetJSON(ctx, c, Key("container", 7), load)
	require.NoError(t, err)
	require.Equal(t, payload{Name: "Fridge", Revision: 2}, got)

	got, err = GetJSON(ctx, c, Key("container", 7), load)
	require.NoError(t, err)
	require.Equal(t, 2, got.Revision)
	require.Equal(t, 1, loads)
}

func TestGetJSONErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	boom := errors.New("load failed")
	_, err := GetJSON(ctx, c, Key("product", 1), func(ctx context.Context) (payload, error) {
		return payload{}, boom
	})
	require.ErrorIs(t, err, boom)

	got, err := GetJSON(ctx, c, Key("product", 1), func(ctx context.Context) (payload, error) {
		return payload{Name: "Beer"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "Beer", got.Name)
}

func TestInvalidateForcesReload(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (payload, error) {
		loads++
		return payload{Revision: loads}, nil
	}

	key := Key("product", 42)
	got, err := GetJSON(ctx, c, key, load)
	require.NoError(t, err)
	require.Equal(t, 1, got.Revision)

	c.Invalidate(ctx, key)

	got, err = GetJSON(ctx, c, key, load)
	require.NoError(t, err)
	require.Equal(t, 2, got.Revision)
}

func TestNilCachePassesThrough(t *testing.T) {
	got, err := GetJSON(context.Background(), nil, "k", func(ctx context.Context) (payload, error) {
		return payload{Name: "direct"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "direct", got.Name)
}
