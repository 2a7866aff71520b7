package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

// forEachStore runs fn against every DocumentStore implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s ports.DocumentStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisStore(t)) })
}

func TestStoreGetMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ports.DocumentStore) {
		var account core.VerifiedAccount
		err := s.Get(context.Background(), core.CollectionUsers, "nobody", &account)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestStoreSetAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ports.DocumentStore) {
		ctx := context.Background()
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, s.Set(ctx, core.CollectionUsers, "alice", core.VerifiedAccount{
			WalletAddress:    "0xabc",
			Verified:         true,
			VerificationDate: now,
			AssetCount:       3,
		}, false))

		var got core.VerifiedAccount
		require.NoError(t, s.Get(ctx, core.CollectionUsers, "alice", &got))
		assert.Equal(t, "0xabc", got.WalletAddress)
		assert.True(t, got.Verified)
		assert.True(t, got.VerificationDate.Equal(now))
		assert.EqualValues(t, 3, got.AssetCount)
	})
}

func TestStoreSetOverwriteAndMerge(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ports.DocumentStore) {
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "c", "k", map[string]any{"a": 1, "b": 2}, false))
		require.NoError(t, s.Set(ctx, "c", "k", map[string]any{"b": 3, "c": 4}, true))

		var merged map[string]int
		require.NoError(t, s.Get(ctx, "c", "k", &merged))
		assert.Equal(t, map[string]int{"a": 1, "b": 3, "c": 4}, merged)

		require.NoError(t, s.Set(ctx, "c", "k", map[string]any{"z": 9}, false))
		var replaced map[string]int
		require.NoError(t, s.Get(ctx, "c", "k", &replaced))
		assert.Equal(t, map[string]int{"z": 9}, replaced)
	})
}

func TestStoreMergeCreatesMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ports.DocumentStore) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "c", "new", map[string]any{"a": 1}, true))

		var got map[string]int
		require.NoError(t, s.Get(ctx, "c", "new", &got))
		assert.Equal(t, map[string]int{"a": 1}, got)
	})
}

func TestStoreUpdate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ports.DocumentStore) {
		ctx := context.Background()

		err := s.Update(ctx, "c", "k", map[string]any{"a": 1})
		require.ErrorIs(t, err, core.ErrNotFound)

		require.NoError(t, s.Set(ctx, "c", "k", map[string]any{"a": 1, "b": 2}, false))
		require.NoError(t, s.Update(ctx, "c", "k", map[string]any{"b": 5}))

		var got map[string]int
		require.NoError(t, s.Get(ctx, "c", "k", &got))
		assert.Equal(t, map[string]int{"a": 1, "b": 5}, got)
	})
}

func TestStoreGetAllAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ports.DocumentStore) {
		ctx := context.Background()

		docs, err := s.GetAll(ctx, "c")
		require.NoError(t, err)
		assert.Empty(t, docs)

		for _, k := range []string{"b", "c", "a"} {
			require.NoError(t, s.Set(ctx, "c", k, map[string]string{"key": k}, false))
		}
		require.NoError(t, s.Set(ctx, "other", "x", map[string]string{}, false))

		docs, err = s.GetAll(ctx, "c")
		require.NoError(t, err)
		require.Len(t, docs, 3)
		for i, want := range []string{"a", "b", "c"} {
			assert.Equal(t, want, docs[i].Key)
			var body map[string]string
			require.NoError(t, docs[i].Decode(&body))
			assert.Equal(t, want, body["key"])
		}

		require.NoError(t, s.Delete(ctx, "c", "b"))
		require.NoError(t, s.Delete(ctx, "c", "b"), "deleting twice is fine")

		docs, err = s.GetAll(ctx, "c")
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})
}

func TestStoreConcurrentMergesKeepFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ports.DocumentStore) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "c", "k", map[string]any{}, false))

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Update(ctx, "c", "k", map[string]any{fmt.Sprintf("f%d", i): i}))
			}(i)
		}
		wg.Wait()

		var got map[string]int
		require.NoError(t, s.Get(ctx, "c", "k", &got))
		assert.Len(t, got, 4)
	})
}

func TestRedisStoreSkipsDanglingIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "c", "a", map[string]int{"v": 1}, false))
	require.NoError(t, s.Set(ctx, "c", "b", map[string]int{"v": 2}, false))
	mr.Del("verifier:c:a")

	docs, err := s.GetAll(ctx, "c")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].Key)

	require.NoError(t, s.Ping(ctx))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedisStore(client)
	mr.Close()

	_, err := s.GetAll(context.Background(), core.CollectionUsers)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrNotFound)
}
