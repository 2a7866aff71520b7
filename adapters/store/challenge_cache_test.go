package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Madhoneybees/discord-nft-verifier/core"
)

func testChallenge(subjectID string, expires time.Time) *core.Challenge {
	return &core.Challenge{
		ID:            "id-" + subjectID,
		SubjectID:     subjectID,
		ClaimedWallet: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Message:       "msg " + subjectID,
		Nonce:         "00112233445566778899aabbccddeeff",
		IssuedAt:      expires.Add(-10 * time.Minute),
		ExpiresAt:     expires,
	}
}

func TestChallengeCacheWriteThrough(t *testing.T) {
	durable := NewMemoryStore()
	cache := NewChallengeCache(durable)
	ctx := context.Background()
	expires := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)

	require.NoError(t, cache.Put(ctx, testChallenge("alice", expires)))

	var stored core.Challenge
	require.NoError(t, durable.Get(ctx, core.CollectionPendingVerifications, "alice", &stored))
	assert.Equal(t, "msg alice", stored.Message)

	got, err := cache.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "id-alice", got.ID)
	assert.True(t, got.ExpiresAt.Equal(expires))

	require.NoError(t, cache.Delete(ctx, "alice"))
	_, err = cache.Get(ctx, "alice")
	assert.ErrorIs(t, err, core.ErrNotFound)
	err = durable.Get(ctx, core.CollectionPendingVerifications, "alice", &stored)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestChallengeCacheReadThroughAfterRestart(t *testing.T) {
	durable := newRedisStore(t)
	ctx := context.Background()
	expires := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)

	require.NoError(t, NewChallengeCache(durable).Put(ctx, testChallenge("alice", expires)))

	restarted := NewChallengeCache(durable)
	got, err := restarted.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "msg alice", got.Message)
	assert.Equal(t, "alice", got.SubjectID)

	// now served from memory
	require.NoError(t, durable.Delete(ctx, core.CollectionPendingVerifications, "alice"))
	_, err = restarted.Get(ctx, "alice")
	assert.NoError(t, err)
}

func TestChallengeCachePutReplaces(t *testing.T) {
	cache := NewChallengeCache(NewMemoryStore())
	ctx := context.Background()
	expires := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)

	first := testChallenge("alice", expires)
	require.NoError(t, cache.Put(ctx, first))
	second := testChallenge("alice", expires.Add(time.Minute))
	second.Message = "second"
	require.NoError(t, cache.Put(ctx, second))

	got, err := cache.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Message)

	// callers cannot alter the cached copy
	got.Message = "tampered"
	again, err := cache.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "second", again.Message)
}

func TestChallengeCacheConcurrentReaders(t *testing.T) {
	durable := NewMemoryStore()
	ctx := context.Background()
	expires := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)
	require.NoError(t, NewChallengeCache(durable).Put(ctx, testChallenge("alice", expires)))

	cache := NewChallengeCache(durable)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.Get(ctx, "alice")
			if assert.NoError(t, err) {
				assert.Equal(t, "msg alice", got.Message)
			}
		}()
	}
	wg.Wait()
}

func TestChallengeCachePurgeExpired(t *testing.T) {
	cache := NewChallengeCache(NewMemoryStore())
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Put(ctx, testChallenge("old", now.Add(-time.Minute))))
	require.NoError(t, cache.Put(ctx, testChallenge("edge", now)))
	require.NoError(t, cache.Put(ctx, testChallenge("fresh", now.Add(time.Minute))))

	removed, err := cache.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	all, err := cache.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "edge", all[0].SubjectID)
	assert.Equal(t, "fresh", all[1].SubjectID)
}
