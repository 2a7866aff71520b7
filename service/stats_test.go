package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Madhoneybees/discord-nft-verifier/adapters/store"
	"github.com/Madhoneybees/discord-nft-verifier/core"
)

func TestStats(t *testing.T) {
	ctx := context.Background()
	mock := newMockClock()
	s := store.NewMemoryStore()
	cache := store.NewChallengeCache(s)

	accounts := map[string]core.VerifiedAccount{
		"a": {WalletAddress: wallet1, Verified: true, AssetCount: 3},
		"b": {WalletAddress: wallet2, Verified: true, AssetCount: 12},
		"c": {WalletAddress: wallet3, Verified: true},
		"d": {},
	}
	for id, account := range accounts {
		require.NoError(t, s.Set(ctx, core.CollectionUsers, id, account, false))
	}
	require.NoError(t, cache.Put(ctx, &core.Challenge{SubjectID: "e", ExpiresAt: mock.Now().Add(time.Minute)}))
	require.NoError(t, cache.Put(ctx, &core.Challenge{SubjectID: "f", ExpiresAt: mock.Now().Add(-time.Minute)}))

	stats, err := NewStatsReporter(testSettings(), s, mock).Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Accounts)
	assert.Equal(t, 3, stats.Verified)
	assert.Equal(t, 3, stats.WithWallet)
	assert.Equal(t, map[string]int{"Holder": 1, "Whale": 1}, stats.ByTier)
	assert.Equal(t, 1, stats.NoTier)
	assert.Equal(t, 1, stats.PendingChallenges)
	assert.Equal(t, 1, stats.ExpiredChallenges)
}
