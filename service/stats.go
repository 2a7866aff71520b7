package service

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

// Stats is a snapshot of the verification state.
type Stats struct {
	Accounts          int            `json:"accounts"`
	Verified          int            `json:"verified"`
	WithWallet        int            `json:"with_wallet"`
	PendingChallenges int            `json:"pending_challenges"`
	ExpiredChallenges int            `json:"expired_challenges"`
	ByTier            map[string]int `json:"by_tier"`
	NoTier            int            `json:"no_tier"`
}

// StatsReporter summarizes the stored accounts against the current tiers.
type StatsReporter struct {
	settings TierSource
	store    ports.DocumentStore
	clock    clock.Clock
}

func NewStatsReporter(settings TierSource, store ports.DocumentStore, clk clock.Clock) *StatsReporter {
	return &StatsReporter{settings: settings, store: store, clock: clk}
}

// Stats reads every account and pending challenge.
func (r *StatsReporter) Stats(ctx context.Context) (*Stats, error) {
	tiers := r.settings.Settings().Tiers
	stats := &Stats{ByTier: make(map[string]int, len(tiers))}
	for _, t := range tiers {
		stats.ByTier[t.Name] = 0
	}

	docs, err := r.store.GetAll(ctx, core.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	for _, doc := range docs {
		var account core.VerifiedAccount
		if err := doc.Decode(&account); err != nil {
			return nil, fmt.Errorf("failed to decode account %s: %w", doc.Key, err)
		}
		stats.Accounts++
		if account.Verified {
			stats.Verified++
		}
		if !account.HasWallet() {
			continue
		}
		stats.WithWallet++
		if tier := core.TierFor(tiers, account.AssetCount); tier != nil {
			stats.ByTier[tier.Name]++
		} else {
			stats.NoTier++
		}
	}

	pending, err := r.store.GetAll(ctx, core.CollectionPendingVerifications)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	now := r.clock.Now()
	for _, doc := range pending {
		var ch core.Challenge
		if err := doc.Decode(&ch); err != nil {
			return nil, fmt.Errorf("failed to decode challenge %s: %w", doc.Key, err)
		}
		if ch.Expired(now) {
			stats.ExpiredChallenges++
		} else {
			stats.PendingChallenges++
		}
	}

	return stats, nil
}
