package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/keylock"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

// ChallengeCache is the two-tier challenge store: a volatile map in front
// of the durable document store. Reads go through to the durable copy on a
// miss and refill the map; every write lands in both tiers, durable first.
// The durable copy is the source of truth after a restart.
type ChallengeCache struct {
	durable    ports.DocumentStore
	collection string

	mu       sync.RWMutex
	volatile map[string]*core.Challenge

	keys *keylock.Map
}

// NewChallengeCache creates a cache backed by the pending_verifications
// collection of durable.
func NewChallengeCache(durable ports.DocumentStore) *ChallengeCache {
	return &ChallengeCache{
		durable:    durable,
		collection: core.CollectionPendingVerifications,
		volatile:   make(map[string]*core.Challenge),
		keys:       keylock.New(),
	}
}

var _ ports.ChallengeStore = (*ChallengeCache)(nil)

// Put stores a challenge, replacing any prior one for the same subject.
func (c *ChallengeCache) Put(ctx context.Context, challenge *core.Challenge) error {
	unlock := c.keys.Lock(challenge.SubjectID)
	defer unlock()

	if err := c.durable.Set(ctx, c.collection, challenge.SubjectID, challenge, false); err != nil {
		return fmt.Errorf("failed to persist challenge: %w", err)
	}

	stored := *challenge
	c.mu.Lock()
	c.volatile[challenge.SubjectID] = &stored
	c.mu.Unlock()

	return nil
}

// Get returns the subject's challenge, or core.ErrNotFound.
func (c *ChallengeCache) Get(ctx context.Context, subjectID string) (*core.Challenge, error) {
	c.mu.RLock()
	cached, ok := c.volatile[subjectID]
	c.mu.RUnlock()
	if ok {
		found := *cached
		return &found, nil
	}

	unlock := c.keys.Lock(subjectID)
	defer unlock()

	// Another reader may have filled the entry while we waited.
	c.mu.RLock()
	cached, ok = c.volatile[subjectID]
	c.mu.RUnlock()
	if ok {
		found := *cached
		return &found, nil
	}

	var challenge core.Challenge
	if err := c.durable.Get(ctx, c.collection, subjectID, &challenge); err != nil {
		return nil, err
	}
	challenge.SubjectID = subjectID

	stored := challenge
	c.mu.Lock()
	c.volatile[subjectID] = &stored
	c.mu.Unlock()

	return &challenge, nil
}

// Delete removes the subject's challenge from both tiers.
func (c *ChallengeCache) Delete(ctx context.Context, subjectID string) error {
	unlock := c.keys.Lock(subjectID)
	defer unlock()

	c.mu.Lock()
	delete(c.volatile, subjectID)
	c.mu.Unlock()

	if err := c.durable.Delete(ctx, c.collection, subjectID); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

// All returns every durable pending challenge.
func (c *ChallengeCache) All(ctx context.Context) ([]*core.Challenge, error) {
	docs, err := c.durable.GetAll(ctx, c.collection)
	if err != nil {
		return nil, err
	}

	challenges := make([]*core.Challenge, 0, len(docs))
	for _, doc := range docs {
		var ch core.Challenge
		if err := doc.Decode(&ch); err != nil {
			return nil, fmt.Errorf("failed to decode challenge %s: %w", doc.Key, err)
		}
		ch.SubjectID = doc.Key
		challenges = append(challenges, &ch)
	}
	return challenges, nil
}

// PurgeExpired deletes every challenge that expired before now and returns
// how many were removed.
func (c *ChallengeCache) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	challenges, err := c.All(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	removed := 0
	for _, ch := range challenges {
		if !ch.Expired(now) {
			continue
		}
		if err := c.Delete(ctx, ch.SubjectID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}
