package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// RedisStore is a Redis implementation of the DocumentStore interface.
// Each document is a JSON string at <prefix><collection>:<key>; the keys of
// a collection are tracked in the set <prefix><collection>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "verifier:",
	}
}

var _ ports.DocumentStore = (*RedisStore)(nil)

func (s *RedisStore) docKey(collection, key string) string {
	return s.prefix + collection + ":" + key
}

func (s *RedisStore) indexKey(collection string) string {
	return s.prefix + collection
}

// Get decodes a document into dst
func (s *RedisStore) Get(ctx context.Context, collection, key string, dst any) error {
	raw, err := s.client.Get(ctx, s.docKey(collection, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
		}
		return fmt.Errorf("failed to get document: %w", err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
	}
	return nil
}

// GetAll returns every document of a collection ordered by key
func (s *RedisStore) GetAll(ctx context.Context, collection string) ([]ports.Document, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	docKeys := make([]string, len(keys))
	for i, k := range keys {
		docKeys[i] = s.docKey(collection, k)
	}

	values, err := s.client.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", collection, err)
	}

	docs := make([]ports.Document, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Index entry outlived its document.
			continue
		}
		docs = append(docs, ports.Document{Key: keys[i], Data: json.RawMessage(str)})
	}

	return docs, nil
}

// Set creates, overwrites or merges a document
func (s *RedisStore) Set(ctx context.Context, collection, key string, doc any, merge bool) error {
	f, err := toFields(doc)
	if err != nil {
		return err
	}
	return s.write(ctx, collection, key, f, merge, false)
}

// Update merges fields into an existing document
func (s *RedisStore) Update(ctx context.Context, collection, key string, update map[string]any) error {
	f, err := toFields(update)
	if err != nil {
		return err
	}
	return s.write(ctx, collection, key, f, true, true)
}

// write stores f at key. Merging reads the current document inside a
// WATCH transaction so concurrent writers to the same key cannot lose
// fields.
func (s *RedisStore) write(ctx context.Context, collection, key string, f fields, merge, mustExist bool) error {
	docKey := s.docKey(collection, key)

	txf := func(tx *redis.Tx) error {
		next := f
		if merge {
			raw, err := tx.Get(ctx, docKey).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
				if mustExist {
					return fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
				}
			case err != nil:
				return err
			default:
				var existing fields
				if err := json.Unmarshal(raw, &existing); err != nil {
					return fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
				}
				next = existing.merge(f)
			}
		}

		encoded, err := next.encode()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey, []byte(encoded), 0)
			pipe.SAdd(ctx, s.indexKey(collection), key)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, docKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return err
			}
			return fmt.Errorf("failed to write document: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to write document %s/%s: too much contention", collection, key)
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(collection, key))
		pipe.SRem(ctx, s.indexKey(collection), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Ping checks that the backing Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
