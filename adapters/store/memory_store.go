package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

// MemoryStore is an in-memory implementation of the DocumentStore
// interface. It is used by tests and for single-process dry runs.
type MemoryStore struct {
	collections map[string]map[string]fields
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]fields),
	}
}

var _ ports.DocumentStore = (*MemoryStore)(nil)

// Get decodes a document into dst
func (s *MemoryStore) Get(ctx context.Context, collection, key string, dst any) error {
	s.mu.RLock()
	doc, ok := s.collections[collection][key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}

	raw, err := doc.encode()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// GetAll returns every document of a collection ordered by key
func (s *MemoryStore) GetAll(ctx context.Context, collection string) ([]ports.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]ports.Document, 0, len(s.collections[collection]))
	for key, doc := range s.collections[collection] {
		raw, err := doc.encode()
		if err != nil {
			return nil, err
		}
		docs = append(docs, ports.Document{Key: key, Data: raw})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })

	return docs, nil
}

// Set creates, overwrites or merges a document
func (s *MemoryStore) Set(ctx context.Context, collection, key string, doc any, merge bool) error {
	f, err := toFields(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]fields)
		s.collections[collection] = coll
	}
	if existing, ok := coll[key]; ok && merge {
		f = existing.merge(f)
	}
	coll[key] = f

	return nil
}

// Update merges fields into an existing document
func (s *MemoryStore) Update(ctx context.Context, collection, key string, update map[string]any) error {
	f, err := toFields(update)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][key]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}
	s.collections[collection][key] = existing.merge(f)

	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], key)
	return nil
}

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections = make(map[string]map[string]fields)
}
