package ports

import (
	"context"
	"encoding/json"

	"github.com/Madhoneybees/discord-nft-verifier/core"
)

// Document is a raw stored record together with its key.
type Document struct {
	Key  string
	Data json.RawMessage
}

// Decode unmarshals the document body into dst.
func (d Document) Decode(dst any) error {
	return json.Unmarshal(d.Data, dst)
}

// DocumentStore is the system of record. Writes to a single key are atomic;
// concurrent writes to the same key are last-write-wins.
type DocumentStore interface {
	// Get decodes the document into dst or returns core.ErrNotFound.
	Get(ctx context.Context, collection, key string, dst any) error
	GetAll(ctx context.Context, collection string) ([]Document, error)
	// Set creates or overwrites a document. With merge, top-level fields of
	// doc are merged into an existing document instead.
	Set(ctx context.Context, collection, key string, doc any, merge bool) error
	// Update merges fields into an existing document, core.ErrNotFound
	// otherwise.
	Update(ctx context.Context, collection, key string, fields map[string]any) error
	Delete(ctx context.Context, collection, key string) error
}

// ChallengeStore holds at most one pending challenge per subject.
type ChallengeStore interface {
	Put(ctx context.Context, challenge *core.Challenge) error
	// Get returns core.ErrNotFound when the subject has no challenge.
	Get(ctx context.Context, subjectID string) (*core.Challenge, error)
	Delete(ctx context.Context, subjectID string) error
}
