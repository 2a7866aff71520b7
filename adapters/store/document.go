package store

import (
	"encoding/json"
	"fmt"
)

// fields is the stored form of a document: top-level field name to raw
// JSON value, which keeps merges field-granular.
type fields map[string]json.RawMessage

func toFields(doc any) (fields, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("document must encode to a JSON object: %w", err)
	}
	if f == nil {
		f = fields{}
	}
	return f, nil
}

func (f fields) merge(other fields) fields {
	out := make(fields, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (f fields) encode() (json.RawMessage, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return raw, nil
}
