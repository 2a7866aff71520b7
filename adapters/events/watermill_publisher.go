package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

// MetadataTopic carries the logical topic, since some transports prefix or
// rewrite the stream name.
const MetadataTopic = "topic"

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	prefix    string
}

// NewWatermillPublisher creates a new Watermill publisher. Every topic is
// prefixed with prefix on the wire.
func NewWatermillPublisher(publisher message.Publisher, prefix string) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		prefix:    prefix,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// Publish encodes event as JSON and publishes it on topic
func (p *WatermillPublisher) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataTopic, topic)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.prefix+topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the underlying publisher
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}
