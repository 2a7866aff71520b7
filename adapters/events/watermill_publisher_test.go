package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

func TestPublishDeliversJSON(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, "verifier."+ports.TopicWalletVerified)
	require.NoError(t, err)

	publisher := NewWatermillPublisher(pubSub, "verifier.")
	verifiedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, publisher.Publish(ctx, ports.TopicWalletVerified, ports.WalletVerified{
		SubjectID:  "alice",
		Wallet:     "0xabc",
		VerifiedAt: verifiedAt,
	}))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, ports.TopicWalletVerified, msg.Metadata.Get(MetadataTopic))

		var event ports.WalletVerified
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, "alice", event.SubjectID)
		assert.Equal(t, "0xabc", event.Wallet)
		assert.True(t, event.VerifiedAt.Equal(verifiedAt))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestPublishUnencodable(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	publisher := NewWatermillPublisher(pubSub, "")
	err := publisher.Publish(context.Background(), "t", make(chan int))
	assert.Error(t, err)
}
