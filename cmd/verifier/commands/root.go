package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Madhoneybees/discord-nft-verifier/adapters/chain"
	"github.com/Madhoneybees/discord-nft-verifier/adapters/discord"
	"github.com/Madhoneybees/discord-nft-verifier/adapters/events"
	"github.com/Madhoneybees/discord-nft-verifier/adapters/store"
	"github.com/Madhoneybees/discord-nft-verifier/adapters/tokenizer"
	"github.com/Madhoneybees/discord-nft-verifier/internal/config"
	"github.com/Madhoneybees/discord-nft-verifier/internal/log"
	"github.com/Madhoneybees/discord-nft-verifier/service"
)

var (
	env    *config.Env
	logger log.Logger
)

var RootCmd = &cobra.Command{
	Use:          "verifier",
	Short:        "NFT wallet verification and tier roles for Discord",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		env, err = config.LoadEnv()
		if err != nil {
			return err
		}
		logger, err = log.NewDefaultLogger(env.LogFormat, env.LogLevel)
		return err
	},
}

// base is what every command needs: settings and the document store.
type base struct {
	settings   *config.Live
	redis      *redis.Client
	store      *store.RedisStore
	challenges *store.ChallengeCache
	clock      clock.Clock
}

func openBase(ctx context.Context) (*base, error) {
	settings, err := config.NewLive(env.SettingsFile)
	if err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(env.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	docs := store.NewRedisStore(client)
	if err := docs.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}

	return &base{
		settings:   settings,
		redis:      client,
		store:      docs,
		challenges: store.NewChallengeCache(docs),
		clock:      clock.New(),
	}, nil
}

func (b *base) Close() error {
	return b.redis.Close()
}

// engine adds the chain, the community platform and the event stream.
type engine struct {
	*base
	metrics    *service.Metrics
	events     *events.WatermillPublisher
	reconciler *service.Reconciler
	runner     *service.BatchRunner
}

func openEngine(ctx context.Context, b *base) (*engine, error) {
	s := b.settings.Settings()

	rpc, err := ethclient.DialContext(ctx, env.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	balances, err := chain.NewTokenBalanceSource(rpc, s.Collection.ContractAddress, s.Collection.Decimals, float64(env.RPCRateLimit))
	if err != nil {
		return nil, err
	}

	community, err := discord.Dial(env.DiscordToken)
	if err != nil {
		return nil, err
	}
	if err := community.Ready(ctx); err != nil {
		return nil, err
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: b.redis,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}
	eventPub := events.NewWatermillPublisher(publisher, "verifier.")

	metrics := service.PrometheusMetrics(env.MetricsPrefix)
	reconciler := service.NewReconciler(b.settings, community, b.store, eventPub, b.clock, logger, metrics)
	runner := service.NewBatchRunner(
		b.settings, b.store, balances, reconciler,
		service.ClockPacer{Clock: b.clock}, eventPub, b.clock, logger, metrics,
	)

	return &engine{
		base:       b,
		metrics:    metrics,
		events:     eventPub,
		reconciler: reconciler,
		runner:     runner,
	}, nil
}

func (e *engine) Close() error {
	if err := e.events.Close(); err != nil {
		logger.Error("failed to close publisher", "err", err)
	}
	return e.base.Close()
}

// signingKey loads SIGNING_KEY. Commands that hand tokens to other
// processes must not run with a generated key.
func signingKey(allowEphemeral bool) (*tokenizer.JWTTokenizer, error) {
	key, ephemeral, err := tokenizer.ParseSigningKey(env.SigningKey)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		if !allowEphemeral {
			return nil, errors.New("VERIFIER_SIGNING_KEY is not set")
		}
		logger.Info("no signing key configured, tokens will not survive a restart")
	}
	return tokenizer.NewJWTTokenizer(key, tokenizer.DefaultAccessTTL, clock.New()), nil
}
