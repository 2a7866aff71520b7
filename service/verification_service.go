package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/eth"
	"github.com/Madhoneybees/discord-nft-verifier/internal/keylock"
	"github.com/Madhoneybees/discord-nft-verifier/internal/log"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

const nonceBytes = 16

// VerificationService issues wallet ownership challenges and checks the
// signatures members send back.
type VerificationService struct {
	challenges ports.ChallengeStore
	store      ports.DocumentStore
	limiter    *RateLimiter
	eventPub   ports.EventPublisher

	clock        clock.Clock
	logger       log.Logger
	metrics      *Metrics
	challengeTTL time.Duration

	// serializes verify against a concurrent re-issue for the same subject
	subjects *keylock.Map
}

// VerificationOption sets an optional parameter on the VerificationService.
type VerificationOption func(*VerificationService)

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) VerificationOption {
	return func(s *VerificationService) { s.clock = clk }
}

func WithLogger(logger log.Logger) VerificationOption {
	return func(s *VerificationService) { s.logger = logger }
}

func WithMetrics(metrics *Metrics) VerificationOption {
	return func(s *VerificationService) { s.metrics = metrics }
}

// WithChallengeTTL sets how long a member has to answer a challenge.
func WithChallengeTTL(ttl time.Duration) VerificationOption {
	return func(s *VerificationService) { s.challengeTTL = ttl }
}

// NewVerificationService creates a new verification service. eventPub may be
// nil.
func NewVerificationService(
	challenges ports.ChallengeStore,
	store ports.DocumentStore,
	limiter *RateLimiter,
	eventPub ports.EventPublisher,
	options ...VerificationOption,
) *VerificationService {
	s := &VerificationService{
		challenges:   challenges,
		store:        store,
		limiter:      limiter,
		eventPub:     eventPub,
		clock:        clock.New(),
		logger:       log.NewNopLogger(),
		metrics:      NopMetrics(),
		challengeTTL: 10 * time.Minute,
		subjects:     keylock.New(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// IssueChallenge validates the claimed wallet, charges one attempt against
// the subject's rate limit and stores a fresh challenge, replacing any
// previous one. The returned challenge carries the exact message to sign.
func (s *VerificationService) IssueChallenge(ctx context.Context, subject core.Subject, community, wallet string) (*core.Challenge, error) {
	checksummed, err := eth.ChecksumAddress(wallet)
	if err != nil {
		s.metrics.Challenges.With("outcome", "invalid").Add(1)
		return nil, fmt.Errorf("%q: %w", wallet, core.ErrInvalidAddress)
	}

	if !s.limiter.Allow(subject.ID) {
		s.metrics.Challenges.With("outcome", "rate_limited").Add(1)
		return nil, core.ErrRateLimited
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.clock.Now()
	msg := core.ChallengeMessage{
		DisplayName: subject.DisplayName,
		SubjectID:   subject.ID,
		Wallet:      checksummed,
		Community:   community,
		Nonce:       hex.EncodeToString(nonce),
		Timestamp:   now,
	}
	challenge := &core.Challenge{
		ID:            uuid.New().String(),
		SubjectID:     subject.ID,
		ClaimedWallet: checksummed,
		Message:       msg.String(),
		Nonce:         msg.Nonce,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.challengeTTL),
	}

	unlock := s.subjects.Lock(subject.ID)
	err = s.challenges.Put(ctx, challenge)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	s.metrics.Challenges.With("outcome", "issued").Add(1)
	s.logger.Info("challenge issued", "subject", subject.ID, "wallet", checksummed, "expires", challenge.ExpiresAt)
	s.publish(ctx, ports.TopicChallengeIssued, ports.ChallengeIssued{
		ChallengeID: challenge.ID,
		SubjectID:   subject.ID,
		Wallet:      checksummed,
		ExpiresAt:   challenge.ExpiresAt,
	})

	return challenge, nil
}

// VerifySignature checks signature against the subject's pending challenge.
// On success the challenge is consumed, the wallet is bound to the subject
// and its checksummed address is returned. A mismatching signature leaves
// the challenge in place so the member can retry before it expires.
func (s *VerificationService) VerifySignature(ctx context.Context, subjectID, signature string) (string, error) {
	unlock := s.subjects.Lock(subjectID)
	defer unlock()

	wallet, err := s.verifyLocked(ctx, subjectID, signature)
	if err != nil {
		s.metrics.Verifications.With("outcome", outcomeLabel(err)).Add(1)
		return "", err
	}
	s.metrics.Verifications.With("outcome", "verified").Add(1)
	return wallet, nil
}

func (s *VerificationService) verifyLocked(ctx context.Context, subjectID, signature string) (string, error) {
	challenge, err := s.challenges.Get(ctx, subjectID)
	if errors.Is(err, core.ErrNotFound) {
		return "", core.ErrNoChallenge
	}
	if err != nil {
		return "", fmt.Errorf("failed to load challenge: %w", err)
	}

	now := s.clock.Now()
	if challenge.Expired(now) {
		if err := s.challenges.Delete(ctx, subjectID); err != nil {
			s.logger.Error("failed to drop expired challenge", "subject", subjectID, "err", err)
		}
		return "", core.ErrChallengeExpired
	}

	recovered, err := eth.RecoverPersonal(challenge.Message, signature)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, core.ErrMalformedSignature)
	}
	if !eth.SameAddress(recovered.Hex(), challenge.ClaimedWallet) {
		s.logger.Debug("signature from another wallet",
			"subject", subjectID, "claimed", challenge.ClaimedWallet, "recovered", recovered.Hex())
		return "", core.ErrAddressMismatch
	}

	wallet := recovered.Hex()
	if err := s.store.Set(ctx, core.CollectionUsers, subjectID, map[string]any{
		core.FieldWalletAddress:      wallet,
		core.FieldVerified:           true,
		core.FieldVerificationDate:   now,
		core.FieldVerificationMethod: core.VerificationMethodSignature,
	}, true); err != nil {
		return "", fmt.Errorf("failed to save verified account: %w", err)
	}

	if err := s.challenges.Delete(ctx, subjectID); err != nil {
		return "", err
	}

	s.logger.Info("wallet verified", "subject", subjectID, "wallet", wallet)
	s.publish(ctx, ports.TopicWalletVerified, ports.WalletVerified{
		SubjectID:  subjectID,
		Wallet:     wallet,
		VerifiedAt: now,
	})

	return wallet, nil
}

// Account returns the subject's stored account or core.ErrNotFound.
func (s *VerificationService) Account(ctx context.Context, subjectID string) (*core.VerifiedAccount, error) {
	var account core.VerifiedAccount
	if err := s.store.Get(ctx, core.CollectionUsers, subjectID, &account); err != nil {
		return nil, err
	}
	account.SubjectID = subjectID
	return &account, nil
}

// ResetSubject deletes the subject's account, pending challenge and rate
// limit history.
func (s *VerificationService) ResetSubject(ctx context.Context, subjectID string) error {
	unlock := s.subjects.Lock(subjectID)
	defer unlock()

	s.limiter.Reset(subjectID)
	if err := s.challenges.Delete(ctx, subjectID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, core.CollectionUsers, subjectID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	s.logger.Info("subject reset", "subject", subjectID)
	return nil
}

func (s *VerificationService) publish(ctx context.Context, topic string, event any) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.Publish(ctx, topic, event); err != nil {
		s.logger.Error("failed to publish event", "topic", topic, "err", err)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, core.ErrNoChallenge):
		return "no_challenge"
	case errors.Is(err, core.ErrChallengeExpired):
		return "expired"
	case errors.Is(err, core.ErrMalformedSignature):
		return "malformed"
	case errors.Is(err, core.ErrAddressMismatch):
		return "mismatch"
	default:
		return "error"
	}
}
