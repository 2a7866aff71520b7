package service

import (
	"context"
	"time"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/log"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

// Completion is the outcome of a successful verification.
type Completion struct {
	Wallet      string
	AssetCount  uint64
	Tier        *core.Tier
	AccessToken string
	ExpiresAt   time.Time
	// Pending is set when the wallet was verified but roles could not be
	// assigned yet; the next batch run picks the subject up.
	Pending bool
}

// Onboarding runs the member facing flow: verify the signature, then assign
// roles from a live balance and hand out an access token.
type Onboarding struct {
	verifier  *VerificationService
	runner    *BatchRunner
	tokenizer ports.Tokenizer
	logger    log.Logger
}

func NewOnboarding(verifier *VerificationService, runner *BatchRunner, tokenizer ports.Tokenizer, logger log.Logger) *Onboarding {
	return &Onboarding{
		verifier:  verifier,
		runner:    runner,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// VerifyAndReconcile verifies signature for subjectID. Errors from the
// verification step are returned as is; a failure after the wallet is bound
// only marks the completion pending.
func (o *Onboarding) VerifyAndReconcile(ctx context.Context, subjectID, signature string) (*Completion, error) {
	wallet, err := o.verifier.VerifySignature(ctx, subjectID, signature)
	if err != nil {
		return nil, err
	}

	completion := &Completion{Wallet: wallet}

	report, err := o.runner.VerifyUser(ctx, subjectID)
	if err != nil {
		o.logger.Error("role assignment deferred to next run", "subject", subjectID, "err", err)
		completion.Pending = true
	} else {
		completion.AssetCount = report.AssetCount
		completion.Tier = report.Target
	}

	token, expiresAt, err := o.tokenizer.SubjectToAccessToken(subjectID, wallet)
	if err != nil {
		return nil, err
	}
	completion.AccessToken = token
	completion.ExpiresAt = expiresAt

	return completion, nil
}
