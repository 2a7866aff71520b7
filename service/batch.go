package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/config"
	"github.com/Madhoneybees/discord-nft-verifier/internal/log"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

// BatchRunner reconciles every subject with a claimed wallet.
type BatchRunner struct {
	settings   TierSource
	store      ports.DocumentStore
	balances   ports.BalanceSource
	reconciler *Reconciler
	pacer      Pacer
	eventPub   ports.EventPublisher

	clock   clock.Clock
	logger  log.Logger
	metrics *Metrics
}

// NewBatchRunner creates a BatchRunner. eventPub may be nil.
func NewBatchRunner(
	settings TierSource,
	store ports.DocumentStore,
	balances ports.BalanceSource,
	reconciler *Reconciler,
	pacer Pacer,
	eventPub ports.EventPublisher,
	clk clock.Clock,
	logger log.Logger,
	metrics *Metrics,
) *BatchRunner {
	return &BatchRunner{
		settings:   settings,
		store:      store,
		balances:   balances,
		reconciler: reconciler,
		pacer:      pacer,
		eventPub:   eventPub,
		clock:      clk,
		logger:     logger,
		metrics:    metrics,
	}
}

type balanceResult struct {
	count uint64
	err   error
}

// RunAll fetches balances in paced batches and reconciles each subject.
// Failing to list accounts fails the run; every per-subject error is
// counted and the run continues.
func (b *BatchRunner) RunAll(ctx context.Context) (*core.ReconciliationResult, error) {
	result := &core.ReconciliationResult{
		RunID:     uuid.New().String(),
		StartedAt: b.clock.Now(),
	}
	logger := b.logger.With("run", result.RunID)
	// one snapshot for the whole run; a reload applies from the next run
	settings := b.settings.Settings()

	docs, err := b.store.GetAll(ctx, core.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	result.Total = len(docs)

	accounts := make([]*core.VerifiedAccount, 0, len(docs))
	for _, doc := range docs {
		var account core.VerifiedAccount
		if err := doc.Decode(&account); err != nil {
			logger.Error("undecodable account", "subject", doc.Key, "err", err)
			b.record(result, core.SubjectOutcome{SubjectID: doc.Key, Error: err.Error()}, "failed")
			continue
		}
		account.SubjectID = doc.Key
		if account.HasWallet() {
			accounts = append(accounts, &account)
		}
	}

	logger.Info("batch run started", "subjects", result.Total, "with_wallet", len(accounts))

	balances, err := b.fetchBalances(ctx, settings, accounts, logger)
	if err != nil {
		return nil, err
	}

	for _, account := range accounts {
		bal := balances[strings.ToLower(account.WalletAddress)]
		outcome, label := b.reconcileAccount(ctx, settings, account, bal)
		b.record(result, outcome, label)
	}

	result.FinishedAt = b.clock.Now()
	b.metrics.BatchDuration.Observe(result.Duration().Seconds())
	logger.Info("batch run finished",
		"processed", result.Processed,
		"successful", result.Successful,
		"unchanged", result.Unchanged,
		"failed", result.Failed,
		"duration", result.Duration())

	if b.eventPub != nil {
		event := ports.BatchCompleted{
			RunID:      result.RunID,
			Processed:  result.Processed,
			Successful: result.Successful,
			Unchanged:  result.Unchanged,
			Failed:     result.Failed,
			Duration:   result.Duration(),
		}
		if err := b.eventPub.Publish(ctx, ports.TopicBatchCompleted, event); err != nil {
			logger.Error("failed to publish event", "topic", ports.TopicBatchCompleted, "err", err)
		}
	}

	return result, nil
}

// fetchBalances looks up each distinct wallet once. Lookups inside a batch
// run concurrently; batches run in order with a pause in between.
func (b *BatchRunner) fetchBalances(ctx context.Context, settings *config.Settings, accounts []*core.VerifiedAccount, logger log.Logger) (map[string]balanceResult, error) {
	var wallets []string
	seen := make(map[string]struct{}, len(accounts))
	for _, account := range accounts {
		key := strings.ToLower(account.WalletAddress)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		wallets = append(wallets, account.WalletAddress)
	}

	verification := settings.Verification
	size := verification.BatchSize
	if size <= 0 {
		size = len(wallets)
	}

	balances := make(map[string]balanceResult, len(wallets))
	for start := 0; start < len(wallets); start += size {
		end := start + size
		if end > len(wallets) {
			end = len(wallets)
		}
		batch := wallets[start:end]

		results := make([]balanceResult, len(batch))
		var g errgroup.Group
		for i, wallet := range batch {
			i, wallet := i, wallet
			g.Go(func() error {
				results[i] = b.fetchBalance(ctx, wallet, verification.BalanceTimeout)
				return nil
			})
		}
		_ = g.Wait()

		for i, wallet := range batch {
			if err := results[i].err; err != nil {
				b.metrics.BalanceErrors.Add(1)
				logger.Error("balance lookup failed, counting as zero", "wallet", wallet, "err", err)
			}
			balances[strings.ToLower(wallet)] = results[i]
		}

		if end < len(wallets) {
			if err := b.pacer.Wait(ctx, verification.BatchDelay); err != nil {
				return nil, fmt.Errorf("batch run interrupted: %w", err)
			}
		}
	}

	return balances, nil
}

func (b *BatchRunner) fetchBalance(ctx context.Context, wallet string, timeout time.Duration) balanceResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	count, err := b.balances.Balance(ctx, wallet)
	if err != nil {
		return balanceResult{err: fmt.Errorf("%s: %v: %w", wallet, err, core.ErrBalanceFetch)}
	}
	return balanceResult{count: count}
}

func (b *BatchRunner) reconcileAccount(ctx context.Context, settings *config.Settings, account *core.VerifiedAccount, bal balanceResult) (core.SubjectOutcome, string) {
	outcome := core.SubjectOutcome{
		SubjectID:    account.SubjectID,
		AssetCount:   bal.count,
		BalanceError: bal.err != nil,
	}

	if _, err := b.reconciler.ReconcileWith(ctx, settings, account.SubjectID, bal.count); err != nil {
		b.logger.Error("reconcile failed", "subject", account.SubjectID, "err", err)
		outcome.Error = err.Error()
		return outcome, "failed"
	}

	now := b.clock.Now()
	fields := map[string]any{core.FieldLastUpdated: now}
	label := "unchanged"
	if bal.count != account.AssetCount {
		fields[core.FieldAssetCount] = bal.count
		label = "successful"
	}
	if err := b.store.Update(ctx, core.CollectionUsers, account.SubjectID, fields); err != nil {
		b.logger.Error("failed to update account", "subject", account.SubjectID, "err", err)
		outcome.Error = err.Error()
		return outcome, "failed"
	}

	outcome.Success = true
	return outcome, label
}

func (b *BatchRunner) record(result *core.ReconciliationResult, outcome core.SubjectOutcome, label string) {
	switch label {
	case "successful":
		result.Successful++
		result.Processed++
	case "unchanged":
		result.Unchanged++
		result.Processed++
	case "failed":
		result.Failed++
		result.Processed++
	}
	result.Subjects = append(result.Subjects, outcome)
	b.metrics.BatchSubjects.With("outcome", label).Add(1)
}

// VerifyUser refreshes a single subject from a live balance lookup. Unlike
// a batch run, a failed lookup is returned to the caller.
func (b *BatchRunner) VerifyUser(ctx context.Context, subjectID string) (*core.ReconcileReport, error) {
	var account core.VerifiedAccount
	if err := b.store.Get(ctx, core.CollectionUsers, subjectID, &account); err != nil {
		return nil, err
	}
	if !account.HasWallet() {
		return nil, fmt.Errorf("subject %s has no wallet: %w", subjectID, core.ErrNotFound)
	}

	settings := b.settings.Settings()
	bal := b.fetchBalance(ctx, account.WalletAddress, settings.Verification.BalanceTimeout)
	if bal.err != nil {
		b.metrics.BalanceErrors.Add(1)
		return nil, bal.err
	}

	report, err := b.reconciler.ReconcileWith(ctx, settings, subjectID, bal.count)
	if err != nil {
		return nil, err
	}

	if err := b.store.Update(ctx, core.CollectionUsers, subjectID, map[string]any{
		core.FieldAssetCount:  bal.count,
		core.FieldLastUpdated: b.clock.Now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return report, nil
}
