package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/config"
	"github.com/Madhoneybees/discord-nft-verifier/internal/log"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

// TierSource supplies the settings in force for one reconciliation pass.
// *config.Live implements it.
type TierSource interface {
	Settings() *config.Settings
}

// Reconciler brings a subject's tier roles in line with an asset count in
// every configured community.
type Reconciler struct {
	settings  TierSource
	community ports.CommunityAPI
	store     ports.DocumentStore
	eventPub  ports.EventPublisher

	clock   clock.Clock
	logger  log.Logger
	metrics *Metrics
}

// NewReconciler creates a Reconciler. eventPub may be nil.
func NewReconciler(
	settings TierSource,
	community ports.CommunityAPI,
	store ports.DocumentStore,
	eventPub ports.EventPublisher,
	clk clock.Clock,
	logger log.Logger,
	metrics *Metrics,
) *Reconciler {
	return &Reconciler{
		settings:  settings,
		community: community,
		store:     store,
		eventPub:  eventPub,
		clock:     clk,
		logger:    logger,
		metrics:   metrics,
	}
}

// Reconcile computes the target tier for assetCount and applies the role
// diff in each community, in configuration order. Skipped or failed role
// mutations are reported in the result and never returned as an error;
// only a failure to persist the outcome is.
func (r *Reconciler) Reconcile(ctx context.Context, subjectID string, assetCount uint64) (*core.ReconcileReport, error) {
	return r.ReconcileWith(ctx, r.settings.Settings(), subjectID, assetCount)
}

// ReconcileWith is Reconcile against a fixed settings snapshot, so that a
// batch run applies one tier table to every subject.
func (r *Reconciler) ReconcileWith(ctx context.Context, settings *config.Settings, subjectID string, assetCount uint64) (*core.ReconcileReport, error) {
	now := r.clock.Now()

	report := &core.ReconcileReport{
		SubjectID:  subjectID,
		AssetCount: assetCount,
	}
	states := make(map[string]core.CommunityState)

	for _, communityID := range settings.CommunityIDs() {
		tiers := settings.TiersFor(communityID)
		target := core.TierFor(tiers, assetCount)

		outcome := r.reconcileCommunity(ctx, settings, communityID, subjectID, tiers, target)
		report.Communities = append(report.Communities, outcome)

		if outcome.Err != nil || outcome.NotMember {
			continue
		}
		state := core.CommunityState{AssetCount: assetCount, LastUpdated: now}
		if target != nil {
			state.RoleID = target.RoleID
			state.RoleName = target.Name
			// last community with a target wins the summary
			report.Target = target
		}
		states[communityID] = state
	}

	if err := r.persist(ctx, report, states, now); err != nil {
		return report, err
	}

	if report.Mutations() > 0 {
		r.publishReconciled(ctx, report)
	}
	return report, nil
}

func (r *Reconciler) reconcileCommunity(
	ctx context.Context,
	settings *config.Settings,
	communityID, subjectID string,
	tiers []core.Tier,
	target *core.Tier,
) core.CommunityOutcome {
	outcome := core.CommunityOutcome{CommunityID: communityID, Target: target}
	logger := r.logger.With("community", communityID, "subject", subjectID)

	callCtx, cancel := r.callContext(ctx, settings)
	member, err := r.community.Member(callCtx, communityID, subjectID)
	cancel()
	if errors.Is(err, core.ErrNotFound) {
		outcome.NotMember = true
		logger.Debug("subject is not a member")
		return outcome
	}
	if err != nil {
		outcome.Err = fmt.Errorf("failed to fetch member: %w", err)
		logger.Error("reconcile skipped", "err", err)
		return outcome
	}

	tierRoles := core.RoleIDs(tiers)
	var current []string
	for _, roleID := range member.RoleIDs {
		if _, ok := tierRoles[roleID]; ok {
			current = append(current, roleID)
		}
	}

	if alreadyCorrect(current, target) {
		outcome.AlreadyCorrect = true
		return outcome
	}

	guard, err := r.preflight(ctx, settings, communityID)
	if err != nil {
		outcome.Err = err
		logger.Error("reconcile skipped", "err", err)
		return outcome
	}

	for _, roleID := range current {
		if target != nil && roleID == target.RoleID {
			continue
		}
		if r.mutate(ctx, settings, guard, &outcome, member, roleID, core.OpRemove, logger) {
			outcome.Removed = append(outcome.Removed, roleID)
		}
	}

	if target != nil && !member.HasRole(target.RoleID) {
		if r.mutate(ctx, settings, guard, &outcome, member, target.RoleID, core.OpAdd, logger) {
			outcome.Added = append(outcome.Added, target.RoleID)
		}
	}

	return outcome
}

func alreadyCorrect(current []string, target *core.Tier) bool {
	if target == nil {
		return len(current) == 0
	}
	return len(current) == 1 && current[0] == target.RoleID
}

// roleGuard is the bot's capability in one community, looked up once per
// reconciliation.
type roleGuard struct {
	communityID   string
	canManage     bool
	botHighestPos int
}

func (r *Reconciler) preflight(ctx context.Context, settings *config.Settings, communityID string) (*roleGuard, error) {
	callCtx, cancel := r.callContext(ctx, settings)
	defer cancel()

	canManage, err := r.community.HasManageRoles(callCtx, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to check permissions: %w", err)
	}
	guard := &roleGuard{communityID: communityID, canManage: canManage}
	if !canManage {
		return guard, nil
	}

	guard.botHighestPos, err = r.community.BotHighestRolePosition(callCtx, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot role position: %w", err)
	}
	return guard, nil
}

// mutate applies one role change after checking it can succeed. It reports
// whether the change was applied; otherwise a skip is recorded.
func (r *Reconciler) mutate(
	ctx context.Context,
	settings *config.Settings,
	guard *roleGuard,
	outcome *core.CommunityOutcome,
	member *ports.Member,
	roleID string,
	op core.MutationOp,
	logger log.Logger,
) bool {
	skip := func(reason core.SkipReason, err error) bool {
		outcome.Skipped = append(outcome.Skipped, core.RoleSkip{RoleID: roleID, Op: op, Reason: reason, Err: err})
		r.metrics.RoleSkips.With("op", string(op), "reason", string(reason)).Add(1)
		logger.Error("role change skipped", "role", roleID, "op", op, "reason", reason, "err", err)
		return false
	}

	if !guard.canManage {
		return skip(core.SkipMissingPermission, core.ErrMissingPermission)
	}

	callCtx, cancel := r.callContext(ctx, settings)
	defer cancel()

	pos, ok, err := r.community.RolePosition(callCtx, guard.communityID, roleID)
	if err != nil {
		return skip(core.SkipMutationFailed, fmt.Errorf("%v: %w", err, core.ErrRoleMutation))
	}
	if !ok {
		return skip(core.SkipRoleNotFound, core.ErrRoleNotFound)
	}
	if pos >= guard.botHighestPos {
		return skip(core.SkipRoleHierarchy, core.ErrRoleHierarchy)
	}

	switch op {
	case core.OpAdd:
		err = r.community.AddRole(callCtx, member, roleID)
	case core.OpRemove:
		err = r.community.RemoveRole(callCtx, member, roleID)
	}
	if err != nil {
		return skip(core.SkipMutationFailed, fmt.Errorf("%v: %w", err, core.ErrRoleMutation))
	}

	r.metrics.RoleMutations.With("op", string(op)).Add(1)
	logger.Info("role updated", "role", roleID, "op", op)
	return true
}

func (r *Reconciler) callContext(ctx context.Context, settings *config.Settings) (context.Context, context.CancelFunc) {
	if settings.Verification.RoleTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, settings.Verification.RoleTimeout)
}

// persist merges per-community state into the account. Summary fields are
// only written when some community produced a target tier.
func (r *Reconciler) persist(ctx context.Context, report *core.ReconcileReport, states map[string]core.CommunityState, now time.Time) error {
	if len(states) == 0 && report.Target == nil {
		return nil
	}

	var account core.VerifiedAccount
	err := r.store.Get(ctx, core.CollectionUsers, report.SubjectID, &account)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("failed to load account: %w", err)
	}

	communities := account.Communities
	if communities == nil {
		communities = make(map[string]core.CommunityState, len(states))
	}
	for id, state := range states {
		communities[id] = state
	}

	fields := map[string]any{
		core.FieldCommunities: communities,
	}
	if t := report.Target; t != nil {
		fields[core.FieldRoleID] = t.RoleID
		fields[core.FieldRoleName] = t.Name
		fields[core.FieldRoleDescription] = t.Description
		fields[core.FieldAssetCount] = report.AssetCount
		fields[core.FieldLastUpdated] = now
	}

	if err := r.store.Set(ctx, core.CollectionUsers, report.SubjectID, fields, true); err != nil {
		return fmt.Errorf("failed to save reconciliation: %w", err)
	}
	return nil
}

func (r *Reconciler) publishReconciled(ctx context.Context, report *core.ReconcileReport) {
	if r.eventPub == nil {
		return
	}
	event := ports.RoleReconciled{
		SubjectID:  report.SubjectID,
		AssetCount: report.AssetCount,
	}
	if report.Target != nil {
		event.RoleID = report.Target.RoleID
		event.RoleName = report.Target.Name
	}
	for _, c := range report.Communities {
		event.Added = append(event.Added, c.Added...)
		event.Removed = append(event.Removed, c.Removed...)
	}
	if err := r.eventPub.Publish(ctx, ports.TopicRoleReconciled, event); err != nil {
		r.logger.Error("failed to publish event", "topic", ports.TopicRoleReconciled, "err", err)
	}
}
