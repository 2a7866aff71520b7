package core

import "time"

// MutationOp is a role change against the community platform.
type MutationOp string

const (
	OpAdd    MutationOp = "add"
	OpRemove MutationOp = "remove"
)

// SkipReason explains why a role mutation was not applied.
type SkipReason string

const (
	SkipMissingPermission SkipReason = "missing_permission"
	SkipRoleHierarchy     SkipReason = "role_hierarchy"
	SkipRoleNotFound      SkipReason = "role_not_found"
	SkipMutationFailed    SkipReason = "mutation_failed"
)

// RoleSkip records a mutation that was planned but not applied.
type RoleSkip struct {
	RoleID string
	Op     MutationOp
	Reason SkipReason
	Err    error
}

// CommunityOutcome is the reconciliation result within one community.
type CommunityOutcome struct {
	CommunityID    string
	Target         *Tier
	AlreadyCorrect bool
	NotMember      bool // subject is not in the community; nothing was done
	Added          []string
	Removed        []string
	Skipped        []RoleSkip
	Err            error // member lookup or permission lookup failure
}

// ReconcileReport summarizes a single subject's reconciliation.
type ReconcileReport struct {
	SubjectID   string
	AssetCount  uint64
	Target      *Tier // tier persisted as the account summary
	Communities []CommunityOutcome
}

// Mutations returns how many role calls were issued successfully.
func (r *ReconcileReport) Mutations() int {
	n := 0
	for _, c := range r.Communities {
		n += len(c.Added) + len(c.Removed)
	}
	return n
}

// SubjectOutcome is the per-subject record returned to callers of a batch
// run.
type SubjectOutcome struct {
	SubjectID  string `json:"subject_id"`
	Success    bool   `json:"success"`
	AssetCount uint64 `json:"nft_count"`

	// BalanceError marks a count defaulted to zero after a failed lookup.
	BalanceError bool   `json:"balance_error,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ReconciliationResult aggregates one batch run. It is never persisted.
type ReconciliationResult struct {
	RunID      string           `json:"run_id"`
	Total      int              `json:"total"`
	Processed  int              `json:"processed"`
	Successful int              `json:"successful"`
	Unchanged  int              `json:"unchanged"`
	Failed     int              `json:"failed"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Subjects   []SubjectOutcome `json:"subjects,omitempty"`
}

// Duration of the run.
func (r *ReconciliationResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
