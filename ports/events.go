package ports

import (
	"context"
	"time"
)

// Topics published by the verification service.
const (
	TopicChallengeIssued = "verification.challenge_issued"
	TopicWalletVerified  = "verification.wallet_verified"
	TopicRoleReconciled  = "verification.role_reconciled"
	TopicBatchCompleted  = "verification.batch_completed"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// ChallengeIssued is published on TopicChallengeIssued.
type ChallengeIssued struct {
	ChallengeID string    `json:"challenge_id"`
	SubjectID   string    `json:"subject_id"`
	Wallet      string    `json:"wallet_address"`
	ExpiresAt   time.Time `json:"expires"`
}

// WalletVerified is published on TopicWalletVerified.
type WalletVerified struct {
	SubjectID  string    `json:"subject_id"`
	Wallet     string    `json:"wallet_address"`
	VerifiedAt time.Time `json:"verification_date"`
}

// RoleReconciled is published on TopicRoleReconciled when a reconciliation
// changed at least one role.
type RoleReconciled struct {
	SubjectID  string   `json:"subject_id"`
	AssetCount uint64   `json:"nft_count"`
	RoleID     string   `json:"roleId,omitempty"`
	RoleName   string   `json:"roleName,omitempty"`
	Added      []string `json:"added,omitempty"`
	Removed    []string `json:"removed,omitempty"`
}

// BatchCompleted is published on TopicBatchCompleted after every run.
type BatchCompleted struct {
	RunID      string        `json:"run_id"`
	Processed  int           `json:"processed"`
	Successful int           `json:"successful"`
	Unchanged  int           `json:"unchanged"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}
